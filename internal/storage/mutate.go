package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNoUpdatableFields = errors.New("no updatable fields")

// Mutator wraps a single transaction. Update methods accept one optional
// pointer per mutable column so the set of touched columns stays closed; no
// caller-supplied column names ever reach the builder.
type Mutator struct {
	tx     *sql.Tx
	sql    sq.StatementBuilderType
	driver string
}

func (m *Mutator) Commit() error {
	return m.tx.Commit()
}

func (m *Mutator) Rollback() error {
	return m.tx.Rollback()
}

func (m *Mutator) CreateTodo(ctx context.Context, id, title, priority string) error {
	if priority == "" {
		priority = "normal"
	}
	q := m.sql.Insert("todos").
		Columns("id", "title", "priority").
		Values(id, title, priority)
	return m.exec(ctx, q, "create todo")
}

func (m *Mutator) UpdateTodo(ctx context.Context, id string, title *string, completed *bool, priority *string) error {
	set := map[string]any{}
	if title != nil {
		set["title"] = *title
	}
	if completed != nil {
		set["completed"] = *completed
	}
	if priority != nil {
		set["priority"] = *priority
	}
	if len(set) == 0 {
		return ErrNoUpdatableFields
	}
	q := m.sql.Update("todos").SetMap(set).Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "update todo")
}

func (m *Mutator) DeleteTodo(ctx context.Context, id string) error {
	q := m.sql.Delete("todos").Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "delete todo")
}

func (m *Mutator) CreateProject(ctx context.Context, id, title, deadline string) error {
	q := m.sql.Insert("projects").
		Columns("id", "title", "deadline", "progress", "status").
		Values(id, title, deadline, 0, "active")
	return m.exec(ctx, q, "create project")
}

func (m *Mutator) UpdateProjectProgress(ctx context.Context, id string, progress int) error {
	q := m.sql.Update("projects").
		Set("progress", progress).
		Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "update project progress")
}

func (m *Mutator) DeleteProject(ctx context.Context, id string) error {
	q := m.sql.Delete("projects").Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "delete project")
}

func (m *Mutator) CreateEvent(ctx context.Context, id, title, date, color string, note *string) error {
	if color == "" {
		color = "blue"
	}
	q := m.sql.Insert("events").
		Columns("id", "title", "date", "color", "note").
		Values(id, title, date, color, note)
	return m.exec(ctx, q, "create event")
}

func (m *Mutator) UpdateEvent(ctx context.Context, id string, title, date, color, note *string) error {
	set := map[string]any{}
	if title != nil {
		set["title"] = *title
	}
	if date != nil {
		set["date"] = *date
	}
	if color != nil {
		set["color"] = *color
	}
	if note != nil {
		set["note"] = *note
	}
	if len(set) == 0 {
		return ErrNoUpdatableFields
	}
	q := m.sql.Update("events").SetMap(set).Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "update event")
}

func (m *Mutator) DeleteEvent(ctx context.Context, id string) error {
	q := m.sql.Delete("events").Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "delete event")
}

func (m *Mutator) CreatePersonalTask(ctx context.Context, id, title string, budget *float64, date, location, note *string) error {
	q := m.sql.Insert("personal_tasks").
		Columns("id", "title", "budget", "date", "location", "note").
		Values(id, title, budget, date, location, note)
	return m.exec(ctx, q, "create personal task")
}

func (m *Mutator) UpdatePersonalTask(ctx context.Context, id string, title *string, budget *float64, date, location, note *string) error {
	set := map[string]any{}
	if title != nil {
		set["title"] = *title
	}
	if budget != nil {
		set["budget"] = *budget
	}
	if date != nil {
		set["date"] = *date
	}
	if location != nil {
		set["location"] = *location
	}
	if note != nil {
		set["note"] = *note
	}
	if len(set) == 0 {
		return ErrNoUpdatableFields
	}
	q := m.sql.Update("personal_tasks").SetMap(set).Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "update personal task")
}

func (m *Mutator) DeletePersonalTask(ctx context.Context, id string) error {
	q := m.sql.Delete("personal_tasks").Where(sq.Eq{"id": id})
	return m.execOne(ctx, q, "delete personal task")
}

// GetTodo reads the row through the transaction so audit before/after states
// observe uncommitted writes from earlier actions in the same batch.
func (m *Mutator) GetTodo(ctx context.Context, id string) (Todo, bool, error) {
	q := m.sql.Select("id", "title", "completed", "priority", "created_at").
		From("todos").
		Where(sq.Eq{"id": id})
	query, args, err := q.ToSql()
	if err != nil {
		return Todo{}, false, fmt.Errorf("build get todo query: %w", err)
	}
	var out Todo
	err = m.tx.QueryRowContext(ctx, query, args...).Scan(&out.ID, &out.Title, &out.Completed, &out.Priority, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, false, nil
	}
	if err != nil {
		return Todo{}, false, fmt.Errorf("get todo: %w", err)
	}
	return out, true, nil
}

func (m *Mutator) GetProject(ctx context.Context, id string) (Project, bool, error) {
	q := m.sql.Select("id", "title", "deadline", "progress", "status").
		From("projects").
		Where(sq.Eq{"id": id})
	query, args, err := q.ToSql()
	if err != nil {
		return Project{}, false, fmt.Errorf("build get project query: %w", err)
	}
	var out Project
	err = m.tx.QueryRowContext(ctx, query, args...).Scan(&out.ID, &out.Title, &out.Deadline, &out.Progress, &out.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, false, nil
	}
	if err != nil {
		return Project{}, false, fmt.Errorf("get project: %w", err)
	}
	return out, true, nil
}

func (m *Mutator) GetEvent(ctx context.Context, id string) (Event, bool, error) {
	q := m.sql.Select("id", "title", "date", "color", "note").
		From("events").
		Where(sq.Eq{"id": id})
	query, args, err := q.ToSql()
	if err != nil {
		return Event{}, false, fmt.Errorf("build get event query: %w", err)
	}
	var out Event
	err = m.tx.QueryRowContext(ctx, query, args...).Scan(&out.ID, &out.Title, &out.Date, &out.Color, &out.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("get event: %w", err)
	}
	return out, true, nil
}

func (m *Mutator) GetPersonalTask(ctx context.Context, id string) (PersonalTask, bool, error) {
	q := m.sql.Select("id", "title", "budget", "date", "location", "note").
		From("personal_tasks").
		Where(sq.Eq{"id": id})
	query, args, err := q.ToSql()
	if err != nil {
		return PersonalTask{}, false, fmt.Errorf("build get personal task query: %w", err)
	}
	var out PersonalTask
	err = m.tx.QueryRowContext(ctx, query, args...).Scan(&out.ID, &out.Title, &out.Budget, &out.Date, &out.Location, &out.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return PersonalTask{}, false, nil
	}
	if err != nil {
		return PersonalTask{}, false, fmt.Errorf("get personal task: %w", err)
	}
	return out, true, nil
}

// AppendActionAudit writes a success audit inside the transaction so it
// commits or rolls back together with the mutations it describes.
func (m *Mutator) AppendActionAudit(ctx context.Context, audit ActionAudit) error {
	q := m.sql.Insert("agent_action_audits").
		Columns("id", "batch_id", "action_id", "action_type", "payload_json", "before_state_json", "after_state_json", "success", "error_message", "created_at").
		Values(audit.ID, audit.BatchID, audit.ActionID, audit.ActionType, audit.PayloadJSON, audit.BeforeJSON, audit.AfterJSON, audit.Success, audit.ErrMessage, nowExpr(m.driver))
	return m.exec(ctx, q, "append audit")
}

func (m *Mutator) exec(ctx context.Context, q sq.Sqlizer, op string) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", op, err)
	}
	if _, err := m.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (m *Mutator) execOne(ctx context.Context, q sq.Sqlizer, op string) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", op, err)
	}
	res, err := m.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
