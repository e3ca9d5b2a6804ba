package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"workbench/internal/actions"
	"workbench/internal/storage"
)

// applyAction validates and executes one proposal against the open
// transaction, appending its success audit there so the record commits or
// rolls back with the mutation. The returned message is the user-facing
// confirmation.
func (e *Executor) applyAction(ctx context.Context, mut *storage.Mutator, batchID string, p actions.Proposal) (string, error) {
	if err := actions.Validate(p.Type, p.Payload); err != nil {
		return "", err
	}

	audit := storage.ActionAudit{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		ActionID:    p.ID,
		ActionType:  p.Type,
		PayloadJSON: payloadJSON(p),
		Success:     true,
	}

	var msg string
	var err error

	switch p.Type {
	case actions.TypeTodoCreate:
		msg, err = e.applyTodoCreate(ctx, mut, p, &audit)
	case actions.TypeTodoUpdate:
		msg, err = e.applyTodoUpdate(ctx, mut, p, &audit)
	case actions.TypeTodoDelete:
		msg, err = e.applyTodoDelete(ctx, mut, p, &audit)
	case actions.TypeProjectCreate:
		msg, err = e.applyProjectCreate(ctx, mut, p, &audit)
	case actions.TypeProjectUpdateProgress:
		msg, err = e.applyProjectProgress(ctx, mut, p, &audit)
	case actions.TypeProjectDelete:
		msg, err = e.applyProjectDelete(ctx, mut, p, &audit)
	case actions.TypeEventCreate:
		msg, err = e.applyEventCreate(ctx, mut, p, &audit)
	case actions.TypeEventUpdate:
		msg, err = e.applyEventUpdate(ctx, mut, p, &audit)
	case actions.TypeEventDelete:
		msg, err = e.applyEventDelete(ctx, mut, p, &audit)
	case actions.TypePersonalCreate:
		msg, err = e.applyPersonalCreate(ctx, mut, p, &audit)
	case actions.TypePersonalUpdate:
		msg, err = e.applyPersonalUpdate(ctx, mut, p, &audit)
	case actions.TypePersonalDelete:
		msg, err = e.applyPersonalDelete(ctx, mut, p, &audit)
	case actions.TypeQuerySnapshot:
		msg, err = e.applySnapshot(ctx, &audit)
	default:
		return "", actions.ErrUnsupportedAction
	}
	if err != nil {
		return "", err
	}

	if err := mut.AppendActionAudit(ctx, audit); err != nil {
		// Audit writes inside the transaction share its fate; failing one
		// here means the transaction itself is in trouble.
		return "", fmt.Errorf("append audit: %w", err)
	}
	return msg, nil
}

func (e *Executor) applyTodoCreate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.TodoCreate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("title", payload.Title); err != nil {
		return "", err
	}

	id := uuid.NewString()
	priority := ""
	if payload.Priority != nil {
		priority = *payload.Priority
	}
	if err := mut.CreateTodo(ctx, id, payload.Title, priority); err != nil {
		return "", err
	}

	after, _, err := mut.GetTodo(ctx, id)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "待办已创建", nil
}

func (e *Executor) applyTodoUpdate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.TodoUpdate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetTodo(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("todo %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.UpdateTodo(ctx, payload.ID, payload.Title, payload.Completed, payload.Priority); err != nil {
		return "", err
	}

	after, _, err := mut.GetTodo(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "待办已更新", nil
}

func (e *Executor) applyTodoDelete(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.Delete
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetTodo(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("todo %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.DeleteTodo(ctx, payload.ID); err != nil {
		return "", err
	}
	return "待办已删除", nil
}

func (e *Executor) applyProjectCreate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.ProjectCreate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("title", payload.Title); err != nil {
		return "", err
	}
	if err := actions.RequireString("deadline", payload.Deadline); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := mut.CreateProject(ctx, id, payload.Title, payload.Deadline); err != nil {
		return "", err
	}

	after, _, err := mut.GetProject(ctx, id)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "项目已创建", nil
}

func (e *Executor) applyProjectProgress(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.ProjectUpdateProgress
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}
	if payload.Progress == nil {
		return "", actions.MissingFieldError{Field: "progress"}
	}

	before, found, err := mut.GetProject(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("project %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.UpdateProjectProgress(ctx, payload.ID, *payload.Progress); err != nil {
		return "", err
	}

	after, _, err := mut.GetProject(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "项目进度已更新", nil
}

func (e *Executor) applyProjectDelete(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.Delete
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetProject(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("project %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.DeleteProject(ctx, payload.ID); err != nil {
		return "", err
	}
	return "项目已删除", nil
}

func (e *Executor) applyEventCreate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.EventCreate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("title", payload.Title); err != nil {
		return "", err
	}
	if err := actions.RequireString("date", payload.Date); err != nil {
		return "", err
	}

	id := uuid.NewString()
	color := ""
	if payload.Color != nil {
		color = *payload.Color
	}
	if err := mut.CreateEvent(ctx, id, payload.Title, payload.Date, color, payload.Note); err != nil {
		return "", err
	}

	after, _, err := mut.GetEvent(ctx, id)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "日程已创建", nil
}

func (e *Executor) applyEventUpdate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.EventUpdate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetEvent(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("event %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.UpdateEvent(ctx, payload.ID, payload.Title, payload.Date, payload.Color, payload.Note); err != nil {
		return "", err
	}

	after, _, err := mut.GetEvent(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "日程已更新", nil
}

func (e *Executor) applyEventDelete(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.Delete
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetEvent(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("event %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.DeleteEvent(ctx, payload.ID); err != nil {
		return "", err
	}
	return "日程已删除", nil
}

func (e *Executor) applyPersonalCreate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.PersonalCreate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("title", payload.Title); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := mut.CreatePersonalTask(ctx, id, payload.Title, payload.Budget, payload.Date, payload.Location, payload.Note); err != nil {
		return "", err
	}

	after, _, err := mut.GetPersonalTask(ctx, id)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "个人事务已创建", nil
}

func (e *Executor) applyPersonalUpdate(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.PersonalUpdate
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetPersonalTask(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("personal task %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.UpdatePersonalTask(ctx, payload.ID, payload.Title, payload.Budget, payload.Date, payload.Location, payload.Note); err != nil {
		return "", err
	}

	after, _, err := mut.GetPersonalTask(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(after)
	return "个人事务已更新", nil
}

func (e *Executor) applyPersonalDelete(ctx context.Context, mut *storage.Mutator, p actions.Proposal, audit *storage.ActionAudit) (string, error) {
	var payload actions.Delete
	if err := actions.DecodePayload(p.Payload, &payload); err != nil {
		return "", err
	}
	if err := actions.RequireString("id", payload.ID); err != nil {
		return "", err
	}

	before, found, err := mut.GetPersonalTask(ctx, payload.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("personal task %s: %w", payload.ID, storage.ErrNotFound)
	}
	audit.BeforeJSON = marshalState(before)

	if err := mut.DeletePersonalTask(ctx, payload.ID); err != nil {
		return "", err
	}
	return "个人事务已删除", nil
}

// applySnapshot is read-only; the audit records the snapshot that was served.
func (e *Executor) applySnapshot(ctx context.Context, audit *storage.ActionAudit) (string, error) {
	snap, err := e.store.BuildSnapshot(ctx)
	if err != nil {
		return "", err
	}
	audit.AfterJSON = marshalState(snap)
	return "当前快照已生成", nil
}
