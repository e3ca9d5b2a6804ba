package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	snapshotTodoLimit     = 8
	snapshotProjectLimit  = 8
	snapshotEventLimit    = 10
	snapshotPersonalLimit = 8
)

// BuildSnapshot collects the bounded workspace context: pending todos, active
// projects, today's events and personal tasks. Missing sections come back as
// empty slices, never nil, so the serialized form always carries all keys.
func (s *Store) BuildSnapshot(ctx context.Context) (Snapshot, error) {
	today := time.Now().Format("2006-01-02")
	snap := Snapshot{
		Today:          today,
		PendingTodos:   []SnapshotTodo{},
		ActiveProjects: []SnapshotProject{},
		TodayEvents:    []SnapshotEvent{},
		PersonalTasks:  []SnapshotPersonal{},
	}

	if err := s.snapshotTodos(ctx, &snap); err != nil {
		return Snapshot{}, err
	}
	if err := s.snapshotProjects(ctx, &snap); err != nil {
		return Snapshot{}, err
	}
	if err := s.snapshotEvents(ctx, &snap, today); err != nil {
		return Snapshot{}, err
	}
	if err := s.snapshotPersonal(ctx, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) snapshotTodos(ctx context.Context, snap *Snapshot) error {
	q := s.sql.Select("id", "title", "priority").
		From("todos").
		Where(sq.Eq{"completed": false}).
		OrderBy("created_at DESC").
		Limit(snapshotTodoLimit)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build todos snapshot query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("todos snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t SnapshotTodo
		if err := rows.Scan(&t.ID, &t.Title, &t.Priority); err != nil {
			return fmt.Errorf("scan todo snapshot: %w", err)
		}
		snap.PendingTodos = append(snap.PendingTodos, t)
	}
	return rows.Err()
}

func (s *Store) snapshotProjects(ctx context.Context, snap *Snapshot) error {
	q := s.sql.Select("id", "title", "deadline", "progress").
		From("projects").
		Where(sq.Eq{"status": "active"}).
		OrderBy("deadline").
		Limit(snapshotProjectLimit)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build projects snapshot query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("projects snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p SnapshotProject
		if err := rows.Scan(&p.ID, &p.Title, &p.Deadline, &p.Progress); err != nil {
			return fmt.Errorf("scan project snapshot: %w", err)
		}
		snap.ActiveProjects = append(snap.ActiveProjects, p)
	}
	return rows.Err()
}

func (s *Store) snapshotEvents(ctx context.Context, snap *Snapshot, today string) error {
	q := s.sql.Select("id", "title", "date", "color", "note").
		From("events").
		Where(sq.Eq{"date": today}).
		OrderBy("date").
		Limit(snapshotEventLimit)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build events snapshot query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("events snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e SnapshotEvent
		if err := rows.Scan(&e.ID, &e.Title, &e.Date, &e.Color, &e.Note); err != nil {
			return fmt.Errorf("scan event snapshot: %w", err)
		}
		snap.TodayEvents = append(snap.TodayEvents, e)
	}
	return rows.Err()
}

func (s *Store) snapshotPersonal(ctx context.Context, snap *Snapshot) error {
	q := s.sql.Select("id", "title", "date", "budget").
		From("personal_tasks").
		OrderBy("date").
		Limit(snapshotPersonalLimit)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build personal snapshot query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("personal snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p SnapshotPersonal
		if err := rows.Scan(&p.ID, &p.Title, &p.Date, &p.Budget); err != nil {
			return fmt.Errorf("scan personal snapshot: %w", err)
		}
		snap.PersonalTasks = append(snap.PersonalTasks, p)
	}
	return rows.Err()
}
