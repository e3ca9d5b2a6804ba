package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

func (s *Store) AppendSession(ctx context.Context, session AgentSession) error {
	q := s.sql.Insert("agent_sessions").
		Columns("id", "request_id", "provider", "user_message", "reply", "created_at").
		Values(session.ID, session.RequestID, session.Provider, session.UserMessage, session.Reply, nowExpr(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build append session query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

func (s *Store) AppendStageEvent(ctx context.Context, rec StageEventRecord) error {
	q := s.sql.Insert("agent_events").
		Columns("id", "request_id", "stage", "message", "meta_json", "created_at").
		Values(rec.ID, rec.RequestID, rec.Stage, rec.Message, rec.MetaJSON, nowExpr(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build append stage event query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("append stage event: %w", err)
	}
	return nil
}

func (s *Store) AppendActionAudit(ctx context.Context, audit ActionAudit) error {
	q := s.sql.Insert("agent_action_audits").
		Columns("id", "batch_id", "action_id", "action_type", "payload_json", "before_state_json", "after_state_json", "success", "error_message", "created_at").
		Values(audit.ID, audit.BatchID, audit.ActionID, audit.ActionType, audit.PayloadJSON, audit.BeforeJSON, audit.AfterJSON, audit.Success, audit.ErrMessage, nowExpr(s.driver))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build append audit query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Store) LatestSession(ctx context.Context, requestID string) (AgentSession, error) {
	q := s.sql.Select("id", "request_id", "provider", "user_message", "reply", "created_at").
		From("agent_sessions").
		Where(sq.Eq{"request_id": requestID}).
		OrderBy("created_at DESC").
		Limit(1)

	query, args, err := q.ToSql()
	if err != nil {
		return AgentSession{}, fmt.Errorf("build latest session query: %w", err)
	}

	var out AgentSession
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&out.ID, &out.RequestID, &out.Provider, &out.UserMessage, &out.Reply, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AgentSession{}, ErrNotFound
		}
		return AgentSession{}, fmt.Errorf("latest session: %w", err)
	}
	return out, nil
}

func (s *Store) ListStageEvents(ctx context.Context, requestID string) ([]StageEventRecord, error) {
	q := s.sql.Select("id", "request_id", "stage", "message", "meta_json", "created_at").
		From("agent_events").
		Where(sq.Eq{"request_id": requestID}).
		OrderBy("created_at ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list stage events query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	var out []StageEventRecord
	for rows.Next() {
		var rec StageEventRecord
		var meta sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Stage, &rec.Message, &meta, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		rec.MetaJSON = meta.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ListActionAudits(ctx context.Context, batchID string) ([]ActionAudit, error) {
	q := s.sql.Select("id", "batch_id", "action_id", "action_type", "payload_json", "before_state_json", "after_state_json", "success", "error_message", "created_at").
		From("agent_action_audits").
		Where(sq.Eq{"batch_id": batchID}).
		OrderBy("created_at ASC")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audits query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []ActionAudit
	for rows.Next() {
		var audit ActionAudit
		if err := rows.Scan(&audit.ID, &audit.BatchID, &audit.ActionID, &audit.ActionType, &audit.PayloadJSON, &audit.BeforeJSON, &audit.AfterJSON, &audit.Success, &audit.ErrMessage, &audit.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, audit)
	}
	return out, rows.Err()
}

func (s *Store) GetTodo(ctx context.Context, id string) (Todo, error) {
	q := s.sql.Select("id", "title", "completed", "priority", "created_at").
		From("todos").
		Where(sq.Eq{"id": id})

	query, args, err := q.ToSql()
	if err != nil {
		return Todo{}, fmt.Errorf("build get todo query: %w", err)
	}
	var out Todo
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&out.ID, &out.Title, &out.Completed, &out.Priority, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("get todo: %w", err)
	}
	return out, nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
