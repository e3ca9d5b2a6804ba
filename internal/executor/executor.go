// Package executor applies proposed actions to the workspace store with
// all-or-nothing semantics: one transaction per batch, strict input order,
// full rollback on the first failure.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"workbench/internal/actions"
	"workbench/internal/events"
	"workbench/internal/metrics"
	"workbench/internal/storage"
)

// ErrTransactionAbort wraps a rollback failure. It is fatal and surfaced
// as-is, never retried.
var ErrTransactionAbort = errors.New("transaction rollback failed")

type Record struct {
	ActionID   string `json:"actionId"`
	ActionType string `json:"actionType"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
}

type BatchResult struct {
	Success bool     `json:"success"`
	BatchID string   `json:"batchId"`
	Message string   `json:"message"`
	Records []Record `json:"records"`
}

type Executor struct {
	store *storage.Store
	bus   *events.Broadcaster
	log   zerolog.Logger
}

type Config struct {
	Store  *storage.Store
	Bus    *events.Broadcaster
	Logger zerolog.Logger
}

func New(cfg Config) *Executor {
	return &Executor{store: cfg.Store, bus: cfg.Bus, log: cfg.Logger}
}

// ExecuteOne applies a single action as a batch of one.
func (e *Executor) ExecuteOne(ctx context.Context, requestID string, p actions.Proposal) (BatchResult, error) {
	return e.ExecuteBatch(ctx, requestID, []actions.Proposal{p})
}

// ExecuteBatch processes actions strictly in order inside one transaction.
// The first failure rolls everything back, leaves exactly one failure audit
// record for the failing action, and reports the remaining actions as
// unattempted.
func (e *Executor) ExecuteBatch(ctx context.Context, requestID string, proposals []actions.Proposal) (BatchResult, error) {
	batchID := uuid.NewString()
	if len(proposals) == 0 {
		return BatchResult{Success: true, BatchID: batchID, Message: "没有需要执行的动作", Records: []Record{}}, nil
	}

	mut, err := e.store.Begin(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("begin batch: %w", err)
	}

	total := len(proposals)
	records := make([]Record, 0, total)

	for i, p := range proposals {
		msg, applyErr := e.applyAction(ctx, mut, batchID, p)
		if applyErr != nil {
			if rbErr := mut.Rollback(); rbErr != nil {
				return BatchResult{}, fmt.Errorf("%w: %v (after: %v)", ErrTransactionAbort, rbErr, applyErr)
			}

			failure := Record{
				ActionID:   p.ID,
				ActionType: p.Type,
				Success:    false,
				Error:      applyErr.Error(),
			}
			e.writeFailureAudit(ctx, batchID, p, applyErr)
			e.emitExecuting(requestID, total, i+1, i, 1)
			e.emitError(requestID, p, applyErr)
			metrics.Global().BatchesFailed.Inc()

			return BatchResult{
				Success: false,
				BatchID: batchID,
				Message: fmt.Sprintf("动作 %s 执行失败: %s", p.Type, applyErr.Error()),
				Records: []Record{failure},
			}, nil
		}

		records = append(records, Record{
			ActionID:   p.ID,
			ActionType: p.Type,
			Success:    true,
			Message:    msg,
		})
		e.emitExecuting(requestID, total, i+1, i+1, 0)
	}

	if err := mut.Commit(); err != nil {
		metrics.Global().BatchesFailed.Inc()
		return BatchResult{}, fmt.Errorf("commit batch: %w", err)
	}
	metrics.Global().ActionsExecuted.Add(float64(total))

	messages := make([]string, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.Message)
	}
	return BatchResult{
		Success: true,
		BatchID: batchID,
		Message: strings.Join(messages, "；"),
		Records: records,
	}, nil
}

// writeFailureAudit records the single failure entry outside the rolled-back
// transaction. Audit durability is best-effort; a write failure is logged
// and swallowed.
func (e *Executor) writeFailureAudit(ctx context.Context, batchID string, p actions.Proposal, applyErr error) {
	msg := applyErr.Error()
	audit := storage.ActionAudit{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		ActionID:    p.ID,
		ActionType:  p.Type,
		PayloadJSON: payloadJSON(p),
		Success:     false,
		ErrMessage:  &msg,
	}
	if err := e.store.AppendActionAudit(ctx, audit); err != nil {
		e.log.Warn().Err(err).Str("batch_id", batchID).Msg("failure audit write failed")
	}
}

func (e *Executor) emitExecuting(requestID string, total, completed, success, failed int) {
	if e.bus == nil || requestID == "" {
		return
	}
	e.bus.Publish(events.StageEvent{
		RequestID: requestID,
		Stage:     events.StageExecuting,
		Message:   fmt.Sprintf("已执行 %d/%d", completed, total),
		Meta: map[string]any{
			"total":     total,
			"completed": completed,
			"success":   success,
			"failed":    failed,
		},
	})
}

func (e *Executor) emitError(requestID string, p actions.Proposal, applyErr error) {
	if e.bus == nil || requestID == "" {
		return
	}
	e.bus.Publish(events.StageEvent{
		RequestID: requestID,
		Stage:     events.StageError,
		Message:   applyErr.Error(),
		Meta:      map[string]any{"actionId": p.ID, "actionType": p.Type},
	})
}

func payloadJSON(p actions.Proposal) string {
	if len(p.Payload) == 0 {
		return "{}"
	}
	return string(p.Payload)
}

func marshalState(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
