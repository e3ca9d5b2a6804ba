package executor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"workbench/internal/actions"
	"workbench/internal/events"
	"workbench/internal/storage"
)

func newTestExecutor(t *testing.T) (*Executor, *storage.Store, *events.Broadcaster) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "exec.db")
	store, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBroadcaster(events.BroadcasterConfig{Buffer: 64, Logger: zerolog.Nop()})
	t.Cleanup(bus.Close)

	return New(Config{Store: store, Bus: bus, Logger: zerolog.Nop()}), store, bus
}

func proposal(id, typ, payload string) actions.Proposal {
	return actions.Proposal{
		ID:               id,
		Type:             typ,
		Title:            typ,
		Payload:          json.RawMessage(payload),
		RequiresApproval: true,
	}
}

func TestBatchAllOrNothingSuccess(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	res, err := exec.ExecuteBatch(ctx, "req-1", []actions.Proposal{
		proposal("a1", actions.TypeTodoCreate, `{"title":"write tests","priority":"high"}`),
		proposal("a2", actions.TypeProjectCreate, `{"title":"launch","deadline":"2026-09-30"}`),
		proposal("a3", actions.TypeQuerySnapshot, `{}`),
	})
	if err != nil {
		t.Fatalf("execute batch: %v", err)
	}
	if !res.Success {
		t.Fatalf("batch should succeed: %+v", res)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	if res.Records[0].Message != "待办已创建" || res.Records[2].Message != "当前快照已生成" {
		t.Fatalf("unexpected messages %+v", res.Records)
	}

	audits, err := store.ListActionAudits(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) != 3 {
		t.Fatalf("expected one audit per action, got %d", len(audits))
	}
	for _, a := range audits {
		if !a.Success {
			t.Fatalf("audit %s should be success", a.ActionID)
		}
	}

	snap, err := store.BuildSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.PendingTodos) != 1 || len(snap.ActiveProjects) != 1 {
		t.Fatalf("mutations not committed: %+v", snap)
	}
}

func TestBatchRollsBackOnFirstFailure(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	res, err := exec.ExecuteBatch(ctx, "req-2", []actions.Proposal{
		proposal("a1", actions.TypeTodoCreate, `{"title":"will be rolled back"}`),
		proposal("a2", actions.TypeTodoUpdate, `{"id":"missing","completed":true}`),
		proposal("a3", actions.TypeTodoCreate, `{"title":"never attempted"}`),
	})
	if err != nil {
		t.Fatalf("execute batch: %v", err)
	}
	if res.Success {
		t.Fatal("batch should fail")
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected exactly the failing record, got %d", len(res.Records))
	}
	if res.Records[0].ActionID != "a2" || res.Records[0].Success {
		t.Fatalf("unexpected failure record %+v", res.Records[0])
	}

	snap, err := store.BuildSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.PendingTodos) != 0 {
		t.Fatalf("first action must be rolled back, found %+v", snap.PendingTodos)
	}

	audits, err := store.ListActionAudits(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected exactly one failure audit, got %d", len(audits))
	}
	if audits[0].Success || audits[0].ActionID != "a2" {
		t.Fatalf("unexpected audit %+v", audits[0])
	}
}

func TestBatchRejectsUnsupportedType(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res, err := exec.ExecuteOne(context.Background(), "req-3", proposal("a1", "todo.rename", `{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatal("unsupported action must fail the batch")
	}
}

func TestBatchValidationFailures(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ctx := context.Background()

	cases := []struct {
		name string
		p    actions.Proposal
	}{
		{"todo create without title", proposal("a1", actions.TypeTodoCreate, `{}`)},
		{"project create without deadline", proposal("a2", actions.TypeProjectCreate, `{"title":"x"}`)},
		{"progress without value", proposal("a3", actions.TypeProjectUpdateProgress, `{"id":"p1"}`)},
		{"event create without date", proposal("a4", actions.TypeEventCreate, `{"title":"x"}`)},
		{"malformed payload", proposal("a5", actions.TypeTodoCreate, `[1,2]`)},
	}
	for _, tc := range cases {
		res, err := exec.ExecuteOne(ctx, "", tc.p)
		if err != nil {
			t.Fatalf("%s: execute: %v", tc.name, err)
		}
		if res.Success {
			t.Fatalf("%s: expected failure", tc.name)
		}
	}
}

func TestBatchUpdateRecordsBeforeAndAfter(t *testing.T) {
	exec, store, _ := newTestExecutor(t)
	ctx := context.Background()

	created, err := exec.ExecuteOne(ctx, "", proposal("c1", actions.TypeTodoCreate, `{"title":"draft"}`))
	if err != nil || !created.Success {
		t.Fatalf("create: %v %+v", err, created)
	}

	snap, err := store.BuildSnapshot(ctx)
	if err != nil || len(snap.PendingTodos) != 1 {
		t.Fatalf("snapshot after create: %v %+v", err, snap)
	}
	todoID := snap.PendingTodos[0].ID

	res, err := exec.ExecuteOne(ctx, "", proposal("u1", actions.TypeTodoUpdate, `{"id":"`+todoID+`","completed":true}`))
	if err != nil || !res.Success {
		t.Fatalf("update: %v %+v", err, res)
	}

	audits, err := store.ListActionAudits(ctx, res.BatchID)
	if err != nil || len(audits) != 1 {
		t.Fatalf("list audits: %v (%d)", err, len(audits))
	}
	a := audits[0]
	if a.BeforeJSON == nil || a.AfterJSON == nil {
		t.Fatalf("expected before and after states, got %+v", a)
	}

	var before, after storage.Todo
	if err := json.Unmarshal([]byte(*a.BeforeJSON), &before); err != nil {
		t.Fatalf("unmarshal before: %v", err)
	}
	if err := json.Unmarshal([]byte(*a.AfterJSON), &after); err != nil {
		t.Fatalf("unmarshal after: %v", err)
	}
	if before.Completed || !after.Completed {
		t.Fatalf("before/after mismatch: %+v → %+v", before, after)
	}
}

func TestBatchEmitsExecutingEvents(t *testing.T) {
	exec, _, bus := newTestExecutor(t)
	ctx := context.Background()

	ch, cancel := bus.Subscribe("req-ev")
	defer cancel()

	_, err := exec.ExecuteBatch(ctx, "req-ev", []actions.Proposal{
		proposal("a1", actions.TypeTodoCreate, `{"title":"one"}`),
		proposal("a2", actions.TypeTodoUpdate, `{"id":"nope","completed":true}`),
	})
	if err != nil {
		t.Fatalf("execute batch: %v", err)
	}

	var stages []string
	deadline := time.After(2 * time.Second)
	for len(stages) < 3 {
		select {
		case ev := <-ch:
			stages = append(stages, ev.Stage)
		case <-deadline:
			t.Fatalf("timed out, stages so far: %v", stages)
		}
	}
	if stages[0] != events.StageExecuting || stages[1] != events.StageExecuting || stages[2] != events.StageError {
		t.Fatalf("unexpected stage sequence %v", stages)
	}
}

func TestEmptyBatchSucceeds(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	res, err := exec.ExecuteBatch(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success || len(res.Records) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if errors.Is(err, ErrTransactionAbort) {
		t.Fatal("no abort expected")
	}
}
