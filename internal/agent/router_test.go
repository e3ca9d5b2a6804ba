package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"workbench/internal/actions"
	"workbench/internal/events"
	"workbench/internal/executor"
	"workbench/internal/storage"
)

func newTestRouter(t *testing.T, httpClient *http.Client) (*Router, *storage.Store, *events.Broadcaster) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "router.db")
	store, err := storage.Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBroadcaster(events.BroadcasterConfig{Buffer: 64, Logger: zerolog.Nop()})
	t.Cleanup(bus.Close)

	exec := executor.New(executor.Config{Store: store, Bus: bus, Logger: zerolog.Nop()})
	router := New(Config{
		Store:      store,
		Bus:        bus,
		Executor:   exec,
		HTTPClient: httpClient,
		Logger:     zerolog.Nop(),
	})
	return router, store, bus
}

func collectStages(t *testing.T, ch <-chan events.StageEvent, n int) []string {
	t.Helper()
	var stages []string
	deadline := time.After(3 * time.Second)
	for len(stages) < n {
		select {
		case ev := <-ch:
			stages = append(stages, ev.Stage)
		case <-deadline:
			t.Fatalf("timed out waiting for stages, got %v", stages)
		}
	}
	return stages
}

func TestChatFallsBackOnMissingKey(t *testing.T) {
	router, store, bus := newTestRouter(t, nil)

	ch, cancel := bus.Subscribe("req-f1")
	defer cancel()

	resp := router.Chat(context.Background(), ChatRequest{
		RequestID: "req-f1",
		Messages:  []Message{{Role: "user", Content: "安排我的下午"}},
		Settings: ProviderSettings{
			Provider: "openai",
			OpenAI:   ProviderConfig{BaseURL: "https://api.openai.com/v1"},
		},
	})

	if !resp.Fallback {
		t.Fatalf("expected fallback response, got %+v", resp)
	}
	if !strings.Contains(resp.Reply, "安排我的下午") {
		t.Fatalf("fallback reply must echo the user message, got %q", resp.Reply)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Type != actions.TypeQuerySnapshot {
		t.Fatalf("fallback must propose exactly one snapshot action, got %+v", resp.Actions)
	}
	if !resp.Actions[0].RequiresApproval {
		t.Fatal("fallback proposal must require approval")
	}

	stages := collectStages(t, ch, 4)
	if stages[0] != events.StageRuntimeDetect || stages[1] != events.StagePlanning || stages[2] != events.StageFallback || stages[3] != events.StageCompleted {
		t.Fatalf("unexpected stage sequence %v", stages)
	}

	session, err := store.LatestSession(context.Background(), "req-f1")
	if err != nil {
		t.Fatalf("session must be recorded on fallback: %v", err)
	}
	if session.Provider != "local_fallback" {
		t.Fatalf("unexpected session provider %q", session.Provider)
	}
}

func TestChatHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"reply\":\"计划已生成\",\"actions\":[{\"id\":\"a1\",\"type\":\"todo.create\",\"title\":\"新建待办\",\"reason\":\"用户要求\",\"payload\":{\"title\":\"复盘\"},\"requiresApproval\":true}]}"}}]}`))
	}))
	defer srv.Close()

	router, store, bus := newTestRouter(t, srv.Client())

	ch, cancel := bus.Subscribe("req-h1")
	defer cancel()

	resp := router.Chat(context.Background(), ChatRequest{
		RequestID: "req-h1",
		Messages:  []Message{{Role: "user", Content: "帮我记一下复盘"}},
		Settings: ProviderSettings{
			Provider: "openai",
			OpenAI:   ProviderConfig{BaseURL: srv.URL, APIKey: "k", Model: "gpt-4o-mini"},
		},
	})

	if resp.Fallback {
		t.Fatalf("expected provider path, got fallback: %+v", resp)
	}
	if resp.Reply != "计划已生成" {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Type != actions.TypeTodoCreate {
		t.Fatalf("approval-gated action must be returned as proposal, got %+v", resp.Actions)
	}

	stages := collectStages(t, ch, 3)
	if stages[0] != events.StageRuntimeDetect || stages[1] != events.StagePlanning || stages[2] != events.StageCompleted {
		t.Fatalf("unexpected stage sequence %v", stages)
	}

	session, err := store.LatestSession(context.Background(), "req-h1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.Provider != "openai" || session.UserMessage != "帮我记一下复盘" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestChatAutoExecutesPreApprovedActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"reply\":\"已安排\",\"actions\":[{\"id\":\"a1\",\"type\":\"todo.create\",\"title\":\"新建待办\",\"reason\":\"直接执行\",\"payload\":{\"title\":\"准备材料\"},\"requiresApproval\":false}]}"}}]}`))
	}))
	defer srv.Close()

	router, store, _ := newTestRouter(t, srv.Client())

	resp := router.Chat(context.Background(), ChatRequest{
		RequestID: "req-auto",
		Messages:  []Message{{Role: "user", Content: "准备材料"}},
		Settings: ProviderSettings{
			Provider: "openai",
			OpenAI:   ProviderConfig{BaseURL: srv.URL, APIKey: "k"},
		},
	})

	if len(resp.Actions) != 0 {
		t.Fatalf("pre-approved action must not come back as proposal: %+v", resp.Actions)
	}
	if !strings.Contains(resp.Reply, "待办已创建") {
		t.Fatalf("executor result must fold into reply, got %q", resp.Reply)
	}

	snap, err := store.BuildSnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.PendingTodos) != 1 {
		t.Fatalf("todo must be created, snapshot %+v", snap)
	}
}

func TestChatFallsBackOnGarbageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	router, _, _ := newTestRouter(t, srv.Client())

	resp := router.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Settings: ProviderSettings{
			Provider: "openai",
			OpenAI:   ProviderConfig{BaseURL: srv.URL, APIKey: "k"},
		},
	})
	if !resp.Fallback {
		t.Fatalf("expected fallback on unusable content, got %+v", resp)
	}
	if resp.RequestID == "" {
		t.Fatal("router must assign a request id when the caller omits one")
	}
}

func TestChatRuntimeDisabled(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	resp := router.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Settings: ProviderSettings{Provider: "local_runtime"},
	})
	if !resp.Fallback {
		t.Fatal("disabled runtime must route to fallback")
	}
}

func TestChatUnsupportedProvider(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	resp := router.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Settings: ProviderSettings{Provider: "bard"},
	})
	if !resp.Fallback {
		t.Fatal("unknown provider must route to fallback")
	}
}
