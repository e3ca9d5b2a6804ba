package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"workbench/internal/actions"
	"workbench/internal/events"
	"workbench/internal/executor"
	"workbench/internal/metrics"
	"workbench/internal/normalize"
	"workbench/internal/providers"
	"workbench/internal/providers/codexcli"
	"workbench/internal/providers/registry"
	"workbench/internal/storage"
)

var errRuntimeDisabled = errors.New("local runtime is disabled")

// Router turns one chat request into a completed {reply, actions} value. It
// never returns an error to the caller: every provider failure terminates in
// the deterministic fallback reply.
type Router struct {
	store      *storage.Store
	bus        *events.Broadcaster
	exec       *executor.Executor
	httpClient *http.Client
	runtime    codexcli.Config
	log        zerolog.Logger
}

type Config struct {
	Store      *storage.Store
	Bus        *events.Broadcaster
	Executor   *executor.Executor
	HTTPClient *http.Client
	Runtime    codexcli.Config
	Logger     zerolog.Logger
}

func New(cfg Config) *Router {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Router{
		store:      cfg.Store,
		bus:        cfg.Bus,
		exec:       cfg.Executor,
		httpClient: cfg.HTTPClient,
		runtime:    cfg.Runtime,
		log:        cfg.Logger,
	}
}

func (r *Router) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := r.log.With().Str("request_id", requestID).Str("provider", req.Settings.Provider).Logger()
	metrics.Global().ChatRequests.Inc()

	snap, err := r.store.BuildSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("snapshot build failed, continuing with empty context")
		snap = storage.Snapshot{
			Today:          time.Now().Format("2006-01-02"),
			PendingTodos:   []storage.SnapshotTodo{},
			ActiveProjects: []storage.SnapshotProject{},
			TodayEvents:    []storage.SnapshotEvent{},
			PersonalTasks:  []storage.SnapshotPersonal{},
		}
	}

	r.publish(requestID, events.StageRuntimeDetect, "已选择提供方 "+req.Settings.Provider, nil)

	provider, err := r.buildProvider(req.Settings)
	if err != nil {
		log.Warn().Err(err).Msg("provider unavailable")
		return r.fallback(ctx, requestID, req, snap, err)
	}

	r.probeRichChannel(ctx, requestID, req.Settings, provider)

	r.publish(requestID, events.StagePlanning, "正在请求模型", nil)
	if req.Settings.Provider == "local_runtime" {
		metrics.Global().RuntimeInvocations.Inc()
	}

	raw, err := provider.Chat(ctx, providers.ChatRequest{
		SystemPrompt: BuildSystemPrompt(snap),
		Messages:     toProviderMessages(req.Messages),
		MaxTokens:    1200,
		Temperature:  0.2,
	})
	if err != nil {
		log.Warn().Err(err).Msg("provider call failed")
		return r.fallback(ctx, requestID, req, snap, err)
	}

	res, err := normalize.Normalize(raw.Text)
	if err != nil {
		log.Warn().Err(err).Msg("response normalization failed")
		return r.fallback(ctx, requestID, req, snap, err)
	}

	reply := res.Reply
	var gated []actions.Proposal
	var auto []actions.Proposal
	for _, p := range res.Actions {
		if p.RequiresApproval {
			gated = append(gated, p)
		} else {
			auto = append(auto, p)
		}
	}

	// Pre-approved actions run immediately; their outcome folds into the
	// reply text. Approval-gated proposals go back to the caller untouched.
	if len(auto) > 0 {
		batch, execErr := r.exec.ExecuteBatch(ctx, requestID, auto)
		if execErr != nil {
			log.Error().Err(execErr).Msg("auto-execution failed")
			reply += " 动作执行失败，已回滚。"
		} else if batch.Message != "" {
			reply += " " + batch.Message
		}
	}

	r.persistSession(ctx, requestID, req, provider.Name(), reply)
	r.publish(requestID, events.StageCompleted, "已完成", nil)

	if gated == nil {
		gated = []actions.Proposal{}
	}
	return ChatResponse{
		RequestID: requestID,
		Provider:  provider.Name(),
		Reply:     reply,
		Actions:   gated,
	}
}

func (r *Router) fallback(ctx context.Context, requestID string, req ChatRequest, snap storage.Snapshot, cause error) ChatResponse {
	metrics.Global().ProviderFallbacks.Inc()
	r.publish(requestID, events.StageFallback, "提供方不可用，使用本地建议", map[string]any{"error": cause.Error()})

	reply, proposals := FallbackResponse(req.Messages, snap, cause)

	r.persistSession(ctx, requestID, req, "local_fallback", reply)
	r.publish(requestID, events.StageCompleted, "已完成", nil)

	return ChatResponse{
		RequestID: requestID,
		Provider:  "local_fallback",
		Reply:     reply,
		Actions:   proposals,
		Fallback:  true,
	}
}

func (r *Router) buildProvider(settings ProviderSettings) (providers.Provider, error) {
	opts := registry.BuildOptions{Provider: settings.Provider, HTTPClient: r.httpClient}
	switch settings.Provider {
	case "openai":
		opts.BaseURL = settings.OpenAI.BaseURL
		opts.APIKey = settings.OpenAI.APIKey
		opts.Model = settings.OpenAI.Model
	case "anthropic":
		opts.BaseURL = settings.Anthropic.BaseURL
		opts.APIKey = settings.Anthropic.APIKey
		opts.Model = settings.Anthropic.Model
		opts.APIVersion = settings.Anthropic.APIVersion
	case "minimax":
		opts.BaseURL = settings.MiniMax.BaseURL
		opts.APIKey = settings.MiniMax.APIKey
		opts.Model = settings.MiniMax.Model
	case "local_runtime":
		if !settings.Runtime.Enabled {
			return nil, errRuntimeDisabled
		}
		opts.Runtime = r.mergeRuntime(settings.Runtime)
	default:
		return nil, fmt.Errorf("%w: %q", providers.ErrUnsupported, settings.Provider)
	}
	return registry.Build(opts)
}

// mergeRuntime lays per-request overrides over the server defaults.
func (r *Router) mergeRuntime(req RuntimeConfig) codexcli.Config {
	cfg := r.runtime
	if req.BinaryPath != "" {
		cfg.BinaryPath = req.BinaryPath
	}
	if len(req.Args) > 0 {
		cfg.Args = append([]string{}, req.Args...)
	}
	if req.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	return cfg
}

// probeRichChannel checks the preferred tool channel for the local runtime.
// A failed probe downgrades silently; it never gates the actual invocation.
func (r *Router) probeRichChannel(ctx context.Context, requestID string, settings ProviderSettings, provider providers.Provider) {
	if settings.Provider != "local_runtime" || !settings.Runtime.PreferMCP {
		return
	}
	rt, ok := provider.(*codexcli.Runtime)
	if !ok {
		return
	}
	if err := rt.ProbeMCP(ctx); err != nil {
		r.publish(requestID, events.StageExecFallback, "富通道不可用，已降级基础通道", map[string]any{"error": err.Error()})
		return
	}
	r.publish(requestID, events.StageMCPConnect, "富通道已连接", nil)
}

func (r *Router) publish(requestID, stage, message string, meta map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.StageEvent{
		RequestID: requestID,
		Stage:     stage,
		Message:   message,
		Meta:      meta,
	})
}

// persistSession is best-effort: a failed write never fails the chat.
func (r *Router) persistSession(ctx context.Context, requestID string, req ChatRequest, provider, reply string) {
	userMessage := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			userMessage = req.Messages[i].Content
			break
		}
	}
	session := storage.AgentSession{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		Provider:    provider,
		UserMessage: userMessage,
		Reply:       reply,
	}
	if err := r.store.AppendSession(ctx, session); err != nil {
		r.log.Warn().Err(err).Str("request_id", requestID).Msg("session write failed")
	}
}

func toProviderMessages(messages []Message) []providers.Message {
	out := make([]providers.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, providers.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
