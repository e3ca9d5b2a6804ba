// Package httpapi exposes the agent over HTTP: chat, action execution,
// stage-event streaming and capability discovery.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"workbench/internal/agent"
	"workbench/internal/events"
	"workbench/internal/executor"
	"workbench/internal/limiter"
	"workbench/internal/providers/codexcli"
	"workbench/internal/storage"
)

type Server struct {
	router  *agent.Router
	exec    *executor.Executor
	store   *storage.Store
	bus     *events.Broadcaster
	runtime *codexcli.Runtime
	limiter *limiter.RateLimiter
	log     zerolog.Logger
}

type Config struct {
	Router  *agent.Router
	Exec    *executor.Executor
	Store   *storage.Store
	Bus     *events.Broadcaster
	Runtime *codexcli.Runtime
	Limiter *limiter.RateLimiter
	Logger  zerolog.Logger
}

func New(cfg Config) *Server {
	return &Server{
		router:  cfg.Router,
		exec:    cfg.Exec,
		store:   cfg.Store,
		bus:     cfg.Bus,
		runtime: cfg.Runtime,
		limiter: cfg.Limiter,
		log:     cfg.Logger,
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/agent/chat", s.handleChat)
	mux.HandleFunc("POST /api/agent/actions/execute", s.handleExecute)
	mux.HandleFunc("POST /api/agent/actions/execute-batch", s.handleExecuteBatch)
	mux.HandleFunc("GET /api/agent/events/{requestId}", s.handleEvents)
	mux.HandleFunc("GET /api/agent/capabilities", s.handleCapabilities)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// clientID keys the rate limiter: an explicit header when the caller sets
// one, else the remote host.
func clientID(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, resetAt, err := s.limiter.Allow(r.Context(), clientID(r), time.Now())
	if err != nil {
		// The limiter is advisory; losing redis must not take chat down.
		s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		return true
	}
	if !allowed {
		w.Header().Set("Retry-After", resetAt.UTC().Format(http.TimeFormat))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}
