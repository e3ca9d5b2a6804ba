package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"workbench/internal/actions"
	"workbench/internal/agent"
	"workbench/internal/events"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}

	var req agent.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat request: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	resp := s.router.Chat(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

type executeRequest struct {
	RequestID string           `json:"requestId"`
	Action    actions.Proposal `json:"action"`
}

type executeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid execute request: "+err.Error())
		return
	}
	if req.Action.Type == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	res, err := s.exec.ExecuteOne(r.Context(), req.RequestID, req.Action)
	if err != nil {
		s.log.Error().Err(err).Msg("action execution failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Success: res.Success, Message: res.Message})
}

type executeBatchRequest struct {
	RequestID string             `json:"requestId"`
	Actions   []actions.Proposal `json:"actions"`
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req executeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch request: "+err.Error())
		return
	}

	res, err := s.exec.ExecuteBatch(r.Context(), req.RequestID, req.Actions)
	if err != nil {
		s.log.Error().Err(err).Msg("batch execution failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleEvents streams stage events for one request over SSE. Persisted
// history is replayed first, then live events until the stream completes or
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestId")
	if requestID == "" {
		writeError(w, http.StatusBadRequest, "requestId is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	live, cancel := s.bus.Subscribe(requestID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	seen := map[string]bool{}
	history, err := s.store.ListStageEvents(r.Context(), requestID)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("event history read failed")
	}
	for _, rec := range history {
		ev := events.StageEvent{
			ID:        rec.ID,
			RequestID: rec.RequestID,
			Stage:     rec.Stage,
			Message:   rec.Message,
			At:        rec.CreatedAt,
		}
		if rec.MetaJSON != "" {
			_ = json.Unmarshal([]byte(rec.MetaJSON), &ev.Meta)
		}
		writeSSE(w, ev)
		seen[ev.ID] = true
		if ev.Stage == events.StageCompleted {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			if seen[ev.ID] {
				continue
			}
			writeSSE(w, ev)
			flusher.Flush()
			if ev.Stage == events.StageCompleted {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.StageEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Stage, payload)
}

type capabilities struct {
	ActionTypes []string      `json:"actionTypes"`
	Providers   []string      `json:"providers"`
	Runtime     runtimeStatus `json:"localRuntime"`
}

type runtimeStatus struct {
	Available bool `json:"available"`
	MCP       bool `json:"mcp"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := capabilities{
		ActionTypes: actions.Types(),
		Providers:   []string{"openai", "anthropic", "minimax", "local_runtime"},
	}

	if s.runtime != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.runtime.Probe(ctx); err == nil {
			caps.Runtime.Available = true
			caps.Runtime.MCP = s.runtime.ProbeMCP(ctx) == nil
		}
	}

	writeJSON(w, http.StatusOK, caps)
}
