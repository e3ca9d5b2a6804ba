// Package events fans stage transitions out to live subscribers and durable
// sinks. Emission is fire-and-forget for the request path: a slow or failing
// sink never blocks a chat response.
package events

import (
	"time"
)

const (
	StageRuntimeDetect = "runtime_detect"
	StageMCPConnect    = "mcp_connect"
	StageExecFallback  = "exec_fallback"
	StagePlanning      = "planning"
	StageExecuting     = "executing"
	StageError         = "error"
	StageFallback      = "fallback"
	StageCompleted     = "completed"
)

type StageEvent struct {
	ID        string         `json:"id"`
	RequestID string         `json:"requestId"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}
