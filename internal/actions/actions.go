package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action type")
	ErrMalformedPayload  = errors.New("payload is not a JSON object")
)

// MissingFieldError is returned by executor branches when a required payload
// field is absent or blank. Validation of per-field requiredness happens at
// execution time, not at proposal time.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

const (
	TypeTodoCreate            = "todo.create"
	TypeTodoUpdate            = "todo.update"
	TypeTodoDelete            = "todo.delete"
	TypeProjectCreate         = "project.create"
	TypeProjectUpdateProgress = "project.update_progress"
	TypeProjectDelete         = "project.delete"
	TypeEventCreate           = "event.create"
	TypeEventUpdate           = "event.update"
	TypeEventDelete           = "event.delete"
	TypePersonalCreate        = "personal.create"
	TypePersonalUpdate        = "personal.update"
	TypePersonalDelete        = "personal.delete"
	TypeQuerySnapshot         = "query.snapshot"
)

// Types is the closed action vocabulary, in presentation order.
func Types() []string {
	return []string{
		TypeTodoCreate, TypeTodoUpdate, TypeTodoDelete,
		TypeProjectCreate, TypeProjectUpdateProgress, TypeProjectDelete,
		TypeEventCreate, TypeEventUpdate, TypeEventDelete,
		TypePersonalCreate, TypePersonalUpdate, TypePersonalDelete,
		TypeQuerySnapshot,
	}
}

var known = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, t := range Types() {
		m[t] = struct{}{}
	}
	return m
}()

// Proposal is one data mutation the agent wants to perform. The payload stays
// an opaque JSON object until an executor branch decodes it into a typed
// struct; proposals from an untrusted model are accepted structurally and
// rejected semantically only when executed.
type Proposal struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Title            string          `json:"title"`
	Reason           string          `json:"reason"`
	Payload          json.RawMessage `json:"payload"`
	RequiresApproval bool            `json:"requiresApproval"`
}

// Validate checks that typ belongs to the closed vocabulary and that payload
// is structurally a JSON object (or empty). Field-level checks are deferred
// to the executor branch for the type.
func Validate(typ string, payload json.RawMessage) error {
	if _, ok := known[typ]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, typ)
	}
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
