package actions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Typed payload structs, one per executor branch. A proposal payload is
// decoded into one of these immediately after Validate; loosely-typed JSON
// never travels deeper than this layer. Pointer fields distinguish "absent"
// from zero values on update actions.

type TodoCreate struct {
	Title    string  `json:"title"`
	Priority *string `json:"priority"`
}

type TodoUpdate struct {
	ID        string  `json:"id"`
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	Priority  *string `json:"priority"`
}

type ProjectCreate struct {
	Title    string `json:"title"`
	Deadline string `json:"deadline"`
}

type ProjectUpdateProgress struct {
	ID       string `json:"id"`
	Progress *int   `json:"progress"`
}

type EventCreate struct {
	Title string  `json:"title"`
	Date  string  `json:"date"`
	Color *string `json:"color"`
	Note  *string `json:"note"`
}

type EventUpdate struct {
	ID    string  `json:"id"`
	Title *string `json:"title"`
	Date  *string `json:"date"`
	Color *string `json:"color"`
	Note  *string `json:"note"`
}

type PersonalCreate struct {
	Title    string   `json:"title"`
	Budget   *float64 `json:"budget"`
	Date     *string  `json:"date"`
	Location *string  `json:"location"`
	Note     *string  `json:"note"`
}

type PersonalUpdate struct {
	ID       string   `json:"id"`
	Title    *string  `json:"title"`
	Budget   *float64 `json:"budget"`
	Date     *string  `json:"date"`
	Location *string  `json:"location"`
	Note     *string  `json:"note"`
}

// Delete carries the row id for the three delete actions.
type Delete struct {
	ID string `json:"id"`
}

// DecodePayload unmarshals payload into dst and rejects anything that is not
// an object.
func DecodePayload(payload json.RawMessage, dst any) error {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		trimmed = "{}"
	}
	if err := json.Unmarshal([]byte(trimmed), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// RequireString enforces a non-blank required field after decoding.
func RequireString(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return MissingFieldError{Field: name}
	}
	return nil
}
