package actions

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateKnownTypes(t *testing.T) {
	for _, typ := range Types() {
		if err := Validate(typ, json.RawMessage(`{"title":"x"}`)); err != nil {
			t.Fatalf("validate %s: %v", typ, err)
		}
	}
}

func TestValidateUnsupportedType(t *testing.T) {
	err := Validate("todo.purge", json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Fatalf("expected ErrUnsupportedAction, got %v", err)
	}
}

func TestValidateMalformedPayload(t *testing.T) {
	err := Validate(TypeTodoCreate, json.RawMessage(`[1,2]`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestValidateEmptyPayloadAllowed(t *testing.T) {
	if err := Validate(TypeQuerySnapshot, nil); err != nil {
		t.Fatalf("empty payload should pass structural validation: %v", err)
	}
	if err := Validate(TypeQuerySnapshot, json.RawMessage("null")); err != nil {
		t.Fatalf("null payload should pass structural validation: %v", err)
	}
}

func TestDecodePayloadUpdateFields(t *testing.T) {
	var upd TodoUpdate
	raw := json.RawMessage(`{"id":"42","completed":true}`)
	if err := DecodePayload(raw, &upd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if upd.ID != "42" {
		t.Fatalf("expected id 42, got %q", upd.ID)
	}
	if upd.Completed == nil || !*upd.Completed {
		t.Fatalf("expected completed=true, got %#v", upd.Completed)
	}
	if upd.Title != nil {
		t.Fatalf("absent title must stay nil, got %q", *upd.Title)
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("title", "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := RequireString("title", "  ")
	var missing MissingFieldError
	if !errors.As(err, &missing) || missing.Field != "title" {
		t.Fatalf("expected MissingFieldError{title}, got %v", err)
	}
}
