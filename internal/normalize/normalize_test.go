package normalize

import (
	"errors"
	"testing"
)

func TestNormalizeFencedBlockInProse(t *testing.T) {
	raw := "Here is my plan.\n```json\n{\"reply\":\"ok\",\"actions\":[]}\n```\nLet me know."
	res, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Reply != "ok" {
		t.Fatalf("expected reply ok, got %q", res.Reply)
	}
	if len(res.Actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(res.Actions))
	}
}

func TestNormalizeBraceSpan(t *testing.T) {
	raw := `Sure thing: {"reply":"done","actions":[{"id":"a1","type":"todo.create","title":"t","reason":"r","payload":{"title":"buy milk"},"requiresApproval":false}]} bye`
	res, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Reply != "done" {
		t.Fatalf("expected reply done, got %q", res.Reply)
	}
	if len(res.Actions) != 1 || res.Actions[0].Type != "todo.create" {
		t.Fatalf("unexpected actions %#v", res.Actions)
	}
}

func TestNormalizePlainProse(t *testing.T) {
	res, err := Normalize("  I could not produce a plan this time.  ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Reply != "I could not produce a plan this time." {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	if len(res.Actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(res.Actions))
	}
}

func TestNormalizeEmptyOutput(t *testing.T) {
	if _, err := Normalize("   \n\t "); !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("expected ErrEmptyOutput, got %v", err)
	}
}

func TestNormalizeMalformedActionFailsWholeParse(t *testing.T) {
	raw := `{"reply":"hm","actions":[{"id":"a"},"not-an-object"]}`
	if _, err := Normalize(raw); !errors.Is(err, ErrMalformedActions) {
		t.Fatalf("expected ErrMalformedActions, got %v", err)
	}
}

func TestNormalizeDefaultsReply(t *testing.T) {
	res, err := Normalize(`{"actions":[]}`)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if res.Reply != DefaultReply {
		t.Fatalf("expected default reply, got %q", res.Reply)
	}
}
