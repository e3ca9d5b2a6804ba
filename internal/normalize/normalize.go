// Package normalize extracts a {reply, actions} structure from raw model
// output. Different backends, and the same backend across calls, vary in
// formatting discipline: the JSON object may arrive inside a fenced code
// block, surrounded by prose, or not at all.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"workbench/internal/actions"
)

var (
	ErrEmptyOutput      = errors.New("model returned empty output")
	ErrMalformedActions = errors.New("model actions failed to parse")
)

// DefaultReply is used when the parsed object carries actions but no reply
// text, matching the assistant's own output contract.
const DefaultReply = "已生成建议。"

type Result struct {
	Reply   string
	Actions []actions.Proposal
}

// Normalize extracts the structured response from raw. Priority order:
// fenced ```json block interior, then the first-{ to last-} span, then the
// whole text. If the extracted span parses as an object, reply and actions
// are taken from it (a single malformed action element fails the parse).
// Otherwise the trimmed raw text becomes a plain reply with no actions.
func Normalize(raw string) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, ErrEmptyOutput
	}

	span := extractJSONSpan(raw)

	var obj struct {
		Reply   *string         `json:"reply"`
		Actions json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal([]byte(span), &obj); err == nil {
		res := Result{Reply: DefaultReply, Actions: []actions.Proposal{}}
		if obj.Reply != nil && strings.TrimSpace(*obj.Reply) != "" {
			res.Reply = *obj.Reply
		}
		if len(obj.Actions) > 0 && string(obj.Actions) != "null" {
			var proposals []actions.Proposal
			if err := json.Unmarshal(obj.Actions, &proposals); err != nil {
				return Result{}, fmt.Errorf("%w: %v", ErrMalformedActions, err)
			}
			res.Actions = proposals
		}
		return res, nil
	}

	return Result{Reply: strings.TrimSpace(raw), Actions: []actions.Proposal{}}, nil
}

func extractJSONSpan(content string) string {
	if start := strings.Index(content, "```json"); start >= 0 {
		rest := content[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return strings.TrimSpace(content)
}
