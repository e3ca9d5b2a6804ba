// Package codexcli invokes a local agent binary over a synchronous
// exec/collect convention. The binary emits newline-delimited JSON events on
// stdout; the adapter scans the stream for a structured payload record and
// degrades to plain text when none is present.
package codexcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"workbench/internal/normalize"
	"workbench/internal/providers"
)

var (
	ErrRuntimeNotFound = errors.New("runtime binary not found")
	ErrRuntimeTimeout  = errors.New("runtime invocation timed out")
	ErrNonZeroExit     = errors.New("runtime exited non-zero")
	ErrEmptyOutput     = errors.New("runtime produced no output")
)

// minTimeout is the floor applied to configured timeouts. Anything shorter
// cannot cover process startup and would misreport healthy binaries as hung.
const minTimeout = time.Second

type Config struct {
	// BinaryPath, when set, is used verbatim and must exist. Otherwise
	// BinaryName is resolved through the executable search path.
	BinaryPath string
	BinaryName string
	Args       []string
	Timeout    time.Duration

	// TemplateReplies are known generic self-introduction outputs. A reply
	// matching one of these with no proposed actions triggers a single
	// reinforced re-invocation.
	TemplateReplies  []string
	ReinforcedSuffix string
}

type Runtime struct {
	cfg Config
}

func New(cfg Config) *Runtime {
	if cfg.BinaryName == "" {
		cfg.BinaryName = "codex"
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{"exec", "--json", "--skip-git-repo-check", "--color", "never"}
	}
	if cfg.Timeout < minTimeout {
		cfg.Timeout = minTimeout
	}
	return &Runtime{cfg: cfg}
}

var _ providers.Provider = (*Runtime)(nil)

func (r *Runtime) Name() string {
	return "local_runtime"
}

// Chat flattens the conversation into a single prompt, invokes the binary and
// applies the boilerplate re-prompt heuristic at most once.
func (r *Runtime) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	prompt := buildPrompt(req)

	text, err := r.Invoke(ctx, prompt)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	if r.isTemplateReply(text) {
		reinforced := prompt
		if strings.TrimSpace(r.cfg.ReinforcedSuffix) != "" {
			reinforced = prompt + "\n\n" + r.cfg.ReinforcedSuffix
		}
		text, err = r.Invoke(ctx, reinforced)
		if err != nil {
			return providers.ChatResponse{}, err
		}
	}

	return providers.ChatResponse{Text: text}, nil
}

// Invoke runs one bounded subprocess call and returns the extracted reply
// text. The child is abandoned on timeout; its eventual exit is not awaited
// past the deadline.
func (r *Runtime) Invoke(ctx context.Context, prompt string) (string, error) {
	bin, err := r.resolveBinary()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, r.cfg.Args...), prompt)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %v", ErrRuntimeTimeout, r.cfg.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w (code %d): %s", ErrNonZeroExit, exitErr.ExitCode(), firstLine(stderr.String()))
		}
		return "", fmt.Errorf("run runtime: %w", err)
	}

	return extractReply(stdout.Bytes())
}

// Probe checks that the binary starts and exits cleanly under the invocation
// timeout. It reports availability only; a failed probe never gates Invoke.
func (r *Runtime) Probe(ctx context.Context) error {
	return r.probe(ctx, "--help")
}

// ProbeMCP checks the richer tool channel. Callers downgrade to the plain
// invocation channel when it fails.
func (r *Runtime) ProbeMCP(ctx context.Context) error {
	return r.probe(ctx, "mcp", "list")
}

func (r *Runtime) probe(ctx context.Context, args ...string) error {
	bin, err := r.resolveBinary()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v", ErrRuntimeTimeout, r.cfg.Timeout)
		}
		return fmt.Errorf("%w: %v", ErrNonZeroExit, err)
	}
	return nil
}

func (r *Runtime) resolveBinary() (string, error) {
	if p := strings.TrimSpace(r.cfg.BinaryPath); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, p)
		}
		return p, nil
	}
	path, err := exec.LookPath(r.cfg.BinaryName)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, r.cfg.BinaryName)
	}
	return path, nil
}

func (r *Runtime) isTemplateReply(text string) bool {
	if len(r.cfg.TemplateReplies) == 0 {
		return false
	}
	res, err := normalize.Normalize(text)
	if err != nil || len(res.Actions) > 0 {
		return false
	}
	reply := strings.ToLower(strings.TrimSpace(res.Reply))
	for _, pattern := range r.cfg.TemplateReplies {
		if strings.HasPrefix(reply, strings.ToLower(strings.TrimSpace(pattern))) {
			return true
		}
	}
	return false
}

type runtimeEvent struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Payload json.RawMessage `json:"payload"`
	Msg     *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"msg"`
	Item *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// extractReply scans NDJSON output, preferring a structured payload record,
// then the last agent-message event, then the raw trimmed stdout.
func extractReply(out []byte) (string, error) {
	var lastAgentText string

	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev runtimeEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if len(ev.Payload) > 0 && payloadHasReply(ev.Payload) {
			return string(ev.Payload), nil
		}
		switch {
		case ev.Type == "agent_message" && ev.Text != "":
			lastAgentText = ev.Text
		case ev.Msg != nil && ev.Msg.Type == "agent_message" && ev.Msg.Message != "":
			lastAgentText = ev.Msg.Message
		case ev.Item != nil && ev.Item.Type == "agent_message" && ev.Item.Text != "":
			lastAgentText = ev.Item.Text
		}
	}

	if lastAgentText != "" {
		return lastAgentText, nil
	}
	if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
		return trimmed, nil
	}
	return "", ErrEmptyOutput
}

func payloadHasReply(raw json.RawMessage) bool {
	var probe struct {
		Reply *string `json:"reply"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Reply != nil
}

func buildPrompt(req providers.ChatRequest) string {
	var b strings.Builder
	if strings.TrimSpace(req.SystemPrompt) != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
