package registry

import (
	"fmt"
	"net/http"

	"workbench/internal/providers"
	"workbench/internal/providers/anthropic_messages"
	"workbench/internal/providers/codexcli"
	"workbench/internal/providers/openai_compat"
)

type BuildOptions struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	APIVersion string
	Runtime    codexcli.Config
	HTTPClient *http.Client
}

// Build maps a per-request provider selection to a concrete client. Inactive
// provider configs never reach this point; the caller passes only the active
// one.
func Build(opts BuildOptions) (providers.Provider, error) {
	switch opts.Provider {
	case "openai":
		return openai_compat.New(openai_compat.Config{
			Name:       "openai",
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			Endpoint:   "chat_completions",
			HTTPClient: opts.HTTPClient,
		}), nil

	case "minimax":
		return openai_compat.New(openai_compat.Config{
			Name:       "minimax",
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			Endpoint:   "chatcompletion_v2",
			HTTPClient: opts.HTTPClient,
		}), nil

	case "anthropic":
		return anthropic_messages.New(anthropic_messages.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			APIVersion: opts.APIVersion,
			HTTPClient: opts.HTTPClient,
		}), nil

	case "local_runtime":
		return codexcli.New(opts.Runtime), nil

	default:
		return nil, fmt.Errorf("%w: %q", providers.ErrUnsupported, opts.Provider)
	}
}
