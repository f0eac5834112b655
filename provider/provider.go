package provider

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/pagesift/config"
	openai_provider "github.com/mohammad-safakhou/pagesift/provider/openai"
)

// Message is one chat message sent to the model
type Message = openai_provider.Message

// Provider is the interface all LLM implementations must satisfy. It is a
// thin completion surface; prompt construction, validation and the repair
// loop live in the extractor so they stay testable with a deterministic fake.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// NewProvider creates an LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return openai_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Provider)
	}
}
