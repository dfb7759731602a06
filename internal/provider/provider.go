// Package provider builds eino chat models for the plan drafter from the
// provider section of the configuration.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/CR94168/learn-claude-code-cli/pkg/types"
)

// DefaultModel is used when the drafter config names no model.
const DefaultModel = "anthropic/claude-sonnet-4-20250514"

// Provider is an LLM backend with an eino chat model.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Model returns the model ID the chat model was built for.
	Model() string

	// ChatModel returns the eino chat model.
	ChatModel() model.ToolCallingChatModel
}

// Config holds the settings shared by every provider constructor.
type Config struct {
	// ID is the provider identifier. Empty means the constructor's default.
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// New builds the provider named by id. Unknown IDs are treated as
// OpenAI-compatible endpoints and need a base URL.
func New(ctx context.Context, id string, cfg Config) (Provider, error) {
	cfg.ID = id
	switch id {
	case "anthropic", "claude":
		return NewAnthropicProvider(ctx, &cfg)
	case "openai":
		return NewOpenAIProvider(ctx, &cfg)
	case "ark":
		return NewArkProvider(ctx, &cfg)
	case "":
		return nil, fmt.Errorf("no provider in model %q; use provider/model", cfg.Model)
	default:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: baseURL required for OpenAI-compatible providers", id)
		}
		return NewOpenAIProvider(ctx, &cfg)
	}
}

// FromConfig builds the provider for the drafter model in config.
func FromConfig(ctx context.Context, config *types.Config) (Provider, error) {
	modelString := DefaultModel
	maxTokens := 0
	if config.Drafter != nil {
		if config.Drafter.Model != "" {
			modelString = config.Drafter.Model
		}
		maxTokens = config.Drafter.MaxTokens
	}

	providerID, modelID := ParseModelString(modelString)
	pc := config.Provider[providerID]
	if pc.Disable {
		return nil, fmt.Errorf("provider %s is disabled", providerID)
	}

	return New(ctx, providerID, Config{
		APIKey:    pc.APIKey,
		BaseURL:   pc.BaseURL,
		Model:     modelID,
		MaxTokens: maxTokens,
	})
}
