package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	config    *Config
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(ctx context.Context, config *Config) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	// Claude requires an explicit output budget.
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     config.Model,
		MaxTokens: config.MaxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}

	return &AnthropicProvider{chatModel: chatModel, config: config}, nil
}

// ID returns the provider identifier.
func (p *AnthropicProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "anthropic"
}

// Model returns the model ID.
func (p *AnthropicProvider) Model() string { return p.config.Model }

// ChatModel returns the eino chat model.
func (p *AnthropicProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }
