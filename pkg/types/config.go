package types

// Config represents the dispatch configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Log level (DEBUG|INFO|WARN|ERROR)
	LogLevel string `json:"logLevel,omitempty"`

	// Extra template directories, searched after the workspace defaults
	CommandDirs []string `json:"commandDirs,omitempty"`

	// Workspace scope settings applied to every command
	Scope *ScopeConfig `json:"scope,omitempty"`

	// Plan drafting
	Drafter *DrafterConfig `json:"drafter,omitempty"`

	// Provider configs, keyed by provider ID ("anthropic", "openai")
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Approval behaviour
	Approval *ApprovalConfig `json:"approval,omitempty"`

	// HTTP server
	Server *ServerConfig `json:"server,omitempty"`

	// Template hot reload
	Watcher *WatcherConfig `json:"watcher,omitempty"`

	// Run task execution
	Run *RunConfig `json:"run,omitempty"`
}

// ScopeConfig holds workspace-wide scope settings.
type ScopeConfig struct {
	// Exclude lists doublestar globs, relative to a scope root, that are never writable.
	Exclude []string `json:"exclude,omitempty"`
}

// DrafterConfig selects how plans are drafted.
type DrafterConfig struct {
	// Type is "document" (default) or "model".
	Type string `json:"type,omitempty"`
	// Model in "provider/model" format, used by the model drafter.
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Nested options
	Options *ProviderOptions `json:"options,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

// ApprovalConfig configures the approval channel.
type ApprovalConfig struct {
	AutoApprove bool `json:"autoApprove,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int   `json:"port,omitempty"`
	CORS *bool `json:"cors,omitempty"`
}

// WatcherConfig configures template hot reload.
type WatcherConfig struct {
	Disabled bool `json:"disabled,omitempty"`
}

// RunConfig configures run tasks.
type RunConfig struct {
	// AllowNested lets run tasks start shells, interpreters and wrappers
	// such as env or xargs, whose writes the scope guard cannot check.
	AllowNested bool `json:"allowNested,omitempty"`
}
