package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions carries caller-supplied generation parameters. Zero values
// mean "use the configured default". Only Temperature, MaxTokens and TopP
// participate in cache keys.
type GenerateOptions struct {
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	APIKey       string  `json:"-"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	TopP         float64 `json:"top_p,omitempty"`
	DisableCache bool    `json:"disable_cache,omitempty"`
}

// GenerateRequest is the provider-agnostic request every backend adapter accepts.
// APIKey, when set, overrides the adapter's configured key for this call only.
type GenerateRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	TopP        float64
	APIKey      string
	Stream      bool
}

// CompletionResponse is the normalized reply every backend adapter produces.
// Content is the only field downstream consumers may rely on; Raw holds the
// provider-native payload for diagnostics.
type CompletionResponse struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	Raw       []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ProviderProfile describes a configured backend. Immutable after startup.
type ProviderProfile struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"name"`
	DefaultModel    string   `json:"default_model"`
	AvailableModels []string `json:"available_models"`
	Endpoint        string   `json:"-"`
	RequiresKey     bool     `json:"-"`
	HasKey          bool     `json:"has_api_key"`
}
