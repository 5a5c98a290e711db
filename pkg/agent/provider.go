package agent

import (
	"context"
	"fmt"
	"net/http"
)

// LLMProvider is a chat completion backend
type LLMProvider interface {
	// Chat makes one completion call
	Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// ValidateModel checks that the model exists for this account
	ValidateModel(ctx context.Context, model string) error

	// Provider returns the provider name
	Provider() string
}

// ChatRequest contains the request parameters for a chat call
type ChatRequest struct {
	Model      string
	Messages   []Message // system messages included, in order
	JSONObject bool      // ask for a single JSON object reply
	MaxTokens  int
}

// ChatResponse contains the reply text
type ChatResponse struct {
	Content string
	Usage   *TokenUsage
}

// ProviderProfile holds credentials for one provider
type ProviderProfile struct {
	Provider   string       `json:"provider"` // "openai", "anthropic"
	APIKey     string       `json:"api_key"`
	BaseURL    string       `json:"base_url,omitempty"`
	HTTPClient *http.Client `json:"-"`
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a provider for the profile
func (f *ProviderFactory) NewProvider(profile ProviderProfile) (LLMProvider, error) {
	switch profile.Provider {
	case "openai":
		return NewOpenAIProvider(profile), nil
	case "anthropic":
		return NewAnthropicProvider(profile), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
