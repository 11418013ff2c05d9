package ai

import (
	"fmt"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/config"
)

// NewProvider builds the provider named in cfg. API-key providers fail
// here rather than on first request when the key is missing.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Provider.Name {
	case "anthropic":
		if cfg.Provider.APIKey == "" {
			return nil, fmt.Errorf("provider anthropic: api key not configured")
		}
		return NewAnthropicProvider(cfg.Provider.APIKey, cfg.Provider.Model), nil
	case "openai":
		if cfg.Provider.APIKey == "" {
			return nil, fmt.Errorf("provider openai: api key not configured")
		}
		return NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.Model), nil
	case "ollama":
		return NewOllamaProvider(cfg.Provider.BaseURL, cfg.Provider.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}
