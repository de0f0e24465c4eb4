package ai

import (
	"fmt"
	"log/slog"

	"github.com/p-n-ai/exam-shuffler/internal/platform/config"
)

// NewRouterFromConfig registers every configured provider. Gemini comes
// first, then OpenRouter, OpenAI, Anthropic and a local Ollama.
func NewRouterFromConfig(cfg config.AIConfig) (*Router, error) {
	r := NewRouter()

	if cfg.Google.APIKey != "" {
		r.Register("google", NewGoogleProvider(cfg.Google.APIKey, WithGoogleModel(cfg.Google.Model)))
	}
	if cfg.OpenRouter.APIKey != "" {
		r.Register("openrouter", NewOpenRouterProvider(cfg.OpenRouter.APIKey, WithModel(cfg.OpenRouter.Model)))
	}
	if cfg.OpenAI.APIKey != "" {
		r.Register("openai", NewOpenAIProvider(cfg.OpenAI.APIKey, WithModel(cfg.OpenAI.Model)))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := NewAnthropicProvider(cfg.Anthropic.APIKey, WithAnthropicModel(cfg.Anthropic.Model))
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		r.Register("anthropic", p)
	}
	if cfg.Ollama.Enabled {
		r.Register("ollama", NewOllamaProvider(cfg.Ollama.URL, WithModel(cfg.Ollama.Model)))
	}

	if !r.HasProvider() {
		return nil, ErrNoProvider
	}
	slog.Info("AI providers registered", "providers", r.Providers())
	return r, nil
}
