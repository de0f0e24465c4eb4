// Package config loads application configuration from environment variables.
// All variables use the SHUFFLE_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Cache      CacheConfig
	AI         AIConfig
	Processing ProcessingConfig
	Export     ExportConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	Host           string
	MaxUploadMB    int
	AllowedOrigins []string
	CookieSecret   string
	SecureCookies  bool
}

// SessionConfig holds session storage settings.
type SessionConfig struct {
	Store      string // "memory" or "redis"
	TTLMinutes int
}

// TTL returns the session lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// CacheConfig holds Dragonfly/Redis connection settings.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for all AI providers.
type AIConfig struct {
	Google         ProviderConfig
	OpenAI         ProviderConfig
	Anthropic      ProviderConfig
	OpenRouter     ProviderConfig
	Ollama         OllamaConfig
	TimeoutSeconds int
	TokenBudget    int64 // per session; 0 means unlimited
}

// Timeout returns the per-page extraction timeout.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ProviderConfig holds settings for a hosted AI provider.
type ProviderConfig struct {
	APIKey string
	Model  string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
	Model   string
}

// ProcessingConfig holds page rendering and extraction defaults.
type ProcessingConfig struct {
	RenderDPI     int
	PreviewDPI    int
	IncludeImages bool
}

// ExportConfig holds document export settings.
type ExportConfig struct {
	Title          string
	AnswerKeyTitle string
	PDFFont        string // path to a UTF-8 TrueType font; empty uses Helvetica
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with SHUFFLE_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("SHUFFLE_SERVER_PORT", 8080),
			Host:           envStr("SHUFFLE_SERVER_HOST", "0.0.0.0"),
			MaxUploadMB:    envInt("SHUFFLE_SERVER_MAX_UPLOAD_MB", 50),
			AllowedOrigins: envList("SHUFFLE_SERVER_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			CookieSecret:   envStr("SHUFFLE_SERVER_COOKIE_SECRET", "change-me-in-production"),
			SecureCookies:  envBool("SHUFFLE_SERVER_SECURE_COOKIES", false),
		},
		Session: SessionConfig{
			Store:      envStr("SHUFFLE_SESSION_STORE", "memory"),
			TTLMinutes: envInt("SHUFFLE_SESSION_TTL", 120),
		},
		Cache: CacheConfig{
			URL: envStr("SHUFFLE_CACHE_URL", "redis://localhost:6379"),
		},
		AI: AIConfig{
			Google: ProviderConfig{
				APIKey: envStr("SHUFFLE_AI_GOOGLE_API_KEY", ""),
				Model:  envStr("SHUFFLE_AI_GOOGLE_MODEL", "gemini-2.5-flash"),
			},
			OpenAI: ProviderConfig{
				APIKey: envStr("SHUFFLE_AI_OPENAI_API_KEY", ""),
				Model:  envStr("SHUFFLE_AI_OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: ProviderConfig{
				APIKey: envStr("SHUFFLE_AI_ANTHROPIC_API_KEY", ""),
				Model:  envStr("SHUFFLE_AI_ANTHROPIC_MODEL", ""),
			},
			OpenRouter: ProviderConfig{
				APIKey: envStr("SHUFFLE_AI_OPENROUTER_API_KEY", ""),
				Model:  envStr("SHUFFLE_AI_OPENROUTER_MODEL", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("SHUFFLE_AI_OLLAMA_ENABLED", false),
				URL:     envStr("SHUFFLE_AI_OLLAMA_URL", "http://localhost:11434"),
				Model:   envStr("SHUFFLE_AI_OLLAMA_MODEL", ""),
			},
			TimeoutSeconds: envInt("SHUFFLE_AI_TIMEOUT", 120),
			TokenBudget:    int64(envInt("SHUFFLE_AI_TOKEN_BUDGET", 0)),
		},
		Processing: ProcessingConfig{
			RenderDPI:     envInt("SHUFFLE_RENDER_DPI", 144),
			PreviewDPI:    envInt("SHUFFLE_PREVIEW_DPI", 72),
			IncludeImages: envBool("SHUFFLE_INCLUDE_IMAGES", true),
		},
		Export: ExportConfig{
			Title:          envStr("SHUFFLE_EXPORT_TITLE", "Exam Questions"),
			AnswerKeyTitle: envStr("SHUFFLE_EXPORT_ANSWER_KEY_TITLE", "Answer Key"),
			PDFFont:        envStr("SHUFFLE_PDF_FONT", ""),
		},
		Log: LogConfig{
			Level:  envStr("SHUFFLE_LOG_LEVEL", "info"),
			Format: envStr("SHUFFLE_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if !c.HasAIProvider() {
		return fmt.Errorf("at least one AI provider must be configured")
	}

	if c.Session.Store != "memory" && c.Session.Store != "redis" {
		return fmt.Errorf("SHUFFLE_SESSION_STORE must be 'memory' or 'redis', got %q", c.Session.Store)
	}

	if c.Session.TTLMinutes <= 0 {
		return fmt.Errorf("SHUFFLE_SESSION_TTL must be positive, got %d", c.Session.TTLMinutes)
	}

	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("SHUFFLE_AI_TIMEOUT must be positive, got %d", c.AI.TimeoutSeconds)
	}

	if c.Processing.RenderDPI < 36 || c.Processing.RenderDPI > 600 {
		return fmt.Errorf("SHUFFLE_RENDER_DPI must be between 36 and 600, got %d", c.Processing.RenderDPI)
	}

	if c.Processing.PreviewDPI < 36 || c.Processing.PreviewDPI > 600 {
		return fmt.Errorf("SHUFFLE_PREVIEW_DPI must be between 36 and 600, got %d", c.Processing.PreviewDPI)
	}

	if c.Export.PDFFont != "" {
		if _, err := os.Stat(c.Export.PDFFont); err != nil {
			return fmt.Errorf("SHUFFLE_PDF_FONT: %w", err)
		}
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("SHUFFLE_SERVER_MAX_UPLOAD_MB must be positive, got %d", c.Server.MaxUploadMB)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.Google.APIKey != "" ||
		c.AI.OpenAI.APIKey != "" ||
		c.AI.Anthropic.APIKey != "" ||
		c.AI.OpenRouter.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
