package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets all SHUFFLE_ environment variables for a clean test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "SHUFFLE_") {
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB != 50 {
		t.Errorf("Server.MaxUploadMB = %d, want 50", cfg.Server.MaxUploadMB)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("Session.Store = %q, want memory", cfg.Session.Store)
	}
	if cfg.Session.TTL() != 2*time.Hour {
		t.Errorf("Session.TTL() = %v, want 2h", cfg.Session.TTL())
	}
	if cfg.Cache.URL != "redis://localhost:6379" {
		t.Errorf("Cache.URL = %q, want redis://localhost:6379", cfg.Cache.URL)
	}
	if cfg.AI.Google.Model != "gemini-2.5-flash" {
		t.Errorf("AI.Google.Model = %q, want gemini-2.5-flash", cfg.AI.Google.Model)
	}
	if cfg.AI.Timeout() != 2*time.Minute {
		t.Errorf("AI.Timeout() = %v, want 2m", cfg.AI.Timeout())
	}
	if cfg.Processing.RenderDPI != 144 || cfg.Processing.PreviewDPI != 72 {
		t.Errorf("Processing DPI = %d/%d, want 144/72", cfg.Processing.RenderDPI, cfg.Processing.PreviewDPI)
	}
	if !cfg.Processing.IncludeImages {
		t.Error("Processing.IncludeImages = false, want true")
	}
	if cfg.Export.Title != "Exam Questions" || cfg.Export.AnswerKeyTitle != "Answer Key" || cfg.Export.PDFFont != "" {
		t.Errorf("Export = %+v", cfg.Export)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("SHUFFLE_SERVER_PORT", "9090")
	t.Setenv("SHUFFLE_SERVER_ALLOWED_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("SHUFFLE_SESSION_STORE", "redis")
	t.Setenv("SHUFFLE_SESSION_TTL", "30")
	t.Setenv("SHUFFLE_AI_GOOGLE_API_KEY", "g-key")
	t.Setenv("SHUFFLE_AI_OLLAMA_ENABLED", "TRUE")
	t.Setenv("SHUFFLE_AI_TOKEN_BUDGET", "50000")
	t.Setenv("SHUFFLE_INCLUDE_IMAGES", "0")
	t.Setenv("SHUFFLE_LOG_LEVEL", "debug")
	t.Setenv("SHUFFLE_EXPORT_TITLE", "Sınav Soruları")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("Server.AllowedOrigins = %v", got)
	}
	if cfg.Session.Store != "redis" {
		t.Errorf("Session.Store = %q, want redis", cfg.Session.Store)
	}
	if cfg.Session.TTL() != 30*time.Minute {
		t.Errorf("Session.TTL() = %v, want 30m", cfg.Session.TTL())
	}
	if cfg.AI.Google.APIKey != "g-key" {
		t.Errorf("AI.Google.APIKey = %q, want g-key", cfg.AI.Google.APIKey)
	}
	if !cfg.AI.Ollama.Enabled {
		t.Error("AI.Ollama.Enabled = false, want true")
	}
	if cfg.AI.TokenBudget != 50000 {
		t.Errorf("AI.TokenBudget = %d, want 50000", cfg.AI.TokenBudget)
	}
	if cfg.Processing.IncludeImages {
		t.Error("Processing.IncludeImages = true, want false")
	}
	if cfg.Export.Title != "Sınav Soruları" {
		t.Errorf("Export.Title = %q", cfg.Export.Title)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHUFFLE_SERVER_PORT", "not-a-number")

	cfg, _ := Load()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want fallback 8080", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no provider", func(c *Config) { c.AI.Google.APIKey = "" }, "AI provider"},
		{"bad store", func(c *Config) { c.Session.Store = "postgres" }, "SHUFFLE_SESSION_STORE"},
		{"zero ttl", func(c *Config) { c.Session.TTLMinutes = 0 }, "SHUFFLE_SESSION_TTL"},
		{"zero timeout", func(c *Config) { c.AI.TimeoutSeconds = 0 }, "SHUFFLE_AI_TIMEOUT"},
		{"dpi too high", func(c *Config) { c.Processing.RenderDPI = 1200 }, "SHUFFLE_RENDER_DPI"},
		{"preview dpi too low", func(c *Config) { c.Processing.PreviewDPI = 10 }, "SHUFFLE_PREVIEW_DPI"},
		{"missing pdf font", func(c *Config) { c.Export.PDFFont = "/nonexistent/font.ttf" }, "SHUFFLE_PDF_FONT"},
		{"zero upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "SHUFFLE_SERVER_MAX_UPLOAD_MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SHUFFLE_AI_GOOGLE_API_KEY", "key")
			cfg, _ := Load()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestHasAIProvider(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   bool
	}{
		{"none", func(c *Config) {}, false},
		{"google", func(c *Config) { c.AI.Google.APIKey = "k" }, true},
		{"openai", func(c *Config) { c.AI.OpenAI.APIKey = "k" }, true},
		{"anthropic", func(c *Config) { c.AI.Anthropic.APIKey = "k" }, true},
		{"openrouter", func(c *Config) { c.AI.OpenRouter.APIKey = "k" }, true},
		{"ollama", func(c *Config) { c.AI.Ollama.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.modify(cfg)
			if got := cfg.HasAIProvider(); got != tt.want {
				t.Errorf("HasAIProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}
