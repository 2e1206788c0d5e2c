package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tannerhall/tinychat/internal/proxy"
	"github.com/tannerhall/tinychat/internal/services"
	"gopkg.in/yaml.v3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg config)
	}{
		{
			name: "openrouter provider",
			yaml: `
port: "8080"
logLevel: debug
proxy:
  refererUrl: https://example.com
  appTitle: Example
llm:
  provider: openrouter
  model: openai/gpt-4o-mini
  apiKey: sk-file
`,
			check: func(t *testing.T, cfg config) {
				if cfg.Port != "8080" {
					t.Errorf("port = %q, want %q", cfg.Port, "8080")
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("logLevel = %q, want %q", cfg.LogLevel, "debug")
				}
				if cfg.Proxy.RefererURL != "https://example.com" {
					t.Errorf("refererUrl = %q, want %q", cfg.Proxy.RefererURL, "https://example.com")
				}
				if cfg.Proxy.AppTitle != "Example" {
					t.Errorf("appTitle = %q, want %q", cfg.Proxy.AppTitle, "Example")
				}
				or, ok := cfg.LLM.(*openRouterConfig)
				if !ok {
					t.Fatalf("llm config = %T, want *openRouterConfig", cfg.LLM)
				}
				if or.Model != "openai/gpt-4o-mini" || or.APIKey != "sk-file" {
					t.Errorf("llm config = %+v, want model and apiKey set", or)
				}
			},
		},
		{
			name: "openai provider",
			yaml: `
llm:
  provider: openai
  model: gpt-4o-mini
  baseUrl: https://api.example.com/v1
  temperature: 0.2
  maxTokens: 256
`,
			check: func(t *testing.T, cfg config) {
				oa, ok := cfg.LLM.(*openAIConfig)
				if !ok {
					t.Fatalf("llm config = %T, want *openAIConfig", cfg.LLM)
				}
				if oa.Model != "gpt-4o-mini" || oa.BaseURL != "https://api.example.com/v1" {
					t.Errorf("llm config = %+v, want model and baseUrl set", oa)
				}
				if oa.Temperature == nil || *oa.Temperature != 0.2 {
					t.Errorf("temperature = %v, want 0.2", oa.Temperature)
				}
				if oa.MaxTokens != 256 {
					t.Errorf("maxTokens = %d, want 256", oa.MaxTokens)
				}
			},
		},
		{
			name: "ollama provider",
			yaml: `
llm:
  provider: ollama
  model: llama3
  host: http://localhost:11434
`,
			check: func(t *testing.T, cfg config) {
				ol, ok := cfg.LLM.(*ollamaConfig)
				if !ok {
					t.Fatalf("llm config = %T, want *ollamaConfig", cfg.LLM)
				}
				if ol.Model != "llama3" || ol.Host != "http://localhost:11434" {
					t.Errorf("llm config = %+v, want model and host set", ol)
				}
			},
		},
		{
			name: "missing llm section defaults to openrouter",
			yaml: `port: "8080"`,
			check: func(t *testing.T, cfg config) {
				if _, ok := cfg.LLM.(openRouterConfig); !ok {
					t.Fatalf("llm config = %T, want openRouterConfig", cfg.LLM)
				}
			},
		},
		{
			name: "missing provider",
			yaml: `
llm:
  model: gpt-4o-mini
`,
			wantErr: true,
		},
		{
			name: "unknown provider",
			yaml: `
llm:
  provider: anthropic
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg config
			err := yaml.NewDecoder(strings.NewReader(tt.yaml)).Decode(&cfg)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg := config{}.applyDefaults()
	if cfg.Port != defaultPort {
		t.Errorf("port = %q, want %q", cfg.Port, defaultPort)
	}
	if cfg.Proxy.RefererURL != proxy.DefaultRefererURL {
		t.Errorf("refererUrl = %q, want %q", cfg.Proxy.RefererURL, proxy.DefaultRefererURL)
	}
	if cfg.Proxy.AppTitle != proxy.DefaultAppTitle {
		t.Errorf("appTitle = %q, want %q", cfg.Proxy.AppTitle, proxy.DefaultAppTitle)
	}

	t.Setenv("PORT", "9999")
	if got := (config{}).applyDefaults().Port; got != "9999" {
		t.Errorf("port = %q, want the PORT env value", got)
	}

	if got := (config{Port: "8080"}).applyDefaults().Port; got != "8080" {
		t.Errorf("port = %q, want the configured value", got)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := (config{LogLevel: tt.in}).logLevel(); got != tt.want {
			t.Errorf("logLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParams(t *testing.T) {
	if got := (BaseLLMConfig{}).params(); got != (services.Params{Temperature: 0.7, MaxTokens: 1000}) {
		t.Errorf("params() = %+v, want the defaults", got)
	}

	zero := float32(0)
	got := BaseLLMConfig{Temperature: &zero, MaxTokens: 50}.params()
	if got != (services.Params{Temperature: 0, MaxTokens: 50}) {
		t.Errorf("params() = %+v, want the explicit values", got)
	}
}

func TestCredential(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	name, value := openRouterConfig{}.credential()
	if name != "OPENROUTER_API_KEY" {
		t.Errorf("credential name = %q, want %q", name, "OPENROUTER_API_KEY")
	}
	if value != "env-key" {
		t.Errorf("credential value = %q, want the env fallback", value)
	}

	if _, value := (openRouterConfig{APIKey: "file-key"}).credential(); value != "file-key" {
		t.Errorf("credential value = %q, want the configured key", value)
	}

	if name, _ := (ollamaConfig{}).credential(); name != "" {
		t.Errorf("credential name = %q, want none for a keyless provider", name)
	}
}

func TestProvider(t *testing.T) {
	logger := testLogger()

	p, err := openRouterConfig{}.provider(proxy.DefaultRefererURL, proxy.DefaultAppTitle, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(services.OpenRouter); !ok {
		t.Errorf("provider = %T, want services.OpenRouter", p)
	}

	if _, err := (openAIConfig{}).provider("", "", logger); err == nil {
		t.Error("openai provider without a model should fail")
	}
	p, err = openAIConfig{BaseLLMConfig: BaseLLMConfig{Model: "gpt-4o-mini"}}.provider("", "", logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(services.OpenAI); !ok {
		t.Errorf("provider = %T, want services.OpenAI", p)
	}

	if _, err := (ollamaConfig{}).provider("", "", logger); err == nil {
		t.Error("ollama provider without a model should fail")
	}
	p, err = ollamaConfig{
		BaseLLMConfig: BaseLLMConfig{Model: "llama3"},
		Host:          "http://localhost:11434",
	}.provider("", "", logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(services.Ollama); !ok {
		t.Errorf("provider = %T, want services.Ollama", p)
	}
}
