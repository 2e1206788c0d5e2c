package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tannerhall/tinychat/internal/proxy"
	"github.com/tannerhall/tinychat/internal/services"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort  = "3000"
	defaultModel = "openai/gpt-3.5-turbo"
)

type llmConfig interface {
	provider(refererURL, appTitle string, logger *slog.Logger) (proxy.Provider, error)
	// credential names the environment variable holding the provider's API
	// key and carries its resolved value. Keyless providers return "".
	credential() (name, value string)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"maxTokens"`
}

type config struct {
	Port     string      `yaml:"port"`
	LogLevel string      `yaml:"logLevel"`
	Proxy    proxyConfig `yaml:"proxy"`
	LLM      llmConfig   `yaml:"llm"`
}

type proxyConfig struct {
	RefererURL string `yaml:"refererUrl"`
	AppTitle   string `yaml:"appTitle"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseUrl"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

// loadConfig reads the optional config file. A missing or empty file leaves
// everything on defaults, so the server runs with nothing but environment
// variables set.
func loadConfig() (config, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return config{}, fmt.Errorf("error getting user config dir: %w", err)
	}

	cfg := config{LLM: openRouterConfig{}}

	cfgFile, err := os.Open(filepath.Join(cfgDir, "tinychat", "config.yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg.applyDefaults(), nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg.applyDefaults(), nil
		}
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	return cfg.applyDefaults(), nil
}

func (c config) applyDefaults() config {
	if c.Port == "" {
		c.Port = os.Getenv("PORT")
	}
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Proxy.RefererURL == "" {
		c.Proxy.RefererURL = proxy.DefaultRefererURL
	}
	if c.Proxy.AppTitle == "" {
		c.Proxy.AppTitle = proxy.DefaultAppTitle
	}
	return c
}

func (c config) logLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port     string         `yaml:"port"`
		LogLevel string         `yaml:"logLevel"`
		Proxy    proxyConfig    `yaml:"proxy"`
		LLM      map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.Proxy = rawConfig.Proxy

	// Without an llm section the default provider applies.
	if rawConfig.LLM == nil {
		c.LLM = openRouterConfig{}
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "openrouter":
		llm = &openRouterConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (b BaseLLMConfig) params() services.Params {
	params := services.Params{Temperature: 0.7, MaxTokens: 1000}
	if b.Temperature != nil {
		params.Temperature = *b.Temperature
	}
	if b.MaxTokens > 0 {
		params.MaxTokens = b.MaxTokens
	}
	return params
}

func (o openRouterConfig) provider(refererURL, appTitle string, logger *slog.Logger) (proxy.Provider, error) {
	model := o.Model
	if model == "" {
		model = defaultModel
	}

	_, apiKey := o.credential()
	return services.NewOpenRouter(apiKey, model, refererURL, appTitle, o.params(), logger), nil
}

func (o openRouterConfig) credential() (string, string) {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return "OPENROUTER_API_KEY", apiKey
}

func (o openAIConfig) provider(_, _ string, logger *slog.Logger) (proxy.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	_, apiKey := o.credential()
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.params(), logger), nil
}

func (o openAIConfig) credential() (string, string) {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return "OPENAI_API_KEY", apiKey
}

func (o ollamaConfig) provider(_, _ string, _ *slog.Logger) (proxy.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, o.params()), nil
}

// Ollama needs no API key, so the proxy skips the credential check.
func (o ollamaConfig) credential() (string, string) {
	return "", ""
}
