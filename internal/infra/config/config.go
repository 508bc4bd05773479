package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Cache   CacheConfig   `yaml:"cache"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Defaults        GenerationDefaults   `yaml:"defaults"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// GenerationDefaults holds default generation parameters applied when the
// caller leaves them unset.
type GenerationDefaults struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

// ProviderConfig holds settings for a single LLM provider.
// KeyOptional marks backends (local inference servers) that work without an
// API key; all others are excluded from the available set until a key is
// configured.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Type            string        `yaml:"type"`
	DisplayName     string        `yaml:"display_name"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	AvailableModels []string      `yaml:"available_models"`
	KeyOptional     bool          `yaml:"key_optional,omitempty"`
	ConnTimeout     time.Duration `yaml:"conn_timeout"`
	RespTimeout     time.Duration `yaml:"resp_timeout"`
	Pool            PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig holds an optional dispatcher-level request limiter.
// RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults: the five stock providers
// with their public endpoints and model catalogues, a one-hour sliding-TTL
// cache, and text logging to stderr.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Defaults: GenerationDefaults{
				Temperature: 0.7,
				MaxTokens:   1000,
				TopP:        1,
			},
			Providers: []ProviderConfig{
				{
					Name:        "openai",
					Type:        "openai",
					DisplayName: "OpenAI",
					BaseURL:     "https://api.openai.com/v1",
					Model:       "gpt-4",
					AvailableModels: []string{
						"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "gpt-4o",
					},
				},
				{
					Name:        "deepseek",
					Type:        "openai-compat",
					DisplayName: "DeepSeek",
					BaseURL:     "https://api.deepseek.com/v1",
					Model:       "deepseek-chat",
					AvailableModels: []string{
						"deepseek-chat", "deepseek-coder",
					},
				},
				{
					Name:        "anthropic",
					Type:        "anthropic",
					DisplayName: "Anthropic",
					BaseURL:     "https://api.anthropic.com",
					Model:       "claude-3-opus-20240229",
					AvailableModels: []string{
						"claude-2", "claude-instant-1", "claude-3-opus-20240229",
						"claude-3-sonnet-20240229", "claude-3-haiku-20240307",
					},
				},
				{
					Name:        "llama",
					Type:        "openai-compat",
					DisplayName: "Llama",
					BaseURL:     "http://localhost:8000/v1",
					Model:       "llama-3-70b-chat",
					AvailableModels: []string{
						"llama-3-8b-chat", "llama-3-70b-chat",
					},
					KeyOptional: true,
				},
				{
					Name:        "mistral",
					Type:        "mistral",
					DisplayName: "Mistral",
					BaseURL:     "https://api.mistral.ai/v1",
					Model:       "mistral-large-latest",
					AvailableModels: []string{
						"mistral-small", "mistral-medium", "mistral-large-latest",
					},
				},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Cache: CacheConfig{
			Enabled:       true,
			TTL:           time.Hour,
			MaxEntries:    1000,
			SweepInterval: time.Minute,
		},
		Gateway: GatewayConfig{
			Addr: ":3001",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// providerKeyEnv maps stock provider names to their conventional API key
// env vars, used as a fallback when the config file carries no key.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"llama":     "LLAMA_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// ApplyEnvOverrides maps SOLMATE_* env vars (and conventional per-provider
// key vars) to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOLMATE_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("SOLMATE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("SOLMATE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SOLMATE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SOLMATE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SOLMATE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("SOLMATE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true"
	}
	if v := os.Getenv("SOLMATE_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Cache.TTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SOLMATE_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MaxEntries = n
		}
	}

	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if p.APIKey == "" {
			if envName, ok := providerKeyEnv[p.Name]; ok {
				p.APIKey = os.Getenv(envName)
			}
		}
	}
	if v := os.Getenv("LLAMA_API_ENDPOINT"); v != "" {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Name == "llama" {
				cfg.LLM.Providers[i].BaseURL = v
			}
		}
	}
}

// Validate checks the configuration for internal consistency.
func Validate(cfg *Config) error {
	if len(cfg.LLM.Providers) == 0 {
		return fmt.Errorf("config: at least one llm provider is required")
	}

	seen := make(map[string]bool, len(cfg.LLM.Providers))
	defaultFound := false
	for _, p := range cfg.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case "openai", "openai-compat", "anthropic", "mistral":
		default:
			return fmt.Errorf("config: provider %q has unknown type %q", p.Name, p.Type)
		}
		if p.Model == "" {
			return fmt.Errorf("config: provider %q has no default model", p.Name)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			defaultFound = true
		}
	}
	if cfg.LLM.DefaultProvider != "" && !defaultFound {
		return fmt.Errorf("config: default provider %q is not configured", cfg.LLM.DefaultProvider)
	}

	if cfg.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: cache max_entries must be positive")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive")
	}

	return nil
}
