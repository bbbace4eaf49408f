// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/arbiterhq/arbiter/internal/cache"
	"github.com/arbiterhq/arbiter/internal/gateway"
	"github.com/arbiterhq/arbiter/internal/orchestrator"
	"github.com/arbiterhq/arbiter/internal/storage"
	"github.com/arbiterhq/arbiter/provider"
	"github.com/arbiterhq/arbiter/provider/anthropic"
	"github.com/arbiterhq/arbiter/provider/mock"
	"github.com/arbiterhq/arbiter/provider/openai"
)

// Duration wraps time.Duration so YAML values like "30s" or "2m" parse
// directly. Bare integers are treated as seconds.
type Duration time.Duration

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML parses either a duration string or integer seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server,omitempty"`
	Defaults  DefaultsConfig            `yaml:"defaults"`
	Cache     CacheConfig               `yaml:"cache,omitempty"`
	Storage   StorageConfig             `yaml:"storage,omitempty"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultsConfig holds debate defaults.
type DefaultsConfig struct {
	Format         string   `yaml:"format"`
	MaxRounds      int      `yaml:"max_rounds"`
	RoundTimeLimit Duration `yaml:"round_time_limit,omitempty"`
	TimeoutPolicy  string   `yaml:"timeout_policy,omitempty"`
}

// CacheConfig selects the completion cache backend.
type CacheConfig struct {
	Backend string      `yaml:"backend"` // memory, redis or off
	TTL     Duration    `yaml:"ttl,omitempty"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds redis connection settings for the shared cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // sqlite or memory
	Path    string `yaml:"path,omitempty"`
}

// ProviderConfig holds provider-specific settings. APIKey and BaseURL
// expand ${VAR} references against the process environment at load time.
type ProviderConfig struct {
	Type             string   `yaml:"type"` // openai, anthropic or mock
	APIKey           string   `yaml:"api_key,omitempty"`
	BaseURL          string   `yaml:"base_url,omitempty"`
	DefaultModel     string   `yaml:"default_model,omitempty"`
	Models           []string `yaml:"models,omitempty"`
	Timeout          Duration `yaml:"timeout,omitempty"`
	MaxAttempts      int      `yaml:"max_attempts,omitempty"`
	RetryDelay       Duration `yaml:"retry_delay,omitempty"`
	FailureThreshold int      `yaml:"failure_threshold,omitempty"`
	SuccessThreshold int      `yaml:"success_threshold,omitempty"`
	OpenWait         Duration `yaml:"open_wait,omitempty"`
	Enabled          bool     `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8480,
		},
		Defaults: DefaultsConfig{
			Format:        "structured",
			MaxRounds:     3,
			TimeoutPolicy: string(orchestrator.TimeoutAbstain),
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration(30 * time.Minute),
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    storage.DefaultDBPath(),
		},
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:    "openai",
				APIKey:  "${OPENAI_API_KEY}",
				Models:  []string{"gpt-4o", "gpt-4o-mini"},
				Timeout: Duration(2 * time.Minute),
				Enabled: true,
			},
			"anthropic": {
				Type:    "anthropic",
				APIKey:  "${ANTHROPIC_API_KEY}",
				Models:  []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
				Timeout: Duration(2 * time.Minute),
				Enabled: true,
			},
			"mock": {
				Type:    "mock",
				Timeout: Duration(time.Minute),
				Enabled: false,
			},
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, proceed with defaults
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Merge with defaults for any missing providers
	defaultCfg := Default()
	for name, defaultProvider := range defaultCfg.Providers {
		if _, exists := cfg.Providers[name]; !exists {
			cfg.Providers[name] = defaultProvider
		}
	}

	// Apply .env overrides if file exists
	if env, err := LoadEnv(".env"); err == nil {
		ApplyEnvOverrides(cfg, env)
	}

	cfg.expand()
	return cfg, nil
}

// expand resolves ${VAR} references in credential-bearing fields.
func (c *Config) expand() {
	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		c.Providers[name] = p
	}
	c.Cache.Redis.Addr = os.ExpandEnv(c.Cache.Redis.Addr)
	c.Cache.Redis.Password = os.ExpandEnv(c.Cache.Redis.Password)
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// GetProvider returns the configuration for a provider.
func (c *Config) GetProvider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// createAdapter builds the adapter for one configured provider.
func createAdapter(name string, cfg ProviderConfig) (provider.Adapter, error) {
	switch cfg.Type {
	case "openai", "":
		return openai.New(openai.Config{
			Name:         name,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			Models:       cfg.Models,
			Timeout:      cfg.Timeout.Std(),
		}), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			Models:       cfg.Models,
			Timeout:      cfg.Timeout.Std(),
		}), nil
	case "mock":
		return mock.New(name, mock.WithModels(cfg.Models...)), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}

// CreateRegistry builds an adapter registry with every enabled provider.
func (c *Config) CreateRegistry() (*provider.Registry, error) {
	registry := provider.NewRegistry()

	for name, provCfg := range c.Providers {
		if !provCfg.Enabled {
			continue
		}

		a, err := createAdapter(name, provCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
		}

		registry.Register(a)
	}

	return registry, nil
}

// gatewaySettings maps a provider's thresholds onto gateway settings.
func (p ProviderConfig) gatewaySettings() gateway.Settings {
	s := gateway.DefaultSettings()
	if p.FailureThreshold > 0 {
		s.Breaker.FailureThreshold = p.FailureThreshold
	}
	if p.SuccessThreshold > 0 {
		s.Breaker.SuccessThreshold = p.SuccessThreshold
	}
	if p.OpenWait > 0 {
		s.Breaker.OpenWait = p.OpenWait.Std()
	}
	if p.MaxAttempts > 0 {
		s.Retry.MaxAttempts = p.MaxAttempts
	}
	if p.RetryDelay > 0 {
		s.Retry.InitialDelay = p.RetryDelay.Std()
	}
	if p.Timeout > 0 {
		s.CallTimeout = p.Timeout.Std()
	}
	return s
}

// BuildGateway constructs the provider gateway over the registry with
// per-provider resilience settings taken from the configuration.
func (c *Config) BuildGateway(registry *provider.Registry) *gateway.Gateway {
	perProvider := make(map[string]gateway.Settings, len(c.Providers))
	for name, provCfg := range c.Providers {
		if provCfg.Enabled {
			perProvider[name] = provCfg.gatewaySettings()
		}
	}

	return gateway.New(registry, gateway.DefaultSettings(), perProvider)
}

// BuildCache constructs the configured completion cache.
func (c *Config) BuildCache() (cache.Completions, error) {
	switch c.Cache.Backend {
	case "", "memory":
		return cache.NewMemory(c.Cache.TTL.Std()), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		})
		return cache.NewRedis(client, c.Cache.TTL.Std()), nil
	case "off":
		return cache.NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
}

// BuildStorage constructs the configured persistence backend.
func (c *Config) BuildStorage() (storage.Storage, error) {
	switch c.Storage.Backend {
	case "", "sqlite":
		path := c.Storage.Path
		if path == "" {
			path = storage.DefaultDBPath()
		}
		store, err := storage.NewSQLiteStorage(path)
		if err != nil {
			return nil, err
		}
		if err := store.Initialize(); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
}

// OrchestratorOptions maps the configured defaults onto orchestrator
// options.
func (c *Config) OrchestratorOptions() orchestrator.Options {
	opts := orchestrator.DefaultOptions()
	if c.Defaults.Format != "" {
		opts.DefaultFormat = c.Defaults.Format
	}
	if c.Defaults.MaxRounds > 0 {
		opts.DefaultMaxRounds = c.Defaults.MaxRounds
	}
	if c.Defaults.RoundTimeLimit > 0 {
		opts.RoundTimeLimit = c.Defaults.RoundTimeLimit.Std()
	}
	if c.Defaults.TimeoutPolicy != "" {
		opts.TimeoutPolicy = orchestrator.TimeoutPolicy(c.Defaults.TimeoutPolicy)
	}
	return opts
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "arbiter.yaml"
	}
	return filepath.Join(home, ".arbiter", "config.yaml")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# arbiter configuration file
# Place this file at ~/.arbiter/config.yaml

server:
  port: 8480

defaults:
  format: structured        # Default debate format
  max_rounds: 3             # Default rounds per debate
  round_time_limit: 0s      # 0 disables round timers
  timeout_policy: abstain   # abstain or fail when a round times out

cache:
  backend: memory           # memory, redis or off
  ttl: 30m
  # redis:
  #   addr: localhost:6379

storage:
  backend: sqlite           # sqlite or memory
  # path: ~/.arbiter/arbiter.db

providers:
  openai:
    type: openai
    api_key: ${OPENAI_API_KEY}
    default_model: gpt-4o-mini
    models: ["gpt-4o", "gpt-4o-mini"]
    timeout: 2m
    max_attempts: 3         # Total attempts including the first
    failure_threshold: 5    # Consecutive failures that open the circuit
    open_wait: 30s
    enabled: true

  anthropic:
    type: anthropic
    api_key: ${ANTHROPIC_API_KEY}
    default_model: claude-sonnet-4-20250514
    models: ["claude-sonnet-4-20250514", "claude-opus-4-20250514"]
    timeout: 2m
    enabled: true

  # An OpenAI-compatible local backend
  ollama:
    type: openai
    base_url: http://localhost:11434/v1
    models: ["llama3.1"]
    timeout: 5m
    enabled: false
`
	return example
}
