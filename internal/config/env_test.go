package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `
# Comment
KEY1=value1
KEY2="value 2"
KEY3='value 3'
KEY4=value 4 # inline comment
EMPTY=
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create env file: %v", err)
	}

	env, err := LoadEnv(envFile)
	if err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"KEY1", "value1"},
		{"KEY2", "value 2"},
		{"KEY3", "value 3"},
		{"KEY4", "value 4"},
		{"EMPTY", ""},
	}

	for _, tt := range tests {
		if got, ok := env[tt.key]; !ok || got != tt.expected {
			t.Errorf("expected %s=%q, got %q (exists=%v)", tt.key, tt.expected, got, ok)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	env := map[string]string{
		"DEFAULT_FORMAT":           "adversarial",
		"DEFAULT_MAX_ROUNDS":       "5",
		"PROVIDER_OPENAI_ENABLED":  "false",
		"PROVIDER_OPENAI_API_KEY":  "sk-test",
		"PROVIDER_OLLAMA_BASE_URL": "http://localhost:11434/v1",
		"PROVIDER_TIMEOUT":         "60",
		"CACHE_BACKEND":            "redis",
		"REDIS_ADDR":               "localhost:6380",
		"SERVER_PORT":              "9090",
	}

	ApplyEnvOverrides(cfg, env)

	if cfg.Defaults.Format != "adversarial" {
		t.Errorf("expected format adversarial, got %s", cfg.Defaults.Format)
	}
	if cfg.Defaults.MaxRounds != 5 {
		t.Errorf("expected max rounds 5, got %d", cfg.Defaults.MaxRounds)
	}
	if cfg.Providers["openai"].Enabled {
		t.Errorf("expected openai disabled")
	}
	if cfg.Providers["openai"].APIKey != "sk-test" {
		t.Errorf("expected api key override, got %q", cfg.Providers["openai"].APIKey)
	}
	if cfg.Providers["anthropic"].Timeout != Duration(60*time.Second) {
		t.Errorf("expected timeout 60s, got %v", cfg.Providers["anthropic"].Timeout)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected cache backend redis, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.Redis.Addr != "localhost:6380" {
		t.Errorf("expected redis addr override, got %s", cfg.Cache.Redis.Addr)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
}
