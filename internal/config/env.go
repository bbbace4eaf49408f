package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadEnv reads a .env file and returns a map of key-value pairs.
// It ignores comments (starting with #) and empty lines.
func LoadEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove inline comments
		if idx := strings.Index(value, " #"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		env[key] = value
	}

	return env, scanner.Err()
}

// ApplyEnvOverrides updates the configuration based on environment variables.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	// Server
	if val, ok := env["SERVER_PORT"]; ok {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	// Defaults
	if val, ok := env["DEFAULT_FORMAT"]; ok {
		cfg.Defaults.Format = val
	}
	if val, ok := env["DEFAULT_MAX_ROUNDS"]; ok {
		if rounds, err := strconv.Atoi(val); err == nil {
			cfg.Defaults.MaxRounds = rounds
		}
	}
	if val, ok := env["TIMEOUT_POLICY"]; ok {
		cfg.Defaults.TimeoutPolicy = val
	}

	// Cache
	if val, ok := env["CACHE_BACKEND"]; ok {
		cfg.Cache.Backend = val
	}
	if val, ok := env["REDIS_ADDR"]; ok {
		cfg.Cache.Redis.Addr = val
	}
	if val, ok := env["REDIS_PASSWORD"]; ok {
		cfg.Cache.Redis.Password = val
	}

	// Providers
	for name, provider := range cfg.Providers {
		upper := strings.ToUpper(name)

		if val, ok := env[fmt.Sprintf("PROVIDER_%s_ENABLED", upper)]; ok {
			if boolVal, err := strconv.ParseBool(val); err == nil {
				provider.Enabled = boolVal
				cfg.Providers[name] = provider
			}
		}

		if val, ok := env[fmt.Sprintf("PROVIDER_%s_API_KEY", upper)]; ok {
			provider.APIKey = val
			cfg.Providers[name] = provider
		}

		if val, ok := env[fmt.Sprintf("PROVIDER_%s_BASE_URL", upper)]; ok {
			provider.BaseURL = val
			cfg.Providers[name] = provider
		}

		// Timeout applies to every provider at once
		if val, ok := env["PROVIDER_TIMEOUT"]; ok {
			if seconds, err := strconv.Atoi(val); err == nil {
				provider.Timeout = Duration(time.Duration(seconds) * time.Second)
				cfg.Providers[name] = provider
			} else if duration, err := time.ParseDuration(val); err == nil {
				provider.Timeout = Duration(duration)
				cfg.Providers[name] = provider
			}
		}
	}
}
