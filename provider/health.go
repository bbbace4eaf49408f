package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// HealthCheckPrompt is the prompt sent to providers for health checks.
	HealthCheckPrompt = "1+1? One digit answer only"

	// healthCheckTimeout bounds a single probe.
	healthCheckTimeout = 30 * time.Second
)

// HealthCheckWithComplete runs a provider health check using the provided
// complete function. Adapters share this instead of reimplementing the
// probe logic.
func HealthCheckWithComplete(ctx context.Context, name, model string, complete func(context.Context, *Request) (*Result, error)) HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req := &Request{
		Prompt:    HealthCheckPrompt,
		Model:     model,
		MaxTokens: 8,
	}

	res, err := complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		return HealthStatus{
			Provider:     name,
			Available:    false,
			ResponseTime: elapsed,
			Error:        err.Error(),
			CheckedAt:    time.Now(),
		}
	}
	if res == nil {
		return HealthStatus{
			Provider:     name,
			Available:    false,
			ResponseTime: elapsed,
			Error:        "empty response",
			CheckedAt:    time.Now(),
		}
	}

	if err := validateHealthResponse(res.Text); err != nil {
		return HealthStatus{
			Provider:     name,
			Available:    false,
			ResponseTime: elapsed,
			Error:        err.Error(),
			CheckedAt:    time.Now(),
		}
	}

	return HealthStatus{
		Provider:     name,
		Available:    true,
		ResponseTime: elapsed,
		CheckedAt:    time.Now(),
	}
}

func validateHealthResponse(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "2" {
		return nil
	}
	if trimmed == "" {
		return fmt.Errorf("unexpected response: empty")
	}
	if len(trimmed) > 120 {
		trimmed = trimmed[:120] + "..."
	}
	return fmt.Errorf("unexpected response: %q", trimmed)
}
