// Package provider defines the adapter abstraction for AI completion
// backends.
//
// Each adapter translates the generic completion request into one vendor's
// API call and back, and reports health, model catalog and token estimates.
// Adapters are registered in a Registry and dispatched by provider id; they
// carry no debate state.
package provider

import (
	"context"
	"time"
)

// Capability identifies an optional adapter feature.
type Capability string

const (
	// CapabilityStreaming indicates incremental chunked completions.
	CapabilityStreaming Capability = "streaming"

	// CapabilitySystemPrompt indicates support for a separate system message.
	CapabilitySystemPrompt Capability = "system_prompt"

	// CapabilityTokenEstimate indicates a real tokenizer-backed estimate
	// rather than the heuristic fallback.
	CapabilityTokenEstimate Capability = "token_estimate"
)

// Adapter is the interface implemented by each AI backend.
type Adapter interface {
	// Name returns the provider's unique identifier (e.g. "openai").
	Name() string

	// Complete sends a request and blocks for the full result.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Stream sends a request and returns a channel of chunks. The channel
	// is always terminated: either a Done chunk or an Err chunk arrives
	// before it closes.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)

	// Models returns the model catalog for this provider.
	Models(ctx context.Context) ([]string, error)

	// CheckHealth probes the backend with a trivial completion.
	CheckHealth(ctx context.Context) HealthStatus

	// EstimateTokens estimates the token count of text for a model.
	EstimateTokens(model, text string) int

	// Supports reports whether the adapter implements a capability.
	Supports(c Capability) bool
}

// Request is a generic completion request.
type Request struct {
	// Model is the model identifier. Empty selects the adapter default.
	Model string

	// Prompt is the user-visible input text.
	Prompt string

	// System is an optional system message.
	System string

	// MaxTokens bounds the generated output. Zero means provider default.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64
}

// Result is an adapter's completed response.
type Result struct {
	Text         string        `json:"text"`
	Model        string        `json:"model,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	StopReason   string        `json:"stop_reason,omitempty"`
	Latency      time.Duration `json:"latency,omitempty"`
}

// Chunk is one element of a streamed completion.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// HealthStatus reports the outcome of a health probe.
type HealthStatus struct {
	Provider     string        `json:"provider"`
	Available    bool          `json:"available"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// EstimateTokensHeuristic is the fallback token estimate used by adapters
// without a real tokenizer: roughly one token per four characters.
func EstimateTokensHeuristic(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
