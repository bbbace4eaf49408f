package core

// CompletionRequest is a transient request routed through the gateway to a
// provider adapter. It is never persisted; its semantically relevant fields
// feed the cache fingerprint.
type CompletionRequest struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

// CompletionResult is the provider's answer to a CompletionRequest.
type CompletionResult struct {
	Text       string `json:"text"`
	Usage      Usage  `json:"usage"`
	StopReason string `json:"stop_reason,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Cached     bool   `json:"cached,omitempty"`
}

// Usage holds token accounting for a completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// CompletionChunk is one element of a streamed completion. A terminal chunk
// carries either Done or Err; streams are never silently truncated.
type CompletionChunk struct {
	Text string `json:"text,omitempty"`
	Done bool   `json:"done,omitempty"`
	Err  error  `json:"-"`
}
