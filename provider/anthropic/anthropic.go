// Package anthropic implements the provider adapter for the Anthropic
// messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/provider"
)

const (
	// DefaultBaseURL is the standard Anthropic endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// DefaultModel is used when a request leaves the model empty.
	DefaultModel = "claude-sonnet-4-20250514"

	apiVersion     = "2023-06-01"
	defaultTimeout = 2 * time.Minute
)

// Config holds adapter construction options.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Models       []string
	Timeout      time.Duration
}

// Adapter talks to the Anthropic messages API.
type Adapter struct {
	apiKey       string
	baseURL      string
	defaultModel string
	models       []string
	client       *http.Client
}

// New creates an adapter from config, applying defaults for empty fields.
func New(cfg Config) *Adapter {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	models := cfg.Models
	if len(models) == 0 {
		models = []string{model}
	}

	return &Adapter{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: model,
		models:       models,
		client:       &http.Client{Timeout: timeout},
	}
}

// Name returns the provider id.
func (a *Adapter) Name() string { return "anthropic" }

// Supports reports adapter capabilities.
func (a *Adapter) Supports(c provider.Capability) bool {
	switch c {
	case provider.CapabilityStreaming, provider.CapabilitySystemPrompt:
		return true
	}
	return false
}

// Models returns the configured model catalog.
func (a *Adapter) Models(ctx context.Context) ([]string, error) {
	out := make([]string, len(a.models))
	copy(out, a.models)
	return out, nil
}

// EstimateTokens uses the shared heuristic; no tokenizer is bundled.
func (a *Adapter) EstimateTokens(model, text string) int {
	return provider.EstimateTokensHeuristic(text)
}

// CheckHealth probes the API with a trivial completion.
func (a *Adapter) CheckHealth(ctx context.Context) provider.HealthStatus {
	return provider.HealthCheckWithComplete(ctx, a.Name(), a.defaultModel, a.Complete)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (a *Adapter) buildRequest(req *provider.Request, stream bool) messagesRequest {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// The messages API requires max_tokens.
		maxTokens = 1024
	}

	return messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Stream:      stream,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	}
}

func (a *Adapter) post(ctx context.Context, body messagesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	return a.client.Do(httpReq)
}

func (a *Adapter) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}

	apiErr := &provider.APIError{
		Provider: a.Name(),
		Status:   resp.StatusCode,
		Message:  msg,
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("retry-after")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

// Complete sends a blocking messages request.
func (a *Adapter) Complete(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	start := time.Now()

	resp, err := a.post(ctx, a.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.apiError(resp)
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &provider.Result{
		Text:         text.String(),
		Model:        parsed.Model,
		Provider:     a.Name(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		StopReason:   parsed.StopReason,
		Latency:      time.Since(start),
	}, nil
}

// Stream sends a streaming messages request.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Chunk, error) {
	resp, err := a.post(ctx, a.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("anthropic stream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, a.apiError(resp)
	}

	out := make(chan provider.Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var ev streamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}

			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text != "" {
					select {
					case out <- provider.Chunk{Text: ev.Delta.Text}:
					case <-ctx.Done():
						out <- provider.Chunk{Err: ctx.Err()}
						return
					}
				}
			case "message_stop":
				out <- provider.Chunk{Done: true}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			out <- provider.Chunk{Err: fmt.Errorf("anthropic stream read failed: %w", err)}
			return
		}
		out <- provider.Chunk{Done: true}
	}()

	return out, nil
}
