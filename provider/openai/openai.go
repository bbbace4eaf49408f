// Package openai implements the provider adapter for OpenAI-compatible
// chat completion APIs. Many hosted backends expose this wire format, so
// the adapter is configurable by base URL, not hardwired to one vendor.
package openai

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
	// DefaultBaseURL is the standard OpenAI endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when a request leaves the model empty.
	DefaultModel = "gpt-4o-mini"

	defaultTimeout = 2 * time.Minute
)

// Config holds adapter construction options.
type Config struct {
	// Name overrides the provider id (default "openai"). Useful when
	// registering several OpenAI-compatible backends side by side.
	Name string

	APIKey       string
	BaseURL      string
	DefaultModel string
	Models       []string
	Timeout      time.Duration
}

// Adapter talks to an OpenAI-compatible chat completions API.
type Adapter struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	models       []string
	client       *http.Client
}

// New creates an adapter from config, applying defaults for empty fields.
func New(cfg Config) *Adapter {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
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
		name:         name,
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: model,
		models:       models,
		client:       &http.Client{Timeout: timeout},
	}
}

// Name returns the provider id.
func (a *Adapter) Name() string { return a.name }

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
	return provider.HealthCheckWithComplete(ctx, a.name, a.defaultModel, a.Complete)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (a *Adapter) buildRequest(req *provider.Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	return chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (a *Adapter) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	return a.client.Do(httpReq)
}

// apiError converts a non-2xx response into an *provider.APIError.
func (a *Adapter) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}

	apiErr := &provider.APIError{
		Provider: a.name,
		Status:   resp.StatusCode,
		Message:  msg,
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

// Complete sends a blocking chat completion request.
func (a *Adapter) Complete(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	start := time.Now()

	resp, err := a.post(ctx, a.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.apiError(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", a.name, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s response contained no choices", a.name)
	}

	choice := parsed.Choices[0]
	return &provider.Result{
		Text:         choice.Message.Content,
		Model:        parsed.Model,
		Provider:     a.name,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		StopReason:   choice.FinishReason,
		Latency:      time.Since(start),
	}, nil
}

// Stream sends a streaming chat completion request. The returned channel
// always terminates with either a Done chunk or an Err chunk.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Chunk, error) {
	resp, err := a.post(ctx, a.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("%s stream request failed: %w", a.name, err)
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
			if data == "[DONE]" {
				out <- provider.Chunk{Done: true}
				return
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				select {
				case out <- provider.Chunk{Text: text}:
				case <-ctx.Done():
					out <- provider.Chunk{Err: ctx.Err()}
					return
				}
			}
			if chunk.Choices[0].FinishReason != "" {
				out <- provider.Chunk{Done: true}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			out <- provider.Chunk{Err: fmt.Errorf("%s stream read failed: %w", a.name, err)}
			return
		}
		// Stream ended without an explicit [DONE] marker; still terminate cleanly.
		out <- provider.Chunk{Done: true}
	}()

	return out, nil
}
