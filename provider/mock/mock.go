// Package mock provides a scriptable in-memory adapter used by tests and
// dry runs.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/provider"
)

// Adapter is a scriptable provider adapter. Responses are served in order
// and wrap around; Fail forces errors until cleared. All methods are safe
// for concurrent use.
type Adapter struct {
	mu        sync.Mutex
	name      string
	responses []string
	err       error
	failLeft  int
	delay     time.Duration
	calls     int
	models    []string
}

// Option configures a mock adapter.
type Option func(*Adapter)

// WithResponses scripts the completion texts served in order.
func WithResponses(responses ...string) Option {
	return func(a *Adapter) { a.responses = responses }
}

// WithModels sets the model catalog.
func WithModels(models ...string) Option {
	return func(a *Adapter) { a.models = models }
}

// WithDelay makes every call sleep before answering.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) { a.delay = d }
}

// New creates a mock adapter with the given provider name.
func New(name string, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		responses: []string{"mock response"},
		models:    []string{"mock-model"},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fail makes subsequent calls return err. Pass nil to restore success.
func (a *Adapter) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	a.failLeft = 0
}

// FailTimes makes exactly the next n calls return err, then recover.
func (a *Adapter) FailTimes(n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	a.failLeft = n
}

// Calls returns how many Complete/Stream invocations reached the adapter.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Name returns the provider id.
func (a *Adapter) Name() string { return a.name }

// Supports reports adapter capabilities.
func (a *Adapter) Supports(c provider.Capability) bool {
	return c == provider.CapabilityStreaming || c == provider.CapabilitySystemPrompt
}

// Models returns the scripted model catalog.
func (a *Adapter) Models(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	out := make([]string, len(a.models))
	copy(out, a.models)
	return out, nil
}

// EstimateTokens uses the shared heuristic.
func (a *Adapter) EstimateTokens(model, text string) int {
	return provider.EstimateTokensHeuristic(text)
}

// CheckHealth reports availability based on the scripted error state.
func (a *Adapter) CheckHealth(ctx context.Context) provider.HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := provider.HealthStatus{
		Provider:  a.name,
		Available: a.err == nil,
		CheckedAt: time.Now(),
	}
	if a.err != nil {
		status.Error = a.err.Error()
	}
	return status
}

func (a *Adapter) next() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		err := a.err
		if a.failLeft > 0 {
			a.failLeft--
			if a.failLeft == 0 {
				a.err = nil
			}
		}
		return "", err
	}
	text := a.responses[(a.calls-1)%len(a.responses)]
	return text, nil
}

// Complete serves the next scripted response.
func (a *Adapter) Complete(ctx context.Context, req *provider.Request) (*provider.Result, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text, err := a.next()
	if err != nil {
		return nil, err
	}

	return &provider.Result{
		Text:         text,
		Model:        req.Model,
		Provider:     a.name,
		InputTokens:  provider.EstimateTokensHeuristic(req.Prompt),
		OutputTokens: provider.EstimateTokensHeuristic(text),
		StopReason:   "end_turn",
	}, nil
}

// Stream serves the next scripted response word by word.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Chunk, error) {
	text, err := a.next()
	if err != nil {
		return nil, err
	}

	out := make(chan provider.Chunk)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(text, " ") {
			select {
			case out <- provider.Chunk{Text: word}:
			case <-ctx.Done():
				out <- provider.Chunk{Err: ctx.Err()}
				return
			}
		}
		out <- provider.Chunk{Done: true}
	}()
	return out, nil
}
