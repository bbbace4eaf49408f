package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/provider"
)

// Settings bundle the per-provider resilience knobs.
type Settings struct {
	Breaker     BreakerConfig
	Retry       RetryConfig
	CallTimeout time.Duration
}

// DefaultSettings returns the resilience defaults applied to providers
// without explicit configuration.
func DefaultSettings() Settings {
	return Settings{
		Breaker:     DefaultBreakerConfig(),
		Retry:       DefaultRetryConfig(),
		CallTimeout: 2 * time.Minute,
	}
}

// Gateway dispatches completion requests to the adapter registered for the
// request's provider id. Every adapter call passes through that provider's
// circuit breaker and retry policy.
type Gateway struct {
	registry *provider.Registry
	defaults Settings
	settings map[string]Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// New creates a gateway over the given registry. perProvider overrides the
// defaults for individual provider ids and may be nil.
func New(registry *provider.Registry, defaults Settings, perProvider map[string]Settings) *Gateway {
	if defaults.CallTimeout <= 0 {
		defaults.CallTimeout = DefaultSettings().CallTimeout
	}
	return &Gateway{
		registry: registry,
		defaults: defaults,
		settings: perProvider,
		breakers: make(map[string]*Breaker),
	}
}

// settingsFor returns the effective settings for a provider.
func (g *Gateway) settingsFor(providerID string) Settings {
	if s, ok := g.settings[providerID]; ok {
		if s.CallTimeout <= 0 {
			s.CallTimeout = g.defaults.CallTimeout
		}
		return s
	}
	return g.defaults
}

// breakerFor returns the provider's breaker, creating it on first use.
func (g *Gateway) breakerFor(providerID string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[providerID]
	if !ok {
		b = NewBreaker(providerID, g.settingsFor(providerID).Breaker)
		g.breakers[providerID] = b
	}
	return b
}

// BreakerState exposes a provider's circuit state for observability.
func (g *Gateway) BreakerState(providerID string) CircuitState {
	return g.breakerFor(providerID).State()
}

// lookup resolves the adapter or fails with ProviderNotFound. No network
// call is attempted for unregistered ids.
func (g *Gateway) lookup(providerID string) (provider.Adapter, error) {
	a, ok := g.registry.Lookup(providerID)
	if !ok {
		return nil, &core.ProviderNotFoundError{Provider: providerID}
	}
	return a, nil
}

func toProviderRequest(req *core.CompletionRequest) *provider.Request {
	return &provider.Request{
		Model:       req.Model,
		Prompt:      req.Prompt,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func toCompletionResult(req *core.CompletionRequest, res *provider.Result) *core.CompletionResult {
	return &core.CompletionResult{
		Text: res.Text,
		Usage: core.Usage{
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			TotalTokens:  res.InputTokens + res.OutputTokens,
		},
		StopReason: res.StopReason,
		LatencyMS:  res.Latency.Milliseconds(),
		Provider:   req.Provider,
		Model:      res.Model,
	}
}

// mapError translates adapter errors into the domain taxonomy.
func mapError(providerID string, err error) error {
	if err == nil {
		return nil
	}
	if provider.IsRateLimited(err) {
		return &core.RateLimitError{Provider: providerID}
	}
	if provider.IsTransient(err) {
		return &core.ProviderUnavailableError{Provider: providerID, Reason: "retries exhausted", Err: err}
	}
	return err
}

// Complete routes a completion request through the provider's resilience
// wrapper to its adapter.
func (g *Gateway) Complete(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResult, error) {
	adapter, err := g.lookup(req.Provider)
	if err != nil {
		return nil, err
	}

	settings := g.settingsFor(req.Provider)
	breaker := g.breakerFor(req.Provider)

	var res *provider.Result
	err = retry(ctx, settings.Retry, func() error {
		if !breaker.Allow() {
			// Open circuit is not transient; stop retrying immediately.
			return &core.ProviderUnavailableError{Provider: req.Provider, Reason: "circuit open"}
		}

		callCtx, cancel := context.WithTimeout(ctx, settings.CallTimeout)
		defer cancel()

		var callErr error
		res, callErr = adapter.Complete(callCtx, toProviderRequest(req))
		if callErr != nil {
			breaker.RecordFailure()
			return callErr
		}
		breaker.RecordSuccess()
		return nil
	})
	if err != nil {
		slog.Debug("Completion failed", "provider", req.Provider, "model", req.Model, "error", err)
		return nil, mapError(req.Provider, err)
	}

	return toCompletionResult(req, res), nil
}

// StreamComplete routes a streaming request. Streams are not retried: a
// partially delivered stream cannot be safely replayed, so transient
// failures surface as a terminal error chunk instead.
func (g *Gateway) StreamComplete(ctx context.Context, req *core.CompletionRequest) (<-chan core.CompletionChunk, error) {
	adapter, err := g.lookup(req.Provider)
	if err != nil {
		return nil, err
	}

	breaker := g.breakerFor(req.Provider)
	if !breaker.Allow() {
		return nil, &core.ProviderUnavailableError{Provider: req.Provider, Reason: "circuit open"}
	}

	ch, err := adapter.Stream(ctx, toProviderRequest(req))
	if err != nil {
		breaker.RecordFailure()
		return nil, mapError(req.Provider, err)
	}

	out := make(chan core.CompletionChunk)
	go func() {
		defer close(out)
		delivered := false
		for chunk := range ch {
			switch {
			case chunk.Err != nil:
				breaker.RecordFailure()
				out <- core.CompletionChunk{Err: mapError(req.Provider, chunk.Err)}
				return
			case chunk.Done:
				breaker.RecordSuccess()
				out <- core.CompletionChunk{Done: true}
				return
			default:
				delivered = true
				out <- core.CompletionChunk{Text: chunk.Text}
			}
		}
		// Adapter closed without a terminal chunk.
		if delivered {
			breaker.RecordSuccess()
		} else {
			breaker.RecordFailure()
		}
		out <- core.CompletionChunk{Done: true}
	}()

	return out, nil
}

// CheckHealth probes one provider.
func (g *Gateway) CheckHealth(ctx context.Context, providerID string) (provider.HealthStatus, error) {
	adapter, err := g.lookup(providerID)
	if err != nil {
		return provider.HealthStatus{}, err
	}
	return adapter.CheckHealth(ctx), nil
}

// CheckAllHealth probes every registered provider concurrently. Individual
// failures appear as unavailable entries; the aggregate call never fails.
func (g *Gateway) CheckAllHealth(ctx context.Context) map[string]provider.HealthStatus {
	adapters := g.registry.List()
	results := make(map[string]provider.HealthStatus, len(adapters))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a provider.Adapter) {
			defer wg.Done()
			status := a.CheckHealth(ctx)
			mu.Lock()
			results[a.Name()] = status
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return results
}

// ListModels returns the model catalog of one provider.
func (g *Gateway) ListModels(ctx context.Context, providerID string) ([]string, error) {
	adapter, err := g.lookup(providerID)
	if err != nil {
		return nil, err
	}
	return adapter.Models(ctx)
}

// ListAllModels aggregates model catalogs across providers, tolerating
// individual adapter failures: a failed provider is simply absent from
// the result.
func (g *Gateway) ListAllModels(ctx context.Context) map[string][]string {
	results := make(map[string][]string)
	for _, a := range g.registry.List() {
		models, err := a.Models(ctx)
		if err != nil {
			slog.Warn("Failed to list models", "provider", a.Name(), "error", err)
			continue
		}
		results[a.Name()] = models
	}
	return results
}

// EstimateTokens estimates the token count of text for a provider's model.
func (g *Gateway) EstimateTokens(providerID, model, text string) (int, error) {
	adapter, err := g.lookup(providerID)
	if err != nil {
		return 0, err
	}
	return adapter.EstimateTokens(model, text), nil
}

// Supports reports whether a provider implements a capability.
func (g *Gateway) Supports(providerID string, c provider.Capability) (bool, error) {
	adapter, err := g.lookup(providerID)
	if err != nil {
		return false, err
	}
	return adapter.Supports(c), nil
}
