package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/provider"
	"github.com/arbiterhq/arbiter/provider/mock"
)

func testSettings() Settings {
	return Settings{
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			OpenWait:         50 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		},
		Retry:       RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		CallTimeout: time.Second,
	}
}

func newTestGateway(adapters ...provider.Adapter) *Gateway {
	registry := provider.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	return New(registry, testSettings(), nil)
}

func completionReq(providerID string) *core.CompletionRequest {
	return &core.CompletionRequest{
		Provider:    providerID,
		Model:       "mock-model",
		Prompt:      "say hi",
		MaxTokens:   64,
		Temperature: 0.7,
	}
}

func TestCompleteRoutesToAdapter(t *testing.T) {
	m := mock.New("mock", mock.WithResponses("routed"))
	g := newTestGateway(m)

	res, err := g.Complete(context.Background(), completionReq("mock"))
	require.NoError(t, err)
	assert.Equal(t, "routed", res.Text)
	assert.Equal(t, "mock", res.Provider)
	assert.Equal(t, 1, m.Calls())
}

func TestCompleteUnregisteredProvider(t *testing.T) {
	m := mock.New("mock")
	g := newTestGateway(m)

	_, err := g.Complete(context.Background(), completionReq("nope"))
	var pnf *core.ProviderNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "nope", pnf.Provider)
	assert.Equal(t, 0, m.Calls(), "no adapter call for unknown provider")
}

func TestCompleteCircuitOpensAndFailsFast(t *testing.T) {
	m := mock.New("mock")
	m.Fail(&provider.APIError{Provider: "mock", Status: 500, Message: "down"})
	g := newTestGateway(m)

	// Threshold is 3 consecutive failures.
	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), completionReq("mock"))
		require.Error(t, err)
	}
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, CircuitOpen, g.BreakerState("mock"))

	// The next call fails fast without reaching the adapter.
	_, err := g.Complete(context.Background(), completionReq("mock"))
	var pu *core.ProviderUnavailableError
	require.ErrorAs(t, err, &pu)
	assert.Equal(t, "circuit open", pu.Reason)
	assert.Equal(t, 3, m.Calls())
}

func TestCompleteHalfOpenTrialAfterWait(t *testing.T) {
	m := mock.New("mock", mock.WithResponses("recovered"))
	m.Fail(&provider.APIError{Provider: "mock", Status: 500, Message: "down"})
	g := newTestGateway(m)

	for i := 0; i < 3; i++ {
		_, _ = g.Complete(context.Background(), completionReq("mock"))
	}
	require.Equal(t, CircuitOpen, g.BreakerState("mock"))

	m.Fail(nil)
	time.Sleep(60 * time.Millisecond)

	res, err := g.Complete(context.Background(), completionReq("mock"))
	require.NoError(t, err, "trial call allowed after open wait")
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, CircuitClosed, g.BreakerState("mock"))
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	m := mock.New("flaky", mock.WithResponses("eventually"))
	registry := provider.NewRegistry()
	registry.Register(m)

	s := testSettings()
	s.Retry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	s.Breaker.FailureThreshold = 10
	g := New(registry, s, nil)

	m.FailTimes(2, &provider.APIError{Provider: "flaky", Status: 503})

	res, err := g.Complete(context.Background(), completionReq("flaky"))
	require.NoError(t, err)
	assert.Equal(t, "eventually", res.Text)
	assert.Equal(t, 3, m.Calls())
}

func TestCompleteRateLimitSurfacedNotRetried(t *testing.T) {
	m := mock.New("mock")
	m.Fail(&provider.APIError{Provider: "mock", Status: 429})
	registry := provider.NewRegistry()
	registry.Register(m)

	s := testSettings()
	s.Retry.MaxAttempts = 5
	g := New(registry, s, nil)

	_, err := g.Complete(context.Background(), completionReq("mock"))
	var rl *core.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 1, m.Calls())
}

func TestCompleteExhaustedRetriesBecomeUnavailable(t *testing.T) {
	m := mock.New("mock")
	m.Fail(&provider.APIError{Provider: "mock", Status: 502})
	registry := provider.NewRegistry()
	registry.Register(m)

	s := testSettings()
	s.Retry = RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	s.Breaker.FailureThreshold = 10
	g := New(registry, s, nil)

	_, err := g.Complete(context.Background(), completionReq("mock"))
	var pu *core.ProviderUnavailableError
	require.ErrorAs(t, err, &pu)
	assert.Equal(t, 2, m.Calls())
}

func TestStreamComplete(t *testing.T) {
	m := mock.New("mock", mock.WithResponses("one two three"))
	g := newTestGateway(m)

	req := completionReq("mock")
	req.Stream = true
	ch, err := g.StreamComplete(context.Background(), req)
	require.NoError(t, err)

	var text string
	var done bool
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Text
		done = done || chunk.Done
	}
	assert.Equal(t, "one two three", text)
	assert.True(t, done)
}

func TestStreamCompleteUnknownProvider(t *testing.T) {
	g := newTestGateway(mock.New("mock"))
	_, err := g.StreamComplete(context.Background(), completionReq("ghost"))
	var pnf *core.ProviderNotFoundError
	require.ErrorAs(t, err, &pnf)
}

func TestCheckAllHealthPartialResults(t *testing.T) {
	healthy := mock.New("healthy")
	broken := mock.New("broken")
	broken.Fail(&provider.APIError{Provider: "broken", Status: 500, Message: "down"})
	g := newTestGateway(healthy, broken)

	results := g.CheckAllHealth(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results["healthy"].Available)
	assert.False(t, results["broken"].Available)
}

func TestListAllModelsToleratesFailures(t *testing.T) {
	ok := mock.New("ok", mock.WithModels("m1", "m2"))
	bad := mock.New("bad")
	bad.Fail(&provider.APIError{Provider: "bad", Status: 500})
	g := newTestGateway(ok, bad)

	results := g.ListAllModels(context.Background())
	assert.Equal(t, []string{"m1", "m2"}, results["ok"])
	_, present := results["bad"]
	assert.False(t, present, "failed provider omitted, aggregate call still succeeds")
}

func TestEstimateTokensAndSupports(t *testing.T) {
	g := newTestGateway(mock.New("mock"))

	n, err := g.EstimateTokens("mock", "mock-model", "some text to estimate")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	ok, err := g.Supports("mock", provider.CapabilityStreaming)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = g.EstimateTokens("ghost", "m", "t")
	var pnf *core.ProviderNotFoundError
	require.ErrorAs(t, err, &pnf)
}
