package provider

import (
	"context"
	"testing"
	"time"
)

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Complete(ctx context.Context, req *Request) (*Result, error) {
	return &Result{Text: "2", Provider: s.name}, nil
}
func (s *stubAdapter) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	ch := make(chan Chunk, 1)
	ch <- Chunk{Done: true}
	close(ch)
	return ch, nil
}
func (s *stubAdapter) Models(ctx context.Context) ([]string, error) { return []string{"m"}, nil }
func (s *stubAdapter) CheckHealth(ctx context.Context) HealthStatus {
	return HealthStatus{Provider: s.name, Available: true, CheckedAt: time.Now()}
}
func (s *stubAdapter) EstimateTokens(model, text string) int { return EstimateTokensHeuristic(text) }
func (s *stubAdapter) Supports(c Capability) bool            { return false }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "alpha"})
	r.Register(&stubAdapter{name: "beta"})

	a, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Name() != "alpha" {
		t.Errorf("expected alpha, got %s", a.Name())
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for unregistered provider")
	}

	if !r.Has("beta") {
		t.Error("expected Has(beta) to be true")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("expected Lookup(missing) to report false")
	}

	if got := len(r.Names()); got != 2 {
		t.Errorf("expected 2 names, got %d", got)
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("expected 2 adapters, got %d", got)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	first := &stubAdapter{name: "dup"}
	second := &stubAdapter{name: "dup"}
	r.Register(first)
	r.Register(second)

	a, _ := r.Lookup("dup")
	if a != second {
		t.Error("expected later registration to replace earlier one")
	}
}

func TestEstimateTokensHeuristic(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"ab", 1},
		{"12345678", 2},
		{"this is a longer sentence for estimation", 10},
	}
	for _, tt := range tests {
		if got := EstimateTokensHeuristic(tt.text); got != tt.want {
			t.Errorf("EstimateTokensHeuristic(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
