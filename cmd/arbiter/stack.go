package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/gateway"
	"github.com/arbiterhq/arbiter/internal/orchestrator"
	"github.com/arbiterhq/arbiter/internal/storage"
	"github.com/arbiterhq/arbiter/provider"
)

func setupLogging(debug bool) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}
	if debug {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}

// stack bundles the wired service layer for CLI commands.
type stack struct {
	store     storage.Storage
	registry  *provider.Registry
	gateway   *gateway.Gateway
	publisher *events.Publisher
	service   *orchestrator.Service
}

func buildStack() (*stack, error) {
	store, err := appConfig.BuildStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry, err := appConfig.CreateRegistry()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	completions, err := appConfig.BuildCache()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	gw := appConfig.BuildGateway(registry)
	publisher := events.NewPublisher()
	service := orchestrator.New(store, gw, completions, publisher, appConfig.OrchestratorOptions())

	return &stack{
		store:     store,
		registry:  registry,
		gateway:   gw,
		publisher: publisher,
		service:   service,
	}, nil
}

func (s *stack) Close() {
	s.publisher.Close()
	s.store.Close()
}

// resolveDebateID accepts a full debate ID or a unique prefix.
func (s *stack) resolveDebateID(ctx context.Context, prefix string) (string, error) {
	if _, err := s.service.GetDebate(ctx, prefix); err == nil {
		return prefix, nil
	}

	debates, err := s.service.ListDebates(ctx, 100, 0)
	if err != nil {
		return "", err
	}
	for _, d := range debates {
		if strings.HasPrefix(d.ID, prefix) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("debate not found: %s", prefix)
}
