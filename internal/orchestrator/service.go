// Package orchestrator runs debates: it owns the service operations
// exposed to transports and the concurrent round fan-out that collects
// AI participant responses.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/cache"
	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/format"
	"github.com/arbiterhq/arbiter/internal/lifecycle"
	"github.com/arbiterhq/arbiter/internal/storage"
	"github.com/arbiterhq/arbiter/provider"
)

// CompletionClient is the slice of the provider gateway the orchestrator
// consumes.
type CompletionClient interface {
	Complete(ctx context.Context, req *core.CompletionRequest) (*core.CompletionResult, error)
}

// TimeoutPolicy selects what happens to participants that miss a round
// time limit.
type TimeoutPolicy string

const (
	// TimeoutAbstain records a flagged empty response for the missing
	// participant and lets the round complete.
	TimeoutAbstain TimeoutPolicy = "abstain"

	// TimeoutFail moves the debate to the error state.
	TimeoutFail TimeoutPolicy = "fail"
)

// Options tune debate defaults.
type Options struct {
	DefaultMaxRounds int
	DefaultFormat    string
	RoundTimeLimit   time.Duration // 0 disables round timers
	TimeoutPolicy    TimeoutPolicy
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		DefaultMaxRounds: 3,
		DefaultFormat:    "structured",
		TimeoutPolicy:    TimeoutAbstain,
	}
}

func (o Options) normalized() Options {
	if o.DefaultMaxRounds <= 0 {
		o.DefaultMaxRounds = 3
	}
	if o.DefaultFormat == "" {
		o.DefaultFormat = "structured"
	}
	if o.TimeoutPolicy == "" {
		o.TimeoutPolicy = TimeoutAbstain
	}
	return o
}

// Service implements the debate operations. All status mutations run
// under the per-debate lifecycle lock.
type Service struct {
	store     storage.Storage
	client    CompletionClient
	cache     cache.Completions
	publisher *events.Publisher
	machine   *lifecycle.Machine
	opts      Options
}

// New creates the orchestration service.
func New(store storage.Storage, client CompletionClient, completions cache.Completions, publisher *events.Publisher, opts Options) *Service {
	if completions == nil {
		completions = cache.NewNoop()
	}
	return &Service{
		store:     store,
		client:    client,
		cache:     completions,
		publisher: publisher,
		machine:   lifecycle.NewMachine(),
		opts:      opts.normalized(),
	}
}

// CreateDebate creates a debate and initializes it.
func (s *Service) CreateDebate(ctx context.Context, config core.NewDebateConfig) (*core.Debate, error) {
	if config.Topic == "" {
		return nil, core.Validationf("debate topic is required")
	}
	if config.MaxRounds < 0 {
		return nil, core.Validationf("max rounds must be positive, got %d", config.MaxRounds)
	}

	maxRounds := config.MaxRounds
	if maxRounds == 0 {
		maxRounds = s.opts.DefaultMaxRounds
	}
	debateFormat := config.Format
	if debateFormat == "" {
		debateFormat = s.opts.DefaultFormat
	}
	if !format.Valid(debateFormat) {
		return nil, core.Validationf("unknown debate format %q (available: %s)", debateFormat, strings.Join(format.List(), ", "))
	}

	debate := &core.Debate{
		ID:        core.GenerateID(),
		Topic:     config.Topic,
		Format:    debateFormat,
		Status:    core.StatusCreated,
		MaxRounds: maxRounds,
		Settings:  config.Settings,
		CreatedAt: time.Now(),
	}

	if err := s.machine.Fire(debate, lifecycle.EventInitialize); err != nil {
		return nil, err
	}
	if err := s.store.CreateDebate(debate); err != nil {
		return nil, err
	}

	slog.Info("Debate created", "debate_id", debate.ID, "topic", debate.Topic, "max_rounds", debate.MaxRounds)
	return debate, nil
}

// GetDebate returns the full debate aggregate.
func (s *Service) GetDebate(ctx context.Context, debateID string) (*core.Debate, error) {
	return s.store.GetDebate(debateID)
}

// ListDebates returns debate summaries, newest first.
func (s *Service) ListDebates(ctx context.Context, limit, offset int) ([]*core.DebateSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListDebates(limit, offset)
}

// AddParticipant registers a participant on a debate that has not
// started yet.
func (s *Service) AddParticipant(ctx context.Context, debateID string, config core.NewParticipantConfig) (*core.Participant, error) {
	if config.Name == "" {
		return nil, core.Validationf("participant name is required")
	}
	if config.Kind != core.KindHuman && config.Kind != core.KindAI {
		return nil, core.Validationf("unknown participant kind %q", config.Kind)
	}
	if config.Kind == core.KindAI && (config.Provider == "" || config.Model == "") {
		return nil, core.Validationf("AI participant %s requires provider and model", config.Name)
	}

	var participant *core.Participant
	err := s.machine.WithLock(debateID, func() error {
		debate, err := s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if debate.Status != core.StatusCreated && debate.Status != core.StatusInitialized {
			return core.Validationf("cannot add participants to debate %s in status %s", debateID, debate.Status)
		}
		for _, p := range debate.Participants {
			if p.Name == config.Name {
				return core.Validationf("participant name %q already taken", config.Name)
			}
		}

		participant = &core.Participant{
			ID:       core.GenerateID(),
			DebateID: debateID,
			Name:     config.Name,
			Kind:     config.Kind,
			Provider: config.Provider,
			Model:    config.Model,
			Params:   config.Params,
			Position: len(debate.Participants),
			Active:   true,
		}
		return s.store.AddParticipant(participant)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Participant added", "debate_id", debateID, "participant_id", participant.ID, "name", participant.Name, "kind", participant.Kind)
	return participant, nil
}

// RemoveParticipant removes a participant from a debate that has not
// started yet.
func (s *Service) RemoveParticipant(ctx context.Context, debateID, participantID string) error {
	return s.machine.WithLock(debateID, func() error {
		debate, err := s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if debate.Status != core.StatusCreated && debate.Status != core.StatusInitialized {
			return core.Validationf("cannot remove participants from debate %s in status %s", debateID, debate.Status)
		}
		if debate.Participant(participantID) == nil {
			return core.NotFound("participant", participantID)
		}
		return s.store.RemoveParticipant(debateID, participantID)
	})
}

// StartDebate starts the debate and opens round 1. AI responses for the
// round are collected in the background; subscribe to the debate's
// events to observe progress.
func (s *Service) StartDebate(ctx context.Context, debateID string) (*core.Debate, error) {
	var debate *core.Debate
	var round *core.Round

	err := s.machine.WithLock(debateID, func() error {
		var err error
		debate, err = s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if err := s.machine.Fire(debate, lifecycle.EventStart); err != nil {
			return err
		}
		if err := s.store.UpdateDebate(debate); err != nil {
			return err
		}
		round, err = s.openRound(debate)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Debate started", "debate_id", debateID, "round_id", round.ID)
	s.dispatchRound(debate, round)
	return debate, nil
}

// CancelDebate cancels a debate in any non-terminal state.
func (s *Service) CancelDebate(ctx context.Context, debateID string) (*core.Debate, error) {
	var debate *core.Debate
	err := s.machine.WithLock(debateID, func() error {
		var err error
		debate, err = s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if err := s.machine.Fire(debate, lifecycle.EventCancel); err != nil {
			return err
		}
		return s.store.UpdateDebate(debate)
	})
	if err != nil {
		return nil, err
	}

	s.finish(debate)
	slog.Info("Debate cancelled", "debate_id", debateID)
	return debate, nil
}

// DeleteDebate removes a debate and everything attached to it. An
// in-progress debate must be cancelled first.
func (s *Service) DeleteDebate(ctx context.Context, debateID string) error {
	err := s.machine.WithLock(debateID, func() error {
		debate, err := s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if debate.Status == core.StatusInProgress {
			return core.Validationf("cancel debate %s before deleting it", debateID)
		}
		return s.store.DeleteDebate(debateID)
	})
	if err != nil {
		return err
	}

	s.publisher.Cleanup(debateID)
	s.machine.Release(debateID)
	slog.Info("Debate deleted", "debate_id", debateID)
	return nil
}

// ListRounds returns the debate's rounds with their responses.
func (s *Service) ListRounds(ctx context.Context, debateID string) ([]*core.Round, error) {
	debate, err := s.store.GetDebate(debateID)
	if err != nil {
		return nil, err
	}
	return debate.Rounds, nil
}

// GetResults returns the read model for a concluded debate.
func (s *Service) GetResults(ctx context.Context, debateID string) (*core.DebateResults, error) {
	debate, err := s.store.GetDebate(debateID)
	if err != nil {
		return nil, err
	}
	if !debate.Status.Terminal() {
		return nil, core.Validationf("debate %s has not concluded (status %s)", debateID, debate.Status)
	}
	return &core.DebateResults{
		Debate:       debate,
		Participants: debate.Participants,
		Rounds:       debate.Rounds,
	}, nil
}

// Subscribe returns a live event stream for the debate.
func (s *Service) Subscribe(debateID string) (<-chan *core.Event, func()) {
	return s.publisher.Subscribe(debateID)
}

// estimateTokens approximates the token count of a human submission.
func estimateTokens(text string) int {
	return provider.EstimateTokensHeuristic(text)
}

// finish tears down the per-debate lock and event channel once a debate
// reaches a terminal state.
func (s *Service) finish(debate *core.Debate) {
	s.publisher.Cleanup(debate.ID)
	s.machine.Release(debate.ID)
}
