// Package core contains the core domain types for arbiter.
package core

import (
	"time"
)

// DebateStatus represents the lifecycle state of a debate.
type DebateStatus string

const (
	StatusCreated     DebateStatus = "created"
	StatusInitialized DebateStatus = "initialized"
	StatusInProgress  DebateStatus = "in_progress"
	StatusCompleted   DebateStatus = "completed"
	StatusCancelled   DebateStatus = "cancelled"
	StatusError       DebateStatus = "error"
)

// Terminal reports whether no further transitions are possible from s.
func (s DebateStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// RoundStatus represents the state of a single round.
type RoundStatus string

const (
	RoundPending    RoundStatus = "pending"
	RoundInProgress RoundStatus = "in_progress"
	RoundComplete   RoundStatus = "complete"
)

// ParticipantKind distinguishes human participants from AI-backed ones.
type ParticipantKind string

const (
	KindHuman ParticipantKind = "human"
	KindAI    ParticipantKind = "ai"
)

// Debate is the aggregate root. It owns its participants, rounds and
// responses; all status mutations go through the lifecycle machine.
type Debate struct {
	ID           string            `json:"id"`
	Topic        string            `json:"topic"`
	Format       string            `json:"format"`
	Status       DebateStatus      `json:"status"`
	MaxRounds    int               `json:"max_rounds"`
	CurrentRound int               `json:"current_round"`
	Participants []*Participant    `json:"participants,omitempty"`
	Rounds       []*Round          `json:"rounds,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// Participant is a debate member. AI participants carry the provider and
// model used to generate their responses.
type Participant struct {
	ID       string           `json:"id"`
	DebateID string           `json:"debate_id"`
	Name     string           `json:"name"`
	Kind     ParticipantKind  `json:"kind"`
	Provider string           `json:"provider,omitempty"`
	Model    string           `json:"model,omitempty"`
	Params   GenerationParams `json:"params,omitempty"`
	Position int              `json:"position"`
	Active   bool             `json:"active"`
	Metrics  QualityMetrics   `json:"metrics,omitempty"`
}

// GenerationParams are per-participant completion tuning knobs.
type GenerationParams struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	SystemHint  string  `json:"system_hint,omitempty"`
}

// QualityMetrics accumulates per-participant scoring across rounds.
type QualityMetrics struct {
	ResponseCount int     `json:"response_count,omitempty"`
	TotalTokens   int     `json:"total_tokens,omitempty"`
	AvgLatencyMS  float64 `json:"avg_latency_ms,omitempty"`
}

// Round is one synchronized turn: each active participant contributes one
// response before the round may complete.
type Round struct {
	ID          string        `json:"id"`
	DebateID    string        `json:"debate_id"`
	Number      int           `json:"number"`
	Status      RoundStatus   `json:"status"`
	TimeLimit   time.Duration `json:"time_limit,omitempty"`
	Responses   []*Response   `json:"responses,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Response is a single participant contribution. Immutable once created.
type Response struct {
	ID            string         `json:"id"`
	RoundID       string         `json:"round_id"`
	ParticipantID string         `json:"participant_id"`
	Content       string         `json:"content"`
	TokenCount    int            `json:"token_count,omitempty"`
	Metrics       QualityMetrics `json:"metrics,omitempty"`
	Flagged       bool           `json:"flagged,omitempty"`
	FlagReason    string         `json:"flag_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TimedOut reports whether this response is a timeout placeholder rather
// than real content.
func (r *Response) TimedOut() bool {
	return r.Flagged && r.FlagReason == FlagTimedOut
}

// FlagTimedOut marks a placeholder response recorded when a participant
// missed the round time limit.
const FlagTimedOut = "timed_out"

// DebateSummary is a lightweight representation for listing debates.
type DebateSummary struct {
	ID               string       `json:"id"`
	Topic            string       `json:"topic"`
	Format           string       `json:"format"`
	Status           DebateStatus `json:"status"`
	MaxRounds        int          `json:"max_rounds"`
	CurrentRound     int          `json:"current_round"`
	ParticipantCount int          `json:"participant_count"`
	CreatedAt        time.Time    `json:"created_at"`
}

// NewDebateConfig holds the client-supplied parameters for creating a debate.
type NewDebateConfig struct {
	Topic     string            `json:"topic"`
	Format    string            `json:"format"`
	MaxRounds int               `json:"max_rounds"`
	Settings  map[string]string `json:"settings,omitempty"`
}

// NewParticipantConfig holds the parameters for adding a participant.
type NewParticipantConfig struct {
	Name     string           `json:"name"`
	Kind     ParticipantKind  `json:"kind"`
	Provider string           `json:"provider,omitempty"`
	Model    string           `json:"model,omitempty"`
	Params   GenerationParams `json:"params,omitempty"`
}

// DebateResults is the read model returned once a debate concludes.
type DebateResults struct {
	Debate       *Debate        `json:"debate"`
	Participants []*Participant `json:"participants"`
	Rounds       []*Round       `json:"rounds"`
}

// ActiveParticipants returns the participants expected to act in a round.
func (d *Debate) ActiveParticipants() []*Participant {
	var active []*Participant
	for _, p := range d.Participants {
		if p.Active {
			active = append(active, p)
		}
	}
	return active
}

// Participant returns the participant with the given ID, or nil.
func (d *Debate) Participant(id string) *Participant {
	for _, p := range d.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// RoundByID returns the round with the given ID, or nil.
func (d *Debate) RoundByID(id string) *Round {
	for _, r := range d.Rounds {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// ResponseFrom returns the recorded response from the given participant,
// or nil if none exists yet.
func (r *Round) ResponseFrom(participantID string) *Response {
	for _, resp := range r.Responses {
		if resp.ParticipantID == participantID {
			return resp
		}
	}
	return nil
}
