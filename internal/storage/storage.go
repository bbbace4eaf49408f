// Package storage provides persistence for debates, participants,
// rounds and responses.
package storage

import (
	"github.com/arbiterhq/arbiter/internal/core"
)

// Storage is the persistence contract used by the orchestration engine.
// GetDebate returns the fully hydrated aggregate; lookups for missing
// rows return a core.NotFoundError.
type Storage interface {
	// Initialize sets up the storage (creates tables, etc.)
	Initialize() error

	// Close closes the storage connection.
	Close() error

	// Debate operations
	CreateDebate(debate *core.Debate) error
	GetDebate(id string) (*core.Debate, error)
	UpdateDebate(debate *core.Debate) error
	DeleteDebate(id string) error
	ListDebates(limit, offset int) ([]*core.DebateSummary, error)

	// Participant operations
	AddParticipant(p *core.Participant) error
	UpdateParticipant(p *core.Participant) error
	RemoveParticipant(debateID, participantID string) error

	// Round operations
	AddRound(r *core.Round) error
	UpdateRound(r *core.Round) error

	// Response operations. Responses are immutable once written.
	AddResponse(debateID string, r *core.Response) error
}
