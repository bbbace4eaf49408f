// Package lifecycle owns the debate state machine. It is the only code
// allowed to mutate a debate's status; everything else requests a
// transition and observes the result.
package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
)

// Event is a lifecycle trigger.
type Event string

const (
	EventInitialize   Event = "INITIALIZE"
	EventStart        Event = "START"
	EventAdvanceRound Event = "ADVANCE_ROUND"
	EventComplete     Event = "COMPLETE"
	EventCancel       Event = "CANCEL"
	EventFail         Event = "FAIL"
)

type transitionKey struct {
	from  core.DebateStatus
	event Event
}

// transitions is the exhaustive (state, event) table. Pairs not listed
// here are illegal and rejected with a StateTransitionError.
var transitions = map[transitionKey]core.DebateStatus{
	{core.StatusCreated, EventInitialize}:    core.StatusInitialized,
	{core.StatusInitialized, EventStart}:     core.StatusInProgress,
	{core.StatusInProgress, EventAdvanceRound}: core.StatusInProgress,
	{core.StatusInProgress, EventComplete}:   core.StatusCompleted,

	{core.StatusCreated, EventCancel}:     core.StatusCancelled,
	{core.StatusInitialized, EventCancel}: core.StatusCancelled,
	{core.StatusInProgress, EventCancel}:  core.StatusCancelled,

	{core.StatusCreated, EventFail}:     core.StatusError,
	{core.StatusInitialized, EventFail}: core.StatusError,
	{core.StatusInProgress, EventFail}:  core.StatusError,
}

// CanFire reports whether event is legal in the given status.
func CanFire(status core.DebateStatus, event Event) bool {
	_, ok := transitions[transitionKey{status, event}]
	return ok
}

// Machine applies lifecycle transitions and serializes mutations per
// debate id: no two goroutines mutate the same debate concurrently.
type Machine struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine creates a lifecycle machine.
func NewMachine() *Machine {
	return &Machine{locks: make(map[string]*sync.Mutex)}
}

// lockFor returns the mutex guarding the given debate id.
func (m *Machine) lockFor(debateID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[debateID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[debateID] = l
	}
	return l
}

// WithLock runs fn while holding the per-debate lock. All reads-modify-write
// cycles on a debate aggregate go through here.
func (m *Machine) WithLock(debateID string, fn func() error) error {
	l := m.lockFor(debateID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// Release drops the lock entry for a debate that reached a terminal state.
func (m *Machine) Release(debateID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, debateID)
}

// Fire applies event to the debate, mutating its status and bookkeeping
// fields on success. The caller must hold the per-debate lock (WithLock)
// and is responsible for persisting the mutated aggregate.
func (m *Machine) Fire(d *core.Debate, event Event) error {
	next, ok := transitions[transitionKey{d.Status, event}]
	if !ok {
		return &core.StateTransitionError{From: d.Status, Event: string(event)}
	}

	if err := guard(d, event); err != nil {
		return err
	}

	prev := d.Status
	d.Status = next

	now := time.Now()
	switch event {
	case EventStart:
		d.StartedAt = &now
		d.CurrentRound = 1
	case EventAdvanceRound:
		d.CurrentRound++
	case EventComplete, EventCancel, EventFail:
		d.CompletedAt = &now
	}

	slog.Debug("Lifecycle transition", "debate_id", d.ID, "event", event, "from", prev, "to", d.Status)
	return nil
}

// guard enforces event preconditions beyond the transition table. A failed
// guard leaves the debate untouched.
func guard(d *core.Debate, event Event) error {
	switch event {
	case EventStart:
		if len(d.Participants) < 2 {
			return core.Validationf("debate %s requires at least 2 participants to start, has %d", d.ID, len(d.Participants))
		}
		for _, p := range d.Participants {
			if p.Kind == core.KindAI && (p.Provider == "" || p.Model == "") {
				return core.Validationf("AI participant %s must carry provider and model", p.ID)
			}
		}
	case EventAdvanceRound:
		if d.CurrentRound >= d.MaxRounds {
			return &core.StateTransitionError{From: d.Status, Event: string(event)}
		}
	}
	return nil
}
