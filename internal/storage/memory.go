package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
)

// MemoryStorage is an in-process Storage used by tests and ephemeral
// deployments. It deep-copies on every read and write so callers never
// share internal state.
type MemoryStorage struct {
	mu      sync.RWMutex
	debates map[string]*core.Debate
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{debates: make(map[string]*core.Debate)}
}

func (m *MemoryStorage) Initialize() error { return nil }
func (m *MemoryStorage) Close() error      { return nil }

func (m *MemoryStorage) CreateDebate(debate *core.Debate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.debates[debate.ID]; exists {
		return core.Validationf("debate %s already exists", debate.ID)
	}
	m.debates[debate.ID] = copyDebate(debate)
	return nil
}

func (m *MemoryStorage) GetDebate(id string) (*core.Debate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.debates[id]
	if !ok {
		return nil, core.NotFound("debate", id)
	}
	return copyDebate(d), nil
}

func (m *MemoryStorage) UpdateDebate(debate *core.Debate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.debates[debate.ID]
	if !ok {
		return core.NotFound("debate", debate.ID)
	}
	// Scalar fields only, matching the SQLite row update.
	stored.Topic = debate.Topic
	stored.Format = debate.Format
	stored.Status = debate.Status
	stored.MaxRounds = debate.MaxRounds
	stored.CurrentRound = debate.CurrentRound
	stored.Settings = copySettings(debate.Settings)
	stored.StartedAt = copyTime(debate.StartedAt)
	stored.CompletedAt = copyTime(debate.CompletedAt)
	return nil
}

func (m *MemoryStorage) DeleteDebate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.debates[id]; !ok {
		return core.NotFound("debate", id)
	}
	delete(m.debates, id)
	return nil
}

func (m *MemoryStorage) ListDebates(limit, offset int) ([]*core.DebateSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*core.Debate, 0, len(m.debates))
	for _, d := range m.debates {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	summaries := make([]*core.DebateSummary, 0, len(all))
	for _, d := range all {
		summaries = append(summaries, &core.DebateSummary{
			ID:               d.ID,
			Topic:            d.Topic,
			Format:           d.Format,
			Status:           d.Status,
			MaxRounds:        d.MaxRounds,
			CurrentRound:     d.CurrentRound,
			ParticipantCount: len(d.Participants),
			CreatedAt:        d.CreatedAt,
		})
	}
	return summaries, nil
}

func (m *MemoryStorage) AddParticipant(p *core.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[p.DebateID]
	if !ok {
		return core.NotFound("debate", p.DebateID)
	}
	d.Participants = append(d.Participants, copyParticipant(p))
	return nil
}

func (m *MemoryStorage) UpdateParticipant(p *core.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[p.DebateID]
	if !ok {
		return core.NotFound("debate", p.DebateID)
	}
	for i, existing := range d.Participants {
		if existing.ID == p.ID {
			d.Participants[i] = copyParticipant(p)
			return nil
		}
	}
	return core.NotFound("participant", p.ID)
}

func (m *MemoryStorage) RemoveParticipant(debateID, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[debateID]
	if !ok {
		return core.NotFound("debate", debateID)
	}
	for i, p := range d.Participants {
		if p.ID == participantID {
			d.Participants = append(d.Participants[:i], d.Participants[i+1:]...)
			return nil
		}
	}
	return core.NotFound("participant", participantID)
}

func (m *MemoryStorage) AddRound(r *core.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[r.DebateID]
	if !ok {
		return core.NotFound("debate", r.DebateID)
	}
	d.Rounds = append(d.Rounds, copyRound(r))
	return nil
}

func (m *MemoryStorage) UpdateRound(r *core.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[r.DebateID]
	if !ok {
		return core.NotFound("debate", r.DebateID)
	}
	for i, existing := range d.Rounds {
		if existing.ID == r.ID {
			round := copyRound(r)
			round.Responses = existing.Responses
			d.Rounds[i] = round
			return nil
		}
	}
	return core.NotFound("round", r.ID)
}

func (m *MemoryStorage) AddResponse(debateID string, r *core.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debates[debateID]
	if !ok {
		return core.NotFound("debate", debateID)
	}
	round := d.RoundByID(r.RoundID)
	if round == nil {
		return core.NotFound("round", r.RoundID)
	}
	resp := *r
	round.Responses = append(round.Responses, &resp)
	return nil
}

func copyDebate(d *core.Debate) *core.Debate {
	out := *d
	out.Settings = copySettings(d.Settings)
	out.StartedAt = copyTime(d.StartedAt)
	out.CompletedAt = copyTime(d.CompletedAt)
	out.Participants = make([]*core.Participant, 0, len(d.Participants))
	for _, p := range d.Participants {
		out.Participants = append(out.Participants, copyParticipant(p))
	}
	out.Rounds = make([]*core.Round, 0, len(d.Rounds))
	for _, r := range d.Rounds {
		out.Rounds = append(out.Rounds, copyRoundWithResponses(r))
	}
	return &out
}

func copyParticipant(p *core.Participant) *core.Participant {
	out := *p
	return &out
}

func copyRound(r *core.Round) *core.Round {
	out := *r
	out.StartedAt = copyTime(r.StartedAt)
	out.CompletedAt = copyTime(r.CompletedAt)
	out.Responses = nil
	return &out
}

func copyRoundWithResponses(r *core.Round) *core.Round {
	out := copyRound(r)
	out.Responses = make([]*core.Response, 0, len(r.Responses))
	for _, resp := range r.Responses {
		c := *resp
		out.Responses = append(out.Responses, &c)
	}
	return out
}

func copySettings(s map[string]string) map[string]string {
	if s == nil {
		return nil
	}
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
