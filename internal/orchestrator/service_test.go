package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/cache"
	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/gateway"
	"github.com/arbiterhq/arbiter/internal/storage"
	"github.com/arbiterhq/arbiter/provider"
	"github.com/arbiterhq/arbiter/provider/mock"
)

type fixture struct {
	service *Service
	store   *storage.MemoryStorage
	adapter *mock.Adapter
	cache   *cache.Memory
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	adapter := mock.New("mockai", mock.WithResponses(
		"I argue in favor, on cost grounds.",
		"I argue against, on reliability grounds.",
		"Extending my earlier cost argument.",
		"Reliability concerns remain unaddressed.",
	))
	registry := provider.NewRegistry()
	registry.Register(adapter)

	store := storage.NewMemoryStorage()
	completions := cache.NewMemory(time.Minute)
	t.Cleanup(func() { completions.Close() })
	publisher := events.NewPublisher()
	t.Cleanup(publisher.Close)

	gw := gateway.New(registry, gateway.DefaultSettings(), nil)
	return &fixture{
		service: New(store, gw, completions, publisher, opts),
		store:   store,
		adapter: adapter,
		cache:   completions,
	}
}

func (f *fixture) createDebate(t *testing.T, maxRounds int) *core.Debate {
	t.Helper()
	debate, err := f.service.CreateDebate(context.Background(), core.NewDebateConfig{
		Topic:     "Should the grid rely on nuclear power?",
		MaxRounds: maxRounds,
	})
	require.NoError(t, err)
	return debate
}

func (f *fixture) addAI(t *testing.T, debateID, name string) *core.Participant {
	t.Helper()
	p, err := f.service.AddParticipant(context.Background(), debateID, core.NewParticipantConfig{
		Name:     name,
		Kind:     core.KindAI,
		Provider: "mockai",
		Model:    "mock-small",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) addHuman(t *testing.T, debateID, name string) *core.Participant {
	t.Helper()
	p, err := f.service.AddParticipant(context.Background(), debateID, core.NewParticipantConfig{
		Name: name,
		Kind: core.KindHuman,
	})
	require.NoError(t, err)
	return p
}

// drainUntilClosed reads every event until the stream completes, failing
// the test if it does not complete within the deadline.
func drainUntilClosed(t *testing.T, ch <-chan *core.Event) []*core.Event {
	t.Helper()
	var got []*core.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("event stream did not complete; saw %d events", len(got))
		}
	}
}

func countEvents(evs []*core.Event, typ core.EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestCreateDebateDefaultsAndValidation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	_, err := f.service.CreateDebate(ctx, core.NewDebateConfig{})
	assert.True(t, core.IsValidation(err))

	debate := f.createDebate(t, 0)
	assert.Equal(t, core.StatusInitialized, debate.Status)
	assert.Equal(t, 3, debate.MaxRounds)
	assert.Equal(t, "structured", debate.Format)

	stored, err := f.service.GetDebate(ctx, debate.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusInitialized, stored.Status)
}

func TestAddParticipantValidation(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)

	_, err := f.service.AddParticipant(ctx, debate.ID, core.NewParticipantConfig{Kind: core.KindHuman})
	assert.True(t, core.IsValidation(err), "missing name")

	_, err = f.service.AddParticipant(ctx, debate.ID, core.NewParticipantConfig{Name: "Bot", Kind: core.KindAI})
	assert.True(t, core.IsValidation(err), "AI without provider/model")

	f.addHuman(t, debate.ID, "Alice")
	_, err = f.service.AddParticipant(ctx, debate.ID, core.NewParticipantConfig{Name: "Alice", Kind: core.KindHuman})
	assert.True(t, core.IsValidation(err), "duplicate name")

	_, err = f.service.AddParticipant(ctx, "missing", core.NewParticipantConfig{Name: "Bob", Kind: core.KindHuman})
	assert.True(t, core.IsNotFound(err))
}

func TestStartRequiresTwoParticipants(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)
	f.addHuman(t, debate.ID, "Alice")

	_, err := f.service.StartDebate(ctx, debate.ID)
	assert.True(t, core.IsValidation(err))

	stored, _ := f.service.GetDebate(ctx, debate.ID)
	assert.Equal(t, core.StatusInitialized, stored.Status)
}

func TestEndToEndTwoAIParticipantsSingleRound(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)
	f.addAI(t, debate.ID, "Advocate")
	f.addAI(t, debate.ID, "Skeptic")

	stream, cancel := f.service.Subscribe(debate.ID)
	defer cancel()

	_, err := f.service.StartDebate(ctx, debate.ID)
	require.NoError(t, err)

	evs := drainUntilClosed(t, stream)
	assert.Equal(t, 1, countEvents(evs, core.EventRoundStarted))
	assert.Equal(t, 2, countEvents(evs, core.EventResponseSubmitted))
	assert.Equal(t, 1, countEvents(evs, core.EventRoundCompleted))
	assert.Equal(t, 1, countEvents(evs, core.EventDebateCompleted), "completion must fire exactly once")

	stored, err := f.service.GetDebate(ctx, debate.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, stored.Status)
	require.Len(t, stored.Rounds, 1)
	assert.Equal(t, core.RoundComplete, stored.Rounds[0].Status)
	assert.Len(t, stored.Rounds[0].Responses, 2)
	assert.Equal(t, 2, f.adapter.Calls())
}

func TestEndToEndMultipleRounds(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 2)
	f.addAI(t, debate.ID, "Advocate")
	f.addAI(t, debate.ID, "Skeptic")

	stream, cancel := f.service.Subscribe(debate.ID)
	defer cancel()

	_, err := f.service.StartDebate(ctx, debate.ID)
	require.NoError(t, err)

	evs := drainUntilClosed(t, stream)
	assert.Equal(t, 2, countEvents(evs, core.EventRoundStarted))
	assert.Equal(t, 2, countEvents(evs, core.EventRoundCompleted))
	assert.Equal(t, 1, countEvents(evs, core.EventDebateCompleted))

	stored, _ := f.service.GetDebate(ctx, debate.ID)
	assert.Equal(t, core.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.CurrentRound)
	require.Len(t, stored.Rounds, 2)
	assert.Equal(t, 1, stored.Rounds[0].Number)
	assert.Equal(t, 2, stored.Rounds[1].Number)
}

func TestOutOfOrderHumanSubmissions(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)
	alice := f.addHuman(t, debate.ID, "Alice")
	bob := f.addHuman(t, debate.ID, "Bob")

	started, err := f.service.StartDebate(ctx, debate.ID)
	require.NoError(t, err)
	roundID := started.Rounds[0].ID

	// Second participant answers first.
	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: bob.ID, Content: "Against, on waste disposal.",
	})
	require.NoError(t, err)

	stored, _ := f.service.GetDebate(ctx, debate.ID)
	assert.Equal(t, core.RoundInProgress, stored.Rounds[0].Status, "round must wait for all participants")

	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: alice.ID, Content: "In favor, on energy density.",
	})
	require.NoError(t, err)

	stored, _ = f.service.GetDebate(ctx, debate.ID)
	assert.Equal(t, core.StatusCompleted, stored.Status)
	assert.Equal(t, core.RoundComplete, stored.Rounds[0].Status)
}

func TestSubmitResponseRejections(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 2)
	alice := f.addHuman(t, debate.ID, "Alice")
	bob := f.addHuman(t, debate.ID, "Bob")

	started, err := f.service.StartDebate(ctx, debate.ID)
	require.NoError(t, err)
	roundID := started.Rounds[0].ID

	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: "outsider", Content: "hi",
	})
	assert.True(t, core.IsValidation(err), "foreign participant")

	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: "missing-round", ParticipantID: alice.ID, Content: "hi",
	})
	assert.True(t, core.IsNotFound(err))

	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: alice.ID, Content: "first",
	})
	require.NoError(t, err)
	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: alice.ID, Content: "second",
	})
	assert.True(t, core.IsValidation(err), "duplicate submission")

	// Complete round 1; submissions against it must now be rejected.
	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: bob.ID, Content: "reply",
	})
	require.NoError(t, err)

	_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
		RoundID: roundID, ParticipantID: bob.ID, Content: "late",
	})
	assert.True(t, core.IsValidation(err), "complete round")
}

func TestCachedGenerationInvokesAdapterOnce(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()

	run := func() *core.Debate {
		debate := f.createDebate(t, 1)
		f.addAI(t, debate.ID, "Advocate")
		alice := f.addHuman(t, debate.ID, "Alice")

		stream, cancel := f.service.Subscribe(debate.ID)
		defer cancel()

		started, err := f.service.StartDebate(ctx, debate.ID)
		require.NoError(t, err)

		// Wait for the AI response before the human answers so both
		// runs issue an identical prompt.
		deadline := time.After(5 * time.Second)
		for {
			var ev *core.Event
			select {
			case ev = <-stream:
			case <-deadline:
				t.Fatal("AI response never arrived")
			}
			if ev.Type == core.EventResponseSubmitted {
				break
			}
		}

		_, err = f.service.SubmitResponse(ctx, debate.ID, SubmitResponseInput{
			RoundID: started.Rounds[0].ID, ParticipantID: alice.ID, Content: "In favor.",
		})
		require.NoError(t, err)
		drainUntilClosed(t, stream)

		stored, _ := f.service.GetDebate(ctx, debate.ID)
		return stored
	}

	first := run()
	require.Equal(t, 1, f.adapter.Calls())

	second := run()
	assert.Equal(t, 1, f.adapter.Calls(), "identical request must be served from cache")

	firstAI := first.Rounds[0].Responses[0]
	secondAI := second.Rounds[0].Responses[0]
	assert.Equal(t, firstAI.Content, secondAI.Content)

	stats := f.cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestRemoveParticipant(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)
	f.addHuman(t, debate.ID, "Alice")
	bob := f.addHuman(t, debate.ID, "Bob")
	f.addHuman(t, debate.ID, "Carol")

	require.NoError(t, f.service.RemoveParticipant(ctx, debate.ID, bob.ID))

	stored, _ := f.service.GetDebate(ctx, debate.ID)
	assert.Len(t, stored.Participants, 2)

	_, err := f.service.StartDebate(ctx, debate.ID)
	require.NoError(t, err)

	err = f.service.RemoveParticipant(ctx, debate.ID, stored.Participants[0].ID)
	assert.True(t, core.IsValidation(err), "cannot remove after start")
}

func TestCancelDebate(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)
	f.addHuman(t, debate.ID, "Alice")
	f.addHuman(t, debate.ID, "Bob")

	stream, cancel := f.service.Subscribe(debate.ID)
	defer cancel()

	cancelled, err := f.service.CancelDebate(ctx, debate.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, cancelled.Status)

	// Terminal debate tears down its event channel.
	drainUntilClosed(t, stream)

	_, err = f.service.CancelDebate(ctx, debate.ID)
	assert.Error(t, err, "cancel is not legal from a terminal state")
}

func TestGetResults(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	debate := f.createDebate(t, 1)
	f.addAI(t, debate.ID, "Advocate")
	f.addAI(t, debate.ID, "Skeptic")

	_, err := f.service.GetResults(ctx, debate.ID)
	assert.True(t, core.IsValidation(err), "results require a concluded debate")

	stream, cancel := f.service.Subscribe(debate.ID)
	defer cancel()
	_, err = f.service.StartDebate(ctx, debate.ID)
	require.NoError(t, err)
	drainUntilClosed(t, stream)

	results, err := f.service.GetResults(ctx, debate.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, results.Debate.Status)
	assert.Len(t, results.Participants, 2)
	require.Len(t, results.Rounds, 1)
	assert.Len(t, results.Rounds[0].Responses, 2)
}
