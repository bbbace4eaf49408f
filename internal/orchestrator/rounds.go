package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/core"
	"github.com/arbiterhq/arbiter/internal/lifecycle"
)

// SubmitResponseInput carries a participant submission.
type SubmitResponseInput struct {
	RoundID       string `json:"round_id"`
	ParticipantID string `json:"participant_id"`
	Content       string `json:"content"`
}

// SubmitResponse records a participant's response for a round. The
// submission is rejected when the round is already complete, when the
// participant does not belong to the debate, or when the participant
// already responded this round. Recording the response re-evaluates
// round completion.
func (s *Service) SubmitResponse(ctx context.Context, debateID string, input SubmitResponseInput) (*core.Response, error) {
	if input.Content == "" {
		return nil, core.Validationf("response content is required")
	}
	return s.record(debateID, submission{
		roundID:       input.RoundID,
		participantID: input.ParticipantID,
		content:       input.Content,
		tokenCount:    estimateTokens(input.Content),
	})
}

// OrchestrateRound collects one response per active AI participant for
// the round, fanning the completion calls out concurrently. Participants
// that already responded are skipped, so the call is safe to repeat.
func (s *Service) OrchestrateRound(ctx context.Context, debateID, roundID string) error {
	debate, err := s.store.GetDebate(debateID)
	if err != nil {
		return err
	}
	round := debate.RoundByID(roundID)
	if round == nil {
		return core.NotFound("round", roundID)
	}
	if round.Status == core.RoundComplete {
		return nil
	}

	type outcome struct {
		participant *core.Participant
		err         error
	}

	var pending []*core.Participant
	for _, p := range debate.ActiveParticipants() {
		if p.Kind == core.KindAI && round.ResponseFrom(p.ID) == nil {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	results := make(chan outcome, len(pending))
	for _, p := range pending {
		go func(p *core.Participant) {
			results <- outcome{participant: p, err: s.generate(ctx, debate, round, p)}
		}(p)
	}

	var firstErr error
	for range pending {
		res := <-results
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
	}
	return firstErr
}

// dispatchRound kicks off AI collection for a round in the background.
func (s *Service) dispatchRound(debate *core.Debate, round *core.Round) {
	hasAI := false
	for _, p := range debate.ActiveParticipants() {
		if p.Kind == core.KindAI {
			hasAI = true
			break
		}
	}
	if !hasAI {
		return
	}
	go func() {
		if err := s.OrchestrateRound(context.Background(), debate.ID, round.ID); err != nil {
			slog.Error("Round orchestration failed", "debate_id", debate.ID, "round_id", round.ID, "error", err)
		}
	}()
}

// generate issues one cache-first completion for a participant and
// records the result. A failed generation records a flagged abstention
// so the round can still complete, and surfaces the failure as a
// debate.error event.
func (s *Service) generate(ctx context.Context, debate *core.Debate, round *core.Round, p *core.Participant) error {
	req := &core.CompletionRequest{
		Provider:    p.Provider,
		Model:       p.Model,
		Prompt:      buildPrompt(debate, round, p),
		System:      p.Params.SystemHint,
		MaxTokens:   p.Params.MaxTokens,
		Temperature: p.Params.Temperature,
	}

	result, hit := s.cache.Get(ctx, req)
	if !hit {
		var err error
		result, err = s.client.Complete(ctx, req)
		if err != nil {
			slog.Error("Generation failed", "debate_id", debate.ID, "round_id", round.ID, "participant", p.Name, "error", err)
			s.publisher.Publish(core.NewEvent(debate.ID, core.EventDebateError, map[string]string{
				"participant_id": p.ID,
				"round_id":       round.ID,
				"error":          err.Error(),
			}))
			_, recErr := s.record(debate.ID, submission{
				roundID:       round.ID,
				participantID: p.ID,
				flagged:       true,
				flagReason:    "generation_failed",
			})
			if recErr != nil && !core.IsValidation(recErr) {
				return recErr
			}
			return err
		}
		s.cache.Put(ctx, req, result)
	}

	_, err := s.record(debate.ID, submission{
		roundID:       round.ID,
		participantID: p.ID,
		content:       result.Text,
		tokenCount:    result.Usage.TotalTokens,
		latencyMS:     result.LatencyMS,
	})
	if err != nil && core.IsValidation(err) {
		// Lost a race with the round timer; the abstention stands.
		slog.Debug("Discarding late generation", "round_id", round.ID, "participant_id", p.ID, "reason", err)
		return nil
	}
	return err
}

// submission is an internal response write request.
type submission struct {
	roundID       string
	participantID string
	content       string
	tokenCount    int
	latencyMS     int64
	flagged       bool
	flagReason    string
}

// record is the single write path for responses. It runs under the
// per-debate lock, so completion evaluation after each arrival is
// serialized and the round-complete signal fires exactly once.
func (s *Service) record(debateID string, rec submission) (*core.Response, error) {
	var response *core.Response
	var terminal *core.Debate
	var nextDebate *core.Debate
	var nextRound *core.Round

	err := s.machine.WithLock(debateID, func() error {
		debate, err := s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if debate.Status != core.StatusInProgress {
			return core.Validationf("debate %s is not accepting responses (status %s)", debateID, debate.Status)
		}

		participant := debate.Participant(rec.participantID)
		if participant == nil {
			return core.Validationf("participant %s does not belong to debate %s", rec.participantID, debateID)
		}

		round := debate.RoundByID(rec.roundID)
		if round == nil {
			return core.NotFound("round", rec.roundID)
		}
		if round.Status == core.RoundComplete {
			return core.Validationf("round %d of debate %s is already complete", round.Number, debateID)
		}
		if round.ResponseFrom(rec.participantID) != nil {
			return core.Validationf("participant %s already responded in round %d", rec.participantID, round.Number)
		}

		response = &core.Response{
			ID:            core.GenerateID(),
			RoundID:       round.ID,
			ParticipantID: rec.participantID,
			Content:       rec.content,
			TokenCount:    rec.tokenCount,
			Flagged:       rec.flagged,
			FlagReason:    rec.flagReason,
			CreatedAt:     time.Now(),
		}
		if err := s.store.AddResponse(debateID, response); err != nil {
			return err
		}
		round.Responses = append(round.Responses, response)

		s.updateMetrics(participant, response, rec.latencyMS)

		s.publisher.Publish(core.NewEvent(debateID, core.EventResponseSubmitted, response))

		done, next, err := s.checkRoundCompletion(debate, round)
		if err != nil {
			return err
		}
		if done {
			terminal = debate
		}
		if next != nil {
			nextDebate, nextRound = debate, next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if terminal != nil {
		s.finish(terminal)
	}
	if nextRound != nil {
		s.dispatchRound(nextDebate, nextRound)
	}
	return response, nil
}

// checkRoundCompletion recomputes completion for the round. Caller must
// hold the per-debate lock. When the round completes, it either advances
// the debate to the next round (returned for dispatch) or completes the
// debate (done=true).
func (s *Service) checkRoundCompletion(debate *core.Debate, round *core.Round) (done bool, next *core.Round, err error) {
	if round.Status == core.RoundComplete {
		return false, nil, nil
	}
	for _, p := range debate.ActiveParticipants() {
		if round.ResponseFrom(p.ID) == nil {
			return false, nil, nil
		}
	}

	now := time.Now()
	round.Status = core.RoundComplete
	round.CompletedAt = &now
	if err := s.store.UpdateRound(round); err != nil {
		return false, nil, err
	}
	s.publisher.Publish(core.NewEvent(debate.ID, core.EventRoundCompleted, round))
	slog.Info("Round complete", "debate_id", debate.ID, "round", round.Number)

	if debate.CurrentRound >= debate.MaxRounds {
		if err := s.machine.Fire(debate, lifecycle.EventComplete); err != nil {
			return false, nil, err
		}
		if err := s.store.UpdateDebate(debate); err != nil {
			return false, nil, err
		}
		s.publisher.Publish(core.NewEvent(debate.ID, core.EventDebateCompleted, debate))
		slog.Info("Debate complete", "debate_id", debate.ID, "rounds", debate.CurrentRound)
		return true, nil, nil
	}

	if err := s.machine.Fire(debate, lifecycle.EventAdvanceRound); err != nil {
		return false, nil, err
	}
	if err := s.store.UpdateDebate(debate); err != nil {
		return false, nil, err
	}
	next, err = s.openRound(debate)
	if err != nil {
		return false, nil, err
	}
	return false, next, nil
}

// openRound creates and persists the round for debate.CurrentRound.
// Caller must hold the per-debate lock.
func (s *Service) openRound(debate *core.Debate) (*core.Round, error) {
	now := time.Now()
	round := &core.Round{
		ID:        core.GenerateID(),
		DebateID:  debate.ID,
		Number:    debate.CurrentRound,
		Status:    core.RoundInProgress,
		TimeLimit: s.opts.RoundTimeLimit,
		StartedAt: &now,
	}
	if err := s.store.AddRound(round); err != nil {
		return nil, err
	}
	debate.Rounds = append(debate.Rounds, round)

	s.publisher.Publish(core.NewEvent(debate.ID, core.EventRoundStarted, round))

	if round.TimeLimit > 0 {
		time.AfterFunc(round.TimeLimit, func() {
			s.expireRound(debate.ID, round.ID)
		})
	}
	return round, nil
}

// expireRound enforces the round time limit. Missing participants are
// either recorded as timed-out abstentions or, under the fail policy,
// the debate moves to the error state.
func (s *Service) expireRound(debateID, roundID string) {
	var terminal *core.Debate
	var nextDebate *core.Debate
	var nextRound *core.Round

	err := s.machine.WithLock(debateID, func() error {
		debate, err := s.store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if debate.Status.Terminal() {
			return nil
		}
		round := debate.RoundByID(roundID)
		if round == nil || round.Status == core.RoundComplete {
			return nil
		}

		var missing []*core.Participant
		for _, p := range debate.ActiveParticipants() {
			if round.ResponseFrom(p.ID) == nil {
				missing = append(missing, p)
			}
		}
		if len(missing) == 0 {
			return nil
		}

		if s.opts.TimeoutPolicy == TimeoutFail {
			if err := s.machine.Fire(debate, lifecycle.EventFail); err != nil {
				return err
			}
			if err := s.store.UpdateDebate(debate); err != nil {
				return err
			}
			s.publisher.Publish(core.NewEvent(debateID, core.EventDebateError, map[string]string{
				"round_id": roundID,
				"error":    "round time limit exceeded",
			}))
			terminal = debate
			slog.Warn("Round timed out, debate failed", "debate_id", debateID, "round", round.Number, "missing", len(missing))
			return nil
		}

		slog.Warn("Round timed out, recording abstentions", "debate_id", debateID, "round", round.Number, "missing", len(missing))
		for _, p := range missing {
			response := &core.Response{
				ID:            core.GenerateID(),
				RoundID:       round.ID,
				ParticipantID: p.ID,
				Flagged:       true,
				FlagReason:    core.FlagTimedOut,
				CreatedAt:     time.Now(),
			}
			if err := s.store.AddResponse(debateID, response); err != nil {
				return err
			}
			round.Responses = append(round.Responses, response)
			s.publisher.Publish(core.NewEvent(debateID, core.EventResponseSubmitted, response))
		}

		done, next, err := s.checkRoundCompletion(debate, round)
		if err != nil {
			return err
		}
		if done {
			terminal = debate
		}
		if next != nil {
			nextDebate, nextRound = debate, next
		}
		return nil
	})
	if err != nil {
		slog.Error("Round expiry failed", "debate_id", debateID, "round_id", roundID, "error", err)
		return
	}

	if terminal != nil {
		s.finish(terminal)
	}
	if nextRound != nil {
		s.dispatchRound(nextDebate, nextRound)
	}
}

// updateMetrics folds a response into the participant's running totals.
func (s *Service) updateMetrics(p *core.Participant, r *core.Response, latencyMS int64) {
	m := p.Metrics
	total := m.AvgLatencyMS*float64(m.ResponseCount) + float64(latencyMS)
	m.ResponseCount++
	m.TotalTokens += r.TokenCount
	m.AvgLatencyMS = total / float64(m.ResponseCount)
	p.Metrics = m

	if err := s.store.UpdateParticipant(p); err != nil {
		slog.Warn("Failed to update participant metrics", "participant_id", p.ID, "error", err)
	}
}
