package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arbiterhq/arbiter/internal/core"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteStorage) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS debates (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		format TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		max_rounds INTEGER NOT NULL,
		current_round INTEGER NOT NULL DEFAULT 0,
		settings_json TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		debate_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		params_json TEXT,
		position INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		metrics_json TEXT,
		FOREIGN KEY (debate_id) REFERENCES debates(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS rounds (
		id TEXT PRIMARY KEY,
		debate_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		time_limit_ms INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		FOREIGN KEY (debate_id) REFERENCES debates(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		round_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		metrics_json TEXT,
		flagged INTEGER NOT NULL DEFAULT 0,
		flag_reason TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (round_id) REFERENCES rounds(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_participants_debate_id ON participants(debate_id);
	CREATE INDEX IF NOT EXISTS idx_rounds_debate_id ON rounds(debate_id);
	CREATE INDEX IF NOT EXISTS idx_responses_round_id ON responses(round_id);
	CREATE INDEX IF NOT EXISTS idx_debates_status ON debates(status);
	CREATE INDEX IF NOT EXISTS idx_debates_created_at ON debates(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateDebate creates a new debate row. Participants and rounds are
// persisted through their own operations.
func (s *SQLiteStorage) CreateDebate(debate *core.Debate) error {
	settingsJSON, err := marshalNullable(debate.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
	INSERT INTO debates (id, topic, format, status, max_rounds, current_round, settings_json, created_at, started_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		debate.ID,
		debate.Topic,
		debate.Format,
		debate.Status,
		debate.MaxRounds,
		debate.CurrentRound,
		settingsJSON,
		debate.CreatedAt,
		debate.StartedAt,
		debate.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert debate: %w", err)
	}

	return nil
}

// GetDebate retrieves the full debate aggregate by ID.
func (s *SQLiteStorage) GetDebate(id string) (*core.Debate, error) {
	query := `
	SELECT id, topic, format, status, max_rounds, current_round, settings_json, created_at, started_at, completed_at
	FROM debates
	WHERE id = ?
	`

	var debate core.Debate
	var settingsJSON sql.NullString
	var startedAt, completedAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&debate.ID,
		&debate.Topic,
		&debate.Format,
		&debate.Status,
		&debate.MaxRounds,
		&debate.CurrentRound,
		&settingsJSON,
		&debate.CreatedAt,
		&startedAt,
		&completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, core.NotFound("debate", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get debate: %w", err)
	}

	if settingsJSON.Valid {
		if err := json.Unmarshal([]byte(settingsJSON.String), &debate.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	if startedAt.Valid {
		debate.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		debate.CompletedAt = &completedAt.Time
	}

	if debate.Participants, err = s.participants(id); err != nil {
		return nil, err
	}
	if debate.Rounds, err = s.rounds(id); err != nil {
		return nil, err
	}

	return &debate, nil
}

// UpdateDebate updates the debate row's scalar fields.
func (s *SQLiteStorage) UpdateDebate(debate *core.Debate) error {
	settingsJSON, err := marshalNullable(debate.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
	UPDATE debates
	SET topic = ?, format = ?, status = ?, max_rounds = ?, current_round = ?, settings_json = ?, started_at = ?, completed_at = ?
	WHERE id = ?
	`

	res, err := s.db.Exec(query,
		debate.Topic,
		debate.Format,
		debate.Status,
		debate.MaxRounds,
		debate.CurrentRound,
		settingsJSON,
		debate.StartedAt,
		debate.CompletedAt,
		debate.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update debate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("debate", debate.ID)
	}

	return nil
}

// DeleteDebate deletes a debate and, via cascade, its participants,
// rounds and responses.
func (s *SQLiteStorage) DeleteDebate(id string) error {
	res, err := s.db.Exec("DELETE FROM debates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete debate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("debate", id)
	}
	return nil
}

// ListDebates returns debate summaries, newest first.
func (s *SQLiteStorage) ListDebates(limit, offset int) ([]*core.DebateSummary, error) {
	query := `
	SELECT d.id, d.topic, d.format, d.status, d.max_rounds, d.current_round, d.created_at,
		   (SELECT COUNT(*) FROM participants WHERE debate_id = d.id) as participant_count
	FROM debates d
	ORDER BY d.created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list debates: %w", err)
	}
	defer rows.Close()

	var summaries []*core.DebateSummary
	for rows.Next() {
		var summary core.DebateSummary
		err := rows.Scan(
			&summary.ID,
			&summary.Topic,
			&summary.Format,
			&summary.Status,
			&summary.MaxRounds,
			&summary.CurrentRound,
			&summary.CreatedAt,
			&summary.ParticipantCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debate summary: %w", err)
		}
		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// AddParticipant persists a new participant.
func (s *SQLiteStorage) AddParticipant(p *core.Participant) error {
	paramsJSON, err := json.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	metricsJSON, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
	INSERT INTO participants (id, debate_id, name, kind, provider, model, params_json, position, active, metrics_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		p.ID,
		p.DebateID,
		p.Name,
		p.Kind,
		p.Provider,
		p.Model,
		string(paramsJSON),
		p.Position,
		p.Active,
		string(metricsJSON),
	)

	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	return nil
}

// UpdateParticipant updates an existing participant.
func (s *SQLiteStorage) UpdateParticipant(p *core.Participant) error {
	paramsJSON, err := json.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	metricsJSON, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
	UPDATE participants
	SET name = ?, kind = ?, provider = ?, model = ?, params_json = ?, position = ?, active = ?, metrics_json = ?
	WHERE id = ?
	`

	res, err := s.db.Exec(query,
		p.Name,
		p.Kind,
		p.Provider,
		p.Model,
		string(paramsJSON),
		p.Position,
		p.Active,
		string(metricsJSON),
		p.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("participant", p.ID)
	}

	return nil
}

// RemoveParticipant deletes a participant from a debate.
func (s *SQLiteStorage) RemoveParticipant(debateID, participantID string) error {
	res, err := s.db.Exec("DELETE FROM participants WHERE id = ? AND debate_id = ?", participantID, debateID)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("participant", participantID)
	}
	return nil
}

// AddRound persists a new round.
func (s *SQLiteStorage) AddRound(r *core.Round) error {
	query := `
	INSERT INTO rounds (id, debate_id, number, status, time_limit_ms, started_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		r.ID,
		r.DebateID,
		r.Number,
		r.Status,
		r.TimeLimit.Milliseconds(),
		r.StartedAt,
		r.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}

	return nil
}

// UpdateRound updates a round's status and timestamps.
func (s *SQLiteStorage) UpdateRound(r *core.Round) error {
	query := `
	UPDATE rounds
	SET status = ?, time_limit_ms = ?, started_at = ?, completed_at = ?
	WHERE id = ?
	`

	res, err := s.db.Exec(query,
		r.Status,
		r.TimeLimit.Milliseconds(),
		r.StartedAt,
		r.CompletedAt,
		r.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("round", r.ID)
	}

	return nil
}

// AddResponse persists a response. Responses are never updated.
func (s *SQLiteStorage) AddResponse(debateID string, r *core.Response) error {
	metricsJSON, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
	INSERT INTO responses (id, round_id, participant_id, content, token_count, metrics_json, flagged, flag_reason, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		r.ID,
		r.RoundID,
		r.ParticipantID,
		r.Content,
		r.TokenCount,
		string(metricsJSON),
		r.Flagged,
		r.FlagReason,
		r.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	return nil
}

// participants loads all participants for a debate, ordered by position.
func (s *SQLiteStorage) participants(debateID string) ([]*core.Participant, error) {
	query := `
	SELECT id, debate_id, name, kind, provider, model, params_json, position, active, metrics_json
	FROM participants
	WHERE debate_id = ?
	ORDER BY position ASC
	`

	rows, err := s.db.Query(query, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*core.Participant
	for rows.Next() {
		var p core.Participant
		var provider, model sql.NullString
		var paramsJSON, metricsJSON sql.NullString

		err := rows.Scan(
			&p.ID,
			&p.DebateID,
			&p.Name,
			&p.Kind,
			&provider,
			&model,
			&paramsJSON,
			&p.Position,
			&p.Active,
			&metricsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		p.Provider = provider.String
		p.Model = model.String
		if paramsJSON.Valid && paramsJSON.String != "" {
			if err := json.Unmarshal([]byte(paramsJSON.String), &p.Params); err != nil {
				return nil, fmt.Errorf("failed to unmarshal params: %w", err)
			}
		}
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &p.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
		}

		participants = append(participants, &p)
	}

	return participants, rows.Err()
}

// rounds loads all rounds for a debate with their responses, ordered by
// round number.
func (s *SQLiteStorage) rounds(debateID string) ([]*core.Round, error) {
	query := `
	SELECT id, debate_id, number, status, time_limit_ms, started_at, completed_at
	FROM rounds
	WHERE debate_id = ?
	ORDER BY number ASC
	`

	rows, err := s.db.Query(query, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*core.Round
	for rows.Next() {
		var r core.Round
		var timeLimitMS int64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&r.ID,
			&r.DebateID,
			&r.Number,
			&r.Status,
			&timeLimitMS,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}

		r.TimeLimit = time.Duration(timeLimitMS) * time.Millisecond
		if startedAt.Valid {
			r.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}

		rounds = append(rounds, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range rounds {
		if r.Responses, err = s.responses(r.ID); err != nil {
			return nil, err
		}
	}

	return rounds, nil
}

// responses loads all responses for a round in submission order.
func (s *SQLiteStorage) responses(roundID string) ([]*core.Response, error) {
	query := `
	SELECT id, round_id, participant_id, content, token_count, metrics_json, flagged, flag_reason, created_at
	FROM responses
	WHERE round_id = ?
	ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.Query(query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	defer rows.Close()

	var responses []*core.Response
	for rows.Next() {
		var r core.Response
		var metricsJSON, flagReason sql.NullString

		err := rows.Scan(
			&r.ID,
			&r.RoundID,
			&r.ParticipantID,
			&r.Content,
			&r.TokenCount,
			&metricsJSON,
			&r.Flagged,
			&flagReason,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}

		r.FlagReason = flagReason.String
		if metricsJSON.Valid && metricsJSON.String != "" {
			if err := json.Unmarshal([]byte(metricsJSON.String), &r.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
		}

		responses = append(responses, &r)
	}

	return responses, rows.Err()
}

// marshalNullable encodes v as JSON, mapping empty maps to NULL.
func marshalNullable(v map[string]string) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(data)
	return &str, nil
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "arbiter.db"
	}
	return filepath.Join(home, ".arbiter", "arbiter.db")
}
