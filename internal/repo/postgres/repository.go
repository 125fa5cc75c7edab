package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/orchestrator"
	"github.com/voxbridge/callcore/internal/security"
)

// Repository is a PostgreSQL-backed orchestrator.Repository.
type Repository struct {
	db     *DB
	logger zerolog.Logger
}

// NewRepository wraps db as an orchestrator.Repository.
func NewRepository(db *DB, logger zerolog.Logger) *Repository {
	return &Repository{db: db, logger: logger.With().Str("component", "pg_repository").Logger()}
}

// CreateSession registers a call session and its participant roster
// ahead of any WebSocket connection. Called by the call-setup API that
// admits the first participant, not by the orchestrator itself. Each
// participant's user id and language code are validated here since this
// is where externally supplied roster data first crosses into storage.
func (r *Repository) CreateSession(ctx context.Context, sessionID string, participants []orchestrator.ParticipantInfo) error {
	validator := security.NewValidator()
	for _, p := range participants {
		if err := validator.ValidateUserID(p.UserID); err != nil {
			return fmt.Errorf("invalid participant user id %q: %w", p.UserID, err)
		}
		if err := validator.ValidateLanguageCode(p.Language); err != nil {
			return fmt.Errorf("invalid participant language %q: %w", p.Language, err)
		}
	}

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO call_sessions (session_id, state) VALUES ($1, 'initiating')
		 ON CONFLICT (session_id) DO NOTHING`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to insert call session: %w", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(ctx,
			`INSERT INTO session_participants (session_id, user_id, language, voice_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id, user_id) DO UPDATE SET language = $3, voice_id = $4`,
			sessionID, p.UserID, p.Language, p.VoiceID)
		if err != nil {
			return fmt.Errorf("failed to insert participant %s: %w", p.UserID, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (*orchestrator.SessionInfo, error) {
	var state string
	err := r.db.pool.QueryRow(ctx, `SELECT state FROM call_sessions WHERE session_id = $1`, sessionID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres repo: unknown session %q", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT user_id, language, voice_id FROM session_participants WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var participants []orchestrator.ParticipantInfo
	for rows.Next() {
		var p orchestrator.ParticipantInfo
		if err := rows.Scan(&p.UserID, &p.Language, &p.VoiceID); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}

	return &orchestrator.SessionInfo{
		SessionID:    sessionID,
		State:        orchestrator.SessionState(state),
		Participants: participants,
	}, nil
}

func (r *Repository) MarkParticipantJoined(ctx context.Context, sessionID, userID string) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE call_sessions SET state = 'ongoing' WHERE session_id = $1 AND state = 'initiating'`,
		sessionID); err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE session_participants SET connected = TRUE, joined_at = NOW() WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID); err != nil {
		return fmt.Errorf("failed to mark participant joined: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repository) MarkParticipantLeft(ctx context.Context, sessionID, userID string) error {
	_, err := r.db.pool.Exec(ctx,
		`UPDATE session_participants SET connected = FALSE, left_at = NOW() WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}
	return nil
}

func (r *Repository) MarkSessionEnded(ctx context.Context, sessionID string) error {
	_, err := r.db.pool.Exec(ctx,
		`UPDATE call_sessions SET state = 'ended', ended_at = NOW() WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session ended: %w", err)
	}
	return nil
}

func (r *Repository) ListConnected(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT user_id FROM session_participants WHERE session_id = $1 AND connected = TRUE`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected participants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

var _ orchestrator.Repository = (*Repository)(nil)
