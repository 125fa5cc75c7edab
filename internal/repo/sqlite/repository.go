package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/orchestrator"
	"github.com/voxbridge/callcore/internal/security"
)

// Repository is a SQLite-backed orchestrator.Repository.
type Repository struct {
	db     *DB
	logger zerolog.Logger
}

// NewRepository wraps db as an orchestrator.Repository.
func NewRepository(db *DB, logger zerolog.Logger) *Repository {
	return &Repository{db: db, logger: logger.With().Str("component", "sqlite_repository").Logger()}
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

	return r.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO call_sessions (session_id, state) VALUES (?, 'initiating')`,
			sessionID); err != nil {
			return fmt.Errorf("failed to insert call session: %w", err)
		}

		for _, p := range participants {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_participants (session_id, user_id, language, voice_id)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT (session_id, user_id) DO UPDATE SET language = excluded.language, voice_id = excluded.voice_id`,
				sessionID, p.UserID, p.Language, p.VoiceID); err != nil {
				return fmt.Errorf("failed to insert participant %s: %w", p.UserID, err)
			}
		}
		return nil
	})
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (*orchestrator.SessionInfo, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM call_sessions WHERE session_id = ?`, sessionID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite repo: unknown session %q", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, language, voice_id FROM session_participants WHERE session_id = ?`, sessionID)
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
	return r.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE call_sessions SET state = 'ongoing' WHERE session_id = ? AND state = 'initiating'`,
			sessionID); err != nil {
			return fmt.Errorf("failed to update session state: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE session_participants SET connected = 1, joined_at = CURRENT_TIMESTAMP WHERE session_id = ? AND user_id = ?`,
			sessionID, userID); err != nil {
			return fmt.Errorf("failed to mark participant joined: %w", err)
		}
		return nil
	})
}

func (r *Repository) MarkParticipantLeft(ctx context.Context, sessionID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE session_participants SET connected = 0, left_at = CURRENT_TIMESTAMP WHERE session_id = ? AND user_id = ?`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}
	return nil
}

func (r *Repository) MarkSessionEnded(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_sessions SET state = 'ended', ended_at = CURRENT_TIMESTAMP WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session ended: %w", err)
	}
	return nil
}

func (r *Repository) ListConnected(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM session_participants WHERE session_id = ? AND connected = 1`, sessionID)
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
