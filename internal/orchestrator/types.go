// Package orchestrator hosts the per-call WebSocket hub: admission,
// participant lifecycle, inbound PCM fan-in to the segmenters, and
// outbound delivery fan-out from the router, per SPEC_FULL's session
// orchestration module.
package orchestrator

import (
	"context"
	"errors"
	"time"
)

// SessionState is the call-level lifecycle state.
type SessionState string

const (
	SessionInitiating SessionState = "initiating"
	SessionOngoing    SessionState = "ongoing"
	SessionEnded      SessionState = "ended"
)

// ParticipantState is a single connection's admission state.
type ParticipantState string

const (
	ParticipantConnecting ParticipantState = "connecting"
	ParticipantConnected  ParticipantState = "connected"
	ParticipantLeft       ParticipantState = "left"
)

var (
	// ErrSessionFull is returned when a session already holds the
	// maximum number of participants.
	ErrSessionFull = errors.New("orchestrator: session full")
	// ErrSessionEnded is returned when admission is attempted against a
	// call that has already torn down.
	ErrSessionEnded = errors.New("orchestrator: session ended")
	// ErrUnknownUser is returned when the admitted user id is not part
	// of the session's known participant roster.
	ErrUnknownUser = errors.New("orchestrator: unknown user for session")
	// ErrInvalidUserID is returned when the bearer token's user id fails
	// roster-id validation before the roster is even consulted.
	ErrInvalidUserID = errors.New("orchestrator: invalid user id")
	// ErrAdmissionRateLimited is returned when a session+user pair
	// attempts admission faster than the configured rate allows.
	ErrAdmissionRateLimited = errors.New("orchestrator: admission rate limited")
)

// ParticipantInfo is the durable record of one call participant, as
// known to the Repository ahead of any WebSocket connection.
type ParticipantInfo struct {
	UserID   string
	Language string
	VoiceID  string
}

// SessionInfo is the durable record of a call session.
type SessionInfo struct {
	SessionID    string
	State        SessionState
	Participants []ParticipantInfo
}

// Repository persists call session and participant lifecycle. The
// orchestrator calls it on every admission, departure, and teardown so
// that call history survives process restarts.
type Repository interface {
	LoadSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	MarkParticipantJoined(ctx context.Context, sessionID, userID string) error
	MarkParticipantLeft(ctx context.Context, sessionID, userID string) error
	MarkSessionEnded(ctx context.Context, sessionID string) error
	ListConnected(ctx context.Context, sessionID string) ([]string, error)
}

// inboundControl is a decoded JSON control message from a participant.
type inboundControl struct {
	Type string `json:"type"`
}

// outboundKind tags what an outbound JSON message represents.
type outboundKind string

const (
	outboundPong         outboundKind = "pong"
	outboundError        outboundKind = "error"
	outboundCallEnded    outboundKind = "call_ended"
	outboundParticipant  outboundKind = "participant_update"
	outboundInterimTrans outboundKind = "interim_translation"
	outboundFinalTrans   outboundKind = "final_translation"
)

// outboundMessage is the JSON envelope written to a listener's
// WebSocket text channel. Audio (if any) is base64-free: it travels as
// a companion binary frame written immediately after this message, and
// HasAudio tells the client that such a frame follows.
type outboundMessage struct {
	Type       outboundKind `json:"type"`
	Speaker    string       `json:"speaker,omitempty"`
	Seq        uint64       `json:"seq,omitempty"`
	SourceLang string       `json:"source_lang,omitempty"`
	SourceText string       `json:"source_text,omitempty"`
	TargetLang string       `json:"target_lang,omitempty"`
	Text       string       `json:"text,omitempty"`
	Degraded   bool         `json:"degraded,omitempty"`
	HasAudio   bool         `json:"has_audio,omitempty"`
	StartMS    int64        `json:"start_ms,omitempty"`
	EndMS      int64        `json:"end_ms,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	UserID     string       `json:"user_id,omitempty"`
	State      string       `json:"state,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 15 * time.Second
	maxMessageSize = 64 * 1024
)
