// Package memory provides an in-memory orchestrator.Repository, used
// by the "memory" database backend and by tests that don't need a
// durable store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxbridge/callcore/internal/orchestrator"
)

// Repository is a process-local, non-persistent orchestrator.Repository.
type Repository struct {
	mu       sync.Mutex
	sessions map[string]*orchestrator.SessionInfo
	// connected tracks which participants are currently marked joined.
	connected map[string]map[string]bool
}

// New creates an empty Repository.
func New() *Repository {
	return &Repository{
		sessions:  make(map[string]*orchestrator.SessionInfo),
		connected: make(map[string]map[string]bool),
	}
}

// Seed registers a session and its participant roster ahead of any
// connection, as an external call-setup API would.
func (r *Repository) Seed(sessionID string, participants []orchestrator.ParticipantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &orchestrator.SessionInfo{
		SessionID:    sessionID,
		State:        orchestrator.SessionInitiating,
		Participants: participants,
	}
	r.connected[sessionID] = make(map[string]bool)
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (*orchestrator.SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("memory repo: unknown session %q", sessionID)
	}
	cp := *info
	cp.Participants = append([]orchestrator.ParticipantInfo(nil), info.Participants...)
	return &cp, nil
}

func (r *Repository) MarkParticipantJoined(ctx context.Context, sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("memory repo: unknown session %q", sessionID)
	}
	if info.State == orchestrator.SessionInitiating {
		info.State = orchestrator.SessionOngoing
	}
	if r.connected[sessionID] == nil {
		r.connected[sessionID] = make(map[string]bool)
	}
	r.connected[sessionID][userID] = true
	return nil
}

func (r *Repository) MarkParticipantLeft(ctx context.Context, sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.connected[sessionID]; ok {
		delete(conns, userID)
	}
	return nil
}

func (r *Repository) MarkSessionEnded(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("memory repo: unknown session %q", sessionID)
	}
	info.State = orchestrator.SessionEnded
	delete(r.connected, sessionID)
	return nil
}

func (r *Repository) ListConnected(ctx context.Context, sessionID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.connected[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(conns))
	for userID := range conns {
		out = append(out, userID)
	}
	return out, nil
}

var _ orchestrator.Repository = (*Repository)(nil)
