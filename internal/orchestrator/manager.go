package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/broker"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/router"
	"github.com/voxbridge/callcore/internal/security"
	"github.com/voxbridge/callcore/internal/speech"
)

// Manager creates and tracks one CallSession per session id, loading
// its participant roster from the Repository on first admission.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*CallSession

	cfg     config.OrchestratorConfig
	segCfg  config.SegmenterConfig
	adapter speech.Adapter
	router  *router.Router
	repo    Repository
	// br is nil for single-instance deployments that have no need to
	// fan deliveries out across processes.
	br     broker.Broker
	logger zerolog.Logger

	validator *security.Validator
	limiter   *security.RateLimiter
}

// admissionRate and admissionBurst bound how often a single
// (session, user) pair may attempt admission, guarding against a
// reconnect storm hammering the repository and roster lookup.
const (
	admissionRate     = 5
	admissionInterval = 10 * time.Second
	admissionBurst    = 5
)

// NewManager builds a Manager. adapter, router and br are shared across
// every session; all are safe for concurrent use. br may be nil.
func NewManager(cfg config.OrchestratorConfig, segCfg config.SegmenterConfig, adapter speech.Adapter, rt *router.Router, repo Repository, br broker.Broker, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*CallSession),
		cfg:       cfg,
		segCfg:    segCfg,
		adapter:   adapter,
		router:    rt,
		repo:      repo,
		br:        br,
		logger:    logger.With().Str("component", "orchestrator_manager").Logger(),
		validator: security.NewValidator(),
		limiter:   security.NewRateLimiter(admissionRate, admissionInterval, admissionBurst),
	}
}

// Admit admits userID into sessionID, creating the in-memory
// CallSession from the repository's roster on first use. It rejects a
// malformed user id and throttles repeated admission attempts for the
// same (session, user) pair before either touches the roster.
func (m *Manager) Admit(ctx context.Context, sessionID, userID string) (*CallSession, *participant, error) {
	if err := m.validator.ValidateUserID(userID); err != nil {
		m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("admission rejected: invalid user id")
		return nil, nil, ErrInvalidUserID
	}
	if !m.limiter.Allow(fmt.Sprintf("%s:%s", sessionID, userID)) {
		m.logger.Warn().Str("session_id", sessionID).Str("user_id", userID).Msg("admission rejected: rate limited")
		return nil, nil, ErrAdmissionRateLimited
	}

	cs, err := m.sessionFor(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	p, err := cs.Join(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return cs, p, nil
}

func (m *Manager) sessionFor(ctx context.Context, sessionID string) (*CallSession, error) {
	m.mu.Lock()
	if cs, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return cs, nil
	}
	m.mu.Unlock()

	info, err := m.repo.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if info.State == SessionEnded {
		return nil, ErrSessionEnded
	}

	roster := make(map[string]ParticipantInfo, len(info.Participants))
	for _, p := range info.Participants {
		roster[p.UserID] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.sessions[sessionID]; ok {
		return cs, nil
	}
	cs := newCallSession(sessionID, roster, m.cfg, m.segCfg, m.adapter, m.router, m.repo, m.br, m.logger, m.forget)
	m.sessions[sessionID] = cs
	return cs, nil
}

func (m *Manager) forget(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// SessionCount returns the number of live (non-ended) sessions, for
// health and metrics reporting.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
