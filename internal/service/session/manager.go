package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/mindwave/backend/internal/metrics"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

// Manager holds the sessions of signed-in users. A session is loaded once per
// sign-in and dropped at sign-out.
type Manager struct {
	backend store.Backend
	opts    Options
	logger  zerolog.Logger
	loads   singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager persisting through backend.
func NewManager(backend store.Backend, opts Options) *Manager {
	return &Manager{
		backend:  backend,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "session-manager").Logger(),
		sessions: make(map[string]*Session),
	}
}

// SignIn returns the session of identity, loading it on first use. Loads run
// outside the manager lock; concurrent sign-ins of one user share a load. A
// snapshot that cannot be read yields ErrSnapshotUnavailable and nothing is
// cached, so the next sign-in retries.
func (m *Manager) SignIn(ctx context.Context, identity chat.Identity) (*Session, error) {
	if !identity.Valid() {
		return nil, ErrUnauthenticated
	}
	if sess, ok := m.Get(identity.UserID); ok {
		return sess, nil
	}

	v, err, _ := m.loads.Do(identity.UserID, func() (any, error) {
		if sess, ok := m.Get(identity.UserID); ok {
			return sess, nil
		}
		sess := Load(ctx, m.backend, identity, m.opts)
		if err := sess.LoadErr(); err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessions[identity.UserID] = sess
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
		m.mu.Unlock()

		m.logger.Info().Str("uid", identity.UserID).Int("threads", len(sess.Threads())).Msg("session loaded")
		return sess, nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("uid", identity.UserID).Msg("sign-in failed")
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the session of a signed-in user.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	return sess, ok
}

// SignOut discards the in-memory session. Outstanding replies still land in
// the snapshot through the discarded session.
func (m *Manager) SignOut(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userID]; !ok {
		return false
	}
	delete(m.sessions, userID)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.logger.Info().Str("uid", userID).Msg("session discarded")
	return true
}
