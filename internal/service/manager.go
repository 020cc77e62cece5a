package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/gifsearch/internal/domain"
	"github.com/timmy/gifsearch/internal/logger"
	"github.com/timmy/gifsearch/internal/metrics"
)

// SessionManager owns the set of live search sessions.
type SessionManager struct {
	fetcher ResultFetcher
	store   FavoriteStore
	cfg     EngineConfig
	idleTTL time.Duration
	logger  *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	engine   *Engine
	mu       sync.Mutex
	lastSeen time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// NewSessionManager creates a session manager. A non-positive idleTTL
// disables reaping.
func NewSessionManager(fetcher ResultFetcher, store FavoriteStore, cfg EngineConfig, idleTTL time.Duration, log *logger.Logger) *SessionManager {
	if log == nil {
		log = logger.GetDefault()
	}
	return &SessionManager{
		fetcher:  fetcher,
		store:    store,
		cfg:      cfg,
		idleTTL:  idleTTL,
		logger:   log.WithField(logger.FieldComponent, "sessions"),
		sessions: make(map[string]*session),
	}
}

// Create starts a new session and returns its ID.
func (m *SessionManager) Create() (string, *Engine) {
	id := uuid.New().String()
	log := m.logger.WithField(logger.FieldSessionID, id)
	ctx := log.WithContext(context.Background())

	engine := NewEngine(ctx, m.fetcher, m.store, m.cfg)

	m.mu.Lock()
	m.sessions[id] = &session{engine: engine, lastSeen: time.Now()}
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	log.Info("Session created")
	return id, engine
}

// Get returns the engine for id and marks the session as used.
func (m *SessionManager) Get(id string) (*Engine, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	s.touch(time.Now())
	return s.engine, nil
}

// Touch marks a session as used, e.g. while a stream is open.
func (m *SessionManager) Touch(id string) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(time.Now())
	}
}

// Close stops and removes a session.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	m.stop(id, s)
	return nil
}

// closeIdle removes the session only if it is still idle since before cutoff.
// The check and the removal happen under the write lock so a session used
// after the reaper scanned it survives.
func (m *SessionManager) closeIdle(id string, cutoff time.Time) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || !s.idleSince().Before(cutoff) {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.stop(id, s)
	return true
}

func (m *SessionManager) stop(id string, s *session) {
	s.engine.Close()
	metrics.ActiveSessions.Dec()
	m.logger.WithField(logger.FieldSessionID, id).Info("Session closed")
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle since before now minus the idle TTL and
// returns how many were closed.
func (m *SessionManager) Reap(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	var expired []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range expired {
		if m.closeIdle(id, cutoff) {
			closed++
		}
	}
	if closed > 0 {
		m.logger.WithField(logger.FieldCount, closed).Info("Reaped idle sessions")
	}
	return closed
}

// Run reaps idle sessions every interval until ctx is done, then closes
// every remaining session.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	defer m.CloseAll()
	if interval <= 0 || m.idleTTL <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// CloseAll stops every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			e.Close()
		}(s.engine)
	}
	wg.Wait()
	metrics.ActiveSessions.Sub(float64(len(sessions)))
}
