package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kinji/internal/models"
)

// ErrSessionNotFound is returned for an unknown or expired session id.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultIdleTTL     = 30 * time.Minute
	defaultMaxSessions = 10000
)

type entry struct {
	mu    sync.Mutex
	state State
	// lastUsed is unix nanoseconds, accessed atomically outside mu.
	lastUsed atomic.Int64
}

func newEntry(now time.Time) *entry {
	e := &entry{}
	e.lastUsed.Store(now.UnixNano())
	return e
}

// Manager keeps one State per session. Events for the same session are applied one at a
// time; different sessions never share state. Sessions idle longer than the TTL are removed
// by Sweep, and creating a session beyond the cap evicts the least recently used one.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time
	logger      *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTTL sets how long an untouched session survives. Zero or less disables expiry.
func WithIdleTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.idleTTL = d }
}

// WithMaxSessions caps the number of live sessions. Zero or less disables the cap.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) { m.maxSessions = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty session manager.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		sessions:    make(map[string]*entry),
		idleTTL:     defaultIdleTTL,
		maxSessions: defaultMaxSessions,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new empty session and returns its id.
func (m *Manager) Create() string {
	id := uuid.New().String()
	now := m.now()
	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.evictOldestLocked()
	}
	m.sessions[id] = newEntry(now)
	m.mu.Unlock()
	m.logger.Debug("session created", zap.String("session", id))
	return id
}

func (m *Manager) evictOldestLocked() {
	var (
		oldestID string
		oldest   int64
	)
	for id, e := range m.sessions {
		used := e.lastUsed.Load()
		if oldestID == "" || used < oldest {
			oldestID, oldest = id, used
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
		m.logger.Debug("session evicted", zap.String("session", oldestID))
	}
}

// lookup returns the session entry, locked and marked as used. The caller unlocks it.
func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastUsed.Store(m.now().UnixNano())
	e.mu.Lock()
	return e, nil
}

// Get returns the current state of a session.
func (m *Manager) Get(id string) (State, error) {
	e, err := m.lookup(id)
	if err != nil {
		return State{}, err
	}
	defer e.mu.Unlock()
	return e.state, nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Apply reduces ev into the session's state and stores the result. On error the stored
// state is left as it was.
func (m *Manager) Apply(ctx context.Context, id string, q Querier, ev Event, k int) (State, error) {
	e, err := m.lookup(id)
	if err != nil {
		return State{}, err
	}
	defer e.mu.Unlock()

	next, err := Reduce(ctx, q, e.state, ev, k)
	if err != nil {
		m.logger.Debug("selection event failed", zap.String("session", id), zap.Error(err))
		return e.state, err
	}
	e.state = next
	return next, nil
}

// RevalidateAll revalidates every session against contains. Called after a reload.
func (m *Manager) RevalidateAll(contains func(models.RecordID) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.sessions {
		e.mu.Lock()
		e.state = Revalidate(e.state, contains)
		e.mu.Unlock()
	}
}

// Sweep removes sessions idle for longer than the TTL and returns how many were removed.
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL).UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if e.lastUsed.Load() < cutoff {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("expired idle sessions", zap.Int("removed", removed), zap.Int("live", len(m.sessions)))
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
