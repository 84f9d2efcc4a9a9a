package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"porter-eta/eta-web/internal/metrics"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Session owns the UI state of one browser. All access goes through its mutex.
type Session struct {
	ID string

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	lastSeen map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
		ttl:      ttl,
		now:      now,
	}
}

// New creates a session seeded with the default order record.
func (st *SessionStore) New() *Session {
	now := st.now()
	sess := &Session{
		ID:    uuid.NewString(),
		state: NewState(now),
	}

	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.lastSeen[sess.ID] = now
	metrics.ActiveSessions.Set(float64(len(st.sessions)))
	st.mu.Unlock()
	return sess
}

func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	st.lastSeen[id] = st.now()
	return sess, nil
}

// GetOrNew returns the session for id, creating a fresh one when id is
// unknown. created reports whether a new session was made.
func (st *SessionStore) GetOrNew(id string) (sess *Session, created bool) {
	if id != "" {
		if sess, err := st.Get(id); err == nil {
			return sess, false
		}
	}
	return st.New(), true
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the ttl. Sessions with a request
// in flight are kept. A zero ttl disables expiry.
func (st *SessionStore) Sweep() int {
	if st.ttl <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, seen := range st.lastSeen {
		if !seen.Before(cutoff) {
			continue
		}
		if st.sessions[id].State().Loading {
			continue
		}
		delete(st.sessions, id)
		delete(st.lastSeen, id)
		removed++
	}
	metrics.ActiveSessions.Set(float64(len(st.sessions)))
	return removed
}

func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}
