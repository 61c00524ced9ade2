package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Suitable for
// single-node deployments; use RedisStore when running more than one
// replica behind a load balancer.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	reporting map[string]struct{} // session IDs with an in-flight report

	ttl time.Duration // max session age, counted from CreatedAt
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets the maximum session age before CleanupExpired removes it.
func WithTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = d
	}
}

// NewMemoryStore creates an in-memory session store. Background sweeping is
// the caller's job; the store only implements the operations the sweeps use.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:  make(map[string]*Session),
		reporting: make(map[string]struct{}),
		ttl:       1 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) GetOrCreate(_ context.Context, id, channel, language string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		if language == "" {
			language = "English"
		}
		sess = &Session{
			ID:           id,
			CreatedAt:    now,
			LastActivity: now,
			Channel:      channel,
			Language:     language,
		}
		s.sessions[id] = sess
	} else {
		sess.LastActivity = time.Now()
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(sess)
	sess.LastActivity = time.Now()
	return sess.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	delete(s.reporting, id)
	return nil
}

func (s *MemoryStore) InactiveSessions(_ context.Context, threshold time.Duration) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-threshold)
	var out []*Session
	for _, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) && !sess.ReportSent {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	n := 0
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.reporting, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) BeginReport(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if sess.ReportSent {
		return false, nil
	}
	if _, inFlight := s.reporting[id]; inFlight {
		return false, nil
	}
	s.reporting[id] = struct{}{}
	return true, nil
}

func (s *MemoryStore) MarkReported(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reporting, id)
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.ReportSent = true
	return nil
}

func (s *MemoryStore) EndReport(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reporting, id)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalSessions: len(s.sessions)}
	for _, sess := range s.sessions {
		if !sess.Ended {
			st.ActiveSessions++
		}
		if sess.ScamDetected {
			st.ScamsDetected++
		}
	}
	return st, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
