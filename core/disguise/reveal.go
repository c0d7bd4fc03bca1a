package disguise

import (
	"context"
	"sync"
	"time"
)

var nowFunc = time.Now // mockable

type revealKey struct {
	contextID string
	viewerID  string
}

// SessionRevealStore keeps reveal states in memory; they expire after ttl and do not survive restarts.
type SessionRevealStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	states map[revealKey]time.Time // expiry of a "revealed" state
}

var _ RevealStore = (*SessionRevealStore)(nil) // interface compliance check

func NewSessionRevealStore(ttl time.Duration) *SessionRevealStore {
	return &SessionRevealStore{
		ttl:    ttl,
		states: make(map[revealKey]time.Time),
	}
}

func (s *SessionRevealStore) RevealState(_ context.Context, contextID, viewerID string) (bool, error) {
	key := revealKey{contextID, viewerID}

	s.mu.RLock()
	expiry, ok := s.states[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && !nowFunc().Before(expiry) {
		s.mu.Lock()
		if exp, ok := s.states[key]; ok && exp.Equal(expiry) {
			delete(s.states, key)
		}
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *SessionRevealStore) SetRevealState(_ context.Context, contextID, viewerID string, reveal bool) error {
	key := revealKey{contextID, viewerID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !reveal {
		delete(s.states, key)
		return nil
	}
	s.states[key] = nowFunc().Add(s.ttl)
	return nil
}

func (s *SessionRevealStore) ClearRevealStates(_ context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.states {
		if key.contextID == contextID {
			delete(s.states, key)
		}
	}
	return nil
}
