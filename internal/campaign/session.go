package campaign

import (
	"sync"
	"time"
)

// AttemptStore tracks which campaign task each user is currently submitting
// links for. State is in-memory only: a restart drops in-flight attempts,
// which users recover from by pressing start again. Stale entries are evicted
// so an abandoned attempt cannot capture the user's messages forever.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[int64]attempt
	ttl      time.Duration
}

type attempt struct {
	taskID  int64
	started time.Time
}

func NewAttemptStore(ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		attempts: make(map[int64]attempt),
		ttl:      ttl,
	}
}

// Begin registers userID as submitting links for taskID, replacing any
// previous attempt.
func (s *AttemptStore) Begin(userID, taskID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[userID] = attempt{taskID: taskID, started: time.Now()}
}

// Active returns the task the user is submitting for, if any non-expired
// attempt exists.
func (s *AttemptStore) Active(userID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[userID]
	if !ok {
		return 0, false
	}
	if time.Since(a.started) > s.ttl {
		delete(s.attempts, userID)
		return 0, false
	}
	return a.taskID, true
}

// Clear drops the user's attempt.
func (s *AttemptStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, userID)
}

// EvictStale removes expired attempts and returns how many were dropped.
func (s *AttemptStore) EvictStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, a := range s.attempts {
		if time.Since(a.started) > s.ttl {
			delete(s.attempts, id)
			n++
		}
	}
	return n
}
