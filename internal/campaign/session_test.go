package campaign

import (
	"testing"
	"time"
)

func TestAttemptLifecycle(t *testing.T) {
	s := NewAttemptStore(time.Hour)

	if _, ok := s.Active(1); ok {
		t.Error("no attempt should be active initially")
	}

	s.Begin(1, 77)
	taskID, ok := s.Active(1)
	if !ok || taskID != 77 {
		t.Errorf("active = %d/%v, want 77/true", taskID, ok)
	}

	// A new begin replaces the previous attempt.
	s.Begin(1, 88)
	taskID, _ = s.Active(1)
	if taskID != 88 {
		t.Errorf("active task = %d, want 88", taskID)
	}

	s.Clear(1)
	if _, ok := s.Active(1); ok {
		t.Error("attempt should be cleared")
	}
}

func TestAttemptExpiry(t *testing.T) {
	s := NewAttemptStore(10 * time.Millisecond)

	s.Begin(1, 77)
	s.Begin(2, 77)
	time.Sleep(20 * time.Millisecond)
	s.Begin(3, 77)

	if _, ok := s.Active(1); ok {
		t.Error("expired attempt should not be active")
	}

	// User 1 was already dropped by the Active check above.
	if n := s.EvictStale(); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if _, ok := s.Active(3); !ok {
		t.Error("fresh attempt should survive eviction")
	}
}
