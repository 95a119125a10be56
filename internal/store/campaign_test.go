package store

import (
	"errors"
	"testing"
	"time"

	"github.com/avlasov/munipoints/internal/database"
)

func setupCampaignTestDB(t *testing.T) *CampaignStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCampaignStore(db)
}

func TestCampaignCreateAndGet(t *testing.T) {
	cs := setupCampaignTestDB(t)

	expires := time.Now().Add(7 * 24 * time.Hour).UTC()
	task, err := cs.Create("Share the launch", "Repost the announcement", expires)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Name != "Share the launch" {
		t.Errorf("name = %q, want %q", task.Name, "Share the launch")
	}

	got, err := cs.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("get returned %v, want task %d", got, task.ID)
	}
}

func TestOnePerCity(t *testing.T) {
	cs := setupCampaignTestDB(t)

	task, _ := cs.Create("One shot", "", time.Now().Add(24*time.Hour))

	if err := cs.AddCompletion(task.ID, 1, "Riverton", "https://example.com/a"); err != nil {
		t.Fatalf("first completion: %v", err)
	}

	// A second member of the same municipality loses the race.
	err := cs.AddCompletion(task.ID, 2, "Riverton", "https://example.com/b")
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}

	// Other municipalities are unaffected.
	if err := cs.AddCompletion(task.ID, 3, "Lakeside", "https://example.com/c"); err != nil {
		t.Fatalf("other city completion: %v", err)
	}

	completions, err := cs.Completions(task.ID)
	if err != nil {
		t.Fatalf("completions: %v", err)
	}
	if len(completions) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(completions))
	}
}

func TestCompletionsKeepInsertionOrder(t *testing.T) {
	cs := setupCampaignTestDB(t)

	task, _ := cs.Create("Order", "", time.Now().Add(24*time.Hour))

	// All inserts land within the same second, so completed_at alone
	// cannot order them.
	cities := []string{"Riverton", "Lakeside", "Hillcrest"}
	for i, city := range cities {
		if err := cs.AddCompletion(task.ID, int64(i+1), city, ""); err != nil {
			t.Fatalf("completion %d: %v", i, err)
		}
	}

	completions, err := cs.Completions(task.ID)
	if err != nil {
		t.Fatalf("completions: %v", err)
	}
	if len(completions) != len(cities) {
		t.Fatalf("completions = %d, want %d", len(completions), len(cities))
	}
	for i, city := range cities {
		if completions[i].City != city {
			t.Errorf("completions[%d].City = %q, want %q", i, completions[i].City, city)
		}
	}
}

func TestHasCompletion(t *testing.T) {
	cs := setupCampaignTestDB(t)

	task, _ := cs.Create("Check", "", time.Now().Add(24*time.Hour))

	done, err := cs.HasCompletion(task.ID, "Riverton")
	if err != nil {
		t.Fatalf("has completion: %v", err)
	}
	if done {
		t.Error("expected no completion yet")
	}

	cs.AddCompletion(task.ID, 1, "Riverton", "")
	done, _ = cs.HasCompletion(task.ID, "Riverton")
	if !done {
		t.Error("expected completion after insert")
	}
}

func TestDeleteExpiredPurgesCompletions(t *testing.T) {
	cs := setupCampaignTestDB(t)

	expired, _ := cs.Create("Old", "", time.Now().Add(-1*time.Hour))
	live, _ := cs.Create("Current", "", time.Now().Add(24*time.Hour))
	cs.AddCompletion(expired.ID, 1, "Riverton", "links")
	cs.AddCompletion(live.ID, 1, "Riverton", "links")

	n, err := cs.DeleteExpired(time.Now())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	gone, _ := cs.GetByID(expired.ID)
	if gone != nil {
		t.Error("expired task should be gone")
	}
	completions, _ := cs.Completions(expired.ID)
	if len(completions) != 0 {
		t.Errorf("expected 0 completions for purged task, got %d", len(completions))
	}

	kept, _ := cs.GetByID(live.ID)
	if kept == nil {
		t.Error("live task should survive the purge")
	}
}
