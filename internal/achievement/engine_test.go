package achievement

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/database"
	"github.com/avlasov/munipoints/internal/model"
	"github.com/avlasov/munipoints/internal/notify"
	"github.com/avlasov/munipoints/internal/store"
)

type recordingSender struct {
	messages     map[int64][]string
	stickers     map[int64][]string
	failStickers bool
}

func (r *recordingSender) SendMessage(userID int64, text string) error {
	r.messages[userID] = append(r.messages[userID], text)
	return nil
}

func (r *recordingSender) SendSticker(userID int64, stickerID string) error {
	if r.failStickers {
		return errors.New("sticker rejected")
	}
	r.stickers[userID] = append(r.stickers[userID], stickerID)
	return nil
}

func (r *recordingSender) SendDocument(userID int64, path, caption string) error { return nil }

func setupEngine(t *testing.T) (*Engine, *store.UserStore, *store.AchievementStore, *recordingSender) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	achievements := store.NewAchievementStore(db)
	sender := &recordingSender{
		messages: make(map[int64][]string),
		stickers: make(map[int64][]string),
	}
	tables := &config.Tables{
		Cities: map[string]string{"Riverton": "🌉"},
		Achievements: map[string]config.AchievementInfo{
			"first_task":  {Emoji: "🥇", StickerID: "STICKER1", Message: "First task done!"},
			"ten_tasks":   {Emoji: "🔟", StickerID: "", Message: "Ten tasks done!"},
			"hand_picked": {Emoji: "✨", Message: "An admin noticed your work."},
		},
		Counters: map[string]config.CounterInfo{
			model.CounterTasksCompleted: {
				Name: "Tasks completed",
				Thresholds: map[int]string{
					1:  "first_task",
					10: "ten_tasks",
				},
			},
		},
	}

	engine := NewEngine(achievements, notify.New(sender, slog.Default()), tables, slog.Default())
	return engine, users, achievements, sender
}

func TestAutoUnlockAwardsAndNotifies(t *testing.T) {
	engine, users, achievements, sender := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")

	if err := engine.Unlock(1, "first_task"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	u, _ := users.GetByID(1)
	if u.Points != AutoAward {
		t.Errorf("points = %d, want %d", u.Points, AutoAward)
	}
	if len(sender.stickers[1]) != 1 {
		t.Errorf("stickers sent = %d, want 1", len(sender.stickers[1]))
	}
	if len(sender.messages[1]) != 1 {
		t.Errorf("messages sent = %d, want 1", len(sender.messages[1]))
	}

	held, _ := achievements.ListByUser(1)
	if len(held) != 1 || !held[0].Notified {
		t.Errorf("held = %+v, want one notified achievement", held)
	}

	// Second unlock of the same badge changes nothing.
	if err := engine.Unlock(1, "first_task"); !errors.Is(err, store.ErrAlreadyUnlocked) {
		t.Errorf("err = %v, want ErrAlreadyUnlocked", err)
	}
	u, _ = users.GetByID(1)
	if u.Points != AutoAward {
		t.Errorf("points after repeat = %d, want %d", u.Points, AutoAward)
	}
}

func TestManualGrantAwardsMore(t *testing.T) {
	engine, users, achievements, _ := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")

	if err := engine.Grant(1, "hand_picked", 900, "great coverage"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	u, _ := users.GetByID(1)
	if u.Points != ManualAward {
		t.Errorf("points = %d, want %d", u.Points, ManualAward)
	}

	events, _ := achievements.History(1)
	if len(events) != 1 || !events[0].Manual || events[0].Reason != "great coverage" {
		t.Errorf("history = %+v, want one manual event with reason", events)
	}
}

func TestStickerFallbackToEmoji(t *testing.T) {
	engine, users, _, sender := setupEngine(t)
	sender.failStickers = true
	users.GetOrCreate(1, "a", "Anna", "")

	if err := engine.Unlock(1, "first_task"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// Fallback emoji plus the congratulation message.
	if got := len(sender.messages[1]); got != 2 {
		t.Errorf("messages sent = %d, want 2 (emoji fallback + text)", got)
	}
	if sender.messages[1][0] != "🥇" {
		t.Errorf("fallback = %q, want badge emoji", sender.messages[1][0])
	}
}

func TestRemoveKeepsPoints(t *testing.T) {
	engine, users, achievements, _ := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")

	engine.Unlock(1, "first_task")
	if err := engine.Remove(1, "first_task", 900, "posted by someone else"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	u, _ := users.GetByID(1)
	if u.Points != AutoAward {
		t.Errorf("points after removal = %d, want %d kept", u.Points, AutoAward)
	}
	held, _ := achievements.Has(1, "first_task")
	if held {
		t.Error("achievement should be removed")
	}

	if err := engine.Remove(1, "first_task", 900, "again"); !errors.Is(err, store.ErrNotHeld) {
		t.Errorf("err = %v, want ErrNotHeld", err)
	}
}

func TestBumpCounterDoesNotUnlock(t *testing.T) {
	engine, users, achievements, _ := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")

	value, err := engine.BumpCounter(1, model.CounterTasksCompleted, 1)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if value != 1 {
		t.Errorf("counter = %d, want 1", value)
	}

	// Crossing a threshold via a bump alone grants nothing.
	held, _ := achievements.Has(1, "first_task")
	if held {
		t.Error("bump must not unlock achievements on its own")
	}
}

func TestCheckThresholds(t *testing.T) {
	engine, users, achievements, _ := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")

	unlocked, err := engine.CheckThresholds(1, model.CounterTasksCompleted, 3)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0] != "first_task" {
		t.Errorf("unlocked = %v, want [first_task]", unlocked)
	}

	// Re-checking at a higher value skips the held badge and adds the next.
	unlocked, err = engine.CheckThresholds(1, model.CounterTasksCompleted, 12)
	if err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0] != "ten_tasks" {
		t.Errorf("unlocked = %v, want [ten_tasks]", unlocked)
	}

	u, _ := users.GetByID(1)
	if u.Points != 2*AutoAward {
		t.Errorf("points = %d, want %d", u.Points, 2*AutoAward)
	}

	// Unknown counter kinds are a no-op.
	unlocked, err = engine.CheckThresholds(1, "unknown", 100)
	if err != nil || unlocked != nil {
		t.Errorf("unknown kind = %v/%v, want nil/nil", unlocked, err)
	}

	held, _ := achievements.ListByUser(1)
	if len(held) != 2 {
		t.Errorf("held = %d, want 2", len(held))
	}
}
