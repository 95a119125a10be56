package tasks

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/database"
	"github.com/avlasov/munipoints/internal/model"
	"github.com/avlasov/munipoints/internal/notify"
	"github.com/avlasov/munipoints/internal/store"
)

type countingSender struct {
	messages map[int64]int
}

func (c *countingSender) SendMessage(userID int64, text string) error {
	c.messages[userID]++
	return nil
}
func (c *countingSender) SendSticker(userID int64, stickerID string) error      { return nil }
func (c *countingSender) SendDocument(userID int64, path, caption string) error { return nil }

func setupEngine(t *testing.T) (*Engine, *store.UserStore, *store.AchievementStore, *catalog.Store, *countingSender) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalogPath := filepath.Join(t.TempDir(), "tasks.csv")
	if err := os.WriteFile(catalogPath, []byte("Date,Task,Description,Responsible\n"), 0o644); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	users := store.NewUserStore(db)
	municipal := store.NewMunicipalTaskStore(db)
	achievements := store.NewAchievementStore(db)
	cat := catalog.NewStore(catalogPath)
	sender := &countingSender{messages: make(map[int64]int)}
	tables := &config.Tables{
		AdminIDs: []int64{900},
		Cities:   map[string]string{"Riverton": "🌉", "Lakeside": "🏞️"},
	}

	engine := NewEngine(municipal, users, achievements, cat, notify.New(sender, slog.Default()), tables, slog.Default())
	return engine, users, achievements, cat, sender
}

func TestAssignSingleCity(t *testing.T) {
	engine, users, _, cat, sender := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")
	users.SetCity(1, "Riverton")
	users.GetOrCreate(2, "b", "Boris", "")
	users.SetCity(2, "Lakeside")

	due := time.Now().Add(72 * time.Hour)
	created, err := engine.Assign("Publish report", "Quarterly numbers", "Riverton", 900, &due, 3)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if len(created) != 1 {
		t.Fatalf("created = %d rows, want 1", len(created))
	}
	if created[0].AssignedCity != "Riverton" || created[0].AllCities {
		t.Errorf("created = %+v, want single-city Riverton", created[0])
	}

	// Only the assigned municipality heard about it.
	if sender.messages[1] != 1 || sender.messages[2] != 0 {
		t.Errorf("announcements = %v, want only user 1", sender.messages)
	}

	rows, err := cat.LoadAll()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(rows) != 1 || rows[0].Responsible != "Riverton" {
		t.Errorf("catalog = %+v, want one Riverton row", rows)
	}
	if rows[0].Date != due.Format(catalog.DateLayout) {
		t.Errorf("catalog date = %q, want %q", rows[0].Date, due.Format(catalog.DateLayout))
	}
}

func TestAssignAllCitiesFansOut(t *testing.T) {
	engine, _, _, cat, _ := setupEngine(t)

	created, err := engine.Assign("City day", "Post the announcement", "all", 900, nil, 0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if len(created) != 2 {
		t.Fatalf("created = %d rows, want one per municipality", len(created))
	}
	seen := map[string]bool{}
	for _, c := range created {
		if !c.AllCities {
			t.Errorf("task %d should carry the all-cities flag", c.ID)
		}
		seen[c.AssignedCity] = true
	}
	if !seen["Riverton"] || !seen["Lakeside"] {
		t.Errorf("cities = %v, want both municipalities", seen)
	}

	// The catalog gets one sentinel row, not one per city.
	rows, _ := cat.LoadAll()
	if len(rows) != 1 || rows[0].Responsible != catalog.AllCities {
		t.Errorf("catalog = %+v, want single sentinel row", rows)
	}
}

func TestCompleteRewardsCityAndCleansCatalog(t *testing.T) {
	engine, users, achievements, cat, sender := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")
	users.SetCity(1, "Riverton")
	users.GetOrCreate(2, "b", "Boris", "")
	users.SetCity(2, "Riverton")
	users.SetBanned(2, true)

	created, err := engine.Assign("Publish report", "", "Riverton", 900, nil, 0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	task, rewarded, err := engine.Complete(created[0].ID, 900, "well done", 5)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !task.Completed {
		t.Error("task should be in terminal state")
	}
	if rewarded != 1 {
		t.Errorf("rewarded = %d, want 1 (banned member excluded)", rewarded)
	}

	u, _ := users.GetByID(1)
	if u.Points != 5 {
		t.Errorf("member points = %d, want 5", u.Points)
	}
	banned, _ := users.GetByID(2)
	if banned.Points != 0 {
		t.Errorf("banned member points = %d, want 0", banned.Points)
	}

	counters, _ := achievements.Counters(1)
	if counters[model.CounterTasksCompleted] != 1 {
		t.Errorf("counter = %d, want 1", counters[model.CounterTasksCompleted])
	}

	// Assignment + completion notice for the active member only.
	if sender.messages[1] != 2 {
		t.Errorf("messages to member = %d, want 2", sender.messages[1])
	}

	rows, _ := cat.LoadAll()
	if len(rows) != 0 {
		t.Errorf("catalog = %+v, want matching row removed", rows)
	}
}

func TestSweepDeadlinesNotifiesOnce(t *testing.T) {
	engine, users, _, _, sender := setupEngine(t)
	users.GetOrCreate(1, "a", "Anna", "")
	users.SetCity(1, "Riverton")

	soon := time.Now().Add(2 * time.Hour)
	far := time.Now().Add(10 * 24 * time.Hour)
	engine.Assign("Urgent", "", "Riverton", 900, &soon, 0)
	engine.Assign("Later", "", "Riverton", 900, &far, 0)
	before := sender.messages[1]

	if err := engine.SweepDeadlines(time.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := sender.messages[1] - before; got != 1 {
		t.Errorf("reminders = %d, want 1 (far task outside window)", got)
	}

	// The reminder is gated to once per task.
	if err := engine.SweepDeadlines(time.Now()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if got := sender.messages[1] - before; got != 1 {
		t.Errorf("reminders after resweep = %d, want still 1", got)
	}
}
