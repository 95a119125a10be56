// Package campaign implements broadcast tasks: time-boxed tasks announced to
// every team, completable at most once per municipality against submitted
// proof links.
package campaign

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/model"
	"github.com/avlasov/munipoints/internal/notify"
	"github.com/avlasov/munipoints/internal/store"
)

// Lifetime is how long a campaign task accepts completions after creation.
const Lifetime = 7 * 24 * time.Hour

// attemptTTL bounds how long an abandoned link submission captures the
// user's messages.
const attemptTTL = 2 * time.Hour

var (
	// ErrNoCity means the user must pick a municipality before starting.
	ErrNoCity = errors.New("no municipality set")

	// ErrNoRecognizedLinks means the submission contained no links from a
	// recognized platform; nothing was mutated.
	ErrNoRecognizedLinks = errors.New("no recognized links")

	// ErrNoAttempt means the user has no active submission in progress.
	ErrNoAttempt = errors.New("no active attempt")
)

type Engine struct {
	users        *store.UserStore
	campaigns    *store.CampaignStore
	achievements *store.AchievementStore
	dispatcher   *notify.Dispatcher
	attempts     *AttemptStore
	audit        *Audit
	tables       *config.Tables
	log          *slog.Logger
}

func NewEngine(
	users *store.UserStore,
	campaigns *store.CampaignStore,
	achievements *store.AchievementStore,
	dispatcher *notify.Dispatcher,
	audit *Audit,
	tables *config.Tables,
	log *slog.Logger,
) *Engine {
	return &Engine{
		users:        users,
		campaigns:    campaigns,
		achievements: achievements,
		dispatcher:   dispatcher,
		attempts:     NewAttemptStore(attemptTTL),
		audit:        audit,
		tables:       tables,
		log:          log,
	}
}

// Attempts exposes the session store so the command router can route
// free-text messages from users mid-submission.
func (e *Engine) Attempts() *AttemptStore {
	return e.attempts
}

// Create inserts a new campaign task with the standard lifetime. Announcing
// it to users is the caller's job: the announcement carries a submission
// button, which lives at the transport layer.
func (e *Engine) Create(name, description string) (*model.CampaignTask, error) {
	task, err := e.campaigns.Create(name, description, time.Now().Add(Lifetime))
	if err != nil {
		return nil, err
	}
	e.log.Info("campaign created", "task", task.ID, "name", task.Name, "expires", task.ExpiresAt)
	return task, nil
}

// Start validates that the user may attempt the task and registers the
// in-memory attempt: their next free-text message becomes the submission.
func (e *Engine) Start(userID, taskID int64) error {
	user, err := e.users.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil || !user.HasCity() {
		return ErrNoCity
	}

	task, err := e.campaigns.GetByID(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("campaign task %d: %w", taskID, store.ErrNotFound)
	}

	done, err := e.campaigns.HasCompletion(taskID, user.City)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("campaign task %d for %s: %w", taskID, user.City, store.ErrAlreadyCompleted)
	}

	e.attempts.Begin(userID, taskID)
	return nil
}

// Result summarizes a successful submission. Awarded is false when the
// completion was recorded but the points grant failed; NewBalance is then
// meaningless and the caller should not quote it.
type Result struct {
	TaskID     int64
	Links      Links
	Points     int
	NewBalance int
	Completed  int // campaigns completed counter after this one
	Awarded    bool
}

// Submit processes the user's link message for their active attempt.
//
// A submission with no recognized links fails with ErrNoRecognizedLinks and
// leaves the attempt open for a retry. When the municipality already holds a
// completion (a teammate won the race), the attempt is cleared and
// store.ErrAlreadyCompleted is returned for the router to phrase as a normal
// outcome.
func (e *Engine) Submit(userID int64, text string) (*Result, error) {
	taskID, ok := e.attempts.Active(userID)
	if !ok {
		return nil, ErrNoAttempt
	}

	links := ParseLinks(text)
	if links.Empty() {
		return nil, ErrNoRecognizedLinks
	}

	user, err := e.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasCity() {
		e.attempts.Clear(userID)
		return nil, ErrNoCity
	}

	// The insert arbitrates concurrent submissions from the same city.
	if err := e.campaigns.AddCompletion(taskID, userID, user.City, strings.Join(links.All(), "\n")); err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) {
			e.attempts.Clear(userID)
		}
		return nil, err
	}

	completedCount, err := e.achievements.BumpCounter(userID, model.CounterCampaignsCompleted, 1)
	if err != nil {
		e.log.Error("campaign: bump counter", "user", userID, "err", err)
	}

	points := links.Reward()
	awarded := true
	balance, err := e.users.AdjustPoints(userID, points, fmt.Sprintf("Broadcast task #%d", taskID), nil)
	if err != nil {
		awarded = false
		e.log.Error("campaign: award points", "user", userID, "err", err)
	}

	if err := e.audit.Append(taskID, user.City, links.All()); err != nil {
		e.log.Error("campaign: audit append", "task", taskID, "err", err)
	}

	e.notifyAdmins(taskID, user, points, awarded)
	e.attempts.Clear(userID)

	return &Result{
		TaskID:     taskID,
		Links:      links,
		Points:     points,
		NewBalance: balance,
		Completed:  completedCount,
		Awarded:    awarded,
	}, nil
}

func (e *Engine) notifyAdmins(taskID int64, user *model.User, points int, awarded bool) {
	text := fmt.Sprintf(
		"📊 Broadcast task #%d completed\n\n%s %s\n👤 %s\n🏅 +%d points",
		taskID, e.tables.CityEmoji(user.City), user.City, user.FirstName, points,
	)
	if !awarded {
		text += "\n\n⚠️ The points grant failed; credit them manually."
	}
	e.dispatcher.Broadcast(e.tables.AdminIDs, text)
}

// SweepExpired purges expired tasks with their completions and evicts stale
// attempts. Called from the maintenance loop.
func (e *Engine) SweepExpired(now time.Time) error {
	n, err := e.campaigns.DeleteExpired(now)
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.Info("campaign sweep purged expired tasks", "count", n)
	}
	if evicted := e.attempts.EvictStale(); evicted > 0 {
		e.log.Debug("campaign sweep evicted stale attempts", "count", evicted)
	}
	return nil
}
