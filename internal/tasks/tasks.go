// Package tasks implements directly-assigned municipal tasks: created by an
// admin for one municipality or fanned out to all of them, closed by an admin
// with a group reward, and nagged about before their deadline.
package tasks

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/model"
	"github.com/avlasov/munipoints/internal/notify"
	"github.com/avlasov/munipoints/internal/store"
)

// DeadlineLookahead is how far ahead of a due date the reminder fires.
const DeadlineLookahead = 24 * time.Hour

type Engine struct {
	tasks        *store.MunicipalTaskStore
	users        *store.UserStore
	achievements *store.AchievementStore
	catalog      *catalog.Store
	dispatcher   *notify.Dispatcher
	tables       *config.Tables
	log          *slog.Logger
}

func NewEngine(
	tasks *store.MunicipalTaskStore,
	users *store.UserStore,
	achievements *store.AchievementStore,
	cat *catalog.Store,
	dispatcher *notify.Dispatcher,
	tables *config.Tables,
	log *slog.Logger,
) *Engine {
	return &Engine{
		tasks:        tasks,
		users:        users,
		achievements: achievements,
		catalog:      cat,
		dispatcher:   dispatcher,
		tables:       tables,
		log:          log,
	}
}

// Assign creates the task and announces it to the assignees. An all-cities
// assignment fans out into one row per configured municipality but lands in
// the shared catalog as a single sentinel row. The catalog mirror is
// best-effort; a mirror failure never undoes the created rows.
func (e *Engine) Assign(name, description, city string, adminID int64, due *time.Time, reward int) ([]model.MunicipalTask, error) {
	var cities []string
	all := catalog.IsAllCities(city)
	if all {
		for c := range e.tables.Cities {
			cities = append(cities, c)
		}
	} else {
		cities = []string{city}
	}

	created := make([]model.MunicipalTask, 0, len(cities))
	for _, c := range cities {
		t, err := e.tasks.Create(name, description, c, adminID, due, reward, all)
		if err != nil {
			return created, fmt.Errorf("assign to %s: %w", c, err)
		}
		created = append(created, *t)
		e.announce(t)
	}

	dueStr := ""
	if due != nil {
		dueStr = due.Format(catalog.DateLayout)
	}
	if err := e.catalog.Add(name, description, city, dueStr); err != nil {
		e.log.Error("tasks: mirror to catalog", "task", name, "err", err)
	}
	return created, nil
}

func (e *Engine) announce(t *model.MunicipalTask) {
	text := fmt.Sprintf("📋 NEW TASK\n\n%s\n\n%s", t.Name, t.Description)
	if t.DueDate != nil {
		text += fmt.Sprintf("\n\n⏰ Due: %s", t.DueDate.Format(catalog.DateLayout))
	}
	if t.PointsReward > 0 {
		text += fmt.Sprintf("\n🏅 Reward: %d points", t.PointsReward)
	}
	e.notifyCity(t.AssignedCity, text)
}

func (e *Engine) notifyCity(city, text string) notify.Summary {
	members, err := e.users.ListByCity(city)
	if err != nil {
		e.log.Error("tasks: list city members", "city", city, "err", err)
		return notify.Summary{}
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return e.dispatcher.Broadcast(ids, text)
}

// Complete closes the task and rewards every current non-banned member of its
// municipality. The matching catalog row is dropped best-effort, the members
// are told, and their completion counters move.
func (e *Engine) Complete(taskID, adminID int64, reason string, amount int) (*model.MunicipalTask, int, error) {
	task, rewarded, err := e.tasks.Complete(taskID, adminID, reason, amount)
	if err != nil {
		return nil, 0, err
	}

	if removed, err := e.catalog.RemoveMatch(task.Name, task.AssignedCity); err != nil {
		e.log.Error("tasks: drop catalog row", "task", task.Name, "err", err)
	} else if !removed {
		e.log.Debug("tasks: no catalog row matched", "task", task.Name, "city", task.AssignedCity)
	}

	members, err := e.users.ListByCity(task.AssignedCity)
	if err != nil {
		e.log.Error("tasks: list city members", "city", task.AssignedCity, "err", err)
		return task, rewarded, nil
	}
	text := fmt.Sprintf(
		"✅ Task closed: %s\n\n%s\n🏅 +%d points for everyone in %s %s",
		task.Name, reason, amount, e.tables.CityEmoji(task.AssignedCity), task.AssignedCity,
	)
	for _, m := range members {
		e.dispatcher.Send(m.ID, text)
		if _, err := e.achievements.BumpCounter(m.ID, model.CounterTasksCompleted, 1); err != nil {
			e.log.Error("tasks: bump counter", "user", m.ID, "err", err)
		}
	}
	return task, rewarded, nil
}

// OpenForCity lists the municipality's open tasks, soonest due first.
func (e *Engine) OpenForCity(city string) ([]model.MunicipalTask, error) {
	return e.tasks.ListOpenByCity(city)
}

// Open lists every open task for the admin completion menu.
func (e *Engine) Open() ([]model.MunicipalTask, error) {
	return e.tasks.ListOpen()
}

// SweepDeadlines reminds each municipality about tasks entering the deadline
// window, at most once per task. Called from the maintenance loop.
func (e *Engine) SweepDeadlines(now time.Time) error {
	due, err := e.tasks.DueSoon(now, DeadlineLookahead)
	if err != nil {
		return err
	}
	for _, t := range due {
		text := fmt.Sprintf(
			"⏰ DEADLINE APPROACHING\n\n%s\n\nDue: %s",
			t.Name, t.DueDate.Format(catalog.DateLayout),
		)
		e.notifyCity(t.AssignedCity, text)
		if err := e.tasks.MarkDeadlineNotified(t.ID); err != nil {
			e.log.Error("tasks: mark deadline notified", "task", t.ID, "err", err)
			continue
		}
	}
	if len(due) > 0 {
		e.log.Info("deadline sweep sent reminders", "count", len(due))
	}
	return nil
}
