// Package achievement manages unlockable badges and the per-user counters
// that drive their thresholds.
package achievement

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/notify"
	"github.com/avlasov/munipoints/internal/store"
)

// Fixed point awards. Manual grants are rarer and curated, hence larger.
const (
	AutoAward   = 5
	ManualAward = 10
)

type Engine struct {
	achievements *store.AchievementStore
	dispatcher   *notify.Dispatcher
	tables       *config.Tables
	log          *slog.Logger
}

func NewEngine(achievements *store.AchievementStore, dispatcher *notify.Dispatcher, tables *config.Tables, log *slog.Logger) *Engine {
	return &Engine{
		achievements: achievements,
		dispatcher:   dispatcher,
		tables:       tables,
		log:          log,
	}
}

// Unlock grants an automatic (threshold-driven) achievement. Returns
// store.ErrAlreadyUnlocked when the user already holds it.
func (e *Engine) Unlock(userID int64, achievementID string) error {
	if err := e.achievements.Unlock(userID, achievementID, false, nil, "", AutoAward); err != nil {
		return err
	}
	e.announce(userID, achievementID)
	return nil
}

// Grant is an admin-curated manual unlock.
func (e *Engine) Grant(userID int64, achievementID string, adminID int64, reason string) error {
	if err := e.achievements.Unlock(userID, achievementID, true, &adminID, reason, ManualAward); err != nil {
		return err
	}
	e.announce(userID, achievementID)
	return nil
}

// Remove takes an achievement away. The point grant stays: the data model
// cannot reconstruct which ledger entry to reverse unambiguously.
func (e *Engine) Remove(userID int64, achievementID string, adminID int64, reason string) error {
	return e.achievements.Remove(userID, achievementID, adminID, reason)
}

func (e *Engine) announce(userID int64, achievementID string) {
	info := e.tables.Achievements[achievementID]
	e.dispatcher.SendSticker(userID, info.StickerID, e.tables.AchievementEmoji(achievementID))
	e.dispatcher.Send(userID, fmt.Sprintf("🎉 New achievement!\n\n%s", e.tables.AchievementMessage(achievementID)))
	if err := e.achievements.MarkNotified(userID, achievementID); err != nil {
		e.log.Error("achievement: mark notified", "user", userID, "achievement", achievementID, "err", err)
	}
}

// BumpCounter increments a counter and returns its new value. Threshold
// checks are deliberately NOT run here; automatic unlocking happens only
// through explicit CheckThresholds call sites.
func (e *Engine) BumpCounter(userID int64, kind string, delta int) (int, error) {
	return e.achievements.BumpCounter(userID, kind, delta)
}

// CheckThresholds unlocks every achievement whose configured threshold for
// the counter kind is satisfied by value, and returns the ids newly
// unlocked. Already-held achievements are skipped.
func (e *Engine) CheckThresholds(userID int64, kind string, value int) ([]string, error) {
	info, ok := e.tables.Counters[kind]
	if !ok {
		return nil, nil
	}

	thresholds := make([]int, 0, len(info.Thresholds))
	for threshold := range info.Thresholds {
		thresholds = append(thresholds, threshold)
	}
	sort.Ints(thresholds)

	var unlocked []string
	for _, threshold := range thresholds {
		if value < threshold {
			continue
		}
		achievementID := info.Thresholds[threshold]
		err := e.Unlock(userID, achievementID)
		if errors.Is(err, store.ErrAlreadyUnlocked) {
			continue
		}
		if err != nil {
			return unlocked, err
		}
		unlocked = append(unlocked, achievementID)
	}
	return unlocked, nil
}
