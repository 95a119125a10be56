package model

import "time"

// Achievement is a current-state unlock record. The (UserID, AchievementID)
// pair is unique; re-unlocking is a no-op at the store level.
type Achievement struct {
	UserID        int64     `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
	Manual        bool      `json:"manual"`
	AdminID       *int64    `json:"admin_id"`
	Notified      bool      `json:"notified"`
}

// AchievementEvent is an append-only history row. Unlike the current-state
// table it survives admin removals.
type AchievementEvent struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
	Manual        bool      `json:"manual"`
	AdminID       *int64    `json:"admin_id"`
	Reason        string    `json:"reason"`
	PointsAwarded int       `json:"points_awarded"`
}

// AchievementRemoval records an admin taking an achievement away. The original
// point grant is not reversed.
type AchievementRemoval struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	AdminID       int64     `json:"admin_id"`
	Reason        string    `json:"reason"`
	RemovedAt     time.Time `json:"removed_at"`
}

// Counter is a monotonically increasing per-user metric.
type Counter struct {
	UserID      int64     `json:"user_id"`
	Kind        string    `json:"kind"`
	Value       int       `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// Counter kinds.
const (
	CounterTasksCompleted     = "tasks_completed"
	CounterCampaignsCompleted = "campaigns_completed"
)
