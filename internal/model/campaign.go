package model

import "time"

// CampaignTask is a time-boxed broadcast task. Every municipality may complete
// it at most once; expired tasks are purged together with their completions.
type CampaignTask struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type CampaignCompletion struct {
	TaskID      int64     `json:"task_id"`
	UserID      int64     `json:"user_id"`
	City        string    `json:"city"`
	Links       string    `json:"links"`
	CompletedAt time.Time `json:"completed_at"`
}
