package model

import "time"

// MunicipalTask is an admin-assigned task tracked internally, distinct from
// rows in the external catalog. Assigning to all municipalities fans out into
// one row per city, each independently completable.
type MunicipalTask struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	AssignedCity     string     `json:"assigned_city"`
	AssignedByAdmin  int64      `json:"assigned_by_admin"`
	AssignedAt       time.Time  `json:"assigned_at"`
	DueDate          *time.Time `json:"due_date"`
	Completed        bool       `json:"completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	PointsReward     int        `json:"points_reward"`
	AllCities        bool       `json:"all_cities"`
	DeadlineNotified bool       `json:"deadline_notified"`
}
