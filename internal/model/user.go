package model

import "time"

// CityUnset is the city value for users who have not picked a municipality yet.
const CityUnset = "Not set"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	City         string    `json:"city"`
	Points       int       `json:"points"`
	RegisteredAt time.Time `json:"registered_at"`
	LastActive   time.Time `json:"last_active"`
	Banned       bool      `json:"banned"`
}

// HasCity reports whether the user has picked a municipality.
func (u *User) HasCity() bool {
	return u.City != "" && u.City != CityUnset
}

// PointsEntry is one immutable row of the points ledger. AdminID is nil for
// system-initiated adjustments.
type PointsEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	AdminID   *int64    `json:"admin_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CityTotal aggregates ledger balances per municipality for the standings view.
type CityTotal struct {
	City    string `json:"city"`
	Points  int    `json:"points"`
	Members int    `json:"members"`
}
