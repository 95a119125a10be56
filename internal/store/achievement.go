package store

import (
	"database/sql"
	"fmt"

	"github.com/avlasov/munipoints/internal/model"
)

type AchievementStore struct {
	db *sql.DB
}

func NewAchievementStore(db *sql.DB) *AchievementStore {
	return &AchievementStore{db: db}
}

// Unlock records an achievement for a user: current-state row, history row,
// fixed point award with its ledger entry, all in one transaction. The
// existence check runs inside the same transaction so a concurrent unlock of
// the same pair cannot double-grant. Returns ErrAlreadyUnlocked when held.
func (s *AchievementStore) Unlock(userID int64, achievementID string, manual bool, adminID *int64, reason string, points int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin unlock: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow(
		`SELECT 1 FROM user_achievements WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	).Scan(&one)
	if err == nil {
		return fmt.Errorf("unlock %s for user %d: %w", achievementID, userID, ErrAlreadyUnlocked)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check unlock: %w", err)
	}

	var m int
	if manual {
		m = 1
	}
	var aID sql.NullInt64
	if adminID != nil {
		aID = sql.NullInt64{Int64: *adminID, Valid: true}
	}

	_, err = tx.Exec(
		`INSERT INTO user_achievements (user_id, achievement_id, is_manual, admin_id) VALUES (?, ?, ?, ?)`,
		userID, achievementID, m, aID,
	)
	if isUniqueViolation(err) {
		// Lost a race with a concurrent unlock of the same pair.
		return fmt.Errorf("unlock %s for user %d: %w", achievementID, userID, ErrAlreadyUnlocked)
	}
	if err != nil {
		return fmt.Errorf("insert achievement: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO achievements_history (user_id, achievement_id, is_manual, admin_id, reason, points_awarded)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, achievementID, m, aID, reason, points,
	)
	if err != nil {
		return fmt.Errorf("insert achievement history: %w", err)
	}

	if points != 0 {
		if _, err := tx.Exec(`UPDATE users SET points = points + ? WHERE user_id = ?`, points, userID); err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		kind := "Achievement"
		if manual {
			kind = "Manual achievement"
		}
		entryReason := fmt.Sprintf("%s: %s", kind, achievementID)
		if reason != "" {
			entryReason += " (" + reason + ")"
		}
		if _, err := tx.Exec(
			`INSERT INTO points_history (user_id, amount, reason, admin_id) VALUES (?, ?, ?, ?)`,
			userID, points, entryReason, aID,
		); err != nil {
			return fmt.Errorf("ledger entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unlock: %w", err)
	}
	return nil
}

// Remove deletes the current-state row and appends a removal-history row. The
// original point award is deliberately left in place.
func (s *AchievementStore) Remove(userID int64, achievementID string, adminID int64, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`DELETE FROM user_achievements WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	)
	if err != nil {
		return fmt.Errorf("delete achievement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("remove %s from user %d: %w", achievementID, userID, ErrNotHeld)
	}

	_, err = tx.Exec(
		`INSERT INTO achievement_removals (user_id, achievement_id, admin_id, reason) VALUES (?, ?, ?, ?)`,
		userID, achievementID, adminID, reason,
	)
	if err != nil {
		return fmt.Errorf("insert removal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

// Has reports whether the user currently holds the achievement.
func (s *AchievementStore) Has(userID int64, achievementID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM user_achievements WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check achievement: %w", err)
	}
	return true, nil
}

// ListByUser returns the user's current achievements, newest first.
func (s *AchievementStore) ListByUser(userID int64) ([]model.Achievement, error) {
	rows, err := s.db.Query(
		`SELECT user_id, achievement_id, unlocked_at, is_manual, admin_id, notified
		 FROM user_achievements WHERE user_id = ? ORDER BY unlocked_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var achievements []model.Achievement
	for rows.Next() {
		var a model.Achievement
		var manual, notified int
		var adminID sql.NullInt64
		if err := rows.Scan(&a.UserID, &a.AchievementID, &a.UnlockedAt, &manual, &adminID, &notified); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		a.Manual = manual != 0
		a.Notified = notified != 0
		if adminID.Valid {
			a.AdminID = &adminID.Int64
		}
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

// MarkNotified flags the unlock as announced to the user.
func (s *AchievementStore) MarkNotified(userID int64, achievementID string) error {
	_, err := s.db.Exec(
		`UPDATE user_achievements SET notified = 1 WHERE user_id = ? AND achievement_id = ?`,
		userID, achievementID,
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// History returns the append-only unlock history for a user, newest first.
func (s *AchievementStore) History(userID int64) ([]model.AchievementEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, achievement_id, unlocked_at, is_manual, admin_id, reason, points_awarded
		 FROM achievements_history WHERE user_id = ? ORDER BY unlocked_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list achievement history: %w", err)
	}
	defer rows.Close()

	var events []model.AchievementEvent
	for rows.Next() {
		var e model.AchievementEvent
		var manual int
		var adminID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.UserID, &e.AchievementID, &e.UnlockedAt, &manual, &adminID, &e.Reason, &e.PointsAwarded); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		e.Manual = manual != 0
		if adminID.Valid {
			e.AdminID = &adminID.Int64
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Counter methods ---

// BumpCounter increments-or-creates the counter row and returns the new value.
func (s *AchievementStore) BumpCounter(userID int64, kind string, delta int) (int, error) {
	_, err := s.db.Exec(
		`INSERT INTO user_counters (user_id, counter_type, value, last_updated)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(user_id, counter_type)
		 DO UPDATE SET value = value + excluded.value, last_updated = datetime('now')`,
		userID, kind, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("bump counter: %w", err)
	}

	var value int
	err = s.db.QueryRow(
		`SELECT value FROM user_counters WHERE user_id = ? AND counter_type = ?`,
		userID, kind,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return value, nil
}

// SumCounters totals counters across all users by kind, for the admin
// statistics view.
func (s *AchievementStore) SumCounters() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT counter_type, SUM(value) FROM user_counters GROUP BY counter_type`)
	if err != nil {
		return nil, fmt.Errorf("sum counters: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var kind string
		var total int
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("scan counter total: %w", err)
		}
		totals[kind] = total
	}
	return totals, rows.Err()
}

// Counters returns all counters for a user keyed by kind.
func (s *AchievementStore) Counters(userID int64) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT counter_type, value FROM user_counters WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	counters := make(map[string]int)
	for rows.Next() {
		var kind string
		var value int
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters[kind] = value
	}
	return counters, rows.Err()
}
