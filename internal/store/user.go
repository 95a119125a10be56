package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avlasov/munipoints/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var banned int

	err := scanner.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.City,
		&u.Points, &u.RegisteredAt, &u.LastActive, &banned)
	if err != nil {
		return nil, err
	}

	u.Banned = banned != 0
	return &u, nil
}

const userCols = `user_id, username, first_name, last_name, city, points, registered_at, last_active, is_banned`

// GetOrCreate returns the user with the given id, creating it on first
// contact. The insert is an upsert so concurrent first contacts cannot create
// duplicates.
func (s *UserStore) GetOrCreate(id int64, username, firstName, lastName string) (*model.User, error) {
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, username, first_name, last_name, city) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		id, username, firstName, lastName, model.CityUnset,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	u, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("get created user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE user_id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// AdjustPoints applies a signed amount to the user's balance and appends the
// matching ledger entry in the same transaction. It returns the new balance.
// adminID is nil for system-initiated adjustments. Callers wanting to avoid a
// negative balance on a debit clamp the amount before calling.
func (s *UserStore) AdjustPoints(userID int64, amount int, reason string, adminID *int64) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin adjust points: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE users SET points = points + ? WHERE user_id = ?`, amount, userID)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("adjust points for user %d: %w", userID, ErrNotFound)
	}

	var aID sql.NullInt64
	if adminID != nil {
		aID = sql.NullInt64{Int64: *adminID, Valid: true}
	}
	_, err = tx.Exec(
		`INSERT INTO points_history (user_id, amount, reason, admin_id) VALUES (?, ?, ?, ?)`,
		userID, amount, reason, aID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}

	var balance int
	if err := tx.QueryRow(`SELECT points FROM users WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit adjust points: %w", err)
	}
	return balance, nil
}

// SetCity overwrites the user's municipality. Validation against the
// configured city table happens at the call site.
func (s *UserStore) SetCity(userID int64, city string) error {
	res, err := s.db.Exec(`UPDATE users SET city = ? WHERE user_id = ?`, city, userID)
	if err != nil {
		return fmt.Errorf("set city: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set city for user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// Touch bumps the user's last-active timestamp.
func (s *UserStore) Touch(userID int64) error {
	_, err := s.db.Exec(`UPDATE users SET last_active = datetime('now') WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

func (s *UserStore) SetBanned(userID int64, banned bool) error {
	var b int
	if banned {
		b = 1
	}
	_, err := s.db.Exec(`UPDATE users SET is_banned = ? WHERE user_id = ?`, b, userID)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

func scanEntry(scanner interface{ Scan(...any) error }) (*model.PointsEntry, error) {
	var e model.PointsEntry
	var adminID sql.NullInt64

	err := scanner.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &adminID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if adminID.Valid {
		e.AdminID = &adminID.Int64
	}
	return &e, nil
}

const entryCols = `id, user_id, amount, reason, admin_id, created_at`

// History returns the most recent ledger entries for a user, newest first.
func (s *UserStore) History(userID int64, limit int) ([]model.PointsEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+entryCols+` FROM points_history WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// SumHistory returns the sum of all ledger amounts for a user. The cached
// balance on the user row must always equal this.
func (s *UserStore) SumHistory(userID int64) (int, error) {
	var sum int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM points_history WHERE user_id = ?`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum history: %w", err)
	}
	return sum, nil
}

// ListByCity returns the non-banned members of a municipality.
func (s *UserStore) ListByCity(city string) ([]model.User, error) {
	rows, err := s.db.Query(`SELECT `+userCols+` FROM users WHERE city = ? AND is_banned = 0`, city)
	if err != nil {
		return nil, fmt.Errorf("list by city: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListActive returns every non-banned user, for broadcast fan-out.
func (s *UserStore) ListActive() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users WHERE is_banned = 0`)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CityTotals aggregates balances and member counts per municipality,
// highest total first. Users without a municipality are excluded.
func (s *UserStore) CityTotals() ([]model.CityTotal, error) {
	rows, err := s.db.Query(
		`SELECT city, COALESCE(SUM(points), 0), COUNT(*) FROM users
		 WHERE city != ? AND is_banned = 0
		 GROUP BY city ORDER BY SUM(points) DESC`,
		model.CityUnset,
	)
	if err != nil {
		return nil, fmt.Errorf("city totals: %w", err)
	}
	defer rows.Close()

	var totals []model.CityTotal
	for rows.Next() {
		var t model.CityTotal
		if err := rows.Scan(&t.City, &t.Points, &t.Members); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ReportRow is one line of the points-history export, with user and admin
// names resolved.
type ReportRow struct {
	Date      time.Time
	UserID    int64
	UserName  string
	City      string
	Amount    int
	Reason    string
	AdminID   *int64
	AdminName string
}

// HistoryReport returns ledger entries joined with user data for the export,
// newest first, optionally bounded by [start, end].
func (s *UserStore) HistoryReport(start, end *time.Time) ([]ReportRow, error) {
	query := `SELECT ph.created_at, ph.user_id, COALESCE(u.first_name, ''), COALESCE(u.city, ''),
	                 ph.amount, ph.reason, ph.admin_id, COALESCE(a.first_name, '')
	          FROM points_history ph
	          LEFT JOIN users u ON ph.user_id = u.user_id
	          LEFT JOIN users a ON ph.admin_id = a.user_id
	          WHERE 1=1`
	var args []any
	if start != nil {
		query += ` AND ph.created_at >= ?`
		args = append(args, start.UTC().Format("2006-01-02 15:04:05"))
	}
	if end != nil {
		query += ` AND ph.created_at <= ?`
		args = append(args, end.UTC().Format("2006-01-02 15:04:05"))
	}
	query += ` ORDER BY ph.created_at DESC, ph.id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history report: %w", err)
	}
	defer rows.Close()

	var report []ReportRow
	for rows.Next() {
		var r ReportRow
		var adminID sql.NullInt64
		if err := rows.Scan(&r.Date, &r.UserID, &r.UserName, &r.City, &r.Amount, &r.Reason, &adminID, &r.AdminName); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if adminID.Valid {
			r.AdminID = &adminID.Int64
		}
		report = append(report, r)
	}
	return report, rows.Err()
}
