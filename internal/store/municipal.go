package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avlasov/munipoints/internal/model"
)

type MunicipalTaskStore struct {
	db *sql.DB
}

func NewMunicipalTaskStore(db *sql.DB) *MunicipalTaskStore {
	return &MunicipalTaskStore{db: db}
}

func scanMunicipalTask(scanner interface{ Scan(...any) error }) (*model.MunicipalTask, error) {
	var t model.MunicipalTask
	var due, completedAt sql.NullTime
	var completed, allCities, notified int

	err := scanner.Scan(&t.ID, &t.Name, &t.Description, &t.AssignedCity, &t.AssignedByAdmin,
		&t.AssignedAt, &due, &completed, &completedAt, &t.PointsReward, &allCities, &notified)
	if err != nil {
		return nil, err
	}

	if due.Valid {
		t.DueDate = &due.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	t.Completed = completed != 0
	t.AllCities = allCities != 0
	t.DeadlineNotified = notified != 0
	return &t, nil
}

const municipalTaskCols = `id, task_name, task_description, assigned_city, assigned_by_admin,
	assigned_at, due_date, is_completed, completed_at, points_reward, is_all_cities, deadline_notified`

// Create inserts one task row for a single municipality.
func (s *MunicipalTaskStore) Create(name, description, city string, adminID int64, due *time.Time, reward int, allCities bool) (*model.MunicipalTask, error) {
	var dueVal sql.NullTime
	if due != nil {
		dueVal = sql.NullTime{Time: due.UTC(), Valid: true}
	}
	var all int
	if allCities {
		all = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO municipal_tasks (task_name, task_description, assigned_city, assigned_by_admin, due_date, points_reward, is_all_cities)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, description, city, adminID, dueVal, reward, all,
	)
	if err != nil {
		return nil, fmt.Errorf("insert municipal task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MunicipalTaskStore) GetByID(id int64) (*model.MunicipalTask, error) {
	row := s.db.QueryRow(`SELECT `+municipalTaskCols+` FROM municipal_tasks WHERE id = ?`, id)
	t, err := scanMunicipalTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get municipal task: %w", err)
	}
	return t, nil
}

// ListOpenByCity returns incomplete tasks for a municipality, soonest due first.
func (s *MunicipalTaskStore) ListOpenByCity(city string) ([]model.MunicipalTask, error) {
	rows, err := s.db.Query(
		`SELECT `+municipalTaskCols+` FROM municipal_tasks
		 WHERE assigned_city = ? AND is_completed = 0
		 ORDER BY due_date IS NULL, due_date ASC, id ASC`,
		city,
	)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()
	return collectMunicipalTasks(rows)
}

// ListOpen returns every incomplete task, for the admin completion menu.
func (s *MunicipalTaskStore) ListOpen() ([]model.MunicipalTask, error) {
	rows, err := s.db.Query(
		`SELECT ` + municipalTaskCols + ` FROM municipal_tasks WHERE is_completed = 0 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()
	return collectMunicipalTasks(rows)
}

func collectMunicipalTasks(rows *sql.Rows) ([]model.MunicipalTask, error) {
	var tasks []model.MunicipalTask
	for rows.Next() {
		t, err := scanMunicipalTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan municipal task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Complete marks the task completed and, in the same transaction, applies the
// reward amount to every current non-banned member of the assigned city, one
// ledger entry each. A zero amount completes without touching the ledger.
// Returns ErrAlreadyCompleted if the task is already in its terminal state.
func (s *MunicipalTaskStore) Complete(taskID int64, adminID int64, reason string, amount int) (*model.MunicipalTask, int, error) {
	task, err := s.GetByID(taskID)
	if err != nil {
		return nil, 0, err
	}
	if task == nil {
		return nil, 0, fmt.Errorf("complete task %d: %w", taskID, ErrNotFound)
	}
	if task.Completed {
		return nil, 0, fmt.Errorf("complete task %d: %w", taskID, ErrAlreadyCompleted)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, 0, fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE municipal_tasks SET is_completed = 1, completed_at = datetime('now') WHERE id = ?`,
		taskID,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("mark completed: %w", err)
	}

	rewarded := 0
	if amount != 0 {
		rows, err := tx.Query(
			`SELECT user_id FROM users WHERE city = ? AND is_banned = 0`, task.AssignedCity,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("list city members: %w", err)
		}
		var memberIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, 0, fmt.Errorf("scan member id: %w", err)
			}
			memberIDs = append(memberIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("iterate members: %w", err)
		}
		rows.Close()

		entryReason := fmt.Sprintf("Task closed: %s (%s)", task.Name, reason)
		for _, id := range memberIDs {
			if _, err := tx.Exec(`UPDATE users SET points = points + ? WHERE user_id = ?`, amount, id); err != nil {
				return nil, 0, fmt.Errorf("reward member %d: %w", id, err)
			}
			if _, err := tx.Exec(
				`INSERT INTO points_history (user_id, amount, reason, admin_id) VALUES (?, ?, ?, ?)`,
				id, amount, entryReason, adminID,
			); err != nil {
				return nil, 0, fmt.Errorf("ledger entry for member %d: %w", id, err)
			}
		}
		rewarded = len(memberIDs)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit complete: %w", err)
	}

	done, err := s.GetByID(taskID)
	if err != nil {
		return nil, 0, err
	}
	return done, rewarded, nil
}

// DueSoon returns incomplete tasks due within the lookahead window that have
// not had a reminder sent yet.
func (s *MunicipalTaskStore) DueSoon(now time.Time, lookahead time.Duration) ([]model.MunicipalTask, error) {
	nowStr := now.UTC().Format("2006-01-02 15:04:05")
	endStr := now.Add(lookahead).UTC().Format("2006-01-02 15:04:05")

	rows, err := s.db.Query(
		`SELECT `+municipalTaskCols+` FROM municipal_tasks
		 WHERE is_completed = 0
		   AND due_date IS NOT NULL
		   AND due_date > ?
		   AND due_date <= ?
		   AND deadline_notified = 0`,
		nowStr, endStr,
	)
	if err != nil {
		return nil, fmt.Errorf("list due soon: %w", err)
	}
	defer rows.Close()
	return collectMunicipalTasks(rows)
}

// MarkDeadlineNotified gates the reminder to at most once per task.
func (s *MunicipalTaskStore) MarkDeadlineNotified(taskID int64) error {
	_, err := s.db.Exec(`UPDATE municipal_tasks SET deadline_notified = 1 WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("mark deadline notified: %w", err)
	}
	return nil
}
