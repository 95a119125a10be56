package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avlasov/munipoints/internal/model"
)

type CampaignStore struct {
	db *sql.DB
}

func NewCampaignStore(db *sql.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

func scanCampaignTask(scanner interface{ Scan(...any) error }) (*model.CampaignTask, error) {
	var t model.CampaignTask
	err := scanner.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const campaignTaskCols = `id, task_name, task_description, created_at, expires_at`

// Create inserts a campaign task expiring at the given time.
func (s *CampaignStore) Create(name, description string, expiresAt time.Time) (*model.CampaignTask, error) {
	result, err := s.db.Exec(
		`INSERT INTO campaign_tasks (task_name, task_description, expires_at) VALUES (?, ?, ?)`,
		name, description, expiresAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert campaign task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CampaignStore) GetByID(id int64) (*model.CampaignTask, error) {
	row := s.db.QueryRow(`SELECT `+campaignTaskCols+` FROM campaign_tasks WHERE id = ?`, id)
	t, err := scanCampaignTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign task: %w", err)
	}
	return t, nil
}

// HasCompletion reports whether the municipality already completed the task.
func (s *CampaignStore) HasCompletion(taskID int64, city string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM campaign_completions WHERE task_id = ? AND city = ?`, taskID, city,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return true, nil
}

// AddCompletion records a completion for (task, city). The uniqueness
// constraint arbitrates races between members of the same municipality: the
// loser gets ErrAlreadyCompleted, which callers surface as a normal "already
// done by your team" outcome.
func (s *CampaignStore) AddCompletion(taskID, userID int64, city, links string) error {
	_, err := s.db.Exec(
		`INSERT INTO campaign_completions (task_id, user_id, city, links) VALUES (?, ?, ?, ?)`,
		taskID, userID, city, links,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("completion for task %d city %s: %w", taskID, city, ErrAlreadyCompleted)
	}
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

// Completions returns all completions for a task, oldest first. The
// completed_at default has one-second resolution, so rowid breaks ties to
// keep insertion order.
func (s *CampaignStore) Completions(taskID int64) ([]model.CampaignCompletion, error) {
	rows, err := s.db.Query(
		`SELECT task_id, user_id, city, links, completed_at FROM campaign_completions
		 WHERE task_id = ? ORDER BY completed_at ASC, rowid ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.CampaignCompletion
	for rows.Next() {
		var c model.CampaignCompletion
		if err := rows.Scan(&c.TaskID, &c.UserID, &c.City, &c.Links, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// DeleteExpired purges campaign tasks past their expiry along with their
// completions, and returns how many tasks were removed. Destructive: after
// this the per-campaign report can only be rebuilt from the audit file.
func (s *CampaignStore) DeleteExpired(now time.Time) (int, error) {
	nowStr := now.UTC().Format("2006-01-02 15:04:05")

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM campaign_completions WHERE task_id IN
		 (SELECT id FROM campaign_tasks WHERE expires_at <= ?)`,
		nowStr,
	)
	if err != nil {
		return 0, fmt.Errorf("purge completions: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM campaign_tasks WHERE expires_at <= ?`, nowStr)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return int(n), nil
}
