// Package report builds the admin CSV exports. Files are written to the OS
// temp directory under a random name and removed by the caller once attached.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/store"
)

// Generator writes export files from the stores.
type Generator struct {
	users     *store.UserStore
	campaigns *store.CampaignStore
}

func NewGenerator(users *store.UserStore, campaigns *store.CampaignStore) *Generator {
	return &Generator{users: users, campaigns: campaigns}
}

func tempFile(prefix string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_%s.csv", prefix, uuid.NewString()))
}

// PointsHistory writes the ledger export: one row per entry, newest first,
// followed by a per-municipality summary section. Nil bounds mean the full
// history. Returns the file path; the caller deletes it after sending.
func (g *Generator) PointsHistory(start, end *time.Time) (string, error) {
	rows, err := g.users.HistoryReport(start, end)
	if err != nil {
		return "", err
	}

	path := tempFile("points_history")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Date", "User", "Municipality", "Amount", "Reason", "Issued by"}); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}

	cityTotals := make(map[string]int)
	for _, r := range rows {
		issuedBy := "system"
		if r.AdminID != nil {
			issuedBy = r.AdminName
			if issuedBy == "" {
				issuedBy = strconv.FormatInt(*r.AdminID, 10)
			}
		}
		record := []string{
			r.Date.Format(catalog.DateLayout),
			r.UserName,
			r.City,
			strconv.Itoa(r.Amount),
			r.Reason,
			issuedBy,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write report row: %w", err)
		}
		cityTotals[r.City] += r.Amount
	}

	// Summary section: municipality totals over the exported entries.
	w.Write([]string{"Municipality", "Total"})
	cities := make([]string, 0, len(cityTotals))
	for c := range cityTotals {
		cities = append(cities, c)
	}
	sort.Slice(cities, func(i, j int) bool {
		if cityTotals[cities[i]] != cityTotals[cities[j]] {
			return cityTotals[cities[i]] > cityTotals[cities[j]]
		}
		return cities[i] < cities[j]
	})
	for _, c := range cities {
		w.Write([]string{c, strconv.Itoa(cityTotals[c])})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush report: %w", err)
	}
	return path, nil
}

// CampaignCompletions writes the per-campaign export: one row per
// municipality that completed the task, with the submitted links.
func (g *Generator) CampaignCompletions(taskID int64) (string, error) {
	task, err := g.campaigns.GetByID(taskID)
	if err != nil {
		return "", err
	}
	if task == nil {
		return "", fmt.Errorf("campaign task %d: %w", taskID, store.ErrNotFound)
	}
	completions, err := g.campaigns.Completions(taskID)
	if err != nil {
		return "", err
	}

	path := tempFile(fmt.Sprintf("campaign_%d", taskID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Task", "Municipality", "Completed at", "Links"}); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}
	for _, c := range completions {
		record := []string{
			task.Name,
			c.City,
			c.CompletedAt.Format(catalog.DateLayout),
			c.Links,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush report: %w", err)
	}
	return path, nil
}
