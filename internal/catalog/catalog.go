// Package catalog reads and writes the externally-editable task list. The
// file is the source of truth for "who owes what task": it may be edited
// out-of-band at any time, so every operation reloads it in full and whole-file
// writes are last-write-wins.
package catalog

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// AllCities is the canonical "assigned to everyone" marker in the
// responsible column. Synonyms are normalized to it on load.
const AllCities = "All municipalities"

var allCitiesSynonyms = map[string]struct{}{
	"all":                {},
	"all municipalities": {},
	"municipalities":     {},
	"everyone":           {},
}

var (
	// ErrNotFound is returned when no row matches a claim id or index.
	ErrNotFound = errors.New("task not found")
)

// Task is one row of the catalog. Identity is positional within a single
// load; ID is a content hash of the title used only for claim actions
// triggered from notifications.
type Task struct {
	Date        string
	Title       string
	Description string
	Responsible string
}

// ID returns the stable content-derived claim id for the task title. Title
// collisions are an accepted risk.
func (t Task) ID() string {
	return TitleID(t.Title)
}

// TitleID derives the short claim id from a title.
func TitleID(title string) string {
	sum := md5.Sum([]byte(title))
	return hex.EncodeToString(sum[:])[:16]
}

// IsAllCities reports whether a responsible value means "every municipality".
func IsAllCities(responsible string) bool {
	v := strings.ToLower(strings.TrimSpace(responsible))
	if _, ok := allCitiesSynonyms[v]; ok {
		return true
	}
	return strings.Contains(v, strings.ToLower(AllCities))
}

// Store is the CSV-backed catalog at a fixed path. It holds no state between
// operations; concurrent writers are not protected against (accepted
// limitation of a human-editable file).
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

var requiredColumns = []string{"date", "task", "description", "responsible"}

// LoadAll parses every row into a normalized Task. Dates are best-effort
// normalized, the all-cities synonyms are canonicalized, and malformed rows
// degrade to whatever fields they carry instead of failing the load.
func (s *Store) LoadAll() ([]Task, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read catalog: missing header row")
	}

	idx, err := columnIndexes(records[0])
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(records)-1)
	for _, rec := range records[1:] {
		t := Task{
			Date:        NormalizeDate(field(rec, idx["date"])),
			Title:       field(rec, idx["task"]),
			Description: field(rec, idx["description"]),
			Responsible: normalizeResponsible(field(rec, idx["responsible"])),
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func columnIndexes(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("read catalog: missing column %q", col)
		}
	}
	return idx, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	v := strings.TrimSpace(rec[i])
	// Artifacts of spreadsheet exports.
	switch v {
	case "nan", "NaN", "None", "NaT", "<NA>":
		return ""
	}
	return v
}

func normalizeResponsible(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return ""
	}
	if _, ok := allCitiesSynonyms[strings.ToLower(trimmed)]; ok {
		return AllCities
	}
	return trimmed
}

// saveAll rewrites the whole file with the canonical column layout.
func (s *Store) saveAll(tasks []Task) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Date", "Task", "Description", "Responsible"}); err != nil {
		return fmt.Errorf("write catalog header: %w", err)
	}
	for _, t := range tasks {
		if err := w.Write([]string{t.Date, t.Title, t.Description, t.Responsible}); err != nil {
			return fmt.Errorf("write catalog row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush catalog: %w", err)
	}
	return nil
}

// Add appends a row. An all-cities assignment is stored as the sentinel
// literal, not fanned out into one row per city.
func (s *Store) Add(title, description, city, dueDate string) error {
	tasks, err := s.LoadAll()
	if err != nil {
		return err
	}
	responsible := city
	if IsAllCities(city) {
		responsible = AllCities
	}
	tasks = append(tasks, Task{
		Date:        NormalizeDate(dueDate),
		Title:       title,
		Description: description,
		Responsible: responsible,
	})
	return s.saveAll(tasks)
}

// Claim finds the row whose title hashes to id and assigns it to the given
// municipality, persisting the whole store. Last write wins; there is no
// optimistic lock.
func (s *Store) Claim(id, city string) (*Task, error) {
	tasks, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID() == id {
			tasks[i].Responsible = city
			if err := s.saveAll(tasks); err != nil {
				return nil, err
			}
			claimed := tasks[i]
			return &claimed, nil
		}
	}
	return nil, fmt.Errorf("claim %s: %w", id, ErrNotFound)
}

// Remove deletes the row at index as of the most recent load.
func (s *Store) Remove(index int) (*Task, error) {
	tasks, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(tasks) {
		return nil, fmt.Errorf("remove row %d: %w", index, ErrNotFound)
	}
	removed := tasks[index]
	tasks = append(tasks[:index], tasks[index+1:]...)
	if err := s.saveAll(tasks); err != nil {
		return nil, err
	}
	return &removed, nil
}

// ClearResponsible empties the responsible cell at index.
func (s *Store) ClearResponsible(index int) (*Task, error) {
	tasks, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(tasks) {
		return nil, fmt.Errorf("clear row %d: %w", index, ErrNotFound)
	}
	old := tasks[index]
	tasks[index].Responsible = ""
	if err := s.saveAll(tasks); err != nil {
		return nil, err
	}
	return &old, nil
}

// RemoveMatch deletes the first row whose title contains the given name
// (case-insensitive) with responsible equal to city. This heuristic is the
// only cross-reference between the catalog and the internal task store; it
// returns false when nothing matched.
func (s *Store) RemoveMatch(title, city string) (bool, error) {
	tasks, err := s.LoadAll()
	if err != nil {
		return false, err
	}
	needle := strings.ToLower(title)
	for i := range tasks {
		if strings.Contains(strings.ToLower(tasks[i].Title), needle) && tasks[i].Responsible == city {
			tasks = append(tasks[:i], tasks[i+1:]...)
			if err := s.saveAll(tasks); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
