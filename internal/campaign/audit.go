package campaign

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Audit appends completion rows to a standalone CSV. This file outlives the
// expiry sweep, so it is the only place per-campaign history survives.
type Audit struct {
	path string
}

func NewAudit(path string) *Audit {
	return &Audit{path: path}
}

// Append records one completion. The header is written when the file does
// not exist yet.
func (a *Audit) Append(taskID int64, city string, links []string) error {
	_, statErr := os.Stat(a.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write([]string{"Date", "Task", "Municipality", "Links"}); err != nil {
			return fmt.Errorf("write audit header: %w", err)
		}
	}
	row := []string{
		time.Now().Format("02.01.2006 15:04"),
		strconv.FormatInt(taskID, 10),
		city,
		strings.Join(links, "\n"),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush audit: %w", err)
	}
	return nil
}
