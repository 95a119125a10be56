package catalog

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// DateLayout is the canonical display format for catalog dates.
const DateLayout = "02.01.2006"

var canonicalDate = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}`)

// Input formats seen in hand-edited files, tried in order.
var inputLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"02.01.06",
}

// NormalizeDate converts a free-form date cell to DateLayout when one of the
// known formats matches, and returns the raw string otherwise. Never fails:
// an unparseable date is still a valid cell.
func NormalizeDate(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if canonicalDate.MatchString(v) {
		return v
	}
	for _, layout := range inputLayouts {
		if dt, err := time.Parse(layout, v); err == nil {
			return dt.Format(DateLayout)
		}
	}
	return v
}

var sortLayouts = []string{DateLayout, "2006-01-02", "01/02/2006"}

// parseDateKey returns the sort key for a date cell; unparseable or empty
// dates sort after everything else.
func parseDateKey(raw string) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range sortLayouts {
		if dt, err := time.Parse(layout, v); err == nil {
			return dt, true
		}
	}
	return time.Time{}, false
}

// FilterByCity returns the tasks assigned to the given municipality: rows
// whose responsible matches the city case-insensitively plus every all-cities
// row. Passing the sentinel itself returns every assigned task. The result is
// sorted by date ascending with unparseable dates last.
func FilterByCity(tasks []Task, city string) []Task {
	var filtered []Task

	if IsAllCities(city) {
		for _, t := range tasks {
			if t.Responsible != "" {
				filtered = append(filtered, t)
			}
		}
	} else {
		needle := strings.ToLower(city)
		for _, t := range tasks {
			if t.Responsible == "" {
				continue
			}
			if IsAllCities(t.Responsible) || strings.Contains(strings.ToLower(t.Responsible), needle) {
				filtered = append(filtered, t)
			}
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		di, iOK := parseDateKey(filtered[i].Date)
		dj, jOK := parseDateKey(filtered[j].Date)
		if iOK != jOK {
			return iOK
		}
		if !iOK {
			return false
		}
		return di.Before(dj)
	})

	return filtered
}
