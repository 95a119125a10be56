package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestCatalog(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test catalog: %v", err)
	}
	return NewStore(path)
}

const header = "Date,Task,Description,Responsible\n"

func TestLoadAllNormalizes(t *testing.T) {
	s := writeTestCatalog(t, header+
		"2024-03-15,Write recap,Weekly recap post,Riverton\n"+
		"15.03.2024,Already formatted,,Lakeside\n"+
		"not-a-date,Odd date survives,,ALL\n"+
		"nan,Spreadsheet artifact,,all municipalities\n")

	tasks, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}

	if tasks[0].Date != "15.03.2024" {
		t.Errorf("ISO date normalized to %q, want 15.03.2024", tasks[0].Date)
	}
	if tasks[1].Date != "15.03.2024" {
		t.Errorf("canonical date changed to %q", tasks[1].Date)
	}
	if tasks[2].Date != "not-a-date" {
		t.Errorf("unparseable date = %q, want raw passthrough", tasks[2].Date)
	}
	if tasks[3].Date != "" {
		t.Errorf("nan artifact = %q, want empty", tasks[3].Date)
	}

	if tasks[2].Responsible != AllCities {
		t.Errorf("ALL normalized to %q, want %q", tasks[2].Responsible, AllCities)
	}
	if tasks[3].Responsible != AllCities {
		t.Errorf("synonym normalized to %q, want %q", tasks[3].Responsible, AllCities)
	}
}

func TestLoadAllToleratesShortRows(t *testing.T) {
	s := writeTestCatalog(t, header+
		"01.02.2024,Full row,desc,Riverton\n"+
		",Title only\n")

	tasks, err := s.LoadAll()
	if err != nil {
		t.Fatalf("load with short row: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[1].Title != "Title only" || tasks[1].Responsible != "" {
		t.Errorf("short row = %+v, want title with empty fields", tasks[1])
	}
}

func TestLoadAllMissingColumn(t *testing.T) {
	s := writeTestCatalog(t, "Date,Task,Description\n01.01.2024,x,y\n")

	_, err := s.LoadAll()
	if err == nil {
		t.Fatal("expected error for missing responsible column")
	}
}

func TestFilterByCityIncludesAllCitiesRows(t *testing.T) {
	tasks := []Task{
		{Title: "For Riverton", Responsible: "Riverton"},
		{Title: "For everyone", Responsible: AllCities},
		{Title: "For Lakeside", Responsible: "Lakeside"},
		{Title: "Unassigned", Responsible: ""},
	}

	got := FilterByCity(tasks, "Riverton")
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}

	// Any other municipality also sees the all-cities row.
	got = FilterByCity(tasks, "Lakeside")
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks for Lakeside, got %d", len(got))
	}

	// The sentinel itself returns every assigned row.
	got = FilterByCity(tasks, AllCities)
	if len(got) != 3 {
		t.Fatalf("expected 3 assigned tasks, got %d", len(got))
	}
}

func TestFilterSortsParseableDatesFirst(t *testing.T) {
	tasks := []Task{
		{Title: "march", Date: "15.03.2024", Responsible: "Riverton"},
		{Title: "empty", Date: "", Responsible: "Riverton"},
		{Title: "january", Date: NormalizeDate("2024-01-01"), Responsible: "Riverton"},
		{Title: "bad", Date: "bad-date", Responsible: "Riverton"},
	}

	got := FilterByCity(tasks, "Riverton")
	if len(got) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(got))
	}

	order := []string{got[0].Title, got[1].Title, got[2].Title, got[3].Title}
	if order[0] != "january" || order[1] != "march" {
		t.Errorf("parseable order = %v, want january before march", order[:2])
	}
	for _, title := range order[2:] {
		if title != "empty" && title != "bad" {
			t.Errorf("unparseable dates must sort last, got order %v", order)
		}
	}
}

func TestClaimByTitleHash(t *testing.T) {
	s := writeTestCatalog(t, header+
		"01.02.2024,Interview the mayor,desc,\n"+
		"02.02.2024,Other task,desc,Lakeside\n")

	claimed, err := s.Claim(TitleID("Interview the mayor"), "Riverton")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Responsible != "Riverton" {
		t.Errorf("claimed responsible = %q, want Riverton", claimed.Responsible)
	}

	// The write is persisted.
	tasks, _ := s.LoadAll()
	if tasks[0].Responsible != "Riverton" {
		t.Errorf("persisted responsible = %q, want Riverton", tasks[0].Responsible)
	}
	if tasks[1].Responsible != "Lakeside" {
		t.Errorf("other row touched: %q", tasks[1].Responsible)
	}
}

func TestClaimUnknownHash(t *testing.T) {
	s := writeTestCatalog(t, header+"01.02.2024,Some task,,\n")

	_, err := s.Claim(TitleID("No such task"), "Riverton")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAddStoresSentinelLiteral(t *testing.T) {
	s := writeTestCatalog(t, header)

	if err := s.Add("Broadcast piece", "desc", "ALL", "2024-05-01"); err != nil {
		t.Fatalf("add: %v", err)
	}

	tasks, _ := s.LoadAll()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Responsible != AllCities {
		t.Errorf("responsible = %q, want sentinel literal (no fan-out)", tasks[0].Responsible)
	}
	if tasks[0].Date != "01.05.2024" {
		t.Errorf("date = %q, want 01.05.2024", tasks[0].Date)
	}
}

func TestRemoveAndClearByIndex(t *testing.T) {
	s := writeTestCatalog(t, header+
		",First,,Riverton\n"+
		",Second,,Lakeside\n")

	cleared, err := s.ClearResponsible(1)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.Responsible != "Lakeside" {
		t.Errorf("cleared old responsible = %q, want Lakeside", cleared.Responsible)
	}

	removed, err := s.Remove(0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Title != "First" {
		t.Errorf("removed = %q, want First", removed.Title)
	}

	tasks, _ := s.LoadAll()
	if len(tasks) != 1 || tasks[0].Title != "Second" || tasks[0].Responsible != "" {
		t.Errorf("remaining = %+v, want cleared Second row", tasks)
	}

	if _, err := s.Remove(5); !errors.Is(err, ErrNotFound) {
		t.Errorf("out-of-range remove err = %v, want ErrNotFound", err)
	}
}

func TestRemoveMatchHeuristic(t *testing.T) {
	s := writeTestCatalog(t, header+
		",Write the recap,,Riverton\n"+
		",Write the recap,,Lakeside\n")

	ok, err := s.RemoveMatch("recap", "Lakeside")
	if err != nil {
		t.Fatalf("remove match: %v", err)
	}
	if !ok {
		t.Fatal("expected a match")
	}

	tasks, _ := s.LoadAll()
	if len(tasks) != 1 || tasks[0].Responsible != "Riverton" {
		t.Errorf("wrong row removed: %+v", tasks)
	}

	ok, _ = s.RemoveMatch("no such title", "Riverton")
	if ok {
		t.Error("expected no match")
	}
}
