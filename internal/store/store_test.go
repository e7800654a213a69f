package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"semcal/internal/model"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	alice := Session{UserID: "alice"}
	bob := Session{UserID: "bob"}

	tasks := []model.Task{
		{ID: "b", Title: "Later", Type: model.TypePersonal, Date: "2025-10-09"},
		{ID: "a", Title: "Sooner", Type: model.TypeExam, Date: "2025-10-08", ExamResult: floatPtr(9), Credits: floatPtr(6)},
		{ID: "t1", Title: "Algebra", Type: model.TypeCourse, Date: "2025-10-06", SemesterID: "first-2025",
			StartDate: "2025-10-06", EndDate: "2026-01-18", Frequency: model.Weekly, DayOfWeek: intPtr(1)},
	}
	if err := s.Upsert(ctx, alice, tasks); err != nil {
		t.Fatalf("Upsert() = %v", err)
	}

	got, err := s.FetchAll(ctx, alice)
	if err != nil {
		t.Fatalf("FetchAll() = %v", err)
	}
	if ids := model.IDs(got); !reflect.DeepEqual(ids, []string{"t1", "a", "b"}) {
		t.Errorf("FetchAll ids = %v, want date order", ids)
	}
	if !reflect.DeepEqual(got[0], tasks[2]) {
		t.Errorf("template did not round-trip:\n got %+v\nwant %+v", got[0], tasks[2])
	}

	// Upsert is keyed by id and idempotent.
	edited := tasks[0]
	edited.Completed = true
	for i := 0; i < 2; i++ {
		if err := s.Upsert(ctx, alice, []model.Task{edited}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ = s.FetchAll(ctx, alice)
	if len(got) != 3 || !got[2].Completed {
		t.Errorf("after upsert: %+v", got)
	}

	// Users are isolated.
	if other, err := s.FetchAll(ctx, bob); err != nil || len(other) != 0 {
		t.Errorf("bob sees %v (err %v)", model.IDs(other), err)
	}
	if err := s.DeleteByIDs(ctx, bob, []string{"a"}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteByIDs(ctx, alice, []string{"a", "missing"}); err != nil {
		t.Fatalf("DeleteByIDs() = %v", err)
	}
	got, _ = s.FetchAll(ctx, alice)
	if ids := model.IDs(got); !reflect.DeepEqual(ids, []string{"t1", "b"}) {
		t.Errorf("after delete ids = %v", ids)
	}

	if _, err := s.FetchAll(ctx, Session{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("FetchAll without session = %v, want ErrNoSession", err)
	}
	if err := s.Upsert(ctx, Session{}, tasks); !errors.Is(err, ErrNoSession) {
		t.Errorf("Upsert without session = %v, want ErrNoSession", err)
	}
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestMemoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory().FetchAll(ctx, Session{UserID: "u"}); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() = %v, want context.Canceled", err)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tasks.yaml")
	s, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("tasks file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("tasks file perm = %o, want 600", perm)
	}

	// A second handle reads what the first one wrote.
	again, _ := NewFile(path)
	got, err := again.FetchAll(context.Background(), Session{UserID: "alice"})
	if err != nil || len(got) != 2 {
		t.Errorf("reopen FetchAll = %v, %v", model.IDs(got), err)
	}
}

func TestFileMissingIsEmpty(t *testing.T) {
	s, _ := NewFile(filepath.Join(t.TempDir(), "none.yaml"))
	got, err := s.FetchAll(context.Background(), Session{UserID: "u"})
	if err != nil || len(got) != 0 {
		t.Errorf("FetchAll() = %v, %v", got, err)
	}
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("users: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFile(path)
	if _, err := s.FetchAll(context.Background(), Session{UserID: "u"}); err == nil {
		t.Errorf("expected decode error")
	}
}

func TestPostgresRowMapping(t *testing.T) {
	task := model.Task{
		ID: "t1-2025-10-13", Title: "Algebra", Type: model.TypeCourse, Date: "2025-10-13",
		StartTime: "08:00", Frequency: model.Biweekly, SemesterID: "first-2025",
		StartDate: "2025-10-06", EndDate: "2026-01-18", DayOfWeek: intPtr(0),
		TemplateID: "t1", OccurrenceDate: "2025-10-13", Skipped: true,
	}
	row := taskToRow(task, "alice")
	if row.UserID != "alice" || row.Description != nil || row.Notes != nil {
		t.Errorf("row = %+v", row)
	}
	if row.DayOfWeek == nil || *row.DayOfWeek != 0 {
		t.Errorf("Sunday lost in row: %v", row.DayOfWeek)
	}

	// Drivers may hand date columns back with a time part.
	start := "2025-10-06T00:00:00Z"
	row.StartDate = &start
	row.Date = "2025-10-13T00:00:00Z"
	if got := rowToTask(row); !reflect.DeepEqual(got, task) {
		t.Errorf("rowToTask:\n got %+v\nwant %+v", got, task)
	}
}
