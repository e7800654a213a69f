package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"semcal/internal/date"
	"semcal/internal/model"
	"semcal/internal/store"
)

func TestAddValidates(t *testing.T) {
	s := New(time.UTC)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "bad", Spec: "every tuesday", Run: noop}); err == nil {
		t.Error("invalid spec should fail")
	}
	if err := s.Add(Job{Spec: "* * * * *", Run: noop}); err == nil {
		t.Error("unnamed job should fail")
	}
	if err := s.Add(Job{Name: "off", Run: noop}); err != nil {
		t.Errorf("empty spec should disable, got %v", err)
	}
	if err := s.RunNow(context.Background(), "off"); err == nil {
		t.Error("disabled job should not be registered")
	}
	if err := s.Add(Job{Name: "a", Spec: "*/5 * * * *", Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Job{Name: "a", Spec: "*/5 * * * *", Run: noop}); err == nil {
		t.Error("duplicate job should fail")
	}
}

func TestRunNowAndSchedule(t *testing.T) {
	s := New(time.UTC)
	ran := make(chan struct{}, 8)
	boom := errors.New("boom")
	err := s.Add(Job{Name: "tick", Spec: "@every 1s", Run: func(context.Context) error {
		ran <- struct{}{}
		return boom
	}})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "tick"); !errors.Is(err, boom) {
		t.Errorf("RunNow() = %v, want job error", err)
	}
	<-ran

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Error("scheduled job did not run")
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
}

type fakeViewer struct {
	start, end time.Time
	sess       store.Session
}

func (f *fakeViewer) View(_ context.Context, sess store.Session, start, end time.Time, _ ...model.Task) ([]model.Task, error) {
	f.sess, f.start, f.end = sess, start, end
	return []model.Task{
		{ID: "t1-2025-10-06", Title: "Algebra", Type: model.TypeCourse, Date: "2025-10-06", StartTime: "08:00"},
		{ID: "p1", Title: "Call home", Type: model.TypePersonal, Date: "2025-10-07"},
	}, nil
}

func TestExportOnce(t *testing.T) {
	v := &fakeViewer{}
	dir := filepath.Join(t.TempDir(), "export")
	opts := ExportOptions{
		Dir:      dir,
		Name:     "My Semester",
		Session:  store.Session{UserID: "alice"},
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC) },
	}

	path, err := ExportOnce(context.Background(), v, opts)
	if err != nil {
		t.Fatalf("ExportOnce() = %v", err)
	}
	if path != filepath.Join(dir, "my-semester.ics") {
		t.Errorf("path = %q", path)
	}
	if v.sess.UserID != "alice" || !v.start.Equal(date.MustParse("2025-09-29")) || !v.end.Equal(date.MustParse("2026-05-24")) {
		t.Errorf("viewed %s %s..%s", v.sess.UserID, date.Format(v.start), date.Format(v.end))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(raw), "BEGIN:VEVENT"); n != 2 {
		t.Errorf("exported %d events, want 2", n)
	}

	// A pinned year wins over the clock.
	opts.Year = 2024
	if err := ExportJob(v, opts).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !v.start.Equal(date.MustParse("2024-09-30")) {
		t.Errorf("pinned year start = %s", date.Format(v.start))
	}
}
