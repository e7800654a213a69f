package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"semcal/internal/academic"
	"semcal/internal/ics"
	appLog "semcal/internal/log"
	"semcal/internal/model"
	"semcal/internal/store"
)

// Job names.
const (
	JobExport  = "export"
	JobRefresh = "refresh-feeds"
)

// Viewer returns the occurrences of a user's tasks in a date range.
type Viewer interface {
	View(ctx context.Context, sess store.Session, start, end time.Time, extra ...model.Task) ([]model.Task, error)
}

// ExportOptions configures ExportJob.
type ExportOptions struct {
	Spec     string
	Dir      string
	Name     string
	Session  store.Session
	Location *time.Location
	// Year pins the academic year; zero follows the clock.
	Year int
	Now  func() time.Time
}

// ExportJob writes the session user's whole academic year to
// <dir>/<slug of name>.ics on every run.
func ExportJob(v Viewer, opts ExportOptions) Job {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Job{
		Name: JobExport,
		Spec: opts.Spec,
		Run: func(ctx context.Context) error {
			_, err := ExportOnce(ctx, v, opts)
			return err
		},
	}
}

// ExportOnce performs one export and returns the written path.
func ExportOnce(ctx context.Context, v Viewer, opts ExportOptions) (string, error) {
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	ay := academic.For(now)
	if opts.Year > 0 {
		ay = academic.New(opts.Year)
	}

	tasks, err := v.View(ctx, opts.Session, ay.FirstSemester.Start, ay.SecondSemester.End)
	if err != nil {
		return "", fmt.Errorf("export: view: %w", err)
	}

	var buf bytes.Buffer
	err = ics.Export(&buf, tasks, ics.ExportConfig{Name: opts.Name, Location: opts.Location, Now: now})
	if err != nil {
		return "", err
	}

	path := filepath.Join(opts.Dir, ics.ExportFileBase(opts.Name)+".ics")
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}
	appLog.Info("calendar exported", "path", path, "tasks", len(tasks), "academic_year", ay.Year)
	return path, nil
}

// RefreshJob refreshes the subscribed ICS feeds.
func RefreshJob(feeds *ics.Feeds, spec string) Job {
	return Job{Name: JobRefresh, Spec: spec, Run: feeds.Refresh}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".semcal-export-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
