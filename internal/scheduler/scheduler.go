package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "semcal/internal/log"
)

// Job is a named periodic task.
type Job struct {
	Name string
	// Spec is a standard 5-field cron expression.
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs Jobs on their cron schedules. A job never overlaps with
// itself; a run that is still going when the next tick fires skips it.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context

	mu   sync.Mutex
	jobs map[string]Job
}

// New returns a stopped scheduler evaluating schedules in loc (nil means
// time.Local).
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:  context.Background(),
		jobs: make(map[string]Job),
	}
}

// Add registers job. An empty Spec disables the job without error.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job needs a name and a run func")
	}
	if job.Spec == "" {
		appLog.Info("scheduler: job disabled", "job", job.Name)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("scheduler: job %q spec %q: %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = job
	appLog.Info("scheduler: job added", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start begins firing jobs. Runs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops the schedule and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler: stop timed out with jobs still running")
	}
}

// RunNow runs the named job once in the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return job.Run(ctx)
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		appLog.Error("scheduler: job failed", err, "job", job.Name, "took", time.Since(started).Round(time.Millisecond))
		return
	}
	appLog.Debug("scheduler: job done", "job", job.Name, "took", time.Since(started).Round(time.Millisecond))
}
