package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/docsage/internal/logger"
)

// parser accepts standard 5-field expressions and descriptors like @hourly.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named maintenance task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type Entry struct {
	Name     string
	Schedule string
	Next     time.Time
}

// Scheduler runs maintenance jobs on cron schedules. A job still running
// when its next tick arrives is skipped.
type Scheduler struct {
	c *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	jobs    map[string]Job
	entries map[string]cron.EntryID
}

func New(tz *time.Location) *Scheduler {
	if tz == nil {
		tz = time.UTC
	}

	c := cron.New(
		cron.WithLocation(tz),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		cron.WithLogger(cronLogger{}),
	)

	return &Scheduler{
		c:       c,
		ctx:     context.Background(),
		jobs:    map[string]Job{},
		entries: map[string]cron.EntryID{},
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run func")
	}
	if _, err := parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	id, err := s.c.AddFunc(job.Schedule, func() {
		s.run(s.context(), job)
	})
	if err != nil {
		return err
	}

	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	logger.Debug("cron job registered", "job", job.Name, "schedule", job.Schedule)
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start begins firing jobs until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.c.Start()
	logger.Info("cron scheduler started", "jobs", len(s.Entries()))

	go func() {
		<-ctx.Done()
		<-s.c.Stop().Done()
		logger.Debug("cron scheduler stopped")
	}()
}

// RunNow runs a registered job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		logger.Error("cron job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return err
	}
	logger.Debug("cron job finished", "job", job.Name, "duration", time.Since(start))
	return nil
}

func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		e := s.c.Entry(id)
		out = append(out, Entry{Name: name, Schedule: s.jobs[name].Schedule, Next: e.Next})
	}
	return out
}

// NextRun returns the first fire time of schedule after from.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
