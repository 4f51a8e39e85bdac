// Package schedule fires configured cron jobs as synthetic "scheduled"
// updates. Jobs go through the same pool and dispatcher as platform updates,
// so a job firing twice in one minute is dropped by the dedup cache.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
	"github.com/crystaldolphin/dolphinbot/internal/config"
)

// ErrUnknownJob is returned for a job name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Submitter accepts updates for dispatch.
type Submitter interface {
	Submit(upd bus.Update) error
}

var parser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// JobInfo is a snapshot of a registered job.
type JobInfo struct {
	Name     string
	Spec     string
	Platform bus.Platform
	ChatID   string
	Next     time.Time
	LastRun  time.Time
	LastErr  error
	Runs     int
}

type job struct {
	cfg     config.JobConfig
	entry   robfigcron.EntryID
	lastRun time.Time
	lastErr error
	runs    int
}

// Scheduler owns a robfig cron instance and the jobs armed on it.
type Scheduler struct {
	sink Submitter
	cron *robfigcron.Cron

	mu   sync.Mutex
	jobs map[string]*job
}

func New(sink Submitter) *Scheduler {
	return &Scheduler{
		sink: sink,
		cron: robfigcron.New(
			robfigcron.WithParser(parser),
			robfigcron.WithLogger(cronLogger{}),
			robfigcron.WithChain(robfigcron.Recover(cronLogger{})),
		),
		jobs: make(map[string]*job),
	}
}

// Add validates and arms a job. The cron expression is evaluated in the job's timezone,
// or the process local time when none is set.
func (s *Scheduler) Add(cfg config.JobConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[cfg.Name]; dup {
		return fmt.Errorf("job %s: already scheduled", cfg.Name)
	}

	spec := cfg.Spec
	if cfg.Timezone != "" {
		spec = "CRON_TZ=" + cfg.Timezone + " " + spec
	}
	j := &job{cfg: cfg}
	id, err := s.cron.AddFunc(spec, func() { s.fire(j, time.Now()) })
	if err != nil {
		return fmt.Errorf("job %s: %w", cfg.Name, err)
	}
	j.entry = id
	s.jobs[cfg.Name] = j

	slog.Info("schedule: added job", "name", cfg.Name, "spec", cfg.Spec, "tz", cfg.Timezone,
		"target", bus.RoutingKey(bus.Platform(cfg.Platform), cfg.ChatID))
	return nil
}

// Remove disarms the named job and reports whether it existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, name)
	return true
}

// RunNow fires the named job immediately.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.fire(j, time.Now())
}

// Jobs returns the registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entry)
		next := entry.Next
		if next.IsZero() && entry.Schedule != nil {
			// not started yet
			next = entry.Schedule.Next(now)
		}
		out = append(out, JobInfo{
			Name:     j.cfg.Name,
			Spec:     j.cfg.Spec,
			Platform: bus.Platform(j.cfg.Platform),
			ChatID:   j.cfg.ChatID,
			Next:     next,
			LastRun:  j.lastRun,
			LastErr:  j.lastErr,
			Runs:     j.runs,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Run starts the cron loop and blocks until ctx is cancelled. Jobs already
// running are waited for before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	slog.Info("schedule: started", "jobs", len(s.Jobs()))

	<-ctx.Done()

	<-s.cron.Stop().Done()
	slog.Info("schedule: stopped")
	return nil
}

func (s *Scheduler) fire(j *job, at time.Time) error {
	upd := Update(j.cfg, at)
	err := s.sink.Submit(upd)

	s.mu.Lock()
	j.lastRun = at
	j.lastErr = err
	j.runs++
	s.mu.Unlock()

	if err != nil {
		slog.Error("schedule: submit failed", "job", j.cfg.Name, "err", err)
		return err
	}
	slog.Debug("schedule: fired", "job", j.cfg.Name, "update", upd.Key())
	return nil
}

// Update builds the scheduled update for a firing of cfg at the given time.
// The identifier is stable within a minute.
func Update(cfg config.JobConfig, at time.Time) bus.Update {
	return bus.Update{
		ID:         fmt.Sprintf("job:%s:%d", cfg.Name, at.Unix()/60),
		Platform:   bus.Platform(cfg.Platform),
		Kind:       bus.KindScheduled,
		ChatID:     cfg.ChatID,
		Text:       cfg.Text,
		Command:    strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Command), "/")),
		ReceivedAt: at,
		Metadata:   map[string]any{"job": cfg.Name},
	}
}

// cronLogger routes robfig/cron's logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
