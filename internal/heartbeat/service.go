// Package heartbeat logs a periodic runtime report: dispatch counters, queued
// updates and delivery totals. Silent intervals are skipped.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/crystaldolphin/dolphinbot/internal/dispatcher"
)

const defaultInterval = 5 * time.Minute

// Source collects the numbers reported on each beat.
type Source interface {
	Stats() dispatcher.Stats
	Pending() int
	Delivered() (ok, failed uint64)
}

// Report is one heartbeat snapshot.
type Report struct {
	Stats     dispatcher.Stats
	Pending   int
	Delivered uint64
	Failed    uint64
}

// Service emits a Report every interval.
type Service struct {
	src      Source
	interval time.Duration
	last     Report
}

// NewService creates a Service. interval defaults to 5 minutes if zero.
func NewService(src Source, interval time.Duration) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{src: src, interval: interval}
}

// Start runs the heartbeat loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("heartbeat: started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.beat()
		case <-ctx.Done():
			slog.Info("heartbeat: stopped")
			return nil
		}
	}
}

// beat logs the current report when anything moved since the last one and
// returns whether it logged.
func (s *Service) beat() bool {
	r := s.snapshot()
	if r == s.last {
		return false
	}
	prev := s.last
	s.last = r

	slog.Info("heartbeat",
		"handled", r.Stats.Success-prev.Stats.Success,
		"failed", r.Stats.HandlerError-prev.Stats.HandlerError,
		"unmatched", r.Stats.NoMatch-prev.Stats.NoMatch,
		"duplicates", r.Stats.Deduplicated-prev.Stats.Deduplicated,
		"pending", r.Pending,
		"delivered", r.Delivered-prev.Delivered,
		"delivery_failed", r.Failed-prev.Failed,
	)
	return true
}

func (s *Service) snapshot() Report {
	ok, failed := s.src.Delivered()
	return Report{
		Stats:     s.src.Stats(),
		Pending:   s.src.Pending(),
		Delivered: ok,
		Failed:    failed,
	}
}
