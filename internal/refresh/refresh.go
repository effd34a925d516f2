// Package refresh reopens tracked chat windows once a day.
//
// Long-lived chat windows accumulate rendering state that breaks text
// extraction; closing and reopening them resets that. The actual window
// manipulation is the agent's job — this service only schedules it, keeps
// it from colliding with captures, and rewires target identities afterward.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"chatlogd/internal/capture"
	logx "chatlogd/pkg/logx"
)

// Reopener is implemented by the window agent client.
type Reopener interface {
	Reopen(ctx context.Context, title string) (capture.Target, error)
}

// Gate suspends the capture scheduler while windows are being rearranged.
type Gate interface {
	Suspend()
	Resume()
}

type Config struct {
	Hour   int
	Minute int
	Titles []string
}

type Service struct {
	cfg      Config
	reopener Reopener
	gate     Gate
	log      logx.Logger

	// OnReopened is invoked for every successfully reopened window so the
	// caller can migrate per-target state to the new identifier.
	OnReopened func(title string, t capture.Target)

	cron    *cron.Cron
	running atomic.Bool

	mu          sync.Mutex
	lastRunDay  time.Time
	startedOnce bool

	now func() time.Time
}

func New(cfg Config, reopener Reopener, gate Gate, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, reopener: reopener, gate: gate, log: log, now: time.Now}
}

// dayOf truncates to local midnight. The schedule is a local wall-clock
// time, so the at-most-once-per-day guard must roll at local midnight too.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Start installs the daily cron entry. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedOnce {
		return nil
	}
	s.cron = cron.New()
	spec := fmt.Sprintf("%d %d * * *", s.cfg.Minute, s.cfg.Hour)
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.startedOnce = true
	s.log.Info("refresh scheduled",
		logx.String("at", fmt.Sprintf("%02d:%02d", s.cfg.Hour, s.cfg.Minute)),
		logx.Int("titles", len(s.cfg.Titles)))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// Running reports whether a refresh run is in progress.
func (s *Service) Running() bool { return s.running.Load() }

// RunNow executes one refresh pass over the configured titles. At most one
// pass runs at a time, and the scheduled trigger fires at most once per day.
func (s *Service) RunNow(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	today := dayOf(s.now())
	s.mu.Lock()
	if s.lastRunDay.Equal(today) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.gate != nil {
		s.gate.Suspend()
		defer s.gate.Resume()
	}

	s.log.Info("refresh run started", logx.Int("titles", len(s.cfg.Titles)))

	seen := map[string]struct{}{}
	var reopened int
	for _, title := range s.cfg.Titles {
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}

		if ctx.Err() != nil {
			s.log.Warn("refresh run cancelled")
			return
		}

		t, err := s.reopener.Reopen(ctx, title)
		if err != nil {
			s.log.Warn("reopen failed", logx.String("chat", title), logx.Err(err))
			continue
		}
		reopened++
		s.log.Info("reopened", logx.String("chat", title), logx.String("target", t.ID))
		if s.OnReopened != nil {
			s.OnReopened(title, t)
		}
	}

	s.mu.Lock()
	s.lastRunDay = today
	s.mu.Unlock()
	s.log.Info("refresh run finished", logx.Int("reopened", reopened))
}
