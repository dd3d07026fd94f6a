package schedule

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// DefaultReloadInterval is how often the scheduler picks up registration changes.
const DefaultReloadInterval = 30 * time.Second

// Observer is told about every completed scheduled run. prev is the run
// before cur, or nil.
type Observer interface {
	RunCompleted(ctx context.Context, reg *Registration, prev, cur *Run)
}

// job is a registration known to the scheduler.
type job struct {
	reg  *Registration
	last *Run
}

func (j *job) lastRun() *time.Time {
	if j.last == nil {
		return nil
	}
	return &j.last.StartedAt
}

func (j *job) key() string {
	return j.reg.Metric + "@" + j.reg.Endpoint
}

// Scheduler runs registered metrics at their interval.
type Scheduler struct {
	store           *Store
	defaultInterval time.Duration
	reloadInterval  time.Duration
	observer        Observer

	mu     sync.Mutex
	jobs   map[string]*job
	timers map[string]*time.Timer
	// running holds the keys of jobs whose run is in progress.
	running map[string]bool
}

// NewScheduler creates a new Scheduler. Registrations without an interval
// run every defaultInterval.
func NewScheduler(store *Store, defaultInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:           store,
		defaultInterval: defaultInterval,
		reloadInterval:  DefaultReloadInterval,
		jobs:            make(map[string]*job),
		timers:          make(map[string]*time.Timer),
		running:         make(map[string]bool),
	}
}

// WithObserver sets the observer of completed runs.
func (s *Scheduler) WithObserver(o Observer) *Scheduler {
	s.observer = o
	return s
}

// Run starts the scheduler loop and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		slog.Error("initial registration load failed", "error", err)
	}

	ticker := time.NewTicker(s.reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAllTimers()
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				slog.Error("registration reload failed", "error", err)
			}
		}
	}
}

// Reload reads registrations from the store and reschedules every job.
func (s *Scheduler) Reload(ctx context.Context) error {
	regs, err := s.store.Registrations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.jobs = make(map[string]*job)

	for _, reg := range regs {
		if reg.Interval <= 0 {
			reg.Interval = s.defaultInterval
		}
		j := &job{reg: reg}
		runs, err := s.store.LastRuns(ctx, reg.Metric, reg.Endpoint, 1)
		if err != nil {
			slog.Error("query last run failed", "metric", reg.Metric, "endpoint", reg.Endpoint, "error", err)
		} else if len(runs) > 0 {
			j.last = runs[0]
		}
		s.jobs[j.key()] = j
		// An in-progress run re-arms the job when it finishes.
		if s.running[j.key()] {
			continue
		}
		s.schedule(ctx, j)
	}

	slog.Info("loaded registrations", "count", len(s.jobs))
	return nil
}

// schedule arms the timer for j. Callers hold s.mu.
func (s *Scheduler) schedule(ctx context.Context, j *job) {
	key := j.key()
	delay := calculateNextRun(j.lastRun(), j.reg.Interval, time.Now())
	slog.Debug("scheduling metric", "metric", j.reg.Metric, "endpoint", j.reg.Endpoint, "delay", delay)

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// A reload replaced this timer after it fired, or a run is in progress.
		if ctx.Err() != nil || s.timers[key] != timer || s.running[key] {
			s.mu.Unlock()
			return
		}
		s.running[key] = true
		s.mu.Unlock()

		run, err := s.store.Execute(ctx, j.reg, false)
		if err != nil {
			slog.Error("metric execution failed", "metric", j.reg.Metric, "endpoint", j.reg.Endpoint, "error", err)
		}
		if run != nil && s.observer != nil {
			s.observer.RunCompleted(ctx, j.reg, j.last, run)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.running, key)

		// Reloads during the run may have replaced or removed the job.
		current, ok := s.jobs[key]
		if !ok {
			delete(s.timers, key)
			return
		}
		if run != nil {
			current.last = run
		}
		if ctx.Err() != nil {
			return
		}
		s.schedule(ctx, current)
	})

	s.timers[key] = timer
}

func calculateNextRun(lastRun *time.Time, interval time.Duration, now time.Time) time.Duration {
	if lastRun == nil {
		return 0
	}
	delay := lastRun.Add(interval).Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

func (s *Scheduler) stopAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, timer := range s.timers {
		timer.Stop()
	}
}

// ParseInterval parses interval strings like "5m", "1h", "1d" or any
// time.ParseDuration value. An empty string means no interval.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, nil
	}

	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return time.ParseDuration(s)
	}

	switch s[len(s)-1] {
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
