// Package scheduler runs named callbacks on fixed intervals. Each task owns
// one timer goroutine; runs execute inline on that goroutine, so a run that
// outlives the interval delays later ticks instead of overlapping itself.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultInterval = time.Minute

// TaskFunc is a single scheduled run. A returned error is logged and never
// cancels the timer.
type TaskFunc func(ctx context.Context) error

// Scheduler owns a map from task name to a cancellable timer handle. At most
// one timer is active per name.
type Scheduler struct {
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]chan struct{}
}

// New constructs a Scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger != nil {
		logger = logger.With("component", "scheduler")
	}
	return &Scheduler{
		logger: logger,
		tasks:  make(map[string]chan struct{}),
	}
}

// ScheduleRecurring registers fn to run every interval under the given name.
// Registering a name that is already active stops the prior timer first and
// logs a warning. The task stops when ctx is cancelled, Stop(name) is called,
// or the registration is replaced.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, name string, interval time.Duration, fn TaskFunc) {
	if interval <= 0 {
		interval = defaultInterval
	}

	s.mu.Lock()
	if stop, ok := s.tasks[name]; ok {
		close(stop)
		if s.logger != nil {
			s.logger.Warn("replacing recurring task", "name", name)
		}
	}
	stop := make(chan struct{})
	s.tasks[name] = stop
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("recurring task scheduled", "name", name, "interval", interval)
	}
	go s.loop(ctx, name, interval, fn, stop)
}

// Stop cancels a named registration. Stopping an unknown name is a no-op.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.tasks[name]; ok {
		close(stop)
		delete(s.tasks, name)
		if s.logger != nil {
			s.logger.Info("recurring task stopped", "name", name)
		}
	}
}

// Close stops every registered task.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, stop := range s.tasks {
		close(stop)
		delete(s.tasks, name)
	}
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn TaskFunc, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.runOnce(ctx, name, fn)
		}
	}
}

// runOnce isolates a single run: panics are recovered and errors logged, so
// one failing run never cancels the timer or crashes the process.
func (s *Scheduler) runOnce(ctx context.Context, name string, fn TaskFunc) {
	defer func() {
		if rec := recover(); rec != nil && s.logger != nil {
			s.logger.Error("recurring task panicked", "name", name, "panic", rec)
		}
	}()
	if err := fn(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("recurring task failed", "name", name, "error", err)
		}
	}
}
