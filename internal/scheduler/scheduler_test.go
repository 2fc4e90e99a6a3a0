package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", deadline)
}

func TestRecurringTaskRuns(t *testing.T) {
	s := New(testLogger())
	defer s.Close()

	var runs atomic.Int64
	s.ScheduleRecurring(context.Background(), "tick", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 })
}

func TestFailingRunDoesNotCancelTimer(t *testing.T) {
	s := New(testLogger())
	defer s.Close()

	var runs atomic.Int64
	s.ScheduleRecurring(context.Background(), "flaky", 10*time.Millisecond, func(ctx context.Context) error {
		n := runs.Add(1)
		if n == 1 {
			panic("first run explodes")
		}
		if n == 2 {
			return errors.New("second run fails")
		}
		return nil
	})

	// Runs 1 and 2 fail; the timer must survive into run 3 and beyond.
	waitFor(t, time.Second, func() bool { return runs.Load() >= 4 })
}

func TestDuplicateRegistrationReplacesPriorTimer(t *testing.T) {
	s := New(testLogger())
	defer s.Close()

	var first, second atomic.Int64
	s.ScheduleRecurring(context.Background(), "job", 10*time.Millisecond, func(ctx context.Context) error {
		first.Add(1)
		return nil
	})
	s.ScheduleRecurring(context.Background(), "job", 10*time.Millisecond, func(ctx context.Context) error {
		second.Add(1)
		return nil
	})

	waitFor(t, time.Second, func() bool { return second.Load() >= 2 })

	frozen := first.Load()
	waitFor(t, time.Second, func() bool { return second.Load() >= frozen+4 })
	if got := first.Load(); got > frozen+1 {
		t.Fatalf("replaced task kept running: %d then %d", frozen, got)
	}
}

func TestStopCancelsTask(t *testing.T) {
	s := New(testLogger())
	defer s.Close()

	var runs atomic.Int64
	s.ScheduleRecurring(context.Background(), "job", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return runs.Load() >= 1 })

	s.Stop("job")
	frozen := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got > frozen+1 {
		t.Fatalf("task kept running after Stop: %d then %d", frozen, got)
	}

	// Unknown names are a no-op.
	s.Stop("never-registered")
}

func TestContextCancellationStopsTask(t *testing.T) {
	s := New(testLogger())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int64
	s.ScheduleRecurring(ctx, "job", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return runs.Load() >= 1 })

	cancel()
	frozen := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got > frozen+1 {
		t.Fatalf("task kept running after context cancel: %d then %d", frozen, got)
	}
}
