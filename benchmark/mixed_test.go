package benchmark

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunMixedMergesWorkerCounters(t *testing.T) {
	// Every worker keeps its own attempt count; the merged result must
	// match the sum exactly, whatever interleaving happened.
	attempts := make([]uint64, 4)
	workers := make([]MixedWorker, 4)
	for i := range workers {
		i := i
		workers[i] = MixedWorker{
			Name:  "worker",
			Pause: time.Millisecond,
			Op: func(ctx context.Context) Delta {
				atomic.AddUint64(&attempts[i], 1)
				return Delta{Reads: 1, Writes: 2}
			},
		}
	}

	res := RunMixed(context.Background(), 100*time.Millisecond, workers)

	var total uint64
	for i := range attempts {
		total += atomic.LoadUint64(&attempts[i])
	}
	if total == 0 {
		t.Fatal("no iterations ran in a 100ms window")
	}
	if res.Reads != total {
		t.Errorf("Reads = %d, want %d (one per iteration)", res.Reads, total)
	}
	if res.Writes != 2*total {
		t.Errorf("Writes = %d, want %d (two per iteration)", res.Writes, 2*total)
	}
	if res.TotalErrors() != 0 {
		t.Errorf("TotalErrors = %d, want 0", res.TotalErrors())
	}
}

func TestRunMixedIterationsBoundedByPause(t *testing.T) {
	const (
		duration = 100 * time.Millisecond
		pause    = 10 * time.Millisecond
	)
	workers := []MixedWorker{{
		Name:  "paced",
		Pause: pause,
		Op: func(ctx context.Context) Delta {
			return Delta{Reads: 1}
		},
	}}

	res := RunMixed(context.Background(), duration, workers)

	attempts := res.TotalOps() + res.TotalErrors()
	if attempts == 0 {
		t.Fatal("no iterations ran in a non-degenerate window")
	}
	// One overshoot iteration is allowed; more means the stop flag was
	// not observed between iterations.
	limit := uint64(duration/pause) + 2
	if attempts > limit {
		t.Errorf("attempts = %d, want at most %d for %v with %v pauses", attempts, limit, duration, pause)
	}
}

func TestRunMixedStopsWithinOneIteration(t *testing.T) {
	const duration = 100 * time.Millisecond
	workers := []MixedWorker{
		{Name: "a", Pause: 5 * time.Millisecond, Op: func(ctx context.Context) Delta { return Delta{Reads: 1} }},
		{Name: "b", Pause: 5 * time.Millisecond, Op: func(ctx context.Context) Delta { return Delta{Writes: 1} }},
	}

	start := time.Now()
	res := RunMixed(context.Background(), duration, workers)
	elapsed := time.Since(start)

	// RunMixed returning proves every worker joined; it may overshoot by
	// one in-flight iteration plus one pause, not more.
	if elapsed > duration+200*time.Millisecond {
		t.Errorf("RunMixed took %v for a %v window", elapsed, duration)
	}
	if res.Elapsed < duration {
		t.Errorf("Elapsed = %v, below the %v window", res.Elapsed, duration)
	}
}

func TestRunMixedCountsErrorsWithoutAborting(t *testing.T) {
	workers := []MixedWorker{{
		Name:  "failing",
		Pause: time.Millisecond,
		Op: func(ctx context.Context) Delta {
			return Delta{WriteErrors: 1}
		},
	}}

	res := RunMixed(context.Background(), 50*time.Millisecond, workers)

	if res.WriteErrors == 0 {
		t.Error("failing worker produced no error counts")
	}
	if res.TotalOps() != 0 {
		t.Errorf("TotalOps = %d, want 0 for an always-failing worker", res.TotalOps())
	}
	if res.Elapsed < 50*time.Millisecond {
		t.Errorf("run stopped early at %v; errors must not abort it", res.Elapsed)
	}
}

func TestRunMixedStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	workers := []MixedWorker{{
		Name: "spinner",
		Op: func(ctx context.Context) Delta {
			time.Sleep(time.Millisecond)
			return Delta{Reads: 1}
		},
	}}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	RunMixed(ctx, 10*time.Second, workers)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("RunMixed ran %v after cancellation, want prompt stop", elapsed)
	}
}

func TestStressResultRates(t *testing.T) {
	res := StressResult{
		ScanWrites: 80, ScanErrors: 10,
		Reads: 15, ReadErrors: 5,
		Writes: 5, WriteErrors: 5,
		Elapsed: 2 * time.Second,
	}
	if got := res.TotalOps(); got != 100 {
		t.Errorf("TotalOps = %d, want 100", got)
	}
	if got := res.TotalErrors(); got != 20 {
		t.Errorf("TotalErrors = %d, want 20", got)
	}
	if got := res.ErrorRate(); got < 16.6 || got > 16.7 {
		t.Errorf("ErrorRate = %.2f, want 20/120 as a percentage", got)
	}
	if got := res.OpsPerSec(); got != 50 {
		t.Errorf("OpsPerSec = %.1f, want 50", got)
	}

	var empty StressResult
	if empty.ErrorRate() != 0 || empty.OpsPerSec() != 0 {
		t.Error("empty result must not divide by zero")
	}
}
