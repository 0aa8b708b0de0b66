package benchmark

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Delta is what one loop iteration contributed to the run's counters.
// Each op classifies its own outcome: a library scanner that commits a
// batch of 50 rows reports ScanWrites: 50, one that hit SQLITE_BUSY
// reports ScanErrors: 1, a playback stream reports reads and progress
// writes separately.
type Delta struct {
	ScanWrites  uint64
	ScanErrors  uint64
	Reads       uint64
	ReadErrors  uint64
	Writes      uint64
	WriteErrors uint64
}

// MixedOp performs one loop iteration against the store and reports what
// it did. Errors never escape an op; they come back as error counts so the
// run keeps going, the way a real Plex server keeps serving during a scan.
type MixedOp func(ctx context.Context) Delta

// MixedWorker is one concurrent loop in a timed mixed-workload run.
type MixedWorker struct {
	Name  string        // for progress logging
	Op    MixedOp       // one loop iteration
	Pause time.Duration // idle time between iterations, zero for none
}

// StressResult aggregates the counters of one timed mixed-workload run.
type StressResult struct {
	Store       string
	Kind        StoreKind
	ScanWrites  uint64
	ScanErrors  uint64
	Reads       uint64
	ReadErrors  uint64
	Writes      uint64
	WriteErrors uint64
	Elapsed     time.Duration
}

// TotalOps is every successful operation across all categories.
func (r StressResult) TotalOps() uint64 {
	return r.ScanWrites + r.Reads + r.Writes
}

// TotalErrors is every failed operation across all categories.
func (r StressResult) TotalErrors() uint64 {
	return r.ScanErrors + r.ReadErrors + r.WriteErrors
}

// ErrorRate is the percentage of attempted operations that failed.
func (r StressResult) ErrorRate() float64 {
	attempted := r.TotalOps() + r.TotalErrors()
	if attempted == 0 {
		return 0
	}
	return 100 * float64(r.TotalErrors()) / float64(attempted)
}

// OpsPerSec is the successful-operation rate over the whole run.
func (r StressResult) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.TotalOps()) / r.Elapsed.Seconds()
}

// tally is one worker's private counter set. Only its own goroutine adds
// to it; the progress logger reads it atomically and the runner merges all
// tallies after the workers have joined, so no counter is ever shared
// between two writers.
type tally struct {
	scanWrites  uint64
	scanErrors  uint64
	reads       uint64
	readErrors  uint64
	writes      uint64
	writeErrors uint64
}

func (t *tally) add(d Delta) {
	atomic.AddUint64(&t.scanWrites, d.ScanWrites)
	atomic.AddUint64(&t.scanErrors, d.ScanErrors)
	atomic.AddUint64(&t.reads, d.Reads)
	atomic.AddUint64(&t.readErrors, d.ReadErrors)
	atomic.AddUint64(&t.writes, d.Writes)
	atomic.AddUint64(&t.writeErrors, d.WriteErrors)
}

func (t *tally) snapshot() Delta {
	return Delta{
		ScanWrites:  atomic.LoadUint64(&t.scanWrites),
		ScanErrors:  atomic.LoadUint64(&t.scanErrors),
		Reads:       atomic.LoadUint64(&t.reads),
		ReadErrors:  atomic.LoadUint64(&t.readErrors),
		Writes:      atomic.LoadUint64(&t.writes),
		WriteErrors: atomic.LoadUint64(&t.writeErrors),
	}
}

// RunMixed starts one goroutine per worker and lets them loop until the
// duration elapses or ctx is canceled. Expiry is signaled through a flag
// each worker polls at the top of its loop, so an operation in flight
// always finishes; the run can therefore overshoot the duration by up to
// one iteration plus one pause, and Elapsed records what actually
// happened, not what was requested.
//
// The caller labels the result with Store and Kind afterwards.
func RunMixed(ctx context.Context, duration time.Duration, workers []MixedWorker) StressResult {
	var (
		wg   sync.WaitGroup
		stop uint32
	)
	tallies := make([]tally, len(workers))

	start := time.Now()
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			w := workers[i]
			t := &tallies[i]
			for atomic.LoadUint32(&stop) == 0 {
				t.add(w.Op(ctx))
				if w.Pause > 0 {
					time.Sleep(w.Pause)
				}
			}
		}(i)
	}

	// Trip the stop flag when the window closes or the user interrupts.
	timer := time.NewTimer(duration)
	defer timer.Stop()
	go func() {
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		atomic.StoreUint32(&stop, 1)
	}()

	// print progress every second while workers are running
	chDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-chDone:
				return
			case <-ticker.C:
				var snap Delta
				for i := range tallies {
					s := tallies[i].snapshot()
					snap.ScanWrites += s.ScanWrites
					snap.Reads += s.Reads
					snap.Writes += s.Writes
				}
				log.Info().
					Uint64("scan_writes", snap.ScanWrites).
					Uint64("reads", snap.Reads).
					Uint64("writes", snap.Writes).
					Msg("Mixed workload in progress")
			}
		}
	}()

	wg.Wait()
	close(chDone)

	res := StressResult{Elapsed: time.Since(start)}
	for i := range tallies {
		s := tallies[i].snapshot()
		res.ScanWrites += s.ScanWrites
		res.ScanErrors += s.ScanErrors
		res.Reads += s.Reads
		res.ReadErrors += s.ReadErrors
		res.Writes += s.Writes
		res.WriteErrors += s.WriteErrors
	}
	return res
}
