package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// FixedOptions configures one fixed-iteration latency measurement.
type FixedOptions struct {
	Label      string    // display name for the result
	Kind       StoreKind // which backend produced it, for report coloring
	Iterations int       // how many times to run the workload
	Progress   bool      // draw a terminal progress bar while looping
}

// LatencyResult holds one store's fixed-iteration measurement.
type LatencyResult struct {
	Store      string
	Kind       StoreKind
	Iterations int
	Total      time.Duration
}

// PerOp returns the mean duration of one iteration.
func (r LatencyResult) PerOp() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Iterations)
}

// PerOpMillis is PerOp in fractional milliseconds, the unit the
// comparison report prints.
func (r LatencyResult) PerOpMillis() float64 {
	return float64(r.PerOp().Nanoseconds()) / 1e6
}

// PerOpMicros is PerOp in fractional microseconds, for the microbenchmark
// report where operations are far below a millisecond.
func (r LatencyResult) PerOpMicros() float64 {
	return float64(r.PerOp().Nanoseconds()) / 1e3
}

// MeasureFixed runs fn back to back for the configured number of
// iterations and measures the whole loop on the monotonic clock. The cost
// of a result is its total divided by the iteration count; no percentiles,
// no warmup. A failing iteration aborts the measurement and surfaces the
// error, since a partial loop would not be comparable to a full one.
func MeasureFixed(ctx context.Context, opts FixedOptions, fn Workload) (LatencyResult, error) {
	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.StartNew(opts.Iterations)
		defer bar.Finish()
	}

	start := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return LatencyResult{}, err
		}
		if err := fn(ctx); err != nil {
			return LatencyResult{}, fmt.Errorf("%s iteration %d: %w", opts.Label, i+1, err)
		}
		if bar != nil {
			bar.Increment()
		}
	}

	return LatencyResult{
		Store:      opts.Label,
		Kind:       opts.Kind,
		Iterations: opts.Iterations,
		Total:      time.Since(start),
	}, nil
}
