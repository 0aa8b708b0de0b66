package benchmark

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/muesli/termenv"
)

// Reporter renders benchmark results for a terminal. It is pure
// formatting: nothing is written anywhere but the supplied writer and no
// state survives a call, so the same results always render the same text.
// Color degrades to plain text automatically when the writer is not a
// terminal.
type Reporter struct {
	w   io.Writer
	out *termenv.Output
}

// NewReporter builds a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w, out: termenv.NewOutput(w)}
}

func (r *Reporter) color(s string, c termenv.Color) string {
	return r.out.String(s).Foreground(c).String()
}

// Style helpers used by the scenarios for their prose.

func (r *Reporter) Red(s string) string    { return r.color(s, termenv.ANSIRed) }
func (r *Reporter) Green(s string) string  { return r.color(s, termenv.ANSIGreen) }
func (r *Reporter) Yellow(s string) string { return r.color(s, termenv.ANSIYellow) }
func (r *Reporter) Blue(s string) string   { return r.color(s, termenv.ANSIBlue) }
func (r *Reporter) Cyan(s string) string   { return r.color(s, termenv.ANSICyan) }
func (r *Reporter) Bold(s string) string   { return r.out.String(s).Bold().String() }

// Printf writes free-form report text.
func (r *Reporter) Printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// Banner opens a report with the double-rule header block.
func (r *Reporter) Banner(title string) {
	rule := strings.Repeat("═", 64)
	fmt.Fprintf(r.w, "\n%s\n", r.Blue(rule))
	fmt.Fprintf(r.w, "%s\n", r.Blue(r.Bold("  "+title)))
	fmt.Fprintf(r.w, "%s\n", r.Blue(rule))
}

// Rule draws a single separator line between report sections.
func (r *Reporter) Rule() {
	fmt.Fprintf(r.w, "%s\n", r.Blue(strings.Repeat("─", 64)))
}

// DoubleRule draws the heavy separator used before summaries.
func (r *Reporter) DoubleRule() {
	fmt.Fprintf(r.w, "%s\n", r.Blue(strings.Repeat("═", 64)))
}

// BenchHeader announces one benchmark: its name and its parameters.
func (r *Reporter) BenchHeader(name, params string) {
	fmt.Fprintf(r.w, "%s (%s)\n", r.Yellow("["+name+"]"), params)
}

// storeStyled colors a winner by which store it is. SQLite wins are the
// bad news this suite exists to show, so they render red; PostgreSQL wins
// render green. Unknown kinds stay plain.
func (r *Reporter) storeStyled(kind StoreKind, s string) string {
	switch kind {
	case KindSQLite:
		return r.Red(s)
	case KindPostgres:
		return r.Green(s)
	default:
		return s
	}
}

// ratio divides a by b, guarding division by zero with +Inf.
func ratio(a, b float64) float64 {
	if b == 0 {
		return math.Inf(1)
	}
	return a / b
}

// LatencyComparison prints both stores' per-query latency and declares
// the winner. Lower latency wins; ties go to the second store.
func (r *Reporter) LatencyComparison(a, b LatencyResult) {
	fmt.Fprintf(r.w, "  %-11s %6.2f ms/query\n", a.Store+":", a.PerOpMillis())
	fmt.Fprintf(r.w, "  %-11s %6.2f ms/query\n", b.Store+":", b.PerOpMillis())

	winner, loser := a, b
	if b.PerOpMillis() <= a.PerOpMillis() {
		winner, loser = b, a
	}
	speedup := ratio(loser.PerOpMillis(), winner.PerOpMillis())
	fmt.Fprintf(r.w, "  Winner:     %s\n\n",
		r.storeStyled(winner.Kind, fmt.Sprintf("%s (%.1fx faster)", winner.Store, speedup)))
}

// MicroLatency prints one microbenchmark pairing in microseconds, with
// the second store expressed relative to the first.
func (r *Reporter) MicroLatency(a, b LatencyResult) {
	fmt.Fprintf(r.w, "    %-15s %6.2f µs\n", a.Store+":", a.PerOpMicros())
	fmt.Fprintf(r.w, "    %-15s %6.2f µs  (%.1fx slower)\n",
		b.Store+":", b.PerOpMicros(), ratio(b.PerOpMicros(), a.PerOpMicros()))
	fmt.Fprintln(r.w)
}

// ThroughputComparison prints both stores' concurrent throughput and
// declares the winner. Higher rate wins; ties go to the second store.
func (r *Reporter) ThroughputComparison(a, b ThroughputResult) {
	fmt.Fprintf(r.w, "  %-11s %.0fms total (%.0f queries/sec)\n",
		a.Store+":", float64(a.Elapsed.Milliseconds()), a.OpsPerSec())
	fmt.Fprintf(r.w, "  %-11s %.0fms total (%.0f queries/sec)\n",
		b.Store+":", float64(b.Elapsed.Milliseconds()), b.OpsPerSec())

	winner, loser := a, b
	if b.OpsPerSec() >= a.OpsPerSec() {
		winner, loser = b, a
	}
	speedup := ratio(winner.OpsPerSec(), loser.OpsPerSec())
	fmt.Fprintf(r.w, "  Winner:     %s\n\n",
		r.storeStyled(winner.Kind, fmt.Sprintf("%s (%.1fx more throughput)", winner.Store, speedup)))
}

// MixedComparison prints both stores' mixed-workload totals and declares
// the winner by successful operations. Higher wins; ties go to the first
// store passed.
func (r *Reporter) MixedComparison(a, b StressResult) {
	fmt.Fprintf(r.w, "  %-11s %d reads + %d writes\n", a.Store+":", a.Reads, a.Writes)
	fmt.Fprintf(r.w, "  %-11s %d reads + %d writes\n", b.Store+":", b.Reads, b.Writes)

	winner, loser := a, b
	if b.TotalOps() > a.TotalOps() {
		winner, loser = b, a
	}
	speedup := ratio(float64(winner.TotalOps()), float64(loser.TotalOps()))
	fmt.Fprintf(r.w, "  Winner:     %s\n\n",
		r.storeStyled(winner.Kind, fmt.Sprintf("%s (%.1fx more operations)", winner.Store, speedup)))
}

// StressBlock prints the per-run result block of one stress test. The
// title arrives pre-styled so each run keeps its own accent color.
func (r *Reporter) StressBlock(title string, res StressResult) {
	fmt.Fprintf(r.w, "  %s:\n", title)
	fmt.Fprintf(r.w, "    Library scan writes:    %6d (errors: %s)\n", res.ScanWrites, r.Red(fmt.Sprintf("%d", res.ScanErrors)))
	fmt.Fprintf(r.w, "    Playback reads:         %6d (errors: %s)\n", res.Reads, r.Red(fmt.Sprintf("%d", res.ReadErrors)))
	fmt.Fprintf(r.w, "    Watch progress writes:  %6d (errors: %s)\n", res.Writes, r.Red(fmt.Sprintf("%d", res.WriteErrors)))
	fmt.Fprintf(r.w, "    Total operations:       %s\n", r.Green(fmt.Sprintf("%6d", res.TotalOps())))

	rate := res.ErrorRate()
	styled := r.Green(fmt.Sprintf("%.1f%%", rate))
	if rate > 1 {
		styled = r.Red(fmt.Sprintf("%.1f%%", rate))
	}
	fmt.Fprintf(r.w, "    Error rate:             %s\n\n", styled)
}

// StressSummary prints the closing table of a stress run. Rates use the
// requested duration so rows stay comparable even when runs overshoot by
// a final iteration.
func (r *Reporter) StressSummary(results []StressResult, duration time.Duration) {
	fmt.Fprintf(r.w, "  %-20s %-12s %-10s %-12s %-10s\n", "Database", "Total Ops", "Errors", "Error Rate", "Ops/sec")
	fmt.Fprintf(r.w, "  %s\n", strings.Repeat("-", 65))

	for _, res := range results {
		errCol := r.Green(fmt.Sprintf("%-10d", res.TotalErrors()))
		if res.Kind == KindSQLite {
			errCol = r.Red(fmt.Sprintf("%-10d", res.TotalErrors()))
		}
		opsPerSec := float64(res.TotalOps()) / duration.Seconds()
		fmt.Fprintf(r.w, "  %-20s %-12d %s %.1f%%%-8s %.0f\n",
			res.Store, res.TotalOps(), errCol, res.ErrorRate(), "", opsPerSec)
	}
	fmt.Fprintln(r.w)
}
