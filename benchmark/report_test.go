package benchmark

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
)

// asciiReporter renders without ANSI sequences so assertions stay plain.
func asciiReporter() (*Reporter, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Reporter{w: &buf, out: termenv.NewOutput(&buf, termenv.WithProfile(termenv.Ascii))}, &buf
}

func TestLatencyComparisonLowerWins(t *testing.T) {
	rep, buf := asciiReporter()

	fast := LatencyResult{Store: "SQLite", Kind: KindSQLite, Iterations: 100, Total: time.Second}
	slow := LatencyResult{Store: "PostgreSQL", Kind: KindPostgres, Iterations: 100, Total: 2 * time.Second}
	rep.LatencyComparison(fast, slow)

	out := buf.String()
	if !strings.Contains(out, "Winner:     SQLite (2.0x faster)") {
		t.Errorf("lower latency did not win:\n%s", out)
	}
	if !strings.Contains(out, "10.00 ms/query") || !strings.Contains(out, "20.00 ms/query") {
		t.Errorf("per-query latencies missing:\n%s", out)
	}
}

func TestThroughputComparisonHigherWins(t *testing.T) {
	rep, buf := asciiReporter()

	slow := ThroughputResult{Store: "SQLite", Kind: KindSQLite, Completed: 500, Elapsed: time.Second}
	fast := ThroughputResult{Store: "PostgreSQL", Kind: KindPostgres, Completed: 1500, Elapsed: time.Second}
	rep.ThroughputComparison(slow, fast)

	out := buf.String()
	if !strings.Contains(out, "Winner:     PostgreSQL (3.0x more throughput)") {
		t.Errorf("higher throughput did not win:\n%s", out)
	}
	if !strings.Contains(out, "500 queries/sec") || !strings.Contains(out, "1500 queries/sec") {
		t.Errorf("rates missing:\n%s", out)
	}
}

func TestMixedComparisonMoreOpsWins(t *testing.T) {
	rep, buf := asciiReporter()

	sq := StressResult{Store: "SQLite", Kind: KindSQLite, Reads: 100, Writes: 50, Elapsed: time.Second}
	pg := StressResult{Store: "PostgreSQL", Kind: KindPostgres, Reads: 400, Writes: 200, Elapsed: time.Second}
	rep.MixedComparison(sq, pg)

	out := buf.String()
	if !strings.Contains(out, "Winner:     PostgreSQL (4.0x more operations)") {
		t.Errorf("higher operation count did not win:\n%s", out)
	}
}

func TestStressBlockAndSummary(t *testing.T) {
	rep, buf := asciiReporter()

	res := StressResult{
		Store: "SQLite", Kind: KindSQLite,
		ScanWrites: 900, ScanErrors: 30,
		Reads: 60, ReadErrors: 4,
		Writes: 40, WriteErrors: 6,
		Elapsed: 10 * time.Second,
	}
	rep.StressBlock("SQLite", res)
	rep.StressSummary([]StressResult{res}, 10*time.Second)

	out := buf.String()
	for _, want := range []string{"Library scan writes", "Playback reads", "Watch progress writes", "Total operations", "Error rate", "Ops/sec"} {
		if !strings.Contains(out, want) {
			t.Errorf("stress output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "1000") {
		t.Errorf("total operations not rendered:\n%s", out)
	}
}

func TestReporterIsPureFormatting(t *testing.T) {
	rep, buf := asciiReporter()

	a := LatencyResult{Store: "SQLite", Kind: KindSQLite, Iterations: 10, Total: time.Second}
	b := LatencyResult{Store: "PostgreSQL", Kind: KindPostgres, Iterations: 10, Total: time.Second}

	rep.LatencyComparison(a, b)
	first := buf.String()
	buf.Reset()
	rep.LatencyComparison(a, b)

	if buf.String() != first {
		t.Error("same inputs rendered differently across calls")
	}
}
