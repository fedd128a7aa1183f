package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReduceSubstepKeepsWorstSuccess(t *testing.T) {
	var s SolverStats
	s.ReduceSubstep(true, false, 10, 1e-10)
	s.ReduceSubstep(true, false, 40, 5e-10)
	s.ReduceSubstep(true, false, 25, 2e-10)

	if !s.Success {
		t.Error("all substeps succeeded, frame should report success")
	}
	if s.Iterations != 40 {
		t.Errorf("iterations = %d, want worst-case 40", s.Iterations)
	}
}

func TestReduceSubstepRecordsFailure(t *testing.T) {
	var s SolverStats
	s.ReduceSubstep(false, true, 900, 0.5)
	s.ReduceSubstep(true, false, 10, 1e-10)

	if !s.PartialSuccess {
		t.Error("partial success lost in reduction")
	}
	if s.Iterations < 900 {
		t.Errorf("iterations = %d, failure substep numbers lost", s.Iterations)
	}
}

func TestStageTimer(t *testing.T) {
	timer := NewStageTimer()
	timer.Begin("stage")
	time.Sleep(5 * time.Millisecond)
	timer.End("stage")

	if got := timer.Seconds("stage"); got <= 0 {
		t.Errorf("stage time = %v, want > 0", got)
	}
	if got := timer.Seconds("unknown"); got != 0 {
		t.Errorf("unknown stage time = %v", got)
	}

	timer.Reset()
	if got := timer.Seconds("stage"); got != 0 {
		t.Errorf("time after reset = %v", got)
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("empty dir should disable output")
	}
	// Nil manager methods are no-ops.
	if err := om.WriteFrameStats(FrameStats{}); err != nil {
		t.Errorf("nil write failed: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil close failed: %v", err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	stats := FrameStats{
		Frame: 1, Substeps: 3, FluidParticles: 1000, TimeTotal: 0.25,
		Pressure: SolverStats{Enabled: true, Success: true, Iterations: 42},
	}
	if err := om.WriteFrameStats(stats); err != nil {
		t.Fatal(err)
	}
	stats.Frame = 2
	if err := om.WriteFrameStats(stats); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want header + 2 rows", len(lines))
	}
	if !strings.Contains(lines[0], "frame") || !strings.Contains(lines[0], "pressure_iterations") {
		t.Errorf("header missing expected columns: %s", lines[0])
	}

	mean, _ := om.FrameTimeSummary()
	if mean != 0.25 {
		t.Errorf("mean frame time = %v, want 0.25", mean)
	}
}
