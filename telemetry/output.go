package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"
)

// frameStatsRow is the flattened CSV projection of FrameStats.
type frameStatsRow struct {
	FrameStats
	PressureSuccess      bool    `csv:"pressure_success"`
	PressureIterations   int     `csv:"pressure_iterations"`
	PressureError        float64 `csv:"pressure_error"`
	ViscositySuccess     bool    `csv:"viscosity_success"`
	ViscosityIterations  int     `csv:"viscosity_iterations"`
	ViscosityError       float64 `csv:"viscosity_error"`
}

// OutputManager writes per-frame stats rows to stats.csv in the output
// directory. A nil manager is a no-op, matching a disabled configuration.
type OutputManager struct {
	dir           string
	statsFile     *os.File
	headerWritten bool

	frameTimes []float64
}

// NewOutputManager creates the output directory and stats file. Returns
// nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "stats.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating stats.csv: %w", err)
	}
	return &OutputManager{dir: dir, statsFile: f}, nil
}

// Dir returns the output directory, or "" for a disabled manager.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteFrameStats appends one frame record to stats.csv.
func (om *OutputManager) WriteFrameStats(stats FrameStats) error {
	if om == nil {
		return nil
	}
	om.frameTimes = append(om.frameTimes, stats.TimeTotal)

	rows := []frameStatsRow{{
		FrameStats:          stats,
		PressureSuccess:     stats.Pressure.Success,
		PressureIterations:  stats.Pressure.Iterations,
		PressureError:       stats.Pressure.Error,
		ViscositySuccess:    stats.Viscosity.Success,
		ViscosityIterations: stats.Viscosity.Iterations,
		ViscosityError:      stats.Viscosity.Error,
	}}

	if !om.headerWritten {
		if err := gocsv.Marshal(rows, om.statsFile); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		om.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, om.statsFile); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

// FrameTimeSummary returns the mean and standard deviation of recorded
// frame times.
func (om *OutputManager) FrameTimeSummary() (mean, stddev float64) {
	if om == nil || len(om.frameTimes) == 0 {
		return 0, 0
	}
	mean = stat.Mean(om.frameTimes, nil)
	stddev = stat.StdDev(om.frameTimes, nil)
	return mean, stddev
}

// Close flushes and closes the stats file.
func (om *OutputManager) Close() error {
	if om == nil || om.statsFile == nil {
		return nil
	}
	return om.statsFile.Close()
}
