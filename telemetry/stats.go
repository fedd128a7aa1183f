// Package telemetry collects per-frame simulation statistics and stage
// timings, with optional CSV export.
package telemetry

import "time"

// SolverStats records one solver's outcome for a frame, reduced across
// substeps: the reported status is the first failure or the
// worst-iteration success.
type SolverStats struct {
	Enabled        bool    `csv:"-"`
	Success        bool    `csv:"success"`
	PartialSuccess bool    `csv:"partial"`
	Iterations     int     `csv:"iterations"`
	Error          float64 `csv:"error"`
}

// ReduceSubstep folds a substep result into the frame aggregate.
func (s *SolverStats) ReduceSubstep(success, partial bool, iterations int, err float64) {
	first := !s.Enabled
	s.Enabled = true
	if !success {
		// keep the first failure's numbers
		if first || s.Success {
			s.Success = false
			s.Iterations = iterations
			s.Error = err
			s.PartialSuccess = partial
		}
		return
	}
	if !first && !s.Success {
		return
	}
	if iterations > s.Iterations {
		s.Iterations = iterations
		s.Error = err
	}
	if s.Iterations == 0 {
		s.Error = err
	}
	s.Success = s.Success || success
	s.PartialSuccess = s.PartialSuccess || partial
}

// FrameStats is the per-frame record surfaced to callers and exported to
// CSV.
type FrameStats struct {
	Frame     int     `csv:"frame"`
	Substeps  int     `csv:"substeps"`
	DeltaTime float64 `csv:"dt"`

	FluidParticles      int `csv:"fluid_particles"`
	WhitewaterParticles int `csv:"whitewater_particles"`
	FoamParticles       int `csv:"foam"`
	BubbleParticles     int `csv:"bubbles"`
	SprayParticles      int `csv:"spray"`
	DustParticles       int `csv:"dust"`

	SurfaceVertices  int `csv:"surface_vertices"`
	SurfaceTriangles int `csv:"surface_triangles"`
	PreviewVertices  int `csv:"preview_vertices"`
	PreviewTriangles int `csv:"preview_triangles"`

	SurfaceBytes    int `csv:"surface_bytes"`
	PreviewBytes    int `csv:"preview_bytes"`
	WhitewaterBytes int `csv:"whitewater_bytes"`
	ParticleBytes   int `csv:"particle_bytes"`
	DebugBytes      int `csv:"debug_bytes"`

	Pressure  SolverStats `csv:"-"`
	Viscosity SolverStats `csv:"-"`

	// Stage timings in seconds.
	TimeTotal    float64 `csv:"time_total"`
	TimeTransfer float64 `csv:"time_transfer"`
	TimePressure float64 `csv:"time_pressure"`
	TimeViscosity float64 `csv:"time_viscosity"`
	TimeAdvection float64 `csv:"time_advection"`
	TimeMeshing  float64 `csv:"time_meshing"`
	TimeSDF      float64 `csv:"time_sdf"`

	PerformanceScore float64 `csv:"performance_score"`
}

// StageTimer accumulates wall time per named stage for one frame.
type StageTimer struct {
	totals map[string]time.Duration
	start  map[string]time.Time
}

// NewStageTimer creates an empty timer.
func NewStageTimer() *StageTimer {
	return &StageTimer{
		totals: make(map[string]time.Duration),
		start:  make(map[string]time.Time),
	}
}

// Begin marks the start of a stage.
func (t *StageTimer) Begin(stage string) {
	t.start[stage] = time.Now()
}

// End accumulates the elapsed time since Begin for the stage.
func (t *StageTimer) End(stage string) {
	if s, ok := t.start[stage]; ok {
		t.totals[stage] += time.Since(s)
		delete(t.start, stage)
	}
}

// Seconds returns the accumulated time for a stage.
func (t *StageTimer) Seconds(stage string) float64 {
	return t.totals[stage].Seconds()
}

// Reset clears all accumulated stage times.
func (t *StageTimer) Reset() {
	t.totals = make(map[string]time.Duration)
	t.start = make(map[string]time.Time)
}
