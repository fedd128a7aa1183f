package sim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/scene"
	"github.com/pthm-cable/riptide/vecmath"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Grid.ISize, cfg.Grid.JSize, cfg.Grid.KSize = 12, 12, 12
	cfg.Grid.DX = 0.1
	cfg.Threads.MaxThreadCount = 1
	cfg.Time.MaxTimeStepsPerFrame = 8
	cfg.Time.ExtremeVelocityRemoval.Enabled = false
	cfg.ComputeDerived()
	return cfg
}

func newDamBreak(t *testing.T) *Simulator {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	s.SetRandomSeed(42)
	s.AddFluidAABB(vecmath.New(0.15, 0.15, 0.15), vecmath.New(0.5, 0.9, 1.05), vecmath.Vec3{})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestUpdateBeforeInitialize(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(1.0 / 30); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestUpdateNegativeDT(t *testing.T) {
	s := newDamBreak(t)
	defer s.Close()
	if err := s.Update(-0.1); !errors.Is(err, ErrDomain) {
		t.Errorf("err = %v, want ErrDomain", err)
	}
}

func TestSetterValidationLeavesStateUntouched(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	before := s.Config().Physics.Density
	if err := s.SetDensity(-5); !errors.Is(err, ErrDomain) {
		t.Fatalf("err = %v, want ErrDomain", err)
	}
	if got := s.Config().Physics.Density; got != before {
		t.Errorf("density mutated to %v on failed setter", got)
	}

	if err := s.SetPICFLIPRatio(0.97); err != nil {
		t.Fatalf("valid setter failed: %v", err)
	}
	if got := s.Config().Transfer.PICFLIPRatio; got != 0.97 {
		t.Errorf("ratio = %v, want 0.97", got)
	}
}

func TestDuplicateObstacle(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	o := scene.NewMeshObject(mesh.Box(mesh.NewAABB(vecmath.New(0.5, 0.5, 0.5), 0.2, 0.2, 0.2)))
	if err := s.AddMeshObstacle(o); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMeshObstacle(o); !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestDamBreakMini(t *testing.T) {
	s := newDamBreak(t)
	defer s.Close()

	initial := s.ParticleCount()
	if initial == 0 {
		t.Fatal("no particles seeded")
	}

	for frame := 0; frame < 3; frame++ {
		if err := s.Update(1.0 / 30); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
	}

	stats := s.FrameStats()
	if !stats.Pressure.Success && !stats.Pressure.PartialSuccess {
		t.Errorf("pressure solve failed: iters=%d err=%g",
			stats.Pressure.Iterations, stats.Pressure.Error)
	}
	if stats.Substeps == 0 {
		t.Error("no substeps ran")
	}

	// Closed boundaries, no sources: the population only shrinks through
	// the occupancy cap.
	count := s.ParticleCount()
	if count < initial*9/10 || count > initial {
		t.Errorf("particle count %d drifted from initial %d", count, initial)
	}

	// All particles stay inside the domain minus the solid buffer.
	dx := float32(0.1)
	for i, p := range s.positions() {
		if p.X < dx || p.X > 1.2-dx || p.Y < dx || p.Y > 1.2-dx || p.Z < dx || p.Z > 1.2-dx {
			t.Fatalf("particle %d at %v escaped the domain interior", i, p)
		}
	}

	// The output stage produced a surface for the fluid block.
	if fd := s.FrameData(); fd == nil || len(fd.SurfaceData) == 0 {
		t.Error("no surface buffer after update")
	}
}

func TestDeterminismFixedSeedAndThreads(t *testing.T) {
	run := func() ([]vecmath.Vec3, []byte) {
		s := newDamBreak(t)
		defer s.Close()
		for frame := 0; frame < 2; frame++ {
			if err := s.Update(1.0 / 30); err != nil {
				t.Fatal(err)
			}
		}
		positions := append([]vecmath.Vec3(nil), s.positions()...)
		return positions, s.FrameData().SurfaceData
	}

	p1, m1 := run()
	p2, m2 := run()

	if len(p1) != len(p2) {
		t.Fatalf("particle counts differ: %d vs %d", len(p1), len(p2))
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("positions differ at %d: %v vs %v", i, p1[i], p2[i])
		}
	}
	if !bytes.Equal(m1, m2) {
		t.Error("surface buffers differ between identical runs")
	}
}

func TestAsyncMeshingMatchesSynchronous(t *testing.T) {
	run := func(async bool) []byte {
		cfg := testConfig()
		cfg.Meshing.AsynchronousMeshing = async
		s, err := New(cfg)
		if err != nil {
			t.Fatal(err)
		}
		s.SetRandomSeed(42)
		s.AddFluidAABB(vecmath.New(0.15, 0.15, 0.15), vecmath.New(0.5, 0.9, 1.05), vecmath.Vec3{})
		if err := s.Initialize(); err != nil {
			t.Fatal(err)
		}
		defer s.Close()
		if err := s.Update(1.0 / 30); err != nil {
			t.Fatal(err)
		}
		return s.FrameData().SurfaceData
	}

	if !bytes.Equal(run(true), run(false)) {
		t.Error("async surface differs from synchronous on the same snapshot")
	}
}

func TestInflowEmissionIdempotentWithinSubstep(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRandomSeed(7)
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	src := scene.NewFluidSource(
		mesh.Box(mesh.NewAABB(vecmath.New(0.4, 0.4, 0.4), 0.3, 0.3, 0.3)), scene.ModeInflow)
	if err := s.AddMeshFluidSource(src); err != nil {
		t.Fatal(err)
	}

	s.updateSolidSDF(0)
	s.applyInflows(1.0/30, 1.0/30, 0)
	first := s.ParticleCount()
	if first == 0 {
		t.Fatal("inflow emitted nothing")
	}

	s.applyInflows(1.0/30, 1.0/30, 0)
	if got := s.ParticleCount(); got != first {
		t.Errorf("second emission in the same state added %d particles", got-first)
	}
}

func TestOutflowCullsParticles(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRandomSeed(7)
	s.AddFluidAABB(vecmath.New(0.15, 0.15, 0.15), vecmath.New(1.05, 0.5, 1.05), vecmath.Vec3{})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	region := mesh.NewAABB(vecmath.New(0.4, 0.1, 0.4), 0.4, 0.5, 0.4)
	src := scene.NewFluidSource(mesh.Box(region), scene.ModeOutflow)
	if err := s.AddMeshFluidSource(src); err != nil {
		t.Fatal(err)
	}

	before := s.ParticleCount()
	s.applyOutflows(0)
	after := s.ParticleCount()
	if after >= before {
		t.Fatal("outflow removed nothing")
	}

	// No particle remains inside the outflow region's interior.
	inner := region.Expand(-0.05)
	for _, p := range s.positions() {
		if inner.Contains(p) {
			t.Fatalf("particle at %v survived inside the outflow", p)
		}
	}
}

func TestOpenBoundaryRemovesParticles(t *testing.T) {
	cfg := testConfig()
	cfg.Physics.OpenBoundarySides = [6]bool{true, false, false, false, false, false}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRandomSeed(7)
	// Particles hugging the -x side, within the open boundary band.
	s.AddFluidAABB(vecmath.New(0.11, 0.4, 0.4), vecmath.New(0.19, 0.6, 0.6), vecmath.Vec3{})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.ParticleCount() == 0 {
		t.Fatal("no particles seeded")
	}
	s.applyOpenBoundaries()
	if got := s.ParticleCount(); got != 0 {
		t.Errorf("%d particles remain inside the open boundary band", got)
	}
}

func TestViscosityFieldRadiusKernel(t *testing.T) {
	cfg := testConfig()
	cfg.Physics.VariableViscosity = true
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRandomSeed(7)

	// Two particles two cells apart with distinct viscosities. The
	// kernel radius is 2 cells, so the cells between and around them
	// must hold distance-weighted averages, not nearest-cell bins.
	s.LoadMarkerParticleData(
		[]vecmath.Vec3{vecmath.New(0.5, 0.55, 0.55), vecmath.New(0.7, 0.55, 0.55)}, nil)
	s.LoadMarkerParticleViscosityData([]float32{1, 3})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	field := s.viscosityField()

	// Cell (5,5,5), center x=0.55: weights 0.75 toward the first
	// particle and 0.25 toward the second -> 1.5. A nearest-cell deposit
	// would report exactly 1.
	if got := float64(field.Get(5, 5, 5)); got < 1.45 || got > 1.55 {
		t.Errorf("field(5,5,5) = %v, want ~1.5", got)
	}
	// Cell (6,5,5), center x=0.65: mirrored weights -> 2.5.
	if got := float64(field.Get(6, 5, 5)); got < 2.45 || got > 2.55 {
		t.Errorf("field(6,5,5) = %v, want ~2.5", got)
	}
	// Cell (4,5,5), center x=0.45: only the first particle is in range.
	if got := float64(field.Get(4, 5, 5)); got < 0.95 || got > 1.05 {
		t.Errorf("field(4,5,5) = %v, want ~1.0", got)
	}

	// Values vary smoothly along the axis between the particles.
	if !(field.Get(4, 5, 5) < field.Get(5, 5, 5) && field.Get(5, 5, 5) < field.Get(6, 5, 5)) {
		t.Error("viscosity field is not monotone between the two particles")
	}
}

func TestLifetimeExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.Attributes.Surface.Lifetime.Enabled = true
	cfg.Attributes.Surface.Lifetime.DeathTime = 0.01
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRandomSeed(7)
	s.AddFluidAABB(vecmath.New(0.4, 0.4, 0.4), vecmath.New(0.6, 0.6, 0.6), vecmath.Vec3{})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.ParticleCount() == 0 {
		t.Fatal("no particles seeded")
	}
	// Death time 0.01s: the first frame outlives every particle.
	if err := s.Update(1.0 / 30); err != nil {
		t.Fatal(err)
	}
	if got := s.ParticleCount(); got != 0 {
		t.Errorf("%d particles survived past their death time", got)
	}
}
