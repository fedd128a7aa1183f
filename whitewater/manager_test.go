package whitewater

import (
	"testing"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
	"github.com/pthm-cable/riptide/vecmath"
)

const (
	testN  = 12
	testDX = float32(0.1)
)

func testParams() Params {
	return Params{
		MaxParticleCount: 10000,
		EmissionRate:     500,
		WavecrestMin:     0.0,
		WavecrestMax:     1.0,
		TurbulenceMin:    0.0,
		TurbulenceMax:    10.0,

		MinLifetime:       0.5,
		MaxLifetime:       2.0,
		LifetimeVariance:  0.5,
		LifetimeModifiers: [4]float32{1, 1, 1, 1},

		FoamLayerDepth:        1,
		FoamAdvectionStrength: 1,
		BubbleDrag:            0.8,
		BubbleBuoyancy:        2.5,
		DustDrag:              0.8,
		DustBuoyancy:          -0.7,
		SprayDrag:             0.15,

		Boundary: [4][6]BoundaryBehavior{
			{BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide},
			{BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide},
			{BehaviorKill, BehaviorKill, BehaviorKill, BehaviorKill, BehaviorKill, BehaviorKill},
			{BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide, BehaviorCollide},
		},
	}
}

// testStepData builds a pool with a churning surface so emission
// potentials are non-zero.
func testStepData(dt float32) StepData {
	liquid := levelset.NewParticleLevelSet(testN, testN, testN, testDX)
	for k := 0; k < testN; k++ {
		for j := 0; j < testN; j++ {
			for i := 0; i < testN; i++ {
				y := (float32(j) + 0.5) * testDX
				liquid.Phi.Set(i, j, k, y-0.6)
			}
		}
	}

	solid := levelset.NewMeshLevelSet(testN, testN, testN, testDX)

	velocity := grid.NewMACVelocityField(testN, testN, testN, testDX)
	for k := 0; k < testN; k++ {
		for j := 0; j < testN; j++ {
			for i := 0; i < testN+1; i++ {
				if j%2 == 0 {
					velocity.U.Set(i, j, k, 3)
				} else {
					velocity.U.Set(i, j, k, -3)
				}
			}
		}
	}

	curvature := grid.NewCellCenteredScalarField(testN, testN, testN, testDX)
	curvature.Fill(0.8)

	return StepData{
		DT:        dt,
		Liquid:    liquid,
		Solid:     solid,
		Velocity:  velocity,
		Curvature: curvature,
		Curl:      grid.GenerateCurlAtCellCenter(velocity),
		Gravity:   vecmath.New(0, -9.81, 0),
	}
}

func TestEmitCreatesParticlesWithValidState(t *testing.T) {
	m := NewManager(testN, testN, testN, testDX, testParams(), 7)
	d := testStepData(1.0 / 30)

	m.Emit(d)
	if m.TotalCount() == 0 {
		t.Fatal("no particles emitted from a churning surface")
	}

	p := testParams()
	maxLife := p.MaxLifetime + p.LifetimeVariance
	m.ForEach(func(pos Position, v Velocity, s State) {
		if s.Type > TypeDust {
			t.Fatalf("invalid particle type %d", s.Type)
		}
		if s.Lifetime <= 0 || s.Lifetime > maxLife {
			t.Fatalf("lifetime %v outside (0, %v]", s.Lifetime, maxLife)
		}
	})
}

func TestEmitRespectsMaxParticleCount(t *testing.T) {
	params := testParams()
	params.MaxParticleCount = 10
	m := NewManager(testN, testN, testN, testDX, params, 7)
	d := testStepData(1.0 / 30)

	for i := 0; i < 5; i++ {
		m.Emit(d)
	}
	if m.TotalCount() > 10 {
		t.Errorf("count %d exceeds cap 10", m.TotalCount())
	}
}

func TestAdvanceExpiresLifetimes(t *testing.T) {
	m := NewManager(testN, testN, testN, testDX, testParams(), 7)
	m.Seed(vecmath.New(0.5, 0.5, 0.5), vecmath.Vec3{}, TypeFoam, 0.01, 0)
	d := testStepData(0.1)

	m.Advance(d)
	if m.TotalCount() != 0 {
		t.Errorf("expired particle survived: count=%d", m.TotalCount())
	}
}

func TestSprayBoundaryKill(t *testing.T) {
	m := NewManager(testN, testN, testN, testDX, testParams(), 7)
	// Spray headed out of the +y side (kill behavior for spray).
	m.Seed(vecmath.New(0.5, 1.19, 0.5), vecmath.New(0, 50, 0), TypeSpray, 10, 0)
	d := testStepData(0.1)

	m.Advance(d)
	if m.counts[TypeSpray] != 0 {
		t.Error("spray particle should be killed at the boundary")
	}
}

func TestFoamCollideBoundaryStaysInside(t *testing.T) {
	m := NewManager(testN, testN, testN, testDX, testParams(), 7)
	m.Seed(vecmath.New(0.05, 0.55, 0.5), vecmath.New(-10, 0, 0), TypeFoam, 10, 0)
	d := testStepData(0.1)

	m.Advance(d)
	width := float32(testN) * testDX
	m.ForEach(func(p Position, v Velocity, s State) {
		if p.X < 0 || p.X > width {
			t.Errorf("foam particle escaped collide boundary: x=%v", p.X)
		}
	})
}

func TestCountsTrackTransitions(t *testing.T) {
	m := NewManager(testN, testN, testN, testDX, testParams(), 7)
	// A bubble placed above the surface transitions to foam or spray.
	m.Seed(vecmath.New(0.55, 1.0, 0.55), vecmath.Vec3{}, TypeBubble, 10, 0)
	d := testStepData(1.0 / 60)

	m.Advance(d)
	foam, bubble, spray, dust := m.Counts()
	total := foam + bubble + spray + dust
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if bubble == 1 {
		t.Error("bubble above the surface should have changed type")
	}
}

func TestWraparoundIDs(t *testing.T) {
	m := NewManager(testN, testN, testN, testDX, testParams(), 7)
	d := testStepData(1.0 / 30)
	for i := 0; i < 40; i++ {
		m.Emit(d)
		if m.TotalCount() > 300 {
			break
		}
	}
	// IDs live in the full uint8 range; with hundreds of particles the
	// counter must have produced distinct values.
	seen := map[uint8]bool{}
	m.ForEach(func(p Position, v Velocity, s State) {
		seen[s.ID] = true
	})
	if len(seen) < 2 {
		t.Errorf("expected multiple distinct wraparound IDs, got %d", len(seen))
	}
}
