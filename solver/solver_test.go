package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
)

const (
	testN  = 12
	testDX = 0.1
)

// testScene builds a liquid block resting in the lower half of the
// domain with fully open interior weights and closed walls.
func testScene() (*levelset.ParticleLevelSet, *grid.WeightGrid, *grid.MACVelocityField, *grid.ValidVelocityGrid) {
	liquid := levelset.NewParticleLevelSet(testN, testN, testN, testDX)
	for k := 0; k < testN; k++ {
		for j := 0; j < testN; j++ {
			for i := 0; i < testN; i++ {
				// Liquid below y = 0.6, with one boundary cell of margin
				// on every side.
				inLiquid := i >= 1 && i < testN-1 && k >= 1 && k < testN-1 &&
					j >= 1 && j < 6
				if inLiquid {
					liquid.Phi.Set(i, j, k, -testDX)
				} else {
					liquid.Phi.Set(i, j, k, testDX)
				}
			}
		}
	}

	weights := grid.NewWeightGrid(testN, testN, testN)
	weights.U.Fill(1)
	weights.V.Fill(1)
	weights.W.Fill(1)
	weights.Center.Fill(1)
	// Closed domain walls.
	for k := 0; k < testN; k++ {
		for j := 0; j < testN; j++ {
			weights.U.Set(1, j, k, 0)
			weights.U.Set(testN-1, j, k, 0)
		}
	}
	for k := 0; k < testN; k++ {
		for i := 0; i < testN; i++ {
			weights.V.Set(i, 1, k, 0)
			weights.V.Set(i, testN-1, k, 0)
		}
	}
	for j := 0; j < testN; j++ {
		for i := 0; i < testN; i++ {
			weights.W.Set(i, j, 1, 0)
			weights.W.Set(i, j, testN-1, 0)
		}
	}

	velocity := grid.NewMACVelocityField(testN, testN, testN, testDX)
	valid := grid.NewValidVelocityGrid(testN, testN, testN)
	return liquid, weights, velocity, valid
}

func pressureParams() PressureParameters {
	liquid, weights, velocity, valid := testScene()
	// Gravity-loaded field.
	velocity.V.Fill(-1)
	return PressureParameters{
		CellWidth: testDX,
		DeltaTime: 1.0 / 30,
		Density:   1000,
		Velocity:  velocity,
		Valid:     valid,
		Liquid:    liquid,
		Weights:   weights,

		MaxIterations:       500,
		Tolerance:           1e-9,
		AcceptableTolerance: 1.0,
	}
}

func TestPressureSolveConverges(t *testing.T) {
	p := pressureParams()
	r := NewPressureSolver(p).Solve()
	require.True(t, r.Success, "solver failed: iterations=%d err=%g", r.Iterations, r.Error)
	assert.Greater(t, r.Iterations, 0)
}

func TestPressureSolveRemovesDivergence(t *testing.T) {
	p := pressureParams()
	NewPressureSolver(p).Solve()

	// After projection, weighted divergence over fluid cells is near
	// zero.
	maxDiv := MaxDivergence(p)
	assert.Less(t, maxDiv, 1e-3, "max divergence %g after projection", maxDiv)
}

func TestPressureSolveIsPure(t *testing.T) {
	p1 := pressureParams()
	p2 := pressureParams()
	r1 := NewPressureSolver(p1).Solve()
	r2 := NewPressureSolver(p2).Solve()

	assert.Equal(t, r1.Iterations, r2.Iterations)
	for i, v := range p1.Velocity.V.Data() {
		if p2.Velocity.V.Data()[i] != v {
			t.Fatalf("velocity fields differ at %d", i)
		}
	}
}

func TestPressureEmptyLiquid(t *testing.T) {
	p := pressureParams()
	p.Liquid.Phi.Fill(testDX) // all air
	r := NewPressureSolver(p).Solve()
	assert.True(t, r.Success)
	assert.Zero(t, r.Iterations)
}

func TestPressureSurfaceTensionChangesSolution(t *testing.T) {
	base := pressureParams()
	NewPressureSolver(base).Solve()

	withTension := pressureParams()
	// A uniform curvature only shifts every pressure by the same constant
	// and leaves the velocity unchanged, so curve only half the surface.
	curvature := grid.NewCellCenteredScalarField(testN, testN, testN, testDX)
	for k := 0; k < testN; k++ {
		for j := 0; j < testN; j++ {
			for i := 0; i < testN/2; i++ {
				curvature.Set(i, j, k, 5)
			}
		}
	}
	withTension.SurfaceTension = 1.0
	withTension.Curvature = curvature
	NewPressureSolver(withTension).Solve()

	different := false
	for i, v := range base.Velocity.V.Data() {
		if math.Abs(float64(v-withTension.Velocity.V.Data()[i])) > 1e-7 {
			different = true
			break
		}
	}
	assert.True(t, different, "surface tension term had no effect on the projection")
}

func TestViscosityZeroIsNoOp(t *testing.T) {
	liquid, _, velocity, _ := testScene()
	velocity.U.Fill(1)
	before := velocity.Clone()

	vis := grid.NewCellCenteredScalarField(testN, testN, testN, testDX)
	r := NewViscositySolver(ViscosityParameters{
		CellWidth: testDX, DeltaTime: 1.0 / 30, Density: 1000,
		Velocity: velocity, Liquid: liquid, Viscosity: vis,
		MaxIterations: 100, Tolerance: 1e-6, AcceptableTolerance: 1e-2,
	}).Solve()

	require.True(t, r.Success)
	for i, v := range before.U.Data() {
		assert.Equal(t, v, velocity.U.Data()[i], "zero viscosity altered face %d", i)
	}
}

func TestViscositySmoothsShear(t *testing.T) {
	liquid, _, velocity, _ := testScene()
	// A sharp shear layer inside the liquid.
	for k := 0; k < testN; k++ {
		for j := 0; j < testN; j++ {
			for i := 0; i < testN+1; i++ {
				if j < 3 {
					velocity.U.Set(i, j, k, 1)
				} else {
					velocity.U.Set(i, j, k, -1)
				}
			}
		}
	}
	shearBefore := float64(velocity.U.Get(6, 2, 6) - velocity.U.Get(6, 4, 6))

	vis := grid.NewCellCenteredScalarField(testN, testN, testN, testDX)
	vis.Fill(5.0)
	r := NewViscositySolver(ViscosityParameters{
		CellWidth: testDX, DeltaTime: 1.0 / 30, Density: 1000,
		Velocity: velocity, Liquid: liquid, Viscosity: vis,
		MaxIterations: 500, Tolerance: 1e-8, AcceptableTolerance: 1e-2,
	}).Solve()

	require.True(t, r.Success || r.PartialSuccess,
		"viscosity solve failed: err=%g", r.Error)
	shearAfter := float64(velocity.U.Get(6, 2, 6) - velocity.U.Get(6, 4, 6))
	assert.Less(t, math.Abs(shearAfter), math.Abs(shearBefore),
		"viscosity did not diffuse the shear layer")
}
