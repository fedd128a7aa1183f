package solver

import (
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
)

// minFaceTheta bounds the ghost-fluid interface fraction so near-empty
// cells do not blow up the diagonal.
const minFaceTheta = 0.01

// PressureParameters are the inputs to one pressure projection. The solve
// is a pure function of these: identical inputs yield identical output.
type PressureParameters struct {
	CellWidth float64
	DeltaTime float64
	Density   float64

	Velocity *grid.MACVelocityField
	Valid    *grid.ValidVelocityGrid
	Liquid   *levelset.ParticleLevelSet
	Weights  *grid.WeightGrid

	// SolidU/V/W are optional face-sampled solid velocities; nil means
	// stationary solids.
	SolidU *grid.Array3D[float32]
	SolidV *grid.Array3D[float32]
	SolidW *grid.Array3D[float32]

	// Curvature enables the ghost-fluid surface tension term when
	// SurfaceTension > 0.
	Curvature      *grid.ScalarField
	SurfaceTension float64

	MaxIterations       int
	Tolerance           float64
	AcceptableTolerance float64
}

// PressureSolver assembles and solves the variational Poisson system on
// fluid cells, then applies the pressure gradient to the velocity field.
type PressureSolver struct {
	p PressureParameters

	fluidCells []grid.Index
	cellIndex  *grid.Array3D[int32]
	pressure   []float64
}

// NewPressureSolver prepares a solver for the given parameters.
func NewPressureSolver(p PressureParameters) *PressureSolver {
	return &PressureSolver{p: p}
}

// Pressure returns the last computed pressure vector, indexed by fluid
// cell order.
func (s *PressureSolver) Pressure() []float64 {
	return s.pressure
}

// FluidCells returns the fluid cell list of the last solve.
func (s *PressureSolver) FluidCells() []grid.Index {
	return s.fluidCells
}

func (s *PressureSolver) solidU(i, j, k int) float64 {
	if s.p.SolidU == nil {
		return 0
	}
	return float64(s.p.SolidU.Get(i, j, k))
}

func (s *PressureSolver) solidV(i, j, k int) float64 {
	if s.p.SolidV == nil {
		return 0
	}
	return float64(s.p.SolidV.Get(i, j, k))
}

func (s *PressureSolver) solidW(i, j, k int) float64 {
	if s.p.SolidW == nil {
		return 0
	}
	return float64(s.p.SolidW.Get(i, j, k))
}

// ghostPressure returns the air-side boundary pressure for the face
// between fluid cell f and air cell a: σ·κ at the fluid cell, scaled by
// the interface fraction φ_air/(φ_air − φ_fluid) in the second-order
// ghost-fluid manner. Zero when surface tension is disabled.
func (s *PressureSolver) ghostPressure(f, a grid.Index) float64 {
	if s.p.SurfaceTension <= 0 || s.p.Curvature == nil {
		return 0
	}
	phiF := float64(s.p.Liquid.Get(f.I, f.J, f.K))
	phiA := float64(s.p.Liquid.Get(a.I, a.J, a.K))
	if phiA-phiF == 0 {
		return 0
	}
	ratio := phiA / (phiA - phiF)
	kappa := float64(s.p.Curvature.Get(f.I, f.J, f.K))
	return s.p.SurfaceTension * kappa * ratio
}

// faceTheta returns the fluid fraction of the segment between a fluid and
// an air cell, clamped away from zero.
func (s *PressureSolver) faceTheta(f, a grid.Index) float64 {
	phiF := float64(s.p.Liquid.Get(f.I, f.J, f.K))
	phiA := float64(s.p.Liquid.Get(a.I, a.J, a.K))
	if phiF-phiA == 0 {
		return minFaceTheta
	}
	theta := phiF / (phiF - phiA)
	if theta < minFaceTheta {
		theta = minFaceTheta
	}
	return theta
}

type faceNeighbor struct {
	di, dj, dk int
	weight     func(i, j, k int) float32
}

func (s *PressureSolver) neighbors() [6]faceNeighbor {
	w := s.p.Weights
	return [6]faceNeighbor{
		{-1, 0, 0, func(i, j, k int) float32 { return w.U.Get(i, j, k) }},
		{1, 0, 0, func(i, j, k int) float32 { return w.U.Get(i+1, j, k) }},
		{0, -1, 0, func(i, j, k int) float32 { return w.V.Get(i, j, k) }},
		{0, 1, 0, func(i, j, k int) float32 { return w.V.Get(i, j+1, k) }},
		{0, 0, -1, func(i, j, k int) float32 { return w.W.Get(i, j, k) }},
		{0, 0, 1, func(i, j, k int) float32 { return w.W.Get(i, j, k+1) }},
	}
}

// Solve assembles the system, runs PCG, and applies the resulting
// pressures to the velocity field.
func (s *PressureSolver) Solve() Result {
	liquid := s.p.Liquid
	isize, jsize, ksize := liquid.ISize, liquid.JSize, liquid.KSize

	s.cellIndex = grid.NewArray3DFilled[int32](isize, jsize, ksize, -1)
	s.fluidCells = s.fluidCells[:0]
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if liquid.IsCellFluid(i, j, k) {
					s.cellIndex.Set(i, j, k, int32(len(s.fluidCells)))
					s.fluidCells = append(s.fluidCells, grid.Index{I: i, J: j, K: k})
				}
			}
		}
	}

	n := len(s.fluidCells)
	s.pressure = make([]float64, n)
	if n == 0 {
		return Result{Success: true}
	}

	dx := s.p.CellWidth
	scale := s.p.DeltaTime / (s.p.Density * dx * dx)
	neighbors := s.neighbors()

	// Diagonal assembled once; the off-diagonals are applied matrix-free.
	diag := make([]float64, n)
	b := make([]float64, n)

	v := s.p.Velocity
	w := s.p.Weights
	for idx, c := range s.fluidCells {
		i, j, k := c.I, c.J, c.K

		// RHS: negative weighted divergence, with solid face velocities
		// closing the non-fluid face fractions.
		wUL := float64(w.U.Get(i, j, k))
		wUR := float64(w.U.Get(i+1, j, k))
		wVB := float64(w.V.Get(i, j, k))
		wVT := float64(w.V.Get(i, j+1, k))
		wWB := float64(w.W.Get(i, j, k))
		wWF := float64(w.W.Get(i, j, k+1))

		div := wUR*float64(v.U.Get(i+1, j, k)) - wUL*float64(v.U.Get(i, j, k)) +
			wVT*float64(v.V.Get(i, j+1, k)) - wVB*float64(v.V.Get(i, j, k)) +
			wWF*float64(v.W.Get(i, j, k+1)) - wWB*float64(v.W.Get(i, j, k))

		div += (1-wUR)*s.solidU(i+1, j, k) - (1-wUL)*s.solidU(i, j, k) +
			(1-wVT)*s.solidV(i, j+1, k) - (1-wVB)*s.solidV(i, j, k) +
			(1-wWF)*s.solidW(i, j, k+1) - (1-wWB)*s.solidW(i, j, k)

		b[idx] = -div / dx

		for _, nb := range neighbors {
			ni, nj, nk := i+nb.di, j+nb.dj, k+nb.dk
			wgt := float64(nb.weight(i, j, k))
			if wgt <= 0 {
				continue
			}
			if !s.cellIndex.IsIndexInRange(ni, nj, nk) {
				continue
			}
			nidx := grid.Index{I: ni, J: nj, K: nk}
			if liquid.IsCellFluid(ni, nj, nk) {
				diag[idx] += wgt * scale
			} else {
				theta := s.faceTheta(c, nidx)
				diag[idx] += wgt * scale / theta
				if gp := s.ghostPressure(c, nidx); gp != 0 {
					b[idx] += wgt * scale / theta * gp
				}
			}
		}
	}

	applyA := func(x, out []float64) {
		for idx, c := range s.fluidCells {
			i, j, k := c.I, c.J, c.K
			acc := diag[idx] * x[idx]
			for _, nb := range neighbors {
				ni, nj, nk := i+nb.di, j+nb.dj, k+nb.dk
				if !s.cellIndex.IsIndexInRange(ni, nj, nk) {
					continue
				}
				nIdx := s.cellIndex.Get(ni, nj, nk)
				if nIdx < 0 {
					continue
				}
				wgt := float64(nb.weight(i, j, k))
				if wgt <= 0 {
					continue
				}
				acc -= wgt * scale * x[nIdx]
			}
			out[idx] = acc
		}
	}

	// Jacobi scaling as the preconditioner: diagonal dominance of the
	// weighted Laplacian keeps PCG well behaved at these grid sizes.
	precond := func(r, out []float64) {
		for i := range r {
			if diag[i] > 0 {
				out[i] = r[i] / diag[i]
			} else {
				out[i] = r[i]
			}
		}
	}

	result := solvePCG(applyA, precond, b, s.pressure,
		s.p.MaxIterations, s.p.Tolerance, s.p.AcceptableTolerance)

	s.applyPressureToVelocityField()
	return result
}

// applyPressureToVelocityField subtracts dt/ρ·∇p at every face bordering
// fluid with positive fluid weight and marks those faces valid; faces
// with zero fluid weight keep their velocity and valid flag.
func (s *PressureSolver) applyPressureToVelocityField() {
	liquid := s.p.Liquid
	v := s.p.Velocity
	w := s.p.Weights
	valid := s.p.Valid

	dx := s.p.CellWidth
	scale := s.p.DeltaTime / (s.p.Density * dx)

	pAt := func(i, j, k int) (float64, bool) {
		if !s.cellIndex.IsIndexInRange(i, j, k) {
			return 0, false
		}
		idx := s.cellIndex.Get(i, j, k)
		if idx < 0 {
			return 0, false
		}
		return s.pressure[idx], true
	}

	// gradTerm resolves the pressure difference across a face between
	// cells a (lower) and b (upper), with ghost handling when one side
	// is air.
	gradTerm := func(a, b grid.Index) (float64, bool) {
		pa, aFluid := pAt(a.I, a.J, a.K)
		pb, bFluid := pAt(b.I, b.J, b.K)
		aInRange := s.cellIndex.IsIndexInRange(a.I, a.J, a.K)
		bInRange := s.cellIndex.IsIndexInRange(b.I, b.J, b.K)

		switch {
		case aFluid && bFluid:
			return pb - pa, true
		case aFluid && bInRange:
			theta := s.faceTheta(a, b)
			ghost := s.ghostPressure(a, b)
			return (ghost - pa) / theta, true
		case bFluid && aInRange:
			theta := s.faceTheta(b, a)
			ghost := s.ghostPressure(b, a)
			return (pb - ghost) / theta, true
		default:
			return 0, false
		}
	}

	isize, jsize, ksize := liquid.ISize, liquid.JSize, liquid.KSize

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 1; i < isize; i++ {
				if w.U.Get(i, j, k) <= 0 {
					continue
				}
				d, ok := gradTerm(grid.Index{I: i - 1, J: j, K: k}, grid.Index{I: i, J: j, K: k})
				if !ok {
					continue
				}
				*v.U.At(i, j, k) -= float32(scale * d)
				valid.ValidU.Set(i, j, k, true)
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 1; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if w.V.Get(i, j, k) <= 0 {
					continue
				}
				d, ok := gradTerm(grid.Index{I: i, J: j - 1, K: k}, grid.Index{I: i, J: j, K: k})
				if !ok {
					continue
				}
				*v.V.At(i, j, k) -= float32(scale * d)
				valid.ValidV.Set(i, j, k, true)
			}
		}
	}
	for k := 1; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if w.W.Get(i, j, k) <= 0 {
					continue
				}
				d, ok := gradTerm(grid.Index{I: i, J: j, K: k - 1}, grid.Index{I: i, J: j, K: k})
				if !ok {
					continue
				}
				*v.W.At(i, j, k) -= float32(scale * d)
				valid.ValidW.Set(i, j, k, true)
			}
		}
	}
}

// MaxDivergence measures the largest weighted face divergence over fluid
// cells, for diagnostics and tests.
func MaxDivergence(p PressureParameters) float64 {
	liquid := p.Liquid
	v := p.Velocity
	w := p.Weights
	maxDiv := 0.0
	for k := 0; k < liquid.KSize; k++ {
		for j := 0; j < liquid.JSize; j++ {
			for i := 0; i < liquid.ISize; i++ {
				if !liquid.IsCellFluid(i, j, k) {
					continue
				}
				div := float64(w.U.Get(i+1, j, k))*float64(v.U.Get(i+1, j, k)) -
					float64(w.U.Get(i, j, k))*float64(v.U.Get(i, j, k)) +
					float64(w.V.Get(i, j+1, k))*float64(v.V.Get(i, j+1, k)) -
					float64(w.V.Get(i, j, k))*float64(v.V.Get(i, j, k)) +
					float64(w.W.Get(i, j, k+1))*float64(v.W.Get(i, j, k+1)) -
					float64(w.W.Get(i, j, k))*float64(v.W.Get(i, j, k))
				if div < 0 {
					div = -div
				}
				if div > maxDiv {
					maxDiv = div
				}
			}
		}
	}
	return maxDiv
}
