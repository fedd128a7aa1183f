package solver

import (
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
	"github.com/pthm-cable/riptide/vecmath"
)

// ViscosityParameters are the inputs to one variational viscosity solve.
type ViscosityParameters struct {
	CellWidth float64
	DeltaTime float64
	Density   float64

	Velocity *grid.MACVelocityField
	Liquid   *levelset.ParticleLevelSet

	// Viscosity is the cell-centered dynamic viscosity field. For a
	// constant-viscosity fluid every sample holds the same value; for
	// particle-sourced viscosity the field was resampled and
	// extrapolated before the solve.
	Viscosity *grid.ScalarField

	MaxIterations       int
	Tolerance           float64
	AcceptableTolerance float64
}

// ViscositySolver solves (I − dt/ρ ∇·(2μD))u* = u over the three
// face-velocity components. Unknowns are faces whose control volume holds
// liquid; all other faces keep their current values and enter the
// stencil as zero-velocity boundary data.
type ViscositySolver struct {
	p ViscosityParameters

	// Unknown index per face; -1 where the face is not solved for.
	idxU, idxV, idxW *grid.Array3D[int32]
	unknowns         []faceRef

	volU, volV, volW *grid.Array3D[float32]
	volC             *grid.Array3D[float32]

	// Working copies of the velocity components, overwritten with the
	// candidate vector on every operator application.
	u, v, w *grid.Array3D[float32]
}

type faceRef struct {
	axis    uint8 // 0=U 1=V 2=W
	i, j, k int
}

// NewViscositySolver prepares a solver for the given parameters.
func NewViscositySolver(p ViscosityParameters) *ViscositySolver {
	return &ViscositySolver{p: p}
}

// liquidFraction estimates the liquid fraction of a control volume from
// the interpolated signed distance at its center.
func (s *ViscositySolver) liquidFraction(p vecmath.Vec3) float32 {
	phi := s.p.Liquid.TrilinearInterpolate(p)
	return vecmath.Clamp(0.5-phi/float32(s.p.CellWidth), 0, 1)
}

func (s *ViscositySolver) buildVolumes() {
	liq := s.p.Liquid
	isize, jsize, ksize := liq.ISize, liq.JSize, liq.KSize
	dx := float32(s.p.CellWidth)

	s.volU = grid.NewArray3D[float32](isize+1, jsize, ksize)
	s.volV = grid.NewArray3D[float32](isize, jsize+1, ksize)
	s.volW = grid.NewArray3D[float32](isize, jsize, ksize+1)
	s.volC = grid.NewArray3D[float32](isize, jsize, ksize)

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize+1; i++ {
				p := vecmath.Vec3{X: float32(i) * dx, Y: (float32(j) + 0.5) * dx, Z: (float32(k) + 0.5) * dx}
				s.volU.Set(i, j, k, s.liquidFraction(p))
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize+1; j++ {
			for i := 0; i < isize; i++ {
				p := vecmath.Vec3{X: (float32(i) + 0.5) * dx, Y: float32(j) * dx, Z: (float32(k) + 0.5) * dx}
				s.volV.Set(i, j, k, s.liquidFraction(p))
			}
		}
	}
	for k := 0; k < ksize+1; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				p := vecmath.Vec3{X: (float32(i) + 0.5) * dx, Y: (float32(j) + 0.5) * dx, Z: float32(k) * dx}
				s.volW.Set(i, j, k, s.liquidFraction(p))
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				if liq.IsCellFluid(i, j, k) {
					s.volC.Set(i, j, k, 1)
				}
			}
		}
	}
}

// mu returns the cell-centered viscosity with edge clamping.
func (s *ViscositySolver) mu(i, j, k int) float64 {
	vis := s.p.Viscosity
	i = clampIdx(i, vis.ISize-1)
	j = clampIdx(j, vis.JSize-1)
	k = clampIdx(k, vis.KSize-1)
	return float64(vis.Get(i, j, k))
}

// muEdgeXY averages viscosity onto the z-aligned edge at node (i,j) of
// layer k.
func (s *ViscositySolver) muEdgeXY(i, j, k int) float64 {
	return 0.25 * (s.mu(i-1, j-1, k) + s.mu(i, j-1, k) + s.mu(i-1, j, k) + s.mu(i, j, k))
}

func (s *ViscositySolver) muEdgeXZ(i, j, k int) float64 {
	return 0.25 * (s.mu(i-1, j, k-1) + s.mu(i, j, k-1) + s.mu(i-1, j, k) + s.mu(i, j, k))
}

func (s *ViscositySolver) muEdgeYZ(i, j, k int) float64 {
	return 0.25 * (s.mu(i, j-1, k-1) + s.mu(i, j, k-1) + s.mu(i, j-1, k) + s.mu(i, j, k))
}

func clampIdx(x, hi int) int {
	if x < 0 {
		return 0
	}
	if x > hi {
		return hi
	}
	return x
}

func (s *ViscositySolver) getU(i, j, k int) float64 {
	if !s.u.IsIndexInRange(i, j, k) {
		return 0
	}
	return float64(s.u.Get(i, j, k))
}

func (s *ViscositySolver) getV(i, j, k int) float64 {
	if !s.v.IsIndexInRange(i, j, k) {
		return 0
	}
	return float64(s.v.Get(i, j, k))
}

func (s *ViscositySolver) getW(i, j, k int) float64 {
	if !s.w.IsIndexInRange(i, j, k) {
		return 0
	}
	return float64(s.w.Get(i, j, k))
}

func (s *ViscositySolver) vol(a *grid.Array3D[float32], i, j, k int) float64 {
	if !a.IsIndexInRange(i, j, k) {
		return 0
	}
	return float64(a.Get(i, j, k))
}

// residualU evaluates the u-momentum operator at x-face (i,j,k) using the
// current contents of the u/v/w working grids. The stencil is the
// symmetric 2μD form, so ∂v/∂x and ∂w/∂x cross terms couple components.
func (s *ViscositySolver) residualU(i, j, k int, factor float64) float64 {
	acc := s.vol(s.volU, i, j, k) * s.getU(i, j, k)

	acc -= factor * (2 * s.mu(i, j, k) * s.vol(s.volC, i, j, k) * (s.getU(i+1, j, k) - s.getU(i, j, k)))
	acc += factor * (2 * s.mu(i-1, j, k) * s.vol(s.volC, i-1, j, k) * (s.getU(i, j, k) - s.getU(i-1, j, k)))

	acc -= factor * s.muEdgeXY(i, j+1, k) * edgeVolXY(s, i, j+1, k) *
		((s.getU(i, j+1, k) - s.getU(i, j, k)) + (s.getV(i, j+1, k) - s.getV(i-1, j+1, k)))
	acc += factor * s.muEdgeXY(i, j, k) * edgeVolXY(s, i, j, k) *
		((s.getU(i, j, k) - s.getU(i, j-1, k)) + (s.getV(i, j, k) - s.getV(i-1, j, k)))

	acc -= factor * s.muEdgeXZ(i, j, k+1) * edgeVolXZ(s, i, j, k+1) *
		((s.getU(i, j, k+1) - s.getU(i, j, k)) + (s.getW(i, j, k+1) - s.getW(i-1, j, k+1)))
	acc += factor * s.muEdgeXZ(i, j, k) * edgeVolXZ(s, i, j, k) *
		((s.getU(i, j, k) - s.getU(i, j, k-1)) + (s.getW(i, j, k) - s.getW(i-1, j, k)))

	return acc
}

func (s *ViscositySolver) residualV(i, j, k int, factor float64) float64 {
	acc := s.vol(s.volV, i, j, k) * s.getV(i, j, k)

	acc -= factor * (2 * s.mu(i, j, k) * s.vol(s.volC, i, j, k) * (s.getV(i, j+1, k) - s.getV(i, j, k)))
	acc += factor * (2 * s.mu(i, j-1, k) * s.vol(s.volC, i, j-1, k) * (s.getV(i, j, k) - s.getV(i, j-1, k)))

	acc -= factor * s.muEdgeXY(i+1, j, k) * edgeVolXY(s, i+1, j, k) *
		((s.getV(i+1, j, k) - s.getV(i, j, k)) + (s.getU(i+1, j, k) - s.getU(i+1, j-1, k)))
	acc += factor * s.muEdgeXY(i, j, k) * edgeVolXY(s, i, j, k) *
		((s.getV(i, j, k) - s.getV(i-1, j, k)) + (s.getU(i, j, k) - s.getU(i, j-1, k)))

	acc -= factor * s.muEdgeYZ(i, j, k+1) * edgeVolYZ(s, i, j, k+1) *
		((s.getV(i, j, k+1) - s.getV(i, j, k)) + (s.getW(i, j, k+1) - s.getW(i, j-1, k+1)))
	acc += factor * s.muEdgeYZ(i, j, k) * edgeVolYZ(s, i, j, k) *
		((s.getV(i, j, k) - s.getV(i, j, k-1)) + (s.getW(i, j, k) - s.getW(i, j-1, k)))

	return acc
}

func (s *ViscositySolver) residualW(i, j, k int, factor float64) float64 {
	acc := s.vol(s.volW, i, j, k) * s.getW(i, j, k)

	acc -= factor * (2 * s.mu(i, j, k) * s.vol(s.volC, i, j, k) * (s.getW(i, j, k+1) - s.getW(i, j, k)))
	acc += factor * (2 * s.mu(i, j, k-1) * s.vol(s.volC, i, j, k-1) * (s.getW(i, j, k) - s.getW(i, j, k-1)))

	acc -= factor * s.muEdgeXZ(i+1, j, k) * edgeVolXZ(s, i+1, j, k) *
		((s.getW(i+1, j, k) - s.getW(i, j, k)) + (s.getU(i+1, j, k) - s.getU(i+1, j, k-1)))
	acc += factor * s.muEdgeXZ(i, j, k) * edgeVolXZ(s, i, j, k) *
		((s.getW(i, j, k) - s.getW(i-1, j, k)) + (s.getU(i, j, k) - s.getU(i, j, k-1)))

	acc -= factor * s.muEdgeYZ(i, j+1, k) * edgeVolYZ(s, i, j+1, k) *
		((s.getW(i, j+1, k) - s.getW(i, j, k)) + (s.getV(i, j+1, k) - s.getV(i, j+1, k-1)))
	acc += factor * s.muEdgeYZ(i, j, k) * edgeVolYZ(s, i, j, k) *
		((s.getW(i, j, k) - s.getW(i, j-1, k)) + (s.getV(i, j, k) - s.getV(i, j, k-1)))

	return acc
}

// Edge control volumes: averages of the adjacent face volumes. Cheap and
// consistent with the liquid-fraction estimates.
func edgeVolXY(s *ViscositySolver, i, j, k int) float64 {
	return 0.5 * (s.vol(s.volU, i, j-1, k) + s.vol(s.volU, i, j, k))
}

func edgeVolXZ(s *ViscositySolver, i, j, k int) float64 {
	return 0.5 * (s.vol(s.volU, i, j, k-1) + s.vol(s.volU, i, j, k))
}

func edgeVolYZ(s *ViscositySolver, i, j, k int) float64 {
	return 0.5 * (s.vol(s.volV, i, j, k-1) + s.vol(s.volV, i, j, k))
}

// loadVector writes the candidate unknown values into the working grids.
func (s *ViscositySolver) loadVector(x []float64) {
	for n, f := range s.unknowns {
		switch f.axis {
		case 0:
			s.u.Set(f.i, f.j, f.k, float32(x[n]))
		case 1:
			s.v.Set(f.i, f.j, f.k, float32(x[n]))
		default:
			s.w.Set(f.i, f.j, f.k, float32(x[n]))
		}
	}
}

// Solve runs the viscosity solve and writes u* back into the velocity
// field. A zero viscosity field or empty liquid is a no-op success.
func (s *ViscositySolver) Solve() Result {
	if s.p.Viscosity == nil || s.p.Viscosity.MaxAbs() == 0 {
		return Result{Success: true}
	}

	s.buildVolumes()
	field := s.p.Velocity
	s.u = field.U.Clone()
	s.v = field.V.Clone()
	s.w = field.W.Clone()

	s.idxU = grid.NewArray3DFilled[int32](field.ISize+1, field.JSize, field.KSize, -1)
	s.idxV = grid.NewArray3DFilled[int32](field.ISize, field.JSize+1, field.KSize, -1)
	s.idxW = grid.NewArray3DFilled[int32](field.ISize, field.JSize, field.KSize+1, -1)
	s.unknowns = s.unknowns[:0]

	collect := func(axis uint8, vol, _ *grid.Array3D[float32], idx *grid.Array3D[int32]) {
		for k := 0; k < vol.KSize; k++ {
			for j := 0; j < vol.JSize; j++ {
				for i := 0; i < vol.ISize; i++ {
					if vol.Get(i, j, k) > 0 {
						idx.Set(i, j, k, int32(len(s.unknowns)))
						s.unknowns = append(s.unknowns, faceRef{axis: axis, i: i, j: j, k: k})
					}
				}
			}
		}
	}
	collect(0, s.volU, field.U, s.idxU)
	collect(1, s.volV, field.V, s.idxV)
	collect(2, s.volW, field.W, s.idxW)

	n := len(s.unknowns)
	if n == 0 {
		return Result{Success: true}
	}

	dx := s.p.CellWidth
	factor := s.p.DeltaTime / (s.p.Density * dx * dx)

	// RHS: volume-weighted current velocities.
	b := make([]float64, n)
	x := make([]float64, n)
	for i, f := range s.unknowns {
		switch f.axis {
		case 0:
			b[i] = float64(s.volU.Get(f.i, f.j, f.k)) * float64(field.U.Get(f.i, f.j, f.k))
			x[i] = float64(field.U.Get(f.i, f.j, f.k))
		case 1:
			b[i] = float64(s.volV.Get(f.i, f.j, f.k)) * float64(field.V.Get(f.i, f.j, f.k))
			x[i] = float64(field.V.Get(f.i, f.j, f.k))
		default:
			b[i] = float64(s.volW.Get(f.i, f.j, f.k)) * float64(field.W.Get(f.i, f.j, f.k))
			x[i] = float64(field.W.Get(f.i, f.j, f.k))
		}
	}

	// Faces outside the unknown set act as zero-velocity boundary data
	// during operator application, keeping the system symmetric.
	zeroKnown := func(a *grid.Array3D[float32], idx *grid.Array3D[int32]) {
		data := a.Data()
		idxData := idx.Data()
		for i := range data {
			if idxData[i] < 0 {
				data[i] = 0
			}
		}
	}

	applyA := func(xv, out []float64) {
		s.loadVector(xv)
		zeroKnown(s.u, s.idxU)
		zeroKnown(s.v, s.idxV)
		zeroKnown(s.w, s.idxW)
		for i, f := range s.unknowns {
			switch f.axis {
			case 0:
				out[i] = s.residualU(f.i, f.j, f.k, factor)
			case 1:
				out[i] = s.residualV(f.i, f.j, f.k, factor)
			default:
				out[i] = s.residualW(f.i, f.j, f.k, factor)
			}
		}
	}

	// Diagonal estimate for Jacobi scaling.
	diag := make([]float64, n)
	for i, f := range s.unknowns {
		var volFace float64
		switch f.axis {
		case 0:
			volFace = float64(s.volU.Get(f.i, f.j, f.k))
		case 1:
			volFace = float64(s.volV.Get(f.i, f.j, f.k))
		default:
			volFace = float64(s.volW.Get(f.i, f.j, f.k))
		}
		// vol + factor * (sum of stencil magnitudes); a safe lower-order
		// estimate using the local viscosity.
		diag[i] = volFace + factor*8*s.mu(f.i, f.j, f.k)
	}

	precond := func(r, out []float64) {
		for i := range r {
			if diag[i] > 0 {
				out[i] = r[i] / diag[i]
			} else {
				out[i] = r[i]
			}
		}
	}

	result := solvePCG(applyA, precond, b, x,
		s.p.MaxIterations, s.p.Tolerance, s.p.AcceptableTolerance)

	// Write the solution back.
	for i, f := range s.unknowns {
		switch f.axis {
		case 0:
			field.U.Set(f.i, f.j, f.k, float32(x[i]))
		case 1:
			field.V.Set(f.i, f.j, f.k, float32(x[i]))
		default:
			field.W.Set(f.i, f.j, f.k, float32(x[i]))
		}
	}
	return result
}
