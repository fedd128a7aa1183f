package levelset

import (
	"math"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/vecmath"
)

// ParticleLevelSet is the cell-centered liquid signed distance field
// computed from marker particle positions as a union of spheres. Negative
// inside the liquid.
type ParticleLevelSet struct {
	ISize, JSize, KSize int
	DX                  float32

	Phi *grid.ScalarField
}

// NewParticleLevelSet creates a field initialized to all-air.
func NewParticleLevelSet(isize, jsize, ksize int, dx float32) *ParticleLevelSet {
	ls := &ParticleLevelSet{
		ISize: isize, JSize: jsize, KSize: ksize, DX: dx,
		Phi: grid.NewCellCenteredScalarField(isize, jsize, ksize, dx),
	}
	ls.Phi.Fill(ls.maxDistance())
	return ls
}

func (ls *ParticleLevelSet) maxDistance() float32 {
	return 3.0 * ls.DX
}

// CalculateSignedDistanceField rebuilds the field from particle positions
// with the given particle radius. Cells beyond the narrow band keep the
// band-limit air distance.
func (ls *ParticleLevelSet) CalculateSignedDistanceField(positions []vecmath.Vec3, radius float32) {
	ls.Phi.Fill(ls.maxDistance())

	// Each particle influences cells within radius + band margin.
	reach := radius + ls.DX
	cells := int(reach/ls.DX) + 1

	for _, p := range positions {
		ci := int(p.X / ls.DX)
		cj := int(p.Y / ls.DX)
		ck := int(p.Z / ls.DX)
		for k := ck - cells; k <= ck+cells; k++ {
			for j := cj - cells; j <= cj+cells; j++ {
				for i := ci - cells; i <= ci+cells; i++ {
					if !ls.Phi.IsIndexInRange(i, j, k) {
						continue
					}
					center := ls.Phi.SamplePosition(i, j, k)
					d := center.Dist(p) - radius
					if d < ls.Phi.Get(i, j, k) {
						ls.Phi.Set(i, j, k, d)
					}
				}
			}
		}
	}
}

// Get returns the signed distance at cell center (i,j,k).
func (ls *ParticleLevelSet) Get(i, j, k int) float32 {
	return ls.Phi.Get(i, j, k)
}

// TrilinearInterpolate samples the field at world position p.
func (ls *ParticleLevelSet) TrilinearInterpolate(p vecmath.Vec3) float32 {
	return ls.Phi.TrilinearInterpolate(p)
}

// TrilinearInterpolateGradient samples the gradient at p.
func (ls *ParticleLevelSet) TrilinearInterpolateGradient(p vecmath.Vec3) vecmath.Vec3 {
	return ls.Phi.TrilinearInterpolateGradient(p)
}

// IsCellFluid reports whether cell (i,j,k) is liquid.
func (ls *ParticleLevelSet) IsCellFluid(i, j, k int) bool {
	return ls.Phi.Get(i, j, k) < 0
}

// SurfaceCells returns the cells whose distance magnitude is within
// band·dx of the interface.
func (ls *ParticleLevelSet) SurfaceCells(band float32) []grid.Index {
	limit := band * ls.DX
	var out []grid.Index
	for k := 0; k < ls.KSize; k++ {
		for j := 0; j < ls.JSize; j++ {
			for i := 0; i < ls.ISize; i++ {
				if float32(math.Abs(float64(ls.Phi.Get(i, j, k)))) < limit {
					out = append(out, grid.Index{I: i, J: j, K: k})
				}
			}
		}
	}
	return out
}

// CalculateCurvatureGrid computes the cell-centered mean curvature
// κ = ∇·(∇φ/|∇φ|) by central differences, optionally pre-smoothing the
// distance field with one box-kernel pass. Values are clamped to ±1/dx,
// the finest curvature the grid can represent.
func (ls *ParticleLevelSet) CalculateCurvatureGrid(smooth bool) *grid.ScalarField {
	src := ls.Phi
	if smooth {
		src = smoothScalarField(ls.Phi)
	}

	out := grid.NewCellCenteredScalarField(ls.ISize, ls.JSize, ls.KSize, ls.DX)
	limit := 1.0 / ls.DX

	get := func(i, j, k int) float32 {
		i = clampI(i, 0, ls.ISize-1)
		j = clampI(j, 0, ls.JSize-1)
		k = clampI(k, 0, ls.KSize-1)
		return src.Get(i, j, k)
	}

	dx := float64(ls.DX)
	for k := 0; k < ls.KSize; k++ {
		for j := 0; j < ls.JSize; j++ {
			for i := 0; i < ls.ISize; i++ {
				px := float64(get(i+1, j, k)-get(i-1, j, k)) / (2 * dx)
				py := float64(get(i, j+1, k)-get(i, j-1, k)) / (2 * dx)
				pz := float64(get(i, j, k+1)-get(i, j, k-1)) / (2 * dx)

				pxx := float64(get(i+1, j, k)-2*get(i, j, k)+get(i-1, j, k)) / (dx * dx)
				pyy := float64(get(i, j+1, k)-2*get(i, j, k)+get(i, j-1, k)) / (dx * dx)
				pzz := float64(get(i, j, k+1)-2*get(i, j, k)+get(i, j, k-1)) / (dx * dx)

				pxy := float64(get(i+1, j+1, k)-get(i+1, j-1, k)-get(i-1, j+1, k)+get(i-1, j-1, k)) / (4 * dx * dx)
				pxz := float64(get(i+1, j, k+1)-get(i+1, j, k-1)-get(i-1, j, k+1)+get(i-1, j, k-1)) / (4 * dx * dx)
				pyz := float64(get(i, j+1, k+1)-get(i, j+1, k-1)-get(i, j-1, k+1)+get(i, j-1, k-1)) / (4 * dx * dx)

				gradSq := px*px + py*py + pz*pz
				if gradSq < 1e-12 {
					out.Set(i, j, k, 0)
					continue
				}
				gradMag := math.Sqrt(gradSq)

				kappa := (pxx*(py*py+pz*pz) + pyy*(px*px+pz*pz) + pzz*(px*px+py*py) -
					2*(pxy*px*py+pxz*px*pz+pyz*py*pz)) / (gradSq * gradMag)

				out.Set(i, j, k, vecmath.Clamp(float32(kappa), -float32(limit), float32(limit)))
			}
		}
	}
	return out
}

// smoothScalarField applies one 3×3×3 box blur pass.
func smoothScalarField(src *grid.ScalarField) *grid.ScalarField {
	dst := grid.NewScalarField(src.ISize, src.JSize, src.KSize, src.DX)
	dst.Offset = src.Offset
	for k := 0; k < src.KSize; k++ {
		for j := 0; j < src.JSize; j++ {
			for i := 0; i < src.ISize; i++ {
				sum := float32(0)
				count := 0
				for dk := -1; dk <= 1; dk++ {
					for dj := -1; dj <= 1; dj++ {
						for di := -1; di <= 1; di++ {
							ni, nj, nk := i+di, j+dj, k+dk
							if src.IsIndexInRange(ni, nj, nk) {
								sum += src.Get(ni, nj, nk)
								count++
							}
						}
					}
				}
				dst.Set(i, j, k, sum/float32(count))
			}
		}
	}
	return dst
}
