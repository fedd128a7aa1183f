package grid

import "github.com/pthm-cable/riptide/vecmath"

// WeightGrid holds the fractional fluid weights derived from the solid
// level set: per-face weights in [0,1] (1 = fully open, 0 = fully solid)
// and a per-cell center weight.
type WeightGrid struct {
	U      *Array3D[float32]
	V      *Array3D[float32]
	W      *Array3D[float32]
	Center *Array3D[float32]
}

// NewWeightGrid creates a zeroed weight grid for an isize×jsize×ksize cell
// grid.
func NewWeightGrid(isize, jsize, ksize int) *WeightGrid {
	return &WeightGrid{
		U:      NewArray3D[float32](isize+1, jsize, ksize),
		V:      NewArray3D[float32](isize, jsize+1, ksize),
		W:      NewArray3D[float32](isize, jsize, ksize+1),
		Center: NewArray3D[float32](isize, jsize, ksize),
	}
}

// fractionInside1D returns the fraction of the segment between two signed
// distance samples that is inside (negative).
func fractionInside1D(phiLeft, phiRight float32) float32 {
	if phiLeft < 0 && phiRight < 0 {
		return 1
	}
	if phiLeft < 0 && phiRight >= 0 {
		return phiLeft / (phiLeft - phiRight)
	}
	if phiLeft >= 0 && phiRight < 0 {
		return phiRight / (phiRight - phiLeft)
	}
	return 0
}

// FractionInside2D estimates the inside-area fraction of a face from its
// four corner signed distances (bl, br, tl, tr), using the marching-squares
// case decomposition.
func FractionInside2D(bl, br, tl, tr float32) float32 {
	insideCount := 0
	if bl < 0 {
		insideCount++
	}
	if br < 0 {
		insideCount++
	}
	if tl < 0 {
		insideCount++
	}
	if tr < 0 {
		insideCount++
	}

	switch insideCount {
	case 4:
		return 1
	case 0:
		return 0
	case 3:
		// Rotate so the positive corner is tr.
		for tr < 0 {
			bl, br, tr, tl = br, tr, tl, bl
		}
		sideR := fractionInside1D(br, tr)
		sideT := fractionInside1D(tl, tr)
		return 1 - 0.5*(1-sideR)*(1-sideT)
	case 1:
		// Rotate so the negative corner is bl.
		for bl >= 0 {
			bl, br, tr, tl = br, tr, tl, bl
		}
		sideB := fractionInside1D(bl, br)
		sideL := fractionInside1D(bl, tl)
		return 0.5 * sideB * sideL
	default: // 2
		if bl < 0 && tr < 0 && br >= 0 && tl >= 0 ||
			br < 0 && tl < 0 && bl >= 0 && tr >= 0 {
			// Diagonal case: resolve with the center average.
			center := 0.25 * (bl + br + tl + tr)
			if center < 0 {
				return 1 - 0.25*((1-fractionInside1D(bl, br))*(1-fractionInside1D(bl, tl))+
					(1-fractionInside1D(tr, tl))*(1-fractionInside1D(tr, br)))
			}
			return 0.25 * (fractionInside1D(bl, br)*fractionInside1D(bl, tl) +
				fractionInside1D(tr, tl)*fractionInside1D(tr, br))
		}
		if bl < 0 && br < 0 {
			return 0.5 * (fractionInside1D(bl, tl) + fractionInside1D(br, tr))
		}
		if tl < 0 && tr < 0 {
			return 0.5 * (fractionInside1D(tl, bl) + fractionInside1D(tr, br))
		}
		if bl < 0 && tl < 0 {
			return 0.5 * (fractionInside1D(bl, br) + fractionInside1D(tl, tr))
		}
		// br and tr inside.
		return 0.5 * (fractionInside1D(br, bl) + fractionInside1D(tr, tl))
	}
}

// SolidSampler supplies solid signed distances at grid nodes for weight
// computation. Implemented by levelset.MeshLevelSet.
type SolidSampler interface {
	// NodePhi returns the solid signed distance at grid node (i,j,k),
	// nodes being the (isize+1)×(jsize+1)×(ksize+1) cell corners.
	NodePhi(i, j, k int) float32
}

// Compute fills the weight grid from node-sampled solid distances on a
// grid of cell width dx. Each face weight is 1 minus the solid area
// fraction of the face, clamped to [0,1]; the center weight estimates
// the open fraction of the cell from its mean corner distance.
func (wg *WeightGrid) Compute(solid SolidSampler, dx float32) {
	isize := wg.Center.ISize
	jsize := wg.Center.JSize
	ksize := wg.Center.KSize

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize+1; i++ {
				frac := FractionInside2D(
					solid.NodePhi(i, j, k), solid.NodePhi(i, j+1, k),
					solid.NodePhi(i, j, k+1), solid.NodePhi(i, j+1, k+1))
				wg.U.Set(i, j, k, vecmath.Clamp(1-frac, 0, 1))
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize+1; j++ {
			for i := 0; i < isize; i++ {
				frac := FractionInside2D(
					solid.NodePhi(i, j, k), solid.NodePhi(i+1, j, k),
					solid.NodePhi(i, j, k+1), solid.NodePhi(i+1, j, k+1))
				wg.V.Set(i, j, k, vecmath.Clamp(1-frac, 0, 1))
			}
		}
	}
	for k := 0; k < ksize+1; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				frac := FractionInside2D(
					solid.NodePhi(i, j, k), solid.NodePhi(i+1, j, k),
					solid.NodePhi(i, j+1, k), solid.NodePhi(i+1, j+1, k))
				wg.W.Set(i, j, k, vecmath.Clamp(1-frac, 0, 1))
			}
		}
	}
	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				sum := float32(0)
				inside := 0
				for dk := 0; dk < 2; dk++ {
					for dj := 0; dj < 2; dj++ {
						for di := 0; di < 2; di++ {
							phi := solid.NodePhi(i+di, j+dj, k+dk)
							sum += phi
							if phi < 0 {
								inside++
							}
						}
					}
				}
				switch {
				case inside == 8:
					wg.Center.Set(i, j, k, 0)
				case inside == 0:
					wg.Center.Set(i, j, k, 1)
				default:
					// Partial cell: approximate from the mean corner phi.
					avg := sum / 8
					frac := vecmath.Clamp(0.5-avg/(2*dx), 0, 1)
					wg.Center.Set(i, j, k, 1-frac)
				}
			}
		}
	}
}
