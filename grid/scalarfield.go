package grid

import (
	"math"

	"github.com/pthm-cable/riptide/vecmath"
)

// ScalarField is a float32 Array3D with a cell width and a sample offset,
// giving it world-position interpolation semantics. An offset of zero
// samples at grid nodes; an offset of (dx/2,dx/2,dx/2) samples at cell
// centers.
type ScalarField struct {
	*Array3D[float32]
	DX     float32
	Offset vecmath.Vec3
}

// NewScalarField creates a node-sampled scalar field.
func NewScalarField(isize, jsize, ksize int, dx float32) *ScalarField {
	return &ScalarField{
		Array3D: NewArray3D[float32](isize, jsize, ksize),
		DX:      dx,
	}
}

// NewCellCenteredScalarField creates a field sampled at cell centers.
func NewCellCenteredScalarField(isize, jsize, ksize int, dx float32) *ScalarField {
	f := NewScalarField(isize, jsize, ksize, dx)
	half := 0.5 * dx
	f.Offset = vecmath.Vec3{X: half, Y: half, Z: half}
	return f
}

// SamplePosition returns the world position of sample (i,j,k).
func (f *ScalarField) SamplePosition(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{
		X: float32(i)*f.DX + f.Offset.X,
		Y: float32(j)*f.DX + f.Offset.Y,
		Z: float32(k)*f.DX + f.Offset.Z,
	}
}

// positionToBarycentric locates p in sample space, clamping to the valid
// interpolation range so out-of-range queries return the nearest in-range
// sample.
func (f *ScalarField) positionToBarycentric(p vecmath.Vec3) (i, j, k int, tx, ty, tz float32) {
	inv := 1.0 / f.DX
	gx := (p.X - f.Offset.X) * inv
	gy := (p.Y - f.Offset.Y) * inv
	gz := (p.Z - f.Offset.Z) * inv

	gx = vecmath.Clamp(gx, 0, float32(f.ISize-1))
	gy = vecmath.Clamp(gy, 0, float32(f.JSize-1))
	gz = vecmath.Clamp(gz, 0, float32(f.KSize-1))

	i = int(gx)
	j = int(gy)
	k = int(gz)
	if i > f.ISize-2 {
		i = f.ISize - 2
	}
	if j > f.JSize-2 {
		j = f.JSize - 2
	}
	if k > f.KSize-2 {
		k = f.KSize - 2
	}
	if i < 0 {
		i = 0
	}
	if j < 0 {
		j = 0
	}
	if k < 0 {
		k = 0
	}
	tx = vecmath.Clamp(gx-float32(i), 0, 1)
	ty = vecmath.Clamp(gy-float32(j), 0, 1)
	tz = vecmath.Clamp(gz-float32(k), 0, 1)
	return
}

// TrilinearInterpolate samples the field at world position p.
func (f *ScalarField) TrilinearInterpolate(p vecmath.Vec3) float32 {
	if f.ISize == 1 || f.JSize == 1 || f.KSize == 1 {
		// Degenerate axis: fall back to nearest sample.
		return f.nearestSample(p)
	}
	i, j, k, tx, ty, tz := f.positionToBarycentric(p)

	c000 := f.Get(i, j, k)
	c100 := f.Get(i+1, j, k)
	c010 := f.Get(i, j+1, k)
	c110 := f.Get(i+1, j+1, k)
	c001 := f.Get(i, j, k+1)
	c101 := f.Get(i+1, j, k+1)
	c011 := f.Get(i, j+1, k+1)
	c111 := f.Get(i+1, j+1, k+1)

	return TrilinearInterpolateValues(
		c000, c100, c010, c110, c001, c101, c011, c111, tx, ty, tz)
}

func (f *ScalarField) nearestSample(p vecmath.Vec3) float32 {
	inv := 1.0 / f.DX
	i := int(vecmath.Clamp((p.X-f.Offset.X)*inv+0.5, 0, float32(f.ISize-1)))
	j := int(vecmath.Clamp((p.Y-f.Offset.Y)*inv+0.5, 0, float32(f.JSize-1)))
	k := int(vecmath.Clamp((p.Z-f.Offset.Z)*inv+0.5, 0, float32(f.KSize-1)))
	return f.Get(i, j, k)
}

// TrilinearInterpolateGradient samples the spatial gradient at p by central
// differencing the interpolant.
func (f *ScalarField) TrilinearInterpolateGradient(p vecmath.Vec3) vecmath.Vec3 {
	h := 0.5 * f.DX
	inv2h := 1.0 / (2 * h)
	return vecmath.Vec3{
		X: (f.TrilinearInterpolate(vecmath.Vec3{X: p.X + h, Y: p.Y, Z: p.Z}) -
			f.TrilinearInterpolate(vecmath.Vec3{X: p.X - h, Y: p.Y, Z: p.Z})) * inv2h,
		Y: (f.TrilinearInterpolate(vecmath.Vec3{X: p.X, Y: p.Y + h, Z: p.Z}) -
			f.TrilinearInterpolate(vecmath.Vec3{X: p.X, Y: p.Y - h, Z: p.Z})) * inv2h,
		Z: (f.TrilinearInterpolate(vecmath.Vec3{X: p.X, Y: p.Y, Z: p.Z + h}) -
			f.TrilinearInterpolate(vecmath.Vec3{X: p.X, Y: p.Y, Z: p.Z - h})) * inv2h,
	}
}

// TrilinearInterpolateValues blends the eight corner values with the
// barycentric weights (tx,ty,tz).
func TrilinearInterpolateValues(
	c000, c100, c010, c110, c001, c101, c011, c111, tx, ty, tz float32) float32 {

	c00 := c000*(1-tx) + c100*tx
	c10 := c010*(1-tx) + c110*tx
	c01 := c001*(1-tx) + c101*tx
	c11 := c011*(1-tx) + c111*tx

	c0 := c00*(1-ty) + c10*ty
	c1 := c01*(1-ty) + c11*ty

	return c0*(1-tz) + c1*tz
}

// TrilinearWeights returns the eight corner weights for (tx,ty,tz) in the
// order (000,100,010,110,001,101,011,111).
func TrilinearWeights(tx, ty, tz float32) [8]float32 {
	return [8]float32{
		(1 - tx) * (1 - ty) * (1 - tz),
		tx * (1 - ty) * (1 - tz),
		(1 - tx) * ty * (1 - tz),
		tx * ty * (1 - tz),
		(1 - tx) * (1 - ty) * tz,
		tx * (1 - ty) * tz,
		(1 - tx) * ty * tz,
		tx * ty * tz,
	}
}

// TrilinearWeightGradients returns the spatial gradients of the eight
// trilinear basis functions, in the same corner order as TrilinearWeights.
// Used by the APIC affine reconstruction.
func TrilinearWeightGradients(tx, ty, tz, dx float32) [8]vecmath.Vec3 {
	inv := 1.0 / dx
	return [8]vecmath.Vec3{
		{X: -(1 - ty) * (1 - tz) * inv, Y: -(1 - tx) * (1 - tz) * inv, Z: -(1 - tx) * (1 - ty) * inv},
		{X: (1 - ty) * (1 - tz) * inv, Y: -tx * (1 - tz) * inv, Z: -tx * (1 - ty) * inv},
		{X: -ty * (1 - tz) * inv, Y: (1 - tx) * (1 - tz) * inv, Z: -(1 - tx) * ty * inv},
		{X: ty * (1 - tz) * inv, Y: tx * (1 - tz) * inv, Z: -tx * ty * inv},
		{X: -(1 - ty) * tz * inv, Y: -(1 - tx) * tz * inv, Z: (1 - tx) * (1 - ty) * inv},
		{X: (1 - ty) * tz * inv, Y: -tx * tz * inv, Z: tx * (1 - ty) * inv},
		{X: -ty * tz * inv, Y: (1 - tx) * tz * inv, Z: (1 - tx) * ty * inv},
		{X: ty * tz * inv, Y: tx * tz * inv, Z: tx * ty * inv},
	}
}

// CoarseScalarField builds a half-resolution copy of src by averaging
// 2x2x2 sample blocks. Odd trailing samples clamp to the edge.
func CoarseScalarField(src *ScalarField) *ScalarField {
	isize := (src.ISize + 1) / 2
	jsize := (src.JSize + 1) / 2
	ksize := (src.KSize + 1) / 2
	dst := NewScalarField(isize, jsize, ksize, 2*src.DX)
	dst.Offset = src.Offset

	clampGet := func(i, j, k int) float32 {
		if i >= src.ISize {
			i = src.ISize - 1
		}
		if j >= src.JSize {
			j = src.JSize - 1
		}
		if k >= src.KSize {
			k = src.KSize - 1
		}
		return src.Get(i, j, k)
	}

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				sum := float32(0)
				for dk := 0; dk < 2; dk++ {
					for dj := 0; dj < 2; dj++ {
						for di := 0; di < 2; di++ {
							sum += clampGet(2*i+di, 2*j+dj, 2*k+dk)
						}
					}
				}
				dst.Set(i, j, k, sum/8)
			}
		}
	}
	return dst
}

// MaxAbs returns the largest absolute sample value.
func (f *ScalarField) MaxAbs() float32 {
	m := float32(0)
	for _, v := range f.Data() {
		av := float32(math.Abs(float64(v)))
		if av > m {
			m = av
		}
	}
	return m
}
