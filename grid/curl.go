package grid

import "github.com/pthm-cable/riptide/vecmath"

// VectorField is a cell-centered Vec3 array with interpolation support.
type VectorField struct {
	*Array3D[vecmath.Vec3]
	DX float32
}

// NewVectorField creates a zeroed cell-centered vector field.
func NewVectorField(isize, jsize, ksize int, dx float32) *VectorField {
	return &VectorField{
		Array3D: NewArray3D[vecmath.Vec3](isize, jsize, ksize),
		DX:      dx,
	}
}

// TrilinearInterpolate samples the field at world position p with
// cell-center semantics.
func (f *VectorField) TrilinearInterpolate(p vecmath.Vec3) vecmath.Vec3 {
	inv := 1.0 / f.DX
	gx := vecmath.Clamp(p.X*inv-0.5, 0, float32(f.ISize-1))
	gy := vecmath.Clamp(p.Y*inv-0.5, 0, float32(f.JSize-1))
	gz := vecmath.Clamp(p.Z*inv-0.5, 0, float32(f.KSize-1))

	i, j, k := int(gx), int(gy), int(gz)
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
	tx := vecmath.Clamp(gx-float32(i), 0, 1)
	ty := vecmath.Clamp(gy-float32(j), 0, 1)
	tz := vecmath.Clamp(gz-float32(k), 0, 1)
	w := TrilinearWeights(tx, ty, tz)

	corners := [8]vecmath.Vec3{
		f.Get(i, j, k), f.Get(i+1, j, k), f.Get(i, j+1, k), f.Get(i+1, j+1, k),
		f.Get(i, j, k+1), f.Get(i+1, j, k+1), f.Get(i, j+1, k+1), f.Get(i+1, j+1, k+1),
	}
	var out vecmath.Vec3
	for n := 0; n < 8; n++ {
		out = out.Add(corners[n].Scale(w[n]))
	}
	return out
}

// GenerateCurlAtCellCenter computes the curl of a MAC velocity field at
// every cell center using central differences of the cell-centered
// velocity averages. Used for vorticity attributes and whitewater
// turbulence.
func GenerateCurlAtCellCenter(m *MACVelocityField) *VectorField {
	out := NewVectorField(m.ISize, m.JSize, m.KSize, m.DX)
	inv2dx := 1.0 / (2 * m.DX)

	vc := func(i, j, k int) vecmath.Vec3 {
		if i < 0 {
			i = 0
		}
		if j < 0 {
			j = 0
		}
		if k < 0 {
			k = 0
		}
		if i > m.ISize-1 {
			i = m.ISize - 1
		}
		if j > m.JSize-1 {
			j = m.JSize - 1
		}
		if k > m.KSize-1 {
			k = m.KSize - 1
		}
		return m.EvaluateVelocityAtCellCenter(i, j, k)
	}

	for k := 0; k < m.KSize; k++ {
		for j := 0; j < m.JSize; j++ {
			for i := 0; i < m.ISize; i++ {
				dwdy := (vc(i, j+1, k).Z - vc(i, j-1, k).Z) * inv2dx
				dvdz := (vc(i, j, k+1).Y - vc(i, j, k-1).Y) * inv2dx
				dudz := (vc(i, j, k+1).X - vc(i, j, k-1).X) * inv2dx
				dwdx := (vc(i+1, j, k).Z - vc(i-1, j, k).Z) * inv2dx
				dvdx := (vc(i+1, j, k).Y - vc(i-1, j, k).Y) * inv2dx
				dudy := (vc(i, j+1, k).X - vc(i, j-1, k).X) * inv2dx

				out.Set(i, j, k, vecmath.Vec3{
					X: dwdy - dvdz,
					Y: dudz - dwdx,
					Z: dvdx - dudy,
				})
			}
		}
	}
	return out
}
