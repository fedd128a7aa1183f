package grid

import (
	"math"

	"github.com/pthm-cable/riptide/vecmath"
)

// MACVelocityField is a staggered velocity grid. U samples live on x-faces
// (isize+1, jsize, ksize), V on y-faces, W on z-faces. Pressure samples,
// when present, live at cell centers.
type MACVelocityField struct {
	ISize, JSize, KSize int
	DX                  float32

	U *Array3D[float32]
	V *Array3D[float32]
	W *Array3D[float32]
}

// NewMACVelocityField creates a zeroed field for an isize×jsize×ksize cell
// grid with cell width dx.
func NewMACVelocityField(isize, jsize, ksize int, dx float32) *MACVelocityField {
	return &MACVelocityField{
		ISize: isize, JSize: jsize, KSize: ksize, DX: dx,
		U: NewArray3D[float32](isize+1, jsize, ksize),
		V: NewArray3D[float32](isize, jsize+1, ksize),
		W: NewArray3D[float32](isize, jsize, ksize+1),
	}
}

// Clear zeroes all three face arrays.
func (m *MACVelocityField) Clear() {
	m.U.Fill(0)
	m.V.Fill(0)
	m.W.Fill(0)
}

// CopyFrom copies all face values from src. Dimensions must match.
func (m *MACVelocityField) CopyFrom(src *MACVelocityField) {
	m.U.CopyFrom(src.U)
	m.V.CopyFrom(src.V)
	m.W.CopyFrom(src.W)
}

// Clone returns a deep copy of the field.
func (m *MACVelocityField) Clone() *MACVelocityField {
	c := NewMACVelocityField(m.ISize, m.JSize, m.KSize, m.DX)
	c.CopyFrom(m)
	return c
}

// FaceUPosition returns the world position of U sample (i,j,k).
func (m *MACVelocityField) FaceUPosition(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{
		X: float32(i) * m.DX,
		Y: (float32(j) + 0.5) * m.DX,
		Z: (float32(k) + 0.5) * m.DX,
	}
}

// FaceVPosition returns the world position of V sample (i,j,k).
func (m *MACVelocityField) FaceVPosition(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{
		X: (float32(i) + 0.5) * m.DX,
		Y: float32(j) * m.DX,
		Z: (float32(k) + 0.5) * m.DX,
	}
}

// FaceWPosition returns the world position of W sample (i,j,k).
func (m *MACVelocityField) FaceWPosition(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{
		X: (float32(i) + 0.5) * m.DX,
		Y: (float32(j) + 0.5) * m.DX,
		Z: float32(k) * m.DX,
	}
}

// interpolateComponent samples one staggered component at world position p.
// offx/offy/offz give the component's sample offset in cells.
func interpolateComponent(a *Array3D[float32], dx, offx, offy, offz float32, p vecmath.Vec3) float32 {
	inv := 1.0 / dx
	gx := p.X*inv - offx
	gy := p.Y*inv - offy
	gz := p.Z*inv - offz

	gx = vecmath.Clamp(gx, 0, float32(a.ISize-1))
	gy = vecmath.Clamp(gy, 0, float32(a.JSize-1))
	gz = vecmath.Clamp(gz, 0, float32(a.KSize-1))

	i := int(gx)
	j := int(gy)
	k := int(gz)
	if i > a.ISize-2 {
		i = a.ISize - 2
	}
	if j > a.JSize-2 {
		j = a.JSize - 2
	}
	if k > a.KSize-2 {
		k = a.KSize - 2
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

	return TrilinearInterpolateValues(
		a.Get(i, j, k), a.Get(i+1, j, k), a.Get(i, j+1, k), a.Get(i+1, j+1, k),
		a.Get(i, j, k+1), a.Get(i+1, j, k+1), a.Get(i, j+1, k+1), a.Get(i+1, j+1, k+1),
		tx, ty, tz)
}

// EvaluateVelocityAtPosition returns the trilinear velocity at world
// position p. Out-of-range positions clamp to the nearest samples.
func (m *MACVelocityField) EvaluateVelocityAtPosition(p vecmath.Vec3) vecmath.Vec3 {
	return vecmath.Vec3{
		X: interpolateComponent(m.U, m.DX, 0.0, 0.5, 0.5, p),
		Y: interpolateComponent(m.V, m.DX, 0.5, 0.0, 0.5, p),
		Z: interpolateComponent(m.W, m.DX, 0.5, 0.5, 0.0, p),
	}
}

// EvaluateVelocityAtCellCenter averages opposing faces of cell (i,j,k).
func (m *MACVelocityField) EvaluateVelocityAtCellCenter(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{
		X: 0.5 * (m.U.Get(i, j, k) + m.U.Get(i+1, j, k)),
		Y: 0.5 * (m.V.Get(i, j, k) + m.V.Get(i, j+1, k)),
		Z: 0.5 * (m.W.Get(i, j, k) + m.W.Get(i, j, k+1)),
	}
}

// EvaluateMaxVelocityMagnitude returns an upper bound on the velocity
// magnitude from the per-component face maxima.
func (m *MACVelocityField) EvaluateMaxVelocityMagnitude() float32 {
	maxAbs := func(a *Array3D[float32]) float64 {
		mv := 0.0
		for _, v := range a.Data() {
			av := math.Abs(float64(v))
			if av > mv {
				mv = av
			}
		}
		return mv
	}
	mu := maxAbs(m.U)
	mv := maxAbs(m.V)
	mw := maxAbs(m.W)
	return float32(math.Sqrt(mu*mu + mv*mv + mw*mw))
}

// ValidVelocityGrid marks which face samples hold fresh data after a
// transfer. Faces left invalid are filled by extrapolation.
type ValidVelocityGrid struct {
	ValidU *Array3D[bool]
	ValidV *Array3D[bool]
	ValidW *Array3D[bool]
}

// NewValidVelocityGrid creates an all-invalid mask matching an
// isize×jsize×ksize MAC field.
func NewValidVelocityGrid(isize, jsize, ksize int) *ValidVelocityGrid {
	return &ValidVelocityGrid{
		ValidU: NewArray3D[bool](isize+1, jsize, ksize),
		ValidV: NewArray3D[bool](isize, jsize+1, ksize),
		ValidW: NewArray3D[bool](isize, jsize, ksize+1),
	}
}

// Reset marks every face invalid.
func (g *ValidVelocityGrid) Reset() {
	g.ValidU.Fill(false)
	g.ValidV.Fill(false)
	g.ValidW.Fill(false)
}

// CopyFrom copies mask state from src.
func (g *ValidVelocityGrid) CopyFrom(src *ValidVelocityGrid) {
	g.ValidU.CopyFrom(src.ValidU)
	g.ValidV.CopyFrom(src.ValidV)
	g.ValidW.CopyFrom(src.ValidW)
}
