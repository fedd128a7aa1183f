package levelset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

func boxLevelSet(t *testing.T) *MeshLevelSet {
	t.Helper()
	ls := NewMeshLevelSet(10, 10, 10, 0.1)
	box := mesh.Box(mesh.NewAABB(vecmath.New(0.3, 0.3, 0.3), 0.4, 0.4, 0.4))
	ls.PushMeshObject(MeshObjectInfo{Friction: 0.5, Velocity: vecmath.New(1, 0, 0)})
	ls.CalculateSignedDistanceField(box, 3)
	return ls
}

func TestMeshLevelSetSigns(t *testing.T) {
	ls := boxLevelSet(t)

	assert.Negative(t, ls.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5)),
		"box center should be inside")
	assert.Positive(t, ls.TrilinearInterpolate(vecmath.New(0.1, 0.1, 0.1)),
		"far corner should be outside")
}

func TestMeshLevelSetDistanceMagnitude(t *testing.T) {
	ls := boxLevelSet(t)
	// A node 0.1 outside the +x face.
	d := ls.TrilinearInterpolate(vecmath.New(0.8, 0.5, 0.5))
	assert.InDelta(t, 0.1, float64(d), 0.03)
}

func TestNegate(t *testing.T) {
	ls := boxLevelSet(t)
	inside := ls.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5))
	ls.Negate()
	assert.InDelta(t, float64(-inside), float64(ls.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5))), 1e-5)
}

func TestCalculateUnion(t *testing.T) {
	a := NewMeshLevelSet(10, 10, 10, 0.1)
	boxA := mesh.Box(mesh.NewAABB(vecmath.New(0.1, 0.1, 0.1), 0.3, 0.3, 0.3))
	a.PushMeshObject(MeshObjectInfo{})
	a.CalculateSignedDistanceField(boxA, 3)

	b := NewMeshLevelSet(10, 10, 10, 0.1)
	boxB := mesh.Box(mesh.NewAABB(vecmath.New(0.6, 0.6, 0.6), 0.3, 0.3, 0.3))
	b.PushMeshObject(MeshObjectInfo{})
	b.CalculateSignedDistanceField(boxB, 3)

	a.CalculateUnion(b)
	assert.Negative(t, a.TrilinearInterpolate(vecmath.New(0.25, 0.25, 0.25)), "first box inside")
	assert.Negative(t, a.TrilinearInterpolate(vecmath.New(0.75, 0.75, 0.75)), "second box inside")
}

func TestClosestMeshObject(t *testing.T) {
	ls := boxLevelSet(t)
	obj := ls.ClosestMeshObject(vecmath.New(0.5, 0.5, 0.5))
	require.NotNil(t, obj)
	assert.Equal(t, float32(0.5), obj.Friction)
}

func TestVelocityData(t *testing.T) {
	ls := NewMeshLevelSet(10, 10, 10, 0.1)
	assert.False(t, ls.IsVelocityDataEnabled())
	ls.EnableVelocityData()

	box := mesh.Box(mesh.NewAABB(vecmath.New(0.3, 0.3, 0.3), 0.4, 0.4, 0.4))
	ls.PushMeshObject(MeshObjectInfo{Velocity: vecmath.New(2, 0, 0)})
	ls.CalculateSignedDistanceField(box, 3)
	ls.NormalizeVelocityData()

	v := ls.SampleSolidVelocity(vecmath.New(0.5, 0.5, 0.5))
	assert.InDelta(t, 2.0, float64(v.X), 1e-5)
}

func TestParticleLevelSetFromSphere(t *testing.T) {
	ls := NewParticleLevelSet(16, 16, 16, 0.1)

	// A dense ball of particles around (0.8, 0.8, 0.8).
	var positions []vecmath.Vec3
	center := vecmath.New(0.8, 0.8, 0.8)
	for x := -0.3; x <= 0.3; x += 0.05 {
		for y := -0.3; y <= 0.3; y += 0.05 {
			for z := -0.3; z <= 0.3; z += 0.05 {
				p := vecmath.New(float32(x), float32(y), float32(z)).Add(center)
				if p.Sub(center).Length() <= 0.3 {
					positions = append(positions, p)
				}
			}
		}
	}
	ls.CalculateSignedDistanceField(positions, 0.06)

	assert.True(t, ls.IsCellFluid(8, 8, 8), "sphere center cell should be fluid")
	assert.False(t, ls.IsCellFluid(1, 1, 1), "far corner should be air")
	assert.NotEmpty(t, ls.SurfaceCells(2))
}

func TestCurvatureOfFlatSurface(t *testing.T) {
	ls := NewParticleLevelSet(16, 16, 16, 0.1)
	// A flat pool: phi = y - 0.8 written directly.
	for k := 0; k < 16; k++ {
		for j := 0; j < 16; j++ {
			for i := 0; i < 16; i++ {
				y := (float32(j) + 0.5) * 0.1
				ls.Phi.Set(i, j, k, y-0.8)
			}
		}
	}
	curvature := ls.CalculateCurvatureGrid(false)
	// Mean curvature of a plane is zero.
	assert.InDelta(t, 0, float64(curvature.Get(8, 8, 8)), 1e-3)
}
