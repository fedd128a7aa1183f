// Package scene manages the solid obstacles, fluid sources, and force
// fields the simulation interacts with. The simulator holds handles into
// the registries here; object meshes are owned by the caller.
package scene

import (
	"github.com/pthm-cable/riptide/levelset"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

// MeshObject is a solid obstacle. Animated objects update their mesh
// every frame; static objects contribute to the cached static solid SDF.
type MeshObject struct {
	Enabled  bool
	Animated bool
	Inversed bool

	Friction             float32 // [0,1]
	WhitewaterInfluence  float32
	DustEmissionStrength float32
	SheetingStrength     float32
	Priority             int

	ObjectVelocity vecmath.Vec3

	current  *mesh.TriangleMesh
	previous *mesh.TriangleMesh

	stateChanged bool
}

// NewMeshObject wraps a mesh as a static obstacle with default material
// parameters.
func NewMeshObject(m *mesh.TriangleMesh) *MeshObject {
	return &MeshObject{
		Enabled:             true,
		Friction:            0,
		WhitewaterInfluence: 1,
		SheetingStrength:    1,
		current:             m,
		previous:            m,
		stateChanged:        true,
	}
}

// UpdateMeshStatic replaces the mesh of a static obstacle and flags the
// state change so the cached solid SDF is invalidated.
func (o *MeshObject) UpdateMeshStatic(m *mesh.TriangleMesh) {
	o.current = m
	o.previous = m
	o.stateChanged = true
}

// UpdateMeshAnimated sets the meshes bracketing the current frame.
// Vertex counts must match for interpolation; otherwise the current mesh
// is used for all frame fractions.
func (o *MeshObject) UpdateMeshAnimated(previous, current *mesh.TriangleMesh) {
	o.previous = previous
	o.current = current
	o.Animated = true
	o.stateChanged = true
}

// IsStateChanged reports whether the object changed since the last
// ClearStateChange.
func (o *MeshObject) IsStateChanged() bool {
	return o.stateChanged
}

// ClearStateChange acknowledges the pending state change.
func (o *MeshObject) ClearStateChange() {
	o.stateChanged = false
}

// MeshAtFrameProgress returns the object's mesh at frame fraction
// t ∈ [0,1], interpolating vertices when the bracketing meshes share
// topology.
func (o *MeshObject) MeshAtFrameProgress(t float32) *mesh.TriangleMesh {
	if !o.Animated || o.previous == nil || o.current == nil ||
		len(o.previous.Vertices) != len(o.current.Vertices) {
		return o.current
	}
	out := o.current.Clone()
	for i := range out.Vertices {
		out.Vertices[i] = o.previous.Vertices[i].Lerp(o.current.Vertices[i], t)
	}
	return out
}

// Info returns the material parameters recorded on the solid level set
// for nearest-object lookups.
func (o *MeshObject) Info() levelset.MeshObjectInfo {
	return levelset.MeshObjectInfo{
		Friction:             o.Friction,
		WhitewaterInfluence:  o.WhitewaterInfluence,
		DustEmissionStrength: o.DustEmissionStrength,
		SheetingStrength:     o.SheetingStrength,
		Velocity:             o.ObjectVelocity,
	}
}

// RasterizeLevelSet pushes the object onto ls and computes its signed
// distance contribution at frame fraction t.
func (o *MeshObject) RasterizeLevelSet(ls *levelset.MeshLevelSet, band int, t float32) {
	ls.PushMeshObject(o.Info())
	ls.CalculateSignedDistanceField(o.MeshAtFrameProgress(t), band)
}
