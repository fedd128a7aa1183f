// Package levelset implements the signed distance fields used by the
// simulation: mesh-sourced solid SDFs with sampled solid velocities, and
// the particle-sourced liquid SDF with its curvature grid.
package levelset

import (
	"sort"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

// MeshObjectInfo carries the per-object material parameters needed at
// lookup time by friction, whitewater, and sheeting queries.
type MeshObjectInfo struct {
	Friction             float32
	WhitewaterInfluence  float32
	DustEmissionStrength float32
	SheetingStrength     float32
	Velocity             vecmath.Vec3
}

// MeshLevelSet is a node-sampled signed distance field computed from
// triangle meshes. Nodes are cell corners: (isize+1)×(jsize+1)×(ksize+1)
// samples for an isize×jsize×ksize cell grid. Negative is inside the
// represented solid.
type MeshLevelSet struct {
	ISize, JSize, KSize int // cell dimensions
	DX                  float32

	Phi *grid.ScalarField

	// closestObject holds, per node, the index into meshObjects of the
	// mesh whose triangle produced the node's distance; -1 if none.
	closestObject *grid.Array3D[int32]
	meshObjects   []MeshObjectInfo

	velocityEnabled bool
	velocity        *grid.Array3D[vecmath.Vec3] // node-sampled solid velocity
	velocityWeight  *grid.Array3D[float32]
}

// NewMeshLevelSet creates a level set for an isize×jsize×ksize cell grid,
// initialized to a large positive distance.
func NewMeshLevelSet(isize, jsize, ksize int, dx float32) *MeshLevelSet {
	ls := &MeshLevelSet{
		ISize: isize, JSize: jsize, KSize: ksize, DX: dx,
		Phi:           grid.NewScalarField(isize+1, jsize+1, ksize+1, dx),
		closestObject: grid.NewArray3DFilled[int32](isize+1, jsize+1, ksize+1, -1),
	}
	ls.Phi.Fill(ls.maxDistance())
	return ls
}

func (ls *MeshLevelSet) maxDistance() float32 {
	return float32(ls.ISize+ls.JSize+ls.KSize) * ls.DX
}

// EnableVelocityData allocates the solid velocity samples so subsequent
// distance computations record mesh velocities. Disabled by default to
// avoid double work when the field will only be negated.
func (ls *MeshLevelSet) EnableVelocityData() {
	if ls.velocityEnabled {
		return
	}
	ls.velocityEnabled = true
	ls.velocity = grid.NewArray3D[vecmath.Vec3](ls.ISize+1, ls.JSize+1, ls.KSize+1)
	ls.velocityWeight = grid.NewArray3D[float32](ls.ISize+1, ls.JSize+1, ls.KSize+1)
}

// DisableVelocityData releases the solid velocity samples.
func (ls *MeshLevelSet) DisableVelocityData() {
	ls.velocityEnabled = false
	ls.velocity = nil
	ls.velocityWeight = nil
}

// IsVelocityDataEnabled reports whether solid velocities are sampled.
func (ls *MeshLevelSet) IsVelocityDataEnabled() bool {
	return ls.velocityEnabled
}

// Reset restores the field to the empty (all outside) state.
func (ls *MeshLevelSet) Reset() {
	ls.Phi.Fill(ls.maxDistance())
	ls.closestObject.Fill(-1)
	ls.meshObjects = ls.meshObjects[:0]
	if ls.velocityEnabled {
		ls.velocity.Fill(vecmath.Vec3{})
		ls.velocityWeight.Fill(0)
	}
}

// PushMeshObject registers the object whose mesh the next
// CalculateSignedDistanceField call rasterizes, so node lookups can map
// back to its material parameters.
func (ls *MeshLevelSet) PushMeshObject(info MeshObjectInfo) {
	ls.meshObjects = append(ls.meshObjects, info)
}

// NodePhi returns the signed distance at node (i,j,k). Implements
// grid.SolidSampler.
func (ls *MeshLevelSet) NodePhi(i, j, k int) float32 {
	return ls.Phi.Get(i, j, k)
}

// nodePosition returns the world position of node (i,j,k).
func (ls *MeshLevelSet) nodePosition(i, j, k int) vecmath.Vec3 {
	return vecmath.Vec3{
		X: float32(i) * ls.DX,
		Y: float32(j) * ls.DX,
		Z: float32(k) * ls.DX,
	}
}

// CalculateSignedDistanceField populates the field from a triangle mesh.
// Distances are exact within band cells of each triangle; farther nodes
// receive sign-propagated band-limit magnitudes. The computed field is
// unioned into the existing contents, so multiple meshes accumulate. If a
// mesh object was pushed, its triangles record that object's index at the
// nodes they win.
func (ls *MeshLevelSet) CalculateSignedDistanceField(m *mesh.TriangleMesh, band int) {
	if len(m.Triangles) == 0 {
		return
	}
	objIdx := int32(len(ls.meshObjects)) - 1

	isize, jsize, ksize := ls.ISize+1, ls.JSize+1, ls.KSize+1
	bandDist := float32(band) * ls.DX

	phi := grid.NewArray3DFilled[float32](isize, jsize, ksize, ls.maxDistance())

	// Exact distances within the band of each triangle.
	for _, t := range m.Triangles {
		a := m.Vertices[t.V[0]]
		b := m.Vertices[t.V[1]]
		c := m.Vertices[t.V[2]]

		lo, hi := triangleNodeRange(a, b, c, ls.DX, band, isize, jsize, ksize)
		for k := lo.K; k <= hi.K; k++ {
			for j := lo.J; j <= hi.J; j++ {
				for i := lo.I; i <= hi.I; i++ {
					p := ls.nodePosition(i, j, k)
					d := mesh.DistancePointTriangle(p, a, b, c)
					if d < phi.Get(i, j, k) {
						phi.Set(i, j, k, d)
					}
				}
			}
		}
	}

	// Sign by ray-crossing parity along +x node rows.
	inside := computeInsideMask(m, ls.DX, isize, jsize, ksize)

	for k := 0; k < ksize; k++ {
		for j := 0; j < jsize; j++ {
			for i := 0; i < isize; i++ {
				d := phi.Get(i, j, k)
				if d > bandDist {
					d = bandDist
				}
				if inside.Get(i, j, k) {
					d = -d
				}
				if d < ls.Phi.Get(i, j, k) {
					ls.Phi.Set(i, j, k, d)
					ls.closestObject.Set(i, j, k, objIdx)
					if ls.velocityEnabled && objIdx >= 0 {
						ls.velocity.Set(i, j, k, ls.meshObjects[objIdx].Velocity)
						ls.velocityWeight.Set(i, j, k, 1)
					}
				}
			}
		}
	}
}

func triangleNodeRange(a, b, c vecmath.Vec3, dx float32, band, isize, jsize, ksize int) (lo, hi grid.Index) {
	minf := func(x, y, z float32) float32 { return minF(minF(x, y), z) }
	maxf := func(x, y, z float32) float32 { return maxF(maxF(x, y), z) }

	lo = grid.Index{
		I: clampI(int(minf(a.X, b.X, c.X)/dx)-band, 0, isize-1),
		J: clampI(int(minf(a.Y, b.Y, c.Y)/dx)-band, 0, jsize-1),
		K: clampI(int(minf(a.Z, b.Z, c.Z)/dx)-band, 0, ksize-1),
	}
	hi = grid.Index{
		I: clampI(int(maxf(a.X, b.X, c.X)/dx)+band+1, 0, isize-1),
		J: clampI(int(maxf(a.Y, b.Y, c.Y)/dx)+band+1, 0, jsize-1),
		K: clampI(int(maxf(a.Z, b.Z, c.Z)/dx)+band+1, 0, ksize-1),
	}
	return
}

// computeInsideMask casts a +x ray along every (j,k) node row and marks
// nodes with odd crossing parity as inside.
func computeInsideMask(m *mesh.TriangleMesh, dx float32, isize, jsize, ksize int) *grid.Array3D[bool] {
	inside := grid.NewArray3D[bool](isize, jsize, ksize)

	// Rays are jittered off the lattice so they cannot graze shared
	// triangle edges or vertices, which would double-count crossings. The
	// y and z offsets differ so rays also miss diagonal edges.
	const rayJitterY = 0.001937
	const rayJitterZ = 0.003719
	for k := 0; k < ksize; k++ {
		z := (float32(k) + rayJitterZ) * dx
		for j := 0; j < jsize; j++ {
			y := (float32(j) + rayJitterY) * dx

			var crossings []float32
			for _, t := range m.Triangles {
				if x, ok := rayXTriangle(y, z, m.Vertices[t.V[0]], m.Vertices[t.V[1]], m.Vertices[t.V[2]]); ok {
					crossings = append(crossings, x)
				}
			}
			if len(crossings) == 0 {
				continue
			}
			sort.Sort(float32Slice(crossings))

			ci := 0
			for i := 0; i < isize; i++ {
				x := float32(i) * dx
				for ci < len(crossings) && crossings[ci] < x {
					ci++
				}
				if ci%2 == 1 {
					inside.Set(i, j, k, true)
				}
			}
		}
	}
	return inside
}

// rayXTriangle intersects the ray {(t, y, z) : t ∈ R} with a triangle and
// returns the x of the crossing. Watertight enough for sign computation;
// edge grazes resolve by the strict/inclusive comparison split.
func rayXTriangle(y, z float32, a, b, c vecmath.Vec3) (float32, bool) {
	// Project to the yz plane and test point-in-triangle.
	d1 := (y-b.Y)*(a.Z-b.Z) - (a.Y-b.Y)*(z-b.Z)
	d2 := (y-c.Y)*(b.Z-c.Z) - (b.Y-c.Y)*(z-c.Z)
	d3 := (y-a.Y)*(c.Z-a.Z) - (c.Y-a.Y)*(z-a.Z)

	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	if hasNeg && hasPos {
		return 0, false
	}

	area := (b.Y-a.Y)*(c.Z-a.Z) - (c.Y-a.Y)*(b.Z-a.Z)
	if area == 0 {
		return 0, false
	}
	// Barycentric interpolation of x at (y,z).
	w0 := ((b.Y-y)*(c.Z-z) - (c.Y-y)*(b.Z-z)) / area
	w1 := ((c.Y-y)*(a.Z-z) - (a.Y-y)*(c.Z-z)) / area
	w2 := 1 - w0 - w1
	return w0*a.X + w1*b.X + w2*c.X, true
}

type float32Slice []float32

func (s float32Slice) Len() int           { return len(s) }
func (s float32Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s float32Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Negate inverts the sign throughout, turning an obstacle into its
// complement. Velocity data is left untouched.
func (ls *MeshLevelSet) Negate() {
	data := ls.Phi.Data()
	for i := range data {
		data[i] = -data[i]
	}
}

// CalculateUnion merges other into ls as a pointwise minimum, carrying
// over the winning field's closest-object indices and accumulating solid
// velocity samples weighted by contribution.
func (ls *MeshLevelSet) CalculateUnion(other *MeshLevelSet) {
	objOffset := int32(len(ls.meshObjects))
	ls.meshObjects = append(ls.meshObjects, other.meshObjects...)

	for k := 0; k < ls.KSize+1; k++ {
		for j := 0; j < ls.JSize+1; j++ {
			for i := 0; i < ls.ISize+1; i++ {
				op := other.Phi.Get(i, j, k)
				if op < ls.Phi.Get(i, j, k) {
					ls.Phi.Set(i, j, k, op)
					oi := other.closestObject.Get(i, j, k)
					if oi >= 0 {
						ls.closestObject.Set(i, j, k, objOffset+oi)
					} else {
						ls.closestObject.Set(i, j, k, -1)
					}
				}
				if ls.velocityEnabled && other.velocityEnabled {
					w := other.velocityWeight.Get(i, j, k)
					if w > 0 {
						cur := ls.velocity.Get(i, j, k)
						ls.velocity.Set(i, j, k, cur.Add(other.velocity.Get(i, j, k).Scale(w)))
						*ls.velocityWeight.At(i, j, k) += w
					}
				}
			}
		}
	}
}

// NormalizeVelocityData divides accumulated solid velocities by their
// combined weights.
func (ls *MeshLevelSet) NormalizeVelocityData() {
	if !ls.velocityEnabled {
		return
	}
	vdata := ls.velocity.Data()
	wdata := ls.velocityWeight.Data()
	for i := range vdata {
		if wdata[i] > 0 {
			vdata[i] = vdata[i].Scale(1.0 / wdata[i])
			wdata[i] = 1
		}
	}
}

// TrilinearInterpolate samples the signed distance at world position p.
func (ls *MeshLevelSet) TrilinearInterpolate(p vecmath.Vec3) float32 {
	return ls.Phi.TrilinearInterpolate(p)
}

// TrilinearInterpolateGradient samples the distance gradient at p.
func (ls *MeshLevelSet) TrilinearInterpolateGradient(p vecmath.Vec3) vecmath.Vec3 {
	return ls.Phi.TrilinearInterpolateGradient(p)
}

// SampleSolidVelocity returns the solid velocity stored at the node
// nearest to p, or zero if velocity data is disabled.
func (ls *MeshLevelSet) SampleSolidVelocity(p vecmath.Vec3) vecmath.Vec3 {
	if !ls.velocityEnabled {
		return vecmath.Vec3{}
	}
	inv := 1.0 / ls.DX
	i := clampI(int(p.X*inv+0.5), 0, ls.ISize)
	j := clampI(int(p.Y*inv+0.5), 0, ls.JSize)
	k := clampI(int(p.Z*inv+0.5), 0, ls.KSize)
	return ls.velocity.Get(i, j, k)
}

// ClosestMeshObject returns the material info of the mesh nearest to p,
// or nil when no mesh has claimed the region.
func (ls *MeshLevelSet) ClosestMeshObject(p vecmath.Vec3) *MeshObjectInfo {
	inv := 1.0 / ls.DX
	i := clampI(int(p.X*inv+0.5), 0, ls.ISize)
	j := clampI(int(p.Y*inv+0.5), 0, ls.JSize)
	k := clampI(int(p.Z*inv+0.5), 0, ls.KSize)
	oi := ls.closestObject.Get(i, j, k)
	if oi < 0 || int(oi) >= len(ls.meshObjects) {
		return nil
	}
	return &ls.meshObjects[oi]
}

func clampI(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
