// Package output implements the per-frame output stage: surface meshing,
// mesh processing, attribute interpolation, and the packed byte buffers
// handed to callers.
package output

import (
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

// ParticleMesher converts a particle cloud into a triangle mesh; it is
// given no solid SDF. The simulator treats the polygonizer as
// a black box; ScalarFieldMesher is the bundled implementation.
type ParticleMesher interface {
	// Mesh polygonizes particles of the given radius on a grid of cell
	// width dx covering the domain, splitting work into numSlices slabs.
	Mesh(positions []vecmath.Vec3, radius float32, domain mesh.AABB, dx float32, numSlices int) *mesh.TriangleMesh
}

// ScalarFieldMesher rasterizes the particles into a union-of-spheres
// scalar field and extracts the zero iso-surface by marching
// tetrahedra. Edge vertices are deduplicated so downstream smoothing and
// component analysis see shared topology.
type ScalarFieldMesher struct{}

// tetrahedra decomposition of a cube into six tets, by corner index.
var cubeTets = [6][4]int{
	{0, 5, 1, 6},
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
}

// corner offsets in (di,dj,dk).
var cubeCorners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

type edgeKey struct {
	a, b int64
}

func makeEdgeKey(a, b int64) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Mesh implements ParticleMesher.
func (ScalarFieldMesher) Mesh(positions []vecmath.Vec3, radius float32, domain mesh.AABB, dx float32, numSlices int) *mesh.TriangleMesh {
	if dx <= 0 || len(positions) == 0 {
		return &mesh.TriangleMesh{}
	}
	ni := int(domain.Width/dx) + 1
	nj := int(domain.Height/dx) + 1
	nk := int(domain.Depth/dx) + 1
	if ni < 2 || nj < 2 || nk < 2 {
		return &mesh.TriangleMesh{}
	}

	// Node-sampled union-of-spheres distance.
	far := 2 * radius
	phi := make([]float32, ni*nj*nk)
	for i := range phi {
		phi[i] = far
	}
	nodeIdx := func(i, j, k int) int { return i + ni*(j+nj*k) }

	reach := int(radius/dx) + 2
	for _, p := range positions {
		ci := int((p.X - domain.Position.X) / dx)
		cj := int((p.Y - domain.Position.Y) / dx)
		ck := int((p.Z - domain.Position.Z) / dx)
		for k := ck - reach; k <= ck+reach; k++ {
			for j := cj - reach; j <= cj+reach; j++ {
				for i := ci - reach; i <= ci+reach; i++ {
					if i < 0 || j < 0 || k < 0 || i >= ni || j >= nj || k >= nk {
						continue
					}
					node := vecmath.Vec3{
						X: domain.Position.X + float32(i)*dx,
						Y: domain.Position.Y + float32(j)*dx,
						Z: domain.Position.Z + float32(k)*dx,
					}
					d := node.Dist(p) - radius
					idx := nodeIdx(i, j, k)
					if d < phi[idx] {
						phi[idx] = d
					}
				}
			}
		}
	}

	out := &mesh.TriangleMesh{}
	vertexAt := make(map[edgeKey]int)

	nodePos := func(i, j, k int) vecmath.Vec3 {
		return vecmath.Vec3{
			X: domain.Position.X + float32(i)*dx,
			Y: domain.Position.Y + float32(j)*dx,
			Z: domain.Position.Z + float32(k)*dx,
		}
	}

	// edgeVertex returns the deduplicated iso-crossing vertex between
	// two nodes.
	edgeVertex := func(ia, ja, ka, ib, jb, kb int) int {
		a64 := int64(nodeIdx(ia, ja, ka))
		b64 := int64(nodeIdx(ib, jb, kb))
		key := makeEdgeKey(a64, b64)
		if v, ok := vertexAt[key]; ok {
			return v
		}
		pa := phi[a64]
		pb := phi[b64]
		t := float32(0.5)
		if pa != pb {
			t = pa / (pa - pb)
		}
		t = vecmath.Clamp(t, 0, 1)
		p := nodePos(ia, ja, ka).Lerp(nodePos(ib, jb, kb), t)
		out.Vertices = append(out.Vertices, p)
		vi := len(out.Vertices) - 1
		vertexAt[key] = vi
		return vi
	}

	// Slabs along the x axis; slice boundaries share nodes so the
	// deduplication map stitches them seamlessly.
	if numSlices < 1 {
		numSlices = 1
	}
	sliceWidth := (ni - 1 + numSlices - 1) / numSlices

	for slice := 0; slice < numSlices; slice++ {
		iStart := slice * sliceWidth
		iEnd := iStart + sliceWidth
		if iEnd > ni-1 {
			iEnd = ni - 1
		}
		for k := 0; k < nk-1; k++ {
			for j := 0; j < nj-1; j++ {
				for i := iStart; i < iEnd; i++ {
					marchCube(out, phi, nodeIdx, edgeVertex, i, j, k)
				}
			}
		}
	}

	out.RemoveDegenerateTriangles()
	return out
}

// marchCube emits triangles for one cell by splitting it into six
// tetrahedra and marching each.
func marchCube(
	out *mesh.TriangleMesh, phi []float32, nodeIdx func(i, j, k int) int,
	edgeVertex func(ia, ja, ka, ib, jb, kb int) int, i, j, k int,
) {
	var corner [8][3]int
	var value [8]float32
	for c := 0; c < 8; c++ {
		ci := i + cubeCorners[c][0]
		cj := j + cubeCorners[c][1]
		ck := k + cubeCorners[c][2]
		corner[c] = [3]int{ci, cj, ck}
		value[c] = phi[nodeIdx(ci, cj, ck)]
	}

	for _, tet := range cubeTets {
		var inside [4]bool
		mask := 0
		for n := 0; n < 4; n++ {
			inside[n] = value[tet[n]] < 0
			if inside[n] {
				mask |= 1 << n
			}
		}
		if mask == 0 || mask == 0xF {
			continue
		}

		ev := func(a, b int) int {
			ca := corner[tet[a]]
			cb := corner[tet[b]]
			return edgeVertex(ca[0], ca[1], ca[2], cb[0], cb[1], cb[2])
		}

		emit := func(a, b, c int) {
			out.Triangles = append(out.Triangles, mesh.Triangle{V: [3]int{a, b, c}})
		}

		switch mask {
		case 0x1:
			emit(ev(0, 1), ev(0, 2), ev(0, 3))
		case 0xE:
			emit(ev(0, 1), ev(0, 3), ev(0, 2))
		case 0x2:
			emit(ev(1, 0), ev(1, 3), ev(1, 2))
		case 0xD:
			emit(ev(1, 0), ev(1, 2), ev(1, 3))
		case 0x4:
			emit(ev(2, 0), ev(2, 1), ev(2, 3))
		case 0xB:
			emit(ev(2, 0), ev(2, 3), ev(2, 1))
		case 0x8:
			emit(ev(3, 0), ev(3, 2), ev(3, 1))
		case 0x7:
			emit(ev(3, 0), ev(3, 1), ev(3, 2))
		case 0x3:
			emit(ev(0, 2), ev(1, 3), ev(1, 2))
			emit(ev(0, 2), ev(0, 3), ev(1, 3))
		case 0xC:
			emit(ev(0, 2), ev(1, 2), ev(1, 3))
			emit(ev(0, 2), ev(1, 3), ev(0, 3))
		case 0x5:
			emit(ev(0, 1), ev(2, 3), ev(2, 1))
			emit(ev(0, 1), ev(0, 3), ev(2, 3))
		case 0xA:
			emit(ev(0, 1), ev(2, 1), ev(2, 3))
			emit(ev(0, 1), ev(2, 3), ev(0, 3))
		case 0x6:
			emit(ev(1, 0), ev(2, 0), ev(2, 3))
			emit(ev(1, 0), ev(2, 3), ev(1, 3))
		case 0x9:
			emit(ev(1, 0), ev(2, 3), ev(2, 0))
			emit(ev(1, 0), ev(1, 3), ev(2, 3))
		}
	}
}
