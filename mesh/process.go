package mesh

import (
	"math"

	"github.com/pthm-cable/riptide/vecmath"
)

func sincos64(x float64) (float64, float64) {
	return math.Sincos(x)
}

// SmoothLaplacian runs the given number of uniform Laplacian smoothing
// iterations, moving each vertex toward its neighbor average scaled by
// value.
func (m *TriangleMesh) SmoothLaplacian(value float32, iterations int) {
	if iterations <= 0 || value == 0 || len(m.Vertices) == 0 {
		return
	}

	// Neighbor sums and counts are rebuilt each iteration from the
	// current vertex positions.
	neighborSum := make([]vecmath.Vec3, len(m.Vertices))
	neighborCount := make([]int, len(m.Vertices))
	next := make([]vecmath.Vec3, len(m.Vertices))

	for iter := 0; iter < iterations; iter++ {
		for i := range neighborSum {
			neighborSum[i] = vecmath.Vec3{}
			neighborCount[i] = 0
		}
		for _, t := range m.Triangles {
			for e := 0; e < 3; e++ {
				a := t.V[e]
				b := t.V[(e+1)%3]
				neighborSum[a] = neighborSum[a].Add(m.Vertices[b])
				neighborSum[b] = neighborSum[b].Add(m.Vertices[a])
				neighborCount[a]++
				neighborCount[b]++
			}
		}
		for i, v := range m.Vertices {
			if neighborCount[i] == 0 {
				next[i] = v
				continue
			}
			avg := neighborSum[i].Scale(1.0 / float32(neighborCount[i]))
			next[i] = v.Add(avg.Sub(v).Scale(value))
		}
		copy(m.Vertices, next)
	}
}

// RemoveSmallPolyhedra discards connected components with fewer than
// minTriangles triangles.
func (m *TriangleMesh) RemoveSmallPolyhedra(minTriangles int) {
	if minTriangles <= 1 || len(m.Triangles) == 0 {
		return
	}

	// Union-find over vertices.
	parent := make([]int, len(m.Vertices))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, t := range m.Triangles {
		union(t.V[0], t.V[1])
		union(t.V[1], t.V[2])
	}

	componentSize := make(map[int]int)
	for _, t := range m.Triangles {
		componentSize[find(t.V[0])]++
	}

	out := m.Triangles[:0]
	for _, t := range m.Triangles {
		if componentSize[find(t.V[0])] >= minTriangles {
			out = append(out, t)
		}
	}
	m.Triangles = out
	m.RemoveUnreferencedVertices()
}

// RemoveTrianglesNearDomain discards triangles whose centroid lies within
// distance of the domain AABB boundary.
func (m *TriangleMesh) RemoveTrianglesNearDomain(domain AABB, distance float32) {
	if distance <= 0 {
		return
	}
	inner := AABB{
		Position: vecmath.Vec3{
			X: domain.Position.X + distance,
			Y: domain.Position.Y + distance,
			Z: domain.Position.Z + distance,
		},
		Width:  domain.Width - 2*distance,
		Height: domain.Height - 2*distance,
		Depth:  domain.Depth - 2*distance,
	}
	out := m.Triangles[:0]
	for _, t := range m.Triangles {
		if inner.Contains(m.TriangleCentroid(t)) {
			out = append(out, t)
		}
	}
	m.Triangles = out
	m.RemoveUnreferencedVertices()
}

// SolidDistanceFunc reports the solid signed distance at a world position.
type SolidDistanceFunc func(p vecmath.Vec3) float32

// FlipInvertedContactNormals reverses the winding of triangles with any
// vertex within threshold of a solid. Contact-region normals otherwise
// point into the obstacle after meshing.
func (m *TriangleMesh) FlipInvertedContactNormals(solidPhi SolidDistanceFunc, threshold float32) {
	nearSolid := make([]bool, len(m.Vertices))
	for i, v := range m.Vertices {
		nearSolid[i] = solidPhi(v) < threshold
	}
	for ti, t := range m.Triangles {
		if nearSolid[t.V[0]] || nearSolid[t.V[1]] || nearSolid[t.V[2]] {
			m.Triangles[ti].V[1], m.Triangles[ti].V[2] = t.V[2], t.V[1]
		}
	}
}

// RemoveUnreferencedVertices compacts the vertex list to those used by at
// least one triangle, remapping indices.
func (m *TriangleMesh) RemoveUnreferencedVertices() {
	used := make([]bool, len(m.Vertices))
	for _, t := range m.Triangles {
		used[t.V[0]] = true
		used[t.V[1]] = true
		used[t.V[2]] = true
	}
	remap := make([]int, len(m.Vertices))
	out := 0
	for i, u := range used {
		if u {
			remap[i] = out
			m.Vertices[out] = m.Vertices[i]
			out++
		} else {
			remap[i] = -1
		}
	}
	m.Vertices = m.Vertices[:out]
	for ti := range m.Triangles {
		for e := 0; e < 3; e++ {
			m.Triangles[ti].V[e] = remap[m.Triangles[ti].V[e]]
		}
	}
}
