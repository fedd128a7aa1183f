// Package mesh provides the triangle mesh type shared by obstacles, fluid
// sources, and the output stage, together with the mesh processing passes
// applied to generated surfaces.
package mesh

import (
	"math"

	"github.com/pthm-cable/riptide/vecmath"
)

// Triangle indexes three vertices.
type Triangle struct {
	V [3]int
}

// TriangleMesh is an indexed triangle mesh.
type TriangleMesh struct {
	Vertices  []vecmath.Vec3
	Triangles []Triangle
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Position vecmath.Vec3 // min corner
	Width    float32
	Height   float32
	Depth    float32
}

// NewAABB constructs a box from its min corner and extents.
func NewAABB(pos vecmath.Vec3, w, h, d float32) AABB {
	return AABB{Position: pos, Width: w, Height: h, Depth: d}
}

// Max returns the max corner.
func (b AABB) Max() vecmath.Vec3 {
	return vecmath.Vec3{
		X: b.Position.X + b.Width,
		Y: b.Position.Y + b.Height,
		Z: b.Position.Z + b.Depth,
	}
}

// Contains reports whether p lies inside the box.
func (b AABB) Contains(p vecmath.Vec3) bool {
	mx := b.Max()
	return p.X >= b.Position.X && p.X < mx.X &&
		p.Y >= b.Position.Y && p.Y < mx.Y &&
		p.Z >= b.Position.Z && p.Z < mx.Z
}

// Expand grows the box by amount on every side.
func (b AABB) Expand(amount float32) AABB {
	return AABB{
		Position: vecmath.Vec3{
			X: b.Position.X - amount,
			Y: b.Position.Y - amount,
			Z: b.Position.Z - amount,
		},
		Width:  b.Width + 2*amount,
		Height: b.Height + 2*amount,
		Depth:  b.Depth + 2*amount,
	}
}

// BoundingBox returns the AABB of the mesh vertices, or a zero box for an
// empty mesh.
func (m *TriangleMesh) BoundingBox() AABB {
	if len(m.Vertices) == 0 {
		return AABB{}
	}
	minV := m.Vertices[0]
	maxV := m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		minV.X = min32(minV.X, v.X)
		minV.Y = min32(minV.Y, v.Y)
		minV.Z = min32(minV.Z, v.Z)
		maxV.X = max32(maxV.X, v.X)
		maxV.Y = max32(maxV.Y, v.Y)
		maxV.Z = max32(maxV.Z, v.Z)
	}
	return AABB{
		Position: minV,
		Width:    maxV.X - minV.X,
		Height:   maxV.Y - minV.Y,
		Depth:    maxV.Z - minV.Z,
	}
}

// Translate offsets every vertex.
func (m *TriangleMesh) Translate(offset vecmath.Vec3) {
	for i := range m.Vertices {
		m.Vertices[i] = m.Vertices[i].Add(offset)
	}
}

// Scale multiplies every vertex by s about the origin.
func (m *TriangleMesh) Scale(s float32) {
	for i := range m.Vertices {
		m.Vertices[i] = m.Vertices[i].Scale(s)
	}
}

// Clone returns a deep copy.
func (m *TriangleMesh) Clone() *TriangleMesh {
	c := &TriangleMesh{
		Vertices:  make([]vecmath.Vec3, len(m.Vertices)),
		Triangles: make([]Triangle, len(m.Triangles)),
	}
	copy(c.Vertices, m.Vertices)
	copy(c.Triangles, m.Triangles)
	return c
}

// TriangleCentroid returns the centroid of triangle t.
func (m *TriangleMesh) TriangleCentroid(t Triangle) vecmath.Vec3 {
	a := m.Vertices[t.V[0]]
	b := m.Vertices[t.V[1]]
	c := m.Vertices[t.V[2]]
	return vecmath.Vec3{
		X: (a.X + b.X + c.X) / 3,
		Y: (a.Y + b.Y + c.Y) / 3,
		Z: (a.Z + b.Z + c.Z) / 3,
	}
}

// TriangleNormal returns the (unnormalized) face normal of triangle t.
func (m *TriangleMesh) TriangleNormal(t Triangle) vecmath.Vec3 {
	a := m.Vertices[t.V[0]]
	b := m.Vertices[t.V[1]]
	c := m.Vertices[t.V[2]]
	return b.Sub(a).Cross(c.Sub(a))
}

// VertexNormals returns area-weighted vertex normals.
func (m *TriangleMesh) VertexNormals() []vecmath.Vec3 {
	normals := make([]vecmath.Vec3, len(m.Vertices))
	for _, t := range m.Triangles {
		n := m.TriangleNormal(t)
		for _, vi := range t.V {
			normals[vi] = normals[vi].Add(n)
		}
	}
	for i := range normals {
		normals[i] = normals[i].Normalize()
	}
	return normals
}

// RemoveDegenerateTriangles drops triangles with repeated vertex indices
// or near-zero area.
func (m *TriangleMesh) RemoveDegenerateTriangles() {
	const areaEps = 1e-12
	out := m.Triangles[:0]
	for _, t := range m.Triangles {
		if t.V[0] == t.V[1] || t.V[1] == t.V[2] || t.V[0] == t.V[2] {
			continue
		}
		n := m.TriangleNormal(t)
		if float64(n.LengthSq()) < areaEps {
			continue
		}
		out = append(out, t)
	}
	m.Triangles = out
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// DistancePointTriangle returns the distance from p to triangle (a,b,c).
func DistancePointTriangle(p, a, b, c vecmath.Vec3) float32 {
	return float32(math.Sqrt(float64(distSqPointTriangle(p, a, b, c))))
}

func distSqPointTriangle(p, a, b, c vecmath.Vec3) float32 {
	// Ericson, Real-Time Collision Detection, closest-point-on-triangle.
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return ap.LengthSq()
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return bp.LengthSq()
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return p.Sub(a.Add(ab.Scale(v))).LengthSq()
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return cp.LengthSq()
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return p.Sub(a.Add(ac.Scale(w))).LengthSq()
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return p.Sub(b.Add(c.Sub(b).Scale(w))).LengthSq()
	}

	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return p.Sub(a.Add(ab.Scale(v)).Add(ac.Scale(w))).LengthSq()
}
