package mesh

import "github.com/pthm-cable/riptide/vecmath"

// Box builds an axis-aligned box mesh with outward-facing triangles.
func Box(b AABB) *TriangleMesh {
	p := b.Position
	q := b.Max()
	verts := []vecmath.Vec3{
		{X: p.X, Y: p.Y, Z: p.Z},
		{X: q.X, Y: p.Y, Z: p.Z},
		{X: q.X, Y: q.Y, Z: p.Z},
		{X: p.X, Y: q.Y, Z: p.Z},
		{X: p.X, Y: p.Y, Z: q.Z},
		{X: q.X, Y: p.Y, Z: q.Z},
		{X: q.X, Y: q.Y, Z: q.Z},
		{X: p.X, Y: q.Y, Z: q.Z},
	}
	tris := []Triangle{
		{V: [3]int{0, 2, 1}}, {V: [3]int{0, 3, 2}}, // -z
		{V: [3]int{4, 5, 6}}, {V: [3]int{4, 6, 7}}, // +z
		{V: [3]int{0, 1, 5}}, {V: [3]int{0, 5, 4}}, // -y
		{V: [3]int{3, 6, 2}}, {V: [3]int{3, 7, 6}}, // +y
		{V: [3]int{0, 4, 7}}, {V: [3]int{0, 7, 3}}, // -x
		{V: [3]int{1, 2, 6}}, {V: [3]int{1, 6, 5}}, // +x
	}
	return &TriangleMesh{Vertices: verts, Triangles: tris}
}

// Sphere builds a UV-sphere mesh.
func Sphere(center vecmath.Vec3, radius float32, rings, sectors int) *TriangleMesh {
	if rings < 3 {
		rings = 3
	}
	if sectors < 3 {
		sectors = 3
	}
	m := &TriangleMesh{}
	for r := 0; r <= rings; r++ {
		theta := float32(r) / float32(rings) * pi32
		sinT, cosT := sincos32(theta)
		for s := 0; s <= sectors; s++ {
			phi := float32(s) / float32(sectors) * 2 * pi32
			sinP, cosP := sincos32(phi)
			m.Vertices = append(m.Vertices, vecmath.Vec3{
				X: center.X + radius*sinT*cosP,
				Y: center.Y + radius*cosT,
				Z: center.Z + radius*sinT*sinP,
			})
		}
	}
	stride := sectors + 1
	for r := 0; r < rings; r++ {
		for s := 0; s < sectors; s++ {
			a := r*stride + s
			b := a + stride
			m.Triangles = append(m.Triangles,
				Triangle{V: [3]int{a, b, a + 1}},
				Triangle{V: [3]int{a + 1, b, b + 1}},
			)
		}
	}
	m.RemoveDegenerateTriangles()
	m.RemoveUnreferencedVertices()
	return m
}

const pi32 = float32(3.14159265358979323846)

func sincos32(x float32) (float32, float32) {
	s, c := sincos64(float64(x))
	return float32(s), float32(c)
}
