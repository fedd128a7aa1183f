package mesh

import (
	"math"
	"testing"

	"github.com/pthm-cable/riptide/vecmath"
)

func TestBoxBoundingBox(t *testing.T) {
	b := NewAABB(vecmath.New(1, 2, 3), 2, 3, 4)
	m := Box(b)
	if len(m.Vertices) != 8 || len(m.Triangles) != 12 {
		t.Fatalf("box has %d vertices, %d triangles", len(m.Vertices), len(m.Triangles))
	}
	got := m.BoundingBox()
	if got.Position != b.Position || got.Width != 2 || got.Height != 3 || got.Depth != 4 {
		t.Errorf("bounding box = %+v", got)
	}
}

func TestAABBContains(t *testing.T) {
	b := NewAABB(vecmath.New(0, 0, 0), 1, 1, 1)
	tests := []struct {
		p    vecmath.Vec3
		want bool
	}{
		{vecmath.New(0.5, 0.5, 0.5), true},
		{vecmath.New(-0.1, 0.5, 0.5), false},
		{vecmath.New(0.5, 1.5, 0.5), false},
	}
	for _, tt := range tests {
		if got := b.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestBoxNormalsPointOutward(t *testing.T) {
	b := NewAABB(vecmath.New(0, 0, 0), 1, 1, 1)
	m := Box(b)
	center := vecmath.New(0.5, 0.5, 0.5)
	for i, tri := range m.Triangles {
		n := m.TriangleNormal(tri)
		outward := m.TriangleCentroid(tri).Sub(center)
		if n.Dot(outward) <= 0 {
			t.Errorf("triangle %d normal points inward", i)
		}
	}
}

func TestSmoothLaplacianShrinksSphere(t *testing.T) {
	s := Sphere(vecmath.New(0, 0, 0), 1, 8, 8)
	s.SmoothLaplacian(0.5, 5)
	// Uniform Laplacian smoothing pulls a closed sphere inward.
	maxR := float32(0)
	for _, v := range s.Vertices {
		if r := v.Length(); r > maxR {
			maxR = r
		}
	}
	if maxR >= 1.0 {
		t.Errorf("max radius after smoothing = %v, want < 1", maxR)
	}
}

func TestRemoveSmallPolyhedra(t *testing.T) {
	big := Sphere(vecmath.New(0, 0, 0), 1, 8, 8)
	small := Box(NewAABB(vecmath.New(5, 5, 5), 0.1, 0.1, 0.1))

	combined := big.Clone()
	offset := len(combined.Vertices)
	combined.Vertices = append(combined.Vertices, small.Vertices...)
	for _, tri := range small.Triangles {
		combined.Triangles = append(combined.Triangles, Triangle{
			V: [3]int{tri.V[0] + offset, tri.V[1] + offset, tri.V[2] + offset},
		})
	}

	combined.RemoveSmallPolyhedra(20)
	if len(combined.Triangles) != len(big.Triangles) {
		t.Errorf("triangles = %d, want %d (box component removed)",
			len(combined.Triangles), len(big.Triangles))
	}
	for _, v := range combined.Vertices {
		if v.X > 4 {
			t.Fatal("box vertex survived component pruning")
		}
	}
}

func TestRemoveTrianglesNearDomain(t *testing.T) {
	domain := NewAABB(vecmath.New(0, 0, 0), 10, 10, 10)
	m := Box(NewAABB(vecmath.New(0.1, 4, 4), 1, 1, 1))
	before := len(m.Triangles)
	m.RemoveTrianglesNearDomain(domain, 1.0)
	if len(m.Triangles) >= before {
		t.Errorf("no triangles removed near the boundary (%d)", len(m.Triangles))
	}
}

func TestFlipInvertedContactNormals(t *testing.T) {
	m := Box(NewAABB(vecmath.New(0, 0, 0), 1, 1, 1))
	orig := m.Clone()
	// Every vertex is "near solid": all windings flip.
	m.FlipInvertedContactNormals(func(vecmath.Vec3) float32 { return -1 }, 0)
	for i := range m.Triangles {
		if m.Triangles[i].V[1] != orig.Triangles[i].V[2] ||
			m.Triangles[i].V[2] != orig.Triangles[i].V[1] {
			t.Fatalf("triangle %d not flipped", i)
		}
	}
}

func TestDistancePointTriangle(t *testing.T) {
	a := vecmath.New(0, 0, 0)
	b := vecmath.New(1, 0, 0)
	c := vecmath.New(0, 1, 0)
	tests := []struct {
		name string
		p    vecmath.Vec3
		want float64
	}{
		{"above interior", vecmath.New(0.25, 0.25, 1), 1},
		{"at vertex", vecmath.New(0, 0, 0), 0},
		{"beyond vertex", vecmath.New(-1, 0, 0), 1},
		{"beyond edge", vecmath.New(0.5, -2, 0), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float64(DistancePointTriangle(tt.p, a, b, c))
			if math.Abs(got-tt.want) > 1e-5 {
				t.Errorf("distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveUnreferencedVertices(t *testing.T) {
	m := &TriangleMesh{
		Vertices: []vecmath.Vec3{
			{X: 0}, {X: 1}, {X: 2}, {X: 3},
		},
		Triangles: []Triangle{{V: [3]int{0, 2, 3}}},
	}
	m.RemoveUnreferencedVertices()
	if len(m.Vertices) != 3 {
		t.Fatalf("vertices = %d, want 3", len(m.Vertices))
	}
	tri := m.Triangles[0]
	if m.Vertices[tri.V[0]].X != 0 || m.Vertices[tri.V[1]].X != 2 || m.Vertices[tri.V[2]].X != 3 {
		t.Error("remap broke triangle vertex references")
	}
}
