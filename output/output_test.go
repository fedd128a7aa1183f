package output

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

// sphereParticles fills a ball of particles centered in the unit domain.
func sphereParticles(center vecmath.Vec3, radius float32, spacing float32) []vecmath.Vec3 {
	var out []vecmath.Vec3
	for z := center.Z - radius; z <= center.Z+radius; z += spacing {
		for y := center.Y - radius; y <= center.Y+radius; y += spacing {
			for x := center.X - radius; x <= center.X+radius; x += spacing {
				p := vecmath.New(x, y, z)
				if p.Sub(center).Length() <= radius {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

func TestScalarFieldMesherProducesSurface(t *testing.T) {
	positions := sphereParticles(vecmath.New(0.5, 0.5, 0.5), 0.2, 0.025)
	domain := mesh.NewAABB(vecmath.Vec3{}, 1, 1, 1)

	m := ScalarFieldMesher{}.Mesh(positions, 0.05, domain, 0.05, 1)
	if len(m.Triangles) == 0 {
		t.Fatal("mesher produced no triangles for a particle ball")
	}

	// All vertices sit near the sphere surface.
	for _, v := range m.Vertices {
		r := v.Sub(vecmath.New(0.5, 0.5, 0.5)).Length()
		if r < 0.05 || r > 0.4 {
			t.Fatalf("vertex at radius %v, expected a shell around 0.2-0.25", r)
		}
	}
}

func TestMesherSlicesMatchSinglePass(t *testing.T) {
	positions := sphereParticles(vecmath.New(0.5, 0.5, 0.5), 0.2, 0.03)
	domain := mesh.NewAABB(vecmath.Vec3{}, 1, 1, 1)

	one := ScalarFieldMesher{}.Mesh(positions, 0.05, domain, 0.05, 1)
	four := ScalarFieldMesher{}.Mesh(positions, 0.05, domain, 0.05, 4)

	if len(one.Triangles) != len(four.Triangles) {
		t.Errorf("slice counts changed the surface: %d vs %d triangles",
			len(one.Triangles), len(four.Triangles))
	}
}

func TestEncodeBOBJ(t *testing.T) {
	m := mesh.Box(mesh.NewAABB(vecmath.Vec3{}, 1, 1, 1))
	data := EncodeMesh(m, FormatBOBJ)

	r := bytes.NewReader(data)
	var nVerts int32
	binary.Read(r, binary.LittleEndian, &nVerts)
	if nVerts != 8 {
		t.Fatalf("vertex count = %d, want 8", nVerts)
	}
	wantLen := 4 + 8*12 + 4 + 12*12
	if len(data) != wantLen {
		t.Errorf("buffer length = %d, want %d", len(data), wantLen)
	}
}

func TestEncodePLYHeader(t *testing.T) {
	m := mesh.Box(mesh.NewAABB(vecmath.Vec3{}, 1, 1, 1))
	data := EncodeMesh(m, FormatPLY)

	if !bytes.HasPrefix(data, []byte("ply\n")) {
		t.Fatal("missing ply magic")
	}
	if !bytes.Contains(data, []byte("element vertex 8")) {
		t.Error("missing vertex element declaration")
	}
	if !bytes.Contains(data, []byte("element face 12")) {
		t.Error("missing face element declaration")
	}
}

func testSnapshot() *Snapshot {
	cfg := config.Default()
	cfg.Grid.ISize, cfg.Grid.JSize, cfg.Grid.KSize = 10, 10, 10
	cfg.Grid.DX = 0.1
	cfg.ComputeDerived()

	positions := sphereParticles(vecmath.New(0.5, 0.5, 0.5), 0.2, 0.04)
	velocities := make([]vecmath.Vec3, len(positions))
	ids := make([]uint16, len(positions))
	for i := range ids {
		ids[i] = uint16(i * 37 % 65536)
	}

	return &Snapshot{
		Frame:      1,
		FrameDT:    1.0 / 30,
		DX:         0.1,
		Domain:     mesh.NewAABB(vecmath.Vec3{}, 1, 1, 1),
		Positions:  positions,
		Velocities: velocities,
		IDs:        ids,
		Velocity:   grid.NewMACVelocityField(10, 10, 10, 0.1),
		Cfg:        *cfg,
	}
}

func TestGenerateFrameSurface(t *testing.T) {
	s := testSnapshot()
	fd := GenerateFrame(s, ScalarFieldMesher{})

	if len(fd.SurfaceData) == 0 {
		t.Fatal("empty surface buffer")
	}
	if fd.SurfaceTriangleCount == 0 || fd.SurfaceVertexCount == 0 {
		t.Error("zero mesh counts")
	}
	if fd.TotalBytes() < len(fd.SurfaceData) {
		t.Error("TotalBytes undercounts")
	}
}

func TestGenerateFrameDeterministic(t *testing.T) {
	a := GenerateFrame(testSnapshot(), ScalarFieldMesher{})
	b := GenerateFrame(testSnapshot(), ScalarFieldMesher{})
	if !bytes.Equal(a.SurfaceData, b.SurfaceData) {
		t.Error("surface buffers differ between identical snapshots")
	}
}

func TestFluidParticleFFP3Buckets(t *testing.T) {
	s := testSnapshot()
	s.Cfg.FluidParticle.Enabled = true
	s.Cfg.FluidParticle.OutputAmount = 1.0

	data := generateFluidParticleData(s, &s.Cfg)
	if len(data) == 0 {
		t.Fatal("empty FFP3 buffer")
	}

	r := bytes.NewReader(data)
	var counts [3]int32
	binary.Read(r, binary.LittleEndian, &counts)
	total := int(counts[0] + counts[1] + counts[2])
	if total != len(s.Positions) {
		t.Errorf("bucket total = %d, want %d", total, len(s.Positions))
	}
	// Remaining bytes hold the positions.
	want := 12 + total*12
	if len(data) != want {
		t.Errorf("buffer = %d bytes, want %d", len(data), want)
	}
}

func TestFluidParticleIDTruncation(t *testing.T) {
	s := testSnapshot()
	s.Cfg.FluidParticle.Enabled = true
	s.Cfg.FluidParticle.OutputAmount = 0.25

	data := generateFluidParticleData(s, &s.Cfg)
	r := bytes.NewReader(data)
	var counts [3]int32
	binary.Read(r, binary.LittleEndian, &counts)
	total := int(counts[0] + counts[1] + counts[2])
	if total >= len(s.Positions) {
		t.Errorf("truncation kept all %d particles", total)
	}
}

func TestWhitewaterBuffers(t *testing.T) {
	s := testSnapshot()
	s.Cfg.Attributes.Whitewater.SingleFile = true
	s.Cfg.Attributes.Whitewater.Lifetime = true
	s.Whitewater = []WhitewaterParticle{
		{Position: vecmath.New(0.5, 0.6, 0.5), Type: 0, Lifetime: 1, ID: 3},
		{Position: vecmath.New(0.4, 0.6, 0.5), Type: 2, Lifetime: 2, ID: 4},
	}

	fd := &FrameData{}
	generateWhitewaterBuffers(fd, s, &s.Cfg)

	r := bytes.NewReader(fd.WhitewaterData)
	var counts [4]int32
	binary.Read(r, binary.LittleEndian, &counts)
	if counts[0] != 1 || counts[2] != 1 {
		t.Errorf("type counts = %v, want foam=1 spray=1", counts)
	}
	if len(fd.WhitewaterLifetimeData) == 0 {
		t.Error("lifetime stream missing")
	}
}

func TestBoostSaturation(t *testing.T) {
	c := vecmath.New(0.8, 0.5, 0.5)
	boosted := boostSaturation(c, 1.0)
	// Saturation increases: the spread between max and min channel
	// grows relative to max.
	origSat := (0.8 - 0.5) / 0.8
	newSat := float64((boosted.X - boosted.Y) / boosted.X)
	if newSat <= float64(origSat) {
		t.Errorf("saturation %v not boosted above %v", newSat, origSat)
	}
	// Grey stays grey.
	grey := vecmath.New(0.5, 0.5, 0.5)
	if boostSaturation(grey, 1.0) != grey {
		t.Error("grey should be unchanged")
	}
}
