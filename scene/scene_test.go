package scene

import (
	"errors"
	"testing"

	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

func testBoxObject() *MeshObject {
	return NewMeshObject(mesh.Box(mesh.NewAABB(vecmath.New(0.4, 0.4, 0.4), 0.2, 0.2, 0.2)))
}

func TestObstacleRegistryDuplicates(t *testing.T) {
	m := NewSolidSDFManager(10, 10, 10, 0.1)
	o := testBoxObject()

	if err := m.AddObstacle(o); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := m.AddObstacle(o); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second add: err = %v, want ErrDuplicate", err)
	}
	if err := m.RemoveObstacle(o); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := m.RemoveObstacle(o); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}
}

func TestComposeSolidSDFBoundaryWalls(t *testing.T) {
	m := NewSolidSDFManager(10, 10, 10, 0.1)
	sdf := m.ComposeSolidSDF(0)

	// The outermost cell layer is solid on closed sides.
	if phi := sdf.TrilinearInterpolate(vecmath.New(0.05, 0.5, 0.5)); phi >= 0 {
		t.Errorf("wall layer phi = %v, want negative", phi)
	}
	// The domain interior is open.
	if phi := sdf.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5)); phi <= 0 {
		t.Errorf("interior phi = %v, want positive", phi)
	}
}

func TestComposeSolidSDFObstacle(t *testing.T) {
	m := NewSolidSDFManager(10, 10, 10, 0.1)
	if err := m.AddObstacle(testBoxObject()); err != nil {
		t.Fatal(err)
	}
	sdf := m.ComposeSolidSDF(0)
	if phi := sdf.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5)); phi >= 0 {
		t.Errorf("obstacle center phi = %v, want negative", phi)
	}
}

func TestStaticSDFCacheInvalidation(t *testing.T) {
	m := NewSolidSDFManager(10, 10, 10, 0.1)
	o := testBoxObject()
	m.AddObstacle(o)

	first := m.ComposeSolidSDF(0)
	// No state change: compose returns the cached field.
	second := m.ComposeSolidSDF(0)
	if first != second {
		t.Error("unchanged static scene should reuse the cached SDF")
	}

	// Moving the obstacle invalidates the cache.
	o.UpdateMeshStatic(mesh.Box(mesh.NewAABB(vecmath.New(0.1, 0.1, 0.1), 0.2, 0.2, 0.2)))
	third := m.ComposeSolidSDF(0)
	if phi := third.TrilinearInterpolate(vecmath.New(0.2, 0.2, 0.2)); phi >= 0 {
		t.Errorf("moved obstacle phi = %v, want negative at new location", phi)
	}
}

func TestInversedObstacle(t *testing.T) {
	m := NewSolidSDFManager(10, 10, 10, 0.1)
	o := testBoxObject()
	o.Inversed = true
	m.AddObstacle(o)

	sdf := m.ComposeSolidSDF(0)
	// Inversed: inside the box is open, outside is solid.
	if phi := sdf.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5)); phi <= 0 {
		t.Errorf("inversed box interior phi = %v, want positive", phi)
	}
	if phi := sdf.TrilinearInterpolate(vecmath.New(0.2, 0.5, 0.5)); phi >= 0 {
		t.Errorf("inversed box exterior phi = %v, want negative", phi)
	}
}

func TestSourcePriorityOrdering(t *testing.T) {
	r := &SourceRegistry{}
	low := NewFluidSource(testBoxObject().current, ModeInflow)
	low.Priority = 1
	high := NewFluidSource(mesh.Box(mesh.NewAABB(vecmath.New(0.1, 0.1, 0.1), 0.2, 0.2, 0.2)), ModeInflow)
	high.Priority = 5
	out := NewFluidSource(mesh.Box(mesh.NewAABB(vecmath.New(0.7, 0.7, 0.7), 0.2, 0.2, 0.2)), ModeOutflow)

	r.Add(low)
	r.Add(high)
	r.Add(out)

	inflows := r.InflowsByPriority()
	if len(inflows) != 2 {
		t.Fatalf("inflows = %d, want 2", len(inflows))
	}
	if inflows[0] != high || inflows[1] != low {
		t.Error("inflows not in descending priority order")
	}
	if len(r.Outflows()) != 1 {
		t.Error("outflow missing from registry")
	}

	if err := r.Add(low); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate source add: err = %v", err)
	}
}

func TestSourceCells(t *testing.T) {
	src := NewFluidSource(mesh.Box(mesh.NewAABB(vecmath.New(0.3, 0.3, 0.3), 0.4, 0.4, 0.4)), ModeInflow)
	cells := src.Cells(10, 10, 10, 0.1, 0)
	if len(cells) == 0 {
		t.Fatal("no cells inside source box")
	}
	for _, c := range cells {
		center := vecmath.New(
			(float32(c.I)+0.5)*0.1, (float32(c.J)+0.5)*0.1, (float32(c.K)+0.5)*0.1)
		if center.X < 0.25 || center.X > 0.75 {
			t.Fatalf("cell %v center outside the source region", c)
		}
	}
}

func TestEmissionVelocityRigidBody(t *testing.T) {
	src := NewFluidSource(testBoxObject().current, ModeInflow)
	src.Velocity = vecmath.New(1, 0, 0)
	src.RigidBody = &RigidBodyVelocity{
		Axis:           vecmath.New(0, 1, 0),
		AngularRadians: 2,
		Centroid:       vecmath.New(0.5, 0.5, 0.5),
	}

	// At the centroid only the linear part remains.
	v := src.EmissionVelocity(vecmath.New(0.5, 0.5, 0.5))
	if v != vecmath.New(1, 0, 0) {
		t.Errorf("centroid velocity = %v, want (1,0,0)", v)
	}
	// Off-axis points gain a tangential component.
	v = src.EmissionVelocity(vecmath.New(0.7, 0.5, 0.5))
	if v.Z == 0 {
		t.Error("rigid body rotation missing tangential component")
	}
}

func TestForceFieldGrid(t *testing.T) {
	g := NewForceFieldGrid(10, 10, 10, 0.1, 2)
	if !g.IsEmpty() {
		t.Error("new grid should be empty")
	}
	g.AddForceField(&UniformForceField{Force: vecmath.New(0, -9.81, 0)})
	g.Update()

	f := g.ForceAt(vecmath.New(0.5, 0.5, 0.5))
	if f.Y >= -9 {
		t.Errorf("force = %v, want uniform gravity", f)
	}
	if g.MaxForceMagnitude() < 9 {
		t.Errorf("max force = %v", g.MaxForceMagnitude())
	}
}

func TestPointForceFieldFalloff(t *testing.T) {
	f := &PointForceField{Position: vecmath.New(0, 0, 0), Strength: 1, MinRadius: 0.1}
	near := f.ForceAt(vecmath.New(0.5, 0, 0)).Length()
	far := f.ForceAt(vecmath.New(2, 0, 0)).Length()
	if near <= far {
		t.Errorf("force should fall off with distance: near=%v far=%v", near, far)
	}
}
