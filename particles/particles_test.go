package particles

import (
	"errors"
	"testing"

	"github.com/pthm-cable/riptide/vecmath"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	s := NewSystem()
	if _, err := s.AddAttributeVector3(AttrPosition, vecmath.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddAttributeVector3(AttrVelocity, vecmath.Vec3{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddAttributeFloat(AttrAge, 0); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestColumnsShareLength(t *testing.T) {
	s := newTestSystem(t)

	positions := s.ValuesVector3(AttrPosition)
	for i := 0; i < 5; i++ {
		*positions = append(*positions, vecmath.New(float32(i), 0, 0))
	}
	s.Update()

	if s.Size() != 5 {
		t.Fatalf("Size = %d, want 5", s.Size())
	}
	if got := len(*s.ValuesVector3(AttrVelocity)); got != 5 {
		t.Errorf("velocity column length = %d, want 5", got)
	}
	if got := len(*s.ValuesFloat(AttrAge)); got != 5 {
		t.Errorf("age column length = %d, want 5", got)
	}
}

func TestAttributeRedefined(t *testing.T) {
	s := newTestSystem(t)
	if _, err := s.AddAttributeFloat(AttrPosition, 0); !errors.Is(err, ErrAttributeRedefined) {
		t.Errorf("redefining with different type: err = %v, want ErrAttributeRedefined", err)
	}
	// Same type re-registration returns the existing handle.
	a, err := s.AddAttributeVector3(AttrPosition, vecmath.Vec3{})
	if err != nil {
		t.Fatalf("same-type re-add failed: %v", err)
	}
	if a.Name != AttrPosition {
		t.Errorf("handle name = %q", a.Name)
	}
}

func TestRemoveParticlesPreservesOrder(t *testing.T) {
	s := newTestSystem(t)
	positions := s.ValuesVector3(AttrPosition)
	ages := s.ValuesFloat(AttrAge)
	for i := 0; i < 6; i++ {
		*positions = append(*positions, vecmath.New(float32(i), 0, 0))
		*ages = append(*ages, float32(i))
	}
	s.Update()

	// Remove slots 1 and 4.
	s.RemoveParticles([]bool{false, true, false, false, true, false})

	if s.Size() != 4 {
		t.Fatalf("Size = %d, want 4", s.Size())
	}
	wantAges := []float32{0, 2, 3, 5}
	gotAges := *s.ValuesFloat(AttrAge)
	for i, want := range wantAges {
		if gotAges[i] != want {
			t.Errorf("ages[%d] = %v, want %v", i, gotAges[i], want)
		}
		if (*s.ValuesVector3(AttrPosition))[i].X != want {
			t.Errorf("positions[%d].X = %v, want %v", i, (*s.ValuesVector3(AttrPosition))[i].X, want)
		}
	}
}

func TestUpdatePadsShortColumns(t *testing.T) {
	s := newTestSystem(t)
	positions := s.ValuesVector3(AttrPosition)
	*positions = append(*positions, vecmath.New(1, 2, 3), vecmath.New(4, 5, 6))
	s.Update()

	ages := *s.ValuesFloat(AttrAge)
	if len(ages) != 2 || ages[0] != 0 || ages[1] != 0 {
		t.Errorf("ages = %v, want two defaults", ages)
	}
}

func TestMergeAndEmptyCopy(t *testing.T) {
	a := newTestSystem(t)
	*a.ValuesVector3(AttrPosition) = append(*a.ValuesVector3(AttrPosition), vecmath.New(1, 0, 0))
	a.Update()

	b := a.GenerateEmptyCopy()
	if !a.IsSchemaEqual(b) {
		t.Fatal("empty copy schema differs")
	}
	*b.ValuesVector3(AttrPosition) = append(*b.ValuesVector3(AttrPosition), vecmath.New(2, 0, 0))
	b.Update()

	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}
	if a.Size() != 2 {
		t.Errorf("merged size = %d, want 2", a.Size())
	}

	c := NewSystem()
	c.AddAttributeFloat("OTHER", 0)
	if err := a.Merge(c); err == nil {
		t.Error("merging mismatched schema should fail")
	}
}

func TestReserve(t *testing.T) {
	s := newTestSystem(t)
	s.Reserve(100)
	if got := cap(*s.ValuesVector3(AttrPosition)); got < 100 {
		t.Errorf("position capacity = %d, want >= 100", got)
	}
	if s.Size() != 0 {
		t.Errorf("Reserve changed size to %d", s.Size())
	}
}
