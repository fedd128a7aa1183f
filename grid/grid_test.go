package grid

import (
	"math"
	"testing"

	"github.com/pthm-cable/riptide/vecmath"
)

func TestArray3DIndexing(t *testing.T) {
	a := NewArray3D[int](4, 3, 2)
	a.Set(3, 2, 1, 42)
	if got := a.Get(3, 2, 1); got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
	if a.NumElements() != 24 {
		t.Errorf("NumElements = %d, want 24", a.NumElements())
	}

	idx := a.FlatIndex(3, 2, 1)
	if got := a.IndexFromFlat(idx); got != (Index{3, 2, 1}) {
		t.Errorf("IndexFromFlat = %v", got)
	}
}

func TestArray3DOutOfRange(t *testing.T) {
	a := NewArray3D[float32](2, 2, 2)
	if _, err := a.GetChecked(2, 0, 0); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic from Set out of range")
		}
	}()
	a.Set(-1, 0, 0, 1)
}

func TestSplitRangeIntoIntervals(t *testing.T) {
	tests := []struct {
		n, intervals int
		wantChunks   int
	}{
		{10, 4, 4},
		{3, 4, 3},
		{0, 4, 0},
		{100, 1, 1},
	}
	for _, tt := range tests {
		got := SplitRangeIntoIntervals(tt.n, tt.intervals)
		if len(got) != tt.wantChunks {
			t.Errorf("SplitRange(%d,%d) chunks = %d, want %d",
				tt.n, tt.intervals, len(got), tt.wantChunks)
		}
		covered := 0
		for _, iv := range got {
			covered += iv[1] - iv[0]
		}
		if covered != tt.n {
			t.Errorf("SplitRange(%d,%d) covers %d elements", tt.n, tt.intervals, covered)
		}
	}
}

func TestScalarFieldInterpolation(t *testing.T) {
	f := NewScalarField(3, 3, 3, 1.0)
	// Linear ramp in x: value = i.
	f.ForEachIndex(func(i, j, k int) {
		f.Set(i, j, k, float32(i))
	})

	if got := f.TrilinearInterpolate(vecmath.New(0.5, 0.5, 0.5)); math.Abs(float64(got-0.5)) > 1e-5 {
		t.Errorf("interpolated = %v, want 0.5", got)
	}
	// Out of range clamps to the nearest sample.
	if got := f.TrilinearInterpolate(vecmath.New(-10, 0, 0)); got != 0 {
		t.Errorf("clamped low = %v, want 0", got)
	}
	if got := f.TrilinearInterpolate(vecmath.New(100, 0, 0)); got != 2 {
		t.Errorf("clamped high = %v, want 2", got)
	}
}

func TestTrilinearWeightsSumToOne(t *testing.T) {
	w := TrilinearWeights(0.3, 0.7, 0.2)
	sum := float32(0)
	for _, v := range w {
		sum += v
	}
	if math.Abs(float64(sum-1)) > 1e-6 {
		t.Errorf("weights sum to %v", sum)
	}
}

func TestTrilinearWeightGradientsSumToZero(t *testing.T) {
	g := TrilinearWeightGradients(0.3, 0.7, 0.2, 0.5)
	var sum vecmath.Vec3
	for _, v := range g {
		sum = sum.Add(v)
	}
	if sum.Length() > 1e-5 {
		t.Errorf("gradient sum = %v, want zero", sum)
	}
}

func TestMACVelocityEvaluate(t *testing.T) {
	m := NewMACVelocityField(4, 4, 4, 1.0)
	m.U.Fill(2)
	m.V.Fill(-1)
	m.W.Fill(0.5)

	v := m.EvaluateVelocityAtPosition(vecmath.New(2, 2, 2))
	if v != vecmath.New(2, -1, 0.5) {
		t.Errorf("velocity = %v", v)
	}

	want := float32(math.Sqrt(4 + 1 + 0.25))
	if got := m.EvaluateMaxVelocityMagnitude(); math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("max magnitude = %v, want %v", got, want)
	}
}

func TestExtrapolateLayersBFS(t *testing.T) {
	f := NewArray3D[float32](5, 1, 1)
	valid := NewArray3D[bool](5, 1, 1)
	f.Set(2, 0, 0, 10)
	valid.Set(2, 0, 0, true)

	ExtrapolateLayers(f, valid, 2)

	// Breadth-first nearest-valid assignment: two layers reach every
	// sample of the row and copy the single valid value.
	for i := 0; i < 5; i++ {
		if got := f.Get(i, 0, 0); got != 10 {
			t.Errorf("f[%d] = %v, want 10", i, got)
		}
		if !valid.Get(i, 0, 0) {
			t.Errorf("valid[%d] = false after extrapolation", i)
		}
	}
}

func TestExtrapolateDeterministic(t *testing.T) {
	build := func() (*Array3D[float32], *Array3D[bool]) {
		f := NewArray3D[float32](8, 8, 8)
		valid := NewArray3D[bool](8, 8, 8)
		f.Set(1, 2, 3, 5)
		valid.Set(1, 2, 3, true)
		f.Set(6, 6, 6, -3)
		valid.Set(6, 6, 6, true)
		return f, valid
	}
	f1, v1 := build()
	f2, v2 := build()
	ExtrapolateLayers(f1, v1, 4)
	ExtrapolateLayers(f2, v2, 4)
	for i, val := range f1.Data() {
		if f2.Data()[i] != val {
			t.Fatalf("extrapolation not deterministic at %d", i)
		}
	}
}

func TestFractionInside2D(t *testing.T) {
	tests := []struct {
		name           string
		bl, br, tl, tr float32
		want           float32
		tol            float32
	}{
		{"all inside", -1, -1, -1, -1, 1, 0},
		{"all outside", 1, 1, 1, 1, 0, 0},
		{"half inside", -1, 1, -1, 1, 0.5, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FractionInside2D(tt.bl, tt.br, tt.tl, tt.tr)
			if math.Abs(float64(got-tt.want)) > float64(tt.tol) {
				t.Errorf("FractionInside2D = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParticleMaskGrid(t *testing.T) {
	g := NewParticleMaskGrid(4, 4, 4, 1.0)
	p := vecmath.New(0.25, 0.25, 0.25)

	if g.IsSubCellSet(p) {
		t.Error("fresh grid should be empty")
	}
	g.AddParticle(p)
	if !g.IsSubCellSet(p) {
		t.Error("sub-cell should be occupied after AddParticle")
	}
	// A different octant of the same cell stays free.
	if g.IsSubCellSet(vecmath.New(0.75, 0.25, 0.25)) {
		t.Error("other octant should be free")
	}
	// Out-of-range positions report occupied.
	if !g.IsSubCellSet(vecmath.New(-1, 0, 0)) {
		t.Error("out-of-range should report occupied")
	}
}

func TestSubCellPositionsInsideCell(t *testing.T) {
	g := NewParticleMaskGrid(4, 4, 4, 0.5)
	for bit, p := range g.SubCellPositions(1, 2, 3) {
		if int(p.X/0.5) != 1 || int(p.Y/0.5) != 2 || int(p.Z/0.5) != 3 {
			t.Errorf("candidate %d at %v escapes cell (1,2,3)", bit, p)
		}
	}
}

func TestNearSolidGrid(t *testing.T) {
	g := NewNearSolidGrid(8, 8, 8, 2)
	g.MarkNearSolid(4, 4, 4)
	if !g.IsNearSolid(5, 5, 5) {
		t.Error("coarse cell should cover neighbors")
	}
	if g.IsNearSolid(0, 0, 0) {
		t.Error("unmarked region reports near-solid")
	}
	if !g.IsNearSolid(-1, 0, 0) {
		t.Error("out-of-range should report near-solid")
	}
}

func TestCurlOfRigidRotation(t *testing.T) {
	// v = (-z, 0, x) has curl (0, -2, 0).
	m := NewMACVelocityField(8, 8, 8, 1.0)
	for k := 0; k < 8; k++ {
		for j := 0; j < 8; j++ {
			for i := 0; i < 9; i++ {
				p := m.FaceUPosition(i, j, k)
				m.U.Set(i, j, k, -p.Z)
			}
		}
	}
	for k := 0; k < 9; k++ {
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				p := m.FaceWPosition(i, j, k)
				m.W.Set(i, j, k, p.X)
			}
		}
	}

	curl := GenerateCurlAtCellCenter(m)
	got := curl.Get(4, 4, 4)
	if math.Abs(float64(got.Y+2)) > 0.1 || math.Abs(float64(got.X)) > 0.1 || math.Abs(float64(got.Z)) > 0.1 {
		t.Errorf("curl = %v, want (0,-2,0)", got)
	}
}

func TestCoarseScalarField(t *testing.T) {
	f := NewScalarField(4, 4, 4, 1.0)
	f.Fill(3)
	c := CoarseScalarField(f)
	if c.ISize != 2 || c.JSize != 2 || c.KSize != 2 {
		t.Fatalf("coarse dims = %dx%dx%d", c.ISize, c.JSize, c.KSize)
	}
	if c.DX != 2 {
		t.Errorf("coarse dx = %v", c.DX)
	}
	if got := c.Get(1, 1, 1); got != 3 {
		t.Errorf("coarse value = %v, want 3", got)
	}
}
