package vecmath

import (
	"math"
	"testing"
)

func TestVec3Ops(t *testing.T) {
	tests := []struct {
		name string
		got  Vec3
		want Vec3
	}{
		{"add", New(1, 2, 3).Add(New(4, 5, 6)), New(5, 7, 9)},
		{"sub", New(4, 5, 6).Sub(New(1, 2, 3)), New(3, 3, 3)},
		{"scale", New(1, -2, 3).Scale(2), New(2, -4, 6)},
		{"cross x", New(0, 1, 0).Cross(New(0, 0, 1)), New(1, 0, 0)},
		{"lerp mid", New(0, 0, 0).Lerp(New(2, 4, 6), 0.5), New(1, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestDotLength(t *testing.T) {
	v := New(3, 4, 0)
	if got := v.Length(); math.Abs(float64(got-5)) > 1e-6 {
		t.Errorf("Length = %v, want 5", got)
	}
	if got := v.Dot(New(1, 0, 0)); got != 3 {
		t.Errorf("Dot = %v, want 3", got)
	}
	if got := v.Normalize().Length(); math.Abs(float64(got-1)) > 1e-6 {
		t.Errorf("normalized length = %v, want 1", got)
	}
}

func TestNormalizeZero(t *testing.T) {
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("zero normalize = %v, want zero", got)
	}
}

func TestMat3MulVec(t *testing.T) {
	m := Mat3{Rows: [3]Vec3{
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 2, Z: 0},
		{X: 0, Y: 0, Z: 3},
	}}
	got := m.MulVec(New(1, 1, 1))
	if got != New(1, 2, 3) {
		t.Errorf("MulVec = %v, want (1,2,3)", got)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		x, lo, hi, want float32
	}{
		{5, 0, 1, 1},
		{-5, 0, 1, 0},
		{0.5, 0, 1, 0.5},
	}
	for _, tt := range tests {
		if got := Clamp(tt.x, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}
