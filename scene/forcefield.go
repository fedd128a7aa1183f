package scene

import (
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/vecmath"
)

// ForceField evaluates a body force at a world position.
type ForceField interface {
	ForceAt(p vecmath.Vec3) vecmath.Vec3
}

// PointForceField attracts toward (or repels from, with negative
// strength) a point, with inverse-square falloff clamped at minRadius.
type PointForceField struct {
	Position  vecmath.Vec3
	Strength  float32
	MinRadius float32
}

// ForceAt implements ForceField.
func (f *PointForceField) ForceAt(p vecmath.Vec3) vecmath.Vec3 {
	d := f.Position.Sub(p)
	r := d.Length()
	if r < f.MinRadius {
		r = f.MinRadius
	}
	if r == 0 {
		return vecmath.Vec3{}
	}
	return d.Scale(f.Strength / (r * r * r))
}

// UniformForceField applies a constant force everywhere (gravity-style
// body forces).
type UniformForceField struct {
	Force vecmath.Vec3
}

// ForceAt implements ForceField.
func (f *UniformForceField) ForceAt(p vecmath.Vec3) vecmath.Vec3 {
	return f.Force
}

// ForceFieldGrid caches the summed field forces on a coarse grid and
// answers face-position queries by interpolation. ReductionLevel divides
// the simulation resolution; level 1 matches it.
type ForceFieldGrid struct {
	fields []ForceField
	field  *grid.VectorField

	ISize, JSize, KSize int
	DX                  float32
	ReductionLevel      int

	// Per-class force weights applied when sampling for fluid,
	// whitewater, and dust particles.
	WeightFluid      float32
	WeightWhitewater float32
	WeightDust       float32

	dirty bool
}

// NewForceFieldGrid creates an empty grid at the given reduction of the
// simulation resolution.
func NewForceFieldGrid(isize, jsize, ksize int, dx float32, reductionLevel int) *ForceFieldGrid {
	if reductionLevel < 1 {
		reductionLevel = 1
	}
	ci := maxInt(isize/reductionLevel, 1)
	cj := maxInt(jsize/reductionLevel, 1)
	ck := maxInt(ksize/reductionLevel, 1)
	cdx := dx * float32(reductionLevel)
	return &ForceFieldGrid{
		ISize: ci, JSize: cj, KSize: ck, DX: cdx,
		ReductionLevel:   reductionLevel,
		field:            grid.NewVectorField(ci, cj, ck, cdx),
		WeightFluid:      1,
		WeightWhitewater: 1,
		WeightDust:       1,
		dirty:            true,
	}
}

// AddForceField registers a field contribution.
func (g *ForceFieldGrid) AddForceField(f ForceField) {
	g.fields = append(g.fields, f)
	g.dirty = true
}

// IsEmpty reports whether no fields are registered.
func (g *ForceFieldGrid) IsEmpty() bool {
	return len(g.fields) == 0
}

// Update re-rasterizes the summed force at coarse cell centers.
func (g *ForceFieldGrid) Update() {
	if !g.dirty {
		return
	}
	half := 0.5 * g.DX
	for k := 0; k < g.KSize; k++ {
		for j := 0; j < g.JSize; j++ {
			for i := 0; i < g.ISize; i++ {
				p := vecmath.Vec3{
					X: float32(i)*g.DX + half,
					Y: float32(j)*g.DX + half,
					Z: float32(k)*g.DX + half,
				}
				var sum vecmath.Vec3
				for _, f := range g.fields {
					sum = sum.Add(f.ForceAt(p))
				}
				g.field.Set(i, j, k, sum)
			}
		}
	}
	g.dirty = false
}

// ForceAt samples the cached field at a world position.
func (g *ForceFieldGrid) ForceAt(p vecmath.Vec3) vecmath.Vec3 {
	return g.field.TrilinearInterpolate(p)
}

// MaxForceMagnitude returns the largest cached force magnitude, used by
// adaptive force-field time stepping.
func (g *ForceFieldGrid) MaxForceMagnitude() float32 {
	m := float32(0)
	for _, v := range g.field.Data() {
		if l := v.Length(); l > m {
			m = l
		}
	}
	return m
}

// ApplyToMACVelocityField integrates dt·force at every face position.
func (g *ForceFieldGrid) ApplyToMACVelocityField(field *grid.MACVelocityField, dt float32) {
	for k := 0; k < field.KSize; k++ {
		for j := 0; j < field.JSize; j++ {
			for i := 0; i < field.ISize+1; i++ {
				f := g.ForceAt(field.FaceUPosition(i, j, k))
				*field.U.At(i, j, k) += dt * f.X * g.WeightFluid
			}
		}
	}
	for k := 0; k < field.KSize; k++ {
		for j := 0; j < field.JSize+1; j++ {
			for i := 0; i < field.ISize; i++ {
				f := g.ForceAt(field.FaceVPosition(i, j, k))
				*field.V.At(i, j, k) += dt * f.Y * g.WeightFluid
			}
		}
	}
	for k := 0; k < field.KSize+1; k++ {
		for j := 0; j < field.JSize; j++ {
			for i := 0; i < field.ISize; i++ {
				f := g.ForceAt(field.FaceWPosition(i, j, k))
				*field.W.At(i, j, k) += dt * f.Z * g.WeightFluid
			}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
