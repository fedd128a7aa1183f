package grid

import "github.com/pthm-cable/riptide/vecmath"

// ParticleMaskGrid tracks which of the eight ±dx/4 sub-cell candidate
// positions of each cell are occupied. Inflow emission and sheet seeding
// consult it so a sub-cell never receives two particles.
type ParticleMaskGrid struct {
	ISize, JSize, KSize int
	DX                  float32
	mask                *Array3D[uint8]
}

// NewParticleMaskGrid creates an empty mask grid.
func NewParticleMaskGrid(isize, jsize, ksize int, dx float32) *ParticleMaskGrid {
	return &ParticleMaskGrid{
		ISize: isize, JSize: jsize, KSize: ksize, DX: dx,
		mask: NewArray3D[uint8](isize, jsize, ksize),
	}
}

// Reset clears all occupancy bits.
func (g *ParticleMaskGrid) Reset() {
	g.mask.Fill(0)
}

// subcell locates the cell and octant bit for a world position.
func (g *ParticleMaskGrid) subcell(p vecmath.Vec3) (i, j, k int, bit uint8, ok bool) {
	if p.X < 0 || p.Y < 0 || p.Z < 0 {
		return 0, 0, 0, 0, false
	}
	inv := 1.0 / g.DX
	i = int(p.X * inv)
	j = int(p.Y * inv)
	k = int(p.Z * inv)
	if !g.mask.IsIndexInRange(i, j, k) {
		return 0, 0, 0, 0, false
	}
	bit = 0
	if p.X*inv-float32(i) >= 0.5 {
		bit |= 1
	}
	if p.Y*inv-float32(j) >= 0.5 {
		bit |= 2
	}
	if p.Z*inv-float32(k) >= 0.5 {
		bit |= 4
	}
	return i, j, k, bit, true
}

// IsSubCellSet reports whether the octant containing p is occupied.
// Positions outside the grid report occupied so callers skip them.
func (g *ParticleMaskGrid) IsSubCellSet(p vecmath.Vec3) bool {
	i, j, k, bit, ok := g.subcell(p)
	if !ok {
		return true
	}
	return g.mask.Get(i, j, k)&(1<<bit) != 0
}

// AddParticle marks the octant containing p as occupied.
func (g *ParticleMaskGrid) AddParticle(p vecmath.Vec3) {
	i, j, k, bit, ok := g.subcell(p)
	if !ok {
		return
	}
	*g.mask.At(i, j, k) |= 1 << bit
}

// AddParticles marks every position in ps.
func (g *ParticleMaskGrid) AddParticles(ps []vecmath.Vec3) {
	for _, p := range ps {
		g.AddParticle(p)
	}
}

// SubCellPositions returns the eight ±dx/4 candidate positions of cell
// (i,j,k), in octant-bit order.
func (g *ParticleMaskGrid) SubCellPositions(i, j, k int) [8]vecmath.Vec3 {
	q := 0.25 * g.DX
	cx := (float32(i) + 0.5) * g.DX
	cy := (float32(j) + 0.5) * g.DX
	cz := (float32(k) + 0.5) * g.DX
	var out [8]vecmath.Vec3
	for bit := 0; bit < 8; bit++ {
		dx, dy, dz := -q, -q, -q
		if bit&1 != 0 {
			dx = q
		}
		if bit&2 != 0 {
			dy = q
		}
		if bit&4 != 0 {
			dz = q
		}
		out[bit] = vecmath.Vec3{X: cx + dx, Y: cy + dy, Z: cz + dz}
	}
	return out
}

// NearSolidGrid marks, at a coarser resolution, the cells close enough to
// a solid that particle collision resolution must run there.
type NearSolidGrid struct {
	Factor int
	cells  *Array3D[bool]
}

// NewNearSolidGrid creates a cleared grid; factor is the coarsening
// divisor applied to cell indices.
func NewNearSolidGrid(isize, jsize, ksize, factor int) *NearSolidGrid {
	if factor < 1 {
		factor = 1
	}
	ci := (isize + factor - 1) / factor
	cj := (jsize + factor - 1) / factor
	ck := (ksize + factor - 1) / factor
	return &NearSolidGrid{
		Factor: factor,
		cells:  NewArray3D[bool](ci, cj, ck),
	}
}

// Reset clears all marks.
func (g *NearSolidGrid) Reset() {
	g.cells.Fill(false)
}

// MarkNearSolid marks the coarse cell containing fine cell (i,j,k).
func (g *NearSolidGrid) MarkNearSolid(i, j, k int) {
	ci, cj, ck := i/g.Factor, j/g.Factor, k/g.Factor
	if g.cells.IsIndexInRange(ci, cj, ck) {
		g.cells.Set(ci, cj, ck, true)
	}
}

// IsNearSolid reports whether fine cell (i,j,k) lies in a marked region.
// Out-of-range cells report true so boundary particles are always checked.
func (g *NearSolidGrid) IsNearSolid(i, j, k int) bool {
	if i < 0 || j < 0 || k < 0 {
		return true
	}
	ci, cj, ck := i/g.Factor, j/g.Factor, k/g.Factor
	if !g.cells.IsIndexInRange(ci, cj, ck) {
		return true
	}
	return g.cells.Get(ci, cj, ck)
}
