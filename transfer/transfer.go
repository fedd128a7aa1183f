// Package transfer implements the particle↔grid velocity transfer: the
// PIC/FLIP/APIC particle-to-grid splat and the grid-to-particle velocity
// update.
package transfer

import (
	"sync"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/vecmath"
)

// Method selects the velocity transfer formulation.
type Method int

const (
	// MethodFLIP splats raw particle velocities and updates particles
	// with a PIC/FLIP delta blend.
	MethodFLIP Method = iota
	// MethodAPIC additionally carries a per-particle affine velocity
	// matrix (Jiang/Kim formulation).
	MethodAPIC
)

func (m Method) String() string {
	if m == MethodAPIC {
		return "APIC"
	}
	return "FLIP"
}

// massEps is the minimum deposited kernel mass for a face sample to be
// marked valid after the splat.
const massEps = 1e-9

// ParticleData bundles the particle columns the transfer reads and
// writes. AffineX/Y/Z are only consulted for MethodAPIC.
type ParticleData struct {
	Positions  []vecmath.Vec3
	Velocities []vecmath.Vec3
	AffineX    []vecmath.Vec3
	AffineY    []vecmath.Vec3
	AffineZ    []vecmath.Vec3
}

// staggeredBarycentric locates p within a staggered component array.
// off* are the component's sample offsets in cell units.
func staggeredBarycentric(a *grid.Array3D[float32], dx, offx, offy, offz float32, p vecmath.Vec3) (i, j, k int, tx, ty, tz float32) {
	inv := 1.0 / dx
	gx := vecmath.Clamp(p.X*inv-offx, 0, float32(a.ISize-1))
	gy := vecmath.Clamp(p.Y*inv-offy, 0, float32(a.JSize-1))
	gz := vecmath.Clamp(p.Z*inv-offz, 0, float32(a.KSize-1))

	i, j, k = int(gx), int(gy), int(gz)
	if i > a.ISize-2 {
		i = a.ISize - 2
	}
	if j > a.JSize-2 {
		j = a.JSize - 2
	}
	if k > a.KSize-2 {
		k = a.KSize - 2
	}
	if i < 0 {
		i = 0
	}
	if j < 0 {
		j = 0
	}
	if k < 0 {
		k = 0
	}
	tx = vecmath.Clamp(gx-float32(i), 0, 1)
	ty = vecmath.Clamp(gy-float32(j), 0, 1)
	tz = vecmath.Clamp(gz-float32(k), 0, 1)
	return
}

var faceOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// componentScratch accumulates kernel-weighted velocity and mass for one
// staggered component.
type componentScratch struct {
	sum  *grid.Array3D[float32]
	mass *grid.Array3D[float32]
}

func newComponentScratch(isize, jsize, ksize int) componentScratch {
	return componentScratch{
		sum:  grid.NewArray3D[float32](isize, jsize, ksize),
		mass: grid.NewArray3D[float32](isize, jsize, ksize),
	}
}

func (s *componentScratch) merge(o componentScratch) {
	sd, od := s.sum.Data(), o.sum.Data()
	for i := range sd {
		sd[i] += od[i]
	}
	md, omd := s.mass.Data(), o.mass.Data()
	for i := range md {
		md[i] += omd[i]
	}
}

type splatScratch struct {
	u, v, w componentScratch
}

func newSplatScratch(isize, jsize, ksize int) *splatScratch {
	return &splatScratch{
		u: newComponentScratch(isize+1, jsize, ksize),
		v: newComponentScratch(isize, jsize+1, ksize),
		w: newComponentScratch(isize, jsize, ksize+1),
	}
}

// splatComponent deposits one velocity component of particles [start,end)
// into scratch. For APIC the affine row contributes C_p·(x_face − x_p).
func splatComponent(
	d ParticleData, start, end int,
	s componentScratch, dx, offx, offy, offz float32,
	axis int, affine []vecmath.Vec3,
	facePos func(i, j, k int) vecmath.Vec3,
) {
	for pi := start; pi < end; pi++ {
		p := d.Positions[pi]
		var vel float32
		switch axis {
		case 0:
			vel = d.Velocities[pi].X
		case 1:
			vel = d.Velocities[pi].Y
		default:
			vel = d.Velocities[pi].Z
		}

		i, j, k, tx, ty, tz := staggeredBarycentric(s.sum, dx, offx, offy, offz, p)
		weights := grid.TrilinearWeights(tx, ty, tz)

		for n, off := range faceOffsets {
			fi, fj, fk := i+off[0], j+off[1], k+off[2]
			wgt := weights[n]
			if wgt <= 0 {
				continue
			}
			value := vel
			if affine != nil {
				value += affine[pi].Dot(facePos(fi, fj, fk).Sub(p))
			}
			*s.sum.At(fi, fj, fk) += wgt * value
			*s.mass.At(fi, fj, fk) += wgt
		}
	}
}

// ParticlesToGrid splats particle velocities onto the MAC field and fills
// the valid mask where kernel mass exceeds the epsilon. Faces with no
// deposits are zeroed and left invalid for extrapolation. numWorkers > 1
// chunks the particle range with per-worker scratch grids merged after
// the join, so face writes stay race-free.
func ParticlesToGrid(
	d ParticleData, field *grid.MACVelocityField, valid *grid.ValidVelocityGrid,
	method Method, numWorkers int,
) {
	isize, jsize, ksize := field.ISize, field.JSize, field.KSize
	dx := field.DX

	var ax, ay, az []vecmath.Vec3
	if method == MethodAPIC {
		ax, ay, az = d.AffineX, d.AffineY, d.AffineZ
	}

	n := len(d.Positions)
	if numWorkers < 1 {
		numWorkers = 1
	}
	intervals := grid.SplitRangeIntoIntervals(n, numWorkers)

	scratches := make([]*splatScratch, len(intervals))
	var wg sync.WaitGroup
	for w, iv := range intervals {
		scratches[w] = newSplatScratch(isize, jsize, ksize)
		wg.Add(1)
		go func(s *splatScratch, start, end int) {
			defer wg.Done()
			splatComponent(d, start, end, s.u, dx, 0.0, 0.5, 0.5, 0, ax, field.FaceUPosition)
			splatComponent(d, start, end, s.v, dx, 0.5, 0.0, 0.5, 1, ay, field.FaceVPosition)
			splatComponent(d, start, end, s.w, dx, 0.5, 0.5, 0.0, 2, az, field.FaceWPosition)
		}(scratches[w], iv[0], iv[1])
	}
	wg.Wait()

	total := newSplatScratch(isize, jsize, ksize)
	for _, s := range scratches {
		total.u.merge(s.u)
		total.v.merge(s.v)
		total.w.merge(s.w)
	}

	normalize := func(s componentScratch, dst *grid.Array3D[float32], validDst *grid.Array3D[bool]) {
		sumData := s.sum.Data()
		massData := s.mass.Data()
		dstData := dst.Data()
		validData := validDst.Data()
		for i := range dstData {
			if massData[i] > massEps {
				dstData[i] = sumData[i] / massData[i]
				validData[i] = true
			} else {
				dstData[i] = 0
				validData[i] = false
			}
		}
	}
	normalize(total.u, field.U, valid.ValidU)
	normalize(total.v, field.V, valid.ValidV)
	normalize(total.w, field.W, valid.ValidW)
}

// FLIPBlend updates particle velocities with the PIC/FLIP blend
// v = r·v_grid + (1−r)·(v_old + (v_grid − v_saved)). r = 1 is pure PIC.
func FLIPBlend(
	d ParticleData, field, saved *grid.MACVelocityField, ratio float32,
) {
	for pi := range d.Positions {
		p := d.Positions[pi]
		vGrid := field.EvaluateVelocityAtPosition(p)
		vSaved := saved.EvaluateVelocityAtPosition(p)
		vFLIP := d.Velocities[pi].Add(vGrid.Sub(vSaved))
		d.Velocities[pi] = vGrid.Scale(ratio).Add(vFLIP.Scale(1 - ratio))
	}
}

// APICUpdate sets particle velocities to the grid interpolation and
// recomputes the affine rows from the analytic trilinear basis gradients
// of the surrounding face samples.
func APICUpdate(d ParticleData, field *grid.MACVelocityField) {
	dx := field.DX
	for pi := range d.Positions {
		p := d.Positions[pi]
		d.Velocities[pi] = field.EvaluateVelocityAtPosition(p)
		d.AffineX[pi] = affineRow(field.U, dx, 0.0, 0.5, 0.5, p)
		d.AffineY[pi] = affineRow(field.V, dx, 0.5, 0.0, 0.5, p)
		d.AffineZ[pi] = affineRow(field.W, dx, 0.5, 0.5, 0.0, p)
	}
}

// affineRow computes Σ ∇w_n · q_n over the eight face samples of one
// staggered component around p.
func affineRow(a *grid.Array3D[float32], dx, offx, offy, offz float32, p vecmath.Vec3) vecmath.Vec3 {
	i, j, k, tx, ty, tz := staggeredBarycentric(a, dx, offx, offy, offz, p)
	grads := grid.TrilinearWeightGradients(tx, ty, tz, dx)

	var row vecmath.Vec3
	for n, off := range faceOffsets {
		q := a.Get(i+off[0], j+off[1], k+off[2])
		row = row.Add(grads[n].Scale(q))
	}
	return row
}

// EvaluateAffineVelocity reconstitutes the APIC velocity of a particle at
// sample position x: v_p + C_p·(x − x_p).
func EvaluateAffineVelocity(velocity, ax, ay, az, xp, x vecmath.Vec3) vecmath.Vec3 {
	c := vecmath.Mat3{Rows: [3]vecmath.Vec3{ax, ay, az}}
	return velocity.Add(c.MulVec(x.Sub(xp)))
}
