package output

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pthm-cable/riptide/vecmath"
)

// particleBins is a uniform cell-binned spatial index over particle
// positions for kernel-weighted attribute gathering at mesh vertices.
type particleBins struct {
	cellSize float32
	origin   vecmath.Vec3
	ni, nj, nk int
	bins     [][]int32
}

func newParticleBins(positions []vecmath.Vec3, origin vecmath.Vec3, width, height, depth, cellSize float32) *particleBins {
	ni := int(width/cellSize) + 1
	nj := int(height/cellSize) + 1
	nk := int(depth/cellSize) + 1
	b := &particleBins{
		cellSize: cellSize,
		origin:   origin,
		ni:       ni, nj: nj, nk: nk,
		bins: make([][]int32, ni*nj*nk),
	}
	for idx, p := range positions {
		i, j, k, ok := b.cellOf(p)
		if !ok {
			continue
		}
		bi := b.binIdx(i, j, k)
		b.bins[bi] = append(b.bins[bi], int32(idx))
	}
	return b
}

func (b *particleBins) cellOf(p vecmath.Vec3) (int, int, int, bool) {
	i := int((p.X - b.origin.X) / b.cellSize)
	j := int((p.Y - b.origin.Y) / b.cellSize)
	k := int((p.Z - b.origin.Z) / b.cellSize)
	if i < 0 || j < 0 || k < 0 || i >= b.ni || j >= b.nj || k >= b.nk {
		return 0, 0, 0, false
	}
	return i, j, k, true
}

func (b *particleBins) binIdx(i, j, k int) int {
	return i + b.ni*(j+b.nj*k)
}

// forEachNeighbor visits particle indices within radius cells of p.
func (b *particleBins) forEachNeighbor(p vecmath.Vec3, radius float32, fn func(idx int32)) {
	reach := int(radius/b.cellSize) + 1
	ci, cj, ck, ok := b.cellOf(p)
	if !ok {
		return
	}
	for k := ck - reach; k <= ck+reach; k++ {
		for j := cj - reach; j <= cj+reach; j++ {
			for i := ci - reach; i <= ci+reach; i++ {
				if i < 0 || j < 0 || k < 0 || i >= b.ni || j >= b.nj || k >= b.nk {
					continue
				}
				for _, idx := range b.bins[b.binIdx(i, j, k)] {
					fn(idx)
				}
			}
		}
	}
}

// gatherFloat kernel-averages a float attribute at p. The weight falls
// off linearly to zero at radius. Returns the default when no particle
// is in range.
func (b *particleBins) gatherFloat(
	positions []vecmath.Vec3, values []float32, p vecmath.Vec3, radius, def float32,
) float32 {
	sum := float32(0)
	wsum := float32(0)
	b.forEachNeighbor(p, radius, func(idx int32) {
		d := positions[idx].Dist(p)
		if d >= radius {
			return
		}
		w := 1 - d/radius
		sum += w * values[idx]
		wsum += w
	})
	if wsum == 0 {
		return def
	}
	return sum / wsum
}

// gatherVec3 kernel-averages a vec3 attribute at p.
func (b *particleBins) gatherVec3(
	positions []vecmath.Vec3, values []vecmath.Vec3, p vecmath.Vec3, radius float32,
) vecmath.Vec3 {
	var sum vecmath.Vec3
	wsum := float32(0)
	b.forEachNeighbor(p, radius, func(idx int32) {
		d := positions[idx].Dist(p)
		if d >= radius {
			return
		}
		w := 1 - d/radius
		sum = sum.Add(values[idx].Scale(w))
		wsum += w
	})
	if wsum == 0 {
		return vecmath.Vec3{}
	}
	return sum.Scale(1 / wsum)
}

// gatherNearestInt returns the int attribute of the closest particle
// within radius, or def.
func (b *particleBins) gatherNearestInt(
	positions []vecmath.Vec3, values []int32, p vecmath.Vec3, radius float32, def int32,
) int32 {
	best := def
	bestDist := radius
	b.forEachNeighbor(p, radius, func(idx int32) {
		d := positions[idx].Dist(p)
		if d < bestDist {
			bestDist = d
			best = values[idx]
		}
	})
	return best
}

// nearestDistance returns the distance to the closest particle within
// radius, or radius when none is found.
func (b *particleBins) nearestDistance(positions []vecmath.Vec3, p vecmath.Vec3, radius float32) float32 {
	best := radius
	b.forEachNeighbor(p, radius, func(idx int32) {
		if d := positions[idx].Dist(p); d < best {
			best = d
		}
	})
	return best
}

// Attribute stream encoders: a count header followed by packed
// little-endian samples.

func encodeFloatStream(values []float32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(len(values)))
	binary.Write(&buf, binary.LittleEndian, values)
	return buf.Bytes()
}

func encodeVec3Stream(values []vecmath.Vec3) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(len(values)))
	for _, v := range values {
		binary.Write(&buf, binary.LittleEndian, [3]float32{v.X, v.Y, v.Z})
	}
	return buf.Bytes()
}

func encodeIntStream(values []int32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(len(values)))
	binary.Write(&buf, binary.LittleEndian, values)
	return buf.Bytes()
}

// boostSaturation shifts a color toward pigment-style saturation by the
// given factor, approximating the mixbox look without the pigment LUT.
func boostSaturation(c vecmath.Vec3, factor float32) vecmath.Vec3 {
	if factor <= 0 {
		return c
	}
	// RGB -> HSV saturation boost -> RGB, on clamped [0,1] channels.
	r := float64(vecmath.Clamp(c.X, 0, 1))
	g := float64(vecmath.Clamp(c.Y, 0, 1))
	bl := float64(vecmath.Clamp(c.Z, 0, 1))

	maxC := math.Max(r, math.Max(g, bl))
	minC := math.Min(r, math.Min(g, bl))
	if maxC == 0 || maxC == minC {
		return c
	}
	sat := (maxC - minC) / maxC
	sat = math.Min(1, sat*(1+float64(factor)))

	// Rescale channels to hit the boosted saturation at constant hue
	// and value.
	scale := sat * maxC / (maxC - minC)
	return vecmath.Vec3{
		X: float32(maxC - (maxC-r)*scale),
		Y: float32(maxC - (maxC-g)*scale),
		Z: float32(maxC - (maxC-bl)*scale),
	}
}
