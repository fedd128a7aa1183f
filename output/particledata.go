package output

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/vecmath"
)

// generateWhitewaterBuffers encodes the diffuse particle output, either
// as one interleaved WWP buffer or four per-type buffers, plus the
// optional attribute streams.
func generateWhitewaterBuffers(out *FrameData, s *Snapshot, cfg *config.Config) {
	if len(s.Whitewater) == 0 {
		return
	}
	att := &cfg.Attributes.Whitewater

	if att.SingleFile {
		out.WhitewaterData = encodeWhitewaterWWP(s.Whitewater, nil)
	} else {
		for t := uint8(0); t < 4; t++ {
			tt := t
			data := encodeWhitewaterWWP(s.Whitewater, &tt)
			switch t {
			case 0:
				out.FoamData = data
			case 1:
				out.BubbleData = data
			case 2:
				out.SprayData = data
			case 3:
				out.DustData = data
			}
		}
	}

	if att.MotionBlur {
		offsets := make([]vecmath.Vec3, len(s.Whitewater))
		for i, w := range s.Whitewater {
			offsets[i] = w.Velocity.Scale(s.FrameDT)
		}
		out.WhitewaterBlurData = encodeVec3Stream(offsets)
	}
	if att.Velocity {
		velocities := make([]vecmath.Vec3, len(s.Whitewater))
		for i, w := range s.Whitewater {
			velocities[i] = w.Velocity
		}
		out.WhitewaterVelocityData = encodeVec3Stream(velocities)
	}
	if att.ID {
		// WWI layout: count then packed uint8 IDs.
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, int32(len(s.Whitewater)))
		for _, w := range s.Whitewater {
			buf.WriteByte(w.ID)
		}
		out.WhitewaterIDData = buf.Bytes()
	}
	if att.Lifetime {
		// WWF layout: count then float32 lifetimes.
		lifetimes := make([]float32, len(s.Whitewater))
		for i, w := range s.Whitewater {
			lifetimes[i] = w.Lifetime
		}
		out.WhitewaterLifetimeData = encodeFloatStream(lifetimes)
	}
}

// encodeWhitewaterWWP packs whitewater positions. The header holds the
// four per-type counts; positions follow grouped by type. When only is
// non-nil, a single type is written and the other counts are zero.
func encodeWhitewaterWWP(particles []WhitewaterParticle, only *uint8) []byte {
	var counts [4]int32
	for _, w := range particles {
		if only != nil && w.Type != *only {
			continue
		}
		counts[w.Type]++
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, counts)
	for t := uint8(0); t < 4; t++ {
		if only != nil && t != *only {
			continue
		}
		for _, w := range particles {
			if w.Type != t {
				continue
			}
			binary.Write(&buf, binary.LittleEndian,
				[3]float32{w.Position.X, w.Position.Y, w.Position.Z})
		}
	}
	return buf.Bytes()
}

// fluid particle classification buckets.
const (
	bucketSurface = iota
	bucketBoundary
	bucketInterior
	numBuckets
)

// generateFluidParticleData encodes the FFP3 layout: a three-bucket
// header (surface/boundary/interior), each bucket sorted by particle ID
// so truncation by an ID limit is deterministic and blacklistable.
func generateFluidParticleData(s *Snapshot, cfg *config.Config) []byte {
	n := len(s.Positions)
	if n == 0 || s.IDs == nil {
		return nil
	}

	// ID truncation: keep IDs below limit = amount * ID range.
	idLimit := uint16(65535)
	if cfg.FluidParticle.OutputAmount < 1 {
		idLimit = uint16(cfg.FluidParticle.OutputAmount * 65536)
	}

	bins := newParticleBins(s.Positions, s.Domain.Position,
		s.Domain.Width, s.Domain.Height, s.Domain.Depth, s.DX)

	boundaryDist := 3 * s.DX
	inner := s.Domain.Expand(-boundaryDist)

	classify := func(idx int) int {
		p := s.Positions[idx]
		if !inner.Contains(p) {
			return bucketBoundary
		}
		if s.SolidPhi != nil && s.SolidPhi.TrilinearInterpolate(p) < boundaryDist {
			return bucketBoundary
		}
		// Sparse neighborhoods are surface particles.
		neighbors := 0
		bins.forEachNeighbor(p, 1.5*s.DX, func(int32) { neighbors++ })
		if neighbors < 9 {
			return bucketSurface
		}
		return bucketInterior
	}

	var buckets [numBuckets][]int
	for i := 0; i < n; i++ {
		if s.IDs[i] > idLimit {
			continue
		}
		b := classify(i)
		buckets[b] = append(buckets[b], i)
	}
	for b := range buckets {
		idx := buckets[b]
		sort.SliceStable(idx, func(a, c int) bool {
			return s.IDs[idx[a]] < s.IDs[idx[c]]
		})
	}

	fp := &cfg.FluidParticle
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, [numBuckets]int32{
		int32(len(buckets[0])), int32(len(buckets[1])), int32(len(buckets[2])),
	})

	writeBucketVec3 := func(get func(i int) vecmath.Vec3) {
		for b := 0; b < numBuckets; b++ {
			for _, i := range buckets[b] {
				v := get(i)
				binary.Write(&buf, binary.LittleEndian, [3]float32{v.X, v.Y, v.Z})
			}
		}
	}
	writeBucketFloat := func(get func(i int) float32) {
		for b := 0; b < numBuckets; b++ {
			for _, i := range buckets[b] {
				binary.Write(&buf, binary.LittleEndian, get(i))
			}
		}
	}

	writeBucketVec3(func(i int) vecmath.Vec3 { return s.Positions[i] })

	if fp.Velocity && s.Velocities != nil {
		writeBucketVec3(func(i int) vecmath.Vec3 { return s.Velocities[i] })
	}
	if fp.Speed && s.Velocities != nil {
		writeBucketFloat(func(i int) float32 { return s.Velocities[i].Length() })
	}
	if fp.Vorticity {
		curl := grid.GenerateCurlAtCellCenter(s.Velocity)
		writeBucketVec3(func(i int) vecmath.Vec3 {
			return curl.TrilinearInterpolate(s.Positions[i])
		})
	}
	if fp.Color && s.Colors != nil {
		writeBucketVec3(func(i int) vecmath.Vec3 { return s.Colors[i] })
	}
	if fp.Age && s.Ages != nil {
		writeBucketFloat(func(i int) float32 { return s.Ages[i] })
	}
	if fp.Lifetime && s.Lifetimes != nil {
		writeBucketFloat(func(i int) float32 { return s.Lifetimes[i] })
	}
	if fp.SourceID && s.SourceIDs != nil {
		for b := 0; b < numBuckets; b++ {
			for _, i := range buckets[b] {
				binary.Write(&buf, binary.LittleEndian, s.SourceIDs[i])
			}
		}
	}

	return buf.Bytes()
}
