package sim

import (
	"github.com/pthm-cable/riptide/particles"
	"github.com/pthm-cable/riptide/vecmath"
)

// advanceParticles integrates particle positions through the grid
// velocity field with third-order Runge-Kutta, then resolves collisions
// against solids and the domain boundary.
func (s *Simulator) advanceParticles(dt float32) {
	positions := s.positions()
	n := len(positions)

	s.pool.run(n, func(start, end int) {
		for i := start; i < end; i++ {
			positions[i] = s.integrateRK3(positions[i], dt)
		}
	})

	s.resolveParticleCollisions()
}

// integrateRK3 is Ralston's third-order scheme through the grid field.
func (s *Simulator) integrateRK3(p vecmath.Vec3, dt float32) vecmath.Vec3 {
	k1 := s.mac.EvaluateVelocityAtPosition(p)
	k2 := s.mac.EvaluateVelocityAtPosition(p.Add(k1.Scale(0.5 * dt)))
	k3 := s.mac.EvaluateVelocityAtPosition(p.Add(k2.Scale(0.75 * dt)))
	return p.Add(k1.Scale(2.0 / 9.0 * dt)).
		Add(k2.Scale(3.0 / 9.0 * dt)).
		Add(k3.Scale(4.0 / 9.0 * dt))
}

// resolveParticleCollisions pushes penetrating particles out of solids
// with friction, and clamps everything to the domain interior. Only
// cells flagged by the near-solid grid pay for the SDF queries.
func (s *Simulator) resolveParticleCollisions() {
	dx := s.cfg.Derived.DX32
	buffer := 0.5 * dx
	lo := dx + buffer
	hiX := s.cfg.Derived.DomainWidth - dx - buffer
	hiY := s.cfg.Derived.DomainHeight - dx - buffer
	hiZ := s.cfg.Derived.DomainDepth - dx - buffer
	boundaryFriction := float32(s.cfg.Physics.BoundaryFriction)

	positions := s.positions()
	velocities := s.velocities()

	s.pool.run(len(positions), func(start, end int) {
		for i := start; i < end; i++ {
			p := positions[i]

			ci := int(p.X / dx)
			cj := int(p.Y / dx)
			ck := int(p.Z / dx)
			if s.nearSolid.IsNearSolid(ci, cj, ck) {
				phi := s.solid.TrilinearInterpolate(p)
				if phi < 0 {
					grad := s.solid.TrilinearInterpolateGradient(p).Normalize()
					p = p.Sub(grad.Scale(phi - 0.1*buffer))

					friction := boundaryFriction
					var solidVel vecmath.Vec3
					if obj := s.solid.ClosestMeshObject(p); obj != nil {
						friction = obj.Friction
						solidVel = obj.Velocity
					}
					rel := velocities[i].Sub(solidVel)
					normal := rel.Dot(grad)
					if normal < 0 {
						tangential := rel.Sub(grad.Scale(normal))
						velocities[i] = solidVel.Add(tangential.Scale(1 - friction))
					}
				}
			}

			// Domain interior clamp with the solid buffer.
			p.X = vecmath.Clamp(p.X, lo, hiX)
			p.Y = vecmath.Clamp(p.Y, lo, hiY)
			p.Z = vecmath.Clamp(p.Z, lo, hiZ)
			positions[i] = p
		}
	})
}

// seedSheets re-populates under-resolved thin sheets: liquid cells whose
// level set is below the fill threshold but whose sub-cell candidates
// are empty receive new particles at the fill rate, with grid-sampled
// velocities.
func (s *Simulator) seedSheets(dt float32) {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32
	threshold := float32(s.cfg.Sheeting.FillThreshold) * dx
	rate := float32(s.cfg.Sheeting.FillRate)

	s.mask.Reset()
	s.mask.AddParticles(s.positions())

	added := 0
	for k := 0; k < g.KSize; k++ {
		for j := 0; j < g.JSize; j++ {
			for i := 0; i < g.ISize; i++ {
				if s.liquid.Get(i, j, k) > threshold {
					continue
				}
				// Sheeting strength of the closest obstacle scales the
				// fill probability near solids.
				strength := rate
				for _, candidate := range s.mask.SubCellPositions(i, j, k) {
					if s.mask.IsSubCellSet(candidate) {
						continue
					}
					if s.solid.TrilinearInterpolate(candidate) < 0 {
						continue
					}
					if obj := s.solid.ClosestMeshObject(candidate); obj != nil {
						strength = rate * obj.SheetingStrength
					}
					if s.rng.Float32() > strength {
						continue
					}
					vel := s.mac.EvaluateVelocityAtPosition(candidate)
					s.seedParticleAt(candidate, vel)
					s.mask.AddParticle(candidate)
					added++
				}
			}
		}
	}
	if added > 0 {
		s.ps.Update()
		s.logger.Debug("sheet seeding added particles", "count", added)
	}
}

// seedParticleAt appends a particle with defaults to every column.
func (s *Simulator) seedParticleAt(p, v vecmath.Vec3) {
	*s.ps.ValuesVector3(particles.AttrPosition) = append(
		*s.ps.ValuesVector3(particles.AttrPosition), p)
	*s.ps.ValuesVector3(particles.AttrVelocity) = append(
		*s.ps.ValuesVector3(particles.AttrVelocity), v)
	if s.ps.HasAttribute(particles.AttrID) {
		*s.ps.ValuesUInt16(particles.AttrID) = append(
			*s.ps.ValuesUInt16(particles.AttrID), uint16(s.rng.Intn(65536)))
	}
	// Remaining columns pad with their defaults on Update.
}

// updateParticleAttributes ages particles, expires lifetimes, and mixes
// colors.
func (s *Simulator) updateParticleAttributes(dt float32) {
	if s.ps.HasAttribute(particles.AttrAge) {
		ages := *s.ps.ValuesFloat(particles.AttrAge)
		for i := range ages {
			ages[i] += dt
		}
	}

	if s.ps.HasAttribute(particles.AttrLifetime) {
		lifetimes := *s.ps.ValuesFloat(particles.AttrLifetime)
		remove := make([]bool, s.ps.Size())
		removed := 0
		for i := range lifetimes {
			lifetimes[i] -= dt
			if lifetimes[i] <= 0 {
				remove[i] = true
				removed++
			}
		}
		if removed > 0 {
			s.ps.RemoveParticles(remove)
			s.logger.Debug("lifetime expired particles", "count", removed)
		}
	}

	mixing := &s.cfg.Attributes.Surface.Color.Mixing
	if mixing.Enabled && s.ps.HasAttribute(particles.AttrColor) {
		s.mixParticleColors(dt)
	}
}

// mixParticleColors blends each particle's color toward its cell
// neighborhood average at the configured rate.
func (s *Simulator) mixParticleColors(dt float32) {
	mixing := &s.cfg.Attributes.Surface.Color.Mixing
	binSize := s.cfg.Derived.DX32 * float32(mixing.Radius)
	if binSize <= 0 {
		return
	}

	ni := int(s.cfg.Derived.DomainWidth/binSize) + 1
	nj := int(s.cfg.Derived.DomainHeight/binSize) + 1
	nk := int(s.cfg.Derived.DomainDepth/binSize) + 1

	sums := make([]vecmath.Vec3, ni*nj*nk)
	counts := make([]int32, ni*nj*nk)
	positions := s.positions()
	colors := *s.ps.ValuesVector3(particles.AttrColor)

	binOf := func(p vecmath.Vec3) int {
		i := clampInt(int(p.X/binSize), 0, ni-1)
		j := clampInt(int(p.Y/binSize), 0, nj-1)
		k := clampInt(int(p.Z/binSize), 0, nk-1)
		return i + ni*(j+nj*k)
	}

	for idx, p := range positions {
		b := binOf(p)
		sums[b] = sums[b].Add(colors[idx])
		counts[b]++
	}

	blend := vecmath.Clamp(float32(mixing.Rate)*dt, 0, 1)
	for idx, p := range positions {
		b := binOf(p)
		if counts[b] < 2 {
			continue
		}
		avg := sums[b].Scale(1 / float32(counts[b]))
		colors[idx] = colors[idx].Lerp(avg, blend)
	}
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
