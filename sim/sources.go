package sim

import (
	"github.com/pthm-cable/riptide/particles"
	"github.com/pthm-cable/riptide/scene"
	"github.com/pthm-cable/riptide/vecmath"
)

// maxParticlesPerCell bounds cell occupancy; excess slots beyond it are
// culled each substep.
const maxParticlesPerCell = 12

// constrainInflowFaces marks faces inside constrained, enabled inflows
// as valid and imposes the source velocity so the pressure solve and
// extrapolation cannot alter them.
func (s *Simulator) constrainInflowFaces(frameProgress float32) {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32
	for _, src := range s.sources.InflowsByPriority() {
		if !src.ConstrainVelocity {
			continue
		}
		ls := src.LevelSet(g.ISize, g.JSize, g.KSize, dx, frameProgress)

		for k := 0; k < g.KSize; k++ {
			for j := 0; j < g.JSize; j++ {
				for i := 0; i < g.ISize+1; i++ {
					p := s.mac.FaceUPosition(i, j, k)
					if ls.TrilinearInterpolate(p) < 0 {
						s.mac.U.Set(i, j, k, src.EmissionVelocity(p).X)
						s.valid.ValidU.Set(i, j, k, true)
					}
				}
			}
		}
		for k := 0; k < g.KSize; k++ {
			for j := 0; j < g.JSize+1; j++ {
				for i := 0; i < g.ISize; i++ {
					p := s.mac.FaceVPosition(i, j, k)
					if ls.TrilinearInterpolate(p) < 0 {
						s.mac.V.Set(i, j, k, src.EmissionVelocity(p).Y)
						s.valid.ValidV.Set(i, j, k, true)
					}
				}
			}
		}
		for k := 0; k < g.KSize+1; k++ {
			for j := 0; j < g.JSize; j++ {
				for i := 0; i < g.ISize; i++ {
					p := s.mac.FaceWPosition(i, j, k)
					if ls.TrilinearInterpolate(p) < 0 {
						s.mac.W.Set(i, j, k, src.EmissionVelocity(p).Z)
						s.valid.ValidW.Set(i, j, k, true)
					}
				}
			}
		}
	}
}

// constrainMarkerParticleVelocities overwrites the velocity of particles
// inside enabled constrained inflows with the source velocity.
func (s *Simulator) constrainMarkerParticleVelocities(frameProgress float32) {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32
	positions := s.positions()
	velocities := s.velocities()

	for _, src := range s.sources.InflowsByPriority() {
		if !src.ConstrainVelocity {
			continue
		}
		ls := src.LevelSet(g.ISize, g.JSize, g.KSize, dx, frameProgress)
		for i, p := range positions {
			if ls.TrilinearInterpolate(p) < 0 {
				velocities[i] = src.EmissionVelocity(p)
			}
		}
	}
}

// applySources runs the per-substep source machinery: outflow culling,
// inflow emission, open-boundary culling, cell occupancy capping, and
// extreme-velocity removal.
func (s *Simulator) applySources(dt, frameDT, frameProgress float32) {
	s.applyOutflows(frameProgress)
	s.applyInflows(dt, frameDT, frameProgress)
	s.applyOpenBoundaries()
	s.capCellOccupancy()
	if s.cfg.Time.ExtremeVelocityRemoval.Enabled {
		s.removeExtremeVelocities(dt)
	}
}

func (s *Simulator) applyOutflows(frameProgress float32) {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32

	for _, src := range s.sources.Outflows() {
		ls := src.LevelSet(g.ISize, g.JSize, g.KSize, dx, frameProgress)
		inRegion := func(p vecmath.Vec3) bool {
			inside := ls.TrilinearInterpolate(p) < 0
			if src.Inversed {
				return !inside
			}
			return inside
		}

		positions := s.positions()
		remove := make([]bool, s.ps.Size())
		removed := 0
		for i, p := range positions {
			if inRegion(p) {
				remove[i] = true
				removed++
			}
		}
		if removed > 0 {
			s.ps.RemoveParticles(remove)
			s.logger.Debug("outflow culled particles", "count", removed)
		}

		if src.RemoveWhitewater && s.ww != nil {
			s.ww.RemoveInRegion(inRegion)
		}
	}
}

// applyInflows emits particles into every unoccupied ±dx/4 sub-cell
// candidate of cells inside each enabled inflow, sources in descending
// priority order, with the configured number of emission passes per
// substep.
func (s *Simulator) applyInflows(dt, frameDT, frameProgress float32) {
	inflows := s.sources.InflowsByPriority()
	if len(inflows) == 0 {
		return
	}

	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32

	s.mask.Reset()
	s.mask.AddParticles(s.positions())

	substepFraction := float32(0)
	if frameDT > 0 {
		substepFraction = dt / frameDT
	}

	for _, src := range inflows {
		emissions := src.SubstepEmissions
		if emissions < 1 {
			emissions = 1
		}
		for e := 0; e < emissions; e++ {
			// Update the source to the interpolated frame time of this
			// emission pass.
			t := frameProgress + float32(e)/float32(emissions)*substepFraction
			if t > 1 {
				t = 1
			}
			ls := src.LevelSet(g.ISize, g.JSize, g.KSize, dx, t)
			for _, c := range src.Cells(g.ISize, g.JSize, g.KSize, dx, t) {
				for _, candidate := range s.mask.SubCellPositions(c.I, c.J, c.K) {
					if s.mask.IsSubCellSet(candidate) {
						continue
					}
					if ls.TrilinearInterpolate(candidate) >= 0 {
						continue
					}
					if s.solid.TrilinearInterpolate(candidate) < 0 {
						continue
					}
					s.emitParticle(candidate, src)
					s.mask.AddParticle(candidate)
				}
			}
		}
	}
	s.ps.Update()
}

// emitParticle appends one particle with the source's velocity and
// sampled attributes to every registered column.
func (s *Simulator) emitParticle(p vecmath.Vec3, src *scene.FluidSource) {
	*s.ps.ValuesVector3(particles.AttrPosition) = append(
		*s.ps.ValuesVector3(particles.AttrPosition), p)
	*s.ps.ValuesVector3(particles.AttrVelocity) = append(
		*s.ps.ValuesVector3(particles.AttrVelocity), src.EmissionVelocity(p))

	if s.ps.HasAttribute(particles.AttrAffineX) {
		*s.ps.ValuesVector3(particles.AttrAffineX) = append(
			*s.ps.ValuesVector3(particles.AttrAffineX), vecmath.Vec3{})
		*s.ps.ValuesVector3(particles.AttrAffineY) = append(
			*s.ps.ValuesVector3(particles.AttrAffineY), vecmath.Vec3{})
		*s.ps.ValuesVector3(particles.AttrAffineZ) = append(
			*s.ps.ValuesVector3(particles.AttrAffineZ), vecmath.Vec3{})
	}
	if s.ps.HasAttribute(particles.AttrAge) {
		*s.ps.ValuesFloat(particles.AttrAge) = append(
			*s.ps.ValuesFloat(particles.AttrAge), 0)
	}
	if s.ps.HasAttribute(particles.AttrLifetime) {
		life := src.Lifetime + (s.rng.Float32()*2-1)*src.LifetimeVariance
		if life < 0 {
			life = 0
		}
		*s.ps.ValuesFloat(particles.AttrLifetime) = append(
			*s.ps.ValuesFloat(particles.AttrLifetime), life)
	}
	if s.ps.HasAttribute(particles.AttrColor) {
		*s.ps.ValuesVector3(particles.AttrColor) = append(
			*s.ps.ValuesVector3(particles.AttrColor), src.Color)
	}
	if s.ps.HasAttribute(particles.AttrSourceID) {
		*s.ps.ValuesInt(particles.AttrSourceID) = append(
			*s.ps.ValuesInt(particles.AttrSourceID), src.SourceID)
	}
	if s.ps.HasAttribute(particles.AttrViscosity) {
		*s.ps.ValuesFloat(particles.AttrViscosity) = append(
			*s.ps.ValuesFloat(particles.AttrViscosity), src.SourceViscosity)
	}
	if s.ps.HasAttribute(particles.AttrID) {
		*s.ps.ValuesUInt16(particles.AttrID) = append(
			*s.ps.ValuesUInt16(particles.AttrID), uint16(s.rng.Intn(65536)))
	}
}

// applyOpenBoundaries removes particles that passed beyond an open side's
// width band.
func (s *Simulator) applyOpenBoundaries() {
	open := s.cfg.Physics.OpenBoundarySides
	anyOpen := false
	for _, o := range open {
		anyOpen = anyOpen || o
	}
	if !anyOpen {
		return
	}

	dx := s.cfg.Derived.DX32
	band := float32(s.cfg.Physics.OpenBoundaryWidth) * dx
	width := s.cfg.Derived.DomainWidth
	height := s.cfg.Derived.DomainHeight
	depth := s.cfg.Derived.DomainDepth

	positions := s.positions()
	remove := make([]bool, s.ps.Size())
	removed := 0
	for i, p := range positions {
		out := open[0] && p.X < band ||
			open[1] && p.X > width-band ||
			open[2] && p.Y < band ||
			open[3] && p.Y > height-band ||
			open[4] && p.Z < band ||
			open[5] && p.Z > depth-band
		if out {
			remove[i] = true
			removed++
		}
	}
	if removed > 0 {
		s.ps.RemoveParticles(remove)
		s.logger.Debug("open boundary removed particles", "count", removed)
	}
}

// capCellOccupancy culls the newest particles in cells that exceed the
// occupancy limit.
func (s *Simulator) capCellOccupancy() {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32
	counts := make(map[int]int, s.ps.Size()/4)
	positions := s.positions()
	remove := make([]bool, s.ps.Size())
	removed := 0

	cellKey := func(p vecmath.Vec3) int {
		i := int(p.X / dx)
		j := int(p.Y / dx)
		k := int(p.Z / dx)
		return i + g.ISize*(j+g.JSize*k)
	}

	for i, p := range positions {
		key := cellKey(p)
		counts[key]++
		if counts[key] > maxParticlesPerCell {
			remove[i] = true
			removed++
		}
	}
	if removed > 0 {
		s.ps.RemoveParticles(remove)
		s.logger.Debug("occupancy cap removed particles", "count", removed)
	}
}

// removeExtremeVelocities culls velocity outliers up to the configured
// percent and absolute caps.
func (s *Simulator) removeExtremeVelocities(dt float32) {
	cfg := &s.cfg.Time.ExtremeVelocityRemoval
	// The CFL-implied cap: a particle should not cross more than
	// CFL·dx per substep.
	capSpeed := float32(s.cfg.Time.CFLConditionNumber) * s.cfg.Derived.DX32 / dt
	threshold := float32(cfg.OutlierFactor) * capSpeed

	velocities := s.velocities()
	limit := int(cfg.MaxRemovalPercent * float64(s.ps.Size()))
	if cfg.MaxRemovalCount < limit {
		limit = cfg.MaxRemovalCount
	}

	remove := make([]bool, s.ps.Size())
	removed := 0
	for i, v := range velocities {
		if removed >= limit {
			break
		}
		if v.Length() > threshold {
			remove[i] = true
			removed++
		}
	}
	if removed > 0 {
		s.ps.RemoveParticles(remove)
		s.logger.Debug("extreme velocity removal", "count", removed)
	}
}
