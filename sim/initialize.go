package sim

import (
	"fmt"

	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
	"github.com/pthm-cable/riptide/particles"
	"github.com/pthm-cable/riptide/telemetry"
	"github.com/pthm-cable/riptide/vecmath"
	"github.com/pthm-cable/riptide/whitewater"
)

// Initialize allocates the simulation state, registers the particle
// attribute columns implied by the configuration, and applies all queued
// particle data. Must be called once before Update.
func (s *Simulator) Initialize() error {
	if s.initialized {
		return nil
	}
	cfg := s.cfg
	g := &cfg.Grid
	dx := cfg.Derived.DX32

	s.logger.Info("initializing simulator",
		"grid", fmt.Sprintf("%dx%dx%d", g.ISize, g.JSize, g.KSize), "dx", g.DX)

	s.pool = newWorkerPool(cfg.Threads.MaxThreadCount)

	s.mac = grid.NewMACVelocityField(g.ISize, g.JSize, g.KSize, dx)
	s.macSaved = grid.NewMACVelocityField(g.ISize, g.JSize, g.KSize, dx)
	s.valid = grid.NewValidVelocityGrid(g.ISize, g.JSize, g.KSize)
	s.liquid = levelset.NewParticleLevelSet(g.ISize, g.JSize, g.KSize, dx)
	s.weights = grid.NewWeightGrid(g.ISize, g.JSize, g.KSize)
	s.nearSolid = grid.NewNearSolidGrid(g.ISize, g.JSize, g.KSize, 2)
	s.mask = grid.NewParticleMaskGrid(g.ISize, g.JSize, g.KSize, dx)

	s.solidU = grid.NewArray3D[float32](g.ISize+1, g.JSize, g.KSize)
	s.solidV = grid.NewArray3D[float32](g.ISize, g.JSize+1, g.KSize)
	s.solidW = grid.NewArray3D[float32](g.ISize, g.JSize, g.KSize+1)

	s.ensureScene()
	s.initParticleSystem()

	if cfg.Whitewater.Enabled {
		s.ww = whitewater.NewManager(g.ISize, g.JSize, g.KSize, dx,
			whitewaterParams(cfg), s.seed)
	}

	om, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	s.outputMgr = om

	if err := s.applyPendingData(); err != nil {
		return err
	}

	s.initialized = true
	s.logger.Info("simulator initialized", "particles", s.ps.Size())
	return nil
}

// initParticleSystem registers the attribute columns the configuration
// enables. Position and velocity are always present.
func (s *Simulator) initParticleSystem() {
	s.ps = particles.NewSystem()
	s.ps.AddAttributeVector3(particles.AttrPosition, vecmath.Vec3{})
	s.ps.AddAttributeVector3(particles.AttrVelocity, vecmath.Vec3{})

	cfg := s.cfg
	if cfg.Transfer.VelocityTransferMethod == "apic" {
		s.ps.AddAttributeVector3(particles.AttrAffineX, vecmath.Vec3{})
		s.ps.AddAttributeVector3(particles.AttrAffineY, vecmath.Vec3{})
		s.ps.AddAttributeVector3(particles.AttrAffineZ, vecmath.Vec3{})
	}

	att := &cfg.Attributes.Surface
	fp := &cfg.FluidParticle
	if att.Age.Enabled || fp.Age {
		s.ps.AddAttributeFloat(particles.AttrAge, 0)
	}
	if att.Lifetime.Enabled || fp.Lifetime {
		s.ps.AddAttributeFloat(particles.AttrLifetime, float32(att.Lifetime.DeathTime))
	}
	if att.Color.Enabled || fp.Color {
		s.ps.AddAttributeVector3(particles.AttrColor, vecmath.Vec3{X: 1, Y: 1, Z: 1})
	}
	if att.SourceID || fp.SourceID {
		s.ps.AddAttributeInt(particles.AttrSourceID, 0)
	}
	if cfg.Physics.VariableViscosity || att.Viscosity {
		s.ps.AddAttributeFloat(particles.AttrViscosity, float32(cfg.Physics.Viscosity))
	}
	if fp.Enabled {
		s.ps.AddAttributeUInt16(particles.AttrID, 0)
	}
}

// applyPendingData commits the queued particle arrays, resampling
// through the upscale path when configured.
func (s *Simulator) applyPendingData() error {
	p := &s.pending
	if len(p.positions) == 0 {
		return nil
	}
	if len(p.velocities) != len(p.positions) {
		return fmt.Errorf("%w: velocity data length %d != position data length %d",
			ErrDomain, len(p.velocities), len(p.positions))
	}

	if s.upscale != nil {
		s.resampleUpscaledData()
	}

	positions := *s.ps.ValuesVector3(particles.AttrPosition)
	velocities := *s.ps.ValuesVector3(particles.AttrVelocity)

	// Reject positions outside the domain interior.
	dx := s.cfg.Derived.DX32
	lo := dx
	hiX := s.cfg.Derived.DomainWidth - dx
	hiY := s.cfg.Derived.DomainHeight - dx
	hiZ := s.cfg.Derived.DomainDepth - dx

	kept := make([]int, 0, len(p.positions))
	for i, pos := range p.positions {
		if pos.X < lo || pos.X > hiX || pos.Y < lo || pos.Y > hiY || pos.Z < lo || pos.Z > hiZ {
			continue
		}
		kept = append(kept, i)
		positions = append(positions, pos)
		velocities = append(velocities, p.velocities[i])
	}
	*s.ps.ValuesVector3(particles.AttrPosition) = positions
	*s.ps.ValuesVector3(particles.AttrVelocity) = velocities

	appendKept := func(name string, data []float32) {
		if len(data) == 0 || !s.ps.HasAttribute(name) {
			return
		}
		col := s.ps.ValuesFloat(name)
		for _, i := range kept {
			if i < len(data) {
				*col = append(*col, data[i])
			}
		}
	}
	appendKeptVec3 := func(name string, data []vecmath.Vec3) {
		if len(data) == 0 || !s.ps.HasAttribute(name) {
			return
		}
		col := s.ps.ValuesVector3(name)
		for _, i := range kept {
			if i < len(data) {
				*col = append(*col, data[i])
			}
		}
	}

	appendKeptVec3(particles.AttrAffineX, p.affineX)
	appendKeptVec3(particles.AttrAffineY, p.affineY)
	appendKeptVec3(particles.AttrAffineZ, p.affineZ)
	appendKept(particles.AttrAge, p.ages)
	appendKept(particles.AttrLifetime, p.lifetimes)
	appendKept(particles.AttrViscosity, p.viscosities)
	appendKeptVec3(particles.AttrColor, p.colors)

	if len(p.sourceIDs) > 0 && s.ps.HasAttribute(particles.AttrSourceID) {
		col := s.ps.ValuesInt(particles.AttrSourceID)
		for _, i := range kept {
			if i < len(p.sourceIDs) {
				*col = append(*col, p.sourceIDs[i])
			}
		}
	}
	if s.ps.HasAttribute(particles.AttrID) {
		col := s.ps.ValuesUInt16(particles.AttrID)
		for _, i := range kept {
			if i < len(p.ids) {
				*col = append(*col, p.ids[i])
			} else {
				*col = append(*col, uint16(s.rng.Intn(65536)))
			}
		}
	}

	s.ps.Update()

	if s.ww != nil {
		for _, w := range p.whitewater {
			s.ww.Seed(w.Position, w.Velocity, whitewater.ParticleType(w.Type), w.Lifetime, w.ID)
		}
	}

	s.pending = pendingData{}
	s.upscale = nil
	return nil
}

// resampleUpscaledData maps queued particle positions from the previous
// (coarser) grid onto the current one: positions scale by the grid size
// ratio, and sub-cell candidates not covered by the loaded data are
// filled from a mask pass so the upscaled liquid has full particle
// density.
func (s *Simulator) resampleUpscaledData() {
	up := s.upscale
	scale := float32(s.cfg.Grid.DX*float64(s.cfg.Grid.ISize)) /
		(float32(up.dx) * float32(up.isize))

	p := &s.pending
	for i := range p.positions {
		p.positions[i] = p.positions[i].Scale(scale)
	}

	// Mark loaded particles, then fill uncovered sub-cells of cells that
	// already hold particles, FLIP-advection style: new candidates copy
	// the velocity of the first loaded particle found in the cell.
	mask := grid.NewParticleMaskGrid(s.cfg.Grid.ISize, s.cfg.Grid.JSize, s.cfg.Grid.KSize,
		s.cfg.Derived.DX32)
	mask.AddParticles(p.positions)

	dx := s.cfg.Derived.DX32
	seen := make(map[grid.Index]bool)
	loaded := len(p.positions)
	for i := 0; i < loaded; i++ {
		pos := p.positions[i]
		ci := grid.Index{I: int(pos.X / dx), J: int(pos.Y / dx), K: int(pos.Z / dx)}
		if seen[ci] {
			continue
		}
		seen[ci] = true
		for _, candidate := range mask.SubCellPositions(ci.I, ci.J, ci.K) {
			if mask.IsSubCellSet(candidate) {
				continue
			}
			mask.AddParticle(candidate)
			p.positions = append(p.positions, candidate)
			p.velocities = append(p.velocities, p.velocities[i])
		}
	}
}

func whitewaterParams(cfg *config.Config) whitewater.Params {
	w := &cfg.Whitewater
	params := whitewater.Params{
		MaxParticleCount:    w.MaxParticleCount,
		EmissionRate:        float32(w.EmissionRate),
		WavecrestMin:        float32(w.WavecrestPotential.Min),
		WavecrestMax:        float32(w.WavecrestPotential.Max),
		TurbulenceMin:       float32(w.TurbulencePotential.Min),
		TurbulenceMax:       float32(w.TurbulencePotential.Max),
		DustEmissionEnabled: w.DustEmissionEnabled,

		MinLifetime:      float32(w.MinLifetime),
		MaxLifetime:      float32(w.MaxLifetime),
		LifetimeVariance: float32(w.LifetimeVariance),
		LifetimeModifiers: [4]float32{
			float32(w.FoamLifetimeModifier),
			float32(w.BubbleLifetimeModifier),
			float32(w.SprayLifetimeModifier),
			float32(w.DustLifetimeModifier),
		},

		FoamLayerDepth:        float32(w.FoamLayerDepth),
		FoamAdvectionStrength: float32(w.FoamAdvectionStrength),

		BubbleDrag:     float32(w.BubbleDragCoefficient),
		BubbleBuoyancy: float32(w.BubbleBuoyancyCoefficient),
		DustDrag:       float32(w.DustDragCoefficient),
		DustBuoyancy:   float32(w.DustBuoyancyCoefficient),
		SprayDrag:      float32(w.SprayDragCoefficient),

		PreserveFoamEnabled: w.PreserveFoam.Enabled,
		PreserveMinDensity:  float32(w.PreserveFoam.MinDensity),
		PreserveMaxDensity:  float32(w.PreserveFoam.MaxDensity),
		PreserveRate:        float32(w.PreserveFoam.Rate),

		ObstacleInfluenceBase:  float32(w.ObstacleInfluence.Base),
		ObstacleInfluenceDecay: float32(w.ObstacleInfluence.Decay),
	}

	boundaries := [4]config.BoundaryBehaviorConfig{
		w.FoamBoundary, w.BubbleBoundary, w.SprayBoundary, w.DustBoundary,
	}
	for t, b := range boundaries {
		for side, name := range b.Sides {
			params.Boundary[t][side] = whitewater.ParseBoundaryBehavior(name)
		}
	}
	return params
}
