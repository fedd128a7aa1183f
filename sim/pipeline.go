package sim

import (
	"fmt"
	"math"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/particles"
	"github.com/pthm-cable/riptide/solver"
	"github.com/pthm-cable/riptide/telemetry"
	"github.com/pthm-cable/riptide/transfer"
	"github.com/pthm-cable/riptide/vecmath"
	"github.com/pthm-cable/riptide/whitewater"
)

const substepEps = 1e-9

func (s *Simulator) positions() []vecmath.Vec3 {
	return *s.ps.ValuesVector3(particles.AttrPosition)
}

func (s *Simulator) velocities() []vecmath.Vec3 {
	return *s.ps.ValuesVector3(particles.AttrVelocity)
}

// Update advances the simulation by one frame of duration dt, running as
// many substeps as the CFL condition requires and producing the frame's
// output buffers.
func (s *Simulator) Update(dt float64) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if dt < 0 {
		return fmt.Errorf("%w: dt must be non-negative, got %g", ErrDomain, dt)
	}

	s.frame++
	s.stats = telemetry.FrameStats{Frame: s.frame, DeltaTime: dt}
	s.timer.Reset()
	s.timer.Begin("total")
	s.logger.Info("frame begin", "frame", s.frame, "dt", dt)

	remaining := dt
	substeps := 0
	maxSteps := s.cfg.Time.MaxTimeStepsPerFrame
	minStep := dt / float64(maxSteps)

	for remaining > substepEps*dt+substepEps && substeps < maxSteps {
		sub := s.computeSubstepSize(remaining, dt)
		if sub < minStep {
			sub = minStep
		}
		if sub > remaining {
			sub = remaining
		}
		frameProgress := float32(1 - remaining/dt)
		s.step(float32(sub), substeps == 0, float32(dt), frameProgress)
		remaining -= sub
		substeps++
	}

	s.joinOutputStage()

	s.timer.End("total")
	s.stats.Substeps = substeps
	s.stats.FluidParticles = s.ps.Size()
	if s.ww != nil {
		foam, bubble, spray, dust := s.ww.Counts()
		s.stats.FoamParticles = foam
		s.stats.BubbleParticles = bubble
		s.stats.SprayParticles = spray
		s.stats.DustParticles = dust
		s.stats.WhitewaterParticles = foam + bubble + spray + dust
	}
	s.stats.TimeTotal = s.timer.Seconds("total")
	s.stats.TimeTransfer = s.timer.Seconds("transfer")
	s.stats.TimePressure = s.timer.Seconds("pressure")
	s.stats.TimeViscosity = s.timer.Seconds("viscosity")
	s.stats.TimeAdvection = s.timer.Seconds("advection")
	s.stats.TimeSDF = s.timer.Seconds("sdf")
	s.stats.TimeMeshing = s.timer.Seconds("meshing")
	if s.stats.TimeTotal > 0 {
		s.stats.PerformanceScore = float64(s.ps.Size()) / s.stats.TimeTotal
	}

	if err := s.outputMgr.WriteFrameStats(s.stats); err != nil {
		s.logger.Error("stats write failed", "error", err)
	}
	s.logger.Info("frame end", "frame", s.frame, "substeps", substeps,
		"particles", s.ps.Size())
	return nil
}

// computeSubstepSize picks the next substep under the CFL condition,
// the optional surface tension restriction, and the adaptive obstacle
// and force-field restrictions.
func (s *Simulator) computeSubstepSize(remaining, frameDT float64) float64 {
	cfg := s.cfg
	dx := cfg.Grid.DX

	vmax := float64(s.mac.EvaluateMaxVelocityMagnitude())
	// Account for acceleration this substep.
	vmax += float64(s.bodyForceTotal().Length()) * remaining
	sub := cfg.Time.CFLConditionNumber * dx / (vmax + 1e-6)

	if sigma := cfg.Physics.SurfaceTension; sigma > 0 {
		restriction := cfg.Time.SurfaceTensionConditionNumber *
			math.Sqrt(dx*dx*dx/sigma)
		if restriction < sub {
			sub = restriction
		}
	}

	if cfg.Time.AdaptiveObstacleTimeStepping {
		maxSolidSpeed := 0.0
		for _, o := range s.solidMgr.Obstacles() {
			if o.Enabled && o.Animated {
				if v := float64(o.ObjectVelocity.Length()); v > maxSolidSpeed {
					maxSolidSpeed = v
				}
			}
		}
		if maxSolidSpeed > 0 {
			restriction := cfg.Time.CFLConditionNumber * dx / maxSolidSpeed
			if restriction < sub {
				sub = restriction
			}
		}
	}

	if cfg.Time.AdaptiveForceFieldTimeStepping && !s.forceField.IsEmpty() {
		s.forceField.Update()
		if f := float64(s.forceField.MaxForceMagnitude()); f > 0 {
			restriction := math.Sqrt(dx / f)
			if restriction < sub {
				sub = restriction
			}
		}
	}

	maxStep := frameDT / float64(s.cfg.Time.MinTimeStepsPerFrame)
	if sub > maxStep {
		sub = maxStep
	}
	if sub > remaining {
		sub = remaining
	}
	return sub
}

// extrapolationLayers is the flood-fill depth after transfers and
// projection.
func (s *Simulator) extrapolationLayers() int {
	return int(math.Ceil(math.Sqrt(3)*s.cfg.Time.CFLConditionNumber)) + 3
}

// step runs one substep of the pipeline in the fixed stage order.
func (s *Simulator) step(dt float32, firstSubstep bool, frameDT, frameProgress float32) {
	s.logger.Debug("substep", "dt", dt, "progress", frameProgress)

	s.timer.Begin("sdf")
	s.updateSolidSDF(frameProgress)
	s.updateLiquidSDF()
	s.timer.End("sdf")

	s.timer.Begin("transfer")
	s.transferParticlesToGrid()
	s.constrainInflowFaces(frameProgress)
	s.macSaved.CopyFrom(s.mac)
	s.timer.End("transfer")

	s.applyBodyForces(dt)

	if s.isViscosityEnabled() {
		s.timer.Begin("viscosity")
		s.solveViscosity(dt)
		s.timer.End("viscosity")
	}

	s.timer.Begin("pressure")
	s.solvePressure(dt, frameProgress)
	s.timer.End("pressure")

	grid.ExtrapolateMACVelocityField(s.mac, s.valid, s.extrapolationLayers())
	s.constrainVelocityField()

	if s.ww != nil {
		s.updateWhitewater(dt)
	}

	if s.cfg.Sheeting.Enabled {
		s.seedSheets(dt)
	}

	s.timer.Begin("advection")
	s.updateParticleVelocities(frameProgress)
	s.advanceParticles(dt)
	s.timer.End("advection")

	s.applySources(dt, frameDT, frameProgress)
	s.updateParticleAttributes(dt)

	if firstSubstep {
		s.timer.Begin("meshing")
		s.launchOutputStage(frameDT)
		s.timer.End("meshing")
	}
}

// updateSolidSDF composes the frame's solid SDF, rebuilds the
// face-sampled solid velocities, and refreshes the near-solid grid.
func (s *Simulator) updateSolidSDF(frameProgress float32) {
	s.solid = s.solidMgr.ComposeSolidSDF(frameProgress)

	g := &s.cfg.Grid
	for k := 0; k < g.KSize; k++ {
		for j := 0; j < g.JSize; j++ {
			for i := 0; i < g.ISize+1; i++ {
				s.solidU.Set(i, j, k, s.solid.SampleSolidVelocity(s.mac.FaceUPosition(i, j, k)).X)
			}
		}
	}
	for k := 0; k < g.KSize; k++ {
		for j := 0; j < g.JSize+1; j++ {
			for i := 0; i < g.ISize; i++ {
				s.solidV.Set(i, j, k, s.solid.SampleSolidVelocity(s.mac.FaceVPosition(i, j, k)).Y)
			}
		}
	}
	for k := 0; k < g.KSize+1; k++ {
		for j := 0; j < g.JSize; j++ {
			for i := 0; i < g.ISize; i++ {
				s.solidW.Set(i, j, k, s.solid.SampleSolidVelocity(s.mac.FaceWPosition(i, j, k)).Z)
			}
		}
	}

	s.nearSolid.Reset()
	dx := s.cfg.Derived.DX32
	half := 0.5 * dx
	for k := 0; k < g.KSize; k++ {
		for j := 0; j < g.JSize; j++ {
			for i := 0; i < g.ISize; i++ {
				center := vecmath.Vec3{
					X: float32(i)*dx + half, Y: float32(j)*dx + half, Z: float32(k)*dx + half,
				}
				if s.solid.TrilinearInterpolate(center) < 2.5*dx {
					s.nearSolid.MarkNearSolid(i, j, k)
				}
			}
		}
	}

	s.weights.Compute(s.solid, dx)
}

func (s *Simulator) updateLiquidSDF() {
	s.liquid.CalculateSignedDistanceField(s.positions(), s.cfg.Derived.MarkerParticleRadius)

	needCurvature := s.cfg.Physics.SurfaceTension > 0 ||
		(s.ww != nil && s.cfg.Whitewater.Enabled)
	if needCurvature {
		s.curvature = s.liquid.CalculateCurvatureGrid(s.cfg.Physics.SmoothSurfaceTensionKernel)
	}
}

func (s *Simulator) transferMethod() transfer.Method {
	if s.cfg.Transfer.VelocityTransferMethod == "apic" {
		return transfer.MethodAPIC
	}
	return transfer.MethodFLIP
}

func (s *Simulator) transferData() transfer.ParticleData {
	d := transfer.ParticleData{
		Positions:  s.positions(),
		Velocities: s.velocities(),
	}
	if s.transferMethod() == transfer.MethodAPIC {
		d.AffineX = *s.ps.ValuesVector3(particles.AttrAffineX)
		d.AffineY = *s.ps.ValuesVector3(particles.AttrAffineY)
		d.AffineZ = *s.ps.ValuesVector3(particles.AttrAffineZ)
	}
	return d
}

func (s *Simulator) transferParticlesToGrid() {
	transfer.ParticlesToGrid(s.transferData(), s.mac, s.valid,
		s.transferMethod(), s.pool.numWorkers)
	grid.ExtrapolateMACVelocityField(s.mac, s.valid, s.extrapolationLayers())
}

func (s *Simulator) applyBodyForces(dt float32) {
	f := s.bodyForceTotal()
	if f.X != 0 {
		data := s.mac.U.Data()
		for i := range data {
			data[i] += f.X * dt
		}
	}
	if f.Y != 0 {
		data := s.mac.V.Data()
		for i := range data {
			data[i] += f.Y * dt
		}
	}
	if f.Z != 0 {
		data := s.mac.W.Data()
		for i := range data {
			data[i] += f.Z * dt
		}
	}
	if s.cfg.ForceField.Enabled && !s.forceField.IsEmpty() {
		s.forceField.Update()
		s.forceField.ApplyToMACVelocityField(s.mac, dt)
	}
}

func (s *Simulator) isViscosityEnabled() bool {
	return s.cfg.Physics.Viscosity > 0 || s.cfg.Physics.VariableViscosity
}

// viscosityKernelCells is the radius, in cells, of the kernel that
// resamples particle viscosities onto cell centers.
const viscosityKernelCells = 2

// viscosityField builds the cell-centered viscosity grid: constant, or
// resampled from the particle VISCOSITY column via a radius kernel with
// linear falloff and extrapolated outward.
func (s *Simulator) viscosityField() *grid.ScalarField {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32
	field := grid.NewCellCenteredScalarField(g.ISize, g.JSize, g.KSize, dx)

	if !s.cfg.Physics.VariableViscosity || !s.ps.HasAttribute(particles.AttrViscosity) {
		field.Fill(float32(s.cfg.Physics.Viscosity))
		return field
	}

	radius := viscosityKernelCells * dx
	reach := viscosityKernelCells + 1

	sum := grid.NewArray3D[float32](g.ISize, g.JSize, g.KSize)
	weight := grid.NewArray3D[float32](g.ISize, g.JSize, g.KSize)
	viscosities := *s.ps.ValuesFloat(particles.AttrViscosity)
	for idx, p := range s.positions() {
		ci := int(p.X / dx)
		cj := int(p.Y / dx)
		ck := int(p.Z / dx)
		for k := ck - reach; k <= ck+reach; k++ {
			for j := cj - reach; j <= cj+reach; j++ {
				for i := ci - reach; i <= ci+reach; i++ {
					if !sum.IsIndexInRange(i, j, k) {
						continue
					}
					d := field.SamplePosition(i, j, k).Dist(p)
					if d >= radius {
						continue
					}
					w := 1 - d/radius
					*sum.At(i, j, k) += w * viscosities[idx]
					*weight.At(i, j, k) += w
				}
			}
		}
	}
	valid := grid.NewArray3D[bool](g.ISize, g.JSize, g.KSize)
	for idx := range sum.Data() {
		if weight.Data()[idx] > 0 {
			field.Data()[idx] = sum.Data()[idx] / weight.Data()[idx]
			valid.Data()[idx] = true
		}
	}
	grid.ExtrapolateLayers(field.Array3D, valid, s.extrapolationLayers())
	return field
}

func (s *Simulator) solveViscosity(dt float32) {
	vs := solver.NewViscositySolver(solver.ViscosityParameters{
		CellWidth: s.cfg.Grid.DX,
		DeltaTime: float64(dt),
		Density:   s.cfg.Physics.Density,
		Velocity:  s.mac,
		Liquid:    s.liquid,
		Viscosity: s.viscosityField(),

		MaxIterations:       s.cfg.Physics.MaxViscosityIterations,
		Tolerance:           s.cfg.Physics.ViscositySolverErrorTolerance,
		AcceptableTolerance: s.cfg.Physics.ViscositySolverErrorTolerance * 1e3,
	})
	r := vs.Solve()
	s.stats.Viscosity.ReduceSubstep(r.Success, r.PartialSuccess, r.Iterations, r.Error)
	if !r.Success {
		s.logger.Warn("viscosity solve did not converge",
			"iterations", r.Iterations, "error", r.Error)
	}
}

func (s *Simulator) solvePressure(dt float32, frameProgress float32) {
	params := solver.PressureParameters{
		CellWidth: s.cfg.Grid.DX,
		DeltaTime: float64(dt),
		Density:   s.cfg.Physics.Density,
		Velocity:  s.mac,
		Valid:     s.valid,
		Liquid:    s.liquid,
		Weights:   s.weights,
		SolidU:    s.solidU,
		SolidV:    s.solidV,
		SolidW:    s.solidW,

		MaxIterations:       s.cfg.Physics.MaxPressureIterations,
		Tolerance:           s.cfg.Physics.PressureSolverTolerance,
		AcceptableTolerance: s.cfg.Physics.PressureSolverAcceptableTolerance,
	}
	if s.cfg.Physics.SurfaceTension > 0 {
		params.SurfaceTension = s.cfg.Physics.SurfaceTension
		params.Curvature = s.curvature
	}

	ps := solver.NewPressureSolver(params)
	r := ps.Solve()
	s.stats.Pressure.ReduceSubstep(r.Success, r.PartialSuccess, r.Iterations, r.Error)
	if !r.Success && !r.PartialSuccess {
		s.logger.Warn("pressure solve failed",
			"iterations", r.Iterations, "error", r.Error)
	}

	// Re-impose constrained inflow faces the projection may have moved.
	s.constrainInflowFaces(frameProgress)
}

// constrainVelocityField overwrites fully solid faces with the solid
// velocity so extrapolated values never push fluid into obstacles.
func (s *Simulator) constrainVelocityField() {
	apply := func(w, face, solidVel *grid.Array3D[float32], valid *grid.Array3D[bool]) {
		wd := w.Data()
		fd := face.Data()
		sd := solidVel.Data()
		vd := valid.Data()
		for i := range wd {
			if wd[i] <= 0 {
				fd[i] = sd[i]
				vd[i] = true
			}
		}
	}
	apply(s.weights.U, s.mac.U, s.solidU, s.valid.ValidU)
	apply(s.weights.V, s.mac.V, s.solidV, s.valid.ValidV)
	apply(s.weights.W, s.mac.W, s.solidW, s.valid.ValidW)
}

func (s *Simulator) updateWhitewater(dt float32) {
	curl := grid.GenerateCurlAtCellCenter(s.mac)
	data := whitewater.StepData{
		DT:        dt,
		Liquid:    s.liquid,
		Solid:     s.solid,
		Velocity:  s.mac,
		Curvature: s.curvature,
		Curl:      curl,
		Gravity:   s.bodyForceTotal(),

		ForceWeightWhitewater: s.forceField.WeightWhitewater,
		ForceWeightDust:       s.forceField.WeightDust,
	}
	if s.cfg.ForceField.Enabled && !s.forceField.IsEmpty() {
		s.forceField.Update()
		data.ForceAt = s.forceField.ForceAt
	}
	s.ww.Emit(data)
	s.ww.Advance(data)
}

// updateParticleVelocities runs the grid→particle update: the FLIP/PIC
// delta blend or the APIC affine reconstruction, then source velocity
// constraints.
func (s *Simulator) updateParticleVelocities(frameProgress float32) {
	d := s.transferData()
	if s.transferMethod() == transfer.MethodAPIC {
		transfer.APICUpdate(d, s.mac)
		if r := float32(s.cfg.Transfer.PICAPICRatio); r > 0 {
			// Blend toward pure PIC by damping the affine rows.
			for i := range d.AffineX {
				d.AffineX[i] = d.AffineX[i].Scale(1 - r)
				d.AffineY[i] = d.AffineY[i].Scale(1 - r)
				d.AffineZ[i] = d.AffineZ[i].Scale(1 - r)
			}
		}
	} else {
		transfer.FLIPBlend(d, s.mac, s.macSaved, float32(s.cfg.Transfer.PICFLIPRatio))
	}

	s.constrainMarkerParticleVelocities(frameProgress)
}
