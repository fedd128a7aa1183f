package sim

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/output"
	"github.com/pthm-cable/riptide/particles"
	"github.com/pthm-cable/riptide/scene"
	"github.com/pthm-cable/riptide/telemetry"
	"github.com/pthm-cable/riptide/vecmath"
	"github.com/pthm-cable/riptide/whitewater"
)

// Simulator is the FLIP/APIC liquid simulator. Construct with New,
// configure through the setters, register obstacles and sources, call
// Initialize once, then Update per frame. The simulator is single-owner:
// all methods must be called from one goroutine.
type Simulator struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *workerPool
	rng    *rand.Rand
	seed   int64

	initialized bool
	frame       int

	// Particle store and cached column references.
	ps *particles.System

	mac      *grid.MACVelocityField
	macSaved *grid.MACVelocityField
	valid    *grid.ValidVelocityGrid

	liquid    *levelset.ParticleLevelSet
	solid     *levelset.MeshLevelSet
	weights   *grid.WeightGrid
	curvature *grid.ScalarField
	nearSolid *grid.NearSolidGrid
	mask      *grid.ParticleMaskGrid

	// Face-sampled solid velocities rebuilt from the composed solid SDF.
	solidU, solidV, solidW *grid.Array3D[float32]

	solidMgr   *scene.SolidSDFManager
	sources    *scene.SourceRegistry
	forceField *scene.ForceFieldGrid
	bodyForces []vecmath.Vec3

	ww *whitewater.Manager

	mesher        output.ParticleMesher
	meshingVolume *grid.ScalarField

	stats     telemetry.FrameStats
	timer     *telemetry.StageTimer
	outputMgr *telemetry.OutputManager
	lastFrame *output.FrameData

	// Async output stage.
	outputResult  chan *output.FrameData
	outputPending bool

	// Pending particle data applied at Initialize.
	pending pendingData

	// Upscale-on-initialization source grid, when configured.
	upscale *upscaleParams
}

type pendingData struct {
	positions   []vecmath.Vec3
	velocities  []vecmath.Vec3
	affineX     []vecmath.Vec3
	affineY     []vecmath.Vec3
	affineZ     []vecmath.Vec3
	ages        []float32
	lifetimes   []float32
	viscosities []float32
	colors      []vecmath.Vec3
	sourceIDs   []int32
	ids         []uint16
	whitewater  []output.WhitewaterParticle
}

type upscaleParams struct {
	isize, jsize, ksize int
	dx                  float64
}

// New creates a simulator from a configuration. The config is copied;
// later mutations go through the setters.
func New(cfg *config.Config) (*Simulator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomain, err)
	}
	c := *cfg
	c.ComputeDerived()

	s := &Simulator{
		cfg:    &c,
		logger: slog.Default(),
		seed:   1,
		timer:  telemetry.NewStageTimer(),
		mesher: output.ScalarFieldMesher{},
	}
	s.rng = rand.New(rand.NewSource(s.seed))
	return s, nil
}

// SetLogWriter redirects the operation log.
func (s *Simulator) SetLogWriter(w io.Writer) {
	s.logger = slog.New(slog.NewTextHandler(w, nil))
}

// SetRandomSeed fixes the RNG seed for deterministic runs.
func (s *Simulator) SetRandomSeed(seed int64) {
	s.seed = seed
	s.rng = rand.New(rand.NewSource(seed))
}

// SetMesher replaces the particle mesher backend.
func (s *Simulator) SetMesher(m output.ParticleMesher) {
	s.mesher = m
}

// Config returns a copy of the active configuration.
func (s *Simulator) Config() config.Config {
	return *s.cfg
}

// validateAndApply runs mutate on a scratch copy of the config and
// commits it only if validation passes, so no partial state survives a
// failed setter.
func (s *Simulator) validateAndApply(mutate func(c *config.Config)) error {
	c := *s.cfg
	mutate(&c)
	if err := c.Validate(); err != nil {
		s.logger.Error("setter rejected", "error", err)
		return fmt.Errorf("%w: %v", ErrDomain, err)
	}
	c.ComputeDerived()
	*s.cfg = c
	return nil
}

// SetDensity sets the fluid density.
func (s *Simulator) SetDensity(density float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Physics.Density = density })
}

// SetViscosity sets the constant fluid viscosity.
func (s *Simulator) SetViscosity(viscosity float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Physics.Viscosity = viscosity })
}

// SetVariableViscosity toggles per-particle viscosity sampling.
func (s *Simulator) SetVariableViscosity(enabled bool) error {
	return s.validateAndApply(func(c *config.Config) { c.Physics.VariableViscosity = enabled })
}

// SetSurfaceTension sets the surface tension coefficient.
func (s *Simulator) SetSurfaceTension(sigma float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Physics.SurfaceTension = sigma })
}

// SetPICFLIPRatio sets the PIC/FLIP blend ratio (1 = pure PIC).
func (s *Simulator) SetPICFLIPRatio(ratio float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Transfer.PICFLIPRatio = ratio })
}

// SetPICAPICRatio sets the PIC/APIC blend ratio.
func (s *Simulator) SetPICAPICRatio(ratio float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Transfer.PICAPICRatio = ratio })
}

// SetVelocityTransferMethod selects "flip" or "apic".
func (s *Simulator) SetVelocityTransferMethod(method string) error {
	return s.validateAndApply(func(c *config.Config) { c.Transfer.VelocityTransferMethod = method })
}

// SetCFLConditionNumber sets the CFL multiplier for substep sizing.
func (s *Simulator) SetCFLConditionNumber(cfl float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Time.CFLConditionNumber = cfl })
}

// SetMinMaxTimeStepsPerFrame bounds the substep count.
func (s *Simulator) SetMinMaxTimeStepsPerFrame(min, max int) error {
	return s.validateAndApply(func(c *config.Config) {
		c.Time.MinTimeStepsPerFrame = min
		c.Time.MaxTimeStepsPerFrame = max
	})
}

// SetOpenBoundarySides opens or closes the six domain sides, ordered
// -x,+x,-y,+y,-z,+z.
func (s *Simulator) SetOpenBoundarySides(sides [6]bool) error {
	err := s.validateAndApply(func(c *config.Config) { c.Physics.OpenBoundarySides = sides })
	if err == nil && s.solidMgr != nil {
		s.solidMgr.OpenBoundarySides = sides
		s.solidMgr.InvalidateStaticCache()
	}
	return err
}

// SetBoundaryFriction sets the domain wall friction in [0,1].
func (s *Simulator) SetBoundaryFriction(friction float64) error {
	return s.validateAndApply(func(c *config.Config) { c.Physics.BoundaryFriction = friction })
}

// SetSheetSeeding configures thin-sheet re-seeding.
func (s *Simulator) SetSheetSeeding(enabled bool, fillThreshold, fillRate float64) error {
	return s.validateAndApply(func(c *config.Config) {
		c.Sheeting.Enabled = enabled
		c.Sheeting.FillThreshold = fillThreshold
		c.Sheeting.FillRate = fillRate
	})
}

// AddBodyForce appends a constant body force (gravity-style).
func (s *Simulator) AddBodyForce(f vecmath.Vec3) {
	s.bodyForces = append(s.bodyForces, f)
	s.logger.Info("body force added", "force", fmt.Sprintf("(%g,%g,%g)", f.X, f.Y, f.Z))
}

// ResetBodyForces clears the body-force list.
func (s *Simulator) ResetBodyForces() {
	s.bodyForces = s.bodyForces[:0]
}

// bodyForceTotal sums gravity and added body forces.
func (s *Simulator) bodyForceTotal() vecmath.Vec3 {
	total := vecmath.Vec3{
		X: float32(s.cfg.Physics.Gravity[0]),
		Y: float32(s.cfg.Physics.Gravity[1]),
		Z: float32(s.cfg.Physics.Gravity[2]),
	}
	for _, f := range s.bodyForces {
		total = total.Add(f)
	}
	return total
}

// AddMeshObstacle registers a solid obstacle.
func (s *Simulator) AddMeshObstacle(o *scene.MeshObject) error {
	s.ensureScene()
	if err := s.solidMgr.AddObstacle(o); err != nil {
		return fmt.Errorf("%w: obstacle", ErrDuplicate)
	}
	s.logger.Info("obstacle added", "animated", o.Animated, "inversed", o.Inversed)
	return nil
}

// RemoveMeshObstacle unregisters a solid obstacle.
func (s *Simulator) RemoveMeshObstacle(o *scene.MeshObject) error {
	s.ensureScene()
	return s.solidMgr.RemoveObstacle(o)
}

// AddMeshFluidSource registers an inflow or outflow.
func (s *Simulator) AddMeshFluidSource(src *scene.FluidSource) error {
	s.ensureScene()
	if err := s.sources.Add(src); err != nil {
		return fmt.Errorf("%w: fluid source", ErrDuplicate)
	}
	s.logger.Info("fluid source added", "mode", src.Mode, "priority", src.Priority)
	return nil
}

// RemoveMeshFluidSource unregisters a source.
func (s *Simulator) RemoveMeshFluidSource(src *scene.FluidSource) error {
	s.ensureScene()
	return s.sources.Remove(src)
}

// AddForceField registers a force field evaluated on the coarse grid.
func (s *Simulator) AddForceField(f scene.ForceField) {
	s.ensureScene()
	s.forceField.AddForceField(f)
}

func (s *Simulator) ensureScene() {
	g := &s.cfg.Grid
	if s.solidMgr == nil {
		s.solidMgr = scene.NewSolidSDFManager(g.ISize, g.JSize, g.KSize, s.cfg.Derived.DX32)
		s.solidMgr.OpenBoundarySides = s.cfg.Physics.OpenBoundarySides
	}
	if s.sources == nil {
		s.sources = &scene.SourceRegistry{}
	}
	if s.forceField == nil {
		s.forceField = scene.NewForceFieldGrid(g.ISize, g.JSize, g.KSize,
			s.cfg.Derived.DX32, s.cfg.ForceField.ReductionLevel)
		s.forceField.WeightFluid = float32(s.cfg.ForceField.WeightFluid)
		s.forceField.WeightWhitewater = float32(s.cfg.ForceField.WeightWhitewater)
		s.forceField.WeightDust = float32(s.cfg.ForceField.WeightDust)
	}
}

// LoadMarkerParticleData queues particle arrays applied on Initialize.
// Velocity may be nil for zero initial velocities.
func (s *Simulator) LoadMarkerParticleData(positions, velocities []vecmath.Vec3) {
	s.pending.positions = append(s.pending.positions, positions...)
	if velocities != nil {
		s.pending.velocities = append(s.pending.velocities, velocities...)
	} else {
		s.pending.velocities = append(s.pending.velocities,
			make([]vecmath.Vec3, len(positions))...)
	}
}

// LoadMarkerParticleAffineData queues APIC affine rows.
func (s *Simulator) LoadMarkerParticleAffineData(ax, ay, az []vecmath.Vec3) {
	s.pending.affineX = append(s.pending.affineX, ax...)
	s.pending.affineY = append(s.pending.affineY, ay...)
	s.pending.affineZ = append(s.pending.affineZ, az...)
}

// LoadMarkerParticleAgeData queues per-particle ages.
func (s *Simulator) LoadMarkerParticleAgeData(ages []float32) {
	s.pending.ages = append(s.pending.ages, ages...)
}

// LoadMarkerParticleLifetimeData queues per-particle lifetimes.
func (s *Simulator) LoadMarkerParticleLifetimeData(lifetimes []float32) {
	s.pending.lifetimes = append(s.pending.lifetimes, lifetimes...)
}

// LoadMarkerParticleColorData queues per-particle colors.
func (s *Simulator) LoadMarkerParticleColorData(colors []vecmath.Vec3) {
	s.pending.colors = append(s.pending.colors, colors...)
}

// LoadMarkerParticleSourceIDData queues per-particle source IDs.
func (s *Simulator) LoadMarkerParticleSourceIDData(ids []int32) {
	s.pending.sourceIDs = append(s.pending.sourceIDs, ids...)
}

// LoadMarkerParticleViscosityData queues per-particle viscosities.
func (s *Simulator) LoadMarkerParticleViscosityData(viscosities []float32) {
	s.pending.viscosities = append(s.pending.viscosities, viscosities...)
}

// LoadMarkerParticleIDData queues per-particle output IDs.
func (s *Simulator) LoadMarkerParticleIDData(ids []uint16) {
	s.pending.ids = append(s.pending.ids, ids...)
}

// LoadDiffuseParticleData queues whitewater particles applied on
// Initialize.
func (s *Simulator) LoadDiffuseParticleData(particles []output.WhitewaterParticle) {
	s.pending.whitewater = append(s.pending.whitewater, particles...)
}

// AddFluidAABB fills an axis-aligned box with fluid at Initialize time
// by queueing candidate particles at sub-cell positions.
func (s *Simulator) AddFluidAABB(minCorner, maxCorner vecmath.Vec3, velocity vecmath.Vec3) {
	dx := s.cfg.Derived.DX32
	q := 0.25 * dx
	var pos []vecmath.Vec3
	var vel []vecmath.Vec3
	for z := minCorner.Z + q; z < maxCorner.Z; z += 2 * q {
		for y := minCorner.Y + q; y < maxCorner.Y; y += 2 * q {
			for x := minCorner.X + q; x < maxCorner.X; x += 2 * q {
				pos = append(pos, vecmath.Vec3{X: x, Y: y, Z: z})
				vel = append(vel, velocity)
			}
		}
	}
	s.LoadMarkerParticleData(pos, vel)
}

// SetMeshingVolume restricts surface output to a region: a cell-center
// sampled SDF negative inside the volume. Pass nil to clear.
func (s *Simulator) SetMeshingVolume(volume *grid.ScalarField) {
	s.meshingVolume = volume
}

// AddMeshFluidObject fills the interior of a mesh with fluid particles
// at Initialize time, all carrying the given velocity.
func (s *Simulator) AddMeshFluidObject(m *mesh.TriangleMesh, velocity vecmath.Vec3) {
	g := &s.cfg.Grid
	dx := s.cfg.Derived.DX32
	ls := levelset.NewMeshLevelSet(g.ISize, g.JSize, g.KSize, dx)
	ls.CalculateSignedDistanceField(m, 3)

	mask := grid.NewParticleMaskGrid(g.ISize, g.JSize, g.KSize, dx)
	var pos []vecmath.Vec3
	var vel []vecmath.Vec3
	for k := 0; k < g.KSize; k++ {
		for j := 0; j < g.JSize; j++ {
			for i := 0; i < g.ISize; i++ {
				for _, candidate := range mask.SubCellPositions(i, j, k) {
					if ls.TrilinearInterpolate(candidate) < 0 {
						pos = append(pos, candidate)
						vel = append(vel, velocity)
					}
				}
			}
		}
	}
	s.LoadMarkerParticleData(pos, vel)
}

// UpscaleOnInitialization declares that queued particle data was saved
// on a coarser grid; Initialize resamples it onto the current grid.
func (s *Simulator) UpscaleOnInitialization(prevISize, prevJSize, prevKSize int, prevDX float64) error {
	if prevISize <= 0 || prevJSize <= 0 || prevKSize <= 0 || prevDX <= 0 {
		return fmt.Errorf("%w: invalid upscale source grid", ErrDomain)
	}
	s.upscale = &upscaleParams{isize: prevISize, jsize: prevJSize, ksize: prevKSize, dx: prevDX}
	return nil
}

// IsInitialized reports whether Initialize completed.
func (s *Simulator) IsInitialized() bool {
	return s.initialized
}

// FrameStats returns the stats of the last completed frame.
func (s *Simulator) FrameStats() telemetry.FrameStats {
	return s.stats
}

// FrameData returns the output buffers of the last completed frame, or
// nil before the first Update.
func (s *Simulator) FrameData() *output.FrameData {
	return s.lastFrame
}

// ParticleCount returns the marker particle count.
func (s *Simulator) ParticleCount() int {
	if s.ps == nil {
		return 0
	}
	return s.ps.Size()
}

// Close stops the worker pool and flushes telemetry.
func (s *Simulator) Close() error {
	s.joinOutputStage()
	if s.pool != nil {
		s.pool.stop()
	}
	return s.outputMgr.Close()
}
