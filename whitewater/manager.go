package whitewater

import (
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/levelset"
	"github.com/pthm-cable/riptide/vecmath"
)

// Params are the tunables of the whitewater subsystem, mapped from the
// whitewater section of the configuration.
type Params struct {
	MaxParticleCount int

	EmissionRate       float32
	WavecrestMin       float32
	WavecrestMax       float32
	TurbulenceMin      float32
	TurbulenceMax      float32
	DustEmissionEnabled bool

	MinLifetime      float32
	MaxLifetime      float32
	LifetimeVariance float32

	LifetimeModifiers [4]float32 // indexed by ParticleType

	FoamLayerDepth        float32 // in cells
	FoamAdvectionStrength float32

	BubbleDrag     float32
	BubbleBuoyancy float32
	DustDrag       float32
	DustBuoyancy   float32
	SprayDrag      float32

	// Boundary behavior per type per side (-x,+x,-y,+y,-z,+z).
	Boundary [4][6]BoundaryBehavior

	PreserveFoamEnabled bool
	PreserveMinDensity  float32
	PreserveMaxDensity  float32
	PreserveRate        float32

	ObstacleInfluenceBase  float32
	ObstacleInfluenceDecay float32
}

// StepData is the per-substep view of the simulation the whitewater
// update consumes.
type StepData struct {
	DT float32

	Liquid    *levelset.ParticleLevelSet
	Solid     *levelset.MeshLevelSet
	Velocity  *grid.MACVelocityField
	Curvature *grid.ScalarField
	Curl      *grid.VectorField

	Gravity vecmath.Vec3

	// ForceAt optionally samples the force-field grid; nil when no
	// force fields are registered.
	ForceAt func(p vecmath.Vec3) vecmath.Vec3
	// Force-field weights per particle class.
	ForceWeightWhitewater float32
	ForceWeightDust       float32
}

// Manager owns the diffuse particle population.
type Manager struct {
	ISize, JSize, KSize int
	DX                  float32

	params Params

	world  *ecs.World
	mapper *ecs.Map3[Position, Velocity, State]
	filter *ecs.Filter3[Position, Velocity, State]

	rng    *rand.Rand
	nextID uint8

	counts [4]int
}

// NewManager creates an empty whitewater population for the given grid.
func NewManager(isize, jsize, ksize int, dx float32, params Params, seed int64) *Manager {
	world := ecs.NewWorld()
	return &Manager{
		ISize: isize, JSize: jsize, KSize: ksize, DX: dx,
		params: params,
		world:  world,
		mapper: ecs.NewMap3[Position, Velocity, State](world),
		filter: ecs.NewFilter3[Position, Velocity, State](world),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SetParams replaces the tunables.
func (m *Manager) SetParams(p Params) {
	m.params = p
}

// Counts returns the particle counts per type.
func (m *Manager) Counts() (foam, bubble, spray, dust int) {
	return m.counts[TypeFoam], m.counts[TypeBubble], m.counts[TypeSpray], m.counts[TypeDust]
}

// TotalCount returns the population size.
func (m *Manager) TotalCount() int {
	return m.counts[0] + m.counts[1] + m.counts[2] + m.counts[3]
}

// ForEach visits every particle.
func (m *Manager) ForEach(fn func(p Position, v Velocity, s State)) {
	q := m.filter.Query()
	for q.Next() {
		p, v, s := q.Get()
		fn(*p, *v, *s)
	}
}

// Seed inserts a particle with explicit state, used when loading saved
// diffuse data.
func (m *Manager) Seed(pos, vel vecmath.Vec3, t ParticleType, lifetime float32, id uint8) {
	p := Position{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := Velocity{X: vel.X, Y: vel.Y, Z: vel.Z}
	st := State{Type: t, Lifetime: lifetime, ID: id}
	m.mapper.NewEntity(&p, &v, &st)
	m.counts[t]++
}

// potentialEnergy maps a raw potential through [min,max] to [0,1].
func potentialEnergy(value, min, max float32) float32 {
	if max <= min {
		return 0
	}
	return vecmath.Clamp((value-min)/(max-min), 0, 1)
}

func (m *Manager) spawn(p Position, v Velocity, t ParticleType, lifetime float32) {
	if m.params.MaxParticleCount > 0 && m.TotalCount() >= m.params.MaxParticleCount {
		return
	}
	s := State{Type: t, Lifetime: lifetime, ID: m.nextID}
	m.nextID++ // uint8 wraparound is the intended grouping behavior
	m.mapper.NewEntity(&p, &v, &s)
	m.counts[t]++
}

func (m *Manager) sampleLifetime(t ParticleType) float32 {
	p := &m.params
	span := p.MaxLifetime - p.MinLifetime
	life := p.MinLifetime + m.rng.Float32()*span
	life += (m.rng.Float32()*2 - 1) * p.LifetimeVariance
	life *= p.LifetimeModifiers[t]
	if life < 0.016 {
		life = 0.016
	}
	return life
}

// Emit seeds new particles from the wave-crest, turbulence, and dust
// emission potentials of the surface cells.
func (m *Manager) Emit(d StepData) {
	p := &m.params
	if p.EmissionRate <= 0 {
		return
	}

	surface := d.Liquid.SurfaceCells(2.0)
	for _, c := range surface {
		crest := potentialEnergy(d.Curvature.Get(c.I, c.J, c.K), p.WavecrestMin, p.WavecrestMax)
		turb := potentialEnergy(d.Curl.Get(c.I, c.J, c.K).Length(), p.TurbulenceMin, p.TurbulenceMax)

		dust := float32(0)
		cellCenter := vecmath.Vec3{
			X: (float32(c.I) + 0.5) * m.DX,
			Y: (float32(c.J) + 0.5) * m.DX,
			Z: (float32(c.K) + 0.5) * m.DX,
		}
		if p.DustEmissionEnabled {
			solidPhi := d.Solid.TrilinearInterpolate(cellCenter)
			if solidPhi < p.ObstacleInfluenceDecay*m.DX {
				if obj := d.Solid.ClosestMeshObject(cellCenter); obj != nil && obj.DustEmissionStrength > 0 {
					falloff := 1 - vecmath.Clamp(solidPhi/(p.ObstacleInfluenceDecay*m.DX), 0, 1)
					dust = p.ObstacleInfluenceBase * obj.DustEmissionStrength * falloff
				}
			}
		}

		influence := float32(1)
		if obj := d.Solid.ClosestMeshObject(cellCenter); obj != nil {
			influence = obj.WhitewaterInfluence
		}

		energy := vecmath.Clamp((crest+turb)*influence, 0, 1)
		expected := float64(energy * p.EmissionRate * d.DT)
		count := int(expected)
		if m.rng.Float64() < expected-float64(count) {
			count++
		}
		dustExpected := float64(dust * p.EmissionRate * d.DT)
		dustCount := int(dustExpected)
		if m.rng.Float64() < dustExpected-float64(dustCount) {
			dustCount++
		}
		if count == 0 && dustCount == 0 {
			continue
		}

		for n := 0; n < count+dustCount; n++ {
			pos := Position{
				X: (float32(c.I) + m.rng.Float32()) * m.DX,
				Y: (float32(c.J) + m.rng.Float32()) * m.DX,
				Z: (float32(c.K) + m.rng.Float32()) * m.DX,
			}
			vel := d.Velocity.EvaluateVelocityAtPosition(vecmath.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z})

			var t ParticleType
			if n >= count {
				t = TypeDust
			} else {
				t = m.classifyAtDepth(d, pos, vel)
			}
			m.spawn(pos, Velocity{X: vel.X, Y: vel.Y, Z: vel.Z}, t, m.sampleLifetime(t))
		}
	}
}

// classifyAtDepth picks the emission type from the liquid depth at the
// spawn position: above the surface spray, inside the foam layer foam,
// deeper bubble.
func (m *Manager) classifyAtDepth(d StepData, pos Position, vel vecmath.Vec3) ParticleType {
	phi := d.Liquid.TrilinearInterpolate(vecmath.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z})
	switch {
	case phi > 0:
		return TypeSpray
	case phi > -m.params.FoamLayerDepth*m.DX:
		return TypeFoam
	default:
		return TypeBubble
	}
}

// Advance integrates particle motion, applies type transitions, boundary
// behavior, and lifetime decay, and removes dead particles.
func (m *Manager) Advance(d StepData) {
	p := &m.params
	var dead []ecs.Entity

	q := m.filter.Query()
	for q.Next() {
		e := q.Entity()
		pos, vel, st := q.Get()

		st.Lifetime -= d.DT
		if st.Lifetime <= 0 {
			dead = append(dead, e)
			m.counts[st.Type]--
			continue
		}

		wp := vecmath.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
		wv := vecmath.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
		fluidVel := d.Velocity.EvaluateVelocityAtPosition(wp)

		if d.ForceAt != nil && st.Type != TypeFoam {
			weight := d.ForceWeightWhitewater
			if st.Type == TypeDust {
				weight = d.ForceWeightDust
			}
			wv = wv.Add(d.ForceAt(wp).Scale(weight * d.DT))
		}

		switch st.Type {
		case TypeFoam:
			// Foam rides the surface layer with the fluid.
			wv = fluidVel.Scale(p.FoamAdvectionStrength)
		case TypeBubble, TypeDust:
			drag := p.BubbleDrag
			buoy := p.BubbleBuoyancy
			if st.Type == TypeDust {
				drag = p.DustDrag
				buoy = p.DustBuoyancy
			}
			// Drag toward the fluid velocity plus buoyancy against
			// gravity.
			accel := fluidVel.Sub(wv).Scale(drag / d.DT * dragLimiter(drag, d.DT)).
				Add(d.Gravity.Scale(-buoy))
			wv = wv.Add(accel.Scale(d.DT))
		case TypeSpray:
			wv = wv.Add(d.Gravity.Scale(d.DT))
			wv = wv.Scale(1 - vecmath.Clamp(p.SprayDrag*d.DT, 0, 1))
		}

		next := wp.Add(wv.Scale(d.DT))

		// Foam stays pinned to the surface layer.
		if st.Type == TypeFoam {
			phi := d.Liquid.TrilinearInterpolate(next)
			grad := d.Liquid.TrilinearInterpolateGradient(next).Normalize()
			next = next.Sub(grad.Scale(phi))
		}

		next, wv, killed := m.resolveBoundary(st.Type, next, wv)
		if killed {
			dead = append(dead, e)
			m.counts[st.Type]--
			continue
		}

		// Solid collision: project out along the SDF gradient.
		solidPhi := d.Solid.TrilinearInterpolate(next)
		if solidPhi < 0 {
			grad := d.Solid.TrilinearInterpolateGradient(next).Normalize()
			next = next.Sub(grad.Scale(solidPhi))
			wv = wv.Sub(grad.Scale(wv.Dot(grad)))
		}

		m.applyTypeTransition(d, st, next, wv)

		pos.X, pos.Y, pos.Z = next.X, next.Y, next.Z
		vel.X, vel.Y, vel.Z = wv.X, wv.Y, wv.Z
	}

	for _, e := range dead {
		m.world.RemoveEntity(e)
	}

	if p.PreserveFoamEnabled {
		m.preserveFoam(d)
	}
}

// dragLimiter keeps the implicit-ish drag step stable for large
// drag·dt products.
func dragLimiter(drag, dt float32) float32 {
	x := drag * dt
	if x > 1 {
		return 1 / x
	}
	return 1
}

// applyTypeTransition reclassifies particles by depth and speed: foam
// sinking below the layer becomes bubble; bubbles surfacing become foam
// or spray depending on height and speed. Dust keeps its identity.
func (m *Manager) applyTypeTransition(d StepData, st *State, pos, vel vecmath.Vec3) {
	if st.Type == TypeDust {
		return
	}
	phi := d.Liquid.TrilinearInterpolate(pos)
	layer := m.params.FoamLayerDepth * m.DX

	switch st.Type {
	case TypeFoam:
		if phi < -layer {
			m.counts[TypeFoam]--
			st.Type = TypeBubble
			m.counts[TypeBubble]++
		}
	case TypeBubble:
		if phi > 0 {
			m.counts[TypeBubble]--
			if phi > layer && vel.Length() > 0.5*m.speedScale() {
				st.Type = TypeSpray
			} else {
				st.Type = TypeFoam
			}
			m.counts[st.Type]++
		}
	case TypeSpray:
		if phi < -layer {
			m.counts[TypeSpray]--
			st.Type = TypeBubble
			m.counts[TypeBubble]++
		}
	}
}

func (m *Manager) speedScale() float32 {
	return m.DX / 0.0625
}

// resolveBoundary applies the per-type per-side boundary behavior.
func (m *Manager) resolveBoundary(t ParticleType, pos, vel vecmath.Vec3) (vecmath.Vec3, vecmath.Vec3, bool) {
	width := float32(m.ISize) * m.DX
	height := float32(m.JSize) * m.DX
	depth := float32(m.KSize) * m.DX
	eps := 0.001 * m.DX
	b := &m.params.Boundary[t]

	type axisCheck struct {
		side  int
		out   bool
		set   func()
		bounce func()
	}
	checks := []axisCheck{
		{0, pos.X < eps, func() { pos.X = eps }, func() { vel.X = -vel.X }},
		{1, pos.X > width-eps, func() { pos.X = width - eps }, func() { vel.X = -vel.X }},
		{2, pos.Y < eps, func() { pos.Y = eps }, func() { vel.Y = -vel.Y }},
		{3, pos.Y > height-eps, func() { pos.Y = height - eps }, func() { vel.Y = -vel.Y }},
		{4, pos.Z < eps, func() { pos.Z = eps }, func() { vel.Z = -vel.Z }},
		{5, pos.Z > depth-eps, func() { pos.Z = depth - eps }, func() { vel.Z = -vel.Z }},
	}
	for _, c := range checks {
		if !c.out {
			continue
		}
		switch b[c.side] {
		case BehaviorKill:
			return pos, vel, true
		case BehaviorBallistic:
			// Leave the particle in flight; it dies by lifetime.
		case BehaviorCollide:
			c.set()
			c.bounce()
		}
	}
	return pos, vel, false
}

// preserveFoam nudges the foam population toward the configured density
// band by culling excess and extending lifetimes when sparse.
func (m *Manager) preserveFoam(d StepData) {
	p := &m.params
	fluidCells := 0
	for k := 0; k < m.KSize; k++ {
		for j := 0; j < m.JSize; j++ {
			for i := 0; i < m.ISize; i++ {
				if d.Liquid.IsCellFluid(i, j, k) {
					fluidCells++
				}
			}
		}
	}
	if fluidCells == 0 {
		return
	}
	surfaceArea := float32(math.Pow(float64(fluidCells), 2.0/3.0))
	density := float32(m.counts[TypeFoam]) / surfaceArea

	switch {
	case density > p.PreserveMaxDensity:
		// Cull uniformly toward the cap.
		excess := float32(m.counts[TypeFoam]) - p.PreserveMaxDensity*surfaceArea
		cullProb := excess / float32(m.counts[TypeFoam]) * p.PreserveRate
		var dead []ecs.Entity
		q := m.filter.Query()
		for q.Next() {
			_, _, st := q.Get()
			if st.Type == TypeFoam && m.rng.Float32() < cullProb {
				dead = append(dead, q.Entity())
				m.counts[TypeFoam]--
			}
		}
		for _, e := range dead {
			m.world.RemoveEntity(e)
		}
	case density < p.PreserveMinDensity:
		// Sparse foam persists: extend lifetimes instead of spawning
		// unmotivated particles.
		q := m.filter.Query()
		for q.Next() {
			_, _, st := q.Get()
			if st.Type == TypeFoam {
				st.Lifetime += p.PreserveRate * d.DT
			}
		}
	}
}

// RemoveInRegion culls particles for which inside(p) is true (outflow
// processing). Returns the number removed.
func (m *Manager) RemoveInRegion(inside func(p vecmath.Vec3) bool) int {
	var dead []ecs.Entity
	q := m.filter.Query()
	for q.Next() {
		pos, _, st := q.Get()
		if inside(vecmath.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}) {
			dead = append(dead, q.Entity())
			m.counts[st.Type]--
		}
	}
	for _, e := range dead {
		m.world.RemoveEntity(e)
	}
	return len(dead)
}
