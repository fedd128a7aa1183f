package scene

import (
	"errors"
	"sort"

	"github.com/pthm-cable/riptide/levelset"
)

// ErrDuplicate is returned when an obstacle or source is registered
// twice.
var ErrDuplicate = errors.New("scene: object already added")

// ErrNotFound is returned when removing an unregistered object.
var ErrNotFound = errors.New("scene: object not registered")

// sdfBand is the exact-distance band, in cells, used when rasterizing
// obstacle meshes.
const sdfBand = 3

// SolidSDFManager owns the obstacle registry and composes the solid
// signed distance field each frame. Static obstacles are cached; the
// cache is invalidated only when a static obstacle reports a state
// change.
type SolidSDFManager struct {
	ISize, JSize, KSize int
	DX                  float32

	obstacles []*MeshObject

	// Per-side open flags in the order -x,+x,-y,+y,-z,+z. Closed sides
	// contribute a one-cell-thick boundary wall to the SDF.
	OpenBoundarySides [6]bool

	// FractureOptimization batches all non-inversed animated obstacles
	// into a single combined SDF computation.
	FractureOptimization bool

	staticSDF   *levelset.MeshLevelSet
	staticValid bool
}

// NewSolidSDFManager creates an empty manager for the given grid.
func NewSolidSDFManager(isize, jsize, ksize int, dx float32) *SolidSDFManager {
	return &SolidSDFManager{ISize: isize, JSize: jsize, KSize: ksize, DX: dx}
}

// AddObstacle registers an obstacle. Adding the same object twice fails
// with ErrDuplicate.
func (m *SolidSDFManager) AddObstacle(o *MeshObject) error {
	for _, existing := range m.obstacles {
		if existing == o {
			return ErrDuplicate
		}
	}
	m.obstacles = append(m.obstacles, o)
	m.staticValid = false
	return nil
}

// RemoveObstacle unregisters an obstacle.
func (m *SolidSDFManager) RemoveObstacle(o *MeshObject) error {
	for i, existing := range m.obstacles {
		if existing == o {
			m.obstacles = append(m.obstacles[:i], m.obstacles[i+1:]...)
			m.staticValid = false
			return nil
		}
	}
	return ErrNotFound
}

// Obstacles returns the registered obstacles.
func (m *SolidSDFManager) Obstacles() []*MeshObject {
	return m.obstacles
}

// obstaclesByPriority returns the obstacles in descending priority, so
// higher-priority obstacles win closest-object ties during SDF
// composition. Ties keep registration order.
func (m *SolidSDFManager) obstaclesByPriority() []*MeshObject {
	out := append([]*MeshObject(nil), m.obstacles...)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Priority > out[b].Priority
	})
	return out
}

// addDomainBoundary unions the closed-side boundary walls into ls. The
// outermost cell layer of each closed side is solid; nodes deeper inside
// get their distance to the nearest closed wall.
func (m *SolidSDFManager) addDomainBoundary(ls *levelset.MeshLevelSet) {
	width := float32(m.ISize) * m.DX
	height := float32(m.JSize) * m.DX
	depth := float32(m.KSize) * m.DX
	wall := m.DX

	far := (width + height + depth)
	for k := 0; k <= m.KSize; k++ {
		for j := 0; j <= m.JSize; j++ {
			for i := 0; i <= m.ISize; i++ {
				x := float32(i) * m.DX
				y := float32(j) * m.DX
				z := float32(k) * m.DX

				phi := far
				sideDist := [6]float32{
					x - wall, width - wall - x,
					y - wall, height - wall - y,
					z - wall, depth - wall - z,
				}
				for s := 0; s < 6; s++ {
					if m.OpenBoundarySides[s] {
						continue
					}
					if sideDist[s] < phi {
						phi = sideDist[s]
					}
				}
				if phi < ls.Phi.Get(i, j, k) {
					ls.Phi.Set(i, j, k, phi)
				}
			}
		}
	}
}

// staticObstacleStateChanged reports whether any static obstacle has a
// pending state change.
func (m *SolidSDFManager) staticObstacleStateChanged() bool {
	for _, o := range m.obstacles {
		if !o.Animated && o.IsStateChanged() {
			return true
		}
	}
	return false
}

// computeStaticSDF rebuilds the cached static solid SDF: boundary walls
// plus all enabled static obstacles.
func (m *SolidSDFManager) computeStaticSDF() {
	ls := levelset.NewMeshLevelSet(m.ISize, m.JSize, m.KSize, m.DX)
	ls.EnableVelocityData()

	for _, o := range m.obstaclesByPriority() {
		if !o.Enabled || o.Animated {
			continue
		}
		if o.Inversed {
			m.rasterizeInversed(ls, o, 0)
		} else {
			o.RasterizeLevelSet(ls, sdfBand, 0)
		}
		o.ClearStateChange()
	}
	m.addDomainBoundary(ls)

	m.staticSDF = ls
	m.staticValid = true
}

// rasterizeInversed computes an obstacle's SDF into a temporary grid
// without velocity data, negates it, then unions it into dst.
func (m *SolidSDFManager) rasterizeInversed(dst *levelset.MeshLevelSet, o *MeshObject, t float32) {
	tmp := levelset.NewMeshLevelSet(m.ISize, m.JSize, m.KSize, m.DX)
	o.RasterizeLevelSet(tmp, sdfBand, t)
	tmp.Negate()
	if dst.IsVelocityDataEnabled() {
		tmp.EnableVelocityData()
	}
	dst.CalculateUnion(tmp)
}

// ComposeSolidSDF produces the frame's solid SDF: the cached static
// field, re-rasterized animated obstacles at frame fraction t, and the
// domain boundary. The returned field carries normalized solid velocity
// data.
func (m *SolidSDFManager) ComposeSolidSDF(t float32) *levelset.MeshLevelSet {
	if !m.staticValid || m.staticObstacleStateChanged() {
		m.computeStaticSDF()
	}

	hasAnimated := false
	for _, o := range m.obstacles {
		if o.Enabled && o.Animated {
			hasAnimated = true
			break
		}
	}
	if !hasAnimated {
		m.staticSDF.NormalizeVelocityData()
		return m.staticSDF
	}

	composed := levelset.NewMeshLevelSet(m.ISize, m.JSize, m.KSize, m.DX)
	composed.EnableVelocityData()
	composed.CalculateUnion(m.staticSDF)

	if m.FractureOptimization {
		// One batched SDF pass for every non-inversed animated obstacle.
		batch := levelset.NewMeshLevelSet(m.ISize, m.JSize, m.KSize, m.DX)
		batch.EnableVelocityData()
		any := false
		for _, o := range m.obstaclesByPriority() {
			if o.Enabled && o.Animated && !o.Inversed {
				o.RasterizeLevelSet(batch, sdfBand, t)
				o.ClearStateChange()
				any = true
			}
		}
		if any {
			composed.CalculateUnion(batch)
		}
	} else {
		for _, o := range m.obstaclesByPriority() {
			if o.Enabled && o.Animated && !o.Inversed {
				tmp := levelset.NewMeshLevelSet(m.ISize, m.JSize, m.KSize, m.DX)
				tmp.EnableVelocityData()
				o.RasterizeLevelSet(tmp, sdfBand, t)
				o.ClearStateChange()
				composed.CalculateUnion(tmp)
			}
		}
	}

	for _, o := range m.obstaclesByPriority() {
		if o.Enabled && o.Animated && o.Inversed {
			m.rasterizeInversed(composed, o, t)
			o.ClearStateChange()
		}
	}

	composed.NormalizeVelocityData()
	return composed
}

// InvalidateStaticCache forces the next compose to rebuild the static
// field (grid or boundary configuration changed).
func (m *SolidSDFManager) InvalidateStaticCache() {
	m.staticValid = false
}
