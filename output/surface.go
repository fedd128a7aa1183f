package output

import (
	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

// GenerateFrame runs the full output stage on a snapshot: surface
// meshing, mesh processing, per-vertex attribute streams, whitewater and
// fluid-particle buffers. It touches nothing but the snapshot, so it is
// safe to run on the output worker while the next substep simulates.
func GenerateFrame(s *Snapshot, mesher ParticleMesher) *FrameData {
	out := &FrameData{Frame: s.Frame}
	cfg := &s.Cfg
	format := ParseMeshFormat(cfg.Meshing.MeshOutputFormat)

	meshDX := s.DX / float32(cfg.Meshing.SurfaceSubdivisionLevel)
	radius := 1.01 * s.DX

	surface := mesher.Mesh(s.Positions, radius, s.Domain, meshDX, cfg.Meshing.NumPolygonizerSlices)

	processSurface(surface, s, cfg)

	// Attributes sample the grids in the local frame, so they run before
	// the domain-to-world transform.
	generateSurfaceAttributes(out, surface, s, cfg)
	applyDomainTransform(surface, cfg)

	out.SurfaceVertexCount = len(surface.Vertices)
	out.SurfaceTriangleCount = len(surface.Triangles)
	out.SurfaceData = EncodeMesh(surface, format)

	if cfg.Meshing.PreviewMesh.Enabled {
		preview := mesher.Mesh(s.Positions, float32(cfg.Meshing.PreviewMesh.DX),
			s.Domain, float32(cfg.Meshing.PreviewMesh.DX), 1)
		applyDomainTransform(preview, cfg)
		out.PreviewVertexCount = len(preview.Vertices)
		out.PreviewTriangleCount = len(preview.Triangles)
		out.PreviewData = EncodeMesh(preview, format)
	}

	generateWhitewaterBuffers(out, s, cfg)

	if cfg.FluidParticle.Enabled {
		out.FluidParticleData = generateFluidParticleData(s, cfg)
		if cfg.FluidParticle.Debug {
			out.DebugData = encodeVec3Stream(s.Positions)
		}
	}

	return out
}

// processSurface applies the configured mesh processing passes in the
// order the pipeline defines: obstacle offset, smoothing, polyhedron
// pruning, near-domain pruning, contact normal flipping, meshing-volume
// culling.
func processSurface(surface *mesh.TriangleMesh, s *Snapshot, cfg *config.Config) {
	solidAt := func(p vecmath.Vec3) float32 {
		if s.SolidPhi == nil {
			return 1e10
		}
		return s.SolidPhi.TrilinearInterpolate(p)
	}

	if cfg.Meshing.ObstacleMeshingOffset.Enabled && s.SolidPhi != nil {
		offset := float32(cfg.Meshing.ObstacleMeshingOffset.Scale) * s.DX
		if offset != 0 {
			for i, v := range surface.Vertices {
				phi := solidAt(v)
				if phi < offset {
					grad := s.SolidPhi.TrilinearInterpolateGradient(v).Normalize()
					surface.Vertices[i] = v.Add(grad.Scale(offset - phi))
				}
			}
		}
	}

	surface.SmoothLaplacian(float32(cfg.Meshing.SurfaceSmoothingValue),
		cfg.Meshing.SurfaceSmoothingIterations)

	if cfg.Meshing.MinPolyhedronTriangleCount > 0 {
		surface.RemoveSmallPolyhedra(cfg.Meshing.MinPolyhedronTriangleCount)
	}

	if cfg.Meshing.RemoveSurfaceNearDomain.Enabled {
		dist := float32(cfg.Meshing.RemoveSurfaceNearDomain.Distance) * s.DX
		surface.RemoveTrianglesNearDomain(s.Domain, dist)
	}

	if cfg.Meshing.InvertedContactNormals && s.SolidPhi != nil {
		threshold := float32(cfg.Meshing.ContactThresholdDistance) * s.DX
		surface.FlipInvertedContactNormals(solidAt, threshold)
	}

	if s.MeshingVolume != nil {
		cullOutsideVolume(surface, s.MeshingVolume)
	}
}

// applyDomainTransform maps local-frame geometry to world coordinates:
// p_world = p_local · domain_scale + domain_offset.
func applyDomainTransform(m *mesh.TriangleMesh, cfg *config.Config) {
	scale := float32(cfg.Grid.DomainScale)
	if scale == 0 {
		scale = 1
	}
	offset := vecmath.Vec3{
		X: float32(cfg.Grid.DomainOffset[0]),
		Y: float32(cfg.Grid.DomainOffset[1]),
		Z: float32(cfg.Grid.DomainOffset[2]),
	}
	if scale == 1 && offset == (vecmath.Vec3{}) {
		return
	}
	for i, v := range m.Vertices {
		m.Vertices[i] = v.Scale(scale).Add(offset)
	}
}

// cullOutsideVolume removes triangles whose centroid lies outside the
// meshing volume.
func cullOutsideVolume(m *mesh.TriangleMesh, volume *grid.ScalarField) {
	kept := m.Triangles[:0]
	for _, t := range m.Triangles {
		if volume.TrilinearInterpolate(m.TriangleCentroid(t)) < 0 {
			kept = append(kept, t)
		}
	}
	m.Triangles = kept
	m.RemoveUnreferencedVertices()
}

// generateSurfaceAttributes fills the enabled per-vertex streams.
func generateSurfaceAttributes(out *FrameData, surface *mesh.TriangleMesh, s *Snapshot, cfg *config.Config) {
	att := &cfg.Attributes.Surface
	anyEnabled := att.Velocity || att.Speed || att.Vorticity || att.MotionBlur ||
		att.Age.Enabled || att.Lifetime.Enabled || att.WhitewaterProximity.Enabled ||
		att.Color.Enabled || att.SourceID || att.Viscosity
	if !anyEnabled || len(surface.Vertices) == 0 {
		return
	}

	if att.Velocity || att.Speed || att.MotionBlur {
		velocities := make([]vecmath.Vec3, len(surface.Vertices))
		for i, v := range surface.Vertices {
			velocities[i] = s.Velocity.EvaluateVelocityAtPosition(v)
		}
		if att.VelocityAgainstObstacles && s.SolidPhi != nil {
			// Report sliding velocity at contact: drop the component
			// pointing into the obstacle.
			for i, v := range surface.Vertices {
				if s.SolidPhi.TrilinearInterpolate(v) < 2*s.DX {
					n := s.SolidPhi.TrilinearInterpolateGradient(v).Normalize()
					normal := velocities[i].Dot(n)
					if normal < 0 {
						velocities[i] = velocities[i].Sub(n.Scale(normal))
					}
				}
			}
		}
		if att.Velocity {
			out.SurfaceVelocityData = encodeVec3Stream(velocities)
		}
		if att.Speed {
			speeds := make([]float32, len(velocities))
			for i, v := range velocities {
				speeds[i] = v.Length()
			}
			out.SurfaceSpeedData = encodeFloatStream(speeds)
		}
		if att.MotionBlur {
			offsets := make([]vecmath.Vec3, len(velocities))
			for i, v := range velocities {
				offsets[i] = v.Scale(s.FrameDT)
			}
			out.SurfaceBlurData = encodeVec3Stream(offsets)
		}
	}

	if att.Vorticity {
		curl := grid.GenerateCurlAtCellCenter(s.Velocity)
		values := make([]vecmath.Vec3, len(surface.Vertices))
		for i, v := range surface.Vertices {
			values[i] = curl.TrilinearInterpolate(v)
		}
		out.SurfaceVorticityData = encodeVec3Stream(values)
	}

	needBins := att.Age.Enabled || att.Lifetime.Enabled || att.Color.Enabled ||
		att.SourceID || att.Viscosity
	var bins *particleBins
	if needBins {
		bins = newParticleBins(s.Positions, s.Domain.Position,
			s.Domain.Width, s.Domain.Height, s.Domain.Depth, s.DX)
	}

	if att.Age.Enabled && s.Ages != nil {
		r := float32(att.Age.Radius) * s.DX
		values := make([]float32, len(surface.Vertices))
		for i, v := range surface.Vertices {
			values[i] = bins.gatherFloat(s.Positions, s.Ages, v, r, 0)
		}
		out.SurfaceAgeData = encodeFloatStream(values)
	}

	if att.Lifetime.Enabled && s.Lifetimes != nil {
		r := float32(att.Lifetime.Radius) * s.DX
		values := make([]float32, len(surface.Vertices))
		for i, v := range surface.Vertices {
			values[i] = bins.gatherFloat(s.Positions, s.Lifetimes, v, r, float32(att.Lifetime.DeathTime))
		}
		out.SurfaceLifetimeData = encodeFloatStream(values)
	}

	if att.WhitewaterProximity.Enabled {
		r := float32(att.WhitewaterProximity.Radius) * s.DX
		wwPositions := make([]vecmath.Vec3, len(s.Whitewater))
		for i, w := range s.Whitewater {
			wwPositions[i] = w.Position
		}
		wwBins := newParticleBins(wwPositions, s.Domain.Position,
			s.Domain.Width, s.Domain.Height, s.Domain.Depth, s.DX)
		values := make([]float32, len(surface.Vertices))
		for i, v := range surface.Vertices {
			d := wwBins.nearestDistance(wwPositions, v, r)
			values[i] = 1 - d/r
		}
		out.SurfaceWhitewaterProximityData = encodeFloatStream(values)
	}

	if att.Color.Enabled && s.Colors != nil {
		r := float32(att.Color.Radius) * s.DX
		values := make([]vecmath.Vec3, len(surface.Vertices))
		for i, v := range surface.Vertices {
			c := bins.gatherVec3(s.Positions, s.Colors, v, r)
			values[i] = boostSaturation(c, float32(att.Color.MixboxSaturation))
		}
		out.SurfaceColorData = encodeVec3Stream(values)
	}

	if att.SourceID && s.SourceIDs != nil {
		r := 2 * s.DX
		values := make([]int32, len(surface.Vertices))
		for i, v := range surface.Vertices {
			values[i] = bins.gatherNearestInt(s.Positions, s.SourceIDs, v, r, 0)
		}
		out.SurfaceSourceIDData = encodeIntStream(values)
	}

	if att.Viscosity && s.Viscosities != nil {
		r := 2 * s.DX
		values := make([]float32, len(surface.Vertices))
		for i, v := range surface.Vertices {
			values[i] = bins.gatherFloat(s.Positions, s.Viscosities, v, r, 0)
		}
		out.SurfaceViscosityData = encodeFloatStream(values)
	}
}
