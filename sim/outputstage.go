package sim

import (
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/output"
	"github.com/pthm-cable/riptide/particles"
	"github.com/pthm-cable/riptide/vecmath"
	"github.com/pthm-cable/riptide/whitewater"
)

// captureSnapshot deep-copies everything the output stage reads, so the
// worker owns its data exclusively while the remaining substeps mutate
// the live state.
func (s *Simulator) captureSnapshot(frameDT float32) *output.Snapshot {
	cfg := s.cfg
	snap := &output.Snapshot{
		Frame:   s.frame,
		FrameDT: frameDT,
		DX:      cfg.Derived.DX32,
		Domain: mesh.NewAABB(vecmath.Vec3{},
			cfg.Derived.DomainWidth, cfg.Derived.DomainHeight, cfg.Derived.DomainDepth),
		Cfg: *cfg,
	}

	snap.Positions = append([]vecmath.Vec3(nil), s.positions()...)
	snap.Velocities = append([]vecmath.Vec3(nil), s.velocities()...)
	if s.ps.HasAttribute(particles.AttrID) {
		snap.IDs = append([]uint16(nil), *s.ps.ValuesUInt16(particles.AttrID)...)
	}
	if s.ps.HasAttribute(particles.AttrAge) {
		snap.Ages = append([]float32(nil), *s.ps.ValuesFloat(particles.AttrAge)...)
	}
	if s.ps.HasAttribute(particles.AttrLifetime) {
		snap.Lifetimes = append([]float32(nil), *s.ps.ValuesFloat(particles.AttrLifetime)...)
	}
	if s.ps.HasAttribute(particles.AttrViscosity) {
		snap.Viscosities = append([]float32(nil), *s.ps.ValuesFloat(particles.AttrViscosity)...)
	}
	if s.ps.HasAttribute(particles.AttrColor) {
		snap.Colors = append([]vecmath.Vec3(nil), *s.ps.ValuesVector3(particles.AttrColor)...)
	}
	if s.ps.HasAttribute(particles.AttrSourceID) {
		snap.SourceIDs = append([]int32(nil), *s.ps.ValuesInt(particles.AttrSourceID)...)
	}

	snap.MeshingVolume = s.meshingVolume
	snap.Velocity = s.mac.Clone()
	if s.solid != nil {
		phi := *s.solid.Phi
		phi.Array3D = s.solid.Phi.Array3D.Clone()
		snap.SolidPhi = &phi
	}

	if s.ww != nil {
		s.ww.ForEach(func(p whitewater.Position, v whitewater.Velocity, st whitewater.State) {
			snap.Whitewater = append(snap.Whitewater, output.WhitewaterParticle{
				Position: vecmath.Vec3{X: p.X, Y: p.Y, Z: p.Z},
				Velocity: vecmath.Vec3{X: v.X, Y: v.Y, Z: v.Z},
				Type:     uint8(st.Type),
				Lifetime: st.Lifetime,
				ID:       st.ID,
			})
		})
	}
	return snap
}

// launchOutputStage hands a snapshot to the output worker. With
// asynchronous meshing the worker runs concurrently with the remaining
// substeps; otherwise the frame is generated inline.
func (s *Simulator) launchOutputStage(frameDT float32) {
	snap := s.captureSnapshot(frameDT)

	if !s.cfg.Meshing.AsynchronousMeshing {
		s.finishFrame(output.GenerateFrame(snap, s.mesher))
		return
	}

	s.outputResult = make(chan *output.FrameData, 1)
	s.outputPending = true
	go func(snap *output.Snapshot, result chan<- *output.FrameData) {
		result <- output.GenerateFrame(snap, s.mesher)
	}(snap, s.outputResult)
}

// joinOutputStage blocks until the async worker delivers the frame.
func (s *Simulator) joinOutputStage() {
	if !s.outputPending {
		return
	}
	s.finishFrame(<-s.outputResult)
	s.outputPending = false
}

// finishFrame records the generated buffers into the frame stats.
func (s *Simulator) finishFrame(fd *output.FrameData) {
	s.lastFrame = fd
	s.stats.SurfaceVertices = fd.SurfaceVertexCount
	s.stats.SurfaceTriangles = fd.SurfaceTriangleCount
	s.stats.PreviewVertices = fd.PreviewVertexCount
	s.stats.PreviewTriangles = fd.PreviewTriangleCount
	s.stats.SurfaceBytes = len(fd.SurfaceData)
	s.stats.PreviewBytes = len(fd.PreviewData)
	s.stats.WhitewaterBytes = len(fd.WhitewaterData) + len(fd.FoamData) +
		len(fd.BubbleData) + len(fd.SprayData) + len(fd.DustData)
	s.stats.ParticleBytes = len(fd.FluidParticleData)
	s.stats.DebugBytes = len(fd.DebugData)
}
