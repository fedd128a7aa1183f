package output

import (
	"github.com/pthm-cable/riptide/config"
	"github.com/pthm-cable/riptide/grid"
	"github.com/pthm-cable/riptide/mesh"
	"github.com/pthm-cable/riptide/vecmath"
)

// WhitewaterParticle is the output stage's flattened view of a diffuse
// particle.
type WhitewaterParticle struct {
	Position vecmath.Vec3
	Velocity vecmath.Vec3
	Type     uint8
	Lifetime float32
	ID       uint8
}

// Snapshot is the data captured at the first-substep boundary and moved
// to the output worker. The simulation does not touch it afterwards.
type Snapshot struct {
	Frame   int
	FrameDT float32

	Domain mesh.AABB
	DX     float32

	// Marker particle columns; optional slices are nil when the
	// corresponding attribute or stream is disabled.
	Positions   []vecmath.Vec3
	Velocities  []vecmath.Vec3
	IDs         []uint16
	Ages        []float32
	Lifetimes   []float32
	Viscosities []float32
	Colors      []vecmath.Vec3
	SourceIDs   []int32

	// Velocity is a private copy of the MAC field for motion blur,
	// velocity attributes, and vorticity.
	Velocity *grid.MACVelocityField

	// SolidPhi is a minimal node-sampled copy of the solid SDF.
	SolidPhi *grid.ScalarField

	// MeshingVolume optionally culls output to a region (negative
	// inside the volume).
	MeshingVolume *grid.ScalarField

	Whitewater []WhitewaterParticle

	Cfg config.Config
}

// FrameData holds the encoded output buffers and stats of one frame.
type FrameData struct {
	Frame int

	SurfaceData           []byte
	SurfaceBlurData       []byte
	PreviewData           []byte
	SurfaceVelocityData   []byte
	SurfaceSpeedData      []byte
	SurfaceVorticityData  []byte
	SurfaceAgeData        []byte
	SurfaceLifetimeData   []byte
	SurfaceWhitewaterProximityData []byte
	SurfaceColorData      []byte
	SurfaceSourceIDData   []byte
	SurfaceViscosityData  []byte

	WhitewaterData []byte // single-file layout
	FoamData       []byte // per-type layout
	BubbleData     []byte
	SprayData      []byte
	DustData       []byte
	WhitewaterBlurData     []byte
	WhitewaterVelocityData []byte
	WhitewaterIDData       []byte
	WhitewaterLifetimeData []byte

	FluidParticleData []byte
	DebugData         []byte

	SurfaceVertexCount   int
	SurfaceTriangleCount int
	PreviewVertexCount   int
	PreviewTriangleCount int
}

// TotalBytes sums all buffer sizes.
func (f *FrameData) TotalBytes() int {
	total := 0
	for _, b := range [][]byte{
		f.SurfaceData, f.SurfaceBlurData, f.PreviewData,
		f.SurfaceVelocityData, f.SurfaceSpeedData, f.SurfaceVorticityData,
		f.SurfaceAgeData, f.SurfaceLifetimeData, f.SurfaceWhitewaterProximityData,
		f.SurfaceColorData, f.SurfaceSourceIDData, f.SurfaceViscosityData,
		f.WhitewaterData, f.FoamData, f.BubbleData, f.SprayData, f.DustData,
		f.WhitewaterBlurData, f.WhitewaterVelocityData, f.WhitewaterIDData,
		f.WhitewaterLifetimeData, f.FluidParticleData, f.DebugData,
	} {
		total += len(b)
	}
	return total
}
