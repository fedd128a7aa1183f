// Package config provides configuration loading, validation, and access
// for the simulator.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Grid          GridConfig          `yaml:"grid"`
	Time          TimeConfig          `yaml:"time"`
	Physics       PhysicsConfig       `yaml:"physics"`
	Transfer      TransferConfig      `yaml:"transfer"`
	Sheeting      SheetingConfig      `yaml:"sheeting"`
	Meshing       MeshingConfig       `yaml:"meshing"`
	Attributes    AttributesConfig    `yaml:"attributes"`
	Whitewater    WhitewaterConfig    `yaml:"whitewater"`
	ForceField    ForceFieldConfig    `yaml:"force_field"`
	FluidParticle FluidParticleConfig `yaml:"fluid_particle"`
	Threads       ThreadsConfig       `yaml:"threads"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the simulation domain dimensions.
type GridConfig struct {
	ISize int     `yaml:"isize"`
	JSize int     `yaml:"jsize"`
	KSize int     `yaml:"ksize"`
	DX    float64 `yaml:"dx"` // cell width in world units

	// Domain-to-world transform for output geometry.
	DomainScale  float64    `yaml:"domain_scale"`
	DomainOffset [3]float64 `yaml:"domain_offset"`
}

// ExtremeVelocityConfig bounds removal of velocity outliers.
type ExtremeVelocityConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxRemovalPercent float64 `yaml:"max_removal_percent"` // hard cap, fraction of particles
	MaxRemovalCount   int     `yaml:"max_removal_count"`   // hard cap, absolute
	OutlierFactor     float64 `yaml:"outlier_factor"`      // threshold = factor * CFL speed cap
}

// TimeConfig holds substepping parameters.
type TimeConfig struct {
	CFLConditionNumber             float64               `yaml:"cfl_condition_number"`
	SurfaceTensionConditionNumber  float64               `yaml:"surface_tension_condition_number"`
	MinTimeStepsPerFrame           int                   `yaml:"min_time_steps_per_frame"`
	MaxTimeStepsPerFrame           int                   `yaml:"max_time_steps_per_frame"`
	AdaptiveObstacleTimeStepping   bool                  `yaml:"adaptive_obstacle_time_stepping"`
	AdaptiveForceFieldTimeStepping bool                  `yaml:"adaptive_force_field_time_stepping"`
	ExtremeVelocityRemoval         ExtremeVelocityConfig `yaml:"extreme_velocity_removal"`
}

// PhysicsConfig holds fluid material and solver parameters.
type PhysicsConfig struct {
	Density float64 `yaml:"density"`

	Viscosity                     float64 `yaml:"viscosity"`
	VariableViscosity             bool    `yaml:"variable_viscosity"` // per-particle viscosity
	ViscositySolverErrorTolerance float64 `yaml:"viscosity_solver_error_tolerance"`
	MaxViscosityIterations        int     `yaml:"max_viscosity_iterations"`

	SurfaceTension             float64 `yaml:"surface_tension"`
	SmoothSurfaceTensionKernel bool    `yaml:"smooth_surface_tension_kernel"`

	MaxPressureIterations             int     `yaml:"max_pressure_iterations"`
	PressureSolverTolerance           float64 `yaml:"pressure_solver_tolerance"`
	PressureSolverAcceptableTolerance float64 `yaml:"pressure_solver_acceptable_tolerance"`

	BoundaryFriction float64 `yaml:"boundary_friction"`

	// Open sides in the order -x,+x,-y,+y,-z,+z.
	OpenBoundarySides [6]bool `yaml:"open_boundary_sides"`
	OpenBoundaryWidth int     `yaml:"open_boundary_width"` // in cells

	// Gravity seeds the body-force list; AddBodyForce appends more.
	Gravity [3]float64 `yaml:"gravity"`
}

// TransferConfig selects and tunes the velocity transfer.
type TransferConfig struct {
	VelocityTransferMethod string  `yaml:"velocity_transfer_method"` // flip | apic
	PICFLIPRatio           float64 `yaml:"picflip_ratio"`
	PICAPICRatio           float64 `yaml:"picapic_ratio"`
}

// SheetingConfig controls thin-sheet particle re-seeding.
type SheetingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	FillThreshold float64 `yaml:"fill_threshold"` // [-1, 0]
	FillRate      float64 `yaml:"fill_rate"`      // [0, 1]
}

// ObstacleMeshingOffsetConfig pushes the surface mesh off obstacles.
type ObstacleMeshingOffsetConfig struct {
	Enabled bool    `yaml:"enabled"`
	Scale   float64 `yaml:"scale"`
}

// PreviewMeshConfig enables the coarse preview surface.
type PreviewMeshConfig struct {
	Enabled bool    `yaml:"enabled"`
	DX      float64 `yaml:"dx"`
}

// RemoveNearDomainConfig prunes triangles near the domain boundary.
type RemoveNearDomainConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Distance float64 `yaml:"distance"` // in cells
}

// MeshingConfig holds surface reconstruction parameters.
type MeshingConfig struct {
	SurfaceSubdivisionLevel    int     `yaml:"surface_subdivision_level"`
	NumPolygonizerSlices       int     `yaml:"num_polygonizer_slices"`
	SurfaceSmoothingValue      float64 `yaml:"surface_smoothing_value"`
	SurfaceSmoothingIterations int     `yaml:"surface_smoothing_iterations"`
	MinPolyhedronTriangleCount int     `yaml:"min_polyhedron_triangle_count"`

	ObstacleMeshingOffset    ObstacleMeshingOffsetConfig `yaml:"obstacle_meshing_offset"`
	InvertedContactNormals   bool                        `yaml:"inverted_contact_normals"`
	ContactThresholdDistance float64                     `yaml:"contact_threshold_distance"` // in cells

	PreviewMesh             PreviewMeshConfig      `yaml:"preview_mesh"`
	AsynchronousMeshing     bool                   `yaml:"asynchronous_meshing"`
	RemoveSurfaceNearDomain RemoveNearDomainConfig `yaml:"remove_surface_near_domain"`

	MeshOutputFormat string `yaml:"mesh_output_format"` // ply | bobj
}

// RadiusAttributeConfig is an attribute sampled over a kernel radius.
type RadiusAttributeConfig struct {
	Enabled bool    `yaml:"enabled"`
	Radius  float64 `yaml:"radius"` // in cells
}

// LifetimeAttributeConfig adds the death time to the radius attribute.
type LifetimeAttributeConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Radius    float64 `yaml:"radius"`
	DeathTime float64 `yaml:"death_time"`
}

// ColorMixingConfig controls velocity-driven color blending.
type ColorMixingConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Radius  float64 `yaml:"radius"`
}

// ColorAttributeConfig controls surface color output.
type ColorAttributeConfig struct {
	Enabled          bool              `yaml:"enabled"`
	Radius           float64           `yaml:"radius"`
	Mixing           ColorMixingConfig `yaml:"mixing"`
	MixboxSaturation float64           `yaml:"mixbox_saturation"` // pigment-mix saturation boost; 0 disables
}

// SurfaceAttributesConfig toggles per-vertex attribute streams.
type SurfaceAttributesConfig struct {
	Velocity                 bool                    `yaml:"velocity"`
	VelocityAgainstObstacles bool                    `yaml:"velocity_against_obstacles"`
	Speed                    bool                    `yaml:"speed"`
	Vorticity                bool                    `yaml:"vorticity"`
	MotionBlur               bool                    `yaml:"motion_blur"`
	Age                      RadiusAttributeConfig   `yaml:"age"`
	Lifetime                 LifetimeAttributeConfig `yaml:"lifetime"`
	WhitewaterProximity      RadiusAttributeConfig   `yaml:"whitewater_proximity"`
	Color                    ColorAttributeConfig    `yaml:"color"`
	SourceID                 bool                    `yaml:"source_id"`
	Viscosity                bool                    `yaml:"viscosity"`
}

// WhitewaterAttributesConfig toggles per-particle whitewater output.
type WhitewaterAttributesConfig struct {
	MotionBlur bool `yaml:"motion_blur"`
	Velocity   bool `yaml:"velocity"`
	ID         bool `yaml:"id"`
	Lifetime   bool `yaml:"lifetime"`

	// SingleFile interleaves all types into one buffer instead of four
	// per-type buffers.
	SingleFile bool `yaml:"single_file"`
}

// AttributesConfig groups all attribute output toggles.
type AttributesConfig struct {
	Surface    SurfaceAttributesConfig    `yaml:"surface"`
	Whitewater WhitewaterAttributesConfig `yaml:"whitewater"`
}

// PotentialRangeConfig maps a raw emission potential to [0,1].
type PotentialRangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// BoundaryBehaviorConfig holds per-side whitewater boundary behavior:
// kill | ballistic | collide, sides ordered -x,+x,-y,+y,-z,+z.
type BoundaryBehaviorConfig struct {
	Sides [6]string `yaml:"sides"`
}

// PreserveFoamConfig interpolates foam counts toward a target density.
type PreserveFoamConfig struct {
	Enabled    bool    `yaml:"enabled"`
	MinDensity float64 `yaml:"min_density"`
	MaxDensity float64 `yaml:"max_density"`
	Rate       float64 `yaml:"rate"`
}

// ObstacleInfluenceConfig scales emission near influencing obstacles.
type ObstacleInfluenceConfig struct {
	Base  float64 `yaml:"base"`
	Decay float64 `yaml:"decay"`
}

// WhitewaterConfig holds all diffuse-particle parameters.
type WhitewaterConfig struct {
	Enabled          bool `yaml:"enabled"`
	MaxParticleCount int  `yaml:"max_particle_count"`

	EmissionRate        float64              `yaml:"emission_rate"` // particles per emitter cell per second
	WavecrestPotential  PotentialRangeConfig `yaml:"wavecrest_potential"`
	TurbulencePotential PotentialRangeConfig `yaml:"turbulence_potential"`
	DustEmissionEnabled bool                 `yaml:"dust_emission_enabled"`

	MinLifetime      float64 `yaml:"min_lifetime"`
	MaxLifetime      float64 `yaml:"max_lifetime"`
	LifetimeVariance float64 `yaml:"lifetime_variance"`

	FoamLifetimeModifier   float64 `yaml:"foam_lifetime_modifier"`
	BubbleLifetimeModifier float64 `yaml:"bubble_lifetime_modifier"`
	SprayLifetimeModifier  float64 `yaml:"spray_lifetime_modifier"`
	DustLifetimeModifier   float64 `yaml:"dust_lifetime_modifier"`

	FoamLayerDepth        float64 `yaml:"foam_layer_depth"` // in cells
	FoamAdvectionStrength float64 `yaml:"foam_advection_strength"`

	BubbleDragCoefficient     float64 `yaml:"bubble_drag_coefficient"`
	BubbleBuoyancyCoefficient float64 `yaml:"bubble_buoyancy_coefficient"`
	DustDragCoefficient       float64 `yaml:"dust_drag_coefficient"`
	DustBuoyancyCoefficient   float64 `yaml:"dust_buoyancy_coefficient"`
	SprayDragCoefficient      float64 `yaml:"spray_drag_coefficient"`

	FoamBoundary   BoundaryBehaviorConfig `yaml:"foam_boundary"`
	BubbleBoundary BoundaryBehaviorConfig `yaml:"bubble_boundary"`
	SprayBoundary  BoundaryBehaviorConfig `yaml:"spray_boundary"`
	DustBoundary   BoundaryBehaviorConfig `yaml:"dust_boundary"`

	PreserveFoam      PreserveFoamConfig      `yaml:"preserve_foam"`
	ObstacleInfluence ObstacleInfluenceConfig `yaml:"obstacle_influence"`
}

// ForceFieldConfig holds force-field grid parameters.
type ForceFieldConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ReductionLevel   int     `yaml:"reduction_level"`
	WeightFluid      float64 `yaml:"weight_fluid"`
	WeightWhitewater float64 `yaml:"weight_whitewater"`
	WeightDust       float64 `yaml:"weight_dust"`
}

// FluidParticleConfig controls the FFP3 fluid-particle output.
type FluidParticleConfig struct {
	Enabled             bool    `yaml:"enabled"`
	OutputAmount        float64 `yaml:"output_amount"` // [0,1] fraction kept, by ID bins
	Velocity            bool    `yaml:"velocity"`
	Speed               bool    `yaml:"speed"`
	Vorticity           bool    `yaml:"vorticity"`
	Color               bool    `yaml:"color"`
	Age                 bool    `yaml:"age"`
	Lifetime            bool    `yaml:"lifetime"`
	WhitewaterProximity bool    `yaml:"whitewater_proximity"`
	SourceID            bool    `yaml:"source_id"`
	Debug               bool    `yaml:"debug"`
}

// ThreadsConfig sizes the worker pool.
type ThreadsConfig struct {
	MaxThreadCount int `yaml:"max_thread_count"` // 0 = GOMAXPROCS
}

// TelemetryConfig controls stats output.
type TelemetryConfig struct {
	OutputDir string `yaml:"output_dir"` // empty disables CSV export
}

// DerivedConfig holds values computed after loading.
type DerivedConfig struct {
	DX32                 float32
	MarkerParticleRadius float32 // splat kernel radius
	DomainWidth          float32
	DomainHeight         float32
	DomainDepth          float32
}

// Load loads configuration from a YAML file, merging with embedded
// defaults. An empty path uses only the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into the same struct: only fields present in the
		// file overwrite defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()
	return cfg, nil
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded defaults: %v", err))
	}
	return cfg
}

// ComputeDerived recalculates values derived from the loaded config.
// Call after mutating grid parameters.
func (c *Config) ComputeDerived() {
	c.Derived.DX32 = float32(c.Grid.DX)
	c.Derived.MarkerParticleRadius = float32(c.Grid.DX) * 0.5
	c.Derived.DomainWidth = float32(c.Grid.ISize) * c.Derived.DX32
	c.Derived.DomainHeight = float32(c.Grid.JSize) * c.Derived.DX32
	c.Derived.DomainDepth = float32(c.Grid.KSize) * c.Derived.DX32
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
