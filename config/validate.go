package config

import (
	"errors"
	"fmt"
)

// ErrDomain is the sentinel for invalid configuration values. Setter
// validation wraps it with a descriptive message.
var ErrDomain = errors.New("config: domain error")

func domainErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDomain, fmt.Sprintf(format, args...))
}

// Validate checks the full configuration and returns the first violation
// found, or nil.
func (c *Config) Validate() error {
	if c.Grid.ISize <= 0 || c.Grid.JSize <= 0 || c.Grid.KSize <= 0 {
		return domainErrorf("grid dimensions must be positive, got %dx%dx%d",
			c.Grid.ISize, c.Grid.JSize, c.Grid.KSize)
	}
	if c.Grid.DX <= 0 {
		return domainErrorf("cell width must be positive, got %g", c.Grid.DX)
	}
	if c.Physics.Density <= 0 {
		return domainErrorf("density must be positive, got %g", c.Physics.Density)
	}
	if c.Physics.Viscosity < 0 {
		return domainErrorf("viscosity must be non-negative, got %g", c.Physics.Viscosity)
	}
	if c.Physics.SurfaceTension < 0 {
		return domainErrorf("surface tension must be non-negative, got %g", c.Physics.SurfaceTension)
	}
	if c.Physics.BoundaryFriction < 0 || c.Physics.BoundaryFriction > 1 {
		return domainErrorf("boundary friction must be in [0,1], got %g", c.Physics.BoundaryFriction)
	}
	if c.Physics.MaxPressureIterations <= 0 {
		return domainErrorf("max pressure iterations must be positive, got %d",
			c.Physics.MaxPressureIterations)
	}
	if c.Physics.MaxViscosityIterations <= 0 {
		return domainErrorf("max viscosity iterations must be positive, got %d",
			c.Physics.MaxViscosityIterations)
	}
	if c.Physics.OpenBoundaryWidth < 1 {
		return domainErrorf("open boundary width must be at least 1 cell, got %d",
			c.Physics.OpenBoundaryWidth)
	}

	if c.Time.CFLConditionNumber <= 0 {
		return domainErrorf("CFL condition number must be positive, got %g",
			c.Time.CFLConditionNumber)
	}
	if c.Time.MinTimeStepsPerFrame < 1 {
		return domainErrorf("min time steps per frame must be at least 1, got %d",
			c.Time.MinTimeStepsPerFrame)
	}
	if c.Time.MaxTimeStepsPerFrame < c.Time.MinTimeStepsPerFrame {
		return domainErrorf("max time steps per frame (%d) below min (%d)",
			c.Time.MaxTimeStepsPerFrame, c.Time.MinTimeStepsPerFrame)
	}

	switch c.Transfer.VelocityTransferMethod {
	case "flip", "apic":
	default:
		return domainErrorf("velocity transfer method must be flip or apic, got %q",
			c.Transfer.VelocityTransferMethod)
	}
	if c.Transfer.PICFLIPRatio < 0 || c.Transfer.PICFLIPRatio > 1 {
		return domainErrorf("PIC/FLIP ratio must be in [0,1], got %g", c.Transfer.PICFLIPRatio)
	}
	if c.Transfer.PICAPICRatio < 0 || c.Transfer.PICAPICRatio > 1 {
		return domainErrorf("PIC/APIC ratio must be in [0,1], got %g", c.Transfer.PICAPICRatio)
	}

	if c.Sheeting.FillThreshold < -1 || c.Sheeting.FillThreshold > 0 {
		return domainErrorf("sheet fill threshold must be in [-1,0], got %g",
			c.Sheeting.FillThreshold)
	}
	if c.Sheeting.FillRate < 0 || c.Sheeting.FillRate > 1 {
		return domainErrorf("sheet fill rate must be in [0,1], got %g", c.Sheeting.FillRate)
	}

	switch c.Meshing.MeshOutputFormat {
	case "ply", "bobj":
	default:
		return domainErrorf("mesh output format must be ply or bobj, got %q",
			c.Meshing.MeshOutputFormat)
	}
	if c.Meshing.SurfaceSubdivisionLevel < 1 {
		return domainErrorf("surface subdivision level must be at least 1, got %d",
			c.Meshing.SurfaceSubdivisionLevel)
	}
	if c.Meshing.NumPolygonizerSlices < 1 {
		return domainErrorf("polygonizer slice count must be at least 1, got %d",
			c.Meshing.NumPolygonizerSlices)
	}
	if c.Meshing.PreviewMesh.Enabled && c.Meshing.PreviewMesh.DX <= 0 {
		return domainErrorf("preview mesh cell size must be positive, got %g",
			c.Meshing.PreviewMesh.DX)
	}

	if c.FluidParticle.OutputAmount < 0 || c.FluidParticle.OutputAmount > 1 {
		return domainErrorf("fluid particle output amount must be in [0,1], got %g",
			c.FluidParticle.OutputAmount)
	}

	if c.Whitewater.Enabled {
		if c.Whitewater.MaxParticleCount < 0 {
			return domainErrorf("whitewater max particle count must be non-negative, got %d",
				c.Whitewater.MaxParticleCount)
		}
		if c.Whitewater.MinLifetime < 0 || c.Whitewater.MaxLifetime < c.Whitewater.MinLifetime {
			return domainErrorf("whitewater lifetimes must satisfy 0 <= min <= max, got [%g, %g]",
				c.Whitewater.MinLifetime, c.Whitewater.MaxLifetime)
		}
		for _, b := range []BoundaryBehaviorConfig{
			c.Whitewater.FoamBoundary, c.Whitewater.BubbleBoundary,
			c.Whitewater.SprayBoundary, c.Whitewater.DustBoundary,
		} {
			for _, side := range b.Sides {
				switch side {
				case "kill", "ballistic", "collide":
				default:
					return domainErrorf("whitewater boundary behavior must be kill, ballistic, or collide, got %q", side)
				}
			}
		}
	}

	if c.ForceField.ReductionLevel < 1 {
		return domainErrorf("force field reduction level must be at least 1, got %d",
			c.ForceField.ReductionLevel)
	}
	if c.Threads.MaxThreadCount < 0 {
		return domainErrorf("max thread count must be non-negative, got %d",
			c.Threads.MaxThreadCount)
	}
	return nil
}
