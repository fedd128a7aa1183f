package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLoads(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded defaults invalid: %v", err)
	}
	if cfg.Grid.ISize <= 0 || cfg.Grid.DX <= 0 {
		t.Error("grid defaults missing")
	}
	if cfg.Physics.Density != 1000 {
		t.Errorf("density default = %v, want 1000", cfg.Physics.Density)
	}
	if cfg.Transfer.VelocityTransferMethod != "flip" {
		t.Errorf("transfer default = %q", cfg.Transfer.VelocityTransferMethod)
	}
	if cfg.Derived.DX32 == 0 || cfg.Derived.DomainWidth == 0 {
		t.Error("derived values not computed")
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	overlay := "physics:\n  density: 500.0\ngrid:\n  isize: 32\n"
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Physics.Density != 500 {
		t.Errorf("overridden density = %v", cfg.Physics.Density)
	}
	if cfg.Grid.ISize != 32 {
		t.Errorf("overridden isize = %d", cfg.Grid.ISize)
	}
	// Untouched fields keep defaults.
	if cfg.Grid.JSize != 64 {
		t.Errorf("jsize = %d, want default 64", cfg.Grid.JSize)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative density", func(c *Config) { c.Physics.Density = -1 }},
		{"zero grid", func(c *Config) { c.Grid.ISize = 0 }},
		{"bad ratio", func(c *Config) { c.Transfer.PICFLIPRatio = 1.5 }},
		{"bad method", func(c *Config) { c.Transfer.VelocityTransferMethod = "pic2" }},
		{"bad format", func(c *Config) { c.Meshing.MeshOutputFormat = "obj" }},
		{"bad sheet threshold", func(c *Config) { c.Sheeting.FillThreshold = 0.5 }},
		{"max below min steps", func(c *Config) {
			c.Time.MinTimeStepsPerFrame = 8
			c.Time.MaxTimeStepsPerFrame = 2
		}},
		{"bad output amount", func(c *Config) { c.FluidParticle.OutputAmount = 2 }},
		{"bad boundary behavior", func(c *Config) {
			c.Whitewater.Enabled = true
			c.Whitewater.FoamBoundary.Sides[0] = "explode"
		}},
		{"negative friction", func(c *Config) { c.Physics.BoundaryFriction = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrDomain) {
				t.Errorf("error %v does not wrap ErrDomain", err)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Physics.Density = 750
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Physics.Density != 750 {
		t.Errorf("round-tripped density = %v", loaded.Physics.Density)
	}
}
