package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GroupConfig names one boundary class to measure against and the display
// color attached to its records. Order in the file is the output order.
type GroupConfig struct {
	Label string `yaml:"label"`
	Color string `yaml:"color"`
}

// Config is the measurement engine configuration. The class labels and
// colors that the original tooling kept as process-wide lookups are explicit
// here and passed into the service.
type Config struct {
	Groups []GroupConfig `yaml:"groups"`

	// PixelSizeUm overrides the study document's pixel size when > 0.
	PixelSizeUm float64 `yaml:"pixel_size_um"`

	// Unit names the physical unit distances are reported in.
	Unit string `yaml:"unit"`

	// Workers bounds per-detection parallelism; 0 means one per CPU.
	Workers int `yaml:"workers"`
}

// Default returns the configuration used when no file is given: the two
// myocardial boundary classes with their conventional display colors.
func Default() *Config {
	return &Config{
		Groups: []GroupConfig{
			{Label: "endo", Color: "#ff0000"},
			{Label: "epi", Color: "#0000ff"},
		},
		Unit: "um",
	}
}

// Load reads a YAML config file, layering it over the defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural invariants: non-empty unique group labels, a
// non-negative worker count, and a non-negative pixel size override.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Groups))
	for i, g := range c.Groups {
		if g.Label == "" {
			return fmt.Errorf("group %d has an empty label", i)
		}
		if _, dup := seen[g.Label]; dup {
			return fmt.Errorf("duplicate group label %q", g.Label)
		}
		seen[g.Label] = struct{}{}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.PixelSizeUm < 0 {
		return fmt.Errorf("pixel_size_um must be >= 0, got %v", c.PixelSizeUm)
	}
	if c.Unit == "" {
		c.Unit = "um"
	}
	return nil
}
