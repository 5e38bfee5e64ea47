package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models demandflow.yml. It carries the capacity defaults and the
// at-risk buffer the engine's aggregations are parameterized with.
type Config struct {
	Capacity struct {
		// WeeklyHours is the standard capacity per person for fixed
		// weekly buckets.
		WeeklyHours float64 `yaml:"weekly_hours"`
		// DayHours converts effort and overlap days to hours, and sizes
		// dynamic-range capacity (working days x day hours).
		DayHours float64 `yaml:"day_hours"`
		// MinimumHours floors dynamic-range capacity for degenerate
		// windows.
		MinimumHours float64 `yaml:"minimum_hours"`
	} `yaml:"capacity"`
	SLA struct {
		// AtRiskBuffer multiplies effort for the in-execution overrun
		// heuristic. It is not part of the formal SLA check.
		AtRiskBuffer float64 `yaml:"at_risk_buffer"`
	} `yaml:"sla"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run dfl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Capacity.WeeklyHours <= 0 {
		return fmt.Errorf("config.capacity.weekly_hours must be positive")
	}
	if c.Capacity.DayHours <= 0 {
		return fmt.Errorf("config.capacity.day_hours must be positive")
	}
	if c.Capacity.MinimumHours < 0 {
		return fmt.Errorf("config.capacity.minimum_hours must not be negative")
	}
	if c.SLA.AtRiskBuffer < 1 {
		return fmt.Errorf("config.sla.at_risk_buffer must be at least 1")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "demandflow.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `capacity:
  weekly_hours: 40
  day_hours: 8
  minimum_hours: 8

sla:
  at_risk_buffer: 1.2
`
