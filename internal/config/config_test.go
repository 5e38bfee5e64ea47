package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"demandflow/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Capacity.WeeklyHours != 40 || cfg.Capacity.DayHours != 8 {
		t.Fatalf("unexpected defaults: %+v", cfg.Capacity)
	}
	if cfg.SLA.AtRiskBuffer != 1.2 {
		t.Fatalf("at_risk_buffer = %v", cfg.SLA.AtRiskBuffer)
	}
}

func TestLoadOptionalMissingFileFallsBack(t *testing.T) {
	cfg, err := config.LoadOptional(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capacity.DayHours != 8 {
		t.Fatalf("fallback config = %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero day hours", "capacity:\n  weekly_hours: 40\n  day_hours: 0\n  minimum_hours: 8\nsla:\n  at_risk_buffer: 1.2\n"},
		{"negative minimum", "capacity:\n  weekly_hours: 40\n  day_hours: 8\n  minimum_hours: -1\nsla:\n  at_risk_buffer: 1.2\n"},
		{"buffer below one", "capacity:\n  weekly_hours: 40\n  day_hours: 8\n  minimum_hours: 8\nsla:\n  at_risk_buffer: 0.5\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(tc.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demandflow.yml")
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capacity.MinimumHours != 8 {
		t.Fatalf("minimum_hours = %v", cfg.Capacity.MinimumHours)
	}
}
