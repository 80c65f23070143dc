package config

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Tracker.BroadcastTimeout.Duration() != 100*time.Millisecond {
		t.Errorf("Tracker.BroadcastTimeout = %v, want 100ms", cfg.Tracker.BroadcastTimeout.Duration())
	}
	if cfg.Orchestrator.Workers != 4 {
		t.Errorf("Orchestrator.Workers = %d, want 4", cfg.Orchestrator.Workers)
	}
	if cfg.Resources[1].Tier != TierHeavyweight {
		t.Errorf("Resources[1].Tier = %q, want heavyweight", cfg.Resources[1].Tier)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "sample rate above one",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "nats enabled without url",
			mutate:  func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
			wantErr: "nats url",
		},
		{
			name: "duplicate resource",
			mutate: func(c *Config) {
				c.Resources = append(c.Resources, c.Resources[0])
			},
			wantErr: "duplicate name",
		},
		{
			name:    "unknown tier",
			mutate:  func(c *Config) { c.Resources[0].Tier = "medium" },
			wantErr: "unknown tier",
		},
		{
			name:    "negative cost",
			mutate:  func(c *Config) { c.Resources[0].CostPerUnit = -1 },
			wantErr: "cost_per_unit",
		},
		{
			name:    "nan baseline quality",
			mutate:  func(c *Config) { c.Resources[0].BaselineQuality = math.NaN() },
			wantErr: "baseline_quality",
		},
		{
			name:    "baseline quality above one",
			mutate:  func(c *Config) { c.Resources[0].BaselineQuality = 1.2 },
			wantErr: "baseline_quality",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Orchestrator.Workers = 0 },
			wantErr: "workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("150ms")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 150*time.Millisecond {
		t.Errorf("Duration() = %v, want 150ms", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText(-1s) error = nil, want negative duration error")
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")

	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q", s.String())
	}
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(b) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON() = %s", b)
	}
	if !s.IsSet() || s.Value() != "sk-live-123" {
		t.Error("Value() lost the secret")
	}
	if Secret("").String() != "" {
		t.Error("empty secret should render empty")
	}
}
