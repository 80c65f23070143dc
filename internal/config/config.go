// Package config provides configuration loading for switchboard.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then SWITCHBOARD_* environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Supported generation providers for resources.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderStatic    = "static"
)

// Resource tiers understood by the selection engine.
const (
	TierHeavyweight = "heavyweight"
	TierLightweight = "lightweight"
)

// Config holds the complete switchboard configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Registry     RegistryConfig     `koanf:"registry"`
	Tracker      TrackerConfig      `koanf:"tracker"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	NATS         NATSConfig         `koanf:"nats"`
	Generator    GeneratorConfig    `koanf:"generator"`
	Resources    []ResourceConfig   `koanf:"resources"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// RegistryConfig controls the specialist registry cache.
type RegistryConfig struct {
	TTL             Duration `koanf:"ttl"`
	RefreshInterval Duration `koanf:"refresh_interval"`
	SpecialistsFile string   `koanf:"specialists_file"`
	Watch           bool     `koanf:"watch"`
	PromptCacheSize int      `koanf:"prompt_cache_size"`
}

// TrackerConfig controls session tracking and broadcast.
type TrackerConfig struct {
	LogCapacity      int      `koanf:"log_capacity"`
	BroadcastTimeout Duration `koanf:"broadcast_timeout"`
	SubscriberBuffer int      `koanf:"subscriber_buffer"`
}

// OrchestratorConfig controls query execution.
type OrchestratorConfig struct {
	SessionTimeout  Duration `koanf:"session_timeout"`
	MaxParticipants int      `koanf:"max_participants"`
	Workers         int      `koanf:"workers"`
	MetricsWindow   int      `koanf:"metrics_window"`
}

// NATSConfig controls mirroring of tracker updates to NATS.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// GeneratorConfig holds provider credentials and client-side limits.
type GeneratorConfig struct {
	AnthropicAPIKey Secret  `koanf:"anthropic_api_key"`
	OpenAIAPIKey    Secret  `koanf:"openai_api_key"`
	RateLimit       float64 `koanf:"rate_limit"` // requests per second per provider
	Burst           int     `koanf:"burst"`
	MaxTokens       int     `koanf:"max_tokens"`
}

// ResourceConfig declares one selectable backing model.
type ResourceConfig struct {
	Name            string   `koanf:"name"`
	Provider        string   `koanf:"provider"`
	Model           string   `koanf:"model"`
	CostPerUnit     float64  `koanf:"cost_per_unit"`
	Tier            string   `koanf:"tier"`
	Expertise       []string `koanf:"expertise"`
	BaselineQuality float64  `koanf:"baseline_quality"`
	BaselineLatency Duration `koanf:"baseline_latency"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}
	if c.Registry.TTL.Duration() <= 0 {
		return errors.New("registry ttl must be positive")
	}
	if c.Tracker.BroadcastTimeout.Duration() <= 0 {
		return errors.New("tracker broadcast_timeout must be positive")
	}
	if c.Tracker.LogCapacity < 1 {
		return fmt.Errorf("tracker log_capacity must be >= 1, got %d", c.Tracker.LogCapacity)
	}
	if c.Orchestrator.SessionTimeout.Duration() <= 0 {
		return errors.New("orchestrator session_timeout must be positive")
	}
	if c.Orchestrator.Workers < 1 {
		return fmt.Errorf("orchestrator workers must be >= 1, got %d", c.Orchestrator.Workers)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("resources[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("resources[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		switch r.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderStatic:
		default:
			return fmt.Errorf("resources[%d]: unknown provider %q", i, r.Provider)
		}
		switch r.Tier {
		case "", TierHeavyweight, TierLightweight:
		default:
			return fmt.Errorf("resources[%d]: unknown tier %q", i, r.Tier)
		}
		if math.IsNaN(r.CostPerUnit) || r.CostPerUnit < 0 {
			return fmt.Errorf("resources[%d]: cost_per_unit cannot be negative", i)
		}
		if math.IsNaN(r.BaselineQuality) || r.BaselineQuality < 0 || r.BaselineQuality > 1 {
			return fmt.Errorf("resources[%d]: baseline_quality must be between 0 and 1", i)
		}
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "switchboard"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Registry.TTL == 0 {
		cfg.Registry.TTL = Duration(5 * time.Minute)
	}
	if cfg.Registry.RefreshInterval == 0 {
		cfg.Registry.RefreshInterval = cfg.Registry.TTL
	}
	if cfg.Registry.PromptCacheSize == 0 {
		cfg.Registry.PromptCacheSize = 256
	}

	if cfg.Tracker.LogCapacity == 0 {
		cfg.Tracker.LogCapacity = 50
	}
	if cfg.Tracker.BroadcastTimeout == 0 {
		cfg.Tracker.BroadcastTimeout = Duration(100 * time.Millisecond)
	}
	if cfg.Tracker.SubscriberBuffer == 0 {
		cfg.Tracker.SubscriberBuffer = 32
	}

	if cfg.Orchestrator.SessionTimeout == 0 {
		cfg.Orchestrator.SessionTimeout = Duration(2 * time.Minute)
	}
	if cfg.Orchestrator.MaxParticipants == 0 {
		cfg.Orchestrator.MaxParticipants = 3
	}
	if cfg.Orchestrator.Workers == 0 {
		cfg.Orchestrator.Workers = 4
	}
	if cfg.Orchestrator.MetricsWindow == 0 {
		cfg.Orchestrator.MetricsWindow = 100
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "sessions"
	}

	if cfg.Generator.RateLimit == 0 {
		cfg.Generator.RateLimit = 5
	}
	if cfg.Generator.Burst == 0 {
		cfg.Generator.Burst = 2
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 1024
	}

	// Offline pool so the service runs without provider credentials.
	if len(cfg.Resources) == 0 {
		cfg.Resources = []ResourceConfig{
			{
				Name:            "static-fast",
				Provider:        ProviderStatic,
				Model:           "echo-small",
				CostPerUnit:     1.0,
				Tier:            TierLightweight,
				Expertise:       []string{"general"},
				BaselineQuality: 0.6,
				BaselineLatency: Duration(time.Second),
			},
			{
				Name:            "static-deep",
				Provider:        ProviderStatic,
				Model:           "echo-large",
				CostPerUnit:     2.0,
				Tier:            TierHeavyweight,
				Expertise:       []string{"technical", "analysis"},
				BaselineQuality: 0.9,
				BaselineLatency: Duration(8 * time.Second),
			},
		}
	}
	for i := range cfg.Resources {
		r := &cfg.Resources[i]
		if r.Provider == "" {
			r.Provider = ProviderStatic
		}
		if r.CostPerUnit == 0 {
			r.CostPerUnit = 1.0
		}
		if r.BaselineQuality == 0 {
			r.BaselineQuality = 0.5
		}
	}
}
