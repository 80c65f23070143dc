package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and returns the config directory.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "switchboard")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return configDir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)

	path := writeConfig(t, dir, `server:
  http_port: 9300
registry:
  ttl: 30s
  specialists_file: /tmp/specialists.yaml
tracker:
  log_capacity: 20
resources:
  - name: claude
    provider: anthropic
    model: claude-sonnet-4-5
    cost_per_unit: 3
    tier: heavyweight
    expertise: [technical, code]
  - name: mini
    provider: openai
    model: gpt-4o-mini
    tier: lightweight
`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 9300 {
		t.Errorf("Server.Port = %d, want 9300", cfg.Server.Port)
	}
	if cfg.Registry.TTL.Duration() != 30*time.Second {
		t.Errorf("Registry.TTL = %v, want 30s", cfg.Registry.TTL.Duration())
	}
	if cfg.Registry.RefreshInterval.Duration() != 30*time.Second {
		t.Errorf("Registry.RefreshInterval = %v, want ttl default 30s", cfg.Registry.RefreshInterval.Duration())
	}
	if cfg.Tracker.LogCapacity != 20 {
		t.Errorf("Tracker.LogCapacity = %d, want 20", cfg.Tracker.LogCapacity)
	}
	if len(cfg.Resources) != 2 {
		t.Fatalf("len(Resources) = %d, want 2", len(cfg.Resources))
	}
	if cfg.Resources[0].Name != "claude" || cfg.Resources[0].CostPerUnit != 3 {
		t.Errorf("Resources[0] = %+v", cfg.Resources[0])
	}
	if got := cfg.Resources[0].Expertise; len(got) != 2 || got[0] != "technical" {
		t.Errorf("Resources[0].Expertise = %v, want [technical code]", got)
	}
	if cfg.Resources[1].CostPerUnit != 1.0 {
		t.Errorf("Resources[1].CostPerUnit = %v, want default 1.0", cfg.Resources[1].CostPerUnit)
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9300\n", 0600)

	t.Setenv("SWITCHBOARD_SERVER_HTTP_PORT", "9400")
	t.Setenv("SWITCHBOARD_ORCHESTRATOR_MAX_PARTICIPANTS", "5")
	t.Setenv("SWITCHBOARD_GENERATOR_ANTHROPIC_API_KEY", "sk-test")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 9400 {
		t.Errorf("Server.Port = %d, want 9400 from env", cfg.Server.Port)
	}
	if cfg.Orchestrator.MaxParticipants != 5 {
		t.Errorf("Orchestrator.MaxParticipants = %d, want 5", cfg.Orchestrator.MaxParticipants)
	}
	if cfg.Generator.AnthropicAPIKey.Value() != "sk-test" {
		t.Errorf("Generator.AnthropicAPIKey not loaded from env")
	}
	if cfg.Generator.AnthropicAPIKey.String() != "[REDACTED]" {
		t.Errorf("Secret.String() = %q, want redacted", cfg.Generator.AnthropicAPIKey.String())
	}
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Tracker.LogCapacity != 50 {
		t.Errorf("Tracker.LogCapacity = %d, want 50", cfg.Tracker.LogCapacity)
	}
	if len(cfg.Resources) != 2 {
		t.Errorf("len(Resources) = %d, want the 2 default static resources", len(cfg.Resources))
	}
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server: [unterminated\n", 0600)

	if _, err := LoadWithFile(path); err == nil {
		t.Fatal("LoadWithFile() error = nil, want parse error")
	}
}

func TestLoadWithFile_Validation(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `resources:
  - name: a
    provider: carrier-pigeon
`, 0600)

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("LoadWithFile() error = nil, want validation error")
	}
	if !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("error = %v, want unknown provider", err)
	}
}

func TestLoadWithFile_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)

	if _, err := LoadWithFile("/tmp/switchboard-config.yaml"); err == nil {
		t.Fatal("LoadWithFile() error = nil, want path validation error")
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9300\n", 0644)

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("LoadWithFile() error = nil, want permission error")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("error = %v, want insecure permissions", err)
	}
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, big, 0600)

	if _, err := LoadWithFile(path); err == nil {
		t.Fatal("LoadWithFile() error = nil, want size error")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"SWITCHBOARD_SERVER_HTTP_PORT":    "server.http_port",
		"SWITCHBOARD_REGISTRY_TTL":        "registry.ttl",
		"SWITCHBOARD_NATS_SUBJECT_PREFIX": "nats.subject_prefix",
		"SWITCHBOARD_DEBUG":               "debug",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
