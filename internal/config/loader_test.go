package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Ideator.Ideation.RequiredCount != 5 {
		t.Errorf("expected required count 5, got %d", cfg.Ideator.Ideation.RequiredCount)
	}
	if cfg.Ideator.Validation.MinQualityScore != 70 {
		t.Errorf("expected min quality 70, got %d", cfg.Ideator.Validation.MinQualityScore)
	}
	if cfg.Gateway.CallTimeout != 60*time.Second {
		t.Errorf("expected call timeout 60s, got %v", cfg.Gateway.CallTimeout)
	}
	if cfg.Replay.Mode != ReplayOff {
		t.Errorf("expected replay off, got %s", cfg.Replay.Mode)
	}
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ideator.yaml")

	content := `
ideator:
  ideation:
    required_count: 3
  validation:
    min_quality_score: 60
gateway:
  call_timeout: 30s
logging:
  level: debug
replay:
  mode: record
  path: /tmp/replay.db
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Ideator.Ideation.RequiredCount != 3 {
		t.Errorf("expected required count 3, got %d", cfg.Ideator.Ideation.RequiredCount)
	}
	if cfg.Ideator.Validation.MinQualityScore != 60 {
		t.Errorf("expected min quality 60, got %d", cfg.Ideator.Validation.MinQualityScore)
	}
	if cfg.Gateway.CallTimeout != 30*time.Second {
		t.Errorf("expected call timeout 30s, got %v", cfg.Gateway.CallTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Replay.Mode != ReplayRecord {
		t.Errorf("expected replay record, got %s", cfg.Replay.Mode)
	}
	// Unchanged fields keep defaults
	if cfg.Ideator.Validation.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Ideator.Validation.MaxRetries)
	}
	if !cfg.Ideator.Validation.EnableValidation {
		t.Error("expected validation to stay enabled")
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/ideator.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("IDEATOR_REQUIRED_COUNT", "7")
	t.Setenv("IDEATOR_TEMPERATURE", "0.2")
	t.Setenv("IDEATOR_ENABLE_VALIDATION", "false")
	t.Setenv("IDEATOR_CALL_TIMEOUT", "15s")
	t.Setenv("IDEATOR_LOG_LEVEL", "warn")
	t.Setenv("IDEATOR_BUS_URL", "http://bus:9000")

	loadEnv(&cfg)

	if cfg.Ideator.Ideation.RequiredCount != 7 {
		t.Errorf("expected required count 7, got %d", cfg.Ideator.Ideation.RequiredCount)
	}
	if cfg.Ideator.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.Ideator.LLM.Temperature)
	}
	if cfg.Ideator.Validation.EnableValidation {
		t.Error("expected validation disabled")
	}
	if cfg.Gateway.CallTimeout != 15*time.Second {
		t.Errorf("expected call timeout 15s, got %v", cfg.Gateway.CallTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Bus.URL != "http://bus:9000" {
		t.Errorf("expected bus url override, got %s", cfg.Bus.URL)
	}
}

func TestEnvOverrideIgnoresMalformed(t *testing.T) {
	cfg := Defaults()
	t.Setenv("IDEATOR_REQUIRED_COUNT", "many")
	t.Setenv("IDEATOR_CALL_TIMEOUT", "soon")

	loadEnv(&cfg)

	if cfg.Ideator.Ideation.RequiredCount != 5 {
		t.Errorf("malformed int should keep default, got %d", cfg.Ideator.Ideation.RequiredCount)
	}
	if cfg.Gateway.CallTimeout != 60*time.Second {
		t.Errorf("malformed duration should keep default, got %v", cfg.Gateway.CallTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero required count", func(c *Config) { c.Ideator.Ideation.RequiredCount = 0 }, "requiredCount"},
		{"quality above 100", func(c *Config) { c.Ideator.Validation.MinQualityScore = 101 }, "minQualityScore"},
		{"negative retries", func(c *Config) { c.Ideator.Validation.MaxRetries = -1 }, "maxRetries"},
		{"inverted description bounds", func(c *Config) { c.Ideator.Ideation.MaxDescriptionLength = 5 }, "description"},
		{"negative timeout", func(c *Config) { c.Gateway.CallTimeout = -time.Second }, "negative"},
		{"max delay below base", func(c *Config) { c.Gateway.MaxDelay = 500 * time.Millisecond }, "max_delay"},
		{"bad replay mode", func(c *Config) { c.Replay.Mode = "rewind" }, "replay.mode"},
		{"replay without path", func(c *Config) { c.Replay.Mode = ReplayReplay; c.Replay.Path = "" }, "replay.path"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromAppliesEnvOverYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ideator.yaml")
	if err := os.WriteFile(yamlPath, []byte("ideator:\n  ideation:\n    required_count: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IDEATOR_REQUIRED_COUNT", "4")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Ideator.Ideation.RequiredCount != 4 {
		t.Fatalf("expected env to win with 4, got %d", cfg.Ideator.Ideation.RequiredCount)
	}
}

func TestIdeatorConfigFoldsGatewayTiming(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.CallTimeout = 5 * time.Second
	cfg.Gateway.Model = "claude-test"

	ic := cfg.IdeatorConfig()
	if ic.CallTimeout != 5*time.Second {
		t.Fatalf("expected call timeout 5s, got %v", ic.CallTimeout)
	}
	if ic.LLM.Model != "claude-test" {
		t.Fatalf("expected gateway model fallback, got %q", ic.LLM.Model)
	}
}

func TestLoadPatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patch.yaml")
	if err := os.WriteFile(path, []byte("validation:\n  min_quality_score: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPatch(path)
	if err != nil {
		t.Fatalf("LoadPatch: %v", err)
	}
	if p.Validation == nil || p.Validation.MinQualityScore == nil || *p.Validation.MinQualityScore != 50 {
		t.Fatalf("expected min quality patch 50, got %+v", p.Validation)
	}
	if p.LLM != nil || p.Ideation != nil {
		t.Fatal("expected untouched sections to stay nil")
	}
}
