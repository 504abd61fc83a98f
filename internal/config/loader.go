package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/ideator/internal/ideator"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ideator.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path. A missing file is not an error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// LoadPatch reads a YAML config patch, as used for per-run overrides.
func LoadPatch(path string) (ideator.ConfigPatch, error) {
	var p ideator.ConfigPatch
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return p, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// loadEnv overlays non-empty environment variables onto cfg.
func loadEnv(cfg *Config) {
	setString(&cfg.Ideator.LLM.Model, "IDEATOR_MODEL")
	setFloat64(&cfg.Ideator.LLM.Temperature, "IDEATOR_TEMPERATURE")
	setInt(&cfg.Ideator.LLM.MaxTokens, "IDEATOR_MAX_TOKENS")
	setFloat64(&cfg.Ideator.LLM.TopP, "IDEATOR_TOP_P")
	setInt(&cfg.Ideator.Ideation.RequiredCount, "IDEATOR_REQUIRED_COUNT")
	setFloat64(&cfg.Ideator.Ideation.TargetRevenue, "IDEATOR_TARGET_REVENUE")
	setBool(&cfg.Ideator.Validation.EnableValidation, "IDEATOR_ENABLE_VALIDATION")
	setInt(&cfg.Ideator.Validation.MinQualityScore, "IDEATOR_MIN_QUALITY_SCORE")
	setInt(&cfg.Ideator.Validation.MaxRetries, "IDEATOR_MAX_RETRIES")

	// Gateway
	setString(&cfg.Gateway.APIKeyEnv, "IDEATOR_API_KEY_ENV")
	setString(&cfg.Gateway.BaseURL, "IDEATOR_GATEWAY_BASE_URL")
	setString(&cfg.Gateway.Model, "IDEATOR_GATEWAY_MODEL")
	setDuration(&cfg.Gateway.CallTimeout, "IDEATOR_CALL_TIMEOUT")
	setDuration(&cfg.Gateway.BaseDelay, "IDEATOR_BACKOFF_BASE")
	setDuration(&cfg.Gateway.MaxDelay, "IDEATOR_BACKOFF_MAX")

	setString(&cfg.Logging.Level, "IDEATOR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "IDEATOR_LOG_SERVICE")

	// Bus
	setString(&cfg.Bus.URL, "IDEATOR_BUS_URL")
	setString(&cfg.Bus.AgentID, "IDEATOR_AGENT_ID")
	setString(&cfg.Bus.SecretEnv, "IDEATOR_AGENT_SECRET_ENV")
	setDuration(&cfg.Bus.PollWait, "IDEATOR_POLL_WAIT")
	setDuration(&cfg.Bus.Heartbeat, "IDEATOR_HEARTBEAT")
	setBool(&cfg.Bus.RenderHTML, "IDEATOR_RENDER_HTML")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "IDEATOR_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "IDEATOR_OTEL_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "IDEATOR_OTEL_INSECURE")
	setString(&cfg.Telemetry.ServiceName, "IDEATOR_OTEL_SERVICE_NAME")
	setFloat64(&cfg.Telemetry.SampleRatio, "IDEATOR_OTEL_SAMPLE_RATIO")

	setString(&cfg.Replay.Mode, "IDEATOR_REPLAY_MODE")
	setString(&cfg.Replay.Path, "IDEATOR_REPLAY_PATH")
}

func validate(cfg *Config) error {
	if err := cfg.IdeatorConfig().Validate(); err != nil {
		return err
	}
	if cfg.Gateway.CallTimeout < 0 || cfg.Gateway.BaseDelay < 0 || cfg.Gateway.MaxDelay < 0 {
		return errors.New("gateway timeouts must not be negative")
	}
	if cfg.Gateway.MaxDelay > 0 && cfg.Gateway.MaxDelay < cfg.Gateway.BaseDelay {
		return errors.New("gateway.max_delay must be >= gateway.base_delay")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within 0..1")
	}
	switch cfg.Replay.Mode {
	case ReplayOff, ReplayRecord, ReplayReplay:
	default:
		return fmt.Errorf("replay.mode must be off, record or replay (got %q)", cfg.Replay.Mode)
	}
	if cfg.Replay.Mode != ReplayOff && cfg.Replay.Path == "" {
		return errors.New("replay.path is required when replay is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
