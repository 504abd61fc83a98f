// Package config loads process configuration for the ideation services.
package config

import (
	"time"

	"github.com/joelkehle/ideator/internal/ideator"
)

// Config is the root configuration.
type Config struct {
	Ideator   ideator.Config `yaml:"ideator"`
	Gateway   Gateway        `yaml:"gateway"`
	Logging   Logging        `yaml:"logging"`
	Bus       Bus            `yaml:"bus"`
	Telemetry Telemetry      `yaml:"telemetry"`
	Replay    Replay         `yaml:"replay"`
}

// Gateway configures the Anthropic-backed LLM gateway.
type Gateway struct {
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Bus configures the agent's connection to the message bus.
type Bus struct {
	URL        string        `yaml:"url"`
	AgentID    string        `yaml:"agent_id"`
	SecretEnv  string        `yaml:"secret_env"`
	PollWait   time.Duration `yaml:"poll_wait"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	RenderHTML bool          `yaml:"render_html"`
}

type Telemetry struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

const (
	ReplayOff    = "off"
	ReplayRecord = "record"
	ReplayReplay = "replay"
)

// Replay selects whether gateway exchanges are recorded to or served from a
// SQLite file.
type Replay struct {
	Mode string `yaml:"mode"`
	Path string `yaml:"path"`
}

// Defaults returns a Config with sensible development defaults.
func Defaults() Config {
	return Config{
		Ideator: ideator.DefaultConfig(),
		Gateway: Gateway{
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			CallTimeout: 60 * time.Second,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "ideator",
		},
		Bus: Bus{
			URL:       "http://localhost:8080",
			AgentID:   "business-ideator",
			SecretEnv: "IDEATOR_AGENT_SECRET",
			PollWait:  5 * time.Second,
			Heartbeat: 60 * time.Second,
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "ideator",
			SampleRatio: 1,
		},
		Replay: Replay{
			Mode: ReplayOff,
			Path: "ideator-replay.db",
		},
	}
}

// IdeatorConfig returns the core config with the gateway timing folded in.
func (c Config) IdeatorConfig() ideator.Config {
	out := c.Ideator
	out.CallTimeout = c.Gateway.CallTimeout
	out.BaseDelay = c.Gateway.BaseDelay
	out.MaxDelay = c.Gateway.MaxDelay
	if out.LLM.Model == "" {
		out.LLM.Model = c.Gateway.Model
	}
	return out
}
