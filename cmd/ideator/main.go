package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joelkehle/ideator/internal/busclient"
	"github.com/joelkehle/ideator/internal/config"
	"github.com/joelkehle/ideator/internal/ideator"
	"github.com/joelkehle/ideator/internal/llm"
	"github.com/joelkehle/ideator/internal/logger"
	"github.com/joelkehle/ideator/internal/replay"
	"github.com/joelkehle/ideator/internal/telemetry"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "YAML config file")
	busURL := flag.String("bus-url", "", "Bus base URL (overrides config)")
	agentID := flag.String("agent-id", "", "Agent ID (overrides config)")
	flag.Parse()

	if err := run(*configPath, *busURL, *agentID); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, busURL, agentID string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	if busURL != "" {
		cfg.Bus.URL = busURL
	}
	if agentID != "" {
		cfg.Bus.AgentID = agentID
	}
	log := logger.New(cfg.Logging)

	secret := strings.TrimSpace(os.Getenv(cfg.Bus.SecretEnv))
	if secret == "" {
		return fmt.Errorf("missing required env var %s", cfg.Bus.SecretEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdown(sctx)
	}()

	gateway, closeGateway, err := replay.Wrap(ctx, cfg.Replay, anthropicGateway(cfg), log)
	if err != nil {
		return err
	}
	defer closeGateway()

	client := busclient.New(cfg.Bus.URL, cfg.Bus.AgentID, secret)
	core := ideator.New(gateway, cfg.IdeatorConfig(),
		ideator.WithLogger(log),
		ideator.WithNotifier(ideator.BusNotifier{Client: client}),
	)
	agent := ideator.NewAgent(ideator.AgentConfig{
		AgentID:    cfg.Bus.AgentID,
		PollWait:   cfg.Bus.PollWait,
		Heartbeat:  cfg.Bus.Heartbeat,
		RenderHTML: cfg.Bus.RenderHTML,
	}, client, core, log)

	log.Info("agent_starting", "bus_url", cfg.Bus.URL, "agent_id", cfg.Bus.AgentID, "replay_mode", cfg.Replay.Mode)
	return agent.Run(ctx)
}

func anthropicGateway(cfg *config.Config) func() (llm.Gateway, error) {
	return func() (llm.Gateway, error) {
		gw, err := llm.NewAnthropicGatewayFromEnv(llm.AnthropicConfig{
			APIKeyEnv: cfg.Gateway.APIKeyEnv,
			BaseURL:   cfg.Gateway.BaseURL,
			Model:     cfg.Gateway.Model,
		})
		if err != nil {
			return nil, err
		}
		return gw, nil
	}
}
