package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joelkehle/ideator/internal/config"
	"github.com/joelkehle/ideator/internal/ideator"
	"github.com/joelkehle/ideator/internal/llm"
	"github.com/joelkehle/ideator/internal/logger"
	"github.com/joelkehle/ideator/internal/replay"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "YAML config file")
	input := flag.String("input", "", "Path to a research output JSON file (\"-\" for stdin)")
	output := flag.String("out", "", "Write the response envelope JSON here (default stdout)")
	markdownPath := flag.String("markdown", "", "Also write the markdown report to this path")
	htmlPath := flag.String("html", "", "Also write the HTML report to this path")
	patchPath := flag.String("patch", "", "YAML config patch applied to this run")
	record := flag.String("record", "", "Record gateway exchanges to this SQLite file")
	replayPath := flag.String("replay", "", "Serve gateway exchanges from this SQLite file")
	researchID := flag.String("research-id", "", "Research data id (defaults to the input's id)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: ideate -input research.json [-out result.json] [-markdown report.md] [-html report.html] [-record db | -replay db]")
		os.Exit(2)
	}
	if *record != "" && *replayPath != "" {
		fmt.Fprintln(os.Stderr, "-record and -replay are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	switch {
	case *record != "":
		cfg.Replay = config.Replay{Mode: config.ReplayRecord, Path: *record}
	case *replayPath != "":
		cfg.Replay = config.Replay{Mode: config.ReplayReplay, Path: *replayPath}
	}
	log := logger.NewWithWriter(os.Stderr, cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, runOptions{
		input:      *input,
		output:     *output,
		markdown:   *markdownPath,
		html:       *htmlPath,
		patch:      *patchPath,
		researchID: *researchID,
	}); err != nil {
		log.Error("ideate_failed", "stage", ideator.StageNameFromError(err), "err", err.Error())
		var ie *ideator.Error
		if errors.As(err, &ie) && ie.Retryable {
			os.Exit(75)
		}
		os.Exit(1)
	}
}

type runOptions struct {
	input      string
	output     string
	markdown   string
	html       string
	patch      string
	researchID string
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, opts runOptions) error {
	research, err := readResearch(opts.input)
	if err != nil {
		return err
	}
	gateway, closeGateway, err := replay.Wrap(ctx, cfg.Replay, anthropicGateway(cfg), log)
	if err != nil {
		return err
	}
	defer closeGateway()

	core := ideator.New(gateway, cfg.IdeatorConfig(), ideator.WithLogger(log))
	if opts.patch != "" {
		p, err := config.LoadPatch(opts.patch)
		if err != nil {
			return err
		}
		if err := core.UpdateConfig(p); err != nil {
			return err
		}
	}

	researchID := opts.researchID
	if researchID == "" {
		researchID = research.ID
	}
	result, err := core.GenerateWithProgress(ctx, ideator.Request{ResearchDataID: researchID, Research: research}, func(stage, message string) {
		log.Info("progress", "stage", stage, "message", message)
	})
	if err != nil {
		return err
	}

	env := ideator.BuildResponse(result)
	if opts.html != "" {
		html, err := ideator.RenderReportHTML(env.ReportMarkdown)
		if err != nil {
			return err
		}
		env.ReportHTML = html
		if err := os.WriteFile(opts.html, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write html: %w", err)
		}
	}
	if opts.markdown != "" {
		if err := os.WriteFile(opts.markdown, []byte(env.ReportMarkdown), 0o644); err != nil {
			return fmt.Errorf("write markdown: %w", err)
		}
	}

	blob, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	if opts.output == "" {
		_, err = fmt.Fprintln(os.Stdout, string(blob))
		return err
	}
	return os.WriteFile(opts.output, blob, 0o644)
}

func readResearch(path string) (ideator.ResearchOutput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return ideator.ResearchOutput{}, err
		}
		defer f.Close()
		r = f
	}
	var research ideator.ResearchOutput
	if err := json.NewDecoder(r).Decode(&research); err != nil {
		return ideator.ResearchOutput{}, fmt.Errorf("decode research output: %w", err)
	}
	return research, nil
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
