// Command consensus collects top-N brand lists from a generator and
// aggregates them into consensus worth scores.
//
//	consensus probe --entities entities.jsonl --out probes.jsonl
//	consensus aggregate --in probes.jsonl --method pl --bootstrap 500 --out scores.csv
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/ahrav/go-consensus/infrastructure/middleware"
	"github.com/ahrav/go-consensus/internal/application"
	"github.com/ahrav/go-consensus/internal/logging"
)

var version = "v0.0.1-default"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
	if err := a.command().Run(ctx, os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by subcommands once Before has run.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	config  application.Config
	logger  *slog.Logger
	metrics *middleware.PrometheusMetrics
}

const (
	flagConfig      = "config"
	flagEnvFile     = "env-file"
	flagLogLevel    = "log-level"
	flagLogFormat   = "log-format"
	flagVerbose     = "verbose"
	flagMetricsFile = "metrics-file"
)

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      "consensus",
		Usage:     "Probe generators for ranked lists and aggregate them into consensus scores",
		Version:   version,
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars("CONSENSUS_CONFIG"),
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Usage: "dotenv file with provider credentials, loaded if present",
				Value: ".env",
			},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: flagLogFormat, Usage: "text or json"},
			&cli.BoolFlag{Name: flagVerbose, Usage: "shorthand for --log-level debug"},
			&cli.StringFlag{Name: flagMetricsFile, Usage: "write Prometheus metrics in text format to this file on exit"},
		},
		Commands: []*cli.Command{
			a.probeCommand(),
			a.aggregateCommand(),
		},
		Before: a.before,
		After:  a.after,
	}
}

// before loads the environment file and configuration and installs the
// logger. Flags given on the command line win over the config file.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String(flagEnvFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ctx, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := application.DefaultConfig()
	if path := cmd.String(flagConfig); path != "" {
		var err error
		if cfg, err = application.LoadConfig(path); err != nil {
			return ctx, err
		}
	}
	if cmd.IsSet(flagLogLevel) {
		cfg.Log.Level = cmd.String(flagLogLevel)
	}
	if cmd.IsSet(flagLogFormat) {
		cfg.Log.Format = cmd.String(flagLogFormat)
	}
	if cmd.Bool(flagVerbose) {
		cfg.Log.Level = "debug"
	}

	a.config = cfg
	a.logger = logging.SetDefault(a.stderr, cfg.Log.Level, cfg.Log.Format)
	a.metrics = middleware.NewPrometheusMetrics()
	return ctx, nil
}

func (a *app) after(_ context.Context, cmd *cli.Command) error {
	path := cmd.String(flagMetricsFile)
	if path == "" || a.metrics == nil {
		return nil
	}
	if err := a.metrics.WriteToTextfile(path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debug("metrics written", "path", path)
	return nil
}
