package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/theawakener0/oxide/internal/config"
	"github.com/theawakener0/oxide/internal/logger"
	"github.com/theawakener0/oxide/internal/monitoring"
)

func main() {
	// SIGTERM only here: the run and chat commands register SIGINT
	// themselves, so chat can cancel just the in-flight turn.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var (
		configPath string
		logLevel   string
		logFormat  string
	)

	app := &cli.Command{
		Name:  "oxide",
		Usage: "Local LLM text generation over a quantized model backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config.toml",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (console, json)",
				Destination: &logFormat,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(&configPath, &logLevel, &logFormat),
			chatCmd(&configPath, &logLevel, &logFormat),
			inspectCmd(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies logging settings, with
// CLI flags taking precedence.
func loadConfig(path, logLevel, logFormat string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	format := cfg.Logging.Format
	if logFormat != "" {
		format = logFormat
	}
	logger.Setup(level, format)
	return cfg, nil
}

// startMetrics serves Prometheus metrics when enabled.
func startMetrics(cfg config.MetricsConfig) {
	if !cfg.Enabled {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/healthz", monitoring.Handler())
		logger.Log.Info("metrics serving", "addr", cfg.Addr)
		if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
			logger.Log.Error("metrics server stopped", "error", err.Error())
		}
	}()
}
