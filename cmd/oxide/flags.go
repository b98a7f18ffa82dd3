package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/theawakener0/oxide/internal/config"
	"github.com/theawakener0/oxide/internal/monitoring"
	"github.com/theawakener0/oxide/pkg/oxide"
)

// generationFlags are shared by run and chat. Flag values override the
// config file only when the user actually set them.
func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "GGUF path or Ollama model name",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "model server address (host:port)",
		},
		&cli.StringFlag{
			Name:    "system",
			Aliases: []string{"sys"},
			Usage:   "system prompt",
		},
		&cli.StringFlag{
			Name:  "template",
			Usage: "chat template override (inline or file contents)",
		},
		&cli.Int64Flag{
			Name:    "max-tokens",
			Aliases: []string{"n"},
			Usage:   "maximum tokens to generate",
		},
		&cli.Float64Flag{
			Name:    "temp",
			Aliases: []string{"t", "temperature"},
			Usage:   "sampling temperature (0 = greedy)",
		},
		&cli.Int64Flag{
			Name:  "top-k",
			Usage: "top-k sampling (0 = disabled)",
		},
		&cli.Float64Flag{
			Name:  "top-p",
			Usage: "nucleus sampling threshold (0 = disabled)",
		},
		&cli.Float64Flag{
			Name:  "repeat-penalty",
			Usage: "repetition penalty (1.0 = disabled)",
		},
		&cli.Int64Flag{
			Name:  "repeat-last-n",
			Usage: "repetition penalty window",
		},
		&cli.Uint64Flag{
			Name:  "seed",
			Usage: "sampling seed",
		},
		&cli.Int64Flag{
			Name:  "warmup",
			Usage: "warm the backend with N synthetic tokens before generating",
		},
	}
}

// sessionConfig merges config file and flags into a session Config.
func sessionConfig(cfg config.Config, c *cli.Command) (oxide.Config, error) {
	modelRef := cfg.Model.Path
	if c.String("model") != "" {
		modelRef = c.String("model")
	}
	if modelRef == "" {
		return oxide.Config{}, fmt.Errorf("no model given (use --model or set model.path in %s)", config.Path())
	}

	backendAddr := cfg.Backend.Addr
	if c.String("backend") != "" {
		backendAddr = c.String("backend")
	}

	opts := oxide.Options{
		MaxTokens:     cfg.Generation.MaxTokens,
		Temperature:   cfg.Generation.Temperature,
		TopK:          cfg.Generation.TopK,
		TopP:          cfg.Generation.TopP,
		RepeatPenalty: cfg.Generation.RepeatPenalty,
		RepeatLastN:   cfg.Generation.RepeatLastN,
		Seed:          cfg.Generation.Seed,
		BatchSize:     cfg.Generation.BatchSize,
		SystemPrompt:  cfg.Model.SystemPrompt,
	}
	if c.IsSet("max-tokens") {
		opts.MaxTokens = int(c.Int("max-tokens"))
	}
	if c.IsSet("temp") {
		opts.Temperature = c.Float("temp")
	}
	if c.IsSet("top-k") {
		opts.TopK = int(c.Int("top-k"))
	}
	if c.IsSet("top-p") {
		opts.TopP = c.Float("top-p")
	}
	if c.IsSet("repeat-penalty") {
		opts.RepeatPenalty = c.Float("repeat-penalty")
	}
	if c.IsSet("repeat-last-n") {
		opts.RepeatLastN = int(c.Int("repeat-last-n"))
	}
	if c.IsSet("seed") {
		opts.Seed = uint64(c.Uint("seed"))
	}
	if c.String("system") != "" {
		opts.SystemPrompt = c.String("system")
	}

	templateOverride := cfg.Model.TemplateOverride
	if c.String("template") != "" {
		templateOverride = c.String("template")
	}

	return oxide.Config{
		ModelRef:           modelRef,
		BackendAddr:        backendAddr,
		Options:            opts,
		TemplateOverride:   templateOverride,
		PromptCacheTTL:     time.Duration(cfg.Cache.PromptTTLMinutes) * time.Minute,
		PromptCacheEntries: uint64(cfg.Cache.PromptMaxEntries),
	}, nil
}

// openSession builds the session and runs the optional warmup.
func openSession(ctx context.Context, cfg config.Config, c *cli.Command) (*oxide.Session, error) {
	sc, err := sessionConfig(cfg, c)
	if err != nil {
		return nil, err
	}
	s, err := oxide.New(ctx, sc)
	if err != nil {
		return nil, err
	}
	monitoring.SetModel(s.ModelRef())
	if n := int(c.Int("warmup")); n > 0 {
		if err := s.Warmup(ctx, n); err != nil {
			s.Close()
			return nil, fmt.Errorf("warmup: %w", err)
		}
	}
	return s, nil
}
