package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/theawakener0/oxide/pkg/oxide"
)

func runCmd(configPath, logLevel, logFormat *string) *cli.Command {
	var prompt string

	flags := append(generationFlags(),
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text (or pass as a positional argument)",
			Destination: &prompt,
		},
		&cli.BoolFlag{
			Name:  "no-stream",
			Usage: "print the full response at once instead of streaming",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "print token and timing stats to stderr",
		},
	)

	return &cli.Command{
		Name:      "run",
		Usage:     "Generate a single response and exit",
		ArgsUsage: "[prompt]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			cfg, err := loadConfig(*configPath, *logLevel, *logFormat)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			startMetrics(cfg.Metrics)

			if prompt == "" && c.Args().Len() > 0 {
				prompt = c.Args().First()
			}
			if prompt == "" {
				return cli.Exit("no prompt given (use --prompt or a positional argument)", 1)
			}

			s, err := openSession(ctx, cfg, c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer s.Close()

			start := time.Now()
			tokens := 0

			var text string
			if c.Bool("no-stream") {
				text, err = s.Generate(ctx, prompt)
				if err == nil {
					fmt.Println(text)
				}
			} else {
				text, err = s.GenerateStream(ctx, prompt, func(ev oxide.StreamEvent) {
					if ev.Kind == oxide.EventToken {
						tokens++
						fmt.Print(ev.Fragment)
					}
				})
				if err == nil {
					fmt.Println()
				}
			}
			if err != nil {
				if errors.Is(err, oxide.ErrCancelled) {
					fmt.Fprintln(os.Stderr, "\ninterrupted")
					return nil
				}
				return cli.Exit(err.Error(), 1)
			}

			if c.Bool("stats") {
				elapsed := time.Since(start)
				tps := 0.0
				if elapsed > 0 {
					tps = float64(tokens) / elapsed.Seconds()
				}
				fmt.Fprintf(os.Stderr, "%d tokens in %s (%.2f tok/s), context %d/%d (%.1f%%)\n",
					tokens, elapsed.Round(time.Millisecond), tps,
					s.ContextUsed(), s.ContextLimit(), s.ContextPercentage())
			}
			return nil
		},
	}
}
