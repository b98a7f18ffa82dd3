package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/theawakener0/oxide/internal/transcript"
	"github.com/theawakener0/oxide/pkg/oxide"
)

func chatCmd(configPath, logLevel, logFormat *string) *cli.Command {
	flags := append(generationFlags(),
		&cli.StringFlag{
			Name:  "resume",
			Usage: "restore a saved transcript before the first turn",
		},
	)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive multi-turn chat",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(*configPath, *logLevel, *logFormat)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			startMetrics(cfg.Metrics)

			s, err := openSession(ctx, cfg, c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer s.Close()

			if path := c.String("resume"); path != "" {
				tr, err := transcript.Load(path)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				s.RestoreHistory(tr.Messages)
				fmt.Fprintf(os.Stderr, "restored %d turns from %s\n", len(tr.Messages), path)
			}

			md := s.Metadata()
			fmt.Fprintf(os.Stderr, "%s (%s) ctx=%d | /clear /save <path> /quit\n",
				md.Name, md.Architecture, md.ContextLength)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if strings.HasPrefix(line, "/") {
					if quit := handleCommand(line, s); quit {
						break
					}
					continue
				}

				// A fresh SIGINT scope per turn: Ctrl-C cancels the
				// in-flight generation and the REPL keeps going.
				turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
				_, err := s.GenerateStream(turnCtx, line, func(ev oxide.StreamEvent) {
					if ev.Kind == oxide.EventToken {
						fmt.Print(ev.Fragment)
					}
				})
				stop()
				switch {
				case err == nil:
					fmt.Println()
				case errors.Is(err, oxide.ErrCancelled):
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintln(os.Stderr, "\ninterrupted")
					continue
				default:
					fmt.Fprintln(os.Stderr, "error:", err)
				}
				fmt.Fprintf(os.Stderr, "[context %d/%d, %.1f%%]\n",
					s.ContextUsed(), s.ContextLimit(), s.ContextPercentage())
			}
			return nil
		},
	}
}

// handleCommand executes a slash command; returns true to quit.
func handleCommand(line string, s *oxide.Session) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/clear":
		s.ClearHistory()
		fmt.Fprintln(os.Stderr, "history cleared")
	case "/save":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, "usage: /save <path>")
			return false
		}
		if err := transcript.Save(fields[1], s.ModelRef(), s.History()); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return false
		}
		fmt.Fprintf(os.Stderr, "saved %d turns to %s\n", len(s.History()), fields[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s (try /clear, /save, /quit)\n", fields[0])
	}
	return false
}
