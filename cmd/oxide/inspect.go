package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/theawakener0/oxide/internal/gguf"
	"github.com/theawakener0/oxide/internal/ollama"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print model metadata from a GGUF file",
		ArgsUsage: "<model>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "kv",
				Usage: "dump all metadata key/value pairs",
			},
			&cli.BoolFlag{
				Name:  "tensors",
				Usage: "list tensor names, shapes, and types",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return cli.Exit("usage: oxide inspect <gguf-path-or-model-name>", 1)
			}
			ref := c.Args().First()
			path := ref
			if ollama.IsModelName(ref) {
				resolved, err := ollama.Resolve(ref)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				path = resolved
			}

			f, err := gguf.LoadFile(path)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			md, err := gguf.Extract(f)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Print(md.Summary())

			if c.Bool("kv") {
				keys := make([]string, 0, len(f.KV))
				for k := range f.KV {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Println()
				for _, k := range keys {
					fmt.Printf("%-48s %s\n", k, formatKV(f.KV[k]))
				}
			}

			if c.Bool("tensors") {
				fmt.Println()
				for _, t := range f.Tensors {
					dims := make([]string, len(t.Dimensions))
					for i, d := range t.Dimensions {
						dims[i] = fmt.Sprintf("%d", d)
					}
					fmt.Printf("%-40s [%s] %s\n", t.Name, strings.Join(dims, "x"), t.Type)
				}
			}
			return nil
		},
	}
}

// formatKV keeps huge arrays (vocabularies) out of the dump.
func formatKV(v interface{}) string {
	switch x := v.(type) {
	case []string:
		if len(x) > 8 {
			return fmt.Sprintf("[%d strings]", len(x))
		}
		return fmt.Sprintf("%q", x)
	case []float32:
		return fmt.Sprintf("[%d floats]", len(x))
	case []int32:
		return fmt.Sprintf("[%d ints]", len(x))
	case []uint32:
		return fmt.Sprintf("[%d uints]", len(x))
	case []interface{}:
		return fmt.Sprintf("[%d values]", len(x))
	case string:
		if len(x) > 80 {
			return fmt.Sprintf("%q… (%d bytes)", x[:77], len(x))
		}
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
