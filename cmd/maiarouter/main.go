// Package main runs a single Maia Router node batch from a YAML file.
//
// Usage:
//
//	maiarouter -f batch.yaml [-o out.json] [-persist]
//	maiarouter -check
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

	"github.com/maauso/maiarouter-node/internal/batch"
	"github.com/maauso/maiarouter-node/internal/bootstrap"
	"github.com/maauso/maiarouter-node/internal/config"
	"github.com/maauso/maiarouter-node/internal/dispatch"
	"github.com/maauso/maiarouter-node/internal/node"
	"github.com/maauso/maiarouter-node/internal/storage"
)

// errUsage is returned when the command line is incomplete.
var errUsage = errors.New("usage: maiarouter -f batch.yaml [-o out.json] [-persist] | -check")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("maiarouter", flag.ContinueOnError)
	batchPath := fs.String("f", "", "batch file (YAML)")
	outPath := fs.String("o", "", "write output items to this file instead of stdout")
	persist := fs.Bool("persist", false, "store result attachments and emit their locations")
	check := fs.Bool("check", false, "verify the API key against Maia Router and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batchPath == "" && !*check {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so stdout stays valid JSON.
	logger := cfg.NewLoggerTo(os.Stderr)
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	if *check {
		if err := deps.API.VerifyCredentials(ctx); err != nil {
			return fmt.Errorf("credential check: %w", err)
		}
		_, err := fmt.Fprintln(stdout, "credentials ok")
		return err
	}

	b, err := batch.Load(*batchPath)
	if err != nil {
		return err
	}

	items, err := execute(ctx, deps, b, *persist, logger)
	if err != nil {
		return err
	}

	out := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return writeItems(out, items)
}

func execute(ctx context.Context, deps *bootstrap.Dependencies, b dispatch.Batch, persist bool, logger *slog.Logger) ([]node.Item, error) {
	logger.Info("running batch",
		slog.String("resource", b.Resource),
		slog.String("operation", b.Operation),
		slog.Int("items", len(b.Items)),
		slog.Bool("continue_on_fail", b.ContinueOnFail),
	)

	items, err := deps.Dispatcher.Run(ctx, b)
	if err != nil {
		var itemErr *dispatch.ItemError
		if errors.As(err, &itemErr) {
			return nil, fmt.Errorf("item %d: %w", itemErr.Index, err)
		}
		return nil, err
	}

	if persist {
		if err := storage.Persist(ctx, deps.Storage, items, logger); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func writeItems(w io.Writer, items []node.Item) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
