// Package commands implements CLI command handlers for docetl.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/linxule/docetl/internal/config"
	"github.com/linxule/docetl/internal/dataset"
	"github.com/linxule/docetl/internal/llm"
	"github.com/linxule/docetl/internal/observability"
	"github.com/linxule/docetl/internal/operations"
	"github.com/linxule/docetl/pkg/progress"
	"github.com/linxule/docetl/pkg/version"
)

// runOptions holds all run command flags.
type runOptions struct {
	input    string
	output   string
	verbose  bool
	quiet    bool
	jsonLogs bool
	insecure bool
}

// NewRunCommand creates the run command: load a dataset, execute the
// configured operation over it, write the results.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Execute an operation over a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input dataset path (.json, .ndjson, .jsonl, optionally .lz4)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output dataset path")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress and info logging")
	cmd.Flags().BoolVar(&opts.jsonLogs, "json-logs", false, "emit logs as JSON")
	cmd.Flags().BoolVar(&opts.insecure, "otlp-insecure", false, "use plaintext gRPC for OTLP export")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runOperation(ctx context.Context, configPath string, opts *runOptions) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}

	checkErr := file.Operation.Check()
	if checkErr != nil {
		return fmt.Errorf("config check: %w", checkErr)
	}

	providers, err := observability.Init(observability.Config{
		ServiceName:    "docetl",
		ServiceVersion: version.Version,
		OTLPEndpoint:   file.Runtime.OTLPEndpoint,
		OTLPInsecure:   opts.insecure,
		MetricsAddr:    file.Runtime.MetricsAddr,
		LogJSON:        opts.jsonLogs,
		LogLevel:       logLevel(opts),
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.WithoutCancel(ctx))
		if shutdownErr != nil {
			providers.Logger.Warn("telemetry shutdown", "error", shutdownErr)
		}
	}()

	records, err := dataset.Load(opts.input)
	if err != nil {
		return err
	}

	message := file.Operation.Name
	if message == "" {
		message = file.Operation.Type
	}

	var bar *progress.Bar
	if !opts.quiet {
		bar = progress.New(os.Stderr, message, int64(len(records)))
	}

	op, err := operations.New(&file.Operation, file.Runtime, newClient(file.Runtime), operations.Options{
		Logger:   providers.Logger,
		Tracer:   providers.Tracer,
		Meter:    providers.Meter,
		Progress: bar,
	})
	if err != nil {
		return err
	}

	start := time.Now()

	results, cost, err := op.Execute(ctx, records)

	bar.Done()

	if err != nil {
		return fmt.Errorf("execute %s: %w", op.Name(), err)
	}

	saveErr := dataset.Save(opts.output, results)
	if saveErr != nil {
		return saveErr
	}

	if !opts.quiet {
		printSummary(op.Name(), len(records), len(results), cost, time.Since(start))
	}

	return nil
}

func newClient(rt config.Runtime) llm.Client {
	return llm.NewHTTPClient(rt.APIBase, rt.APIKey)
}

func printSummary(name string, in, out int, cost float64, elapsed time.Duration) {
	color.New(color.FgGreen).Fprintf(os.Stdout, "%s complete\n", name)
	fmt.Fprintf(os.Stdout, "  Records:  %s in, %s out\n",
		humanize.Comma(int64(in)), humanize.Comma(int64(out)))
	fmt.Fprintf(os.Stdout, "  Cost:     $%.4f\n", cost)
	fmt.Fprintf(os.Stdout, "  Elapsed:  %s\n", elapsed.Round(time.Millisecond))
}

func logLevel(opts *runOptions) slog.Level {
	switch {
	case opts.verbose:
		return slog.LevelDebug
	case opts.quiet:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
