package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dlgen/internal/convert"
	"dlgen/internal/logging"
)

// newConvertCommand drives the PDF converter directly, outside a generation
// run. Useful for re-converting documents a failed batch left behind.
func newConvertCommand(ctx *commandContext) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "convert <files...>",
		Short: "Convert documents to PDF using the configured converter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      "console",
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}

			converter, err := convert.New(cfg.Converter.Binary, cfg.Converter.BatchSize,
				cfg.Converter.TimeoutSeconds, cfg.Converter.MaxRetries,
				cfg.Converter.CooldownSeconds, cfg.Converter.Workers, logger)
			if err != nil {
				return err
			}

			target := outDir
			if target == "" {
				target, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			events := func(ev convert.Event) {
				switch ev.Type {
				case convert.EventBatchStarted:
					fmt.Fprintf(out, "batch %d/%d: converting %d files\n", ev.BatchID, ev.TotalBatches, ev.BatchSize)
				case convert.EventBatchRetrying:
					fmt.Fprintf(out, "batch %d/%d: retrying %d files (attempt %d)\n", ev.BatchID, ev.TotalBatches, ev.Failed, ev.Attempt)
				case convert.EventBatchFinished:
					fmt.Fprintf(out, "batch %d/%d: %d converted, %d failed\n", ev.BatchID, ev.TotalBatches, ev.Succeeded, ev.Failed)
				}
			}

			result, err := converter.Convert(runCtx, args, target, events)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Converted %d of %d files to %s\n", len(result.Succeeded), len(args), target)
			if len(result.Failed) > 0 {
				for _, failed := range result.Failed {
					fmt.Fprintf(out, "  failed: %s\n", failed)
				}
				return fmt.Errorf("%d files failed to convert", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "outdir", "o", "", "Directory for converted PDFs (default: current directory)")
	return cmd
}
