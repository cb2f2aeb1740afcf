package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/pipeline"
	"github.com/refstream/refstream/internal/vendors"
)

// errRunFailed means the run completed but at least one vendor failed
// wholly. main maps it to exit code 1.
var errRunFailed = errors.New("run finished with failures")

func newRunCommand(logger *zap.Logger) *cobra.Command {
	var (
		vendorNames []string
		phaseNames  []string
		dryRun      bool
		force       bool
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an ingestion run over the selected vendors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.FetchWorkers = workers
			}

			// Selection errors surface before any side effect.
			phases, err := pipeline.ParsePhases(phaseNames)
			if err != nil {
				return err
			}
			profiles, err := vendors.Load(cfg.VendorsFile)
			if err != nil {
				return err
			}
			selected, err := vendors.Select(profiles, vendorNames)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				return errors.New("no enabled vendors selected")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := buildDeps(ctx, cfg, dryRun, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			pipe := pipeline.New(deps.store, deps.ledger, deps.classifier,
				newEngineFactory(cfg, logger), deps.metrics, logger,
				pipeline.Options{
					Workers:     cfg.FetchWorkers,
					EnrichBatch: cfg.EnrichBatchSize,
					DryRun:      dryRun,
					Force:       force,
				})

			report, runErr := pipe.Run(ctx, selected, phases)
			report.Render(cmd.OutOrStdout())

			if !dryRun {
				if path, aerr := report.WriteArtifact(cfg.ReportsDir); aerr != nil {
					logger.Warn("could not write report artifact", zap.Error(aerr))
				} else {
					logger.Info("report written", zap.String("path", path))
				}
			}

			if runErr != nil {
				return runErr
			}
			if report.ExitCode() != 0 {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&vendorNames, "vendors", nil, "vendors to run (default: all enabled)")
	cmd.Flags().StringSliceVar(&phaseNames, "phases", nil, "contiguous phase subset to run (default: all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would happen without performing side effects")
	cmd.Flags().BoolVar(&force, "force", false, "re-process items that already completed")
	cmd.Flags().IntVar(&workers, "workers", 0, "fetch worker count (default from config)")
	return cmd
}
