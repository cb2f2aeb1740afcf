package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/api"
	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/pipeline"
	"github.com/refstream/refstream/internal/vendors"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run on a schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := buildDeps(ctx, cfg, false, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			server := api.NewServer(cfg, deps.store, deps.ledger, logger)

			var sched *cron.Cron
			if cfg.ScheduleCron != "" {
				sched, err = startScheduler(ctx, cfg, deps, server, logger)
				if err != nil {
					return err
				}
			}

			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("could not start server", zap.Error(err))
				}
			}()
			logger.Info("server started", zap.String("port", cfg.ServerPort))

			<-ctx.Done()
			logger.Info("shutting down server...")

			if sched != nil {
				// Wait for an in-flight scheduled run to wind down.
				<-sched.Stop().Done()
			}

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server exiting")
			return nil
		},
	}
}

// startScheduler registers the cron-triggered full run. Each firing
// runs every enabled vendor through every phase and publishes the
// report to the status API.
func startScheduler(ctx context.Context, cfg *config.Config, d *deps, server *api.Server, logger *zap.Logger) (*cron.Cron, error) {
	pipe := pipeline.New(d.store, d.ledger, d.classifier,
		newEngineFactory(cfg, logger), d.metrics, logger,
		pipeline.Options{
			Workers:     cfg.FetchWorkers,
			EnrichBatch: cfg.EnrichBatchSize,
		})

	sched := cron.New()
	_, err := sched.AddFunc(cfg.ScheduleCron, func() {
		profiles, err := vendors.Load(cfg.VendorsFile)
		if err != nil {
			logger.Error("scheduled run aborted", zap.Error(err))
			return
		}
		selected, err := vendors.Select(profiles, nil)
		if err != nil || len(selected) == 0 {
			logger.Warn("scheduled run has no enabled vendors")
			return
		}

		report, err := pipe.Run(ctx, selected, nil)
		if err != nil {
			logger.Error("scheduled run interrupted", zap.Error(err))
		}
		server.SetLatest(report)

		if path, werr := report.WriteArtifact(cfg.ReportsDir); werr != nil {
			logger.Warn("could not write report artifact", zap.Error(werr))
		} else {
			logger.Info("scheduled run finished",
				zap.String("report", path),
				zap.Int("exit_code", report.ExitCode()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_CRON %q: %w", cfg.ScheduleCron, err)
	}
	sched.Start()
	logger.Info("scheduled runs enabled", zap.String("cron", cfg.ScheduleCron))
	return sched, nil
}
