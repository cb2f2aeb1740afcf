package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/enrich"
	"github.com/refstream/refstream/internal/ledger"
	"github.com/refstream/refstream/internal/monitoring"
	"github.com/refstream/refstream/internal/storage"
)

// deps are the collaborators shared by the run and serve commands.
type deps struct {
	store      storage.Store
	ledger     ledger.Ledger
	classifier enrich.Classifier
	metrics    *monitoring.Metrics

	pool  *pgxpool.Pool
	redis *redis.Client
}

func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// buildDeps wires storage, ledger and classifier from configuration.
// The memory backend keeps everything in process; a dry run without a
// configured database falls back to it so the command works anywhere.
func buildDeps(ctx context.Context, cfg *config.Config, dryRun bool, logger *zap.Logger) (*deps, error) {
	d := &deps{metrics: monitoring.NewMetrics()}

	useMemory := cfg.LedgerBackend == "memory" || (dryRun && cfg.DatabaseURL == "")
	switch {
	case useMemory:
		d.store = storage.NewMemoryStore()
		d.ledger = ledger.NewMemory(cfg.LedgerStaleAfter)
		logger.Info("using in-process storage and ledger; state will not survive this process")

	case cfg.DatabaseURL == "":
		return nil, errors.New("DATABASE_URL is required unless LEDGER_BACKEND=memory")

	default:
		pool, err := storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.pool = pool

		pg := storage.NewPostgresStore(pool)
		if err := pg.Init(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
		d.store = pg

		var led ledger.Ledger = ledger.NewPostgres(pool, cfg.LedgerStaleAfter)
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			d.redis = client
			led = ledger.NewCached(led, client, cfg.CacheTTL)
			logger.Info("ledger completion cache enabled", zap.String("addr", cfg.RedisAddr))
		}
		d.ledger = led
	}

	if cfg.ClassifierURL != "" {
		d.classifier = enrich.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout)
		logger.Info("using classifier service", zap.String("endpoint", cfg.ClassifierURL))
	} else {
		d.classifier = enrich.Static{}
	}
	return d, nil
}
