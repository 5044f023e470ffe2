package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lensdist-backend/internal/cron"
	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/notifications"
	"github.com/angelmondragon/lensdist-backend/internal/receivables"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	"github.com/angelmondragon/lensdist-backend/pkg/bigquery"
	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
	"github.com/angelmondragon/lensdist-backend/pkg/migrate"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	loc, err := cfg.App.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	var warehouse *bigquery.Client
	if cfg.BigQuery.Enabled() {
		if warehouse, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg); err != nil {
			return fmt.Errorf("bootstrap bigquery: %w", err)
		}
		defer closeWith(ctx, logg, "bigquery", warehouse.Close)
	}

	registry, err := buildJobs(cfg, logg, dbClient, loc, warehouse)
	if err != nil {
		return fmt.Errorf("build jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, cfg.App.Env, 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Receivables.SnapshotInterval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	logg.Info(logg.WithField(ctx, "jobs", registry.Names()), "starting cron worker")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, loc *time.Location, warehouse *bigquery.Client) (*cron.Registry, error) {
	storeRepo := stores.NewRepository(dbClient.DB())

	// The cron worker never posts, so an in-process locker is enough.
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Locker:   ledger.NewMemoryLocker(),
		Logger:   logg,
		Location: loc,
	})
	if err != nil {
		return nil, err
	}

	receivablesSvc, err := receivables.NewService(receivables.ServiceParams{
		Stores:      storeRepo,
		Ledger:      ledgerSvc,
		Location:    loc,
		Concurrency: cfg.Receivables.SummaryConcurrency,
	})
	if err != nil {
		return nil, err
	}

	snapshotParams := cron.ReceivablesSnapshotJobParams{
		Logger:      logg,
		Receivables: receivablesSvc,
		Metrics:     metrics.NewReceivablesMetrics(prometheus.DefaultRegisterer),
	}
	if warehouse != nil {
		snapshotParams.Exporter = warehouse
		snapshotParams.ExportTable = cfg.BigQuery.ReceivablesTable
	}
	snapshot, err := cron.NewReceivablesSnapshotJob(snapshotParams)
	if err != nil {
		return nil, err
	}
	audit, err := cron.NewLedgerAuditJob(cron.LedgerAuditJobParams{
		Logger: logg,
		Stores: storeRepo,
		Ledger: ledgerSvc,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		return nil, err
	}
	notificationRepo := notifications.NewRepository(dbClient.DB())
	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationRepo,
	})
	if err != nil {
		return nil, err
	}
	overdue, err := cron.NewOverdueAlertJob(cron.OverdueAlertJobParams{
		Logger:        logg,
		Receivables:   receivablesSvc,
		Notifications: notificationRepo,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(snapshot, audit, overdue, retention, cleanup)
}
