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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/lensdist-backend/api/routes"
	"github.com/angelmondragon/lensdist-backend/internal/catalog"
	"github.com/angelmondragon/lensdist-backend/internal/discounts"
	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/notifications"
	"github.com/angelmondragon/lensdist-backend/internal/orders"
	"github.com/angelmondragon/lensdist-backend/internal/pricing"
	"github.com/angelmondragon/lensdist-backend/internal/receivables"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
	"github.com/angelmondragon/lensdist-backend/pkg/migrate"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	loc, err := cfg.App.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid timezone", err)
		os.Exit(1)
	}

	services, err := buildServices(cfg, logg, dbClient, redisClient, loc, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, redisClient, prometheus.DefaultGatherer, loc, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, loc *time.Location, reg prometheus.Registerer) (routes.Services, error) {
	var svc routes.Services

	storeRepo := stores.NewRepository(dbClient.DB())
	storeSvc, err := stores.NewService(storeRepo, dbClient, cfg.Receivables.DefaultPaymentTermDays)
	if err != nil {
		return svc, fmt.Errorf("stores service: %w", err)
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogSvc, err := catalog.NewService(catalogRepo)
	if err != nil {
		return svc, fmt.Errorf("catalog service: %w", err)
	}

	discountSvc, err := discounts.NewService(discounts.ServiceParams{
		Repo:   discounts.NewRepository(),
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return svc, fmt.Errorf("discounts service: %w", err)
	}

	pricingSvc, err := pricing.NewService(pricing.ServiceParams{
		Rules:    discountSvc,
		Products: catalogRepo,
		Logger:   logg,
		Metrics:  metrics.NewPricingMetrics(reg),
	})
	if err != nil {
		return svc, fmt.Errorf("pricing service: %w", err)
	}

	locker, err := newLocker(cfg.Ledger, redisClient)
	if err != nil {
		return svc, err
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerParams := ledger.ServiceParams{
		Repo:        ledger.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Locker:      locker,
		Logger:      logg,
		Metrics:     metrics.NewLedgerMetrics(reg),
		Location:    loc,
		LockTimeout: cfg.Ledger.LockTimeout,
	}
	if cfg.FeatureFlags.PublishEvents {
		ledgerParams.Outbox = outboxSvc
	}
	ledgerSvc, err := ledger.NewService(ledgerParams)
	if err != nil {
		return svc, fmt.Errorf("ledger service: %w", err)
	}

	receivablesSvc, err := receivables.NewService(receivables.ServiceParams{
		Stores:      storeRepo,
		Ledger:      ledgerSvc,
		Location:    loc,
		Concurrency: cfg.Receivables.SummaryConcurrency,
	})
	if err != nil {
		return svc, fmt.Errorf("receivables service: %w", err)
	}

	orderParams := orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Stores:  storeRepo,
		Pricing: pricingSvc,
		Ledger:  ledgerSvc,
		Logger:  logg,
	}
	if cfg.FeatureFlags.PublishEvents {
		orderParams.Outbox = outboxSvc
	}
	ordersSvc, err := orders.NewService(orderParams)
	if err != nil {
		return svc, fmt.Errorf("orders service: %w", err)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), nil)
	if err != nil {
		return svc, fmt.Errorf("notifications service: %w", err)
	}

	return routes.Services{
		Stores:        storeSvc,
		Catalog:       catalogSvc,
		Discounts:     discountSvc,
		Pricing:       pricingSvc,
		Ledger:        ledgerSvc,
		Receivables:   receivablesSvc,
		Orders:        ordersSvc,
		Notifications: notificationsSvc,
	}, nil
}

// newLocker picks the per-store ledger lock. The memory locker only
// serializes postings inside one API instance.
func newLocker(cfg config.LedgerConfig, redisClient *redis.Client) (ledger.Locker, error) {
	switch cfg.LockBackend {
	case "memory":
		return ledger.NewMemoryLocker(), nil
	case "", "redis":
		locker, err := ledger.NewRedisLocker(redisClient, cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("ledger locker: %w", err)
		}
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown ledger lock backend %q", cfg.LockBackend)
	}
}
