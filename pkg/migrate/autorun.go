package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations in dev when LENSDIST_AUTO_MIGRATE is
// set. The SQL targets Postgres; SQLite databases are left alone.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if !client.IsPostgres() {
		logg.Warn(ctx, "skipping migrations: driver is not postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := New(sqlDB, Files())
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	results, err := m.Up(ctx)
	for _, r := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{"version": r.Version, "file": r.Path}), "migration applied")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "dev migrations up to date")
	return nil
}
