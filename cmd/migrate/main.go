package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "source migrations directory (create, validate)")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the source tree, so they run without config.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		versions, err := migrate.Validate(os.DirFS(*dir))
		if err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Printf("%d migrations valid\n", len(versions))
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()
	if !dbClient.IsPostgres() {
		exitf("migrations target postgres; set LENSDIST_DB_DRIVER=postgres")
	}

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	m, err := migrate.New(sqlDB, migrate.Files())
	requireResource(ctx, logg, "migrator", err)

	var results []migrate.Applied
	switch *cmd {
	case "up":
		results, err = m.Up(ctx)
	case "down":
		results, err = m.Down(ctx)
	case "version":
		if *version == "" {
			exitf("missing -version for version command")
		}
		results, err = m.MigrateTo(ctx, *version)
	case "status":
		lines, statusErr := m.Status(ctx)
		if statusErr != nil {
			exitf("status failed: %v", statusErr)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return
	default:
		exitf("unknown -cmd value: %s", *cmd)
	}

	for _, r := range results {
		fmt.Printf("%-4s %d %s\n", r.Direction, r.Version, r.Path)
	}
	if err != nil {
		exitf("%s failed: %v", *cmd, err)
	}
	logg.Info(logg.WithField(ctx, "migrations", len(results)), "migrate finished")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
