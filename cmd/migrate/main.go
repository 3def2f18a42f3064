package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/splax/servertracker/internal/app/migrate"
	"github.com/splax/servertracker/internal/repository/sqlite"
	"github.com/splax/servertracker/pkg/config"
	"github.com/splax/servertracker/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "YAML config file")
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	log := logger.New("migrate", slog.LevelInfo)
	cfg, err := config.LoadTrackerConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runner, closeDB, err := openRunner(cfg, log)
	if err != nil {
		log.Error("failed to configure migration runner", "data_source", cfg.DataSource, "error", err)
		os.Exit(1)
	}
	defer closeDB()

	switch *command {
	case "up":
		err = runner.Ensure(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command, "data_source", cfg.DataSource)
}

func openRunner(cfg config.TrackerConfig, log *slog.Logger) (migrate.Runner, func(), error) {
	switch cfg.DataSource {
	case config.DataSourcePostgres:
		runner, err := migrate.OpenPostgres(cfg.DatabaseURL, log)
		if err != nil {
			return migrate.Runner{}, nil, err
		}
		return runner, runner.Close, nil
	case config.DataSourceSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return migrate.Runner{}, nil, err
		}
		runner, err := migrate.New(repo.DB(), migrate.DialectSQLite, log)
		if err != nil {
			repo.Close()
			return migrate.Runner{}, nil, err
		}
		return runner, repo.Close, nil
	}
	return migrate.Runner{}, nil, fmt.Errorf("data source %q has no schema to migrate", cfg.DataSource)
}
