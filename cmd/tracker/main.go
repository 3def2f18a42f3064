package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	flag "github.com/spf13/pflag"

	"github.com/splax/servertracker/internal/app/migrate"
	httpx "github.com/splax/servertracker/internal/http"
	"github.com/splax/servertracker/internal/repository"
	"github.com/splax/servertracker/internal/repository/memory"
	"github.com/splax/servertracker/internal/repository/postgres"
	"github.com/splax/servertracker/internal/repository/sqlite"
	"github.com/splax/servertracker/internal/service/environment"
	"github.com/splax/servertracker/internal/service/server"
	"github.com/splax/servertracker/internal/validation"
	"github.com/splax/servertracker/internal/ws"
	"github.com/splax/servertracker/pkg/config"
	"github.com/splax/servertracker/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("TRACKER_CONFIG"), "YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dataSource := flag.String("data-source", "", "memory, sqlite or postgres (overrides config)")
	flag.Parse()

	cfg, err := config.LoadTrackerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataSource != "" {
		cfg.DataSource = strings.ToLower(*dataSource)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("tracker", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open entity store", "data_source", cfg.DataSource, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	envSvc := environment.New(store, log)
	serverSvc := server.New(store, validation.ServerValidator{}, log)
	hub := ws.NewHub(envSvc, serverSvc, log, ws.Options{
		MaxInflight:  cfg.HubMaxInflight,
		SendBuffer:   cfg.HubSendBuffer,
		WriteTimeout: cfg.HubWriteTimeout,
	})

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPassword, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, hub, httpx.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		WebsocketLimit:  cfg.RateLimitWebsocket,
		WebsocketWindow: cfg.RateLimitWindow,
		Limiter:         limiter,
		StoreHealth:     store.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("tracker starting", "addr", cfg.Addr, "data_source", cfg.DataSource, "environment", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		log.Info("tracker stopped")
	case err := <-errorCh:
		hub.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.TrackerConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.DataSource {
	case config.DataSourceMemory:
		if cfg.SeedDevelopment {
			return memory.NewSeeded(), nil
		}
		return memory.New(), nil

	case config.DataSourceSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		runner, err := migrate.New(repo.DB(), migrate.DialectSQLite, log)
		if err != nil {
			repo.Close()
			return nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return repo, nil

	case config.DataSourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		runner, err := migrate.OpenPostgres(cfg.DatabaseURL, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping: %w", err)
		}
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.New(pool), nil
	}
	return nil, fmt.Errorf("unsupported data source %q", cfg.DataSource)
}
