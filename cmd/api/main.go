// Package main is the entry point of the DriveHub API.
//
// Usage:
//
//	drivehub-api                   serve the REST API
//	drivehub-api migrate up        apply pending migrations
//	drivehub-api migrate down      roll back the latest migration
//	drivehub-api migrate status    list migrations
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drivehub/drivehub-api/config"
	"github.com/drivehub/drivehub-api/internal/application/command"
	"github.com/drivehub/drivehub-api/internal/application/eventhandler"
	"github.com/drivehub/drivehub-api/internal/application/progress"
	"github.com/drivehub/drivehub-api/internal/application/query"
	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/internal/infrastructure/messaging"
	"github.com/drivehub/drivehub-api/internal/infrastructure/persistence/memory"
	"github.com/drivehub/drivehub-api/internal/infrastructure/persistence/postgres"
	"github.com/drivehub/drivehub-api/internal/infrastructure/persistence/redis"
	httpapi "github.com/drivehub/drivehub-api/internal/interface/http"
	"github.com/drivehub/drivehub-api/internal/interface/http/handlers"
	"github.com/drivehub/drivehub-api/pkg/circuitbreaker"
	"github.com/drivehub/drivehub-api/pkg/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// store is what the engine and the health check need from persistence.
type store interface {
	gamification.UnitOfWorkFactory
	Ping(ctx context.Context) error
}

func run(ctx context.Context, args []string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting DriveHub API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	var st store
	if cfg.UsesPostgres() {
		db, err := connectDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database pool...")
			db.Close()
		}()

		if len(args) > 0 && args[0] == "migrate" {
			return runMigrate(ctx, postgres.NewMigrator(db), args[1:], log)
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date")
		}
		st = postgres.NewStore(db)
	} else {
		if len(args) > 0 && args[0] == "migrate" {
			return errors.New("migrate requires DATABASE_URL")
		}
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = memory.NewStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisClient *redis.Client
		infoCache   gamification.InfoCache
	)
	if !cfg.Redis.Disabled {
		redisClient, err = redis.Connect(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolTimeout:  cfg.Redis.ReadTimeout + time.Second,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			})
			infoCache = redis.NewGuardedInfoCache(redis.NewInfoCache(redisClient), breaker)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.New(messaging.Options{
		Async:   cfg.EventBus.Async,
		Workers: cfg.EventBus.Workers,
		Logger:  log,
	})
	defer func() {
		_ = bus.Close()
		log.Info("event bus closed", "stats", bus.Stats())
	}()

	if infoCache != nil {
		if err := eventhandler.NewOnProgressChangedHandler(infoCache, log).Register(bus); err != nil {
			return fmt.Errorf("failed to register cache invalidation: %w", err)
		}
	}
	if err := eventhandler.NewOnMilestoneReachedHandler(log).Register(bus); err != nil {
		return fmt.Errorf("failed to register milestone logger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	engine := progress.NewEngine(st, bus, progress.Config{
		Location:        cfg.App.Location,
		MilestonePolicy: gamification.MilestonePolicy(cfg.Gamification.MilestonePolicy),
	}, log)

	healthDeps := []handlers.Dependency{handlers.Critical("store", st)}
	if redisClient != nil {
		healthDeps = append(healthDeps, handlers.Optional("cache", redisClient))
	}
	health := handlers.NewChecker(cfg.App.Version, healthDeps...)

	server := httpapi.NewServer(httpapi.Config{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Debug:        cfg.App.Debug,
		AdminAPIKey:  cfg.HTTP.AdminAPIKey,
	}, httpapi.Dependencies{
		Engine:               engine,
		CreateStudentProfile: command.NewCreateStudentProfileHandler(engine, log),
		RedeemReferral:       command.NewRedeemReferralHandler(engine, log),
		ScheduleLesson:       command.NewScheduleLessonHandler(engine, log),
		LessonStatus:         command.NewLessonStatusHandler(engine, log),
		SubmitRating:         command.NewSubmitRatingHandler(engine, log),
		GetGamificationInfo:  query.NewGetGamificationInfoHandler(engine, infoCache, cfg.Gamification.InfoCacheTTL, log),
		GetActivityHistory:   query.NewGetActivityHistoryHandler(st),
		GetRatingSummary:     query.NewGetRatingSummaryHandler(st),
		HealthChecker:        health,
		Logger:               log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SERVE & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}

// connectDatabase retries the initial connection while the database starts.
func connectDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.DB, error) {
	dbConfig := postgres.Config{
		URL:               cfg.Database.URL,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime:   cfg.Database.ConnMaxIdleTime,
		HealthCheckPeriod: time.Minute,
	}

	retrier := retry.ConnectRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
	})

	log.Info("connecting to database...")
	var db *postgres.DB
	err := retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		db, err = postgres.Open(ctx, dbConfig)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")
	return db, nil
}

func runMigrate(ctx context.Context, m *postgres.Migrator, args []string, log *slog.Logger) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "up":
		return m.Migrate(ctx)
	case "down":
		return m.Rollback(ctx)
	case "status":
		migrations, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, mig := range migrations {
			log.Info("migration", "version", mig.Version, "name", mig.Name, "applied", mig.IsApplied, "applied_at", mig.AppliedAt)
		}
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
