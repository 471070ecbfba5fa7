package bootstrap

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/Fairfood/Navigate-Server/internal/application/analysis"
	"github.com/Fairfood/Navigate-Server/internal/application/farms"
	"github.com/Fairfood/Navigate-Server/internal/application/forest"
	"github.com/Fairfood/Navigate-Server/internal/application/geometry"
	"github.com/Fairfood/Navigate-Server/internal/application/report"
	"github.com/Fairfood/Navigate-Server/internal/config"
	"github.com/Fairfood/Navigate-Server/internal/infrastructure/database"
	"github.com/Fairfood/Navigate-Server/internal/infrastructure/lock"
	"github.com/Fairfood/Navigate-Server/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Runtime is the wired process: storage clients, services and the HTTP app.
type Runtime struct {
	Config   *config.Config
	DB       *gorm.DB
	Rdb      *redis.Client
	Registry *prometheus.Registry

	Store       *analysis.JobStore
	Coordinator *analysis.SyncCoordinator
	Farms       *farms.Service
	Composer    *report.Composer
}

// ConfigureLogging sets the global zerolog level from cfg. Unknown levels fall back to info.
func ConfigureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// New connects the database and Redis and wires every service. Redis is
// required: the sync lock lives there.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	resolver := geometry.NewResolver(geometry.Options{
		BufferMeters: cfg.BufferMeters,
		HexAreaHa:    cfg.HexAreaHa,
	})
	provider := forest.NewHTTPProvider(cfg.ProviderURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	store := analysis.NewJobStore(db)
	coordinator := analysis.NewSyncCoordinator(store, lock.NewRedisLock(rdb), resolver, provider,
		analysis.NewMetrics(registry),
		analysis.Options{
			LockTTL:      cfg.SyncLockTTL,
			SafetyMargin: cfg.SyncLockSafetyMargin,
			Concurrency:  cfg.SyncConcurrency,
			BufferMeters: cfg.BufferMeters,
		})

	log.Info().Str("driver", cfg.DBDriver).Msg("Database connected")
	log.Info().Msg("Redis connected")

	return &Runtime{
		Config:      cfg,
		DB:          db,
		Rdb:         rdb,
		Registry:    registry,
		Store:       store,
		Coordinator: coordinator,
		Farms:       &farms.Service{DB: db, Queue: store, Resolver: resolver},
		Composer:    report.NewComposer(&report.Repository{DB: db}),
	}, nil
}

// App builds the HTTP surface over the runtime's services.
func (r *Runtime) App() *fiber.App {
	return router.CreateApp(router.Deps{
		DB:                  r.DB,
		Rdb:                 r.Rdb,
		Registry:            r.Registry,
		Store:               r.Store,
		Sync:                r.Coordinator,
		Farms:               r.Farms,
		Composer:            r.Composer,
		AdminKey:            r.Config.AdminKey,
		CORSAllowedSuffixes: r.Config.CORSAllowedSuffixes,
		AllowLocalhost:      r.Config.Env != "production",
	})
}

// Close releases Redis and database connections.
func (r *Runtime) Close() error {
	var errs []error
	if r.Rdb != nil {
		errs = append(errs, r.Rdb.Close())
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
