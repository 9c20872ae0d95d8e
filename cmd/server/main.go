package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/carpool-matching/internal/approval"
	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/dispatch"
	"github.com/example/carpool-matching/internal/engine"
	"github.com/example/carpool-matching/internal/geo"
	httpapi "github.com/example/carpool-matching/internal/http"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage: postgres when configured, memory otherwise
	var store storage.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	// geocoding: built-in table, then cache, then external backends
	var cache geo.Cache
	if cfg.RedisAddr != "" {
		cache = geo.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		cache = geo.NewMemoryCache(0)
	}
	backends := make([]geo.Backend, 0, len(cfg.GeocodeEndpoints))
	for _, ep := range cfg.GeocodeEndpoints {
		backends = append(backends, geo.NewHTTPBackend(ep))
	}
	resolver := geo.NewResolver(cache, cfg.GeocodeTimeout, backends...)
	resolver.Logger = logger

	// notification chain: ws first, push fallback, everything audited
	wsReg := dispatch.NewWSNotifier()
	var inner dispatch.Notifier = wsReg
	if cfg.PushEndpoint != "" {
		inner = dispatch.NewPushNotifier(cfg.PushEndpoint, cfg.PushToken, wsReg)
	}
	var producer *ingest.NotificationProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewNotificationProducer(cfg.KafkaBrokers, cfg.NotificationTopic)
		defer producer.Close()
	}
	var publisher dispatch.Publisher
	if producer != nil {
		publisher = producer
	}
	notifier := dispatch.NewAudited(inner, store, publisher, logger)

	finder := matcher.NewFinder(store, resolver, logging.Component(logger, "matcher"))
	finder.FuzzyMin = cfg.FuzzyThreshold
	finder.ProximityKm = cfg.ProximityKm
	registry := matcher.NewRegistry(store)
	registry.ScoreFloor = cfg.ScoreFloor
	coord := approval.NewCoordinator(store, notifier, logging.Component(logger, "approval"))

	eng := engine.New(store, finder, registry, coord, notifier, logging.Component(logger, "engine"))
	eng.RequestTTL = cfg.RequestTTL

	// periodic auto-approve and TTL-expiry sweeps
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := eng.OnAutoApproveTick(ctx); err != nil {
					logger.Warn("auto-approve sweep error", "error", err)
				}
				if err := eng.OnExpiryTick(ctx); err != nil {
					logger.Warn("expiry sweep error", "error", err)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(eng, wsReg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("carpool engine listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func runMigrations(dsn string, logger interface {
	Info(string, ...any)
	Error(string, ...any)
}) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_init.sql")
}
