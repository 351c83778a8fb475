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

	"github.com/Elogic360/neatify/config"
	"github.com/Elogic360/neatify/internal/app/controller"
	"github.com/Elogic360/neatify/internal/app/repository"
	"github.com/Elogic360/neatify/internal/app/service"
	"github.com/Elogic360/neatify/internal/db"
	"github.com/Elogic360/neatify/internal/middleware"
	"github.com/Elogic360/neatify/internal/router"
	"github.com/Elogic360/neatify/internal/scheduler"
	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/Elogic360/neatify/pkg/metrics"
	"github.com/Elogic360/neatify/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	format := "json"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
		format = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      format,
		EnableColor: format == "console",
	})

	logger.Info("Starting neatify cart server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Seed demo catalog outside production
	if cfg.Server.Environment != "production" {
		if err := db.Seed(); err != nil {
			logger.Warn("Failed to seed database", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := metrics.NewCartMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	// Initialize repositories
	cartRepo := repository.NewCartRepository(db.GetDB())
	productRepo := repository.NewProductRepository(db.GetDB())

	healthChecks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.GetDB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	// Catalog gateway, cached in redis when enabled. Checkout always reads
	// the catalog tables directly.
	liveCatalog := service.NewRepositoryCatalog(productRepo)
	catalog := liveCatalog
	if cfg.Redis.Enabled {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Warn("Redis unavailable, catalog cache disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			cache := redis.NewCache(redis.GetClient(), "catalog")
			catalog = service.NewCachedCatalog(catalog, cache, cfg.Cart.CatalogCacheTTL)
			healthChecks["redis"] = cache.Ping
		}
	}

	// Initialize services
	lifecycle := service.NewCartLifecycle(cartRepo, service.LifecycleConfigFromConfig(cfg.Cart), cartMetrics)
	cartService := service.NewCartService(
		cartRepo,
		lifecycle,
		catalog,
		service.ServiceConfigFromConfig(cfg.Cart),
		cartMetrics,
		service.WithCheckoutCatalog(liveCatalog),
	)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	sessionMiddleware := middleware.NewSessionMiddleware(
		cfg.Cart.SessionCookieName,
		cfg.Cart.SessionCookieMaxAge,
		cfg.Server.Environment == "production",
	)

	// Initialize controllers
	cartController := controller.NewCartController(cartService, sessionMiddleware)

	// Setup router
	r := router.NewRouter(
		cartController,
		authMiddleware,
		sessionMiddleware,
		registry,
		healthChecks,
		cfg,
	)
	engine := r.Setup()

	// Start expiration sweep
	sweepScheduler := scheduler.NewCartExpirationScheduler(lifecycle, cfg.Cart.SweepSchedule, cronMetrics)
	if err := sweepScheduler.Start(); err != nil {
		logger.Fatal("Failed to start cart expiration scheduler", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": server.Addr,
			"pid":     os.Getpid(),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := server.Shutdown(ctx)
	sweepScheduler.Stop()
	if cfg.Redis.Enabled {
		shutdownErr = multierr.Append(shutdownErr, redis.Close())
	}
	shutdownErr = multierr.Append(shutdownErr, db.Close())

	if shutdownErr != nil {
		logger.Error("Server stopped with errors", shutdownErr)
		os.Exit(1)
	}
	logger.Info("Server stopped successfully")
}
