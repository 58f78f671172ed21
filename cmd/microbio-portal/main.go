package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/satymtripathi/microbiology/internal/auth"
	"github.com/satymtripathi/microbiology/internal/document"
	"github.com/satymtripathi/microbiology/internal/server"
	"github.com/satymtripathi/microbiology/internal/storage"
	"github.com/satymtripathi/microbiology/internal/workflow"
	"github.com/satymtripathi/microbiology/pkg/config"
	"github.com/satymtripathi/microbiology/pkg/database"
	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/monitoring"
	"github.com/satymtripathi/microbiology/pkg/repository"
)

const (
	serviceName    = "microbio-portal"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithField("version", serviceVersion).Info("Starting microbiology portal")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.CreateSchema(ctx); err != nil {
			log.WithError(err).Fatal("Failed to create database schema")
		}
	}

	users := repository.NewUserRepository(db.DB, log)
	tokens := repository.NewTokenRepository(db.DB, log)
	requests := repository.NewRequestRepository(db.DB, log)
	history := repository.NewHistoryRepository(db.DB, log)

	images, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise image storage")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetricsCollector(serviceName, registry)

	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Environment:    cfg.Tracing.Environment,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise tracing")
	}

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	health.RegisterChecker("image_store", monitoring.ErrorHealthChecker(images.Ping))

	authService := auth.NewService(
		users,
		tokens,
		auth.NewTokenManager(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.Audience, time.Duration(cfg.JWT.AccessTokenTTL)*time.Second),
		auth.NewPINManager(cfg.Auth.HashPINs),
		cfg.Auth.PINLength,
		metrics,
		log,
	)
	if created, err := authService.BootstrapAdmin(ctx, cfg.Auth.BootstrapAdminUsername, cfg.Auth.BootstrapAdminPIN); err != nil {
		log.WithError(err).Fatal("Failed to bootstrap admin user")
	} else if created {
		log.Security("bootstrap_admin_created", "", map[string]interface{}{"username": cfg.Auth.BootstrapAdminUsername})
	}

	workflowService := workflow.NewService(
		requests,
		history,
		images,
		document.NewRenderer(cfg.Document.Compress),
		metrics,
		tracing,
		log,
		cfg.Storage.MaxImageBytes,
	)

	var throttle *server.LoginThrottle
	if cfg.Auth.LoginAttemptsPerMinute > 0 {
		throttle = server.NewLoginThrottle(cfg.Auth.LoginAttemptsPerMinute, time.Minute, log)
		throttle.StartCleanup(ctx, 10*time.Minute)
	}
	go purgeRevokedTokens(ctx, tokens, log)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.NewRouter(cfg, server.Dependencies{
			Auth:     authService,
			Workflow: workflowService,
			Throttle: throttle,
			Metrics:  metrics,
			Tracing:  tracing,
			Health:   health,
			Logger:   log,
		}),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("address", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down microbiology portal...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}

	log.Info("Microbiology portal stopped")
}

// purgeRevokedTokens drops revocation records whose tokens have expired anyway
func purgeRevokedTokens(ctx context.Context, tokens *repository.TokenRepository, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := tokens.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				log.WithError(err).Warn("Failed to purge revoked tokens")
				continue
			}
			if purged > 0 {
				log.WithField("purged", purged).Debug("Purged expired token revocations")
			}
		}
	}
}
