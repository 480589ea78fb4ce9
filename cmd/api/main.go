package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/carewellhealth/patient-portal/internal/api/router"
	"github.com/carewellhealth/patient-portal/internal/chat"
	"github.com/carewellhealth/patient-portal/internal/compliance"
	appconfig "github.com/carewellhealth/patient-portal/internal/config"
	"github.com/carewellhealth/patient-portal/internal/guard"
	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/internal/observability/metrics"
	"github.com/carewellhealth/patient-portal/internal/records"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

func main() {
	// Load .env in development; in production all config comes from the
	// environment itself.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting patient-portal API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Postgres: pgx pool for the read paths, database/sql for the audit trail.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	guardMetrics := metrics.NewGuardMetrics(registry)

	auditService := compliance.NewAuditService(auditDB)

	// Records + identity
	repo := records.NewRepository(pool)
	auth, err := identity.NewAuthenticator(cfg.PortalUsername, cfg.PortalPasswordHash, cfg.PortalPatientID, repo)
	if err != nil {
		logger.Error("failed to configure authenticator", "error", err)
		os.Exit(1)
	}
	sessions := identity.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL, cfg.Env == "production")

	// Guard pipeline
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	classifier := guard.NewClassifierClient(cfg.ClassifierURL, cfg.ClassifierToken,
		guard.WithLogger(logger.WithComponent("classifier")))
	validator := guard.NewValidator(openaiClient, cfg.ValidatorModel, logger.WithComponent("validator"))
	pipeline := guard.NewPipeline(classifier, validator, auditService, guardMetrics, logger.WithComponent("guard"))

	// Chat
	gate := chat.NewQueryGate(pool, cfg.ChatEnforceTenantScope, auditService, guardMetrics, logger.WithComponent("querygate"))
	transcripts := chat.NewTranscriptStore(redisClient, cfg.SessionTTL)
	orchestrator := chat.NewOrchestrator(openaiClient, pipeline, gate, transcripts,
		cfg.ChatModel, cfg.ChatMaxToolSteps, cfg.ChatTimeout, guardMetrics, logger.WithComponent("chat"))
	if cfg.ChatDisclaimerEnabled {
		orchestrator = orchestrator.WithDecorator(compliance.NewDisclaimerService(compliance.DisclaimerConfig{
			Level:   compliance.DisclaimerLevel(cfg.ChatDisclaimerLevel),
			Enabled: true,
		}))
	}

	r := router.New(&router.Config{
		Logger:          logger,
		Sessions:        sessions,
		IdentityHandler: identity.NewHandler(auth, sessions, auditService, logger.WithComponent("identity")),
		GuardHandler:    guard.NewHandler(classifier, validator, logger.WithComponent("guard")),
		ChatHandler:     chat.NewHandler(orchestrator, logger.WithComponent("chat")),
		RecordsHandler:  records.NewHandler(repo, logger.WithComponent("records")),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // chat streams can outlast a normal request
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
