package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantagepsp/psp-core/config"
	"github.com/vantagepsp/psp-core/internal/adapter/events"
	httpHandler "github.com/vantagepsp/psp-core/internal/adapter/http/handler"
	pgStorage "github.com/vantagepsp/psp-core/internal/adapter/storage/postgres"
	redisStorage "github.com/vantagepsp/psp-core/internal/adapter/storage/redis"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/internal/scheduler"
	"github.com/vantagepsp/psp-core/internal/service"
	"github.com/vantagepsp/psp-core/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting PSP core")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	superRepo := pgStorage.NewSuperMerchantRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	settlementRepo := pgStorage.NewSettlementRepo(pool)
	fraudRuleRepo := pgStorage.NewFraudRuleRepo(pool)
	fraudCaseRepo := pgStorage.NewFraudCaseRepo(pool)
	eventRepo := pgStorage.NewProcessorEventRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	ruleCache := redisStorage.NewRuleCache(rdb)
	dedupeStore := redisStorage.NewDedupeStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Event publisher (Kafka optional)
	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka, log)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka publisher enabled")
	} else {
		publisher = events.NewNoopPublisher(log)
		log.Warn().Msg("Kafka brokers not configured, events are logged only")
	}
	defer publisher.Close() //nolint:errcheck

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Initialize business services
	ledgerSvc := service.NewLedgerService(ledgerRepo, merchantRepo, log)
	fraudEngine := service.NewFraudEngine(fraudRuleRepo, ruleCache, txRepo, cfg.Fraud, log)
	paymentSvc := service.NewPaymentService(
		merchantRepo,
		superRepo,
		txRepo,
		fraudCaseRepo,
		eventRepo,
		fraudEngine,
		ledgerSvc,
		transactor,
		dedupeStore,
		publisher,
		auditSvc,
		cfg.Fees,
		log,
	)
	settlementSvc := service.NewSettlementService(
		settlementRepo,
		txRepo,
		ledgerRepo,
		merchantRepo,
		superRepo,
		ledgerSvc,
		transactor,
		publisher,
		auditSvc,
		log,
	)
	fraudCaseSvc := service.NewFraudCaseService(fraudCaseRepo, auditSvc, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		LedgerSvc:      ledgerSvc,
		SettlementSvc:  settlementSvc,
		FraudCaseSvc:   fraudCaseSvc,
		SettlementRepo: settlementRepo,
		MerchantRepo:   merchantRepo,
		HashSvc:        hashSvc,
		SigSvc:         sigSvc,
		TokenSvc:       tokenSvc,
		WebhookSecret:  cfg.Processor.WebhookSecret,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// Daily settlement scheduler
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	sched := scheduler.NewSettlementScheduler(settlementSvc, cfg.Settlement, log)
	go sched.Run(schedCtx)

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
