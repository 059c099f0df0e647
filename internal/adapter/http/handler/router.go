package handler

import (
	"net/http"

	"github.com/vantagepsp/psp-core/internal/adapter/http/middleware"
	redisStore "github.com/vantagepsp/psp-core/internal/adapter/storage/redis"
	"github.com/vantagepsp/psp-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	LedgerSvc      ports.LedgerService
	SettlementSvc  ports.SettlementService
	FraudCaseSvc   ports.FraudCaseService
	SettlementRepo ports.SettlementRepository
	MerchantRepo   ports.MerchantRepository
	HashSvc        ports.HashService
	SigSvc         ports.SignatureService
	TokenSvc       ports.TokenService
	WebhookSecret  string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// Processor callbacks (HMAC over raw body, no merchant auth)
	webhookHandler := NewWebhookHandler(deps.PaymentSvc, deps.SigSvc, deps.WebhookSecret, deps.Logger)
	r.POST("/webhooks/processor", rl("webhooks"), webhookHandler.HandleProcessorEvent)

	v1 := r.Group("/api/v1")

	// --- Merchant API (API key authenticated) ---
	apiAuth := middleware.APIKeyAuth(deps.MerchantRepo, deps.HashSvc, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments", apiAuth)
	{
		payments.POST("", rl("payments"), paymentHandler.CreatePayment)
		payments.GET("/:id", rl("payments"), paymentHandler.GetTransaction)
	}

	ledgerHandler := NewLedgerHandler(deps.LedgerSvc)
	ledger := v1.Group("/ledger", apiAuth)
	{
		ledger.GET("/balance", rl("ledger"), ledgerHandler.GetBalance)
		ledger.GET("/entries", rl("ledger"), ledgerHandler.ListEntries)
	}

	settlementHandler := NewSettlementHandler(deps.SettlementSvc, deps.SettlementRepo)
	settlements := v1.Group("/settlements", apiAuth)
	{
		settlements.GET("", rl("ledger"), settlementHandler.ListSettlements)
	}

	// --- Operator API (JWT authenticated, admin role) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, "admin", deps.Logger)
	fraudHandler := NewFraudHandler(deps.FraudCaseSvc)

	admin := v1.Group("/admin", jwtAuth)
	{
		admin.POST("/settlements/run", rl("admin"), settlementHandler.RunDaily)
		admin.GET("/settlements/:id", rl("admin"), settlementHandler.GetSettlement)
		admin.GET("/fraud-cases/:id", rl("fraud"), fraudHandler.GetCase)
		admin.POST("/fraud-cases/:id/resolve", rl("fraud"), fraudHandler.ResolveCase)
	}

	return r
}

// HealthCheck pings every registered dependency and reports per-dependency
// status. Any failure degrades the overall status to 503.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
