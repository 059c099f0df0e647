package middleware

import (
	"net/http"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"
	"github.com/vantagepsp/psp-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for merchant API authentication
	HeaderAPIKey    = "X-API-Key"
	HeaderAPISecret = "X-API-Secret"
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxRequestID   = "request_id"
	CtxMerchantID  = "merchant_id"
	CtxMerchantKey = "merchant"
	CtxSubject     = "subject"
	CtxRole        = "role"
)

// RequestID attaches a request id to the context and response, reusing the
// inbound header when the caller supplied one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// APIKeyAuth authenticates merchant API calls: API key lookup, Argon2
// secret verification, and an active-status gate.
func APIKeyAuth(
	merchantRepo ports.MerchantRepository,
	hashSvc ports.HashService,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		apiSecret := c.GetHeader(HeaderAPISecret)
		if apiKey == "" || apiSecret == "" {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		merchant, err := merchantRepo.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch merchant")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if merchant == nil {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		ok, err := hashSvc.Verify(apiSecret, merchant.SecretHash)
		if err != nil || !ok {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		if !merchant.IsActive() {
			response.Error(c, apperror.ErrMerchantNotActive())
			c.Abort()
			return
		}

		c.Set(CtxMerchantID, merchant.ID)
		c.Set(CtxMerchantKey, merchant)
		c.Next()
	}
}

// JWTAuth validates bearer tokens for operator routes. When role is
// non-empty the token's role claim must match.
func JWTAuth(tokenSvc ports.TokenService, role string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		if role != "" && claims.Role != role {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxSubject, claims.Subject)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// RequestLogger logs every HTTP request with latency and status.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize rejects request bodies larger than n bytes.
func MaxBodySize(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
