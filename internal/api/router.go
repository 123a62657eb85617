package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/feed"
	"github.com/jmerrifield20/AyuTrack/internal/identity"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/webhooks"
)

// Config controls router-level middleware.
type Config struct {
	CORSOrigins        []string
	RateLimitRPS       int // per caller, for everything but appends; 0 disables
	AppendRateLimitRPS int // per caller, for POST /batches; 0 disables
	MaxBodyBytes       int64
}

// Deps are the collaborators the handlers serve. Tokens and Custodians may be
// nil, in which case the token endpoint is not mounted and appends are open.
// Webhooks are only mounted when Tokens is set.
type Deps struct {
	Ledger     *ledger.Ledger
	Tokens     *identity.TokenIssuer
	Custodians *identity.Custodians
	Feed       *feed.Hub
	Webhooks   *webhooks.Service
}

// NewRouter assembles the Gin engine. ctx bounds background middleware work.
func NewRouter(ctx context.Context, deps Deps, cfg Config, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodyBytes)
		c.Next()
	})

	if cfg.RateLimitRPS > 0 || cfg.AppendRateLimitRPS > 0 {
		router.Use(RateLimiter(ctx,
			Budget{RPS: cfg.RateLimitRPS},
			Budget{RPS: cfg.AppendRateLimitRPS},
			deps.Tokens,
		))
	}
	router.Use(PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "entries": deps.Ledger.Len()})
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	NewBatchHandler(deps.Ledger, deps.Tokens, logger).Register(v1)
	NewLedgerHandler(deps.Ledger, logger).Register(v1)
	NewVerifyHandler(deps.Ledger, logger).Register(v1)
	NewKeysHandler(logger).Register(v1)
	if deps.Tokens != nil && deps.Custodians != nil {
		NewTokenHandler(deps.Custodians, deps.Tokens, logger).Register(v1)
	}
	if deps.Tokens != nil && deps.Webhooks != nil {
		webhooks.NewHandler(deps.Webhooks, deps.Tokens, logger).Register(v1)
	}
	if deps.Feed != nil {
		v1.GET("/ledger/feed", gin.WrapH(deps.Feed))
	}
	return router
}

// AllowOrigin returns a predicate matching the configured CORS origins, for
// the websocket feed.
func AllowOrigin(origins []string) func(string) bool {
	if len(origins) == 0 || containsWildcard(origins) {
		return nil
	}
	return func(o string) bool {
		for _, allowed := range origins {
			if strings.EqualFold(strings.TrimSpace(allowed), o) {
				return true
			}
		}
		return false
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
