// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appctx "cardvault/internal/core/context"
	"cardvault/internal/domain/auth"
	"cardvault/internal/infrastructure/http/v1/handlers"
	"cardvault/internal/infrastructure/http/v1/middleware"
	"cardvault/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints
	AuthService *auth.Service

	// Cards serves administrator and holder card endpoints
	Cards handlers.CardService

	// Pool and PoolStock back the administrator pool endpoints
	Pool      handlers.NumberPool
	PoolStock handlers.PoolStock

	// Idempotency enables Idempotency-Key handling on card mutations when set
	Idempotency middleware.IdempotencyStore

	// ReadinessChecks are reported by /health/ready
	ReadinessChecks map[string]handlers.ReadinessCheck

	// Registerer receives HTTP metrics; Gatherer is served on /metrics
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.Metrics(middleware.NewHTTPMetrics(cfg.Registerer)))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.ReadinessChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		registerAuthRoutes(v1, cfg)

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))
		if cfg.Idempotency != nil {
			protected.Use(middleware.Idempotency(cfg.Idempotency))
		}

		registerCardRoutes(protected, cfg)
		registerPoolRoutes(protected, cfg)
	}

	return router
}

// registerAuthRoutes registers authentication endpoints.
func registerAuthRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.AuthService == nil {
		return
	}

	authHandler := handlers.NewAuthHandler(handlers.NewBaseHandler(), cfg.AuthService)

	public := rg.Group("/auth")
	protected := rg.Group("/auth")
	protected.Use(middleware.Auth(cfg.JWTValidator))

	authHandler.RegisterRoutes(public, protected)
}

// registerCardRoutes registers administrator and holder card endpoints.
func registerCardRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Cards == nil {
		return
	}

	handler := handlers.NewCardHandler(handlers.NewBaseHandler(), cfg.Cards)

	admin := rg.Group("/admin/cards")
	admin.Use(middleware.RequireRole(appctx.RoleAdmin))
	handler.RegisterAdminRoutes(admin)

	holder := rg.Group("/cards")
	holder.Use(middleware.RequireRole(appctx.RoleUser))
	handler.RegisterHolderRoutes(holder)
}

// registerPoolRoutes registers card number pool endpoints.
func registerPoolRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Pool == nil || cfg.PoolStock == nil {
		return
	}

	handler := handlers.NewPoolHandler(handlers.NewBaseHandler(), cfg.Pool, cfg.PoolStock)

	pool := rg.Group("/admin/pool")
	pool.Use(middleware.RequireRole(appctx.RoleAdmin))
	handler.RegisterRoutes(pool)
}
