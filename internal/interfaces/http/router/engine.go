package router

import (
	"github.com/erp/inventory-engine/internal/infrastructure/logger"
	"github.com/erp/inventory-engine/internal/interfaces/http/handler"
	"github.com/erp/inventory-engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Config selects the middleware of the engine
type Config struct {
	Logger         *zap.Logger
	TrustedProxies []string
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	Tracing        middleware.TracingConfig
	Auth           middleware.ActorAuthConfig
	Profiling      middleware.ProfilingConfig
	Metrics        middleware.HTTPMetricsConfig
	Swagger        middleware.SwaggerConfig
}

// Handlers are the HTTP handlers mounted by New
type Handlers struct {
	Documents *handler.DocumentHandler
	Stock     *handler.StockHandler
	System    *handler.SystemHandler
}

// StockRoutes is the /stock API group
func StockRoutes(documents *handler.DocumentHandler, stock *handler.StockHandler) *DomainGroup {
	g := NewDomainGroup("stock", "/stock")

	docs := g.Group("documents", "/documents")
	docs.POST("/:kind", documents.Create)
	docs.GET("/:kind", documents.List)
	docs.GET("/:kind/:id", documents.Get)
	docs.PUT("/:kind/:id", documents.Update)
	docs.POST("/:kind/:id/validate", documents.Validate)
	docs.POST("/:kind/:id/cancel", documents.Cancel)

	g.GET("/availability", stock.GetAvailability)
	g.POST("/availability", stock.CheckAvailability)
	g.GET("/history", stock.GetHistory)
	g.GET("/alerts", stock.GetAlerts)
	g.GET("/balances/:product_id/:warehouse_id/reconcile", stock.Reconcile)
	g.POST("/initial", stock.PostInitialStock)
	return g
}

// New builds the gin engine. Middleware order:
//  1. RequestID, Recovery, request logging
//  2. Security headers, CORS, body limit
//  3. Tracing, actor resolution, span enrichment
//  4. Profiling labels, HTTP metrics
func New(cfg Config, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.Use(middleware.Tracing(cfg.Tracing))

	authCfg := cfg.Auth
	if authCfg.Logger == nil {
		authCfg.Logger = log
	}
	authCfg.SkipPaths = append(authCfg.SkipPaths, "/health", "/api/v1/ping")
	authMiddleware := middleware.ActorAuth(authCfg)

	swagger := engine.Group("/swagger")
	swagger.Use(middleware.SwaggerProtection(cfg.Swagger, authMiddleware))
	swagger.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	engine.Use(authMiddleware)
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.Profiling(cfg.Profiling))
	engine.Use(middleware.HTTPMetrics(cfg.Metrics))

	if h.System != nil {
		engine.GET("/health", h.System.Health)
		engine.GET("/api/v1/ping", h.System.Ping)
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	if h.Documents != nil && h.Stock != nil {
		r.Register(StockRoutes(h.Documents, h.Stock))
	}
	r.Setup()

	return engine
}
