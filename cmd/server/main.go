package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	docapp "github.com/erp/inventory-engine/internal/application/document"
	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/erp/inventory-engine/internal/infrastructure/auth"
	"github.com/erp/inventory-engine/internal/infrastructure/cache"
	"github.com/erp/inventory-engine/internal/infrastructure/config"
	"github.com/erp/inventory-engine/internal/infrastructure/logger"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence"
	"github.com/erp/inventory-engine/internal/infrastructure/telemetry"
	"github.com/erp/inventory-engine/internal/interfaces/http/handler"
	"github.com/erp/inventory-engine/internal/interfaces/http/middleware"
	"github.com/erp/inventory-engine/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	_ "github.com/erp/inventory-engine/docs"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Inventory Engine API
//	@version		1.0
//	@description	Stock accounting engine: ledger, balances, reservations and stock documents
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/erp/inventory-engine

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Bootstrap logger, replaced once the OTEL log bridge is known
	log, err := newLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}

	tp, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if lp.IsEnabled() {
		level, _ := zapcore.ParseLevel(cfg.Log.Level)
		log = telemetry.NewBridgedLogger(log, telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, lp, level))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServer,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileContention: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && tp.IsEnabled() {
		tp.EnableSpanProfiles()
	}

	log.Info("Starting inventory engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.String("lock_backend", cfg.Stock.LockBackend),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, mp, cfg.Telemetry.DBSlowQueryThresh, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Stock.LockBackend == config.LockBackendRedis || cfg.Stock.RegistryCacheTTL > 0 {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
		}
		log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))
	}

	// Repositories
	scope := persistence.NewGormTransactionScope(db.DB)
	balanceRepo := persistence.NewGormBalanceRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	documentRepo := persistence.NewGormDocumentRepository(db.DB)
	var registry catalog.Registry = persistence.NewGormRegistry(db.DB)
	if redisClient != nil && cfg.Stock.RegistryCacheTTL > 0 {
		registry = cache.NewRedisRegistry(registry, redisClient, cfg.Stock.RegistryCacheTTL, log)
	}

	var locker appstock.KeyLocker = appstock.NewMemoryKeyLocker()
	if cfg.Stock.LockBackend == config.LockBackendRedis {
		locker = cache.NewRedisKeyLocker(redisClient, cfg.Stock.LockTTL, cache.WithLockLogger(log))
	}

	// Engine
	opts := appstock.Options{
		MaxConflictRetries:  cfg.Stock.MaxConflictRetries,
		RetryBackoff:        cfg.Stock.RetryBackoff,
		LockWaitTimeout:     cfg.Stock.LockWaitTimeout,
		HistoryDefaultLimit: cfg.Stock.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.Stock.HistoryMaxLimit,
		CriticalRatio:       cfg.Stock.CriticalRatio,
	}
	ledger := appstock.NewLedgerStore(scope, ledgerRepo, balanceRepo, opts, log)
	balances := appstock.NewBalanceStore(scope, balanceRepo, ledger, locker, opts, log)
	stockMetrics, err := telemetry.NewStockMetrics(mp.Meter(telemetry.StockMeterName))
	if err != nil {
		log.Fatal("Failed to create stock metrics", zap.Error(err))
	}
	balances.SetMetrics(stockMetrics)

	checker := appstock.NewAvailabilityChecker(balances, registry, log)
	reservations := appstock.NewReservationManager(balances, checker, log)
	alerts := appstock.NewAlertService(balances, registry, opts, log)
	documents := docapp.NewDocumentService(scope, documentRepo, balances, reservations, checker, ledger, registry, locker, opts, log)

	// Auth
	var revocation auth.RevocationList = auth.NewInMemoryRevocationList()
	if redisClient != nil {
		revocation = auth.NewRedisRevocationList(redisClient)
	}
	verifier := auth.NewTokenVerifier(cfg.JWT, revocation)

	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.New(router.Config{
		Logger:         log,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
			MaxAge:       12 * time.Hour,
		},
		MaxBodySize: cfg.HTTP.MaxBodySize,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tp.IsEnabled(),
		},
		Auth: middleware.ActorAuthConfig{
			Verifier:         verifier,
			Required:         cfg.JWT.Required,
			SkipPathPrefixes: []string{"/swagger"},
			Logger:           log,
		},
		Profiling: middleware.ProfilingConfig{
			Enabled:          profiler.IsEnabled(),
			SkipPaths:        []string{"/health", "/api/v1/ping"},
			SkipPathPrefixes: []string{"/swagger"},
		},
		Metrics: middleware.HTTPMetricsConfig{
			MeterProvider: mp,
			Logger:        log,
		},
		Swagger: middleware.SwaggerConfig{
			Enabled:     cfg.Swagger.Enabled,
			RequireAuth: cfg.Swagger.RequireAuth,
			AllowedIPs:  cfg.Swagger.AllowedIPs,
		},
	}, router.Handlers{
		Documents: handler.NewDocumentHandler(documents),
		Stock:     handler.NewStockHandler(documents, alerts, documents),
		System:    handler.NewSystemHandler(version, checks),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		exitCode = 1
	}

	shutdown(log, db, redisClient, dbMetrics, profiler, tp, mp, lp)
	log.Info("Server exited")
	if exitCode != 0 {
		_ = logger.Sync(log)
		os.Exit(exitCode)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown releases resources in reverse order of creation. Telemetry goes
// last so the final spans and log records are flushed.
func shutdown(
	log *zap.Logger,
	db *persistence.Database,
	redisClient *redis.Client,
	dbMetrics *telemetry.DBMetrics,
	profiler *telemetry.Profiler,
	providers ...shutdowner,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if dbMetrics != nil {
		if err := dbMetrics.Stop(); err != nil {
			log.Error("Error stopping database metrics", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Error("Error shutting down telemetry provider", zap.Error(err))
		}
	}
}
