package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/auth"
	"github.com/feesettle/backend/internal/infrastructure/cache"
	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/feesettle/backend/internal/infrastructure/event"
	"github.com/feesettle/backend/internal/infrastructure/export"
	"github.com/feesettle/backend/internal/infrastructure/lock"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/infrastructure/persistence"
	"github.com/feesettle/backend/internal/infrastructure/scheduler"
	"github.com/feesettle/backend/internal/infrastructure/storage"
	"github.com/feesettle/backend/internal/infrastructure/strategy"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/feesettle/backend/internal/interfaces/http/handler"
	"github.com/feesettle/backend/internal/interfaces/http/middleware"
	"github.com/feesettle/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/feesettle/backend/docs"
)

const (
	version              = "1.0.0"
	metricsExportPeriod  = 30 * time.Second
	telemetryStopTimeout = 5 * time.Second
	eventQueueSize       = 256
)

//	@title			Fee Settlement API
//	@version		1.0
//	@description	Multi-tenant school fee generation, payment allocation and year-end settlement.

//	@contact.name	API Support
//	@contact.url	https://github.com/feesettle/backend

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Local development keeps settings in .env; deployments use the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.ISO8601Millis,
		Service:    cfg.App.Name,
		Env:        cfg.App.Env,
		Sample:     cfg.App.IsProduction(),
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting fee settlement service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	otelProviders, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   metricsExportPeriod,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(log, otelProviders)

	db, err := persistence.NewDatabase(ctx, &cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")
	if otelProviders.Enabled() {
		if reg, err := db.InstrumentPool(otelProviders.Meter("feesettle.db")); err != nil {
			log.Warn("Database pool metrics disabled", zap.Error(err))
		} else {
			defer func() { _ = reg.Unregister() }()
		}
	}

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}

	// Redis backs the payment locks and idempotency keys; a single instance
	// can run without it
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
			redisClient = nil
		} else {
			defer func() { _ = redisClient.Close() }()
			log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	locker := newLocker(cfg.Fee.LockBackend, redisClient, log)

	var idempotencyClient redis.UniversalClient
	if redisClient != nil {
		idempotencyClient = redisClient
	}
	storePolicy := cache.PreferShared
	if cfg.App.IsProduction() {
		storePolicy = cache.RequireShared
	}
	idempotencyStore, err := cache.NewIdempotencyStore(idempotencyClient, storePolicy, log)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() { _ = idempotencyStore.Close() }()

	registry, err := strategy.NewRegistryWithDefaults(cfg.Fee.AllocationStrategy)
	if err != nil {
		log.Fatal("Failed to initialize allocation strategies", zap.Error(err))
	}
	log.Info("Allocation strategies registered",
		zap.Strings("available", registry.Names()),
		zap.String("default", registry.Resolve("").Name()),
	)

	// Events
	feeMetrics, err := telemetry.NewFeeMetrics(otelProviders.Meter(telemetry.FeeMeterName))
	if err != nil {
		log.Fatal("Failed to create fee metrics", zap.Error(err))
	}
	eventBus := event.NewInMemoryEventBus(log, event.WithAsyncDelivery(eventQueueSize))
	eventBus.Subscribe(event.NewMetricsHandler(feeMetrics))
	eventBus.Subscribe(event.NewLoggingHandler(log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Repositories
	schools := persistence.NewGormSchoolRepository(db.DB)
	invoices := persistence.NewGormInvoiceRepository(db.DB)
	receipts := persistence.NewGormReceiptRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	serviceOpts := []appfee.Option{
		appfee.WithLogger(log),
		appfee.WithEventPublisher(eventBus),
		appfee.WithAuditRecorder(persistence.NewGormAuditRecorder(db.DB, log)),
		appfee.WithConfig(feeConfig(cfg.Fee)),
	}

	generationService := appfee.NewGenerationService(schools, schools, schools, scope, locker, serviceOpts...)
	paymentService := appfee.NewPaymentService(scope, locker, registry.Resolve(cfg.Fee.AllocationStrategy), serviceOpts...).
		WithIdempotencyStore(idempotencyStore)
	settlementService := appfee.NewSettlementService(schools, schools, invoices, scope, serviceOpts...).
		WithExporter(export.NewXLSXExporter())
	queryService := appfee.NewInvoiceQueryService(invoices, receipts, schools, serviceOpts...)

	if cfg.Storage.Enabled {
		archive, err := storage.NewS3Archive(ctx, &cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiration(cfg.Storage.PresignExpires),
		)
		if err != nil {
			log.Fatal("Failed to initialize settlement archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Settlement archive bucket unavailable", zap.String("bucket", cfg.Storage.Bucket), zap.Error(err))
		}
		settlementService.WithArchive(archive)
		log.Info("Settlement archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	var overdueTrigger *scheduler.OverdueTrigger
	if cfg.Fee.OverdueRefreshEnabled {
		overdueTrigger = scheduler.NewOverdueTrigger(scheduler.OverdueTriggerConfig{
			Hour:          cfg.Fee.OverdueRefreshHour,
			Minute:        cfg.Fee.OverdueRefreshMinute,
			CheckInterval: time.Minute,
			LockTTL:       time.Hour,
		}, schools, settlementService, locker, log)
		if err := overdueTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start overdue refresh trigger", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT)

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies", zap.Error(err))
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, logger.WithSkipPaths("/health")))
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName)...)
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: otelProviders,
		Logger:        log,
	}))
	engine.Use(middleware.Secure())
	if cors := middleware.CORS(cfg.CORS); cors != nil {
		engine.Use(cors)
	}
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodyBytes))

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", db.Ping)
	if redisClient != nil {
		systemHandler.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	engine.GET("/health", systemHandler.Health)

	if err := handler.MountSwagger(engine, middleware.SwaggerConfig{
		Enabled:    cfg.HTTP.SwaggerEnabled,
		AllowedIPs: cfg.HTTP.SwaggerAllowedIPs,
	}); err != nil {
		log.Fatal("Invalid swagger configuration", zap.Error(err))
	}

	r := router.New(engine)
	handler.MountFeeRoutes(r, handler.FeeHandlers{
		Fees:        handler.NewFeeHandler(generationService, paymentService),
		Invoices:    handler.NewInvoiceHandler(queryService),
		Settlements: handler.NewSettlementHandler(settlementService),
	}, middleware.JWTAuthMiddleware(jwtService, middleware.WithAuthLogger(log)))
	handler.MountSystemRoutes(r, systemHandler)

	for _, route := range r.Mount() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
			zap.Bool("guarded", route.Guarded),
		)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if overdueTrigger != nil {
		if err := overdueTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop overdue refresh trigger", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop event bus", zap.Error(err))
	}

	log.Info("Server exited")
}

// newLocker picks the lock backend. The redis backend degrades to local
// locks when Redis is down, which is only safe with a single replica.
func newLocker(backend string, client *redis.Client, log *zap.Logger) shared.Locker {
	if backend == config.LockBackendRedis {
		if client != nil {
			log.Info("Using Redis locks")
			return lock.NewRedisLocker(client, "")
		}
		log.Warn("Redis lock backend requested but Redis is unavailable, using in-process locks")
	}
	return lock.NewLocalLocker()
}

func feeConfig(c config.FeeConfig) appfee.Config {
	out := appfee.DefaultConfig()
	out.AllocationStrategy = c.AllocationStrategy
	out.DueDateOffsetDays = c.DueDateOffsetDays
	out.GenerationLockTTL = c.GenerationLockTTL
	out.InvoiceLockTTL = c.PaymentLockTTL
	out.InvoiceLockWait = c.PaymentLockWait
	out.IdempotencyTTL = c.IdempotencyTTL
	out.InvoicePrefix = c.InvoicePrefix
	out.ReceiptPrefix = c.ReceiptPrefix
	return out
}

func shutdownTelemetry(log *zap.Logger, p *telemetry.Providers) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryStopTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		log.Error("Failed to shutdown telemetry", zap.Error(err))
	}
}
