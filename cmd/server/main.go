package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	catalogapp "github.com/erp/catalogcache/internal/application/catalog"
	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/infrastructure/config"
	"github.com/erp/catalogcache/internal/infrastructure/event"
	"github.com/erp/catalogcache/internal/infrastructure/logger"
	"github.com/erp/catalogcache/internal/infrastructure/persistence"
	"github.com/erp/catalogcache/internal/infrastructure/scheduler"
	"github.com/erp/catalogcache/internal/infrastructure/storage"
	"github.com/erp/catalogcache/internal/infrastructure/strategy"
	"github.com/erp/catalogcache/internal/infrastructure/telemetry"
	"github.com/erp/catalogcache/internal/interfaces/http/handler"
	"github.com/erp/catalogcache/internal/interfaces/http/middleware"
	"github.com/erp/catalogcache/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting catalog cache",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Traces and log export
	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.TracingConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(rootCtx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		log = telemetry.NewBridgedLogger(log, telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, logsProvider, level))
	}

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(rootCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	metrics, err := telemetry.NewCatalogMetrics(meterProvider.Meter("catalog-cache"), log)
	if err != nil {
		log.Fatal("Failed to create catalog metrics", zap.Error(err))
	}

	// Source store, snapshot cache and the merge pipeline
	bus := event.NewInMemoryEventBus(log)
	store := cache.NewSourceStore(bus, log)
	snapshots := cache.NewSnapshotCache(cache.SnapshotCacheConfig{
		ValidityPeriod:       cfg.Catalog.ValidityPeriod,
		StaleRetention:       cfg.Catalog.StaleRetention,
		ServeStale:           cfg.Catalog.ServeStale,
		PriorityMergeTimeout: cfg.Catalog.PriorityMergeTimeout,
	}, log)

	strategies, err := strategy.NewRegistryWithDefaults()
	if err != nil {
		log.Fatal("Failed to register allocation strategies", zap.Error(err))
	}
	allocation, err := strategies.GetCostStrategy(cfg.Catalog.AllocationMethod)
	if err != nil {
		log.Fatal("Unknown cost allocation method",
			zap.String("method", cfg.Catalog.AllocationMethod),
			zap.Strings("available", strategies.ListCostStrategies()),
			zap.Error(err))
	}
	costs := catalogapp.NewCostRecomputeGate(
		catalog.NewManufactureCostCalculator(allocation, catalog.CostCalculatorConfig{
			WindowDays:            cfg.Catalog.CostWindowDays,
			ManufactureDepartment: cfg.Catalog.ManufactureDepartment,
		}),
		log,
	)
	mergeEngine := catalog.NewMergeEngine(catalog.MergeConfig{
		HistoryDays:     cfg.Catalog.HistoryDays,
		SetPrefix:       cfg.Catalog.SetPrefix,
		SalesDepartment: cfg.Catalog.SalesDepartment,
	})

	lease, err := cache.NewRefreshLeaseFactory(cache.RedisConfig{
		Host:      cfg.Redis.Host,
		Port:      cfg.Redis.Port,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, cfg.Redis.Enabled, cache.WithLogger(log)).CreateLease()
	if err != nil {
		log.Fatal("Failed to create refresh lease", zap.Error(err))
	}

	driver := scheduler.NewRefreshDriver(scheduler.RefreshDriverConfig{
		FetchTimeout:   cfg.Refresh.FetchTimeout,
		LeaseTTL:       cfg.Refresh.LeaseTTL,
		RefreshOnStart: cfg.Refresh.RefreshOnStart,
	}, lease, log, scheduler.WithRefreshObserver(metrics.RecordRefresh))

	catalogService := catalogapp.NewCatalogService(store, snapshots, mergeEngine, costs, log,
		catalogapp.WithSourceRefresher(driver))

	merges, err := scheduler.NewMergeScheduler(scheduler.MergeSchedulerConfig{
		Debounce:     cfg.Catalog.MergeDebounce,
		MergeTimeout: cfg.Catalog.MergeTimeout,
	}, catalogService.RunMerge, log, scheduler.WithMergeObserver(metrics.RecordMerge))
	if err != nil {
		log.Fatal("Failed to create merge scheduler", zap.Error(err))
	}
	snapshots.SetMergeTrigger(merges)
	catalogService.AttachMergeScheduler(merges)
	bus.Subscribe(catalogapp.NewSourceRefreshedHandler(merges, log))

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("catalog", func(ctx context.Context) error {
			if snapshots.Latest() == nil {
				return errors.New("no snapshot available")
			}
			return nil
		})

	// Difficulty settings live in the database and feed ManufactureDifficulty
	var difficultyHandler *handler.DifficultyHandler
	ownedSources := map[catalog.SourceKey]bool{}
	if cfg.Database.Enabled {
		db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()
		log.Info("Database connected successfully")

		if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log).Register(db.DB); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}

		difficultyService := catalogapp.NewDifficultyService(
			persistence.NewGormDifficultySettingRepository(db.DB), bus, log)
		bus.Subscribe(catalogapp.NewDifficultyChangedHandler(driver, log))
		if err := driver.Register(scheduler.NewRefreshJob(catalog.ManufactureDifficulty, difficultyService.FetchAll, store,
			cfg.Refresh.IntervalFor(string(catalog.SourceKeyManufactureDifficulty)))); err != nil {
			log.Fatal("Failed to register refresh job", zap.Error(err))
		}
		ownedSources[catalog.SourceKeyManufactureDifficulty] = true

		difficultyHandler = handler.NewDifficultyHandler(difficultyService)
		systemHandler.AddCheck("database", func(ctx context.Context) error { return db.Ping() })
	}

	if cfg.Storage.Enabled && len(cfg.Storage.ExportedSources) > 0 {
		reader, err := storage.NewS3SourceExportReader(rootCtx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create export reader", zap.Error(err))
		}
		jobs, err := newExportJobs(cfg.Storage.ExportedSources, reader, store, cfg.Refresh.IntervalFor, ownedSources)
		if err != nil {
			log.Fatal("Invalid exported sources", zap.Error(err))
		}
		for _, job := range jobs {
			if err := driver.Register(job); err != nil {
				log.Fatal("Failed to register refresh job", zap.String("source", string(job.Key())), zap.Error(err))
			}
		}
	}

	// Background workers
	if err := bus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if err := merges.Start(rootCtx); err != nil {
		log.Fatal("Failed to start merge scheduler", zap.Error(err))
	}
	if cfg.Refresh.Enabled {
		if err := driver.Start(rootCtx); err != nil {
			log.Fatal("Failed to start refresh driver", zap.Error(err))
		}
	}
	if meterProvider.IsEnabled() {
		metrics.StartPeriodicCollection(rootCtx, snapshots, cfg.Telemetry.ExportInterval)
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tracerProvider.IsEnabled(),
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, "/health"))
	engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		AllowMethods:  cfg.HTTP.CORSAllowMethods,
		AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders: []string{middleware.RequestIDHeader, handler.GenerationHeader},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine)
	groups := router.NewCatalogRoutes(router.CatalogHandlers{
		Catalog:    handler.NewCatalogHandler(catalogService),
		Sources:    handler.NewSourceHandler(catalogService),
		Difficulty: difficultyHandler,
		System:     systemHandler,
	})
	r.RegisterGroups(groups).Setup()
	for _, g := range groups {
		for _, route := range g.Routes() {
			log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", r.BasePath()+route.Path))
		}
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
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// refreshes finish or abort before the merge worker stops
	if err := driver.Stop(ctx); err != nil {
		log.Error("Error stopping refresh driver", zap.Error(err))
	}
	if err := merges.Stop(ctx); err != nil {
		log.Error("Error stopping merge scheduler", zap.Error(err))
	}
	if err := bus.Stop(ctx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	metrics.Stop()
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracing", zap.Error(err))
	}
	if err := logsProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down log export", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
