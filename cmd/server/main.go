package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/nemscan/backend/api/handler"
	"github.com/nemscan/backend/internal/config"
	"github.com/nemscan/backend/internal/infrastructure/buffer"
	"github.com/nemscan/backend/internal/infrastructure/catalog"
	"github.com/nemscan/backend/internal/infrastructure/monitor"
	pgInfra "github.com/nemscan/backend/internal/infrastructure/postgres"
	redisInfra "github.com/nemscan/backend/internal/infrastructure/redis"
	"github.com/nemscan/backend/internal/middleware"
	"github.com/nemscan/backend/internal/router"
	"github.com/nemscan/backend/internal/services"
	"github.com/nemscan/backend/internal/services/lifecycle"
	"github.com/nemscan/backend/pkg/httpcontext"
	"github.com/nemscan/backend/pkg/logger"
	"github.com/nemscan/backend/pkg/timewindow"
	"github.com/nemscan/backend/repository"
	"github.com/nemscan/backend/repository/postgres"
	redisRepo "github.com/nemscan/backend/repository/redis"
	reportUC "github.com/nemscan/backend/usecase/report"
	statisticsUC "github.com/nemscan/backend/usecase/statistics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	appCtx, cancel := manager.Context(context.Background())
	defer cancel()

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.RegisterCloser("postgres", func() { pgInfra.Close(pool, zapLogger) })

	redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "reports")
	if err != nil {
		zapLogger.Fatal("failed to open buffer store", zap.Error(err))
	}
	manager.Register("buffer", func(ctx context.Context) error {
		return bufferStore.Close()
	})

	mon := monitor.New(
		func(ctx context.Context) error { return pgInfra.Ping(ctx, pool) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		bufferStore,
		10*time.Second,
		zapLogger,
	)
	mon.Start()
	manager.RegisterCloser("monitor", mon.Stop)

	scanRepo := postgres.NewScanRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)
	groupCache := redisRepo.NewGroupNameCache(redisClient, cfg.Catalog.GroupCacheTTL)

	bufferProcessor := services.NewBufferProcessor(
		bufferStore,
		mon,
		reportRepo,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  cfg.Buffer.BatchSize,
			MaxRetries: cfg.Buffer.MaxRetry,
			Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
		},
	)
	bufferProcessor.Start()
	manager.Register("buffer_processor", func(ctx context.Context) error {
		bufferProcessor.Stop(ctx)
		return nil
	})

	var productCatalog repository.ProductCatalog
	if cfg.CatalogEnabled() {
		httpClient := &fasthttp.Client{
			Name:                cfg.AppName,
			ReadTimeout:         cfg.Catalog.Timeout,
			WriteTimeout:        cfg.Catalog.Timeout,
			MaxIdleConnDuration: time.Minute,
		}
		tokens := catalog.NewTokenCache(httpClient, catalog.Credentials{
			AuthURL:  cfg.Catalog.AuthURL,
			ClientID: cfg.Catalog.ClientID,
			APIKey:   cfg.Catalog.APIKey,
			Audience: cfg.Catalog.Audience,
			Scope:    cfg.Catalog.Scope,
			TTL:      cfg.Catalog.TokenTTL,
			Timeout:  cfg.Catalog.Timeout,
		}, zapLogger)
		client := catalog.NewClient(httpClient, tokens, catalog.Config{
			BaseURL: cfg.Catalog.BaseURL,
			Timeout: cfg.Catalog.Timeout,
		}, zapLogger)
		productCatalog = catalog.NewCachedGroups(client, groupCache, zapLogger)
	} else {
		zapLogger.Warn("product catalog credentials missing, low-stock statistics disabled")
	}

	windows := timewindow.NewResolver(cfg.Location(), nil)

	statisticsUseCase := statisticsUC.New(
		scanRepo,
		reportRepo,
		productCatalog,
		windows,
		statisticsUC.Config{
			LowStockLimit: cfg.Statistics.LowStockLimit,
			ErrorRateDays: cfg.Statistics.ErrorRateDays,
		},
		zapLogger,
	)
	reportUseCase := reportUC.New(
		scanRepo,
		reportRepo,
		services.NewBufferBridge(bufferProcessor),
		windows,
		cfg.Statistics.DefaultLanguage,
		zapLogger,
	)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Statistics: apiHandler.NewStatisticsHandler(statisticsUseCase, apiHandler.StatisticsDefaults{
			ErrorRateDays:     cfg.Statistics.ErrorRateDays,
			LowStockThreshold: cfg.Statistics.LowStockThreshold,
			Location:          windows.Location(),
		}, ctxAdapter, zapLogger),
		Report: apiHandler.NewReportHandler(reportUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(middleware.AuthConfig{
		Secret:    cfg.JWT.Secret,
		Issuer:    cfg.JWT.Issuer,
		RoleClaim: cfg.JWT.RoleClaim,
	}, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
