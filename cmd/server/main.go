package main

// @title Slicing Inbox API
// @version 1.0.0
// @description 切片收件箱：接收切片软件上报的切片事件，供操作员绑定到目录产品
// @BasePath /

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
	"slicinginbox/backend/internal/health"
	"slicinginbox/backend/internal/logger"
	"slicinginbox/backend/internal/middleware"
	"slicinginbox/backend/internal/monitoring"
	"slicinginbox/backend/internal/service"
	"slicinginbox/backend/internal/storage"
	"slicinginbox/backend/internal/storage/hybrid"
	"slicinginbox/backend/internal/storage/memory"
	"slicinginbox/backend/internal/storage/postgres"
	httptransport "slicinginbox/backend/internal/transport/http"
	"slicinginbox/backend/internal/websocket"
)

const version = "1.0.0"

// main 启动切片收件箱 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting slicing inbox server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化监控系统
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	// 初始化存储层
	store, err := initializeStorage(ctx, cfg, log, metrics)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
	}()

	healthChecker := health.NewHealthChecker(store, log, registry)

	// 目录产品库：单独配置时通过 pgx 直连，否则与收件箱共用存储
	var products domain.ProductStore = store
	if cfg.Database.CatalogDSN != "" {
		catalog, err := postgres.New(ctx, cfg.Database.CatalogDSN, cfg.Database, log)
		if err != nil {
			log.Fatal("failed to connect to catalog database", zap.Error(err))
		}
		defer catalog.Close()
		products = catalog
		healthChecker.AddReadinessCheck("catalog", catalog.Ping)
		log.Info("using dedicated catalog database for production metadata")
	}

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log, metrics)

	// 初始化服务层
	ingestionService := service.NewIngestionService(store, products, cfg.Inbox, log)
	ingestionService.SetMetrics(metrics)
	ingestionService.SetPublisher(wsHub)

	linkingService := service.NewLinkingService(store, products, log)
	linkingService.SetMetrics(metrics)
	linkingService.SetPublisher(wsHub)

	queryService := service.NewQueryService(store, cfg.Inbox)

	// 上报限流：存储支持计数时共享计数，否则使用进程内令牌桶
	var counter storage.RateLimitRepository
	if rl, ok := store.(storage.RateLimitRepository); ok {
		counter = rl
	}
	hookLimiter := middleware.NewRateLimiter(counter, cfg.Hook.RateLimit, cfg.Hook.RateWindow, log)
	hookLimiter.SetMetrics(metrics)

	router, err := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		IngestionService: ingestionService,
		LinkingService:   linkingService,
		QueryService:     queryService,
		HookLimiter:      hookLimiter,
		WebSocketHub:     wsHub,
		Health:           healthChecker,
		Metrics:          metrics,
		Logger:           log,
	})
	if err != nil {
		log.Fatal("failed to create router", zap.Error(err))
	}

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择存储：
// 未配置数据库时使用内存存储；配置数据库且启用 Redis 时使用混合存储；否则直接使用数据库存储。
func initializeStorage(ctx context.Context, cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics) (storage.Store, error) {
	if cfg.Database.Type == "" {
		store := memory.NewStore()
		for _, productID := range cfg.Inbox.SeedProducts {
			store.SaveProduct(productID)
		}
		log.Warn("using memory storage (development mode); only seeded catalog products can be linked",
			zap.Strings("seed_products", cfg.Inbox.SeedProducts),
		)
		return store, nil
	}

	log.Info("initializing database storage",
		zap.String("database_type", cfg.Database.Type),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	if cfg.Redis.Enabled {
		store, err := hybrid.Open(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create hybrid store: %w", err)
		}
		store.SetMetrics(metrics)
		return store, nil
	}

	switch cfg.Database.Type {
	case "mysql":
		return postgres.NewMySQLStore(cfg.Database)
	default:
		return postgres.NewStore(cfg.Database)
	}
}
