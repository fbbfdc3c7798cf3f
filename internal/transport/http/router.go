package httptransport

import (
	"fmt"
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/health"
	"slicinginbox/backend/internal/middleware"
	"slicinginbox/backend/internal/monitoring"
	"slicinginbox/backend/internal/service"
	"slicinginbox/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config           *config.Config
	IngestionService *service.IngestionService
	LinkingService   *service.LinkingService
	QueryService     *service.QueryService
	HookLimiter      *middleware.RateLimiter
	WebSocketHub     *websocket.Hub        // 可选
	Health           *health.HealthChecker // 可选
	Metrics          *monitoring.Metrics   // 可选
	Logger           *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) (*gin.Engine, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.RecoveryHandler(log, deps.Metrics))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", SlicerTokenHeader},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	hookHandler, err := NewHookHandler(deps.IngestionService, deps.Config.Hook.Secret, log, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create slicer hook handler: %w", err)
	}
	inboxHandler := NewInboxHandler(deps.IngestionService, deps.LinkingService, deps.QueryService, log)

	hookLimiter := deps.HookLimiter
	if hookLimiter == nil {
		hookLimiter = middleware.NewRateLimiter(nil, deps.Config.Hook.RateLimit, deps.Config.Hook.RateWindow, log)
		hookLimiter.SetMetrics(deps.Metrics)
	}

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	registerHealthRoutes(router, deps.Health)

	// Prometheus 指标
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Slicer Hook（令牌认证 + 限流） ==========
		v1.POST("/production/slicer-hook",
			middleware.RateLimitByIP(hookLimiter, "slicer-hook"),
			middleware.BodySizeLimit(deps.Config.Hook.MaxBodyKB*1024),
			hookHandler.Handle,
		)

		// ========== Inbox Routes ==========
		inboxRoutes := v1.Group("/inbox")
		{
			inboxRoutes.POST("", inboxHandler.Create)
			inboxRoutes.GET("/pending", inboxHandler.ListPending)
			inboxRoutes.GET("/linked", inboxHandler.ListLinked)
			inboxRoutes.GET("/:id", inboxHandler.GetItem)
			inboxRoutes.POST("/:id/link", inboxHandler.Link)
			inboxRoutes.POST("/:id/unlink", inboxHandler.Unlink)
			inboxRoutes.POST("/:id/ignore", inboxHandler.Ignore)
		}

		// ========== WebSocket 实时推送 ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router, nil
}

func registerHealthRoutes(router *gin.Engine, checker *health.HealthChecker) {
	if checker == nil {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		return
	}

	router.GET("/health", func(c *gin.Context) {
		results, healthy := checker.CheckHealth()
		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	})
	router.GET("/health/live", gin.WrapF(checker.LiveHandler()))
	router.GET("/health/ready", gin.WrapF(checker.ReadyHandler()))
}
