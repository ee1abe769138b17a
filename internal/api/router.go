package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/carousel-dispenser/internal/middleware"
	"github.com/wfunc/carousel-dispenser/internal/service"
	"github.com/wfunc/carousel-dispenser/internal/websocket"
)

// Router API路由管理器
type Router struct {
	engine   *gin.Engine
	db       *gorm.DB
	services *service.Services
	hub      *websocket.Hub
	logger   *zap.Logger

	// 处理器
	authHandler     *AuthHandler
	dispenseHandler *DispenseHandler
	serialLogAPI    *SerialLogAPI

	// 中间件
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter 创建路由管理器
func NewRouter(db *gorm.DB, services *service.Services, hub *websocket.Hub, logger *zap.Logger) *Router {
	r := &Router{
		engine:   gin.New(),
		db:       db,
		services: services,
		hub:      hub,
		logger:   logger,
	}

	r.authHandler = NewAuthHandler(services.Auth)
	r.dispenseHandler = NewDispenseHandler(services.Dispense, services.Vision)
	r.serialLogAPI = NewSerialLogAPI(services.SerialLog)
	r.authMiddleware = middleware.NewAuthMiddleware(services.Auth)

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// setupMiddleware 设置全局中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.loggerMiddleware())
}

// loggerMiddleware 请求日志中间件
func (r *Router) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		r.logger.Info("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 静态资源与API文档
	r.engine.Static("/static", "./static")
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// WebSocket状态推送
	r.engine.GET("/ws/status", websocket.ServeWS(r.hub))

	v1 := r.engine.Group("/api/v1")
	{
		// 认证（公开）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
		}

		// 出料控制（需要认证）
		protected := v1.Group("")
		protected.Use(r.authMiddleware.RequireAuth())
		{
			protected.POST("/dispense", r.dispenseHandler.Dispense)
			protected.GET("/components", r.dispenseHandler.GetComponents)
			protected.GET("/status", r.dispenseHandler.GetStatus)
			protected.POST("/home", r.dispenseHandler.Home)
			protected.POST("/estop", r.dispenseHandler.EStop)
			protected.GET("/inventory", r.dispenseHandler.GetInventory)
			protected.POST("/scan", r.dispenseHandler.Scan)

			protected.GET("/dispenses", r.dispenseHandler.QueryDispenses)
			protected.GET("/dispenses/stats", r.dispenseHandler.GetStats)

			// 串口通信日志（仅管理员）
			admin := protected.Group("")
			admin.Use(r.authMiddleware.RequireRole("admin"))
			r.serialLogAPI.RegisterRoutes(admin)
		}
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    404,
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	}

	sqlDB, err := r.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		health["status"] = "degraded"
		health["database"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "ok"

	c.JSON(http.StatusOK, health)
}

// Run 启动HTTP服务
func (r *Router) Run(addr string) error {
	r.logger.Info("HTTP服务启动", zap.String("addr", addr))
	return r.engine.Run(addr)
}

// GetEngine 返回gin引擎（测试用）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
