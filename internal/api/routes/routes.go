// internal/api/routes/routes.go
// Gin 路由註冊

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"commerce-mailer/internal/api/handlers"
	"commerce-mailer/internal/api/middlewares"
	"commerce-mailer/internal/config"
	"commerce-mailer/internal/services"
)

// Dependencies 路由依賴
type Dependencies struct {
	Config                *config.Config
	DB                    *gorm.DB
	QueueService          *services.QueueService
	OrderMailService      *services.OrderMailService
	AbandonmentService    *services.AbandonmentService
	ProviderConfigService *services.ProviderConfigService
	StatusCacheService    *services.StatusCacheService
}

// RegisterRoutes 註冊所有路由
func RegisterRoutes(router *gin.Engine, deps *Dependencies) {
	// 初始化 Handlers
	healthHandler := handlers.NewHealthHandler(deps.Config, deps.DB, deps.StatusCacheService)
	messageHandler := handlers.NewMessageHandler(deps.DB, deps.QueueService, deps.OrderMailService, deps.StatusCacheService)
	recoveryHandler := handlers.NewRecoveryHandler(deps.AbandonmentService)
	providerHandler := handlers.NewProviderConfigHandler(deps.ProviderConfigService)

	// 公開路由
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/recover/:token", recoveryHandler.Recover)

	// API v1 路由群組
	v1 := router.Group("/api/v1")
	{
		// 郵件佇列 API (需認證)
		messages := v1.Group("/messages")
		messages.Use(middlewares.JWTAuth(deps.Config, deps.DB))
		{
			messages.POST("", messageHandler.Enqueue)
			messages.GET("", messageHandler.GetHistory)
			messages.GET("/:id/status", messageHandler.GetStatus)
			messages.POST("/:id/retry", messageHandler.Retry)
			messages.POST("/cancel", messageHandler.Cancel)
		}

		// 訂單交易信 API (需認證)
		orders := v1.Group("/orders")
		orders.Use(middlewares.JWTAuth(deps.Config, deps.DB))
		{
			orders.POST("/:id/confirmation", messageHandler.SendOrderConfirmation)
		}

		// 購物車復原回報 API (需認證)
		carts := v1.Group("/carts")
		carts.Use(middlewares.JWTAuth(deps.Config, deps.DB))
		{
			carts.POST("/:id/recovered", recoveryHandler.MarkRecovered)
		}

		// 服務商設定 API (需認證)
		providers := v1.Group("/providers")
		providers.Use(middlewares.JWTAuth(deps.Config, deps.DB))
		{
			providers.POST("", providerHandler.Create)
			providers.GET("", providerHandler.List)
			providers.GET("/:id", providerHandler.Get)
			providers.PUT("/:id", providerHandler.Update)
			providers.DELETE("/:id", providerHandler.Delete)
		}
	}
}
