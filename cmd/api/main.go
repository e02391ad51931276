// cmd/api/main.go
// Gin RESTful API 入口

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"commerce-mailer/internal/api/routes"
	"commerce-mailer/internal/config"
	"commerce-mailer/internal/database"
	"commerce-mailer/internal/metrics"
	"commerce-mailer/internal/services"
)

func main() {
	// 載入設定
	cfg := config.Load()

	logger := newLogger(cfg)
	defer logger.Sync()
	logger.Info("starting commerce mailer api server")

	metrics.Init()

	// 初始化資料庫
	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// 初始化加密服務 (憑證與復原 token 的保護)
	encryption, err := services.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("failed to initialize encryption", zap.Error(err))
	}

	// 初始化 Redis 狀態快取
	statusCache, err := services.NewStatusCacheService(cfg)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer statusCache.Close()

	// 組裝服務
	renderer := services.NewTemplateService()
	providers := services.NewProviderService(db, encryption)
	queue := services.NewQueueService(db, providers, statusCache, cfg.DispatchPerSecond, logger)
	orderMail := services.NewOrderMailService(db, queue, renderer, cfg, logger)
	abandonment := services.NewAbandonmentService(db, queue, renderer, encryption, cfg, logger)
	providerConfigs := services.NewProviderConfigService(db, encryption)

	// 初始化 Gin
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// 註冊路由
	routes.RegisterRoutes(router, &routes.Dependencies{
		Config:                cfg,
		DB:                    db,
		QueueService:          queue,
		OrderMailService:      orderMail,
		AbandonmentService:    abandonment,
		ProviderConfigService: providerConfigs,
		StatusCacheService:    statusCache,
	})

	// 建立 HTTP Server
	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// 優雅關機
	go func() {
		logger.Info("api server listening", zap.String("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down api server")

	// 優雅關閉
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("api server stopped")
}

// newLogger 依環境建立 zap logger
func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.Env == "production" {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}
