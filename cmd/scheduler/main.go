// cmd/scheduler/main.go
// 排程器入口 - 佇列發送、棄置偵測、挽回信補排

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/database"
	"commerce-mailer/internal/metrics"
	"commerce-mailer/internal/scheduler"
	"commerce-mailer/internal/services"
)

func main() {
	// 載入設定
	cfg := config.Load()

	logger := newLogger(cfg)
	defer logger.Sync()
	logger.Info("starting commerce mailer scheduler")

	metrics.Init()

	// 初始化資料庫
	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// 初始化加密服務
	encryption, err := services.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("failed to initialize encryption", zap.Error(err))
	}

	// 初始化 Redis (狀態快取 + 排程鎖)
	statusCache, err := services.NewStatusCacheService(cfg)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer statusCache.Close()

	// 組裝服務
	renderer := services.NewTemplateService()
	providers := services.NewProviderService(db, encryption)
	queue := services.NewQueueService(db, providers, statusCache, cfg.DispatchPerSecond, logger)
	abandonment := services.NewAbandonmentService(db, queue, renderer, encryption, cfg, logger)

	// 啟動排程
	lock := scheduler.NewRunLock(statusCache.Client(), cfg.SchedulerLockTTL)
	driver := scheduler.NewDriver(lock, queue, abandonment, cfg, logger)
	if err := driver.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	// 指標端點
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("metrics endpoint listening", zap.String("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler")
	driver.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)

	logger.Info("scheduler stopped")
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
