// internal/database/database.go
// 資料庫連接與遷移

package database

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/models"
)

// Connect 建立 PostgreSQL 連接
// 啟動時資料庫可能還沒就緒 (容器環境)，以指數退避重試
func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default
	if cfg.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	var db *gorm.DB
	operation := func() error {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: gormLogger,
		})
		if err != nil {
			log.Warn("database not ready, retrying", zap.Error(err))
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 60 * time.Second
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 設定連接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("database connected")
	return db, nil
}

// Migrate 建立資料表結構
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.QueuedMessage{},
		&models.CartAbandonment{},
		&models.EmailAutomationRule{},
		&models.EmailTemplate{},
		&models.EmailProviderConfig{},
		&models.StoreToken{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
	)
}
