// internal/services/status_cache_service.go
// Redis 郵件狀態快取服務

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/models"
)

// StatusCacheService Redis 狀態快取服務
// 提供外部呼叫端快速查詢郵件狀態，不影響佇列本身的正確性
type StatusCacheService struct {
	cfg    *config.Config
	client *redis.Client
}

// NewStatusCacheService 建立狀態快取服務
func NewStatusCacheService(cfg *config.Config) (*StatusCacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	// 測試連接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StatusCacheService{
		cfg:    cfg,
		client: client,
	}, nil
}

// Client 回傳底層 Redis client (供排程鎖使用)
func (s *StatusCacheService) Client() *redis.Client {
	return s.client
}

// SetStatus 設定郵件狀態
func (s *StatusCacheService) SetStatus(ctx context.Context, messageID, status string, attempts int, errorMsg string) error {
	key := fmt.Sprintf("message:status:%s", messageID)

	statusCache := models.MessageStatusCache{
		MessageID:    messageID,
		Status:       status,
		Attempts:     attempts,
		LastUpdated:  time.Now().UTC().Format(time.RFC3339),
		ErrorMessage: errorMsg,
	}

	data, err := json.Marshal(statusCache)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	return s.client.Set(ctx, key, data, s.cfg.StatusCacheTTL).Err()
}

// GetStatus 取得郵件狀態
func (s *StatusCacheService) GetStatus(ctx context.Context, messageID string) (*models.MessageStatusCache, error) {
	key := fmt.Sprintf("message:status:%s", messageID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("status not found")
		}
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var status models.MessageStatusCache
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

// Ping 檢查連接
func (s *StatusCacheService) Ping(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Close 關閉連接
func (s *StatusCacheService) Close() error {
	return s.client.Close()
}
