// internal/services/queue_service.go
// 郵件佇列服務 - 入列、批次發送、重試狀態機

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"commerce-mailer/internal/metrics"
	"commerce-mailer/internal/models"
)

// MaxDeliveryAttempts 單封郵件的發送次數上限，超過即永久失敗
const MaxDeliveryAttempts = 3

var (
	// ErrMessageNotFound 郵件不存在
	ErrMessageNotFound = errors.New("queued message not found")

	// ErrMessageAlreadyHandled 郵件已非 pending 狀態，避免重複發送
	ErrMessageAlreadyHandled = errors.New("queued message already handled")

	// ErrAttemptsExhausted 發送次數已用盡
	ErrAttemptsExhausted = errors.New("delivery attempts exhausted")
)

// QueueService 郵件佇列服務
// 狀態機: pending → sending → {sent | pending(重試) | failed(次數用盡)}
// pending → cancelled 僅由外部取消觸發；sent 與 cancelled 為終態
type QueueService struct {
	db          *gorm.DB
	providers   ProviderResolver
	statusCache *StatusCacheService
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewQueueService 建立郵件佇列服務
// dispatchPerSecond 控制批次發送時的間隔，避免觸發服務商限流
func NewQueueService(db *gorm.DB, providers ProviderResolver, statusCache *StatusCacheService, dispatchPerSecond int, logger *zap.Logger) *QueueService {
	if dispatchPerSecond <= 0 {
		dispatchPerSecond = 2
	}
	return &QueueService{
		db:          db,
		providers:   providers,
		statusCache: statusCache,
		limiter:     rate.NewLimiter(rate.Limit(dispatchPerSecond), 1),
		logger:      logger,
	}
}

// Enqueue 將郵件加入佇列 (pending 狀態)
// scheduled_for 未指定時預設為現在，回傳建立的郵件 ID
func (s *QueueService) Enqueue(ctx context.Context, msg *models.QueuedMessage) (uuid.UUID, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.ScheduledFor.IsZero() {
		msg.ScheduledFor = time.Now()
	}
	msg.Status = models.MessageStatusPending
	msg.Attempts = 0

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue message: %w", err)
	}

	s.cacheStatus(ctx, msg.ID, string(models.MessageStatusPending), 0, "")
	return msg.ID, nil
}

// ProcessDue 處理到期的 pending 郵件
// 依 scheduled_for 升冪最多取 batchSize 筆，逐一發送並回傳成功數。
// 單封失敗不中斷整批，僅記錄並繼續
func (s *QueueService) ProcessDue(ctx context.Context, batchSize int) (int, error) {
	var due []models.QueuedMessage
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.MessageStatusPending, time.Now()).
		Order("scheduled_for ASC").
		Limit(batchSize).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load due messages: %w", err)
	}

	sent := 0
	for _, msg := range due {
		// 發送間隔，配合服務商限流
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, err
		}

		if err := s.Dispatch(ctx, msg.ID); err != nil {
			if errors.Is(err, ErrMessageAlreadyHandled) || errors.Is(err, ErrMessageNotFound) {
				continue
			}
			s.logger.Warn("dispatch failed",
				zap.String("message_id", msg.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	return sent, nil
}

// Dispatch 發送單封郵件，狀態機的原子工作單位
// 僅處理 pending 郵件；次數用盡時轉為 failed 且不再呼叫服務商
func (s *QueueService) Dispatch(ctx context.Context, id uuid.UUID) error {
	var msg models.QueuedMessage
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("failed to load message: %w", err)
	}

	if msg.Status != models.MessageStatusPending {
		return ErrMessageAlreadyHandled
	}

	if msg.Attempts >= MaxDeliveryAttempts {
		errMsg := fmt.Sprintf("delivery attempts exhausted after %d tries: %s", msg.Attempts, msg.ErrorMessage)
		s.transition(ctx, msg.ID, map[string]interface{}{
			"status":        models.MessageStatusFailed,
			"error_message": errMsg,
		})
		s.cacheStatus(ctx, msg.ID, string(models.MessageStatusFailed), msg.Attempts, errMsg)
		metrics.MessagesFailed.Inc()
		return ErrAttemptsExhausted
	}

	// pending → sending 以條件式更新實現 compare-and-swap，
	// RowsAffected 為 0 表示已被其他流程處理
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", id, models.MessageStatusPending).
		Updates(map[string]interface{}{
			"status":          models.MessageStatusSending,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to transition message to sending: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMessageAlreadyHandled
	}

	attempts := msg.Attempts + 1
	s.cacheStatus(ctx, msg.ID, string(models.MessageStatusSending), attempts, "")

	provider, providerConfig, err := s.providers.ResolveActive(msg.StoreID)
	if err != nil {
		// 設定錯誤 (無有效服務商、憑證解密失敗) 直接終結，
		// 避免設定壞掉的商店在佇列裡無止境循環
		s.transition(ctx, msg.ID, map[string]interface{}{
			"status":        models.MessageStatusFailed,
			"error_message": err.Error(),
		})
		s.cacheStatus(ctx, msg.ID, string(models.MessageStatusFailed), attempts, err.Error())
		metrics.MessagesFailed.Inc()
		return err
	}

	email := &models.OutboundEmail{
		FromEmail: providerConfig.SenderEmail,
		FromName:  providerConfig.SenderName,
		ReplyTo:   providerConfig.ReplyTo,
		To:        msg.RecipientEmail,
		Subject:   msg.Subject,
		HTML:      msg.BodyHTML,
		Text:      msg.BodyText,
	}

	response, sendErr := provider.Send(email)
	if sendErr != nil {
		// 可重試的失敗: 回到 pending 等待下一輪掃描
		s.transition(ctx, msg.ID, map[string]interface{}{
			"status":        models.MessageStatusPending,
			"error_message": sendErr.Error(),
		})
		s.cacheStatus(ctx, msg.ID, string(models.MessageStatusPending), attempts, sendErr.Error())
		metrics.MessagesRetried.Inc()
		s.logger.Warn("provider send failed",
			zap.String("message_id", msg.ID.String()),
			zap.String("provider", provider.Name()),
			zap.Int("attempts", attempts),
			zap.Error(sendErr),
		)
		return fmt.Errorf("provider send failed: %w", sendErr)
	}

	s.transition(ctx, msg.ID, map[string]interface{}{
		"status":            models.MessageStatusSent,
		"sent_at":           time.Now(),
		"provider_response": response,
		"error_message":     "",
	})
	s.cacheStatus(ctx, msg.ID, string(models.MessageStatusSent), attempts, "")
	metrics.MessagesSent.Inc()

	s.logger.Info("message sent",
		zap.String("message_id", msg.ID.String()),
		zap.String("provider", provider.Name()),
		zap.Int("attempts", attempts),
	)
	return nil
}

// Retry 手動重試
// 重置發送次數與排程時間後立即嘗試發送，用於 failed 郵件的人工介入。
// 僅 failed 與 pending 可重試；sent、cancelled 為終態，sending 正在處理中
func (s *QueueService) Retry(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
		Where("id = ? AND status IN ?", id, []models.MessageStatus{
			models.MessageStatusFailed,
			models.MessageStatusPending,
		}).
		Updates(map[string]interface{}{
			"status":        models.MessageStatusPending,
			"attempts":      0,
			"scheduled_for": time.Now(),
			"error_message": "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to load message: %w", err)
		}
		if count == 0 {
			return ErrMessageNotFound
		}
		return ErrMessageAlreadyHandled
	}

	return s.Dispatch(ctx, id)
}

// CancelPending 批次取消 pending 郵件
// 僅匹配 status = pending，已進入 sending/sent 的郵件不受影響。
// 用於購物車復原後停止尚未發出的挽回信
func (s *QueueService) CancelPending(ctx context.Context, storeID uuid.UUID, cartID, orderID *uuid.UUID) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
		Where("store_id = ? AND status = ?", storeID, models.MessageStatusPending)
	if cartID != nil {
		query = query.Where("cart_id = ?", *cartID)
	}
	if orderID != nil {
		query = query.Where("order_id = ?", *orderID)
	}

	result := query.Update("status", models.MessageStatusCancelled)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel pending messages: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// HistoryFilter 歷史查詢條件
type HistoryFilter struct {
	Status       models.MessageStatus
	TemplateType models.TemplateType
	Page         int
	Limit        int
}

// History 分頁查詢郵件歷史，新的在前
func (s *QueueService) History(ctx context.Context, storeID uuid.UUID, filter HistoryFilter) ([]models.QueuedMessage, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	query := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).Where("store_id = ?", storeID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TemplateType != "" {
		query = query.Where("template_type = ?", filter.TemplateType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.QueuedMessage
	offset := (filter.Page - 1) * filter.Limit
	err := query.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// transition 更新單封郵件的狀態欄位
func (s *QueueService) transition(ctx context.Context, id uuid.UUID, fields map[string]interface{}) {
	if err := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		s.logger.Error("failed to update message status",
			zap.String("message_id", id.String()),
			zap.Error(err),
		)
	}
}

// cacheStatus 更新 Redis 狀態快取 (best effort)
func (s *QueueService) cacheStatus(ctx context.Context, id uuid.UUID, status string, attempts int, errMsg string) {
	if s.statusCache == nil {
		return
	}
	if err := s.statusCache.SetStatus(ctx, id.String(), status, attempts, errMsg); err != nil {
		s.logger.Warn("failed to update status cache",
			zap.String("message_id", id.String()),
			zap.Error(err),
		)
	}
}
