// internal/services/order_mail_service.go
// 訂單確認信服務

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/models"
)

var (
	// ErrOrderNotFound 訂單不存在
	ErrOrderNotFound = errors.New("order not found")

	// ErrTemplateNotFound 商店沒有對應分類的模板
	ErrTemplateNotFound = errors.New("email template not found")

	// ErrConfirmationAlreadyQueued 訂單確認信已入列
	ErrConfirmationAlreadyQueued = errors.New("order confirmation already queued")
)

// OrderMailService 訂單交易信服務
type OrderMailService struct {
	db       *gorm.DB
	queue    *QueueService
	renderer *TemplateService
	cfg      *config.Config
	logger   *zap.Logger
}

// NewOrderMailService 建立訂單交易信服務
func NewOrderMailService(db *gorm.DB, queue *QueueService, renderer *TemplateService, cfg *config.Config, logger *zap.Logger) *OrderMailService {
	return &OrderMailService{
		db:       db,
		queue:    queue,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// SendOrderConfirmation 為訂單入列確認信
// 同一張訂單只入列一次，重複呼叫回傳 ErrConfirmationAlreadyQueued
func (s *OrderMailService) SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrOrderNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to load order: %w", err)
	}

	var existing int64
	err = s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
		Where("order_id = ? AND template_type = ?", orderID, models.TemplateOrderConfirmation).
		Count(&existing).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to check for existing confirmation: %w", err)
	}
	if existing > 0 {
		return uuid.Nil, ErrConfirmationAlreadyQueued
	}

	var template models.EmailTemplate
	err = s.db.WithContext(ctx).
		First(&template, "store_id = ? AND template_type = ?", order.StoreID, models.TemplateOrderConfirmation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrTemplateNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to load template: %w", err)
	}

	locale := s.cfg.DefaultLocale
	data := map[string]interface{}{
		"customer": map[string]interface{}{
			"email": order.CustomerEmail,
		},
		"order": map[string]interface{}{
			"number":     order.OrderNumber,
			"items_html": s.renderer.ItemsHTML(LineItemsFromOrder(order.Items), order.Currency, locale),
			"total":      s.renderer.FormatCurrency(order.TotalCents, order.Currency, locale),
			"item_count": len(order.Items),
			"placed_at":  s.renderer.FormatDate(order.CreatedAt, locale),
		},
		"store": map[string]interface{}{
			"url": s.cfg.StorefrontBaseURL,
		},
	}

	msg := &models.QueuedMessage{
		StoreID:        order.StoreID,
		RecipientEmail: order.CustomerEmail,
		Subject:        s.renderer.Render(template.Subject, data),
		BodyHTML:       s.renderer.RenderUnsafe(template.BodyHTML, data),
		BodyText:       s.renderer.Render(template.BodyText, data),
		TemplateType:   models.TemplateOrderConfirmation,
		OrderID:        &order.ID,
	}

	id, err := s.queue.Enqueue(ctx, msg)
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("order confirmation queued",
		zap.String("order_id", orderID.String()),
		zap.String("message_id", id.String()),
	)
	return id, nil
}
