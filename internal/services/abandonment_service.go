// internal/services/abandonment_service.go
// 購物車棄置偵測與挽回信排程服務

package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/metrics"
	"commerce-mailer/internal/models"
)

const (
	// CartIdleThreshold 購物車閒置多久視為棄置
	CartIdleThreshold = time.Hour

	// RecoveryTokenValidity 復原連結有效期
	RecoveryTokenValidity = 7 * 24 * time.Hour
)

var (
	// ErrRecoveryTokenInvalid 復原 token 不存在或不匹配
	ErrRecoveryTokenInvalid = errors.New("recovery token not found")

	// ErrRecoveryTokenExpired 復原 token 已逾期
	ErrRecoveryTokenExpired = errors.New("recovery token expired")

	// ErrAbandonmentNotFound 購物車沒有棄置紀錄
	ErrAbandonmentNotFound = errors.New("cart abandonment not found")
)

// AbandonmentService 購物車棄置偵測與排程服務
// 偵測與排程跟佇列本身的發送重試分離，
// 購物車與品項的關聯查詢不會卡住原始發送流程
type AbandonmentService struct {
	db       *gorm.DB
	queue    *QueueService
	renderer *TemplateService
	vault    *EncryptionService
	cfg      *config.Config
	logger   *zap.Logger
}

// NewAbandonmentService 建立棄置偵測服務
func NewAbandonmentService(db *gorm.DB, queue *QueueService, renderer *TemplateService, vault *EncryptionService, cfg *config.Config, logger *zap.Logger) *AbandonmentService {
	return &AbandonmentService{
		db:       db,
		queue:    queue,
		renderer: renderer,
		vault:    vault,
		cfg:      cfg,
		logger:   logger,
	}
}

// DetectAbandoned 掃描新棄置的購物車
// 條件: 有顧客 email、閒置超過門檻、未過期、尚無棄置紀錄。
// 若同顧客在購物車最後活動之後已有訂單，視為已轉換而跳過。
// 回傳新追蹤的數量
func (s *AbandonmentService) DetectAbandoned(ctx context.Context, batchSize int) (int, error) {
	cutoff := time.Now().Add(-CartIdleThreshold)

	var carts []models.Cart
	err := s.db.WithContext(ctx).
		Where("customer_email <> ''").
		Where("last_activity_at <= ?", cutoff).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Where("NOT EXISTS (SELECT 1 FROM cart_abandonments WHERE cart_abandonments.cart_id = carts.id)").
		Order("last_activity_at ASC").
		Limit(batchSize).
		Find(&carts).Error
	if err != nil {
		return 0, fmt.Errorf("failed to scan idle carts: %w", err)
	}

	tracked := 0
	for _, cart := range carts {
		created, err := s.trackAbandonment(ctx, &cart)
		if err != nil {
			s.logger.Error("failed to track abandonment",
				zap.String("cart_id", cart.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if created {
			tracked++
		}
	}

	return tracked, nil
}

// trackAbandonment 為單一購物車建立棄置紀錄並立即排程
func (s *AbandonmentService) trackAbandonment(ctx context.Context, cart *models.Cart) (bool, error) {
	// 最後活動後已有同顧客訂單，購物車已轉換而非棄置
	var orderCount int64
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("store_id = ? AND customer_email = ? AND created_at > ?", cart.StoreID, cart.CustomerEmail, cart.LastActivityAt).
		Count(&orderCount).Error
	if err != nil {
		return false, fmt.Errorf("failed to check for converting order: %w", err)
	}
	if orderCount > 0 {
		return false, nil
	}

	token, err := generateRecoveryToken()
	if err != nil {
		return false, err
	}

	encryptedToken, err := s.vault.Encrypt(token)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt recovery token: %w", err)
	}

	abandonment := &models.CartAbandonment{
		ID:                     uuid.New(),
		StoreID:                cart.StoreID,
		CartID:                 cart.ID,
		CustomerEmail:          cart.CustomerEmail,
		RecoveryTokenHash:      hashRecoveryToken(token),
		RecoveryTokenEncrypted: encryptedToken,
		AbandonedAt:            cart.LastActivityAt,
	}

	if err := s.db.WithContext(ctx).Create(abandonment).Error; err != nil {
		return false, fmt.Errorf("failed to create abandonment record: %w", err)
	}

	metrics.AbandonmentsDetected.Inc()

	if _, err := s.ScheduleEmails(ctx, abandonment); err != nil {
		// 排程失敗不影響追蹤本身，下一輪掃描會補排
		s.logger.Warn("initial scheduling failed",
			zap.String("cart_id", cart.ID.String()),
			zap.Error(err),
		)
	}

	return true, nil
}

// ScheduleEmails 依商店的自動化規則為棄置紀錄排程挽回信
// 同分類已有郵件時跳過 (冪等，重複掃描不會重複排程)。
// 排程時間已過且此棄置已寄出過郵件時靜默跳過，避免積壓的棄置一次灌出所有階段
func (s *AbandonmentService) ScheduleEmails(ctx context.Context, abandonment *models.CartAbandonment) (int, error) {
	if abandonment.IsRecovered {
		return 0, nil
	}

	token, err := s.vault.Decrypt(abandonment.RecoveryTokenEncrypted)
	if err != nil {
		return 0, fmt.Errorf("failed to decrypt recovery token: %w", err)
	}

	var cart models.Cart
	err = s.db.WithContext(ctx).Preload("Items").First(&cart, "id = ?", abandonment.CartID).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load cart: %w", err)
	}

	var rules []models.EmailAutomationRule
	err = s.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ? AND template_type IN ?",
			abandonment.StoreID, true, models.AbandonedCartTemplateTypes).
		Order("trigger_delay_minutes ASC").
		Find(&rules).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load automation rules: %w", err)
	}

	now := time.Now()
	scheduled := 0

	for _, rule := range rules {
		// 冪等檢查: 同購物車同分類只排一次
		var existing int64
		err := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
			Where("cart_id = ? AND template_type = ?", abandonment.CartID, rule.TemplateType).
			Count(&existing).Error
		if err != nil {
			s.logger.Error("failed to check for existing message",
				zap.String("cart_id", abandonment.CartID.String()),
				zap.String("template_type", string(rule.TemplateType)),
				zap.Error(err),
			)
			continue
		}
		if existing > 0 {
			continue
		}

		scheduledFor := abandonment.AbandonedAt.Add(time.Duration(rule.TriggerDelayMinutes) * time.Minute)
		if scheduledFor.Before(now) && abandonment.EmailsSentCount+scheduled > 0 {
			continue
		}

		var template models.EmailTemplate
		err = s.db.WithContext(ctx).
			First(&template, "store_id = ? AND template_type = ?", abandonment.StoreID, rule.TemplateType).Error
		if err != nil {
			s.logger.Warn("no template for automation rule",
				zap.String("store_id", abandonment.StoreID.String()),
				zap.String("template_type", string(rule.TemplateType)),
			)
			continue
		}

		data := s.buildCartContext(&cart, abandonment, &rule, token)

		msg := &models.QueuedMessage{
			StoreID:        abandonment.StoreID,
			RecipientEmail: abandonment.CustomerEmail,
			Subject:        s.renderer.Render(template.Subject, data),
			BodyHTML:       s.renderer.RenderUnsafe(template.BodyHTML, data),
			BodyText:       s.renderer.Render(template.BodyText, data),
			TemplateType:   rule.TemplateType,
			CartID:         &abandonment.CartID,
			ScheduledFor:   scheduledFor,
		}

		if _, err := s.queue.Enqueue(ctx, msg); err != nil {
			s.logger.Error("failed to enqueue recovery email",
				zap.String("cart_id", abandonment.CartID.String()),
				zap.String("template_type", string(rule.TemplateType)),
				zap.Error(err),
			)
			continue
		}

		scheduled++
		metrics.EmailsScheduled.Inc()
	}

	if scheduled > 0 {
		err := s.db.WithContext(ctx).Model(&models.CartAbandonment{}).
			Where("id = ?", abandonment.ID).
			Update("emails_sent_count", gorm.Expr("emails_sent_count + ?", scheduled)).Error
		if err != nil {
			s.logger.Error("failed to update emails sent count",
				zap.String("abandonment_id", abandonment.ID.String()),
				zap.Error(err),
			)
		}
		abandonment.EmailsSentCount += scheduled
	}

	return scheduled, nil
}

// SweepSchedules 為尚未復原的棄置紀錄補排挽回信
// 由排程器定期呼叫，新增規則或先前排程失敗時由此補上
func (s *AbandonmentService) SweepSchedules(ctx context.Context, batchSize int) (int, error) {
	var abandonments []models.CartAbandonment
	err := s.db.WithContext(ctx).
		Where("is_recovered = ?", false).
		Where("abandoned_at > ?", time.Now().Add(-RecoveryTokenValidity)).
		Order("abandoned_at ASC").
		Limit(batchSize).
		Find(&abandonments).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load abandonments: %w", err)
	}

	total := 0
	for i := range abandonments {
		scheduled, err := s.ScheduleEmails(ctx, &abandonments[i])
		if err != nil {
			s.logger.Error("scheduling sweep failed for abandonment",
				zap.String("abandonment_id", abandonments[i].ID.String()),
				zap.Error(err),
			)
			continue
		}
		total += scheduled
	}

	return total, nil
}

// RecoverCart 以復原 token 取回購物車
// token 不存在回傳 not found；棄置超過有效期一律逾期，
// 不論先前是否已復原，重複點擊連結是安全的
func (s *AbandonmentService) RecoverCart(ctx context.Context, token string) (*models.Cart, error) {
	var abandonment models.CartAbandonment
	err := s.db.WithContext(ctx).
		First(&abandonment, "recovery_token_hash = ?", hashRecoveryToken(token)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecoveryTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up recovery token: %w", err)
	}

	if time.Since(abandonment.AbandonedAt) > RecoveryTokenValidity {
		return nil, ErrRecoveryTokenExpired
	}

	var cart models.Cart
	if err := s.db.WithContext(ctx).Preload("Items").First(&cart, "id = ?", abandonment.CartID).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	return &cart, nil
}

// MarkRecovered 將棄置購物車標記為已復原
// 同時取消該購物車所有尚未發出的挽回信
func (s *AbandonmentService) MarkRecovered(ctx context.Context, cartID, orderID uuid.UUID) error {
	var abandonment models.CartAbandonment
	err := s.db.WithContext(ctx).First(&abandonment, "cart_id = ?", cartID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAbandonmentNotFound
		}
		return fmt.Errorf("failed to load abandonment: %w", err)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&models.CartAbandonment{}).
		Where("id = ?", abandonment.ID).
		Updates(map[string]interface{}{
			"is_recovered":       true,
			"recovered_at":       now,
			"recovered_order_id": orderID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark abandonment recovered: %w", err)
	}

	cancelled, err := s.queue.CancelPending(ctx, abandonment.StoreID, &cartID, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel pending recovery emails: %w", err)
	}

	metrics.CartsRecovered.Inc()
	s.logger.Info("cart recovered",
		zap.String("cart_id", cartID.String()),
		zap.String("order_id", orderID.String()),
		zap.Int64("cancelled_emails", cancelled),
	)
	return nil
}

// buildCartContext 組合挽回信的渲染資料
func (s *AbandonmentService) buildCartContext(cart *models.Cart, abandonment *models.CartAbandonment, rule *models.EmailAutomationRule, token string) map[string]interface{} {
	locale := s.cfg.DefaultLocale

	data := map[string]interface{}{
		"customer": map[string]interface{}{
			"email": abandonment.CustomerEmail,
		},
		"cart": map[string]interface{}{
			"items_html": s.renderer.ItemsHTML(LineItemsFromCart(cart.Items), cart.Currency, locale),
			"total":      s.renderer.FormatCurrency(cart.TotalCents(), cart.Currency, locale),
			"item_count": len(cart.Items),
		},
		"recovery_url":    fmt.Sprintf("%s/cart/recover/%s", s.cfg.StorefrontBaseURL, token),
		"unsubscribe_url": fmt.Sprintf("%s/unsubscribe?email=%s", s.cfg.StorefrontBaseURL, url.QueryEscape(abandonment.CustomerEmail)),
		"abandoned_at":    s.renderer.FormatDate(abandonment.AbandonedAt, locale),
	}

	if rule.DiscountCode != "" {
		data["discount"] = map[string]interface{}{
			"code":    rule.DiscountCode,
			"percent": rule.DiscountPercent,
		}
	}

	return data
}

// generateRecoveryToken 產生 32 bytes 隨機 token (hex)
func generateRecoveryToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate recovery token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashRecoveryToken 計算 token 的 SHA-256 雜湊 (hex)
// 資料庫僅保存雜湊作為查詢鍵
func hashRecoveryToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
