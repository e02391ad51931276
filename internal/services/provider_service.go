// internal/services/provider_service.go
// 郵件服務商抽象層 - 依商店設定解析並建立發送服務

package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce-mailer/internal/models"
)

// ErrNoActiveProvider 商店沒有可用的服務商設定
var ErrNoActiveProvider = errors.New("no active email provider config for store")

// MailProvider 郵件發送服務介面
// 所有服務商 (SMTP、SendGrid 等) 都需實作此介面
type MailProvider interface {
	// Send 發送郵件，回傳服務商的原始回應
	Send(email *models.OutboundEmail) (string, error)

	// VerifyCredentials 驗證憑證是否可用
	VerifyCredentials() error

	// Name 回傳服務名稱，用於 logging
	Name() string
}

// ProviderResolver 解析商店當前有效的發送服務
// Queue 透過此介面取得服務商，測試時可注入替身
type ProviderResolver interface {
	ResolveActive(storeID uuid.UUID) (MailProvider, *models.EmailProviderConfig, error)
}

// ProviderService 服務商解析服務
// 讀取商店的 active 設定、解密憑證、依 provider_kind 建立對應服務
type ProviderService struct {
	db         *gorm.DB
	encryption *EncryptionService
}

// NewProviderService 建立服務商解析服務
func NewProviderService(db *gorm.DB, encryption *EncryptionService) *ProviderService {
	return &ProviderService{
		db:         db,
		encryption: encryption,
	}
}

// ResolveActive 取得商店當前有效的發送服務
// 優先使用 is_default 設定，其次為最新建立的 active 設定
func (s *ProviderService) ResolveActive(storeID uuid.UUID) (MailProvider, *models.EmailProviderConfig, error) {
	var config models.EmailProviderConfig
	err := s.db.
		Where("store_id = ? AND is_active = ?", storeID, true).
		Order("is_default DESC, created_at DESC").
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNoActiveProvider
		}
		return nil, nil, fmt.Errorf("failed to load provider config: %w", err)
	}

	var creds models.ProviderCredentials
	if err := s.encryption.DecryptJSON(config.CredentialsEncrypted, &creds); err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt provider credentials: %w", err)
	}

	provider, err := s.buildProvider(&config, &creds)
	if err != nil {
		return nil, nil, err
	}

	return provider, &config, nil
}

// buildProvider 依 provider_kind 建立對應的發送服務
func (s *ProviderService) buildProvider(config *models.EmailProviderConfig, creds *models.ProviderCredentials) (MailProvider, error) {
	switch config.ProviderKind {
	case models.ProviderKindSMTP:
		if creds.SMTP == nil {
			return nil, fmt.Errorf("provider config %s is kind smtp but has no smtp credentials", config.ID)
		}
		return NewSMTPProvider(creds.SMTP), nil
	case models.ProviderKindSendGrid:
		if creds.SendGrid == nil {
			return nil, fmt.Errorf("provider config %s is kind sendgrid but has no sendgrid credentials", config.ID)
		}
		return NewSendGridProvider(creds.SendGrid), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", config.ProviderKind)
	}
}
