// internal/services/provider_config_service.go
// 服務商設定管理服務

package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce-mailer/internal/models"
)

// ProviderConfigService 服務商設定管理服務
type ProviderConfigService struct {
	db         *gorm.DB
	encryption *EncryptionService
}

// NewProviderConfigService 建立服務商設定管理服務
func NewProviderConfigService(db *gorm.DB, encryption *EncryptionService) *ProviderConfigService {
	return &ProviderConfigService{
		db:         db,
		encryption: encryption,
	}
}

// Create 建立服務商設定
// 同商店同種類的既有 active 設定會被停用，確保發送時只有一筆有效
func (s *ProviderConfigService) Create(storeID uuid.UUID, req *models.CreateProviderConfigRequest) (*models.EmailProviderConfig, error) {
	if err := validateCredentials(req.ProviderKind, &req.Credentials); err != nil {
		return nil, err
	}

	encrypted, err := s.encryption.EncryptJSON(&req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	config := &models.EmailProviderConfig{
		ID:                   uuid.New(),
		StoreID:              storeID,
		ProviderKind:         req.ProviderKind,
		SenderEmail:          req.SenderEmail,
		SenderName:           req.SenderName,
		ReplyTo:              req.ReplyTo,
		CredentialsEncrypted: encrypted,
		IsActive:             true,
		IsDefault:            req.IsDefault,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 停用同種類的其他 active 設定
		if err := tx.Model(&models.EmailProviderConfig{}).
			Where("store_id = ? AND provider_kind = ? AND is_active = ?", storeID, req.ProviderKind, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(config).Error
	})
	if err != nil {
		return nil, err
	}

	return config, nil
}

// GetByID 根據 ID 查詢
func (s *ProviderConfigService) GetByID(id uuid.UUID) (*models.EmailProviderConfig, error) {
	var config models.EmailProviderConfig
	if err := s.db.First(&config, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &config, nil
}

// ListByStore 列出商店的所有設定
func (s *ProviderConfigService) ListByStore(storeID uuid.UUID) ([]models.EmailProviderConfig, error) {
	var configs []models.EmailProviderConfig
	if err := s.db.Where("store_id = ?", storeID).Order("created_at DESC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// Update 更新設定
// 重新啟用時停用同種類的其他 active 設定，與 Create 維持同一條不變量
func (s *ProviderConfigService) Update(id uuid.UUID, req *models.UpdateProviderConfigRequest) (*models.EmailProviderConfig, error) {
	var config models.EmailProviderConfig
	if err := s.db.First(&config, "id = ?", id).Error; err != nil {
		return nil, err
	}

	if req.SenderEmail != "" {
		config.SenderEmail = req.SenderEmail
	}
	if req.SenderName != nil {
		config.SenderName = *req.SenderName
	}
	if req.ReplyTo != nil {
		config.ReplyTo = *req.ReplyTo
	}
	if req.IsActive != nil {
		config.IsActive = *req.IsActive
	}
	if req.IsDefault != nil {
		config.IsDefault = *req.IsDefault
	}
	if req.Credentials != nil {
		if err := validateCredentials(config.ProviderKind, req.Credentials); err != nil {
			return nil, err
		}
		encrypted, err := s.encryption.EncryptJSON(req.Credentials)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		config.CredentialsEncrypted = encrypted
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.IsActive != nil && *req.IsActive {
			if err := tx.Model(&models.EmailProviderConfig{}).
				Where("store_id = ? AND provider_kind = ? AND is_active = ? AND id <> ?",
					config.StoreID, config.ProviderKind, true, config.ID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(&config).Error
	})
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// Delete 刪除設定
func (s *ProviderConfigService) Delete(id uuid.UUID) error {
	result := s.db.Delete(&models.EmailProviderConfig{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("provider config not found")
	}
	return nil
}

// validateCredentials 確認憑證內容與種類一致
func validateCredentials(kind models.ProviderKind, creds *models.ProviderCredentials) error {
	switch kind {
	case models.ProviderKindSMTP:
		if creds.SMTP == nil || creds.SMTP.Host == "" {
			return errors.New("smtp credentials require a host")
		}
	case models.ProviderKindSendGrid:
		if creds.SendGrid == nil || creds.SendGrid.APIKey == "" {
			return errors.New("sendgrid credentials require an api key")
		}
	default:
		return fmt.Errorf("unknown provider kind: %s", kind)
	}
	return nil
}
