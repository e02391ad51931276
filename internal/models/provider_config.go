// internal/models/provider_config.go
// 郵件服務商設定資料模型

package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderKind 服務商種類
type ProviderKind string

const (
	ProviderKindSMTP     ProviderKind = "smtp"
	ProviderKindSendGrid ProviderKind = "sendgrid"
)

// EmailProviderConfig 商店的外寄郵件服務商設定
// 同一商店、同一種類在發送時只有一筆 active 設定有效；
// 建立新設定時會停用同種類的其他設定
type EmailProviderConfig struct {
	ID                   uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID              uuid.UUID    `json:"store_id" gorm:"type:uuid;not null;index"`
	ProviderKind         ProviderKind `json:"provider_kind" gorm:"not null;index"`
	SenderEmail          string       `json:"sender_email" gorm:"not null"`
	SenderName           string       `json:"sender_name,omitempty"`
	ReplyTo              string       `json:"reply_to,omitempty"`
	CredentialsEncrypted string       `json:"-" gorm:"not null"`
	IsActive             bool         `json:"is_active" gorm:"default:true;index"`
	IsDefault            bool         `json:"is_default" gorm:"default:false"`
	CreatedAt            time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定資料表名稱
func (EmailProviderConfig) TableName() string {
	return "email_provider_configs"
}

// SMTPCredentials SMTP 提交憑證
type SMTPCredentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SendGridCredentials SendGrid API 憑證
type SendGridCredentials struct {
	APIKey string `json:"api_key"`
}

// ProviderCredentials 服務商憑證 (以 provider_kind 區分的 tagged union)
// 整個結構序列化為 JSON 後經 EncryptionService 加密保存
type ProviderCredentials struct {
	SMTP     *SMTPCredentials     `json:"smtp,omitempty"`
	SendGrid *SendGridCredentials `json:"sendgrid,omitempty"`
}

// CreateProviderConfigRequest 建立服務商設定請求
type CreateProviderConfigRequest struct {
	ProviderKind ProviderKind        `json:"provider_kind" binding:"required,oneof=smtp sendgrid"`
	SenderEmail  string              `json:"sender_email" binding:"required,email"`
	SenderName   string              `json:"sender_name"`
	ReplyTo      string              `json:"reply_to" binding:"omitempty,email"`
	IsDefault    bool                `json:"is_default"`
	Credentials  ProviderCredentials `json:"credentials" binding:"required"`
}

// UpdateProviderConfigRequest 更新服務商設定請求
type UpdateProviderConfigRequest struct {
	SenderEmail string               `json:"sender_email" binding:"omitempty,email"`
	SenderName  *string              `json:"sender_name"`
	ReplyTo     *string              `json:"reply_to"`
	IsActive    *bool                `json:"is_active"`
	IsDefault   *bool                `json:"is_default"`
	Credentials *ProviderCredentials `json:"credentials"`
}
