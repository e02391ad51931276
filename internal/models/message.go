// internal/models/message.go
// 待發郵件資料模型

package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus 郵件狀態
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusCancelled MessageStatus = "cancelled"
)

// TemplateType 模板分類
// 區分訂單確認信與各階段購物車挽回信
type TemplateType string

const (
	TemplateOrderConfirmation TemplateType = "ORDER_CONFIRMATION"
	TemplateAbandonedCart1H   TemplateType = "ABANDONED_CART_1H"
	TemplateAbandonedCart24H  TemplateType = "ABANDONED_CART_24H"
	TemplateAbandonedCart7D   TemplateType = "ABANDONED_CART_7D"
)

// AbandonedCartTemplateTypes 購物車挽回信的所有分類
var AbandonedCartTemplateTypes = []TemplateType{
	TemplateAbandonedCart1H,
	TemplateAbandonedCart24H,
	TemplateAbandonedCart7D,
}

// QueuedMessage 待發郵件資料模型
// 每封外寄郵件對應一筆紀錄，終態紀錄保留供稽核查詢，永不實體刪除
type QueuedMessage struct {
	ID               uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID          uuid.UUID     `json:"store_id" gorm:"type:uuid;not null;index"`
	RecipientEmail   string        `json:"recipient_email" gorm:"not null"`
	Subject          string        `json:"subject" gorm:"not null"`
	BodyHTML         string        `json:"body_html,omitempty"`
	BodyText         string        `json:"body_text,omitempty"`
	TemplateType     TemplateType  `json:"template_type,omitempty" gorm:"index"`
	OrderID          *uuid.UUID    `json:"order_id,omitempty" gorm:"type:uuid;index"`
	CartID           *uuid.UUID    `json:"cart_id,omitempty" gorm:"type:uuid;index"`
	ScheduledFor     time.Time     `json:"scheduled_for" gorm:"not null;index"`
	Status           MessageStatus `json:"status" gorm:"not null;default:'pending';index"`
	Attempts         int           `json:"attempts" gorm:"default:0"`
	LastAttemptAt    *time.Time    `json:"last_attempt_at,omitempty"`
	SentAt           *time.Time    `json:"sent_at,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ProviderResponse string        `json:"provider_response,omitempty"`
	CreatedAt        time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定資料表名稱
func (QueuedMessage) TableName() string {
	return "queued_messages"
}

// OutboundEmail 發送服務使用的郵件格式
// 由 QueuedMessage 與寄件者設定組合而成
type OutboundEmail struct {
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name,omitempty"`
	ReplyTo   string `json:"reply_to,omitempty"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html,omitempty"`
	Text      string `json:"text,omitempty"`
}

// MessageStatusCache Redis 快取格式
type MessageStatusCache struct {
	MessageID    string `json:"message_id"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	LastUpdated  string `json:"last_updated"`
	ErrorMessage string `json:"error_message,omitempty"`
}
