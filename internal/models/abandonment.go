// internal/models/abandonment.go
// 購物車棄置追蹤資料模型

package models

import (
	"time"

	"github.com/google/uuid"
)

// CartAbandonment 購物車棄置紀錄
// 每個購物車最多一筆 (cart_id 唯一)；復原後紀錄保留但不再參與排程
// recovery token 僅以雜湊值作為查詢鍵；明文以加密形式保存供排程渲染使用
type CartAbandonment struct {
	ID                      uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID                 uuid.UUID  `json:"store_id" gorm:"type:uuid;not null;index"`
	CartID                  uuid.UUID  `json:"cart_id" gorm:"type:uuid;not null;uniqueIndex"`
	CustomerEmail           string     `json:"customer_email" gorm:"not null"`
	RecoveryTokenHash       string     `json:"-" gorm:"not null;uniqueIndex"`
	RecoveryTokenEncrypted  string     `json:"-" gorm:"not null"`
	AbandonedAt             time.Time  `json:"abandoned_at" gorm:"not null;index"`
	IsRecovered             bool       `json:"is_recovered" gorm:"default:false;index"`
	RecoveredAt             *time.Time `json:"recovered_at,omitempty"`
	RecoveredOrderID        *uuid.UUID `json:"recovered_order_id,omitempty" gorm:"type:uuid"`
	EmailsSentCount         int        `json:"emails_sent_count" gorm:"default:0"`
	CreatedAt               time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt               time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定資料表名稱
func (CartAbandonment) TableName() string {
	return "cart_abandonments"
}

// EmailAutomationRule 商店的自動化郵件規則
// 定義棄置後多久、以哪個模板分類發送挽回信
type EmailAutomationRule struct {
	ID                  uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID             uuid.UUID    `json:"store_id" gorm:"type:uuid;not null;uniqueIndex:idx_rule_store_type"`
	TemplateType        TemplateType `json:"template_type" gorm:"not null;uniqueIndex:idx_rule_store_type"`
	TriggerDelayMinutes int          `json:"trigger_delay_minutes" gorm:"not null"`
	DiscountCode        string       `json:"discount_code,omitempty"`
	DiscountPercent     int          `json:"discount_percent,omitempty"`
	IsActive            bool         `json:"is_active" gorm:"default:true"`
	CreatedAt           time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定資料表名稱
func (EmailAutomationRule) TableName() string {
	return "email_automation_rules"
}

// EmailTemplate 商店模板內容
// 每個 (store, template_type) 唯一
type EmailTemplate struct {
	ID           uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID      uuid.UUID    `json:"store_id" gorm:"type:uuid;not null;uniqueIndex:idx_template_store_type"`
	TemplateType TemplateType `json:"template_type" gorm:"not null;uniqueIndex:idx_template_store_type"`
	Subject      string       `json:"subject" gorm:"not null"`
	BodyHTML     string       `json:"body_html" gorm:"not null"`
	BodyText     string       `json:"body_text,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定資料表名稱
func (EmailTemplate) TableName() string {
	return "email_templates"
}
