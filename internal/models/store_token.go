// internal/models/store_token.go
// 商店 API Token 資料模型

package models

import (
	"time"

	"github.com/google/uuid"
)

// StoreToken 商店 API Token
// 外部子系統 (訂單、購物車、後台) 以此 Token 呼叫本引擎的 API
type StoreToken struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID   uuid.UUID  `json:"store_id" gorm:"type:uuid;not null;index"`
	StoreName string     `json:"store_name" gorm:"not null"`
	TokenHash string     `json:"-" gorm:"not null;uniqueIndex"`
	IsActive  bool       `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// TableName 指定資料表名稱
func (StoreToken) TableName() string {
	return "store_tokens"
}
