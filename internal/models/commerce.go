// internal/models/commerce.go
// 購物車與訂單資料模型 (由商務子系統擁有，此處僅供查詢關聯)

package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart 購物車
type Cart struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID        uuid.UUID  `json:"store_id" gorm:"type:uuid;not null;index"`
	CustomerEmail  string     `json:"customer_email,omitempty" gorm:"index"`
	Currency       string     `json:"currency" gorm:"not null;default:'USD'"`
	LastActivityAt time.Time  `json:"last_activity_at" gorm:"not null;index"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// 關聯
	Items []CartItem `json:"items,omitempty" gorm:"foreignKey:CartID"`
}

// TableName 指定資料表名稱
func (Cart) TableName() string {
	return "carts"
}

// TotalCents 計算購物車總金額 (分)
func (c *Cart) TotalCents() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	return total
}

// CartItem 購物車項目
type CartItem struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CartID         uuid.UUID `json:"cart_id" gorm:"type:uuid;not null;index"`
	ProductName    string    `json:"product_name" gorm:"not null"`
	VariantName    string    `json:"variant_name,omitempty"`
	Quantity       int       `json:"quantity" gorm:"not null;default:1"`
	UnitPriceCents int64     `json:"unit_price_cents" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定資料表名稱
func (CartItem) TableName() string {
	return "cart_items"
}

// Order 訂單
type Order struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID       uuid.UUID `json:"store_id" gorm:"type:uuid;not null;index"`
	CustomerEmail string    `json:"customer_email" gorm:"not null;index"`
	OrderNumber   string    `json:"order_number,omitempty"`
	Currency      string    `json:"currency" gorm:"not null;default:'USD'"`
	TotalCents    int64     `json:"total_cents" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime;index"`

	// 關聯
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// TableName 指定資料表名稱
func (Order) TableName() string {
	return "orders"
}

// OrderItem 訂單項目
type OrderItem struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID        uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductName    string    `json:"product_name" gorm:"not null"`
	VariantName    string    `json:"variant_name,omitempty"`
	Quantity       int       `json:"quantity" gorm:"not null;default:1"`
	UnitPriceCents int64     `json:"unit_price_cents" gorm:"not null"`
}

// TableName 指定資料表名稱
func (OrderItem) TableName() string {
	return "order_items"
}
