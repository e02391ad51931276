// internal/api/handlers/recovery_handler.go
// 購物車復原 API Handler

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commerce-mailer/internal/services"
)

// RecoveryHandler 購物車復原 Handler
type RecoveryHandler struct {
	abandonment *services.AbandonmentService
}

// NewRecoveryHandler 建立 Recovery Handler
func NewRecoveryHandler(abandonment *services.AbandonmentService) *RecoveryHandler {
	return &RecoveryHandler{
		abandonment: abandonment,
	}
}

// Recover 以復原 token 取回購物車內容
// 公開端點，顧客點擊挽回信中的連結時由店面前台呼叫
func (h *RecoveryHandler) Recover(c *gin.Context) {
	token := c.Param("token")

	cart, err := h.abandonment.RecoverCart(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecoveryTokenInvalid):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "token_not_found",
				"message": "recovery link is not valid",
			})
		case errors.Is(err, services.ErrRecoveryTokenExpired):
			c.JSON(http.StatusGone, gin.H{
				"success": false,
				"error":   "token_expired",
				"message": "recovery link has expired",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "recovery_failed",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cart,
	})
}

// MarkRecoveredRequest 標記復原請求
type MarkRecoveredRequest struct {
	OrderID uuid.UUID `json:"order_id" binding:"required"`
}

// MarkRecovered 標記購物車已復原 (結帳完成後由訂單子系統呼叫)
func (h *RecoveryHandler) MarkRecovered(c *gin.Context) {
	cartID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_id",
			"message": "cart id must be a valid UUID",
		})
		return
	}

	var req MarkRecoveredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	if err := h.abandonment.MarkRecovered(c.Request.Context(), cartID, req.OrderID); err != nil {
		if errors.Is(err, services.ErrAbandonmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "no abandonment record for this cart",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "update_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"cart_id":  cartID,
			"order_id": req.OrderID,
		},
	})
}
