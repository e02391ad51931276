// internal/api/handlers/message_handler.go
// 郵件佇列 API Handler

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce-mailer/internal/api/middlewares"
	"commerce-mailer/internal/models"
	"commerce-mailer/internal/services"
)

// MessageHandler 郵件佇列 Handler
type MessageHandler struct {
	db           *gorm.DB
	queueService *services.QueueService
	orderMail    *services.OrderMailService
	statusCache  *services.StatusCacheService
}

// NewMessageHandler 建立 Message Handler
func NewMessageHandler(db *gorm.DB, queueService *services.QueueService, orderMail *services.OrderMailService, statusCache *services.StatusCacheService) *MessageHandler {
	return &MessageHandler{
		db:           db,
		queueService: queueService,
		orderMail:    orderMail,
		statusCache:  statusCache,
	}
}

// EnqueueRequest 入列郵件請求
type EnqueueRequest struct {
	RecipientEmail string     `json:"recipient_email" binding:"required,email"`
	Subject        string     `json:"subject" binding:"required"`
	BodyHTML       string     `json:"body_html,omitempty"`
	BodyText       string     `json:"body_text,omitempty"`
	TemplateType   string     `json:"template_type,omitempty"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	CartID         *uuid.UUID `json:"cart_id,omitempty"`
	ScheduledFor   *time.Time `json:"scheduled_for,omitempty"`
}

// Enqueue 入列一封郵件
func (h *MessageHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	msg := &models.QueuedMessage{
		StoreID:        middlewares.StoreID(c),
		RecipientEmail: req.RecipientEmail,
		Subject:        req.Subject,
		BodyHTML:       req.BodyHTML,
		BodyText:       req.BodyText,
		TemplateType:   models.TemplateType(req.TemplateType),
		OrderID:        req.OrderID,
		CartID:         req.CartID,
	}
	if req.ScheduledFor != nil {
		msg.ScheduledFor = *req.ScheduledFor
	}

	id, err := h.queueService.Enqueue(c.Request.Context(), msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "enqueue_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"message_id":    id,
			"status":        models.MessageStatusPending,
			"scheduled_for": msg.ScheduledFor,
		},
	})
}

// GetStatus 查詢郵件狀態
// 優先讀快取，未命中時回到資料庫
func (h *MessageHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_id",
			"message": "message id must be a valid UUID",
		})
		return
	}

	if h.statusCache != nil {
		if cached, err := h.statusCache.GetStatus(c.Request.Context(), id.String()); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"data":    cached,
				"source":  "cache",
			})
			return
		}
	}

	var msg models.QueuedMessage
	err = h.db.WithContext(c.Request.Context()).
		First(&msg, "id = ? AND store_id = ?", id, middlewares.StoreID(c)).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": "message not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"message_id":    msg.ID,
			"status":        msg.Status,
			"attempts":      msg.Attempts,
			"error_message": msg.ErrorMessage,
			"sent_at":       msg.SentAt,
		},
		"source": "database",
	})
}

// Retry 手動重試失敗郵件
func (h *MessageHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_id",
			"message": "message id must be a valid UUID",
		})
		return
	}

	// 只允許操作自己商店的郵件
	var msg models.QueuedMessage
	err = h.db.WithContext(c.Request.Context()).
		First(&msg, "id = ? AND store_id = ?", id, middlewares.StoreID(c)).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": "message not found",
		})
		return
	}

	if err := h.queueService.Retry(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "message not found",
			})
			return
		}
		// 終態郵件不可重試
		if errors.Is(err, services.ErrMessageAlreadyHandled) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "not_retryable",
				"message": "message is already sent, cancelled, or in flight",
			})
			return
		}
		// 重試本身成功入列，發送失敗由佇列繼續接手
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"data": gin.H{
				"message_id": id,
				"note":       "retry queued, first attempt failed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"message_id": id,
			"status":     models.MessageStatusSent,
		},
	})
}

// CancelRequest 批次取消請求
type CancelRequest struct {
	CartID  *uuid.UUID `json:"cart_id,omitempty"`
	OrderID *uuid.UUID `json:"order_id,omitempty"`
}

// Cancel 批次取消 pending 郵件
func (h *MessageHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	cancelled, err := h.queueService.CancelPending(c.Request.Context(), middlewares.StoreID(c), req.CartID, req.OrderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "cancel_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"cancelled": cancelled,
		},
	})
}

// GetHistory 查詢郵件歷史
func (h *MessageHandler) GetHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := services.HistoryFilter{
		Status:       models.MessageStatus(c.Query("status")),
		TemplateType: models.TemplateType(c.Query("template_type")),
		Page:         page,
		Limit:        limit,
	}

	messages, total, err := h.queueService.History(c.Request.Context(), middlewares.StoreID(c), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    messages,
		"pagination": gin.H{
			"page":  filter.Page,
			"limit": filter.Limit,
			"total": total,
		},
	})
}

// SendOrderConfirmation 為訂單入列確認信
func (h *MessageHandler) SendOrderConfirmation(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_id",
			"message": "order id must be a valid UUID",
		})
		return
	}

	id, err := h.orderMail.SendOrderConfirmation(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "order_not_found",
				"message": "order not found",
			})
		case errors.Is(err, services.ErrTemplateNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   "template_not_found",
				"message": "store has no ORDER_CONFIRMATION template",
			})
		case errors.Is(err, services.ErrConfirmationAlreadyQueued):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "already_queued",
				"message": "confirmation email already queued for this order",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "enqueue_failed",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"message_id": id,
		},
	})
}
