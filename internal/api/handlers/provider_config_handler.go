// internal/api/handlers/provider_config_handler.go
// 服務商設定 API Handler

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"commerce-mailer/internal/api/middlewares"
	"commerce-mailer/internal/models"
	"commerce-mailer/internal/services"
)

// ProviderConfigHandler 服務商設定 Handler
type ProviderConfigHandler struct {
	configService *services.ProviderConfigService
}

// NewProviderConfigHandler 建立 ProviderConfig Handler
func NewProviderConfigHandler(configService *services.ProviderConfigService) *ProviderConfigHandler {
	return &ProviderConfigHandler{
		configService: configService,
	}
}

// Create 建立服務商設定
func (h *ProviderConfigHandler) Create(c *gin.Context) {
	var req models.CreateProviderConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	config, err := h.configService.Create(middlewares.StoreID(c), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "create_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    config,
	})
}

// List 列出商店的所有設定
func (h *ProviderConfigHandler) List(c *gin.Context) {
	configs, err := h.configService.ListByStore(middlewares.StoreID(c))
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
		"data":    configs,
	})
}

// Get 查詢單筆設定
func (h *ProviderConfigHandler) Get(c *gin.Context) {
	_, config, ok := h.loadOwned(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    config,
	})
}

// Update 更新設定
func (h *ProviderConfigHandler) Update(c *gin.Context) {
	id, _, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var req models.UpdateProviderConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	config, err := h.configService.Update(id, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "update_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    config,
	})
}

// Delete 刪除設定
func (h *ProviderConfigHandler) Delete(c *gin.Context) {
	id, _, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.configService.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "delete_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

// loadOwned 解析路徑 ID 並確認設定屬於認證商店
func (h *ProviderConfigHandler) loadOwned(c *gin.Context) (uuid.UUID, *models.EmailProviderConfig, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_id",
			"message": "config id must be a valid UUID",
		})
		return uuid.Nil, nil, false
	}

	config, err := h.configService.GetByID(id)
	if err != nil || config.StoreID != middlewares.StoreID(c) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": "provider config not found",
		})
		return uuid.Nil, nil, false
	}

	return id, config, true
}
