// internal/api/middlewares/auth.go
// JWT 認證中介軟體

package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/models"
)

// StoreIDKey gin context 中商店 ID 的鍵
const StoreIDKey = "store_id"

// JWTAuth JWT 認證中介軟體
// Token 的 store_id claim 決定請求能操作哪個商店的資料
func JWTAuth(cfg *config.Config, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 取得 Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing_token",
				"message": "Authorization header is required",
			})
			c.Abort()
			return
		}

		// 解析 Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid_token_format",
				"message": "Authorization header must be Bearer token",
			})
			c.Abort()
			return
		}

		tokenString := parts[1]

		// 解析 JWT Token
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			// 確認簽名方法
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid_token",
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		// 取得 Claims
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid_claims",
				"message": "Invalid token claims",
			})
			c.Abort()
			return
		}

		// 取得 store_id
		storeIDStr, ok := claims["store_id"].(string)
		if !ok || storeIDStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid_store",
				"message": "Token missing store_id",
			})
			c.Abort()
			return
		}

		storeID, err := uuid.Parse(storeIDStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid_store",
				"message": "Token store_id is not a valid UUID",
			})
			c.Abort()
			return
		}

		// 驗證 Token 是否有效 (未撤銷)
		var storeToken models.StoreToken
		if err := db.Where("store_id = ? AND is_active = ?", storeID, true).First(&storeToken).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "token_revoked",
				"message": "Token has been revoked or is inactive",
			})
			c.Abort()
			return
		}

		// 設定 context
		c.Set(StoreIDKey, storeID)
		c.Set("store_name", storeToken.StoreName)

		c.Next()
	}
}

// StoreID 從 gin context 取出認證後的商店 ID
func StoreID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(StoreIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
