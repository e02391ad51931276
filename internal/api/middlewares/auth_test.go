// internal/api/middlewares/auth_test.go

package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"commerce-mailer/internal/config"
	"commerce-mailer/internal/models"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.StoreToken{}))

	cfg := &config.Config{JWTSecret: "test-secret"}

	router := gin.New()
	router.GET("/protected", JWTAuth(cfg, db), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"store_id": StoreID(c)})
	})
	return router, db, cfg
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTAuthAcceptsActiveStoreToken(t *testing.T) {
	router, db, cfg := newAuthTestRouter(t)
	storeID := uuid.New()

	require.NoError(t, db.Create(&models.StoreToken{
		ID:        uuid.New(),
		StoreID:   storeID,
		StoreName: "Test Shop",
		TokenHash: "hash",
		IsActive:  true,
	}).Error)

	signed := signToken(t, cfg.JWTSecret, jwt.MapClaims{
		"store_id": storeID.String(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), storeID.String())
}

func TestJWTAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	router, _, _ := newAuthTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthRejectsRevokedToken(t *testing.T) {
	router, db, cfg := newAuthTestRouter(t)
	storeID := uuid.New()

	now := time.Now()
	require.NoError(t, db.Create(&models.StoreToken{
		ID:        uuid.New(),
		StoreID:   storeID,
		StoreName: "Test Shop",
		TokenHash: "hash",
		IsActive:  false,
		RevokedAt: &now,
	}).Error)

	signed := signToken(t, cfg.JWTSecret, jwt.MapClaims{
		"store_id": storeID.String(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthRejectsWrongSecret(t *testing.T) {
	router, db, _ := newAuthTestRouter(t)
	storeID := uuid.New()

	require.NoError(t, db.Create(&models.StoreToken{
		ID:        uuid.New(),
		StoreID:   storeID,
		StoreName: "Test Shop",
		TokenHash: "hash",
		IsActive:  true,
	}).Error)

	signed := signToken(t, "other-secret", jwt.MapClaims{
		"store_id": storeID.String(),
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
