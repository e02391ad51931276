// internal/services/testutil_test.go
// 測試共用工具

package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"commerce-mailer/internal/database"
	"commerce-mailer/internal/models"
)

// 測試用 AES-256 金鑰 (64 hex chars)
const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// newTestDB 建立 in-memory SQLite 資料庫
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// in-memory 資料庫需限制單一連接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// newTestVault 建立測試用加密服務
func newTestVault(t *testing.T) *EncryptionService {
	t.Helper()
	vault, err := NewEncryptionService(testEncryptionKey)
	require.NoError(t, err)
	return vault
}

// stubProvider 可腳本化的發送服務替身
// sendErrs 依呼叫順序回傳，超出部分視為成功
type stubProvider struct {
	sendErrs []error
	calls    int
}

func (p *stubProvider) Send(email *models.OutboundEmail) (string, error) {
	var err error
	if p.calls < len(p.sendErrs) {
		err = p.sendErrs[p.calls]
	}
	p.calls++
	if err != nil {
		return "", err
	}
	return "accepted", nil
}

func (p *stubProvider) VerifyCredentials() error { return nil }
func (p *stubProvider) Name() string             { return "stub" }

// stubResolver 服務商解析替身
type stubResolver struct {
	provider MailProvider
	config   *models.EmailProviderConfig
	err      error
}

func (r *stubResolver) ResolveActive(storeID uuid.UUID) (MailProvider, *models.EmailProviderConfig, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.provider, r.config, nil
}

// newStubResolver 建立預設成功的解析替身
func newStubResolver(provider *stubProvider) *stubResolver {
	return &stubResolver{
		provider: provider,
		config: &models.EmailProviderConfig{
			ID:          uuid.New(),
			SenderEmail: "shop@example.com",
			SenderName:  "Test Shop",
		},
	}
}
