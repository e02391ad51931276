// internal/services/provider_config_service_test.go

package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-mailer/internal/models"
)

func smtpCreateRequest() *models.CreateProviderConfigRequest {
	return &models.CreateProviderConfigRequest{
		ProviderKind: models.ProviderKindSMTP,
		SenderEmail:  "shop@example.com",
		SenderName:   "Test Shop",
		Credentials: models.ProviderCredentials{
			SMTP: &models.SMTPCredentials{
				Host:     "smtp.example.com",
				Port:     587,
				Username: "mailer",
				Password: "secret",
			},
		},
	}
}

func TestCreateProviderConfigEncryptsCredentials(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t)
	svc := NewProviderConfigService(db, vault)
	storeID := uuid.New()

	created, err := svc.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)
	assert.True(t, created.IsActive)

	// 憑證只以密文落地
	var stored models.EmailProviderConfig
	require.NoError(t, db.First(&stored, "id = ?", created.ID).Error)
	assert.NotContains(t, stored.CredentialsEncrypted, "secret")
	assert.NotContains(t, stored.CredentialsEncrypted, "smtp.example.com")

	var creds models.ProviderCredentials
	require.NoError(t, vault.DecryptJSON(stored.CredentialsEncrypted, &creds))
	assert.Equal(t, "secret", creds.SMTP.Password)
}

func TestCreateProviderConfigDeactivatesSiblings(t *testing.T) {
	db := newTestDB(t)
	svc := NewProviderConfigService(db, newTestVault(t))
	storeID := uuid.New()

	first, err := svc.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)

	second, err := svc.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)
	assert.True(t, second.IsActive)

	var stored models.EmailProviderConfig
	require.NoError(t, db.First(&stored, "id = ?", first.ID).Error)
	assert.False(t, stored.IsActive)
}

func TestCreateProviderConfigValidatesCredentials(t *testing.T) {
	db := newTestDB(t)
	svc := NewProviderConfigService(db, newTestVault(t))

	req := smtpCreateRequest()
	req.Credentials.SMTP = nil
	_, err := svc.Create(uuid.New(), req)
	assert.Error(t, err)

	req = &models.CreateProviderConfigRequest{
		ProviderKind: models.ProviderKindSendGrid,
		SenderEmail:  "shop@example.com",
		Credentials:  models.ProviderCredentials{SendGrid: &models.SendGridCredentials{}},
	}
	_, err = svc.Create(uuid.New(), req)
	assert.Error(t, err)
}

func TestUpdateProviderConfigReencryptsCredentials(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t)
	svc := NewProviderConfigService(db, vault)
	storeID := uuid.New()

	created, err := svc.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)

	newCreds := &models.ProviderCredentials{
		SMTP: &models.SMTPCredentials{Host: "smtp2.example.com", Port: 465, Username: "mailer", Password: "rotated"},
	}
	updated, err := svc.Update(created.ID, &models.UpdateProviderConfigRequest{
		Credentials: newCreds,
	})
	require.NoError(t, err)

	var creds models.ProviderCredentials
	require.NoError(t, vault.DecryptJSON(updated.CredentialsEncrypted, &creds))
	assert.Equal(t, "rotated", creds.SMTP.Password)
	assert.Equal(t, "smtp2.example.com", creds.SMTP.Host)
}

func TestUpdateProviderConfigReactivationDeactivatesSiblings(t *testing.T) {
	db := newTestDB(t)
	svc := NewProviderConfigService(db, newTestVault(t))
	storeID := uuid.New()

	first, err := svc.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)
	second, err := svc.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)

	// 重新啟用舊設定: 同種類只剩一筆 active
	active := true
	updated, err := svc.Update(first.ID, &models.UpdateProviderConfigRequest{IsActive: &active})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)

	var stored models.EmailProviderConfig
	require.NoError(t, db.First(&stored, "id = ?", second.ID).Error)
	assert.False(t, stored.IsActive)

	var activeCount int64
	require.NoError(t, db.Model(&models.EmailProviderConfig{}).
		Where("store_id = ? AND provider_kind = ? AND is_active = ?", storeID, models.ProviderKindSMTP, true).
		Count(&activeCount).Error)
	assert.EqualValues(t, 1, activeCount)
}

func TestDeleteProviderConfigNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewProviderConfigService(db, newTestVault(t))

	err := svc.Delete(uuid.New())
	assert.Error(t, err)
}

func TestResolveActivePrefersDefault(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault(t)
	configs := NewProviderConfigService(db, vault)
	resolver := NewProviderService(db, vault)
	storeID := uuid.New()

	_, err := configs.Create(storeID, smtpCreateRequest())
	require.NoError(t, err)

	sendgridReq := &models.CreateProviderConfigRequest{
		ProviderKind: models.ProviderKindSendGrid,
		SenderEmail:  "shop@example.com",
		IsDefault:    true,
		Credentials:  models.ProviderCredentials{SendGrid: &models.SendGridCredentials{APIKey: "SG.test-key"}},
	}
	_, err = configs.Create(storeID, sendgridReq)
	require.NoError(t, err)

	provider, config, err := resolver.ResolveActive(storeID)
	require.NoError(t, err)
	assert.Equal(t, "SendGrid", provider.Name())
	assert.Equal(t, models.ProviderKindSendGrid, config.ProviderKind)
}

func TestResolveActiveNoProvider(t *testing.T) {
	db := newTestDB(t)
	resolver := NewProviderService(db, newTestVault(t))

	_, _, err := resolver.ResolveActive(uuid.New())
	assert.ErrorIs(t, err, ErrNoActiveProvider)
}
