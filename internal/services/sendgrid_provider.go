// internal/services/sendgrid_provider.go
// SendGrid 郵件發送服務

package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"commerce-mailer/internal/models"
)

// SendGridProvider SendGrid 郵件發送服務
// 實作 MailProvider interface
type SendGridProvider struct {
	creds  *models.SendGridCredentials
	client *sendgrid.Client
}

// NewSendGridProvider 建立 SendGrid 服務
func NewSendGridProvider(creds *models.SendGridCredentials) *SendGridProvider {
	return &SendGridProvider{
		creds:  creds,
		client: sendgrid.NewSendClient(creds.APIKey),
	}
}

// Name 回傳服務名稱
func (p *SendGridProvider) Name() string {
	return "SendGrid"
}

// Send 發送郵件 (使用 SendGrid API)
func (p *SendGridProvider) Send(email *models.OutboundEmail) (string, error) {
	from := mail.NewEmail(email.FromName, email.FromEmail)

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = email.Subject

	if email.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", email.ReplyTo))
	}

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", email.To))
	message.AddPersonalizations(personalization)

	// SendGrid 要求順序: text/plain 必須在 text/html 之前
	if email.Text != "" {
		message.AddContent(mail.NewContent("text/plain", email.Text))
	}
	if email.HTML != "" {
		message.AddContent(mail.NewContent("text/html", email.HTML))
	}

	response, err := p.client.Send(message)
	if err != nil {
		return "", fmt.Errorf("failed to send email via SendGrid: %w", err)
	}

	// 檢查回應狀態 (2xx 表示成功)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("SendGrid API error (status %d): %s", response.StatusCode, response.Body)
	}

	return fmt.Sprintf("status %d", response.StatusCode), nil
}

// VerifyCredentials 驗證 SendGrid 憑證格式
// SendGrid 沒有輕量的驗證端點，僅檢查金鑰存在與格式
func (p *SendGridProvider) VerifyCredentials() error {
	if p.creds.APIKey == "" {
		return errors.New("sendgrid api key is empty")
	}
	if !strings.HasPrefix(p.creds.APIKey, "SG.") {
		return errors.New("sendgrid api key has unexpected format")
	}
	return nil
}
