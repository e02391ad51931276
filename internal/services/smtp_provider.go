// internal/services/smtp_provider.go
// SMTP 直接提交郵件發送服務

package services

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"commerce-mailer/internal/models"
)

// SMTPProvider SMTP 郵件發送服務
// 實作 MailProvider interface
type SMTPProvider struct {
	creds *models.SMTPCredentials
}

// NewSMTPProvider 建立 SMTP 服務
func NewSMTPProvider(creds *models.SMTPCredentials) *SMTPProvider {
	return &SMTPProvider{creds: creds}
}

// Name 回傳服務名稱
func (p *SMTPProvider) Name() string {
	return "SMTP"
}

// Send 發送郵件 (SMTP 提交)
func (p *SMTPProvider) Send(email *models.OutboundEmail) (string, error) {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", email.FromEmail, email.FromName)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	if email.ReplyTo != "" {
		m.SetHeader("Reply-To", email.ReplyTo)
	}

	// SMTP 內容優先使用純文字作為替代部分
	if email.Text != "" {
		m.SetBody("text/plain", email.Text)
		if email.HTML != "" {
			m.AddAlternative("text/html", email.HTML)
		}
	} else {
		m.SetBody("text/html", email.HTML)
	}

	d := gomail.NewDialer(p.creds.Host, p.creds.Port, p.creds.Username, p.creds.Password)

	if err := d.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}

	return fmt.Sprintf("accepted by %s:%d", p.creds.Host, p.creds.Port), nil
}

// VerifyCredentials 驗證 SMTP 憑證 (實際連線並認證)
func (p *SMTPProvider) VerifyCredentials() error {
	d := gomail.NewDialer(p.creds.Host, p.creds.Port, p.creds.Username, p.creds.Password)

	closer, err := d.Dial()
	if err != nil {
		return fmt.Errorf("smtp credential verification failed: %w", err)
	}
	return closer.Close()
}
