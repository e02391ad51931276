// internal/services/encryption_service.go
// 憑證加密服務 - AES-256-GCM 對稱加密

package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// EncryptionService 憑證加密服務
// 將任意 JSON 可序列化的憑證包成單一不透明字串 (nonce + ciphertext + tag)；
// 解密時先驗證 tag，遭竄改或金鑰錯誤時回傳錯誤，絕不回傳損毀明文
type EncryptionService struct {
	aead cipher.AEAD
}

// NewEncryptionService 建立加密服務
// hexKey 必須為 64 字元 hex (32 bytes, AES-256)
func NewEncryptionService(hexKey string) (*EncryptionService, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes (64 hex characters)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EncryptionService{aead: aead}, nil
}

// Encrypt 加密明文，回傳 base64(nonce || ciphertext || tag)
func (s *EncryptionService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密並驗證 tag
func (s *EncryptionService) Decrypt(blob string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("invalid encrypted blob: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("encrypted blob too short")
	}

	plaintext, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// EncryptJSON 序列化後加密任意結構
func (s *EncryptionService) EncryptJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return s.Encrypt(string(data))
}

// DecryptJSON 解密後反序列化
func (s *EncryptionService) DecryptJSON(blob string, out interface{}) error {
	plaintext, err := s.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), out); err != nil {
		return fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	return nil
}
