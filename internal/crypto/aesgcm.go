package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"access-key-service/internal/domain"
)

// MasterKeySize はローカルバックエンドのマスター鍵長（AES-256）。
const MasterKeySize = 32

// AESGCM はローカルのマスター鍵によるAES-256-GCMバックエンド。
// ブロブは nonce(12) || ciphertext || tag(16) の形式。
type AESGCM struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewAESGCM は32バイトの鍵からAESGCMを生成する。
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", domain.ErrInvalidCryptoConfig, MasterKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes cipher: %v", domain.ErrInvalidCryptoConfig, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm: %v", domain.ErrInvalidCryptoConfig, err)
	}
	return &AESGCM{aead: aead, random: rand.Reader}, nil
}

// NewAESGCMFromBase64 はbase64エンコードされたマスター鍵（APP_MASTER_KEY）からAESGCMを生成する。
func NewAESGCMFromBase64(encoded string) (*AESGCM, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: APP_MASTER_KEY is required for the %s backend", domain.ErrInvalidCryptoConfig, TagLocalAES)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: APP_MASTER_KEY is not valid base64", domain.ErrInvalidCryptoConfig)
	}
	defer clear(key)
	return NewAESGCM(key)
}

// Tag はバックエンドのタグを返す。
func (a *AESGCM) Tag() string {
	return TagLocalAES
}

// Encrypt は呼び出しごとに新しいランダムnonceで平文を暗号化する。
func (a *AESGCM) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := io.ReadFull(a.random, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", domain.ErrRandomSourceUnavailable, err)
	}
	return a.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt はEncryptが生成したブロブを復号する。
func (a *AESGCM) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	nonceSize := a.aead.NonceSize()
	if len(blob) < nonceSize+a.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is shorter than nonce and tag", domain.ErrMalformedCiphertext, len(blob))
	}
	plaintext, err := a.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, domain.ErrCiphertextAuthentication
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
