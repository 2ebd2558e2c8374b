// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// AccessKeyStatus はアクセスキーのライフサイクル状態を表す。
type AccessKeyStatus string

const (
	// AccessKeyStatusActive は有効なアクセスキーを表す。
	AccessKeyStatusActive AccessKeyStatus = "ACTIVE"
	// AccessKeyStatusRevoked は失効済みのアクセスキーを表す。終端状態であり ACTIVE には戻らない。
	AccessKeyStatusRevoked AccessKeyStatus = "REVOKED"
)

// AccessKey はアクセスキーエンティティを表す。
// SecretCiphertext は EncryptionMetadata が示すバックエンドでのみ復号できる。
type AccessKey struct {
	AccessKeyID        string
	OwnerID            string
	SecretCiphertext   []byte
	EncryptionMetadata string
	Description        string
	Status             AccessKeyStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsRevoked はアクセスキーが失効済みかを返す。
func (k *AccessKey) IsRevoked() bool {
	return k.Status == AccessKeyStatusRevoked
}

// Metadata は暗号文を含まないメタデータを返す。
func (k *AccessKey) Metadata() *AccessKeyMetadata {
	return &AccessKeyMetadata{
		AccessKeyID: k.AccessKeyID,
		OwnerID:     k.OwnerID,
		Description: k.Description,
		Status:      k.Status,
		CreatedAt:   k.CreatedAt,
	}
}

// AccessKeyMetadata はアクセスキーのメタデータを表す（暗号文・平文シークレットを含まない）。
type AccessKeyMetadata struct {
	AccessKeyID string
	OwnerID     string
	Description string
	Status      AccessKeyStatus
	CreatedAt   time.Time
}

// CreatedAccessKey は作成直後にのみ返されるアクセスキーIDと平文シークレットの組。
type CreatedAccessKey struct {
	AccessKeyID string
	Secret      string
}

const (
	// MaxOwnerIDLength は所有者IDの最大長（バイト数）。
	MaxOwnerIDLength = 128
	// MaxDescriptionLength は説明の最大長（文字数）。
	MaxDescriptionLength = 1024
)

// ValidateOwnerID は所有者IDを検証する。
// ARNやメールアドレスなど任意の主体IDを受け付け、空白のみ・制御文字・不正なUTF-8を拒否する。
func ValidateOwnerID(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidOwnerID)
	}
	if len(ownerID) > MaxOwnerIDLength {
		return fmt.Errorf("%w: owner_id must be at most %d bytes", ErrInvalidOwnerID, MaxOwnerIDLength)
	}
	if !utf8.ValidString(ownerID) {
		return fmt.Errorf("%w: owner_id must be valid UTF-8", ErrInvalidOwnerID)
	}
	if strings.IndexFunc(ownerID, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: owner_id must not contain control characters", ErrInvalidOwnerID)
	}
	return nil
}

// ValidateDescription は説明の長さを検証する。
func ValidateDescription(description string) error {
	if !utf8.ValidString(description) {
		return fmt.Errorf("%w: description must be valid UTF-8", ErrInvalidDescription)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidDescription, MaxDescriptionLength)
	}
	return nil
}
