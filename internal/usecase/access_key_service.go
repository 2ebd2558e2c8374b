// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
)

// AccessKeyRepository はアクセスキーのデータアクセスのインターフェース。
type AccessKeyRepository interface {
	Create(ctx context.Context, key *domain.AccessKey) error
	FindByID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error)
	FindAllByOwnerID(ctx context.Context, ownerID string) ([]*domain.AccessKey, error)
	Revoke(ctx context.Context, accessKeyID string) (bool, error)
	UpdateCiphertext(ctx context.Context, accessKeyID, expectedTag string, ciphertext []byte, newTag string) (bool, error)
}

// CryptoRegistry は暗号バックエンドの選択のインターフェース。
type CryptoRegistry interface {
	Active() crypto.Provider
	Lookup(tag string) (crypto.Provider, error)
}

// SecretGenerator はアクセスキーIDとシークレットの生成のインターフェース。
type SecretGenerator interface {
	GenerateAccessKeyID() (string, error)
	GenerateSecret() (string, error)
}

// AccessKeyService はアクセスキーのライフサイクルに関するビジネスロジックを提供する。
type AccessKeyService struct {
	repo      AccessKeyRepository
	registry  CryptoRegistry
	generator SecretGenerator
	now       func() time.Time
}

// NewAccessKeyService は新しいAccessKeyServiceを生成する。
func NewAccessKeyService(repo AccessKeyRepository, registry CryptoRegistry, generator SecretGenerator) *AccessKeyService {
	return &AccessKeyService{
		repo:      repo,
		registry:  registry,
		generator: generator,
		now:       time.Now,
	}
}

// CreateAccessKey は新しいアクセスキーを発行する。
// 平文シークレットを返すのはこの操作だけであり、保存が確定した後にのみ返す。
// 失敗した場合はレコードを残さない。ID衝突は domain.ErrAccessKeyIDCollision を返し、再試行は呼び出し側に任せる。
func (s *AccessKeyService) CreateAccessKey(ctx context.Context, ownerID, description string) (*domain.CreatedAccessKey, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if err := domain.ValidateDescription(description); err != nil {
		return nil, err
	}

	accessKeyID, err := s.generator.GenerateAccessKeyID()
	if err != nil {
		return nil, fmt.Errorf("generating access key id: %w", err)
	}
	secret, err := s.generator.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	provider := s.registry.Active()
	ciphertext, err := provider.Encrypt(ctx, []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("encrypting secret: %w", err)
	}

	// 暗号化中にキャンセルされた場合は保存せずに終了する
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("creating access key: %w", err)
	}

	key := &domain.AccessKey{
		AccessKeyID:        accessKeyID,
		OwnerID:            ownerID,
		SecretCiphertext:   ciphertext,
		EncryptionMetadata: provider.Tag(),
		Description:        description,
		Status:             domain.AccessKeyStatusActive,
		// datetime(6) の精度に揃える
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("creating access key: %w", err)
	}

	return &domain.CreatedAccessKey{
		AccessKeyID: accessKeyID,
		Secret:      secret,
	}, nil
}

// GetAccessKey は指定されたアクセスキーのメタデータを取得する。復号は行わない。
func (s *AccessKeyService) GetAccessKey(ctx context.Context, accessKeyID string) (*domain.AccessKeyMetadata, error) {
	key, err := s.repo.FindByID(ctx, accessKeyID)
	if err != nil {
		return nil, fmt.Errorf("finding access key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrAccessKeyNotFound
	}
	return key.Metadata(), nil
}

// ListAccessKeys は指定された所有者のアクセスキーのメタデータを取得する。復号は行わない。
func (s *AccessKeyService) ListAccessKeys(ctx context.Context, ownerID string) ([]*domain.AccessKeyMetadata, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}

	keys, err := s.repo.FindAllByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing access keys: %w", err)
	}

	result := make([]*domain.AccessKeyMetadata, len(keys))
	for i, k := range keys {
		result[i] = k.Metadata()
	}
	return result, nil
}

// RevokeAccessKey はアクセスキーを失効させる。
// 存在しない・失効済みのアクセスキーに対してはエラーを返さない。
func (s *AccessKeyService) RevokeAccessKey(ctx context.Context, accessKeyID string) error {
	if _, err := s.repo.Revoke(ctx, accessKeyID); err != nil {
		return fmt.Errorf("revoking access key: %w", err)
	}
	return nil
}

// DecryptSecret は暗号化メタデータに対応するバックエンドでシークレットを復号する。
// 内部の信頼できる処理専用であり、HTTPからは呼ばれない。
func (s *AccessKeyService) DecryptSecret(ctx context.Context, key *domain.AccessKey) ([]byte, error) {
	provider, err := s.registry.Lookup(key.EncryptionMetadata)
	if err != nil {
		return nil, err
	}
	plaintext, err := provider.Decrypt(ctx, key.SecretCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret of %s: %w", key.AccessKeyID, err)
	}
	return plaintext, nil
}

// VerifySecret は提示されたシークレットが保存されているものと一致するかを検証する。
// 比較は定数時間で行う。
func (s *AccessKeyService) VerifySecret(ctx context.Context, accessKeyID, presented string) error {
	key, err := s.repo.FindByID(ctx, accessKeyID)
	if err != nil {
		return fmt.Errorf("finding access key: %w", err)
	}
	if key == nil {
		return domain.ErrAccessKeyNotFound
	}
	if key.IsRevoked() {
		return domain.ErrAccessKeyRevoked
	}

	plaintext, err := s.DecryptSecret(ctx, key)
	if err != nil {
		return err
	}
	defer clear(plaintext)

	if subtle.ConstantTimeCompare(plaintext, []byte(presented)) != 1 {
		return domain.ErrSecretMismatch
	}
	return nil
}

// RewrapSecret はシークレットを現在有効なバックエンドで暗号化し直す。
// 既に有効なバックエンドで暗号化されている場合や、並行して更新された場合は false を返す。
func (s *AccessKeyService) RewrapSecret(ctx context.Context, accessKeyID string) (bool, error) {
	key, err := s.repo.FindByID(ctx, accessKeyID)
	if err != nil {
		return false, fmt.Errorf("finding access key: %w", err)
	}
	if key == nil {
		return false, domain.ErrAccessKeyNotFound
	}
	return s.rewrap(ctx, key)
}

// RewrapOwnerSecrets は所有者のすべてのアクセスキーを再暗号化し、更新した件数を返す。
func (s *AccessKeyService) RewrapOwnerSecrets(ctx context.Context, ownerID string) (int, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return 0, err
	}
	keys, err := s.repo.FindAllByOwnerID(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("listing access keys: %w", err)
	}

	rewrapped := 0
	for _, key := range keys {
		changed, err := s.rewrap(ctx, key)
		if err != nil {
			return rewrapped, err
		}
		if changed {
			rewrapped++
		}
	}
	return rewrapped, nil
}

func (s *AccessKeyService) rewrap(ctx context.Context, key *domain.AccessKey) (bool, error) {
	active := s.registry.Active()
	if key.EncryptionMetadata == active.Tag() {
		return false, nil
	}

	plaintext, err := s.DecryptSecret(ctx, key)
	if err != nil {
		return false, err
	}
	defer clear(plaintext)

	ciphertext, err := active.Encrypt(ctx, plaintext)
	if err != nil {
		return false, fmt.Errorf("encrypting secret: %w", err)
	}

	changed, err := s.repo.UpdateCiphertext(ctx, key.AccessKeyID, key.EncryptionMetadata, ciphertext, active.Tag())
	if err != nil {
		return false, fmt.Errorf("updating secret ciphertext: %w", err)
	}
	return changed, nil
}
