// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"access-key-service/internal/domain"
)

// AccessKeyModel はgorm用のモデル定義。
type AccessKeyModel struct {
	AccessKeyID        string    `gorm:"column:access_key_id;type:char(20);primaryKey"`
	OwnerID            string    `gorm:"type:varchar(128);not null;index:idx_access_keys_owner_created,priority:1"`
	SecretCiphertext   []byte    `gorm:"type:blob;not null"`
	EncryptionMetadata string    `gorm:"type:varchar(64);not null"`
	Description        string    `gorm:"type:varchar(1024);not null;default:''"`
	Status             string    `gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	CreatedAt          time.Time `gorm:"type:datetime(6);not null;index:idx_access_keys_owner_created,priority:2"`
	UpdatedAt          time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (AccessKeyModel) TableName() string {
	return "access_keys"
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *AccessKeyModel) toDomain() *domain.AccessKey {
	return &domain.AccessKey{
		AccessKeyID:        m.AccessKeyID,
		OwnerID:            m.OwnerID,
		SecretCiphertext:   m.SecretCiphertext,
		EncryptionMetadata: m.EncryptionMetadata,
		Description:        m.Description,
		Status:             domain.AccessKeyStatus(m.Status),
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

// AccessKeyRepository はアクセスキーの永続化を提供する。
// gormは TranslateError: true で開かれている必要がある（主キー重複の判定に使う）。
type AccessKeyRepository struct {
	db *gorm.DB
}

// NewAccessKeyRepository は新しいAccessKeyRepositoryを生成する。
func NewAccessKeyRepository(db *gorm.DB) *AccessKeyRepository {
	return &AccessKeyRepository{db: db}
}

// Create は新しいアクセスキーを保存する。既存レコードを上書きすることはない。
// 主キーが重複した場合は domain.ErrAccessKeyIDCollision を返す。
func (r *AccessKeyRepository) Create(ctx context.Context, key *domain.AccessKey) error {
	model := &AccessKeyModel{
		AccessKeyID:        key.AccessKeyID,
		OwnerID:            key.OwnerID,
		SecretCiphertext:   key.SecretCiphertext,
		EncryptionMetadata: key.EncryptionMetadata,
		Description:        key.Description,
		Status:             string(key.Status),
		CreatedAt:          key.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", domain.ErrAccessKeyIDCollision, key.AccessKeyID)
		}
		slog.ErrorContext(ctx, "failed to create access key",
			"operation", "create",
			"access_key_id", key.AccessKeyID,
			"owner_id", key.OwnerID,
			"error", err,
		)
		return err
	}
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDのアクセスキーを取得する。存在しない場合は nil, nil を返す。
func (r *AccessKeyRepository) FindByID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error) {
	var model AccessKeyModel
	err := r.db.WithContext(ctx).
		Where("access_key_id = ?", accessKeyID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find access key",
			"operation", "find_by_id",
			"access_key_id", accessKeyID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByOwnerID は指定された所有者のアクセスキーを作成日時・ID順で取得する。
func (r *AccessKeyRepository) FindAllByOwnerID(ctx context.Context, ownerID string) ([]*domain.AccessKey, error) {
	var models []AccessKeyModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Order("access_key_id ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find access keys by owner_id",
			"operation", "find_all_by_owner_id",
			"owner_id", ownerID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.AccessKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// Revoke は有効なアクセスキーを失効させる。
// ACTIVE の行だけを条件付きで更新し、状態を変更した場合に true を返す。
func (r *AccessKeyRepository) Revoke(ctx context.Context, accessKeyID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&AccessKeyModel{}).
		Where("access_key_id = ? AND status = ?", accessKeyID, string(domain.AccessKeyStatusActive)).
		Update("status", string(domain.AccessKeyStatusRevoked))
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to revoke access key",
			"operation", "revoke",
			"access_key_id", accessKeyID,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateCiphertext はシークレットの暗号文を再暗号化したものに置き換える。
// 暗号化メタデータが expectedTag のままの場合にだけ更新し、更新した場合に true を返す。
func (r *AccessKeyRepository) UpdateCiphertext(ctx context.Context, accessKeyID, expectedTag string, ciphertext []byte, newTag string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&AccessKeyModel{}).
		Where("access_key_id = ? AND encryption_metadata = ?", accessKeyID, expectedTag).
		Updates(map[string]interface{}{
			"secret_ciphertext":   ciphertext,
			"encryption_metadata": newTag,
		})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update secret ciphertext",
			"operation", "update_ciphertext",
			"access_key_id", accessKeyID,
			"encryption_metadata", newTag,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Ping はデータベースへの疎通を確認する。
func (r *AccessKeyRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
