package domain

import "errors"

var (
	// ErrAccessKeyNotFound は指定されたアクセスキーが存在しない場合のエラー。
	ErrAccessKeyNotFound = errors.New("access key not found")

	// ErrAccessKeyIDCollision は生成したアクセスキーIDが既存レコードと衝突した場合のエラー。
	// 呼び出し側は再試行してよい（再試行時は新しいIDが生成される）。
	ErrAccessKeyIDCollision = errors.New("access key id collision")

	// ErrAccessKeyRevoked は失効済みのアクセスキーに対する操作のエラー。
	ErrAccessKeyRevoked = errors.New("access key is revoked")

	// ErrSecretMismatch は提示されたシークレットが一致しない場合のエラー。
	ErrSecretMismatch = errors.New("secret does not match")

	// ErrInvalidOwnerID はオーナーIDの形式が不正な場合のエラー。
	ErrInvalidOwnerID = errors.New("invalid owner ID")

	// ErrInvalidDescription は説明文が長すぎる場合のエラー。
	ErrInvalidDescription = errors.New("invalid description")

	// ErrRandomSourceUnavailable は暗号論的乱数源が利用できない場合のエラー。
	ErrRandomSourceUnavailable = errors.New("secure random source unavailable")

	// ErrInvalidCryptoConfig は暗号バックエンドの設定（鍵素材・鍵ID）が欠落または不正な場合のエラー。
	ErrInvalidCryptoConfig = errors.New("invalid crypto backend configuration")

	// ErrCryptoUnavailable は暗号バックエンドに到達できない場合のエラー。一時的な障害として再試行可能。
	ErrCryptoUnavailable = errors.New("crypto backend unavailable")

	// ErrCryptoRejected は暗号バックエンドが要求を恒久的に拒否した場合のエラー（鍵の無効化・権限不足・入力不正など）。再試行しない。
	ErrCryptoRejected = errors.New("crypto backend rejected the request")

	// ErrMalformedCiphertext は暗号文が短すぎる・形式が不正な場合のエラー。
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrCiphertextAuthentication は認証タグの検証に失敗した場合のエラー。改ざんまたは破損を示すため再試行しない。
	ErrCiphertextAuthentication = errors.New("ciphertext authentication failed")

	// ErrUnknownEncryptionBackend は暗号化メタデータに対応するバックエンドが設定されていない場合のエラー。
	ErrUnknownEncryptionBackend = errors.New("unknown encryption backend")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
