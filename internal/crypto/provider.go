// Package crypto はシークレットを保存時に保護する暗号バックエンドの抽象と実装を提供する。
package crypto

import "context"

// バックエンドを識別するタグ。アクセスキーの暗号化メタデータとして永続化される。
const (
	TagLocalAES     = "local-aes"
	TagGCPKMS       = "gcp-kms"
	TagAWSKMS       = "aws-kms"
	TagVaultTransit = "vault-transit"

	// EnvelopeTagPrefix はエンベロープ暗号化されたブロブのタグ接頭辞（"envelope+<KEKのタグ>"）。
	EnvelopeTagPrefix = "envelope+"
)

// Provider は任意の平文を暗号化・復号する暗号バックエンド。
//
// Decrypt は不正・切り詰め・認証失敗のブロブに対して必ずエラーを返し、
// 空の平文を返して成功扱いにしてはならない。
type Provider interface {
	Tag() string
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, blob []byte) ([]byte, error)
}

// KnownBackend はタグが組み込みのバックエンドを指すかを返す。
func KnownBackend(tag string) bool {
	switch tag {
	case TagLocalAES, TagGCPKMS, TagAWSKMS, TagVaultTransit:
		return true
	}
	return false
}
