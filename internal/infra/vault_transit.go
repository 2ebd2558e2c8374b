package infra

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
)

// VaultTransitConfig はVault Transitバックエンドの設定。
type VaultTransitConfig struct {
	Address string
	Token   string
	Mount   string
	KeyName string
}

// transitWriter は *vault.Logical のうち利用するメソッド。
type transitWriter interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
}

// VaultTransitClient はVault Transitシークレットエンジンによる暗号バックエンド。
type VaultTransitClient struct {
	logical transitWriter
	mount   string
	keyName string
}

// NewVaultTransitClient はVault Transitのクライアントを生成する。
// Address・Token が空の場合はVault SDKの環境変数（VAULT_ADDR・VAULT_TOKEN）に従う。
func NewVaultTransitClient(cfg VaultTransitConfig) (*VaultTransitClient, error) {
	if cfg.KeyName == "" {
		return nil, fmt.Errorf("%w: VAULT_TRANSIT_KEY is required for the %s backend", domain.ErrInvalidCryptoConfig, crypto.TagVaultTransit)
	}

	vcfg := vault.DefaultConfig()
	if vcfg.Error != nil {
		return nil, fmt.Errorf("%w: vault config: %v", domain.ErrInvalidCryptoConfig, vcfg.Error)
	}
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating vault client: %v", domain.ErrInvalidCryptoConfig, err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if client.Token() == "" {
		return nil, fmt.Errorf("%w: VAULT_TOKEN is required for the %s backend", domain.ErrInvalidCryptoConfig, crypto.TagVaultTransit)
	}

	return newVaultTransitClient(client.Logical(), cfg.Mount, cfg.KeyName), nil
}

func newVaultTransitClient(logical transitWriter, mount, keyName string) *VaultTransitClient {
	mount = strings.Trim(mount, "/")
	if mount == "" {
		mount = "transit"
	}
	return &VaultTransitClient{logical: logical, mount: mount, keyName: keyName}
}

// Tag はバックエンドのタグを返す。
func (c *VaultTransitClient) Tag() string {
	return crypto.TagVaultTransit
}

// Encrypt は平文をVault Transitで暗号化する。暗号文は "vault:v<N>:..." 形式の文字列。
func (c *VaultTransitClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	payload := frameDirectPayload(plaintext)
	defer clear(payload)
	secret, err := c.logical.WriteWithContext(ctx, c.mount+"/encrypt/"+c.keyName, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		if status := transitStatus(err); status == http.StatusBadRequest || status == http.StatusForbidden {
			return nil, fmt.Errorf("%w: encrypting: %v", domain.ErrCryptoRejected, err)
		}
		return nil, fmt.Errorf("%w: encrypting: %v", domain.ErrCryptoUnavailable, err)
	}
	ciphertext, ok := stringField(secret, "ciphertext")
	if !ok || !strings.HasPrefix(ciphertext, "vault:") {
		return nil, fmt.Errorf("%w: transit returned no ciphertext", domain.ErrCryptoUnavailable)
	}
	return []byte(ciphertext), nil
}

// Decrypt は暗号文をVault Transitで復号する。
func (c *VaultTransitClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if !strings.HasPrefix(string(ciphertext), "vault:v") {
		return nil, fmt.Errorf("%w: not a transit ciphertext", domain.ErrMalformedCiphertext)
	}
	secret, err := c.logical.WriteWithContext(ctx, c.mount+"/decrypt/"+c.keyName, map[string]interface{}{
		"ciphertext": string(ciphertext),
	})
	if err != nil {
		switch transitStatus(err) {
		case http.StatusBadRequest:
			return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrCiphertextAuthentication, err)
		case http.StatusForbidden:
			return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrCryptoRejected, err)
		}
		return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrCryptoUnavailable, err)
	}
	encoded, ok := stringField(secret, "plaintext")
	if !ok {
		return nil, fmt.Errorf("%w: transit returned no plaintext", domain.ErrCryptoUnavailable)
	}
	framed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: transit plaintext is not base64", domain.ErrCryptoUnavailable)
	}
	return unframeDirectPayload(framed)
}

func stringField(secret *vault.Secret, key string) (string, bool) {
	if secret == nil || secret.Data == nil {
		return "", false
	}
	v, ok := secret.Data[key].(string)
	return v, ok
}

// transitStatus はVaultの応答エラーのHTTPステータスを返す。応答がない場合は0。
// 400は入力（暗号文を含む）の拒否、403はトークンの権限不足を示す。
func transitStatus(err error) int {
	var apiErr *vault.ResponseError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
