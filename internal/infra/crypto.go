package infra

import (
	"context"
	"fmt"
	"io"
	"slices"

	"access-key-service/config"
	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
)

// backendFactory はタグからバックエンドを生成する。テストで差し替える。
type backendFactory func(ctx context.Context, tag string, cfg config.CryptoConfig) (crypto.Provider, error)

// NewCryptoRegistry は設定から暗号バックエンドのRegistryを構築する。
// 有効なバックエンドと復号専用バックエンドはすべてここで生成・検証され、
// いずれかが失敗した場合は生成済みのバックエンドを閉じてエラーを返す。
func NewCryptoRegistry(ctx context.Context, cfg config.CryptoConfig, metrics *crypto.Metrics) (*crypto.Registry, error) {
	return newCryptoRegistry(ctx, cfg, metrics, newBackend)
}

func newCryptoRegistry(ctx context.Context, cfg config.CryptoConfig, metrics *crypto.Metrics, factory backendFactory) (*crypto.Registry, error) {
	tags := []string{cfg.Backend}
	for _, tag := range cfg.DecryptBackends {
		if !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}

	raw := make([]crypto.Provider, 0, len(tags))
	fail := func(err error) (*crypto.Registry, error) {
		closeProviders(raw)
		return nil, err
	}

	for _, tag := range tags {
		p, err := factory(ctx, tag, cfg)
		if err != nil {
			return fail(fmt.Errorf("initializing %s backend: %w", tag, err))
		}
		raw = append(raw, p)
	}

	built := make([]crypto.Provider, 0, len(raw))
	for _, p := range raw {
		built = append(built, crypto.Instrument(p, metrics))
	}

	active := built[0]
	decryptOnly := built[1:]
	if cfg.Envelope {
		// KEK自体も復号用に登録し、"envelope+<tag>" の解決とClose を担わせる。
		// 有効なエンベロープは計装前のKEKを包み、1回の操作を1件として記録する。
		decryptOnly = built
		active = crypto.Instrument(crypto.NewEnvelope(raw[0]), metrics)
	}

	registry, err := crypto.NewRegistry(active, decryptOnly...)
	if err != nil {
		return fail(err)
	}
	return registry, nil
}

func newBackend(ctx context.Context, tag string, cfg config.CryptoConfig) (crypto.Provider, error) {
	switch tag {
	case crypto.TagLocalAES:
		if cfg.MasterKey == "" {
			return nil, fmt.Errorf("%w: APP_MASTER_KEY is required for the %s backend", domain.ErrInvalidCryptoConfig, tag)
		}
		return crypto.NewAESGCMFromBase64(cfg.MasterKey)
	case crypto.TagGCPKMS:
		return NewKMSClient(ctx, cfg.KMSKeyName)
	case crypto.TagAWSKMS:
		return NewAWSKMSClient(ctx, cfg.AWSKMSKeyID, cfg.AWSRegion)
	case crypto.TagVaultTransit:
		return NewVaultTransitClient(VaultTransitConfig{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultTransitMount,
			KeyName: cfg.VaultTransitKey,
		})
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEncryptionBackend, tag)
	}
}

// closeProviders は初期化途中で失敗した場合に生成済みのバックエンドを閉じる。
func closeProviders(providers []crypto.Provider) {
	for _, p := range providers {
		if c, ok := p.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
