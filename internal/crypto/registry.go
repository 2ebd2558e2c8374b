package crypto

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"access-key-service/internal/domain"
)

// Registry は有効な暗号バックエンド1つと、復号に使えるバックエンドの集合を保持する。
// 生成後は読み取り専用であり、並行利用しても安全である。
type Registry struct {
	active    Provider
	providers map[string]Provider
}

// NewRegistry は有効なバックエンドと復号専用のバックエンドからRegistryを生成する。
func NewRegistry(active Provider, decryptOnly ...Provider) (*Registry, error) {
	if active == nil {
		return nil, fmt.Errorf("%w: no active crypto backend", domain.ErrInvalidCryptoConfig)
	}
	r := &Registry{
		active:    active,
		providers: make(map[string]Provider, len(decryptOnly)+1),
	}
	for _, p := range append([]Provider{active}, decryptOnly...) {
		if _, dup := r.providers[p.Tag()]; dup {
			return nil, fmt.Errorf("%w: backend %q registered twice", domain.ErrInvalidCryptoConfig, p.Tag())
		}
		r.providers[p.Tag()] = p
	}
	return r, nil
}

// Active は新規暗号化に使うバックエンドを返す。
func (r *Registry) Active() Provider {
	return r.active
}

// Lookup は暗号化メタデータのタグに対応するバックエンドを返す。
// "envelope+<tag>" はKEKとなる <tag> が登録されていれば解決される。
func (r *Registry) Lookup(tag string) (Provider, error) {
	if p, ok := r.providers[tag]; ok {
		return p, nil
	}
	if kekTag, ok := strings.CutPrefix(tag, EnvelopeTagPrefix); ok {
		if kek, ok := r.providers[kekTag]; ok {
			return NewEnvelope(kek), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEncryptionBackend, tag)
}

// Tags は登録済みのタグ一覧を返す。
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	return tags
}

// Close は io.Closer を実装するバックエンドをすべて閉じる。
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s backend: %w", p.Tag(), err))
			}
		}
	}
	return errors.Join(errs...)
}
