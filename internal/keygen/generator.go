// Package keygen はアクセスキーIDとシークレットの生成を提供する。
package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"

	"access-key-service/internal/domain"
)

const (
	// AccessKeyIDPrefix はアクセスキーIDであることを示す固定プレフィックス。
	AccessKeyIDPrefix = "AK"
	// AccessKeyIDSuffixLength はプレフィックス以降のランダム部分の文字数（36^18 ≈ 2^93）。
	AccessKeyIDSuffixLength = 18
	// SecretSize はシークレットのエントロピー（バイト数）。
	SecretSize = 32

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// 252 = 36*7。これ以上のバイト値は棄却してモジュロバイアスを避ける。
	rejectionLimit = 256 - 256%len(alphabet)
)

var accessKeyIDRegex = regexp.MustCompile(`^AK[A-Z0-9]{18}$`)

// ValidAccessKeyID はアクセスキーIDの形式が正しいかを返す。
func ValidAccessKeyID(id string) bool {
	return accessKeyIDRegex.MatchString(id)
}

// Generator はアクセスキーIDとシークレットを生成する。
// 乱数源は crypto/rand.Reader であり、並行利用しても安全である。
type Generator struct {
	random io.Reader
}

// NewGenerator は crypto/rand を乱数源とするGeneratorを生成する。
func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// NewGeneratorWithReader は任意の乱数源を使うGeneratorを生成する。テスト用。
func NewGeneratorWithReader(r io.Reader) *Generator {
	return &Generator{random: r}
}

// GenerateAccessKeyID は "AK" + 英大文字・数字18文字のアクセスキーIDを生成する。
func (g *Generator) GenerateAccessKeyID() (string, error) {
	out := make([]byte, 0, len(AccessKeyIDPrefix)+AccessKeyIDSuffixLength)
	out = append(out, AccessKeyIDPrefix...)

	buf := make([]byte, AccessKeyIDSuffixLength*2)
	for len(out) < cap(out) {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrRandomSourceUnavailable, err)
		}
		for _, b := range buf {
			if int(b) >= rejectionLimit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateSecret は256ビットの乱数をパディングなしbase64url（43文字）で返す。
func (g *Generator) GenerateSecret() (string, error) {
	raw := make([]byte, SecretSize)
	if _, err := io.ReadFull(g.random, raw); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRandomSourceUnavailable, err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	clear(raw)
	return secret, nil
}
