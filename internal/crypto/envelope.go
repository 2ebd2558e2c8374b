package crypto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"access-key-service/internal/domain"
)

const (
	envelopeVersion byte = 0x01
	dataKeySize          = chacha20poly1305.KeySize
	envelopeHeaderSize   = 1 + 2
)

// Envelope はKEKバックエンドでラップしたデータ鍵によるエンベロープ暗号化を行う。
//
// ブロブ形式: version(1) || wrappedLen(2, BE) || wrappedKey || nonce(24) || ciphertext+tag
// version・wrappedLen・wrappedKey はAADとして認証される。
type Envelope struct {
	kek    Provider
	random io.Reader
}

// NewEnvelope はKEKバックエンドを使うEnvelopeを生成する。
func NewEnvelope(kek Provider) *Envelope {
	return &Envelope{kek: kek, random: rand.Reader}
}

// Tag は "envelope+<KEKのタグ>" を返す。
func (e *Envelope) Tag() string {
	return EnvelopeTagPrefix + e.kek.Tag()
}

// Encrypt はデータ鍵を生成して平文をローカルで暗号化し、データ鍵をKEKでラップする。
func (e *Envelope) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	dataKey := make([]byte, dataKeySize)
	defer clear(dataKey)
	if _, err := io.ReadFull(e.random, dataKey); err != nil {
		return nil, fmt.Errorf("%w: generate data key: %v", domain.ErrRandomSourceUnavailable, err)
	}

	wrapped, err := e.kek.Encrypt(ctx, dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping data key: %w", err)
	}
	if len(wrapped) > 0xFFFF {
		return nil, fmt.Errorf("%w: wrapped data key is %d bytes", domain.ErrMalformedCiphertext, len(wrapped))
	}

	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}

	aad := make([]byte, envelopeHeaderSize, envelopeHeaderSize+len(wrapped))
	aad[0] = envelopeVersion
	binary.BigEndian.PutUint16(aad[1:], uint16(len(wrapped)))
	aad = append(aad, wrapped...)

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(e.random, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", domain.ErrRandomSourceUnavailable, err)
	}

	out := make([]byte, 0, len(aad)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, aad...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Decrypt はデータ鍵をKEKでアンラップしてからペイロードを復号する。
func (e *Envelope) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	if len(blob) < envelopeHeaderSize {
		return nil, fmt.Errorf("%w: envelope header truncated", domain.ErrMalformedCiphertext)
	}
	if blob[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", domain.ErrMalformedCiphertext, blob[0])
	}
	wrappedLen := int(binary.BigEndian.Uint16(blob[1:envelopeHeaderSize]))
	payloadStart := envelopeHeaderSize + wrappedLen
	if len(blob) < payloadStart+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: envelope payload truncated", domain.ErrMalformedCiphertext)
	}

	dataKey, err := e.kek.Decrypt(ctx, blob[envelopeHeaderSize:payloadStart])
	if err != nil {
		return nil, fmt.Errorf("unwrapping data key: %w", err)
	}
	defer clear(dataKey)

	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapped data key has invalid size", domain.ErrCiphertextAuthentication)
	}

	nonce := blob[payloadStart : payloadStart+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, blob[payloadStart+aead.NonceSize():], blob[:payloadStart])
	if err != nil {
		return nil, domain.ErrCiphertextAuthentication
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
