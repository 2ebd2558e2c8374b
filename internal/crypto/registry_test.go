package crypto

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"access-key-service/internal/domain"
)

type closingProvider struct {
	Provider
	closed bool
}

func (c *closingProvider) Close() error {
	c.closed = true
	return nil
}

func TestRegistry_ActiveAndLookup(t *testing.T) {
	local := newTestAESGCM(t)
	r, err := NewRegistry(local)
	require.NoError(t, err)

	assert.Equal(t, TagLocalAES, r.Active().Tag())

	p, err := r.Lookup(TagLocalAES)
	require.NoError(t, err)
	assert.Equal(t, TagLocalAES, p.Tag())

	_, err = r.Lookup(TagAWSKMS)
	assert.ErrorIs(t, err, domain.ErrUnknownEncryptionBackend)
}

func TestRegistry_ResolvesEnvelopeForRegisteredKEK(t *testing.T) {
	ctx := context.Background()
	local := newTestAESGCM(t)
	r, err := NewRegistry(NewEnvelope(local), local)
	require.NoError(t, err)

	blob, err := r.Active().Encrypt(ctx, []byte("secret"))
	require.NoError(t, err)

	p, err := r.Lookup("envelope+local-aes")
	require.NoError(t, err)
	got, err := p.Decrypt(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)

	_, err = r.Lookup("envelope+gcp-kms")
	assert.ErrorIs(t, err, domain.ErrUnknownEncryptionBackend)
}

func TestRegistry_DecryptsWithPreviousBackend(t *testing.T) {
	ctx := context.Background()
	previous := newTestAESGCM(t)
	blob, err := previous.Encrypt(ctx, []byte("legacy secret"))
	require.NoError(t, err)

	r, err := NewRegistry(NewEnvelope(unavailableProvider{}), previous)
	require.NoError(t, err)
	assert.Equal(t, "envelope+gcp-kms", r.Active().Tag())

	p, err := r.Lookup(TagLocalAES)
	require.NoError(t, err)
	got, err := p.Decrypt(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy secret"), got)
}

func TestNewRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCryptoConfig)

	local := newTestAESGCM(t)
	_, err = NewRegistry(local, local)
	assert.ErrorIs(t, err, domain.ErrInvalidCryptoConfig)
}

func TestRegistry_CloseThroughInstrumentation(t *testing.T) {
	inner := &closingProvider{Provider: newTestAESGCM(t)}
	r, err := NewRegistry(Instrument(inner, nil))
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.True(t, inner.closed)
}

func TestInstrument_RecordsResults(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))

	p := Instrument(newTestAESGCM(t), m)
	assert.Equal(t, TagLocalAES, p.Tag())

	blob, err := p.Encrypt(ctx, []byte("secret"))
	require.NoError(t, err)
	_, err = p.Decrypt(ctx, blob)
	require.NoError(t, err)
	_, err = p.Decrypt(ctx, blob[:4])
	require.ErrorIs(t, err, domain.ErrMalformedCiphertext)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(TagLocalAES, "encrypt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(TagLocalAES, "decrypt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(TagLocalAES, "decrypt", "malformed")))
}
