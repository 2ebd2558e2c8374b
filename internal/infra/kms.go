package infra

import (
	"context"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// gcpKMSAPI はKMSClientが利用するCloud KMS APIのサブセット。
type gcpKMSAPI interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
	Close() error
}

// KMSClient はCloud KMSによる暗号バックエンド。
type KMSClient struct {
	client  gcpKMSAPI
	keyName string
}

// NewKMSClient はCloud KMSの鍵名（projects/.../cryptoKeys/...）を指定してKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("%w: KMS_KEY_NAME is required for the %s backend", domain.ErrInvalidCryptoConfig, crypto.TagGCPKMS)
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: creating KMS client: %v", domain.ErrInvalidCryptoConfig, err)
	}

	return newKMSClient(client, keyName), nil
}

func newKMSClient(client gcpKMSAPI, keyName string) *KMSClient {
	return &KMSClient{
		client:  client,
		keyName: keyName,
	}
}

// Tag はバックエンドのタグを返す。
func (c *KMSClient) Tag() string {
	return crypto.TagGCPKMS
}

// Encrypt は平文をCloud KMSで暗号化する。
// 要求・応答はCRC32Cで完全性を検証する。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	payload := frameDirectPayload(plaintext)
	defer clear(payload)
	req := &kmspb.EncryptRequest{
		Name:            c.keyName,
		Plaintext:       payload,
		PlaintextCrc32C: wrapperspb.Int64(crc32c(payload)),
	}
	resp, err := c.client.Encrypt(ctx, req)
	if err != nil {
		if isInvalidArgument(err) || isPermanentKMSError(err) {
			return nil, fmt.Errorf("%w: encrypting: %v", domain.ErrCryptoRejected, err)
		}
		return nil, fmt.Errorf("%w: encrypting: %v", domain.ErrCryptoUnavailable, err)
	}
	if !resp.GetVerifiedPlaintextCrc32C() {
		return nil, fmt.Errorf("%w: encrypt request corrupted in transit", domain.ErrCryptoUnavailable)
	}
	if resp.GetCiphertextCrc32C() == nil || resp.GetCiphertextCrc32C().GetValue() != crc32c(resp.GetCiphertext()) {
		return nil, fmt.Errorf("%w: encrypt response corrupted in transit", domain.ErrCryptoUnavailable)
	}
	return resp.GetCiphertext(), nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", domain.ErrMalformedCiphertext)
	}
	req := &kmspb.DecryptRequest{
		Name:             c.keyName,
		Ciphertext:       ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(crc32c(ciphertext)),
	}
	resp, err := c.client.Decrypt(ctx, req)
	if err != nil {
		if isInvalidArgument(err) {
			return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrCiphertextAuthentication, err)
		}
		if isPermanentKMSError(err) {
			return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrCryptoRejected, err)
		}
		return nil, fmt.Errorf("%w: decrypting: %v", domain.ErrCryptoUnavailable, err)
	}
	if resp.GetPlaintextCrc32C() == nil || resp.GetPlaintextCrc32C().GetValue() != crc32c(resp.GetPlaintext()) {
		return nil, fmt.Errorf("%w: decrypt response corrupted in transit", domain.ErrCryptoUnavailable)
	}
	return unframeDirectPayload(resp.GetPlaintext())
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

func crc32c(data []byte) int64 {
	return int64(crc32.Checksum(data, crc32cTable))
}

// isInvalidArgument はKMSが暗号文を拒否したか（改ざん・破損）を判定する。
func isInvalidArgument(err error) bool {
	return status.Code(err) == codes.InvalidArgument
}

// isPermanentKMSError は鍵の無効化・削除や権限不足など、再試行しても成功しないエラーかを判定する。
func isPermanentKMSError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.NotFound, codes.FailedPrecondition, codes.Unauthenticated:
		return true
	}
	return false
}
