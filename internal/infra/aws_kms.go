package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/smithy-go"

	"access-key-service/internal/crypto"
	"access-key-service/internal/domain"
)

// awsKMSMaxPlaintext はKMS Encryptが受け付ける平文の上限（バイト）。
const awsKMSMaxPlaintext = 4096

// awsKMSAPI はAWSKMSClientが利用するAWS KMS APIのサブセット。
type awsKMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSClient はAWS KMSによる暗号バックエンド。
// シークレットは小さいため直接Encrypt/Decryptを呼ぶ（上限4KiB）。大きなペイロードはエンベロープ暗号化を使う。
type AWSKMSClient struct {
	client awsKMSAPI
	keyID  string
}

// NewAWSKMSClient は鍵ID（ARN・エイリアス可）を指定してAWSKMSClientを生成する。
// 認証情報はAWS SDKの標準チェーン（環境変数・共有設定・IMDSなど）から取得する。
func NewAWSKMSClient(ctx context.Context, keyID, region string) (*AWSKMSClient, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: AWS_KMS_KEY_ID is required for the %s backend", domain.ErrInvalidCryptoConfig, crypto.TagAWSKMS)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %v", domain.ErrInvalidCryptoConfig, err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: AWS region is not configured", domain.ErrInvalidCryptoConfig)
	}

	return newAWSKMSClient(kms.NewFromConfig(cfg), keyID), nil
}

func newAWSKMSClient(client awsKMSAPI, keyID string) *AWSKMSClient {
	return &AWSKMSClient{client: client, keyID: keyID}
}

// Tag はバックエンドのタグを返す。
func (c *AWSKMSClient) Tag() string {
	return crypto.TagAWSKMS
}

// Encrypt は平文をAWS KMSで暗号化する。
func (c *AWSKMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	payload := frameDirectPayload(plaintext)
	defer clear(payload)
	if len(payload) > awsKMSMaxPlaintext {
		return nil, fmt.Errorf("%w: plaintext exceeds %d bytes", domain.ErrCryptoRejected, awsKMSMaxPlaintext-1)
	}

	out, err := c.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(c.keyID),
		Plaintext: payload,
	})
	if err != nil {
		return nil, classifyAWSKMSError("encrypting", err)
	}
	if len(out.CiphertextBlob) == 0 {
		return nil, fmt.Errorf("%w: KMS returned an empty ciphertext", domain.ErrCryptoUnavailable)
	}
	return out.CiphertextBlob, nil
}

// Decrypt は暗号文をAWS KMSで復号する。
// 鍵IDを指定し、別の鍵で暗号化されたブロブの復号を拒否させる。
func (c *AWSKMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", domain.ErrMalformedCiphertext)
	}
	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(c.keyID),
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, classifyAWSKMSError("decrypting", err)
	}
	return unframeDirectPayload(out.Plaintext)
}

// classifyAWSKMSError はKMSのエラーを暗号エラーの分類に変換する。
// 再試行しても成功しないエラーは ErrCryptoRejected とする。
func classifyAWSKMSError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidCiphertextException", "IncorrectKeyException":
			return fmt.Errorf("%w: %s: %v", domain.ErrCiphertextAuthentication, op, err)
		case "DisabledException", "NotFoundException", "KMSInvalidStateException",
			"InvalidKeyUsageException", "InvalidGrantTokenException",
			"AccessDeniedException", "ValidationException", "UnsupportedOperationException":
			return fmt.Errorf("%w: %s: %v", domain.ErrCryptoRejected, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrCryptoUnavailable, op, err)
}
