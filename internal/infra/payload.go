package infra

import (
	"fmt"

	"access-key-service/internal/domain"
)

// directPayloadVersion はリモートKMSへ直接渡す平文の先頭に付ける形式バージョン。
// KMSは空の平文を受け付けないため、空のペイロードも1バイト以上で送る。
const directPayloadVersion byte = 0x01

func frameDirectPayload(plaintext []byte) []byte {
	framed := make([]byte, 0, len(plaintext)+1)
	framed = append(framed, directPayloadVersion)
	return append(framed, plaintext...)
}

func unframeDirectPayload(framed []byte) ([]byte, error) {
	if len(framed) == 0 || framed[0] != directPayloadVersion {
		return nil, fmt.Errorf("%w: unknown payload format", domain.ErrMalformedCiphertext)
	}
	plaintext := make([]byte, len(framed)-1)
	copy(plaintext, framed[1:])
	clear(framed)
	return plaintext, nil
}
