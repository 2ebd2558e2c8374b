package httputil

import "context"

// CorrelationIDHeader は相関IDを受け渡すHTTPヘッダー。
const CorrelationIDHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// WithCorrelationID は相関IDを格納したコンテキストを返す。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID はコンテキストの相関IDを返す。未設定なら空文字列。
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
