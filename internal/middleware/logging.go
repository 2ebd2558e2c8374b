// Package middleware はHTTPミドルウェアと操作ログを提供する。
package middleware

import (
	"context"
	"log/slog"
)

// 操作結果
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// LogOperation はアクセスキー操作の結果を運用ログとして出力する。
// attrs には access_key_id や owner_id などの識別子だけを渡し、シークレットや暗号文は渡さない。
func LogOperation(ctx context.Context, operation string, result string, attrs ...any) {
	level := slog.LevelInfo
	if result != ResultSuccess {
		level = slog.LevelWarn
	}
	args := append([]any{"operation", operation, "result", result}, attrs...)
	slog.Log(ctx, level, "access key operation completed", args...)
}
