package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"access-key-service/pkg/httputil"
)

var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// CorrelationID はリクエストに相関IDを割り当てる。
// 受信した X-Correlation-ID が妥当であれば引き継ぎ、そうでなければUUIDを生成する。
// 相関IDはレスポンスヘッダーにも設定する。
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(httputil.CorrelationIDHeader)
		if !correlationIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(httputil.CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(httputil.WithCorrelationID(r.Context(), id)))
	})
}
