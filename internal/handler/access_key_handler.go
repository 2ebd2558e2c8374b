// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"access-key-service/internal/domain"
	"access-key-service/internal/keygen"
	"access-key-service/internal/middleware"
	"access-key-service/internal/usecase"
	"access-key-service/pkg/httputil"
)

// maxRequestBodySize はリクエストボディの上限。
const maxRequestBodySize = 64 << 10

// AccessKeyHandler はアクセスキーのHTTPハンドラを提供する。
type AccessKeyHandler struct {
	service *usecase.AccessKeyService
}

// NewAccessKeyHandler は新しいAccessKeyHandlerを生成する。
func NewAccessKeyHandler(service *usecase.AccessKeyService) *AccessKeyHandler {
	return &AccessKeyHandler{service: service}
}

// CreateAccessKeyRequest はアクセスキー作成のリクエスト形式。
type CreateAccessKeyRequest struct {
	OwnerID     string `json:"owner_id"`
	Description string `json:"description"`
}

// CreateAccessKeyResponse はアクセスキー作成のレスポンス形式。シークレットを含むのはこのレスポンスだけ。
type CreateAccessKeyResponse struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// AccessKeyResponse はアクセスキーメタデータのレスポンス形式。
type AccessKeyResponse struct {
	AccessKeyID string `json:"access_key_id"`
	OwnerID     string `json:"owner_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// AccessKeyListResponse はアクセスキー一覧のレスポンス形式。
type AccessKeyListResponse struct {
	AccessKeys []AccessKeyResponse `json:"access_keys"`
}

func toAccessKeyResponse(md *domain.AccessKeyMetadata) AccessKeyResponse {
	return AccessKeyResponse{
		AccessKeyID: md.AccessKeyID,
		OwnerID:     md.OwnerID,
		Description: md.Description,
		Status:      string(md.Status),
		CreatedAt:   md.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeJSON はサイズ上限と未知フィールドの拒否を適用してボディを読み込む。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body must not exceed %d bytes", maxRequestBodySize)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("malformed request body: %v", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// CreateAccessKey は新しいアクセスキーを発行する。
func (h *AccessKeyHandler) CreateAccessKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAccessKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := domain.ValidateOwnerID(req.OwnerID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_OWNER_ID", err.Error())
		return
	}
	if err := domain.ValidateDescription(req.Description); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_DESCRIPTION", err.Error())
		return
	}

	created, err := h.service.CreateAccessKey(r.Context(), req.OwnerID, req.Description)
	if err != nil {
		middleware.LogOperation(r.Context(), "CREATE_ACCESS_KEY", middleware.ResultFailed, "owner_id", req.OwnerID)
		h.writeError(w, r, "create_access_key", err)
		return
	}

	middleware.LogOperation(r.Context(), "CREATE_ACCESS_KEY", middleware.ResultSuccess,
		"owner_id", req.OwnerID,
		"access_key_id", created.AccessKeyID,
	)
	httputil.NoStore(w)
	httputil.JSON(w, http.StatusCreated, CreateAccessKeyResponse{
		AccessKeyID:     created.AccessKeyID,
		SecretAccessKey: created.Secret,
	})
}

// GetAccessKey はアクセスキーのメタデータを取得する。
func (h *AccessKeyHandler) GetAccessKey(w http.ResponseWriter, r *http.Request) {
	accessKeyID := chi.URLParam(r, "access_key_id")
	// 形式が不正なIDは存在し得ないため、ストアを参照せずに404とする
	if !keygen.ValidAccessKeyID(accessKeyID) {
		httputil.Error(w, http.StatusNotFound, "ACCESS_KEY_NOT_FOUND", "access key not found")
		return
	}

	md, err := h.service.GetAccessKey(r.Context(), accessKeyID)
	if err != nil {
		h.writeError(w, r, "get_access_key", err)
		return
	}

	httputil.JSON(w, http.StatusOK, toAccessKeyResponse(md))
}

// ListAccessKeys は所有者のアクセスキー一覧を取得する。
func (h *AccessKeyHandler) ListAccessKeys(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_OWNER_ID", err.Error())
		return
	}

	list, err := h.service.ListAccessKeys(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, r, "list_access_keys", err)
		return
	}

	resp := AccessKeyListResponse{AccessKeys: make([]AccessKeyResponse, len(list))}
	for i, md := range list {
		resp.AccessKeys[i] = toAccessKeyResponse(md)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// RevokeAccessKey はアクセスキーを失効させる。存在しない場合も204を返す。
func (h *AccessKeyHandler) RevokeAccessKey(w http.ResponseWriter, r *http.Request) {
	accessKeyID := chi.URLParam(r, "access_key_id")
	if !keygen.ValidAccessKeyID(accessKeyID) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.service.RevokeAccessKey(r.Context(), accessKeyID); err != nil {
		middleware.LogOperation(r.Context(), "REVOKE_ACCESS_KEY", middleware.ResultFailed, "access_key_id", accessKeyID)
		h.writeError(w, r, "revoke_access_key", err)
		return
	}

	middleware.LogOperation(r.Context(), "REVOKE_ACCESS_KEY", middleware.ResultSuccess, "access_key_id", accessKeyID)
	w.WriteHeader(http.StatusNoContent)
}

// writeError はエラーをHTTPステータスに変換する。
// 5xxの本文には内部のエラー内容を含めず、相関IDだけを返す。
func (h *AccessKeyHandler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOwnerID):
		httputil.Error(w, http.StatusBadRequest, "INVALID_OWNER_ID", err.Error())
	case errors.Is(err, domain.ErrInvalidDescription):
		httputil.Error(w, http.StatusBadRequest, "INVALID_DESCRIPTION", err.Error())
	case errors.Is(err, domain.ErrAccessKeyNotFound):
		httputil.Error(w, http.StatusNotFound, "ACCESS_KEY_NOT_FOUND", "access key not found")
	case errors.Is(err, domain.ErrAccessKeyIDCollision):
		httputil.Error(w, http.StatusConflict, "ACCESS_KEY_ID_COLLISION", "access key id collision, retry the request")
	case errors.Is(err, domain.ErrCryptoUnavailable):
		slog.ErrorContext(r.Context(), "crypto backend unavailable", "operation", operation, "error", err)
		httputil.ServerError(w, r, http.StatusServiceUnavailable, "CRYPTO_UNAVAILABLE")
	case errors.Is(err, domain.ErrCryptoRejected):
		slog.ErrorContext(r.Context(), "crypto backend rejected request", "operation", operation, "error", err)
		httputil.ServerError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR")
	default:
		slog.ErrorContext(r.Context(), "internal error", "operation", operation, "error", err)
		httputil.ServerError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR")
	}
}
