package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/memeify/internal/middleware"
	"github.com/hitoshi/memeify/internal/model"
	"github.com/hitoshi/memeify/internal/upstream"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeRelayedJSON は外部APIのレスポンスボディをそのまま中継する。
func writeRelayedJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleServiceError はサービス層から返されたエラーを統一エラーフォーマットのHTTPレスポンスに変換する。
// 外部APIの失敗はいずれも502として返し、ユーザーによる再試行に委ねる。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var payloadErr *upstream.PayloadError
	if errors.As(err, &payloadErr) {
		slog.Warn("upstream payload rejected",
			slog.String("provider", payloadErr.Provider),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewUpstreamPayloadError(payloadErr.Provider))
		return
	}

	var transientErr *upstream.TransientError
	if errors.As(err, &transientErr) {
		slog.Warn("upstream request failed",
			slog.String("provider", transientErr.Provider),
			slog.Int("upstream_status", transientErr.StatusCode),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewFetchFailedError(transientErr.Provider))
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorのカテゴリからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Category {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "feed":
		return http.StatusNotFound
	case "upstream":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// viewerOrUnauthorized はコンテキストのサインイン中ユーザーを返す。
// 存在しない場合は401を書き込み、okにfalseを返す。
func viewerOrUnauthorized(w http.ResponseWriter, r *http.Request) (middleware.Viewer, bool) {
	v, err := middleware.ViewerFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return middleware.Viewer{}, false
	}
	return v, true
}
