// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gleh/internal/auth"
	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/user"
)

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// 既知のエラー型はそれぞれの統一エラーフォーマットに対応づけ、
// それ以外は内部サーバーエラーとして扱う。
func handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationErr.Reason))
		return
	}

	var uploadErr *user.UploadError
	if errors.As(err, &uploadErr) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUploadRejectedError(uploadErr.Reason))
		return
	}

	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewUsernameTakenError())
	case errors.Is(err, auth.ErrInvalidCredentials):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
