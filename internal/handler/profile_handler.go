package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/user"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// GetProfile はプロフィール画面の応答全体を構築する。
	GetProfile(ctx context.Context, u *model.User) (*user.Profile, error)
	// UpdateProfile はnilでない項目のみを部分更新する。
	UpdateProfile(ctx context.Context, u *model.User, aboutMe, gender, pronouns *string) error
}

// AvatarServiceInterface はアバターのアップロードと配信解決のインターフェース。
type AvatarServiceInterface interface {
	// Upload はアバター画像を検証して保存し、公開URLを返す。
	Upload(ctx context.Context, userID int64, filename string, data []byte) (string, error)
	// Resolve は保存済みアバターのローカルパスを返す。
	Resolve(filename string) (string, bool)
}

// ProfileHandler はプロフィール表示・更新とアバター管理のHTTPハンドラー。
type ProfileHandler struct {
	service       ProfileServiceInterface
	avatarSvc     AvatarServiceInterface
	maxUploadSize int64
	logger        *slog.Logger
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(
	service ProfileServiceInterface,
	avatarSvc AvatarServiceInterface,
	maxUploadSize int64,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		service:       service,
		avatarSvc:     avatarSvc,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// ポインタ型により「キー欠落」と「空文字列での上書き」を区別する。
type updateProfileRequest struct {
	AboutMe  *string `json:"about_me"`
	Gender   *string `json:"gender"`
	Pronouns *string `json:"pronouns"`
}

// GetProfile はプロフィール画面の応答を返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, err := h.service.GetProfile(r.Context(), u)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profile)
}

// UpdateProfile はプロフィールを部分更新する。
// POST /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	if err := h.service.UpdateProfile(r.Context(), u, req.AboutMe, req.Gender, req.Pronouns); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Profile updated successfully",
	})
}

// UploadAvatar はアバター画像のアップロードを処理する。
// POST /api/profile/avatar (multipart/form-data, フィールド名 "avatar")
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// サイズ上限を超えるボディの読み込みを打ち切る
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1024)

	file, header, err := r.FormFile("avatar")
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewUploadRejectedError("ファイルがアップロードされていません。"))
		return
	}
	defer file.Close()

	if header.Filename == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewUploadRejectedError("ファイルが選択されていません。"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewUploadRejectedError("ファイルの読み込みに失敗しました。"))
		return
	}

	avatarURL, err := h.avatarSvc.Upload(r.Context(), userID, header.Filename, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message":    "Avatar uploaded successfully",
		"avatar_url": avatarURL,
	})
}

// ServeAvatar は保存済みアバター画像を配信する。
// GET /avatars/{filename}
func (h *ProfileHandler) ServeAvatar(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, ok := h.avatarSvc.Resolve(filename)
	if !ok {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, path)
}
