package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gleh/internal/course"
	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/model"
)

// CourseServiceInterface は講座ハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	// GetCourse はUIDで講座を取得する。
	GetCourse(ctx context.Context, uid string) (*model.Course, error)
	// GetNote はユーザーの講座メモを取得する。メモがない場合は空文字列を返す。
	GetNote(ctx context.Context, userID int64, uid string) (string, error)
	// SaveNote はユーザーの講座メモを保存する。
	SaveNote(ctx context.Context, userID int64, uid, content string) error
	// UpdateProgress はユーザーの講座進捗を更新する。
	UpdateProgress(ctx context.Context, userID int64, uid, status string) error
}

// CourseHandler は講座のHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface) *CourseHandler {
	return &CourseHandler{service: service}
}

// courseResponse は講座詳細のAPIレスポンス。
type courseResponse struct {
	UID         string   `json:"uid"`
	Title       string   `json:"title"`
	Path        string   `json:"path"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// noteRequest は講座メモ保存リクエストのボディ。
type noteRequest struct {
	CourseUID string `json:"course_uid"`
	Content   string `json:"content"`
}

// progressRequest は講座進捗更新リクエストのボディ。
type progressRequest struct {
	CourseUID string `json:"course_uid"`
	Status    string `json:"status"`
}

// GetCourse は講座詳細を返す。
// GET /api/course/{uid}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	c, err := h.service.GetCourse(r.Context(), uid)
	if err != nil {
		if errors.Is(err, course.ErrCourseNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCourseNotFoundError(uid))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, courseResponse{
		UID:         c.UID,
		Title:       c.Title,
		Path:        c.Path,
		Description: c.Description,
		Categories:  c.Categories,
		Thumbnail:   c.Thumbnail,
	})
}

// GetNote はユーザーの講座メモを返す。
// GET /api/course/{uid}/note
func (h *CourseHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	uid := chi.URLParam(r, "uid")

	content, err := h.service.GetNote(r.Context(), userID, uid)
	if err != nil {
		if errors.Is(err, course.ErrCourseNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCourseNotFoundError(uid))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"content": content,
	})
}

// SaveNote はユーザーの講座メモを保存する。
// POST /api/course/note
func (h *CourseHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	if err := h.service.SaveNote(r.Context(), userID, req.CourseUID, req.Content); err != nil {
		if errors.Is(err, course.ErrCourseNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCourseNotFoundError(req.CourseUID))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Note saved successfully.",
	})
}

// UpdateProgress はユーザーの講座進捗を更新する。
// POST /api/course/progress
func (h *CourseHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	if err := h.service.UpdateProgress(r.Context(), userID, req.CourseUID, req.Status); err != nil {
		if errors.Is(err, course.ErrCourseNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCourseNotFoundError(req.CourseUID))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Progress updated successfully.",
	})
}
