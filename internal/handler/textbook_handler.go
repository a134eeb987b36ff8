package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gleh/internal/catalog"
	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/model"
)

// ebookUIDPrefix はカタログ由来の電子書籍UIDの接頭辞。
const ebookUIDPrefix = "calibre-"

// EbookNoteStore は電子書籍メモの読み書きインターフェース。
// repository.EbookNoteRepositoryの必要な操作のみを切り出している。
type EbookNoteStore interface {
	FindByUserAndEbook(ctx context.Context, userID int64, ebookID string) (*model.EbookNote, error)
	Upsert(ctx context.Context, note *model.EbookNote) error
}

// ReadingProgressTracker は閲覧進捗の記録インターフェース。
type ReadingProgressTracker interface {
	Touch(ctx context.Context, userID int64, ebookID string) error
}

// TextbookHandler はリモートカタログの電子書籍のHTTPハンドラー。
type TextbookHandler struct {
	catalogSvc catalog.Service
	noteStore  EbookNoteStore
	tracker    ReadingProgressTracker
	logger     *slog.Logger
}

// NewTextbookHandler はTextbookHandlerを生成する。
func NewTextbookHandler(
	catalogSvc catalog.Service,
	noteStore EbookNoteStore,
	tracker ReadingProgressTracker,
	logger *slog.Logger,
) *TextbookHandler {
	return &TextbookHandler{
		catalogSvc: catalogSvc,
		noteStore:  noteStore,
		tracker:    tracker,
		logger:     logger,
	}
}

// textbookResponse は電子書籍詳細のAPIレスポンス。
type textbookResponse struct {
	UID         string   `json:"uid"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Authors     []string `json:"authors"`
	CoverURL    string   `json:"cover_url,omitempty"`
	ReaderURL   string   `json:"reader_url"`
	Categories  []string `json:"categories"`
	Description string   `json:"description,omitempty"`
	Published   string   `json:"published,omitempty"`
	UserNote    string   `json:"user_note"`
}

// ebookNoteRequest は電子書籍メモ保存リクエストのボディ。
type ebookNoteRequest struct {
	BookID  string `json:"book_id"`
	Content string `json:"content"`
}

// GetTextbook は電子書籍詳細を返す。
// GET /api/textbook/{id}
// 認証は任意: セッションがある場合はユーザーのメモを含め、閲覧進捗を記録する。
func (h *TextbookHandler) GetTextbook(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "id")

	numericID, err := parseEbookUID(uid)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewBookNotFoundError(uid))
		return
	}

	book, err := h.catalogSvc.GetBook(r.Context(), numericID)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewBookNotFoundError(uid))
			return
		}
		handleServiceError(w, err)
		return
	}

	resp := toTextbookResponse(book)

	// 認証済みの場合のみメモを取得し、閲覧進捗を記録する
	if userID, err := middleware.UserIDFromContext(r.Context()); err == nil {
		note, err := h.noteStore.FindByUserAndEbook(r.Context(), userID, book.UID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if note != nil {
			resp.UserNote = note.Content
		}

		if err := h.tracker.Touch(r.Context(), userID, book.UID); err != nil {
			// 進捗記録の失敗は詳細表示を妨げない
			h.logger.Warn("reading_progress_touch_failed",
				slog.Int64("user_id", userID),
				slog.String("ebook_id", book.UID),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// GetNote はユーザーの電子書籍メモを返す。
// GET /api/textbook/{id}/note
func (h *TextbookHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	uid := chi.URLParam(r, "id")

	note, err := h.noteStore.FindByUserAndEbook(r.Context(), userID, uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	content := ""
	if note != nil {
		content = note.Content
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"content": content,
	})
}

// SaveNote はユーザーの電子書籍メモを保存する。
// POST /api/textbook/note
func (h *TextbookHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req ebookNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの解析に失敗しました。"))
		return
	}

	if req.BookID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("book_idは必須です。"))
		return
	}

	note := &model.EbookNote{
		UserID:  userID,
		EbookID: req.BookID,
		Content: req.Content,
	}
	if err := h.noteStore.Upsert(r.Context(), note); err != nil {
		handleServiceError(w, err)
		return
	}

	h.logger.Info("ebook_note_saved",
		slog.Int64("user_id", userID),
		slog.String("ebook_id", req.BookID),
	)

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Note saved successfully.",
	})
}

// ProxyCover はカタログのカバー画像を認証付きで中継する。
// GET /api/calibre/cover/{id}
// ブラウザとカタログ間のクロスオリジン認証問題を避けるためのプロキシ。
func (h *TextbookHandler) ProxyCover(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound,
			model.NewBookNotFoundError(chi.URLParam(r, "id")))
		return
	}

	body, contentType, err := h.catalogSvc.FetchCover(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound,
				model.NewBookNotFoundError(strconv.Itoa(bookID)))
			return
		}
		handleServiceError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("cover_proxy_stream_failed",
			slog.Int("book_id", bookID),
			slog.String("error", err.Error()),
		)
	}
}

// parseEbookUID は"calibre-<ID>"形式のUIDから数値IDを取り出す。
func parseEbookUID(uid string) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(uid, ebookUIDPrefix))
}

// toTextbookResponse はmodel.RemoteBookからAPIレスポンスに変換する。
func toTextbookResponse(book *model.RemoteBook) textbookResponse {
	return textbookResponse{
		UID:         book.UID,
		Title:       book.Title,
		Author:      book.Author,
		Authors:     book.Authors,
		CoverURL:    book.CoverURL,
		ReaderURL:   book.ReaderURL,
		Categories:  book.Categories,
		Description: book.Description,
		Published:   book.Published,
	}
}
