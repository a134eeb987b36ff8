package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/model"
)

// ContentListerInterface は統合コンテンツ一覧ハンドラーが必要とするインターフェース。
type ContentListerInterface interface {
	// List は全講座とリモート電子書籍を統合した一覧を返す。
	// userIDが0より大きい場合、講座にユーザーの進捗とメモを重ね合わせる。
	List(ctx context.Context, userID int64) ([]model.ContentItem, error)
}

// ContentHandler は統合コンテンツ一覧のHTTPハンドラー。
type ContentHandler struct {
	lister ContentListerInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(lister ContentListerInterface) *ContentHandler {
	return &ContentHandler{lister: lister}
}

// ListContent は統合コンテンツ一覧を返す。
// GET /api/content
// 認証は任意: セッションがある場合のみユーザー固有の進捗・メモを含める。
// リモートカタログの障害時は講座のみの一覧を200で返す（アグリゲーター側で縮退）。
func (h *ContentHandler) ListContent(w http.ResponseWriter, r *http.Request) {
	var userID int64
	if id, err := middleware.UserIDFromContext(r.Context()); err == nil {
		userID = id
	}

	items, err := h.lister.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"content": items,
	})
}
