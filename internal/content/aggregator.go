// Package content はローカル講座とリモート電子書籍を統合した
// コンテンツ一覧を構築する。
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/gleh/internal/catalog"
	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/repository"
)

// Aggregator は統合コンテンツ一覧を構築するサービス。
// 一覧は全講座（登録順）の後に最大featuredCount件のリモート書籍が続く。
// リモートカタログの障害時は書籍部分を欠いた講座のみの一覧に縮退する。
type Aggregator struct {
	courseRepo   repository.CourseRepository
	progressRepo repository.CourseProgressRepository
	noteRepo     repository.CourseNoteRepository
	catalogSvc   catalog.Service
	featured     int
	logger       *slog.Logger
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(
	courseRepo repository.CourseRepository,
	progressRepo repository.CourseProgressRepository,
	noteRepo repository.CourseNoteRepository,
	catalogSvc catalog.Service,
	featuredCount int,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		courseRepo:   courseRepo,
		progressRepo: progressRepo,
		noteRepo:     noteRepo,
		catalogSvc:   catalogSvc,
		featured:     featuredCount,
		logger:       logger,
	}
}

// List は統合コンテンツ一覧を返す。
// userIDが0より大きい場合、講座にそのユーザーの進捗とノートを重ねる。
// リモートカタログの失敗は一覧全体の失敗にしない（部分的結果の許容）。
// ローカルDBの失敗のみがエラーになる。
func (a *Aggregator) List(ctx context.Context, userID int64) ([]model.ContentItem, error) {
	courses, err := a.courseRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("講座一覧の取得に失敗: %w", err)
	}

	progressByCourse := map[int64]string{}
	noteByCourse := map[int64]string{}
	if userID > 0 {
		records, err := a.progressRepo.ListByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("講座進捗の取得に失敗: %w", err)
		}
		for _, p := range records {
			progressByCourse[p.CourseID] = p.Status
		}

		notes, err := a.noteRepo.ListByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("講座ノートの取得に失敗: %w", err)
		}
		for _, n := range notes {
			noteByCourse[n.CourseID] = n.Content
		}
	}

	items := make([]model.ContentItem, 0, len(courses)+a.featured)
	for _, course := range courses {
		item := model.ContentItem{
			Type:        model.ContentTypeCourse,
			UID:         course.UID,
			Title:       course.Title,
			Path:        "/course/" + course.UID,
			Description: course.Description,
			Categories:  course.Categories,
			Thumbnail:   courseThumbnail(course.Thumbnail),
		}
		if userID > 0 {
			item.UserProgress = progressOrDefault(progressByCourse, course.ID)
			item.UserNote = noteByCourse[course.ID]
		}
		items = append(items, item)
	}

	books, err := a.catalogSvc.FeaturedBooks(ctx, a.featured)
	if err != nil {
		// 縮退: 講座のみの一覧を返す
		a.logger.Error("リモートカタログからの書籍取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return items, nil
	}

	for _, book := range books {
		items = append(items, model.ContentItem{
			Type:       model.ContentTypeEbook,
			UID:        book.UID,
			Title:      book.Title,
			Author:     book.Author,
			Path:       "/textbook/" + book.UID,
			ReaderURL:  book.ReaderURL,
			CoverPath:  book.CoverURL,
			Categories: book.Categories,
		})
	}

	return items, nil
}

// courseThumbnail はサムネイルURLを返す。
// 未設定またはデフォルト画像の場合は空文字列にする。
func courseThumbnail(thumbnail string) string {
	if thumbnail == "" || strings.Contains(thumbnail, "default") {
		return ""
	}
	return thumbnail
}

func progressOrDefault(progress map[int64]string, courseID int64) string {
	if status, ok := progress[courseID]; ok {
		return status
	}
	return model.ProgressNotStarted
}
