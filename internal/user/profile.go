// Package user はプロフィール表示の集約とプロフィール更新、
// アバター画像のアップロードを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/gleh/internal/catalog"
	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/repository"
)

// noteExcerptLen はプロフィール画面に表示するメモ抜粋の最大文字数。
const noteExcerptLen = 100

// Excerpter はメモ本文からプレーンテキストの抜粋を生成する。
// メモはリッチテキストエディタ由来のHTMLを含みうるため、
// タグ除去と切り詰めをセキュリティ層に委ねる。
type Excerpter interface {
	Excerpt(rawHTML string, maxLen int) string
}

// CourseSummary はプロフィール内の講座概要。
type CourseSummary struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Status    string `json:"status"`
}

// NoteSummary はプロフィール内のメモ概要。講座メモと電子書籍メモの両方を表す。
type NoteSummary struct {
	Type        string `json:"type"` // "course" または "ebook"
	CourseUID   string `json:"course_uid,omitempty"`
	CourseTitle string `json:"course_title,omitempty"`
	EbookID     string `json:"ebook_id,omitempty"`
	EbookTitle  string `json:"ebook_title,omitempty"`
	Content     string `json:"content"`
}

// ReadingEntry はプロフィール内の読書リスト項目。
type ReadingEntry struct {
	UID      string `json:"uid"`
	Title    string `json:"title"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	LastRead string `json:"last_read,omitempty"`
}

// ProfileUser はプロフィール内のユーザー情報。
type ProfileUser struct {
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	AboutMe   string `json:"about_me"`
	Gender    string `json:"gender"`
	Pronouns  string `json:"pronouns"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Profile はプロフィール画面の応答全体。
type Profile struct {
	User              ProfileUser     `json:"user"`
	CoursesInProgress []CourseSummary `json:"courses_in_progress"`
	CoursesCompleted  []CourseSummary `json:"courses_completed"`
	Notes             []NoteSummary   `json:"notes"`
	ReadingList       []ReadingEntry  `json:"reading_list"`
}

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	courseRepo   repository.CourseRepository
	progressRepo repository.CourseProgressRepository
	noteRepo     repository.CourseNoteRepository
	ebookNotes   repository.EbookNoteRepository
	readingRepo  repository.EbookReadingProgressRepository
	catalogSvc   catalog.Service
	excerpter    Excerpter
	logger       *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	progressRepo repository.CourseProgressRepository,
	noteRepo repository.CourseNoteRepository,
	ebookNotes repository.EbookNoteRepository,
	readingRepo repository.EbookReadingProgressRepository,
	catalogSvc catalog.Service,
	excerpter Excerpter,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:     userRepo,
		courseRepo:   courseRepo,
		progressRepo: progressRepo,
		noteRepo:     noteRepo,
		ebookNotes:   ebookNotes,
		readingRepo:  readingRepo,
		catalogSvc:   catalogSvc,
		excerpter:    excerpter,
		logger:       logger,
	}
}

// GetProfile はプロフィール画面の応答を集約して構築する。
// リモートカタログの通信障害はフォールバックタイトルで埋めて継続する。
func (s *Service) GetProfile(ctx context.Context, u *model.User) (*Profile, error) {
	profile := &Profile{
		User:              buildProfileUser(u),
		CoursesInProgress: []CourseSummary{},
		CoursesCompleted:  []CourseSummary{},
		Notes:             []NoteSummary{},
		ReadingList:       []ReadingEntry{},
	}

	courseByID, err := s.courseIndex(ctx)
	if err != nil {
		return nil, err
	}

	// 講座進捗
	progressRecords, err := s.progressRepo.ListByUserID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("講座進捗の取得に失敗: %w", err)
	}
	for _, p := range progressRecords {
		course, ok := courseByID[p.CourseID]
		if !ok {
			continue
		}
		summary := CourseSummary{
			UID:       course.UID,
			Title:     course.Title,
			Thumbnail: course.Thumbnail,
			Status:    p.Status,
		}
		if p.Status == "Completed" {
			profile.CoursesCompleted = append(profile.CoursesCompleted, summary)
		} else {
			profile.CoursesInProgress = append(profile.CoursesInProgress, summary)
		}
	}

	// 講座メモ
	courseNotes, err := s.noteRepo.ListByUserID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("講座メモの取得に失敗: %w", err)
	}
	for _, n := range courseNotes {
		course, ok := courseByID[n.CourseID]
		if !ok {
			continue
		}
		profile.Notes = append(profile.Notes, NoteSummary{
			Type:        "course",
			CourseUID:   course.UID,
			CourseTitle: course.Title,
			Content:     s.excerpter.Excerpt(n.Content, noteExcerptLen),
		})
	}

	// 電子書籍メモ
	ebookNotes, err := s.ebookNotes.ListByUserID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("電子書籍メモの取得に失敗: %w", err)
	}
	for _, n := range ebookNotes {
		title, ok := s.bookTitle(ctx, n.EbookID)
		if !ok {
			// カタログに存在しない書籍のメモは表示しない
			continue
		}
		profile.Notes = append(profile.Notes, NoteSummary{
			Type:       "ebook",
			EbookID:    n.EbookID,
			EbookTitle: title,
			Content:    s.excerpter.Excerpt(n.Content, noteExcerptLen),
		})
	}

	// 読書リスト
	readingRecords, err := s.readingRepo.ListByUserID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("読書進捗の取得に失敗: %w", err)
	}
	for _, r := range readingRecords {
		title, ok := s.bookTitle(ctx, r.EbookID)
		if !ok {
			continue
		}
		entry := ReadingEntry{
			UID:      r.EbookID,
			Title:    title,
			Progress: r.ProgressPercent,
			Status:   r.Status,
		}
		if !r.LastRead.IsZero() {
			entry.LastRead = r.LastRead.Format(time.RFC3339)
		}
		profile.ReadingList = append(profile.ReadingList, entry)
	}

	return profile, nil
}

// UpdateProfile はプロフィール項目を更新する。nilのフィールドは変更しない。
func (s *Service) UpdateProfile(ctx context.Context, u *model.User, aboutMe, gender, pronouns *string) error {
	if aboutMe != nil {
		u.AboutMe = *aboutMe
	}
	if gender != nil {
		u.Gender = *gender
	}
	if pronouns != nil {
		u.Pronouns = *pronouns
	}
	if err := s.userRepo.UpdateProfile(ctx, u); err != nil {
		return fmt.Errorf("プロフィール更新に失敗: %w", err)
	}
	s.logger.Info("profile_updated", slog.Int64("user_id", u.ID))
	return nil
}

// bookTitle は電子書籍IDからタイトルを取得する。
// 第2戻り値がfalseの場合、その書籍はカタログに存在しない（項目を表示しない）。
// 通信障害の場合はフォールバックタイトルで項目を残す。
func (s *Service) bookTitle(ctx context.Context, ebookID string) (string, bool) {
	numericID, err := numericBookID(ebookID)
	if err != nil {
		return "", false
	}

	book, err := s.catalogSvc.GetBook(ctx, numericID)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			return "", false
		}
		s.logger.Warn("書籍タイトルの取得に失敗しました",
			slog.String("ebook_id", ebookID),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf("Book %s", ebookID), true
	}
	return book.Title, true
}

// courseIndex は全講座をIDで引けるマップにする。
func (s *Service) courseIndex(ctx context.Context) (map[int64]*model.Course, error) {
	courses, err := s.courseRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("講座一覧の取得に失敗: %w", err)
	}
	index := make(map[int64]*model.Course, len(courses))
	for _, c := range courses {
		index[c.ID] = c
	}
	return index, nil
}

func buildProfileUser(u *model.User) ProfileUser {
	avatar := "/static/avatars/default_avatar.svg"
	if u.Avatar != "" {
		avatar = "/avatars/" + u.Avatar
	}
	pu := ProfileUser{
		Username: u.Username,
		Avatar:   avatar,
		AboutMe:  u.AboutMe,
		Gender:   u.Gender,
		Pronouns: u.Pronouns,
	}
	if !u.CreatedAt.IsZero() {
		pu.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return pu
}

// numericBookID は "calibre-4" 形式のIDから数値部分を取り出す。
func numericBookID(ebookID string) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(ebookID, "calibre-"))
}
