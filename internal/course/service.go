// Package course は講座の参照とユーザーごとのメモ・進捗操作を提供する。
package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/repository"
)

// ErrCourseNotFound は指定UIDの講座が存在しないことを示す。
var ErrCourseNotFound = errors.New("講座が見つかりません")

// Service は講座に関するビジネスロジックを提供する。
type Service struct {
	courseRepo   repository.CourseRepository
	progressRepo repository.CourseProgressRepository
	noteRepo     repository.CourseNoteRepository
	logger       *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	courseRepo repository.CourseRepository,
	progressRepo repository.CourseProgressRepository,
	noteRepo repository.CourseNoteRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		courseRepo:   courseRepo,
		progressRepo: progressRepo,
		noteRepo:     noteRepo,
		logger:       logger,
	}
}

// GetCourse はUIDで講座を取得する。存在しない場合はErrCourseNotFoundを返す。
func (s *Service) GetCourse(ctx context.Context, uid string) (*model.Course, error) {
	course, err := s.courseRepo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("講座の取得に失敗: %w", err)
	}
	if course == nil {
		return nil, fmt.Errorf("uid %q: %w", uid, ErrCourseNotFound)
	}
	return course, nil
}

// GetNote はユーザーの講座メモを取得する。メモ未作成の場合は空文字列。
func (s *Service) GetNote(ctx context.Context, userID int64, uid string) (string, error) {
	course, err := s.GetCourse(ctx, uid)
	if err != nil {
		return "", err
	}

	note, err := s.noteRepo.FindByUserAndCourse(ctx, userID, course.ID)
	if err != nil {
		return "", fmt.Errorf("メモの取得に失敗: %w", err)
	}
	if note == nil {
		return "", nil
	}
	return note.Content, nil
}

// SaveNote はユーザーの講座メモを保存する（作成または上書き）。
func (s *Service) SaveNote(ctx context.Context, userID int64, uid, content string) error {
	course, err := s.GetCourse(ctx, uid)
	if err != nil {
		return err
	}

	note := &model.CourseNote{
		UserID:   userID,
		CourseID: course.ID,
		Content:  content,
	}
	if err := s.noteRepo.Upsert(ctx, note); err != nil {
		return fmt.Errorf("メモの保存に失敗: %w", err)
	}

	s.logger.Info("course_note_saved",
		slog.Int64("user_id", userID),
		slog.String("course_uid", uid),
	)
	return nil
}

// UpdateProgress はユーザーの講座進捗を更新する（作成または上書き）。
func (s *Service) UpdateProgress(ctx context.Context, userID int64, uid, status string) error {
	course, err := s.GetCourse(ctx, uid)
	if err != nil {
		return err
	}

	progress := &model.CourseProgress{
		UserID:   userID,
		CourseID: course.ID,
		Status:   status,
	}
	if err := s.progressRepo.Upsert(ctx, progress); err != nil {
		return fmt.Errorf("進捗の保存に失敗: %w", err)
	}

	s.logger.Info("course_progress_updated",
		slog.Int64("user_id", userID),
		slog.String("course_uid", uid),
		slog.String("status", status),
	)
	return nil
}
