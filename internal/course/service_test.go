package course

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/gleh/internal/model"
)

// mockCourseRepo はCourseRepositoryのテスト用モック。
type mockCourseRepo struct {
	courses []*model.Course
}

func (m *mockCourseRepo) ListAll(_ context.Context) ([]*model.Course, error) {
	return m.courses, nil
}

func (m *mockCourseRepo) FindByUID(_ context.Context, uid string) (*model.Course, error) {
	for _, c := range m.courses {
		if c.UID == uid {
			return c, nil
		}
	}
	return nil, nil
}

// mockProgressRepo はCourseProgressRepositoryのテスト用モック。
type mockProgressRepo struct {
	upserted []*model.CourseProgress
}

func (m *mockProgressRepo) ListByUserID(_ context.Context, _ int64) ([]*model.CourseProgress, error) {
	return m.upserted, nil
}

func (m *mockProgressRepo) Upsert(_ context.Context, p *model.CourseProgress) error {
	m.upserted = append(m.upserted, p)
	return nil
}

// mockNoteRepo はCourseNoteRepositoryのテスト用モック。
type mockNoteRepo struct {
	notes    map[int64]*model.CourseNote // course_id -> note
	upserted []*model.CourseNote
}

func (m *mockNoteRepo) FindByUserAndCourse(_ context.Context, _, courseID int64) (*model.CourseNote, error) {
	return m.notes[courseID], nil
}

func (m *mockNoteRepo) ListByUserID(_ context.Context, _ int64) ([]*model.CourseNote, error) {
	return nil, nil
}

func (m *mockNoteRepo) Upsert(_ context.Context, note *model.CourseNote) error {
	m.upserted = append(m.upserted, note)
	return nil
}

func newTestService() (*Service, *mockProgressRepo, *mockNoteRepo) {
	courseRepo := &mockCourseRepo{courses: []*model.Course{
		{ID: 1, UID: "intro-go", Title: "Go入門"},
	}}
	progressRepo := &mockProgressRepo{}
	noteRepo := &mockNoteRepo{notes: map[int64]*model.CourseNote{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(courseRepo, progressRepo, noteRepo, logger), progressRepo, noteRepo
}

func TestGetCourse(t *testing.T) {
	svc, _, _ := newTestService()

	course, err := svc.GetCourse(context.Background(), "intro-go")
	if err != nil {
		t.Fatalf("GetCourse() error = %v", err)
	}
	if course.Title != "Go入門" {
		t.Errorf("Title = %q", course.Title)
	}
}

func TestGetCourse_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetCourse(context.Background(), "no-such-course")
	if !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("GetCourse() error = %v, want ErrCourseNotFound", err)
	}
}

func TestGetNote_NoNoteReturnsEmpty(t *testing.T) {
	svc, _, _ := newTestService()

	content, err := svc.GetNote(context.Background(), 7, "intro-go")
	if err != nil {
		t.Fatalf("GetNote() error = %v", err)
	}
	if content != "" {
		t.Errorf("content = %q, want empty", content)
	}
}

func TestGetNote(t *testing.T) {
	svc, _, noteRepo := newTestService()
	noteRepo.notes[1] = &model.CourseNote{UserID: 7, CourseID: 1, Content: "memo"}

	content, err := svc.GetNote(context.Background(), 7, "intro-go")
	if err != nil {
		t.Fatalf("GetNote() error = %v", err)
	}
	if content != "memo" {
		t.Errorf("content = %q, want %q", content, "memo")
	}
}

func TestSaveNote(t *testing.T) {
	svc, _, noteRepo := newTestService()

	if err := svc.SaveNote(context.Background(), 7, "intro-go", "chapter 1"); err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}
	if len(noteRepo.upserted) != 1 {
		t.Fatalf("upserted count = %d, want 1", len(noteRepo.upserted))
	}
	got := noteRepo.upserted[0]
	if got.UserID != 7 || got.CourseID != 1 || got.Content != "chapter 1" {
		t.Errorf("upserted = %+v", got)
	}
}

func TestSaveNote_CourseNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.SaveNote(context.Background(), 7, "no-such-course", "x")
	if !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("SaveNote() error = %v, want ErrCourseNotFound", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	svc, progressRepo, _ := newTestService()

	if err := svc.UpdateProgress(context.Background(), 7, "intro-go", "Completed"); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if len(progressRepo.upserted) != 1 {
		t.Fatalf("upserted count = %d, want 1", len(progressRepo.upserted))
	}
	if progressRepo.upserted[0].Status != "Completed" {
		t.Errorf("Status = %q", progressRepo.upserted[0].Status)
	}
}
