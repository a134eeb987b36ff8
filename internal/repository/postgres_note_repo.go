package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/gleh/internal/model"
)

// PostgresCourseNoteRepo はPostgreSQLを使用した講座メモリポジトリ。
type PostgresCourseNoteRepo struct {
	db *sql.DB
}

// NewPostgresCourseNoteRepo はPostgresCourseNoteRepoを生成する。
func NewPostgresCourseNoteRepo(db *sql.DB) *PostgresCourseNoteRepo {
	return &PostgresCourseNoteRepo{db: db}
}

// FindByUserAndCourse はユーザーと講座の組のメモを取得する。見つからない場合はnilを返す。
func (r *PostgresCourseNoteRepo) FindByUserAndCourse(ctx context.Context, userID, courseID int64) (*model.CourseNote, error) {
	note := &model.CourseNote{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, course_id, content
		 FROM course_notes
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&note.ID, &note.UserID, &note.CourseID, &note.Content)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course note: %w", err)
	}

	return note, nil
}

// ListByUserID はユーザーの全メモを返す。
func (r *PostgresCourseNoteRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.CourseNote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, course_id, content
		 FROM course_notes
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list course notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.CourseNote
	for rows.Next() {
		note := &model.CourseNote{}
		if err := rows.Scan(&note.ID, &note.UserID, &note.CourseID, &note.Content); err != nil {
			return nil, fmt.Errorf("failed to scan course note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course notes: %w", err)
	}

	return notes, nil
}

// Upsert はメモを作成または更新する。
func (r *PostgresCourseNoteRepo) Upsert(ctx context.Context, note *model.CourseNote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO course_notes (user_id, course_id, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, course_id) DO UPDATE SET content = EXCLUDED.content`,
		note.UserID, note.CourseID, note.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert course note: %w", err)
	}
	return nil
}

// PostgresEbookNoteRepo はPostgreSQLを使用した電子書籍メモリポジトリ。
type PostgresEbookNoteRepo struct {
	db *sql.DB
}

// NewPostgresEbookNoteRepo はPostgresEbookNoteRepoを生成する。
func NewPostgresEbookNoteRepo(db *sql.DB) *PostgresEbookNoteRepo {
	return &PostgresEbookNoteRepo{db: db}
}

// FindByUserAndEbook はユーザーと電子書籍の組のメモを取得する。見つからない場合はnilを返す。
func (r *PostgresEbookNoteRepo) FindByUserAndEbook(ctx context.Context, userID int64, ebookID string) (*model.EbookNote, error) {
	note := &model.EbookNote{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, ebook_id, content
		 FROM ebook_notes
		 WHERE user_id = $1 AND ebook_id = $2`,
		userID, ebookID,
	).Scan(&note.ID, &note.UserID, &note.EbookID, &note.Content)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ebook note: %w", err)
	}

	return note, nil
}

// ListByUserID はユーザーの全メモを返す。
func (r *PostgresEbookNoteRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.EbookNote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, ebook_id, content
		 FROM ebook_notes
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ebook notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.EbookNote
	for rows.Next() {
		note := &model.EbookNote{}
		if err := rows.Scan(&note.ID, &note.UserID, &note.EbookID, &note.Content); err != nil {
			return nil, fmt.Errorf("failed to scan ebook note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ebook notes: %w", err)
	}

	return notes, nil
}

// Upsert はメモを作成または更新する。
func (r *PostgresEbookNoteRepo) Upsert(ctx context.Context, note *model.EbookNote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ebook_notes (user_id, ebook_id, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, ebook_id) DO UPDATE SET content = EXCLUDED.content`,
		note.UserID, note.EbookID, note.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ebook note: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ CourseNoteRepository = (*PostgresCourseNoteRepo)(nil)
	_ EbookNoteRepository  = (*PostgresEbookNoteRepo)(nil)
)
