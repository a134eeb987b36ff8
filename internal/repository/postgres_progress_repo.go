package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/gleh/internal/model"
)

// PostgresCourseProgressRepo はPostgreSQLを使用した講座進捗リポジトリ。
type PostgresCourseProgressRepo struct {
	db *sql.DB
}

// NewPostgresCourseProgressRepo はPostgresCourseProgressRepoを生成する。
func NewPostgresCourseProgressRepo(db *sql.DB) *PostgresCourseProgressRepo {
	return &PostgresCourseProgressRepo{db: db}
}

// ListByUserID はユーザーの全進捗を返す。
func (r *PostgresCourseProgressRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.CourseProgress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, course_id, status
		 FROM course_progress
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list course progress: %w", err)
	}
	defer rows.Close()

	var records []*model.CourseProgress
	for rows.Next() {
		p := &model.CourseProgress{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.CourseID, &p.Status); err != nil {
			return nil, fmt.Errorf("failed to scan course progress: %w", err)
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate course progress: %w", err)
	}

	return records, nil
}

// Upsert は進捗を作成または更新する。
// (user_id, course_id)のユニーク制約を利用したON CONFLICT更新。
func (r *PostgresCourseProgressRepo) Upsert(ctx context.Context, progress *model.CourseProgress) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO course_progress (user_id, course_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, course_id) DO UPDATE SET status = EXCLUDED.status`,
		progress.UserID, progress.CourseID, progress.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert course progress: %w", err)
	}
	return nil
}

// PostgresEbookReadingProgressRepo はPostgreSQLを使用した電子書籍閲覧進捗リポジトリ。
type PostgresEbookReadingProgressRepo struct {
	db *sql.DB
}

// NewPostgresEbookReadingProgressRepo はPostgresEbookReadingProgressRepoを生成する。
func NewPostgresEbookReadingProgressRepo(db *sql.DB) *PostgresEbookReadingProgressRepo {
	return &PostgresEbookReadingProgressRepo{db: db}
}

// ListByUserID はユーザーの全閲覧進捗を返す。
func (r *PostgresEbookReadingProgressRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.EbookReadingProgress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, ebook_id, status, progress_percent, last_read
		 FROM ebook_reading_progress
		 WHERE user_id = $1
		 ORDER BY last_read DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reading progress: %w", err)
	}
	defer rows.Close()

	var records []*model.EbookReadingProgress
	for rows.Next() {
		p := &model.EbookReadingProgress{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.EbookID, &p.Status, &p.ProgressPercent, &p.LastRead); err != nil {
			return nil, fmt.Errorf("failed to scan reading progress: %w", err)
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reading progress: %w", err)
	}

	return records, nil
}

// Touch は閲覧進捗を作成（status=in_progress）または最終閲覧日時を更新する。
func (r *PostgresEbookReadingProgressRepo) Touch(ctx context.Context, userID int64, ebookID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ebook_reading_progress (user_id, ebook_id, status, last_read)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, ebook_id) DO UPDATE SET last_read = now()`,
		userID, ebookID, model.ReadingInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to touch reading progress: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ CourseProgressRepository       = (*PostgresCourseProgressRepo)(nil)
	_ EbookReadingProgressRepository = (*PostgresEbookReadingProgressRepo)(nil)
)
