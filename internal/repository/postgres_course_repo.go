package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/gleh/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用した講座リポジトリ。
// coursesテーブルは外部の取り込みスクリプトが書き込むため、読み取り専用。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

// ListAll は全講座を取得する。
func (r *PostgresCourseRepo) ListAll(ctx context.Context) ([]*model.Course, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, uid, title, path, description, categories, thumbnail
		 FROM courses
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	var courses []*model.Course
	for rows.Next() {
		course, err := scanCourse(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}

	return courses, nil
}

// FindByUID は指定UIDの講座を取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByUID(ctx context.Context, uid string) (*model.Course, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, uid, title, path, description, categories, thumbnail
		 FROM courses
		 WHERE uid = $1`,
		uid,
	)

	course, err := scanCourse(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course by UID: %w", err)
	}

	return course, nil
}

// scanCourse は1行分の講座レコードを読み取る。
// categoriesカラムのカンマ区切り文字列をスライスに展開する。
func scanCourse(scan func(dest ...any) error) (*model.Course, error) {
	course := &model.Course{}
	var categories string
	if err := scan(
		&course.ID, &course.UID, &course.Title, &course.Path,
		&course.Description, &categories, &course.Thumbnail,
	); err != nil {
		return nil, err
	}
	course.Categories = splitCategories(categories)
	return course, nil
}

// splitCategories はカンマ区切りのカテゴリ文字列をスライスに変換する。
// 空文字列は空スライスになる。
func splitCategories(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	categories := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			categories = append(categories, trimmed)
		}
	}
	return categories
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)
