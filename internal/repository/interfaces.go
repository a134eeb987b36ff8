// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/gleh/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername は指定ユーザー名のユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はプロフィール項目（about_me, gender, pronouns）を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateAvatar はアバターのファイル名を更新する。
	UpdateAvatar(ctx context.Context, userID int64, avatar string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// CourseRepository は講座データの読み取りインターフェース。
// レコードの作成・更新は外部の取り込みスクリプトが担う。
type CourseRepository interface {
	// ListAll は全講座を取得する。
	ListAll(ctx context.Context) ([]*model.Course, error)

	// FindByUID は指定UIDの講座を取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Course, error)
}

// CourseProgressRepository は講座進捗の永続化インターフェース。
type CourseProgressRepository interface {
	// ListByUserID はユーザーの全進捗を返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.CourseProgress, error)

	// Upsert は進捗を作成または更新する（ユーザーと講座の組につき1レコード）。
	Upsert(ctx context.Context, progress *model.CourseProgress) error
}

// CourseNoteRepository は講座メモの永続化インターフェース。
type CourseNoteRepository interface {
	// FindByUserAndCourse はユーザーと講座の組のメモを取得する。見つからない場合はnilを返す。
	FindByUserAndCourse(ctx context.Context, userID, courseID int64) (*model.CourseNote, error)

	// ListByUserID はユーザーの全メモを返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.CourseNote, error)

	// Upsert はメモを作成または更新する。
	Upsert(ctx context.Context, note *model.CourseNote) error
}

// EbookNoteRepository は電子書籍メモの永続化インターフェース。
type EbookNoteRepository interface {
	// FindByUserAndEbook はユーザーと電子書籍の組のメモを取得する。見つからない場合はnilを返す。
	FindByUserAndEbook(ctx context.Context, userID int64, ebookID string) (*model.EbookNote, error)

	// ListByUserID はユーザーの全メモを返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.EbookNote, error)

	// Upsert はメモを作成または更新する。
	Upsert(ctx context.Context, note *model.EbookNote) error
}

// EbookReadingProgressRepository は電子書籍の閲覧進捗の永続化インターフェース。
type EbookReadingProgressRepository interface {
	// ListByUserID はユーザーの全閲覧進捗を返す。
	ListByUserID(ctx context.Context, userID int64) ([]*model.EbookReadingProgress, error)

	// Touch は閲覧進捗を作成（status=in_progress）または最終閲覧日時を更新する。
	Touch(ctx context.Context, userID int64, ebookID string) error
}
