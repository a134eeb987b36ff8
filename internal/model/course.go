package model

import "time"

// Course はローカルに取り込まれた動画講座を表す。
// レコードは外部の取り込みスクリプトが作成・更新し、本体からは読み取り専用。
type Course struct {
	ID          int64
	UID         string // 取り込み元識別子の安定ハッシュ
	Title       string
	Path        string
	Description string
	Categories  []string // DB上はカンマ区切り文字列
	Thumbnail   string
}

// CourseProgress はユーザーごとの講座進捗を表す。
// ユーザーと講座の組につき1レコード。
type CourseProgress struct {
	ID       int64
	UserID   int64
	CourseID int64
	Status   string // "Not Started", "In Progress", "Completed"
}

// CourseNote はユーザーごとの講座メモを表す。
// ユーザーと講座の組につき1レコード。
type CourseNote struct {
	ID       int64
	UserID   int64
	CourseID int64
	Content  string
}

// EbookNote はリモートカタログの電子書籍に対するユーザーメモを表す。
// EbookIDはカタログ由来のUID（例: "calibre-4"）。
type EbookNote struct {
	ID      int64
	UserID  int64
	EbookID string
	Content string
}

// EbookReadingProgress は電子書籍の閲覧進捗を表す。
// 閲覧ページを開いた時点で作成され、以降は最終閲覧日時を更新する。
type EbookReadingProgress struct {
	ID              int64
	UserID          int64
	EbookID         string
	Status          string // "in_progress", "completed"
	ProgressPercent int    // 0-100
	LastRead        time.Time
}

// 進捗ステータスのデフォルト値
const (
	ProgressNotStarted = "Not Started"
	ReadingInProgress  = "in_progress"
)
