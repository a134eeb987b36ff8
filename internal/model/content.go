package model

// RemoteBook はリモートカタログ（OPDSフィード）から取得した電子書籍を表す。
// フィード取得のたびに再構築されるエフェメラルなデータで、永続化しない。
// IDはフィードのリンクから抽出できた場合のみ有効で、抽出できないエントリは
// パース段階で破棄される。
type RemoteBook struct {
	ID          int    // カタログ側が採番した数値ID
	UID         string // "calibre-<ID>" 形式の派生ID
	Title       string
	Author      string   // 著者名を", "で連結した表示用文字列
	Authors     []string // フィード出現順の著者名
	CoverURL    string
	ReaderURL   string
	Categories  []string
	Description string
	Published   string // フィード記載の出版日時（文字列のまま保持）
}

// ContentType は統合コンテンツ一覧の項目種別。
type ContentType string

const (
	ContentTypeCourse ContentType = "course"
	ContentTypeEbook  ContentType = "ebook"
)

// ContentItem はローカル講座とリモート電子書籍を統合した一覧項目。
// 認証済みユーザーの場合のみUserProgress/UserNoteが設定される。
type ContentItem struct {
	Type        ContentType `json:"type"`
	UID         string      `json:"uid"`
	Title       string      `json:"title"`
	Path        string      `json:"path"`
	Description string      `json:"description,omitempty"`
	Categories  []string    `json:"categories"`

	// 講座のみ
	Thumbnail    string `json:"thumbnail,omitempty"`
	UserProgress string `json:"user_progress,omitempty"`
	UserNote     string `json:"user_note,omitempty"`

	// 電子書籍のみ
	Author    string `json:"author,omitempty"`
	ReaderURL string `json:"reader_url,omitempty"`
	CoverPath string `json:"cover_path,omitempty"`
}
