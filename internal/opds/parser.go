// Package opds はCalibre-WebのOPDS（Atom）フィードをパースし、
// RemoteBookのリストに変換する。
//
// パースはエントリ単位のベストエフォートで行う。不正なエントリは
// 警告ログを出してスキップし、フィード全体のパースを中断しない。
package opds

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/atom"

	"github.com/hitoshi/gleh/internal/model"
)

// idStrategy はリンクhrefから数値IDを抽出する戦略。
// Calibre-Webは /opds/cover/4 や /opds/download/7/epub/ のような
// リンクを生成する。エントリIDはUUIDのことがあるため使用しない。
type idStrategy struct {
	name    string
	pattern *regexp.Regexp
}

// idStrategies は抽出戦略の適用順リスト。先に一致した戦略が勝つ。
// 新しいリンク形式への対応は既存の戦略を変更せず、要素を追加する。
var idStrategies = []idStrategy{
	{name: "cover_link", pattern: regexp.MustCompile(`/opds/cover/(\d+)`)},
	{name: "download_link", pattern: regexp.MustCompile(`/opds/download/(\d+)`)},
}

// カバー画像リンクのrel属性値。
const (
	relImage     = "http://opds-spec.org/image"
	relThumbnail = "http://opds-spec.org/image/thumbnail"
)

// Sanitizer は書籍説明文のHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Parser はOPDSフィードのパーサー。
// externalURLはブラウザから到達可能なCalibre-WebのベースURLで、
// ルート相対のカバーURLの書き換えに使用する。
type Parser struct {
	externalURL string
	sanitizer   Sanitizer
	logger      *slog.Logger
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser(externalURL string, sanitizer Sanitizer, logger *slog.Logger) *Parser {
	return &Parser{
		externalURL: strings.TrimRight(externalURL, "/"),
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// Parse はOPDSフィードをパースしてRemoteBookのリストを返す。
// XMLとして不正なフィードのみがエラーになる。個別エントリの不備
// （ID抽出不能など）はそのエントリの破棄に留まる。
func (p *Parser) Parse(r io.Reader) ([]model.RemoteBook, error) {
	ap := &atom.Parser{}
	feed, err := ap.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("OPDSフィードのパースに失敗: %w", err)
	}

	books := make([]model.RemoteBook, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry == nil {
			continue
		}
		book, ok := p.parseEntry(entry)
		if !ok {
			p.logger.Warn("OPDSエントリをスキップしました",
				slog.String("entry_id", entry.ID),
				slog.String("entry_title", entry.Title),
			)
			continue
		}
		books = append(books, book)
	}

	return books, nil
}

// parseEntry は単一のAtomエントリをRemoteBookに変換する。
// リンクから数値IDを抽出できないエントリはアドレス指定不能なため破棄する。
func (p *Parser) parseEntry(entry *atom.Entry) (model.RemoteBook, bool) {
	bookID, ok := extractBookID(entry.Links)
	if !ok {
		return model.RemoteBook{}, false
	}

	title := entry.Title
	if title == "" {
		title = "Unknown Title"
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	authorStr := "Unknown"
	if len(authors) > 0 {
		authorStr = strings.Join(authors, ", ")
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c == nil {
			continue
		}
		// labelを優先し、なければtermを使用する
		if c.Label != "" {
			categories = append(categories, c.Label)
		} else if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	description := entry.Summary
	if description == "" && entry.Content != nil {
		description = entry.Content.Value
	}
	if p.sanitizer != nil {
		description = p.sanitizer.Sanitize(description)
	}

	published := entry.Published
	if published == "" {
		published = entry.Updated
	}

	return model.RemoteBook{
		ID:          bookID,
		UID:         fmt.Sprintf("calibre-%d", bookID),
		Title:       title,
		Author:      authorStr,
		Authors:     authors,
		CoverURL:    p.resolveCoverURL(bookID, entry.Links),
		ReaderURL:   readerURL(bookID),
		Categories:  categories,
		Description: description,
		Published:   published,
	}, true
}

// extractBookID はエントリの全リンクを出現順に走査し、各リンクに対して
// 抽出戦略を順に適用する。最初に一致した数値IDが勝つ。
func extractBookID(links []*atom.Link) (int, bool) {
	for _, link := range links {
		if link == nil {
			continue
		}
		for _, s := range idStrategies {
			m := s.pattern.FindStringSubmatch(link.Href)
			if m == nil {
				continue
			}
			id, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return id, true
		}
	}
	return 0, false
}

// resolveCoverURL はカバー画像のURLを決定する。
// 画像rel属性を持つ最初のリンクを採用し、絶対URLはそのまま、
// ルート相対URLは外部到達可能ベースURLに対して書き換える。
// 画像リンクがない場合はローカルのカバープロキシURLにフォールバックする。
func (p *Parser) resolveCoverURL(bookID int, links []*atom.Link) string {
	for _, link := range links {
		if link == nil {
			continue
		}
		if link.Rel != relImage && link.Rel != relThumbnail {
			continue
		}
		href := link.Href
		switch {
		case strings.HasPrefix(href, "http"):
			return href
		case strings.HasPrefix(href, "/"):
			return p.externalURL + href
		}
		break
	}
	return CoverProxyURL(bookID)
}

// CoverProxyURL は書籍IDからローカルのカバープロキシURLを構築する。
// カバー画像を直接リンクするとブラウザにクロスオリジン認証情報が
// 必要になるため、自サーバー経由で配信する。
func CoverProxyURL(bookID int) string {
	return fmt.Sprintf("/api/calibre/cover/%d", bookID)
}

// readerURL は書籍IDからリーダーURLを構築する。
// nginxのプロキシパス経由でCalibre-Webのリーダーを開く。
func readerURL(bookID int) string {
	return fmt.Sprintf("/calibre-web/read/%d/epub", bookID)
}
