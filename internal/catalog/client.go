// Package catalog はCalibre-WebのOPDSフィードに対するHTTPクライアントを提供する。
//
// クライアントはプロセス起動時に一度だけ構築し、ハンドラに注入して
// 共有する。保持するhttp.Clientはコネクションプールを持ち、
// 複数リクエストからの並行利用に対して安全である。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/opds"
)

// ErrBookNotFound はカタログに該当書籍が存在しないことを示す。
// ネットワーク障害（TransportError）とは区別され、呼び出し側は
// errors.Isで判定できる。
var ErrBookNotFound = errors.New("書籍がカタログに存在しません")

// TransportError はカタログへの通信自体の失敗を表す。
// 接続エラー、タイムアウト、HTTPエラーステータス、XML不正を含む。
// NotFoundとは型で区別され、コンテンツ集約側のフェイルオープン判定に使われる。
type TransportError struct {
	Op  string // 失敗した操作名
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("カタログ通信エラー (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// healthCheckTimeout はヘルスチェック専用の短いタイムアウト。
const healthCheckTimeout = 5 * time.Second

// userAgent は全リクエストに付与するUser-Agentヘッダ。
const userAgent = "GLEH/1.0 Calibre-Web OPDS Client"

// Metrics はカタログフェッチの計測のインターフェース。
type Metrics interface {
	ObserveCatalogFetch(duration time.Duration, success bool)
}

// Service はリモートカタログ操作のインターフェース。
type Service interface {
	// ListBooks は新着順の書籍一覧を返す。offset/limitはクライアント側で適用する。
	ListBooks(ctx context.Context, limit, offset int) ([]model.RemoteBook, error)
	// GetBook はIDで書籍を1冊取得する。存在しない場合はErrBookNotFound、
	// 通信失敗の場合は*TransportErrorを返す。
	GetBook(ctx context.Context, bookID int) (*model.RemoteBook, error)
	// SearchBooks はクエリ文字列で書籍を検索する。
	SearchBooks(ctx context.Context, query string, limit int) ([]model.RemoteBook, error)
	// FeaturedBooks はトップページ表示用の新着書籍を返す。
	FeaturedBooks(ctx context.Context, count int) ([]model.RemoteBook, error)
	// FetchCover はカバー画像をストリームで取得する。プロキシ配信用。
	FetchCover(ctx context.Context, bookID int) (io.ReadCloser, string, error)
	// HealthCheck はカタログへの到達性を確認する。
	HealthCheck(ctx context.Context) error
}

// Client はServiceのOPDS実装。
type Client struct {
	baseURL    string // サーバー間通信用
	username   string
	password   string
	httpClient *http.Client
	parser     *opds.Parser
	metrics    Metrics
	logger     *slog.Logger
}

var _ Service = (*Client)(nil)

// NewClient はClientの新しいインスタンスを生成する。
// baseURLはサーバー間通信用、parserに渡した外部URLがブラウザ向け
// リンクの構築に使われる（Docker内部ホスト名と公開ホスト名は異なりうる）。
func NewClient(
	baseURL string,
	username string,
	password string,
	timeout time.Duration,
	parser *opds.Parser,
	metrics Metrics,
	logger *slog.Logger,
) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		parser:  parser,
		metrics: metrics,
		logger:  logger,
	}
}

// ListBooks は /opds/new から新着書籍を取得する。
// Calibre-WebのOPDSはページネーションパラメータを持たないため、
// offset/limitは取得後のスライスに適用する。
func (c *Client) ListBooks(ctx context.Context, limit, offset int) ([]model.RemoteBook, error) {
	books, err := c.fetchFeed(ctx, c.baseURL+"/opds/new", nil)
	if err != nil {
		return nil, err
	}

	if offset >= len(books) {
		return []model.RemoteBook{}, nil
	}
	books = books[offset:]
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

// GetBook はIDで書籍を1冊取得する。
// OPDSにはID指定の取得エンドポイントがないため、最大1000件を取得して
// 線形探索する。カタログ規模からO(n)探索を許容している。
func (c *Client) GetBook(ctx context.Context, bookID int) (*model.RemoteBook, error) {
	books, err := c.ListBooks(ctx, 1000, 0)
	if err != nil {
		return nil, err
	}
	for i := range books {
		if books[i].ID == bookID {
			return &books[i], nil
		}
	}
	return nil, fmt.Errorf("book_id %d: %w", bookID, ErrBookNotFound)
}

// SearchBooks は /opds/search でタイトル・著者等を検索する。
func (c *Client) SearchBooks(ctx context.Context, query string, limit int) ([]model.RemoteBook, error) {
	params := url.Values{}
	params.Set("query", query)

	books, err := c.fetchFeed(ctx, c.baseURL+"/opds/search", params)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

// FeaturedBooks はトップページ表示用の新着書籍を返す。
func (c *Client) FeaturedBooks(ctx context.Context, count int) ([]model.RemoteBook, error) {
	return c.ListBooks(ctx, count, 0)
}

// FetchCover はカバー画像を取得し、ボディのストリームとContent-Typeを返す。
// 呼び出し側がボディをCloseする責任を持つ。
func (c *Client) FetchCover(ctx context.Context, bookID int) (io.ReadCloser, string, error) {
	coverURL := fmt.Sprintf("%s/opds/cover/%d", c.baseURL, bookID)
	req, err := c.newRequest(ctx, coverURL, nil)
	if err != nil {
		return nil, "", &TransportError{Op: "fetch_cover", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &TransportError{Op: "fetch_cover", Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, "", fmt.Errorf("book_id %d のカバー: %w", bookID, ErrBookNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", &TransportError{
			Op:  "fetch_cover",
			Err: fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return resp.Body, contentType, nil
}

// HealthCheck はOPDSルートへのGETでカタログの到達性を確認する。
// 通常のフェッチより短い専用タイムアウトを使用する。
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, c.baseURL+"/opds", nil)
	if err != nil {
		return &TransportError{Op: "health_check", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "health_check", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &TransportError{
			Op:  "health_check",
			Err: fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode),
		}
	}
	return nil
}

// fetchFeed はOPDSフィードを取得してパースする。
// あらゆる失敗は*TransportErrorに分類される。
func (c *Client) fetchFeed(ctx context.Context, rawURL string, params url.Values) ([]model.RemoteBook, error) {
	start := time.Now()

	books, err := c.doFetchFeed(ctx, rawURL, params)
	if c.metrics != nil {
		c.metrics.ObserveCatalogFetch(time.Since(start), err == nil)
	}
	if err != nil {
		c.logger.Error("カタログフィードの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return books, nil
}

func (c *Client) doFetchFeed(ctx context.Context, rawURL string, params url.Values) ([]model.RemoteBook, error) {
	req, err := c.newRequest(ctx, rawURL, params)
	if err != nil {
		return nil, &TransportError{Op: "fetch_feed", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch_feed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Op:  "fetch_feed",
			Err: fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode),
		}
	}

	books, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "parse_feed", Err: err}
	}
	return books, nil
}

// newRequest は共通ヘッダと任意のベーシック認証を付与したGETリクエストを構築する。
func (c *Client) newRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	if params != nil {
		rawURL = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}
