package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/gleh/internal/model"
)

// AuthLimiter はキー（クライアントIP）ごとの試行回数制限のインターフェース。
// チェックと記録はキーごとにアトミックに行われる。分散バックエンドへの
// 差し替えはこのインターフェースの実装を入れ替えることで行う。
type AuthLimiter interface {
	// Allow は試行を許可するかを判定し、許可する場合は試行を記録する。
	// 拒否する場合は再試行までの推奨秒数を返す。
	Allow(key string) (allowed bool, retryAfter time.Duration)
}

// SlidingWindowConfig はスライディングウィンドウ制限の設定。
type SlidingWindowConfig struct {
	Limit           int           // ウィンドウ内で許可する最大試行数
	Window          time.Duration // 直近の観測期間
	CleanupInterval time.Duration // 空エントリのクリーンアップ間隔
}

// DefaultSlidingWindowConfig は認証エンドポイント向けのデフォルト設定を返す。
// 要件: 直近60秒間にIPあたり5回まで。
func DefaultSlidingWindowConfig(limit int) SlidingWindowConfig {
	return SlidingWindowConfig{
		Limit:           limit,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// SlidingWindowLimiter はAuthLimiterのインメモリ実装。
// キーごとに試行タイムスタンプのキューを保持し、判定のたびに
// ウィンドウ外の古いタイムスタンプを破棄する。
// プロセスをまたぐ共有は行わない（マルチプロセス構成では外部の
// 共有カウンタが必要になる既知の制限）。
type SlidingWindowLimiter struct {
	config SlidingWindowConfig

	mu       sync.Mutex
	attempts map[string][]time.Time

	stopCh chan struct{}
}

var _ AuthLimiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter は新しいSlidingWindowLimiterを生成する。
// バックグラウンドで空キーのクリーンアップを開始する。
func NewSlidingWindowLimiter(config SlidingWindowConfig) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		config:   config,
		attempts: make(map[string][]time.Time),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *SlidingWindowLimiter) Stop() {
	close(l.stopCh)
}

// Allow は試行を許可するかを判定し、許可する場合は現在時刻を記録する。
// 読み取り・判定・記録はロック内で行い、同一IPからの同時リクエストが
// 境界で両方すり抜けることを防ぐ。
func (l *SlidingWindowLimiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()
	cutoff := now.Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// ウィンドウ外の古い試行を破棄する
	recent := l.attempts[key][:0:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.config.Limit {
		l.attempts[key] = recent
		// 最古の試行がウィンドウから外れるまでの時間
		retryAfter := recent[0].Sub(cutoff)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.attempts[key] = append(recent, now)
	return true, 0
}

// KeyCount は現在管理されているキーの数を返す。テストおよびメトリクス用。
func (l *SlidingWindowLimiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

func (l *SlidingWindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は全試行がウィンドウ外になったキーを削除する。
func (l *SlidingWindowLimiter) cleanup() {
	cutoff := time.Now().Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, times := range l.attempts {
		stale := true
		for _, t := range times {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.attempts, key)
		}
	}
}

// AuthLimitMetrics はレート制限による拒否を計測するインターフェース。
type AuthLimitMetrics interface {
	IncRateLimitRejection()
}

// NewAuthRateLimitMiddleware は認証エンドポイント用のレート制限ミドルウェアを返す。
// クライアントIPをキーとし、成功・失敗や入力の正否を問わず全試行を数える。
// 制限超過時はRetry-Afterヘッダ付きの統一JSON 429を返す。
func NewAuthRateLimitMiddleware(limiter AuthLimiter, metrics AuthLimitMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			allowed, retryAfter := limiter.Allow(ip)
			if !allowed {
				slog.Warn("auth_rate_limit_exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				if metrics != nil {
					metrics.IncRateLimitRejection()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.5)))
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はリクエスト元のIPアドレスを返す。ポート番号は除去する。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
