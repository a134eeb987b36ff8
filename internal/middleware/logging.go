package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// userAgentMaxLen はログに記録するUser-Agentの最大長。
const userAgentMaxLen = 100

// logIdentity は後続のミドルウェアが解決したユーザーIDを完了ログへ
// 届けるためのリクエスト単位の入れ物。コンテキスト値は派生リクエスト
// にしか伝播しないため、ポインタ経由で書き戻す。
type logIdentity struct {
	userID int64
}

var logIdentityContextKey = contextKey("log_identity")

// RecordUserID は解決済みのユーザーIDをリクエストログに記録する。
// ロギングミドルウェアを通過していないコンテキストでは何もしない。
func RecordUserID(ctx context.Context, userID int64) {
	if id, ok := ctx.Value(logIdentityContextKey).(*logIdentity); ok {
		id.userID = userID
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードと
// 書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	written      bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytesWritten += int64(n)
	return n, err
}

// responseSize はレスポンスのバイト数を返す。
// ストリーミング応答でハンドラがContent-Lengthを設定している場合は
// そちらを優先する（バッファリングの強制を避けるため）。
func (sr *statusRecorder) responseSize() int64 {
	if cl := sr.Header().Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return size
		}
	}
	return sr.bytesWritten
}

// NewLoggingMiddleware はリクエスト単位のJSON構造化ログを出力するミドルウェアを返す。
// リクエスト開始時に相関IDを生成してrequest_receivedを、完了時に
// ステータス・レスポンスサイズ・所要時間を含むrequest_completedを出力する。
// 同一リクエストの全イベントは相関IDで紐づく。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()

			reqLogger := logger.With(
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", clientIP(r)),
				slog.String("user_agent", truncate(r.UserAgent(), userAgentMaxLen)),
			)

			reqLogger.Info("request_received")

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			identity := &logIdentity{}
			r = r.WithContext(context.WithValue(r.Context(), logIdentityContextKey, identity))

			next.ServeHTTP(rec, r)

			latencyMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

			attrs := []any{
				slog.Int("status", rec.statusCode),
				slog.Int64("response_size_bytes", rec.responseSize()),
				slog.Float64("latency_ms", latencyMs),
			}
			if identity.userID > 0 {
				attrs = append(attrs, slog.Int64("user_id", identity.userID))
			}

			// ステータスコードに応じてログレベルを変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			reqLogger.Log(r.Context(), level, "request_completed", attrs...)
		})
	}
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
