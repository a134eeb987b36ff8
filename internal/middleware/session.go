// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gleh/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey    = contextKey("user")
	sessionContextKey = contextKey("session_id")
)

// IdentityResolver はセッションIDから現在のユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type IdentityResolver interface {
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 認証済みユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには統一フォーマットの401を返す。
func NewSessionMiddleware(resolver IdentityResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, sessionID := resolveIdentity(r, resolver)
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), user, sessionID)))
		})
	}
}

// NewOptionalSessionMiddleware は有効なセッションがあればユーザーを
// コンテキストに注入し、なければ未認証のままリクエストを通すミドルウェアを返す。
// 認証の有無で応答内容が変わる公開エンドポイントで使用する。
func NewOptionalSessionMiddleware(resolver IdentityResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, sessionID := resolveIdentity(r, resolver)
			if user != nil {
				r = r.WithContext(contextWithIdentity(r.Context(), user, sessionID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolveIdentity はCookieのセッションIDからユーザーを解決する。
// セッションが無効・期限切れ・検索失敗の場合はnilを返す（エラーにしない）。
func resolveIdentity(r *http.Request, resolver IdentityResolver) (*model.User, string) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ""
	}

	user, err := resolver.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("セッションの解決に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, ""
	}
	return user, cookie.Value
}

func contextWithIdentity(ctx context.Context, user *model.User, sessionID string) context.Context {
	RecordUserID(ctx, user.ID)
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
// ログアウト処理で使用する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithUser はコンテキストにユーザーとセッションIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User, sessionID string) context.Context {
	return contextWithIdentity(ctx, user, sessionID)
}
