package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gleh/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	IdentityResolver  middleware.IdentityResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	AuthLimiter       middleware.AuthLimiter
	AuthLimitMetrics  middleware.AuthLimitMetrics
	RateLimiter       *middleware.RateLimiter
	MetricsMiddleware func(next http.Handler) http.Handler

	// ハンドラー
	AuthHandler     *AuthHandler
	ContentHandler  *ContentHandler
	CourseHandler   *CourseHandler
	TextbookHandler *TextbookHandler
	ProfileHandler  *ProfileHandler
	HealthHandler   *HealthHandler

	// /metrics エンドポイント
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Logging → CSRF
//
// CSRFは認証レート制限より前に評価されるため、CSRF検証に失敗した
// リクエストはレート制限の試行回数を消費しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.MetricsMiddleware != nil {
		r.Use(deps.MetricsMiddleware)
	}
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	optionalSession := middleware.NewOptionalSessionMiddleware(deps.IdentityResolver)
	requireSession := middleware.NewSessionMiddleware(deps.IdentityResolver)
	authLimit := middleware.NewAuthRateLimitMiddleware(deps.AuthLimiter, deps.AuthLimitMetrics)

	// --- 運用エンドポイント ---

	r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	r.Get("/health", deps.HealthHandler.Health)
	r.Get("/health/deep", deps.HealthHandler.HealthDeep)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---

	// 認証エンドポイント（IP単位のスライディングウィンドウレート制限を適用）
	r.With(authLimit).Post("/api/register", deps.AuthHandler.Register)
	r.With(authLimit).Post("/api/login", deps.AuthHandler.Login)

	// セッションがあればユーザー固有の情報を重ねるルート
	r.Group(func(r chi.Router) {
		r.Use(optionalSession)

		r.Get("/api/check_session", deps.AuthHandler.CheckSession)
		r.Get("/api/content", deps.ContentHandler.ListContent)
		r.Get("/api/textbook/{id}", deps.TextbookHandler.GetTextbook)
	})

	r.Get("/api/course/{uid}", deps.CourseHandler.GetCourse)
	r.Get("/api/calibre/cover/{id}", deps.TextbookHandler.ProxyCover)
	r.Get("/avatars/{filename}", deps.ProfileHandler.ServeAvatar)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/logout", deps.AuthHandler.Logout)

		r.Get("/api/course/{uid}/note", deps.CourseHandler.GetNote)
		r.Post("/api/course/note", deps.CourseHandler.SaveNote)
		r.Post("/api/course/progress", deps.CourseHandler.UpdateProgress)

		r.Get("/api/textbook/{id}/note", deps.TextbookHandler.GetNote)
		r.Post("/api/textbook/note", deps.TextbookHandler.SaveNote)

		r.Get("/api/profile", deps.ProfileHandler.GetProfile)
		r.Post("/api/profile", deps.ProfileHandler.UpdateProfile)
		r.Post("/api/profile/avatar", deps.ProfileHandler.UploadAvatar)
	})

	return r
}
