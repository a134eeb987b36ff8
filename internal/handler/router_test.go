package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/model"
)

// mockResolver はmiddleware.IdentityResolverのテスト用実装。
type mockResolver struct {
	sessions map[string]*model.User
}

func (m *mockResolver) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.sessions[sessionID], nil
}

// noopAuthMetrics はAuthLimitMetricsの何もしない実装。
type noopAuthMetrics struct{}

func (noopAuthMetrics) IncRateLimitRejection() {}

// newTestRouter は共通のモック一式でルーターを構築する。
func newTestRouter(t *testing.T, authLimit int) http.Handler {
	t.Helper()

	limiter := middleware.NewSlidingWindowLimiter(middleware.DefaultSlidingWindowConfig(authLimit))
	t.Cleanup(limiter.Stop)

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(120))
	t.Cleanup(rateLimiter.Stop)

	resolver := &mockResolver{sessions: map[string]*model.User{
		"session-abc": {ID: 7, Username: "alice"},
	}}

	logger := discardLogger()
	catalogSvc := &mockCatalogService{books: map[int]*model.RemoteBook{4: sampleBook()}}
	courseSvc := newMockCourseService()
	courseSvc.courses["abc123"] = &model.Course{ID: 1, UID: "abc123", Title: "Go入門"}

	deps := &RouterDeps{
		Logger:            logger,
		IdentityResolver:  resolver,
		CORSAllowedOrigin: "http://localhost:3000",
		CSRFConfig:        middleware.CSRFConfig{},
		AuthLimiter:       limiter,
		AuthLimitMetrics:  noopAuthMetrics{},
		RateLimiter:       rateLimiter,

		AuthHandler: NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{SessionMaxAge: 3600}, nil),
		ContentHandler: NewContentHandler(&mockContentLister{items: []model.ContentItem{
			{Type: model.ContentTypeCourse, UID: "abc123", Title: "Go入門"},
		}}),
		CourseHandler:   NewCourseHandler(courseSvc),
		TextbookHandler: NewTextbookHandler(catalogSvc, &mockEbookNoteStore{}, &mockTracker{}, logger),
		ProfileHandler:  newTestProfileHandler(&mockProfileService{}, &mockAvatarService{}),
		HealthHandler:   NewHealthHandler(&mockPinger{}, &mockChecker{}, logger),
	}

	return NewRouter(deps)
}

func TestRouterPublicRoutes(t *testing.T) {
	router := newTestRouter(t, 5)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/deep", http.StatusOK},
		{http.MethodGet, "/csrf-token", http.StatusOK},
		{http.MethodGet, "/api/content", http.StatusOK},
		{http.MethodGet, "/api/course/abc123", http.StatusOK},
		{http.MethodGet, "/api/textbook/calibre-4", http.StatusOK},
		{http.MethodGet, "/api/check_session", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRouterAuthedRoutesRequireSession(t *testing.T) {
	router := newTestRouter(t, 5)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/profile"},
		{http.MethodGet, "/api/course/abc123/note"},
		{http.MethodGet, "/api/textbook/calibre-4/note"},
	}

	for _, tt := range paths {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRouterSessionFlow(t *testing.T) {
	router := newTestRouter(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/check_session", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"is_authenticated":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// csrfLoginRequest はCSRFトークンを取得した上でログインリクエストを構築する。
func csrfLoginRequest(t *testing.T, router http.Handler, remoteAddr string) *http.Request {
	t.Helper()

	tokenReq := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	tokenRec := httptest.NewRecorder()
	router.ServeHTTP(tokenRec, tokenReq)

	var token string
	for _, c := range tokenRec.Result().Cookies() {
		if c.Name == "csrf_token" {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("CSRFトークンCookieが発行されていない")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username": "alice", "password": "Passw0rd!"}`))
	req.RemoteAddr = remoteAddr
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
	return req
}

func TestRouterLoginWithCSRFToken(t *testing.T) {
	router := newTestRouter(t, 5)

	req := csrfLoginRequest(t, router, "10.0.0.1:50000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterLoginWithoutCSRFTokenRejected(t *testing.T) {
	router := newTestRouter(t, 5)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username": "alice", "password": "Passw0rd!"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "CSRF_TOKEN_INVALID") {
		t.Errorf("エラーコードがCSRF_TOKEN_INVALIDではない: %s", rec.Body.String())
	}
}

// 認証エンドポイントは同一IPからの試行回数をスライディングウィンドウで制限する。
// CSRF検証を通過したリクエストのみが試行回数を消費する。
func TestRouterAuthRateLimit(t *testing.T) {
	router := newTestRouter(t, 3)

	for i := 0; i < 3; i++ {
		req := csrfLoginRequest(t, router, "10.0.0.2:50000")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := csrfLoginRequest(t, router, "10.0.0.2:50000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されていない")
	}
}

// CSRF検証に失敗したリクエストはレート制限の試行回数を消費しない。
func TestRouterCSRFRejectionDoesNotConsumeRateLimit(t *testing.T) {
	router := newTestRouter(t, 2)

	// CSRFトークンなしのリクエストを大量に送る
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username": "alice", "password": "x"}`))
		req.RemoteAddr = "10.0.0.3:50000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	}

	// 正規のCSRFトークン付きリクエストはまだ受け付けられる
	req := csrfLoginRequest(t, router, "10.0.0.3:50000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterSecurityHeaders(t *testing.T) {
	router := newTestRouter(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got == "" {
		t.Error("X-Frame-Optionsが設定されていない")
	}
	if got := rec.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// パニックはリカバリーミドルウェアで500に変換される。
func TestRouterRecoversFromPanic(t *testing.T) {
	limiter := middleware.NewSlidingWindowLimiter(middleware.DefaultSlidingWindowConfig(5))
	t.Cleanup(limiter.Stop)
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(120))
	t.Cleanup(rateLimiter.Stop)

	panicLister := &panicContentLister{}
	deps := &RouterDeps{
		Logger:            discardLogger(),
		IdentityResolver:  &mockResolver{},
		CORSAllowedOrigin: "http://localhost:3000",
		AuthLimiter:       limiter,
		AuthLimitMetrics:  noopAuthMetrics{},
		RateLimiter:       rateLimiter,
		AuthHandler:       NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{}, nil),
		ContentHandler:    NewContentHandler(panicLister),
		CourseHandler:     NewCourseHandler(newMockCourseService()),
		TextbookHandler:   NewTextbookHandler(&mockCatalogService{}, &mockEbookNoteStore{}, &mockTracker{}, discardLogger()),
		ProfileHandler:    newTestProfileHandler(&mockProfileService{}, &mockAvatarService{}),
		HealthHandler:     NewHealthHandler(&mockPinger{}, &mockChecker{}, discardLogger()),
	}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panicContentLister struct{}

func (panicContentLister) List(ctx context.Context, userID int64) ([]model.ContentItem, error) {
	panic(fmt.Errorf("boom"))
}
