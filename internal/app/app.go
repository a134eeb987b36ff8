// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gleh/internal/auth"
	"github.com/hitoshi/gleh/internal/catalog"
	"github.com/hitoshi/gleh/internal/config"
	"github.com/hitoshi/gleh/internal/content"
	"github.com/hitoshi/gleh/internal/course"
	"github.com/hitoshi/gleh/internal/database"
	"github.com/hitoshi/gleh/internal/handler"
	"github.com/hitoshi/gleh/internal/logger"
	"github.com/hitoshi/gleh/internal/metrics"
	"github.com/hitoshi/gleh/internal/middleware"
	"github.com/hitoshi/gleh/internal/opds"
	"github.com/hitoshi/gleh/internal/repository"
	"github.com/hitoshi/gleh/internal/security"
	"github.com/hitoshi/gleh/internal/user"
)

// sessionCleanupInterval は期限切れセッションの削除間隔。
const sessionCleanupInterval = time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	courseRepo := repository.NewPostgresCourseRepo(db)
	progressRepo := repository.NewPostgresCourseProgressRepo(db)
	noteRepo := repository.NewPostgresCourseNoteRepo(db)
	ebookNoteRepo := repository.NewPostgresEbookNoteRepo(db)
	readingRepo := repository.NewPostgresEbookReadingProgressRepo(db)

	// 3. メトリクスコレクターの初期化
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// 4. リモートカタログクライアントの初期化
	sanitizer := security.NewContentSanitizer()
	feedParser := opds.NewParser(cfg.CalibreWebExternalURL, sanitizer, log)
	catalogClient := catalog.NewClient(
		cfg.CalibreWebURL,
		cfg.CalibreWebUsername,
		cfg.CalibreWebPassword,
		cfg.CatalogTimeout,
		feedParser,
		collector,
		log,
	)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge:     cfg.SessionMaxAge,
		MinUsernameLength: cfg.MinUsernameLength,
		MaxUsernameLength: cfg.MaxUsernameLength,
		MinPasswordLength: cfg.MinPasswordLength,
	}, log)

	courseService := course.NewService(courseRepo, progressRepo, noteRepo, log)
	aggregator := content.NewAggregator(
		courseRepo, progressRepo, noteRepo,
		catalogClient, cfg.FeaturedBooksCount, log,
	)
	profileService := user.NewService(
		userRepo, courseRepo, progressRepo, noteRepo,
		ebookNoteRepo, readingRepo, catalogClient, sanitizer, log,
	)
	avatarService := user.NewAvatarService(userRepo, cfg.AvatarDir, cfg.MaxUploadSize, log)

	// 6. レートリミッターの初期化
	authLimiter := middleware.NewSlidingWindowLimiter(
		middleware.DefaultSlidingWindowConfig(cfg.AuthRateLimit))
	defer authLimiter.Stop()

	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            log,
		IdentityResolver:  authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		AuthLimiter:       authLimiter,
		AuthLimitMetrics:  collector,
		RateLimiter:       rateLimiter,
		MetricsMiddleware: collector.Middleware(),

		AuthHandler: handler.NewAuthHandler(authService, handler.AuthHandlerConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
		}, collector),
		ContentHandler:  handler.NewContentHandler(aggregator),
		CourseHandler:   handler.NewCourseHandler(courseService),
		TextbookHandler: handler.NewTextbookHandler(catalogClient, ebookNoteRepo, readingRepo, log),
		ProfileHandler:  handler.NewProfileHandler(profileService, avatarService, cfg.MaxUploadSize, log),
		HealthHandler:   handler.NewHealthHandler(db, catalogClient, log),

		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()

	// 期限切れセッションを定期削除するバックグラウンドジョブ
	go runSessionCleanup(cleanupCtx, sessionRepo, log)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runSessionCleanup は期限切れセッションを定期的に削除する。
// 起動直後に1回実行し、以降は一定間隔で繰り返す。
func runSessionCleanup(ctx context.Context, sessionRepo repository.SessionRepository, log *slog.Logger) {
	cleanup := func() {
		deleted, err := sessionRepo.DeleteExpired(ctx)
		if err != nil {
			log.Error("session_cleanup_failed", slog.String("error", err.Error()))
			return
		}
		if deleted > 0 {
			log.Info("expired_sessions_deleted", slog.Int64("count", deleted))
		}
	}

	cleanup()

	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanup()
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
