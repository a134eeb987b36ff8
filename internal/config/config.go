// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Calibre-Web（リモートカタログ）
	CalibreWebURL         string // サーバー間通信用のベースURL（Docker内部ホスト名等）
	CalibreWebExternalURL string // ブラウザから到達可能なURL
	CalibreWebUsername    string
	CalibreWebPassword    string
	CatalogTimeout        time.Duration
	FeaturedBooksCount    int

	// Session
	SessionMaxAge int

	// Auth
	AuthRateLimit     int // 認証エンドポイントの毎分試行上限（IP単位）
	RateLimitGeneral  int // API全般の毎分リクエスト上限（ユーザー単位）
	MinUsernameLength int
	MaxUsernameLength int
	MinPasswordLength int

	// Upload
	MaxUploadSize int64
	AvatarDir     string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す（本番でのサイレントなデフォルト禁止）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.CalibreWebURL = os.Getenv("CALIBRE_WEB_URL")
	if cfg.CalibreWebURL == "" {
		missing = append(missing, "CALIBRE_WEB_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CalibreWebExternalURL = getEnvString("CALIBRE_WEB_EXTERNAL_URL", cfg.CalibreWebURL)
	cfg.CalibreWebUsername = os.Getenv("CALIBRE_WEB_USERNAME")
	cfg.CalibreWebPassword = os.Getenv("CALIBRE_WEB_PASSWORD")
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 10*time.Second)
	cfg.FeaturedBooksCount = getEnvInt("FEATURED_BOOKS_COUNT", 100)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.AuthRateLimit = getEnvInt("AUTH_RATE_LIMIT", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.MinUsernameLength = getEnvInt("MIN_USERNAME_LENGTH", 3)
	cfg.MaxUsernameLength = getEnvInt("MAX_USERNAME_LENGTH", 64)
	cfg.MinPasswordLength = getEnvInt("MIN_PASSWORD_LENGTH", 8)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 5242880)
	cfg.AvatarDir = getEnvString("AVATAR_DIR", "./data/avatars")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
