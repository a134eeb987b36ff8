// Package auth はパスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gleh/internal/model"
	"github.com/hitoshi/gleh/internal/repository"
)

// ErrInvalidCredentials はユーザー名またはパスワードの不一致を示す。
// どちらが誤っていたかは意図的に区別しない（ユーザー名列挙攻撃の防止）。
var ErrInvalidCredentials = errors.New("ユーザー名またはパスワードが正しくありません")

// ErrUsernameTaken はユーザー名が既に使用されていることを示す。
var ErrUsernameTaken = errors.New("このユーザー名は既に使用されています")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge     int // セッション有効期間（秒）
	MinUsernameLength int
	MaxUsernameLength int
	MinPasswordLength int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		logger:      logger,
	}
}

// Register は新規ユーザーを登録する。
// 入力検証の失敗は*ValidationError、ユーザー名の重複はErrUsernameTakenを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	if err := ValidateUsername(username, s.config.MinUsernameLength, s.config.MaxUsernameLength); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password, s.config.MinPasswordLength); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザー検索に失敗: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザー作成に失敗: %w", err)
	}

	s.logger.Info("user_registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login は資格情報を検証し、セッションを発行する。
// 存在しないユーザー名と不正なパスワードは同一のErrInvalidCredentialsになる。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザー検索に失敗: %w", err)
	}
	if user == nil || !VerifyPassword(user.PasswordHash, password) {
		s.logger.Warn("user_login_failed",
			slog.String("username", username),
			slog.String("reason", "invalid_credentials"),
		)
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("user_login_success",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, session, nil
}

// Logout はセッションを即時に破棄する。
// 以後、同じクッキーを持つリクエストは未認証として扱われる。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッション削除に失敗: %w", err)
	}
	s.logger.Info("user_logged_out", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションIDから現在のユーザーを取得する。
// セッションが存在しない・期限切れ・ユーザーが消えている場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッション検索に失敗: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー検索に失敗: %w", err)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("セッションID生成に失敗: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッション保存に失敗: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
