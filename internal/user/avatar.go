package user

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	// アバター検証で許可する画像フォーマットのデコーダ登録
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/hitoshi/gleh/internal/repository"
)

// 画像爆弾（展開後に巨大になる画像）対策の上限ピクセル数。
const (
	maxImageWidth  = 4096
	maxImageHeight = 4096
)

// UploadError はアバターアップロードの検証失敗を表す。
// Reasonはそのままユーザーに提示できる文言を持つ。
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string {
	return e.Reason
}

// allowedFormats は拡張子と画像フォーマットの対応。
// SVGはスクリプト埋め込みが可能なため許可しない。
var allowedFormats = map[string]string{
	"png":  "png",
	"jpg":  "jpeg",
	"jpeg": "jpeg",
	"gif":  "gif",
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// AvatarService はアバター画像の検証・保存を提供する。
type AvatarService struct {
	userRepo repository.UserRepository
	dir      string
	maxSize  int64
	logger   *slog.Logger
}

// NewAvatarService はAvatarServiceを生成する。
func NewAvatarService(userRepo repository.UserRepository, dir string, maxSize int64, logger *slog.Logger) *AvatarService {
	return &AvatarService{
		userRepo: userRepo,
		dir:      dir,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// Upload はアバター画像を検証して保存し、配信用URLを返す。
// 検証失敗は*UploadErrorとして返す。
func (s *AvatarService) Upload(ctx context.Context, userID int64, filename string, data []byte) (string, error) {
	if err := s.validate(userID, filename, data); err != nil {
		return "", err
	}

	stored := fmt.Sprintf("%d_%s", userID, sanitizeFilename(filename))

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("アバターディレクトリの作成に失敗: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, stored), data, 0o644); err != nil {
		return "", fmt.Errorf("アバターファイルの保存に失敗: %w", err)
	}

	if err := s.userRepo.UpdateAvatar(ctx, userID, stored); err != nil {
		return "", fmt.Errorf("アバターの更新に失敗: %w", err)
	}

	s.logger.Info("image_upload_success",
		slog.String("filename", stored),
		slog.Int("file_size_bytes", len(data)),
		slog.Int64("user_id", userID),
	)
	return "/avatars/" + stored, nil
}

// Resolve はアバターのファイル名から配信対象のローカルパスを返す。
// ファイルが存在しない場合は第2戻り値がfalseになる。
func (s *AvatarService) Resolve(filename string) (string, bool) {
	path := filepath.Join(s.dir, sanitizeFilename(filename))
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (s *AvatarService) validate(userID int64, filename string, data []byte) error {
	ext := fileExtension(filename)
	wantFormat, ok := allowedFormats[ext]
	if !ok {
		s.logger.Warn("image_upload_rejected",
			slog.String("filename", filename),
			slog.String("reason", "invalid_file_type"),
			slog.Int64("user_id", userID),
		)
		return &UploadError{Reason: "許可されていないファイル形式です。使用可能: png, jpg, jpeg, gif"}
	}

	if int64(len(data)) > s.maxSize {
		s.logger.Warn("image_upload_rejected",
			slog.String("filename", filename),
			slog.String("reason", "exceeds_size_limit"),
			slog.Int("file_size_bytes", len(data)),
			slog.Int64("max_size_bytes", s.maxSize),
			slog.Int64("user_id", userID),
		)
		return &UploadError{Reason: fmt.Sprintf("ファイルが大きすぎます。最大%dMBまでです。", s.maxSize/(1024*1024))}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &UploadError{Reason: "画像ファイルが不正または破損しています。"}
	}
	if format != wantFormat {
		return &UploadError{Reason: "ファイルの拡張子と画像フォーマットが一致しません。"}
	}
	if cfg.Width > maxImageWidth || cfg.Height > maxImageHeight {
		return &UploadError{Reason: fmt.Sprintf("画像サイズが大きすぎます。最大%dx%dピクセルまでです。", maxImageWidth, maxImageHeight)}
	}

	return nil
}

func fileExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// sanitizeFilename はパス区切りや危険な文字を除去したファイル名を返す。
func sanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	return strings.Trim(base, "._")
}
