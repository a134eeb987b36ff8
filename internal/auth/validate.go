package auth

import (
	"fmt"
	"regexp"
)

// ValidationError は登録入力の検証失敗を表す。
// Reasonはそのままユーザーに提示できる文言を持つ。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	hasLetter       = regexp.MustCompile(`[A-Za-z]`)
	hasNumber       = regexp.MustCompile(`[0-9]`)
)

// ValidateUsername はユーザー名の形式を検証する。
// 英数字・アンダースコア・ハイフンのみを許可する。
func ValidateUsername(username string, minLen, maxLen int) error {
	if username == "" {
		return &ValidationError{Reason: "ユーザー名は必須です。"}
	}
	if len(username) < minLen {
		return &ValidationError{Reason: fmt.Sprintf("ユーザー名は%d文字以上にしてください。", minLen)}
	}
	if len(username) > maxLen {
		return &ValidationError{Reason: fmt.Sprintf("ユーザー名は%d文字以内にしてください。", maxLen)}
	}
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Reason: "ユーザー名に使用できるのは英数字・アンダースコア・ハイフンのみです。"}
	}
	return nil
}

// ValidatePassword はパスワードの強度を検証する。
// 最低長に加えて、英字と数字を各1文字以上要求する。
func ValidatePassword(password string, minLen int) error {
	if password == "" {
		return &ValidationError{Reason: "パスワードは必須です。"}
	}
	if len(password) < minLen {
		return &ValidationError{Reason: fmt.Sprintf("パスワードは%d文字以上にしてください。", minLen)}
	}
	if !hasLetter.MatchString(password) {
		return &ValidationError{Reason: "パスワードには英字を1文字以上含めてください。"}
	}
	if !hasNumber.MatchString(password) {
		return &ValidationError{Reason: "パスワードには数字を1文字以上含めてください。"}
	}
	return nil
}
