// Package model はドメインモデルを定義する。
package model

import "time"

// User はポータルの利用ユーザーを表す。
// PasswordHashにはbcryptハッシュを格納する。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool

	// プロフィール項目
	Avatar    string
	AboutMe   string
	Gender    string
	Pronouns  string
	CreatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは暗号的に安全なランダム値で、HTTP Only Cookieに格納される。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
