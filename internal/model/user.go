// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// AuthMethod はユーザーの認証方法を表す。
type AuthMethod string

const (
	// AuthMethodEmail はメールアドレス＋パスワード認証を示す。
	AuthMethodEmail AuthMethod = "email"
	// AuthMethodGoogle はGoogle OAuthによる認証を示す。
	AuthMethodGoogle AuthMethod = "google"
)

// IsValidAuthMethod は認証方法が有効かどうかを判定する。
func IsValidAuthMethod(m AuthMethod) bool {
	return m == AuthMethodEmail || m == AuthMethodGoogle
}

// User はIDプロバイダー側のユーザーアイデンティティを表す。
// EmailVerifiedフラグはIDプロバイダーが所有し、本システムからは読み取り専用として扱う。
type User struct {
	UID           string
	Email         string
	PasswordHash  string // Google認証のみのユーザーは空
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	PendingEmail  string // verify-before-update中の新メールアドレス
	AuthMethod    AuthMethod
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Roles はユーザーのロールフラグを表す。
// ストア境界で検証された値として扱い、緩い型のままでは流通させない。
type Roles struct {
	Admin  bool
	Client bool
}

// Profile はドキュメントストアにミラーリングされるユーザープロファイルを表す。
// アイデンティティの書き込みとは独立した呼び出しで書き込まれる（非アトミック）。
type Profile struct {
	UID         string
	Email       string
	DisplayName string
	AuthMethod  AuthMethod
	Roles       Roles
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Initial は表示名の頭文字を大文字で返す。表示名が空の場合は空文字を返す。
func (p *Profile) Initial() string {
	if p.DisplayName == "" {
		return ""
	}
	return strings.ToUpper(p.DisplayName[:1])
}

// Identity は外部IdPとの紐付け情報を表す。
// 現在はGoogleのみだが、複数のIdPに対応可能な構造。
type Identity struct {
	ID             string
	UID            string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UID       string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenKind はワンショットトークンの用途を表す。
type TokenKind string

const (
	// TokenKindVerifyEmail はメールアドレス確認用トークン。
	TokenKindVerifyEmail TokenKind = "verify_email"
	// TokenKindResetPassword はパスワード再設定用トークン。
	TokenKindResetPassword TokenKind = "reset_password"
	// TokenKindChangeEmail はメールアドレス変更確認用トークン。
	// Payloadに変更先メールアドレスを保持する。
	TokenKindChangeEmail TokenKind = "change_email"
)

// Token はメール確認・パスワード再設定などのワンショットトークンを表す。
// 消費済み（ConsumedAtが非nil）または期限切れのトークンは無効。
type Token struct {
	ID         string
	UID        string
	Kind       TokenKind
	Payload    string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
