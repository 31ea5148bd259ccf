// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/toolvault/internal/model"
)

// UserRepository はユーザーアイデンティティの永続化インターフェース。
type UserRepository interface {
	// FindByUID は指定UIDのユーザーを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// OAuthでの初回ログイン時に使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// Update はユーザーの可変フィールド（表示名、写真URL、メール、確認フラグ、
	// 保留中メール、パスワードハッシュ）を更新する。
	Update(ctx context.Context, user *model.User) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// ProfileRepository はミラーリングされたプロファイルドキュメントの永続化インターフェース。
// ロールフラグはここで読み書きされ、境界で検証済みのmodel.Rolesとして返される。
type ProfileRepository interface {
	// FindByUID は指定UIDのプロファイルを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Profile, error)

	// Upsert はプロファイルを書き込む。既存の場合はロールフラグを保持したまま
	// その他のフィールドを上書きする（サインアップ時の既存ロール維持と同じ挙動）。
	Upsert(ctx context.Context, profile *model.Profile) error

	// UpdateFields はメール・表示名のみを更新する（プロファイル同期用）。
	UpdateFields(ctx context.Context, uid, email, displayName string) error

	// ExistsByEmail は指定メールアドレスのプロファイルが存在するかを返す。
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUID は指定ユーザーの全セッションを削除する。
	DeleteByUID(ctx context.Context, uid string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenRepository はワンショットトークンの永続化インターフェース。
type TokenRepository interface {
	// Create はトークンを作成する。
	Create(ctx context.Context, token *model.Token) error

	// Consume は未消費かつ有効期限内のトークンを原子的に消費済みにし、
	// そのトークンを返す。無効なトークンの場合はnilを返す。
	Consume(ctx context.Context, id string, kind model.TokenKind) (*model.Token, error)

	// DeleteExpired は期限切れまたは消費済みのトークンを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ToolRepository はカタログツールの永続化インターフェース。
type ToolRepository interface {
	// List は全ツールを作成日時昇順で返す。
	List(ctx context.Context) ([]*model.Tool, error)

	// FindByID は指定IDのツールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Tool, error)

	// Create はツールレコードを作成する。
	Create(ctx context.Context, tool *model.Tool) error

	// Update はツールレコード全体を上書き更新する（last-writer-wins）。
	Update(ctx context.Context, tool *model.Tool) error

	// Delete は指定IDのツールレコードを削除する。
	Delete(ctx context.Context, id string) error
}
