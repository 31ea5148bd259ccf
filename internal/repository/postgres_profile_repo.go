package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/toolvault/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUID は指定UIDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, display_name, auth_method, role_admin, role_client, created_at, updated_at
		 FROM profiles WHERE uid = $1`, uid,
	).Scan(
		&profile.UID, &profile.Email, &profile.DisplayName, &profile.AuthMethod,
		&profile.Roles.Admin, &profile.Roles.Client, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// Upsert はプロフィールを作成または更新する。既存行のロールフラグは保持される。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, email, display_name, auth_method, role_admin, role_client, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (uid) DO UPDATE
		 SET email = EXCLUDED.email,
		     display_name = EXCLUDED.display_name,
		     auth_method = EXCLUDED.auth_method,
		     updated_at = EXCLUDED.updated_at`,
		profile.UID, profile.Email, profile.DisplayName, profile.AuthMethod,
		profile.Roles.Admin, profile.Roles.Client, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// UpdateFields はメールアドレスと表示名のみを更新する。
func (r *PostgresProfileRepo) UpdateFields(ctx context.Context, uid, email, displayName string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET email = $2, display_name = $3, updated_at = now() WHERE uid = $1`,
		uid, email, displayName,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile fields: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", uid)
	}
	return nil
}

// ExistsByEmail は指定メールアドレスのプロフィールが存在するか確認する。
func (r *PostgresProfileRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check profile email: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
