package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/toolvault/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用したワンタイムトークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Create はトークンを作成する。
func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (id, uid, kind, payload, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UID, token.Kind, token.Payload, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// Consume はトークンを消費済みにして返す。期限切れ・消費済み・種別不一致・
// 存在しない場合はnilを返す。消費は単一のUPDATEで行うため二重消費は起きない。
func (r *PostgresTokenRepo) Consume(ctx context.Context, id string, kind model.TokenKind) (*model.Token, error) {
	token := &model.Token{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE tokens
		 SET consumed_at = now()
		 WHERE id = $1 AND kind = $2 AND consumed_at IS NULL AND expires_at > now()
		 RETURNING id, uid, kind, payload, expires_at, consumed_at, created_at`,
		id, kind,
	).Scan(&token.ID, &token.UID, &token.Kind, &token.Payload, &token.ExpiresAt, &token.ConsumedAt, &token.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	return token, nil
}

// DeleteExpired は期限切れトークンを削除し、削除件数を返す。
func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
