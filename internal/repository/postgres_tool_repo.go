package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/toolvault/internal/model"
)

// PostgresToolRepo はPostgreSQLを使用したツールリポジトリ。
type PostgresToolRepo struct {
	db *sql.DB
}

// NewPostgresToolRepo はPostgresToolRepoを生成する。
func NewPostgresToolRepo(db *sql.DB) *PostgresToolRepo {
	return &PostgresToolRepo{db: db}
}

const toolColumns = `id, name, description, detail, developed_by, price,
	category, subcategory, properties, logo_path, image_paths, video_url,
	favorite, created_at, updated_at`

func scanTool(scan func(dest ...any) error) (*model.Tool, error) {
	tool := &model.Tool{}
	err := scan(
		&tool.ID, &tool.Name, &tool.Description, &tool.Detail, &tool.DevelopedBy, &tool.Price,
		&tool.Category, &tool.Subcategory, pq.Array(&tool.Properties), &tool.LogoPath,
		pq.Array(&tool.ImagePaths), &tool.VideoURL, &tool.Favorite, &tool.CreatedAt, &tool.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tool, nil
}

// List は全ツールを作成日時の降順で取得する。
func (r *PostgresToolRepo) List(ctx context.Context) ([]*model.Tool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tools ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	tools := []*model.Tool{}
	for rows.Next() {
		tool, err := scanTool(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tools: %w", err)
	}
	return tools, nil
}

// FindByID は指定IDのツールを取得する。見つからない場合はnilを返す。
func (r *PostgresToolRepo) FindByID(ctx context.Context, id string) (*model.Tool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE id = $1`, id,
	)
	tool, err := scanTool(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tool: %w", err)
	}
	return tool, nil
}

// Create はツールを作成する。
func (r *PostgresToolRepo) Create(ctx context.Context, tool *model.Tool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tools (id, name, description, detail, developed_by, price,
		 category, subcategory, properties, logo_path, image_paths, video_url,
		 favorite, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		tool.ID, tool.Name, tool.Description, tool.Detail, tool.DevelopedBy, tool.Price,
		tool.Category, tool.Subcategory, pq.Array(tool.Properties), tool.LogoPath,
		pq.Array(tool.ImagePaths), tool.VideoURL, tool.Favorite, tool.CreatedAt, tool.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool: %w", err)
	}
	return nil
}

// Update はツールを更新する。
func (r *PostgresToolRepo) Update(ctx context.Context, tool *model.Tool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tools
		 SET name = $2, description = $3, detail = $4, developed_by = $5, price = $6,
		     category = $7, subcategory = $8, properties = $9, logo_path = $10,
		     image_paths = $11, video_url = $12, favorite = $13, updated_at = $14
		 WHERE id = $1`,
		tool.ID, tool.Name, tool.Description, tool.Detail, tool.DevelopedBy, tool.Price,
		tool.Category, tool.Subcategory, pq.Array(tool.Properties), tool.LogoPath,
		pq.Array(tool.ImagePaths), tool.VideoURL, tool.Favorite, tool.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tool: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tool not found: %s", tool.ID)
	}
	return nil
}

// Delete は指定IDのツールを削除する。
func (r *PostgresToolRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tool not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ ToolRepository = (*PostgresToolRepo)(nil)
