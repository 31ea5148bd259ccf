// Package catalog はツールカタログのCRUD、アセットアップロード、
// ライブ購読を提供する。
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toolvault/internal/model"
	"github.com/hitoshi/toolvault/internal/repository"
	"github.com/hitoshi/toolvault/internal/security"
	"github.com/hitoshi/toolvault/internal/storage"
)

// videoCheckTimeout は動画URL到達確認のHEADリクエストのタイムアウト。
const videoCheckTimeout = 10 * time.Second

// Service はカタログ操作のビジネスロジックを提供する。
// どの操作も自動リトライは行わず、失敗はAPIErrorとして呼び出し側へ返す。
type Service struct {
	toolRepo    repository.ToolRepository
	blobs       storage.BlobStore
	sanitizer   security.ContentSanitizerService
	videoURL    security.VideoURLGuardService
	videoClient *http.Client

	mu       sync.Mutex
	watchers map[int]chan []*model.Tool
	nextID   int
}

// NewService はServiceを生成する。
func NewService(
	toolRepo repository.ToolRepository,
	blobs storage.BlobStore,
	sanitizer security.ContentSanitizerService,
	videoURL security.VideoURLGuardService,
) *Service {
	return &Service{
		toolRepo:    toolRepo,
		blobs:       blobs,
		sanitizer:   sanitizer,
		videoURL:    videoURL,
		videoClient: videoURL.NewSafeClient(videoCheckTimeout),
		watchers:    make(map[int]chan []*model.Tool),
	}
}

// List は全ツールを取得する。
func (s *Service) List(ctx context.Context) ([]*model.Tool, error) {
	tools, err := s.toolRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return tools, nil
}

// Watch はライブ購読を開始する。購読時点の全リストが最初に配信され、
// 以後すべての変更操作のたびに再取得したリストが配信される。
// 返される解除関数は必ず呼び出すこと。解除後チャネルはクローズされる。
// 受信が追いつかない購読者への配信はスキップされる。
func (s *Service) Watch(ctx context.Context) (<-chan []*model.Tool, func(), error) {
	tools, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []*model.Tool, 16)
	ch <- tools

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(ch)
		})
	}

	return ch, unsubscribe, nil
}

// broadcast は現在の全リストを全購読者へ配信する。
func (s *Service) broadcast(ctx context.Context) {
	tools, err := s.toolRepo.List(ctx)
	if err != nil {
		slog.Error("failed to refresh tool list for broadcast",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.watchers {
		select {
		case ch <- tools:
		default:
			slog.Warn("dropping broadcast to slow watcher", slog.Int("watcher_id", id))
		}
	}
}

// validateTool はツールの内容を検証する。永続化の前に必ず呼ばれる。
func (s *Service) validateTool(tool *model.Tool) error {
	var invalid []string
	if tool.Name == "" {
		invalid = append(invalid, "name")
	}
	if tool.Price < 0 {
		invalid = append(invalid, "price")
	}
	if tool.Category == "" {
		invalid = append(invalid, "category")
	}
	if len(tool.Properties) > model.MaxToolProperties {
		invalid = append(invalid, "properties")
	}
	if len(tool.ImagePaths) > model.MaxToolImages {
		invalid = append(invalid, "images")
	}
	if len(invalid) > 0 {
		return model.NewValidationError(invalid...)
	}

	if err := s.videoURL.ValidateURL(tool.VideoURL); err != nil {
		return model.NewInvalidVideoURLError(err.Error())
	}
	return nil
}

// checkVideoReachable は動画URLの到達確認を行う。静的検証を通過したURLに対し、
// SSRF防止クライアントでHEADリクエストを送る。DNS解決後のIPアドレスは
// クライアントのDialer側で検証されるため、DNS再バインディングも防止される。
// 空URLは動画なしとして許可される。
func (s *Service) checkVideoReachable(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return model.NewInvalidVideoURLError(err.Error())
	}
	resp, err := s.videoClient.Do(req)
	if err != nil {
		return model.NewInvalidVideoURLError(fmt.Sprintf("unreachable: %v", err))
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return model.NewInvalidVideoURLError(fmt.Sprintf("unreachable: status %d", resp.StatusCode))
	}
	return nil
}

// verifyAssets はレコードが参照する全アセットのアップロード完了を確認する。
// 完了していないパスへの参照を持つレコードは書き込めない。
func (s *Service) verifyAssets(ctx context.Context, tool *model.Tool) error {
	paths := make([]string, 0, 1+len(tool.ImagePaths))
	if tool.LogoPath != "" {
		paths = append(paths, tool.LogoPath)
	}
	paths = append(paths, tool.ImagePaths...)

	for _, path := range paths {
		exists, err := s.blobs.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to check asset %s: %w", path, err)
		}
		if !exists {
			return model.NewUploadIncompleteError(path)
		}
	}
	return nil
}

// Create はツールを作成する。検証は一切の書き込みの前に行われ、
// 参照される全アセットのアップロード完了が確認される。
func (s *Service) Create(ctx context.Context, tool *model.Tool) (*model.Tool, error) {
	if err := s.validateTool(tool); err != nil {
		return nil, err
	}
	if err := s.checkVideoReachable(ctx, tool.VideoURL); err != nil {
		return nil, err
	}
	if err := s.verifyAssets(ctx, tool); err != nil {
		return nil, err
	}

	now := time.Now()
	tool.ID = uuid.New().String()
	tool.Description = s.sanitizer.Sanitize(tool.Description)
	tool.Detail = s.sanitizer.Sanitize(tool.Detail)
	tool.CreatedAt = now
	tool.UpdatedAt = now

	if err := s.toolRepo.Create(ctx, tool); err != nil {
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}

	slog.Info("tool created", slog.String("tool_id", tool.ID), slog.String("name", tool.Name))
	s.broadcast(ctx)
	return tool, nil
}

// Update はツールを更新する。作成時と同じ検証とアセット確認が行われる。
func (s *Service) Update(ctx context.Context, tool *model.Tool) (*model.Tool, error) {
	if err := s.validateTool(tool); err != nil {
		return nil, err
	}
	if err := s.checkVideoReachable(ctx, tool.VideoURL); err != nil {
		return nil, err
	}

	existing, err := s.toolRepo.FindByID(ctx, tool.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tool: %w", err)
	}
	if existing == nil {
		return nil, model.NewToolNotFoundError(tool.ID)
	}

	if err := s.verifyAssets(ctx, tool); err != nil {
		return nil, err
	}

	tool.Description = s.sanitizer.Sanitize(tool.Description)
	tool.Detail = s.sanitizer.Sanitize(tool.Detail)
	tool.CreatedAt = existing.CreatedAt
	tool.UpdatedAt = time.Now()

	if err := s.toolRepo.Update(ctx, tool); err != nil {
		return nil, fmt.Errorf("failed to update tool: %w", err)
	}

	slog.Info("tool updated", slog.String("tool_id", tool.ID))
	s.broadcast(ctx)
	return tool, nil
}

// UpdateFavorite はお気に入りフラグをread-modify-writeで更新する。
// 競合検出は行わず、後勝ち（last-writer-wins）とする。
func (s *Service) UpdateFavorite(ctx context.Context, toolID string, favorite bool) error {
	tool, err := s.toolRepo.FindByID(ctx, toolID)
	if err != nil {
		return fmt.Errorf("failed to find tool: %w", err)
	}
	if tool == nil {
		return model.NewToolNotFoundError(toolID)
	}

	tool.Favorite = favorite
	tool.UpdatedAt = time.Now()
	if err := s.toolRepo.Update(ctx, tool); err != nil {
		return fmt.Errorf("failed to update favorite: %w", err)
	}

	s.broadcast(ctx)
	return nil
}

// Delete はツールを削除する。先に全アセットの削除を試み、アセット削除が
// 部分的に失敗してもレコード削除は必ず試行される。アセット側の失敗は
// レコード削除後にASSET_DELETE_PARTIALとして報告され、残されたパスを含む。
// 補償処理は行われない。
func (s *Service) Delete(ctx context.Context, toolID string) error {
	tool, err := s.toolRepo.FindByID(ctx, toolID)
	if err != nil {
		return fmt.Errorf("failed to find tool: %w", err)
	}
	if tool == nil {
		return model.NewToolNotFoundError(toolID)
	}

	paths := make([]string, 0, 1+len(tool.ImagePaths))
	if tool.LogoPath != "" {
		paths = append(paths, tool.LogoPath)
	}
	paths = append(paths, tool.ImagePaths...)

	var orphaned []string
	for _, path := range paths {
		if err := s.blobs.Delete(ctx, path); err != nil {
			slog.Error("failed to delete asset",
				slog.String("tool_id", toolID),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			orphaned = append(orphaned, path)
		}
	}

	// アセット削除の失敗に関わらずレコード削除を試行する
	if err := s.toolRepo.Delete(ctx, toolID); err != nil {
		return fmt.Errorf("failed to delete tool record: %w", err)
	}

	slog.Info("tool deleted", slog.String("tool_id", toolID), slog.Int("orphaned_assets", len(orphaned)))
	s.broadcast(ctx)

	if len(orphaned) > 0 {
		return model.NewAssetDeletePartialError(orphaned)
	}
	return nil
}

// UploadAsset はアセットをストリーミング保存し、パスキーと公開URLを返す。
// ファイル名は衝突しないよう生成され、元のファイル名は拡張子のみ引き継ぐ。
func (s *Service) UploadAsset(ctx context.Context, kind model.AssetKind, filename string, r io.Reader, size int64, progress storage.ProgressFunc) (key, url string, err error) {
	prefix := kind.PathPrefix()
	if prefix == "" {
		return "", "", model.NewValidationError("kind")
	}

	key = prefix + uuid.New().String() + filepath.Ext(filename)
	url, err = s.blobs.Save(ctx, key, r, size, progress)
	if err != nil {
		return "", "", fmt.Errorf("failed to save asset: %w", err)
	}

	slog.Info("asset uploaded", slog.String("key", key), slog.Int64("size", size))
	return key, url, nil
}
