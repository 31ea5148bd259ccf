package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/toolvault/internal/model"
	"github.com/hitoshi/toolvault/internal/repository"
	"github.com/hitoshi/toolvault/internal/security"
	"github.com/hitoshi/toolvault/internal/storage"
)

// --- モック定義 ---

type mockToolRepo struct {
	listFn     func(ctx context.Context) ([]*model.Tool, error)
	findByIDFn func(ctx context.Context, id string) (*model.Tool, error)
	createFn   func(ctx context.Context, tool *model.Tool) error
	updateFn   func(ctx context.Context, tool *model.Tool) error
	deleteFn   func(ctx context.Context, id string) error
}

func (m *mockToolRepo) List(ctx context.Context) ([]*model.Tool, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockToolRepo) FindByID(ctx context.Context, id string) (*model.Tool, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockToolRepo) Create(ctx context.Context, tool *model.Tool) error {
	if m.createFn != nil {
		return m.createFn(ctx, tool)
	}
	return nil
}

func (m *mockToolRepo) Update(ctx context.Context, tool *model.Tool) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, tool)
	}
	return nil
}

func (m *mockToolRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockBlobStore struct {
	saveFn   func(ctx context.Context, key string, r io.Reader, total int64, progress storage.ProgressFunc) (string, error)
	deleteFn func(ctx context.Context, key string) error
	existsFn func(ctx context.Context, key string) (bool, error)
}

func (m *mockBlobStore) Save(ctx context.Context, key string, r io.Reader, total int64, progress storage.ProgressFunc) (string, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, key, r, total, progress)
	}
	return "http://localhost/assets/" + key, nil
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return true, nil
}

func (m *mockBlobStore) URL(key string) string {
	return "http://localhost/assets/" + key
}

// roundTripFunc はhttp.RoundTripperのテスト用アダプター。
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// mockVideoGuard はVideoURLGuardServiceのテスト用モック。
// NewSafeClientは実際のネットワークへ出ないクライアントを返す。
type mockVideoGuard struct {
	validateURLFn func(rawURL string) error
	roundTrip     roundTripFunc
}

func (m *mockVideoGuard) ValidateURL(rawURL string) error {
	if m.validateURLFn != nil {
		return m.validateURLFn(rawURL)
	}
	return nil
}

func (m *mockVideoGuard) NewSafeClient(timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if m.roundTrip != nil {
		client.Transport = m.roundTrip
	}
	return client
}

// --- compile-time interface checks ---
var _ repository.ToolRepository = (*mockToolRepo)(nil)
var _ storage.BlobStore = (*mockBlobStore)(nil)
var _ security.VideoURLGuardService = (*mockVideoGuard)(nil)

// --- ヘルパー ---

func newTestService(repo *mockToolRepo, blobs *mockBlobStore) *Service {
	if repo == nil {
		repo = &mockToolRepo{}
	}
	if blobs == nil {
		blobs = &mockBlobStore{}
	}
	return NewService(repo, blobs, security.NewContentSanitizer(), security.NewVideoURLGuard())
}

func validTool() *model.Tool {
	return &model.Tool{
		Name:        "VSCode",
		Description: "高速なエディタ",
		Detail:      "<p>拡張機能が豊富</p>",
		DevelopedBy: "Microsoft",
		Price:       0,
		Category:    "populares",
		Subcategory: "ide",
		LogoPath:    "logos/vscode.png",
	}
}

func asAPIError(t *testing.T, err error) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	return apiErr
}

// --- テスト ---

func TestCreate_Success(t *testing.T) {
	var created *model.Tool
	repo := &mockToolRepo{
		createFn: func(_ context.Context, tool *model.Tool) error {
			created = tool
			return nil
		},
	}
	svc := newTestService(repo, nil)

	got, err := svc.Create(context.Background(), validTool())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created == nil {
		t.Fatal("expected tool to be persisted")
	}
	if got.ID == "" {
		t.Error("expected generated ID")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestCreate_ValidationBeforeAnyWrite(t *testing.T) {
	var wrote bool
	repo := &mockToolRepo{
		createFn: func(_ context.Context, _ *model.Tool) error {
			wrote = true
			return nil
		},
	}
	svc := newTestService(repo, nil)

	tests := []struct {
		name   string
		mutate func(*model.Tool)
	}{
		{"名前なし", func(tool *model.Tool) { tool.Name = "" }},
		{"負の価格", func(tool *model.Tool) { tool.Price = -1 }},
		{"カテゴリなし", func(tool *model.Tool) { tool.Category = "" }},
		{"特徴が7件", func(tool *model.Tool) {
			tool.Properties = []string{"a", "b", "c", "d", "e", "f", "g"}
		}},
		{"画像が4枚", func(tool *model.Tool) {
			tool.ImagePaths = []string{"images/tools/1.png", "images/tools/2.png", "images/tools/3.png", "images/tools/4.png"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := validTool()
			tt.mutate(tool)
			_, err := svc.Create(context.Background(), tool)
			apiErr := asAPIError(t, err)
			if apiErr.Code != model.ErrCodeValidationFailed {
				t.Errorf("code = %s, want VALIDATION_FAILED", apiErr.Code)
			}
			if wrote {
				t.Error("validation errors must be caught before any write")
			}
		})
	}
}

func TestCreate_RejectsInvalidVideoURL(t *testing.T) {
	svc := newTestService(nil, nil)

	tool := validTool()
	tool.VideoURL = "http://localhost/demo.mp4"
	_, err := svc.Create(context.Background(), tool)
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeInvalidVideoURL {
		t.Errorf("code = %s, want INVALID_VIDEO_URL", apiErr.Code)
	}
}

// 静的検証を通過した動画URLはSSRF防止クライアントのHEADリクエストで
// 到達確認される。
func TestCreate_ChecksVideoReachability(t *testing.T) {
	var gotMethod, gotURL string
	guard := &mockVideoGuard{
		roundTrip: func(req *http.Request) (*http.Response, error) {
			gotMethod = req.Method
			gotURL = req.URL.String()
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}, nil
		},
	}
	svc := NewService(&mockToolRepo{}, &mockBlobStore{}, security.NewContentSanitizer(), guard)

	tool := validTool()
	tool.VideoURL = "https://video.example.com/demo.mp4"
	if _, err := svc.Create(context.Background(), tool); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if gotMethod != http.MethodHead {
		t.Errorf("reachability check method = %s, want HEAD", gotMethod)
	}
	if gotURL != "https://video.example.com/demo.mp4" {
		t.Errorf("reachability check URL = %s, want the video URL", gotURL)
	}
}

// 到達できない動画URLを参照するレコードは書き込めない。
func TestCreate_RejectsUnreachableVideoURL(t *testing.T) {
	guard := &mockVideoGuard{
		roundTrip: func(_ *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
		},
	}
	var wrote bool
	repo := &mockToolRepo{
		createFn: func(_ context.Context, _ *model.Tool) error {
			wrote = true
			return nil
		},
	}
	svc := NewService(repo, &mockBlobStore{}, security.NewContentSanitizer(), guard)

	tool := validTool()
	tool.VideoURL = "https://video.example.com/gone.mp4"
	_, err := svc.Create(context.Background(), tool)
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeInvalidVideoURL {
		t.Errorf("code = %s, want INVALID_VIDEO_URL", apiErr.Code)
	}
	if wrote {
		t.Error("unreachable video URL must be caught before any write")
	}
}

// アップロードが完了していないアセットを参照するレコードは書き込めない。
func TestCreate_RejectsUnuploadedAssets(t *testing.T) {
	blobs := &mockBlobStore{
		existsFn: func(_ context.Context, key string) (bool, error) {
			return key != "logos/missing.png", nil
		},
	}
	var wrote bool
	repo := &mockToolRepo{
		createFn: func(_ context.Context, _ *model.Tool) error {
			wrote = true
			return nil
		},
	}
	svc := newTestService(repo, blobs)

	tool := validTool()
	tool.LogoPath = "logos/missing.png"
	_, err := svc.Create(context.Background(), tool)
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeUploadIncomplete {
		t.Errorf("code = %s, want UPLOAD_INCOMPLETE", apiErr.Code)
	}
	if wrote {
		t.Error("record must not be written when an asset upload is incomplete")
	}
}

func TestCreate_SanitizesDetail(t *testing.T) {
	var created *model.Tool
	repo := &mockToolRepo{
		createFn: func(_ context.Context, tool *model.Tool) error {
			created = tool
			return nil
		},
	}
	svc := newTestService(repo, nil)

	tool := validTool()
	tool.Detail = `<p>説明</p><script>alert(1)</script>`
	if _, err := svc.Create(context.Background(), tool); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if strings.Contains(created.Detail, "<script") {
		t.Errorf("detail must be sanitized, got %q", created.Detail)
	}
	if !strings.Contains(created.Detail, "<p>説明</p>") {
		t.Errorf("safe markup must survive, got %q", created.Detail)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(&mockToolRepo{}, nil)

	tool := validTool()
	tool.ID = "missing"
	_, err := svc.Update(context.Background(), tool)
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeToolNotFound {
		t.Errorf("code = %s, want TOOL_NOT_FOUND", apiErr.Code)
	}
}

func TestUpdate_PreservesCreatedAt(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockToolRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Tool, error) {
			return &model.Tool{ID: id, Name: "VSCode", Category: "populares", CreatedAt: createdAt}, nil
		},
	}
	svc := newTestService(repo, nil)

	tool := validTool()
	tool.ID = "t1"
	got, err := svc.Update(context.Background(), tool)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, createdAt)
	}
}

// お気に入りフラグは後勝ち。競合エラーは発生しない。
func TestUpdateFavorite_LastWriterWins(t *testing.T) {
	stored := &model.Tool{ID: "t1", Name: "VSCode", Category: "populares", Favorite: false}
	repo := &mockToolRepo{
		findByIDFn: func(_ context.Context, _ string) (*model.Tool, error) {
			copied := *stored
			return &copied, nil
		},
		updateFn: func(_ context.Context, tool *model.Tool) error {
			stored = tool
			return nil
		},
	}
	svc := newTestService(repo, nil)

	if err := svc.UpdateFavorite(context.Background(), "t1", true); err != nil {
		t.Fatalf("UpdateFavorite() error = %v", err)
	}
	if !stored.Favorite {
		t.Error("expected favorite to be true")
	}

	if err := svc.UpdateFavorite(context.Background(), "t1", false); err != nil {
		t.Fatalf("UpdateFavorite() error = %v", err)
	}
	if stored.Favorite {
		t.Error("expected last write to win")
	}
}

func TestDelete_DeletesAssetsThenRecord(t *testing.T) {
	var deletedAssets []string
	var recordDeleted bool
	repo := &mockToolRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Tool, error) {
			return &model.Tool{
				ID:         id,
				LogoPath:   "logos/t1.png",
				ImagePaths: []string{"images/tools/a.png", "images/tools/b.png"},
			}, nil
		},
		deleteFn: func(_ context.Context, _ string) error {
			recordDeleted = true
			return nil
		},
	}
	blobs := &mockBlobStore{
		deleteFn: func(_ context.Context, key string) error {
			deletedAssets = append(deletedAssets, key)
			return nil
		},
	}
	svc := newTestService(repo, blobs)

	if err := svc.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(deletedAssets) != 3 {
		t.Errorf("expected 3 asset deletions, got %v", deletedAssets)
	}
	if !recordDeleted {
		t.Error("expected record to be deleted")
	}
}

// アセット削除が失敗してもレコード削除は必ず試行され、
// 全体としてはASSET_DELETE_PARTIALで失敗が報告される。
func TestDelete_AssetFailureStillDeletesRecord(t *testing.T) {
	var recordDeleted bool
	repo := &mockToolRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Tool, error) {
			return &model.Tool{
				ID:         id,
				LogoPath:   "logos/t1.png",
				ImagePaths: []string{"images/tools/a.png"},
			}, nil
		},
		deleteFn: func(_ context.Context, _ string) error {
			recordDeleted = true
			return nil
		},
	}
	blobs := &mockBlobStore{
		deleteFn: func(_ context.Context, key string) error {
			if key == "images/tools/a.png" {
				return errors.New("blob store down")
			}
			return nil
		},
	}
	svc := newTestService(repo, blobs)

	err := svc.Delete(context.Background(), "t1")
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeAssetDeletePartial {
		t.Errorf("code = %s, want ASSET_DELETE_PARTIAL", apiErr.Code)
	}
	if !recordDeleted {
		t.Error("record deletion must still be attempted on asset failure")
	}
	if !strings.Contains(apiErr.Message, "images/tools/a.png") {
		t.Errorf("expected orphaned path in message, got %q", apiErr.Message)
	}
}

func TestDelete_NotFound(t *testing.T) {
	svc := newTestService(&mockToolRepo{}, nil)

	err := svc.Delete(context.Background(), "missing")
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeToolNotFound {
		t.Errorf("code = %s, want TOOL_NOT_FOUND", apiErr.Code)
	}
}

func TestWatch_ReplaysInitialListAndBroadcastsMutations(t *testing.T) {
	tools := []*model.Tool{{ID: "t1", Name: "VSCode", Category: "populares"}}
	repo := &mockToolRepo{
		listFn: func(_ context.Context) ([]*model.Tool, error) {
			copied := make([]*model.Tool, len(tools))
			copy(copied, tools)
			return copied, nil
		},
	}
	svc := newTestService(repo, nil)

	ch, unsubscribe, err := svc.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer unsubscribe()

	initial := <-ch
	if len(initial) != 1 || initial[0].ID != "t1" {
		t.Fatalf("unexpected initial list: %+v", initial)
	}

	// 変更操作で再取得したリストが配信される
	tools = append(tools, &model.Tool{ID: "t2", Name: "Vim", Category: "otros"})
	if _, err := svc.Create(context.Background(), validTool()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	select {
	case updated := <-ch:
		if len(updated) != 2 {
			t.Errorf("expected 2 tools in broadcast, got %d", len(updated))
		}
	case <-time.After(time.Second):
		t.Fatal("expected broadcast after mutation")
	}
}

func TestWatch_UnsubscribeStopsDelivery(t *testing.T) {
	svc := newTestService(&mockToolRepo{}, nil)

	ch, unsubscribe, err := svc.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	<-ch // 初期リスト

	unsubscribe()
	// 解除関数は複数回呼んでも安全
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}
}

func TestUploadAsset_GeneratesKeyWithPrefix(t *testing.T) {
	var savedKey string
	blobs := &mockBlobStore{
		saveFn: func(_ context.Context, key string, r io.Reader, total int64, progress storage.ProgressFunc) (string, error) {
			savedKey = key
			io.Copy(io.Discard, r)
			return "http://localhost/assets/" + key, nil
		},
	}
	svc := newTestService(nil, blobs)

	key, url, err := svc.UploadAsset(context.Background(), model.AssetKindLogo, "my logo.png", strings.NewReader("bytes"), 5, nil)
	if err != nil {
		t.Fatalf("UploadAsset() error = %v", err)
	}
	if !strings.HasPrefix(key, "logos/") {
		t.Errorf("key = %q, want logos/ prefix", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %q, want .png extension", key)
	}
	if savedKey != key {
		t.Errorf("saved key %q != returned key %q", savedKey, key)
	}
	if url == "" {
		t.Error("expected resolvable URL")
	}

	key, _, err = svc.UploadAsset(context.Background(), model.AssetKindImage, "shot.jpg", strings.NewReader("bytes"), 5, nil)
	if err != nil {
		t.Fatalf("UploadAsset() error = %v", err)
	}
	if !strings.HasPrefix(key, "images/tools/") {
		t.Errorf("key = %q, want images/tools/ prefix", key)
	}
}

func TestUploadAsset_InvalidKind(t *testing.T) {
	svc := newTestService(nil, nil)

	_, _, err := svc.UploadAsset(context.Background(), model.AssetKind("bogus"), "x.png", strings.NewReader("x"), 1, nil)
	apiErr := asAPIError(t, err)
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %s, want VALIDATION_FAILED", apiErr.Code)
	}
}
