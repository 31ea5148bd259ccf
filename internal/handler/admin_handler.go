package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toolvault/internal/metrics"
	"github.com/hitoshi/toolvault/internal/model"
	"github.com/hitoshi/toolvault/internal/storage"
)

// defaultUploadMaxBytes はアップロードサイズ上限の未設定時の値（10MB）。
const defaultUploadMaxBytes = 10 << 20

// multipartMemoryLimit はmultipartパース時にメモリへ保持する最大量。
// 超過分は一時ファイルへ書き出される。
const multipartMemoryLimit = 4 << 20

// CatalogServiceInterface は管理ハンドラーが必要とするカタログサービスインターフェース。
type CatalogServiceInterface interface {
	Create(ctx context.Context, tool *model.Tool) (*model.Tool, error)
	Update(ctx context.Context, tool *model.Tool) (*model.Tool, error)
	UpdateFavorite(ctx context.Context, toolID string, favorite bool) error
	Delete(ctx context.Context, toolID string) error
	UploadAsset(ctx context.Context, kind model.AssetKind, filename string, r io.Reader, size int64, progress storage.ProgressFunc) (key, url string, err error)
}

// AdminHandler はカタログ管理のHTTPハンドラー。
// 管理者ロールを要求するミドルウェアの内側に配置される。
type AdminHandler struct {
	service        CatalogServiceInterface
	collector      metrics.MetricsCollector
	uploadMaxBytes int64
}

// NewAdminHandler はAdminHandlerを生成する。collectorはnil可。
// uploadMaxBytesが0以下の場合はデフォルト値が使われる。
func NewAdminHandler(service CatalogServiceInterface, collector metrics.MetricsCollector, uploadMaxBytes int64) *AdminHandler {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = defaultUploadMaxBytes
	}
	return &AdminHandler{
		service:        service,
		collector:      collector,
		uploadMaxBytes: uploadMaxBytes,
	}
}

// toolRequest はツール登録・更新リクエストのボディ。
type toolRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Detail      string   `json:"detail"`
	DevelopedBy string   `json:"developed_by"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Properties  []string `json:"properties"`
	LogoPath    string   `json:"logo_path"`
	ImagePaths  []string `json:"image_paths"`
	VideoURL    string   `json:"video_url"`
	Favorite    bool     `json:"favorite"`
}

// toTool はリクエストボディからmodel.Toolに変換する。
func (req *toolRequest) toTool() *model.Tool {
	return &model.Tool{
		Name:        req.Name,
		Description: req.Description,
		Detail:      req.Detail,
		DevelopedBy: req.DevelopedBy,
		Price:       req.Price,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Properties:  req.Properties,
		LogoPath:    req.LogoPath,
		ImagePaths:  req.ImagePaths,
		VideoURL:    req.VideoURL,
		Favorite:    req.Favorite,
	}
}

// CreateTool は新しいツールを登録する。
// POST /api/admin/tools
func (h *AdminHandler) CreateTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	created, err := h.service.Create(r.Context(), req.toTool())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordMutation("create")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toToolResponse(created))
}

// UpdateTool は既存ツールを更新する。
// PUT /api/admin/tools/{id}
func (h *AdminHandler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "id")

	var req toolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	tool := req.toTool()
	tool.ID = toolID

	updated, err := h.service.Update(r.Context(), tool)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordMutation("update")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toToolResponse(updated))
}

// favoriteRequest はお気に入り更新リクエストのボディ。
type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// UpdateFavorite はツールのお気に入りフラグを切り替える。
// PUT /api/admin/tools/{id}/favorite
func (h *AdminHandler) UpdateFavorite(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "id")

	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if err := h.service.UpdateFavorite(r.Context(), toolID, req.Favorite); err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordMutation("favorite")

	w.WriteHeader(http.StatusNoContent)
}

// DeleteTool はツールとそのアセットを削除する。
// アセットの一部削除に失敗した場合もレコードは削除済みで、
// 残されたアセットのパスを含むASSET_DELETE_PARTIALが返る。
// DELETE /api/admin/tools/{id}
func (h *AdminHandler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), toolID); err != nil {
		// 部分失敗でもレコードは削除済みなので変更として数える
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAssetDeletePartial {
			h.recordMutation("delete")
		}
		handleServiceError(w, err)
		return
	}

	h.recordMutation("delete")

	w.WriteHeader(http.StatusNoContent)
}

// uploadResponse はアセットアップロードのAPIレスポンス。
type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadAsset はmultipart/form-dataでアセットをアップロードする。
// フォームフィールド: file（ファイル本体）、kind（"logo" | "image"）。
// リクエストボディは設定されたサイズ上限でカットされる。
// POST /api/admin/assets
func (h *AdminHandler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewValidationError("file"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file"))
		return
	}

	kind := model.AssetKind(r.FormValue("kind"))

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file"))
		return
	}
	defer file.Close()

	start := time.Now()

	key, url, err := h.service.UploadAsset(r.Context(), kind, header.Filename, file, header.Size, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordUploadBytes(string(kind), header.Size)
		h.collector.RecordUploadLatency(time.Since(start))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(uploadResponse{Key: key, URL: url})
}

// recordMutation はカタログ変更メトリクスを記録する。
func (h *AdminHandler) recordMutation(operation string) {
	if h.collector != nil {
		h.collector.RecordCatalogMutation(operation)
	}
}
