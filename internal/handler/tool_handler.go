package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/toolvault/internal/middleware"
	"github.com/hitoshi/toolvault/internal/model"
	"github.com/hitoshi/toolvault/internal/panel"
)

// ToolServiceInterface はツール一覧ハンドラーが必要とするサービスインターフェース。
type ToolServiceInterface interface {
	// List は全ツールを返す。
	List(ctx context.Context) ([]*model.Tool, error)
	// Watch はツール一覧の変更を配信するチャネルと購読解除関数を返す。
	Watch(ctx context.Context) (<-chan []*model.Tool, func(), error)
}

// ToolHandler はツール一覧のHTTPハンドラー。
type ToolHandler struct {
	service ToolServiceInterface
}

// NewToolHandler はToolHandlerを生成する。
func NewToolHandler(service ToolServiceInterface) *ToolHandler {
	return &ToolHandler{service: service}
}

// toolResponse はツール情報のAPIレスポンス。
type toolResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Detail      string    `json:"detail"`
	DevelopedBy string    `json:"developed_by"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Properties  []string  `json:"properties"`
	LogoPath    string    `json:"logo_path"`
	ImagePaths  []string  `json:"image_paths"`
	VideoURL    string    `json:"video_url,omitempty"`
	Favorite    bool      `json:"favorite"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// toToolResponse はmodel.ToolからAPIレスポンスに変換する。
func toToolResponse(tool *model.Tool) toolResponse {
	return toolResponse{
		ID:          tool.ID,
		Name:        tool.Name,
		Description: tool.Description,
		Detail:      tool.Detail,
		DevelopedBy: tool.DevelopedBy,
		Price:       tool.Price,
		Category:    tool.Category,
		Subcategory: tool.Subcategory,
		Properties:  tool.Properties,
		LogoPath:    tool.LogoPath,
		ImagePaths:  tool.ImagePaths,
		VideoURL:    tool.VideoURL,
		Favorite:    tool.Favorite,
		CreatedAt:   tool.CreatedAt,
		UpdatedAt:   tool.UpdatedAt,
	}
}

// parseFilters はクエリパラメータから表示フィルタを組み立てる。
// category未指定時はallとして扱う。
func parseFilters(r *http.Request) (panel.Filters, error) {
	filters := panel.Filters{
		SearchTerm: r.URL.Query().Get("search"),
		Category:   model.ToolFilterAll,
	}

	if category := r.URL.Query().Get("category"); category != "" {
		f := model.ToolFilter(category)
		if !model.IsValidToolFilter(f) {
			return panel.Filters{}, model.NewValidationError("category")
		}
		filters.Category = f
	}

	if subs := r.URL.Query().Get("subcategories"); subs != "" {
		for _, s := range strings.Split(subs, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filters.Subcategories = append(filters.Subcategories, s)
			}
		}
	}

	return filters, nil
}

// ListTools はフィルタ・検索条件を適用したツール一覧を返す。
// GET /api/tools?search=xxx&category=free&subcategories=ide,design
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	tools, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	filtered := panel.Apply(tools, filters)

	results := make([]toolResponse, len(filtered))
	for i, tool := range filtered {
		results[i] = toToolResponse(tool)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tools": results,
		"total": len(results),
	})
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// invalidRequestError はリクエストボディ解析失敗のエラーを生成する。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// internalError は内部エラーを生成する。
func internalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// requireUID はコンテキストから認証済みユーザーのUIDを取り出す。
// 未認証の場合は401を書き込んでfalseを返す。
func requireUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, err := middleware.UIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return uid, true
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeEmailNotVerified, model.ErrCodeForbidden, model.ErrCodeReauthRequired:
		return http.StatusForbidden
	case model.ErrCodeEmailInUse:
		return http.StatusConflict
	case model.ErrCodeInvalidToken:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeToolNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidVideoURL:
		return http.StatusBadRequest
	case model.ErrCodeUploadIncomplete:
		return http.StatusConflict
	case model.ErrCodeAssetDeletePartial:
		return http.StatusMultiStatus
	case model.ErrCodeProfileSyncFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
