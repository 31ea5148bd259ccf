package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/toolvault/internal/guard"
	"github.com/hitoshi/toolvault/internal/metrics"
	"github.com/hitoshi/toolvault/internal/middleware"
	"github.com/hitoshi/toolvault/internal/model"
)

// GuardHandler はナビゲーションガード判定のHTTPハンドラー。
// フロントエンドがルート遷移時に呼び出し、判定結果に従ってリダイレクトする。
type GuardHandler struct {
	collector metrics.MetricsCollector
}

// NewGuardHandler はGuardHandlerを生成する。collectorはnil可。
func NewGuardHandler(collector metrics.MetricsCollector) *GuardHandler {
	return &GuardHandler{collector: collector}
}

// guardDecisionResponse はガード判定のAPIレスポンス。
// Allowがfalseの場合は必ずRedirectToが設定される。
type guardDecisionResponse struct {
	Allow      bool   `json:"allow"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// Decide は指定パスへの遷移可否を判定する。
// kindは"public"（ログイン画面など）か"private"（保護ルート）のいずれか。
// GET /api/guards/decide?path=/home/tool-panel&kind=private
func (h *GuardHandler) Decide(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	kind := r.URL.Query().Get("kind")

	if path == "" || (kind != "public" && kind != "private") {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("path", "kind"))
		return
	}

	state := middleware.AuthStateFromContext(r.Context())

	var decision guard.Decision
	switch kind {
	case "private":
		decision = guard.Private(state, path)
	case "public":
		decision = guard.Public(state, path)
	}

	if h.collector != nil {
		h.collector.RecordGuardDecision(kind, decision.Allow)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(guardDecisionResponse{
		Allow:      decision.Allow,
		RedirectTo: decision.RedirectTo,
	})
}
