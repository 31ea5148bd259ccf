package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/toolvault/internal/metrics"
	"github.com/hitoshi/toolvault/internal/model"
	"github.com/hitoshi/toolvault/internal/panel"
)

// StreamHandler はツール一覧のWebSocketストリームハンドラー。
// カタログが変更されるたびに、クライアントごとのフィルタを適用した
// 一覧全体を再計算して配信する。
type StreamHandler struct {
	service   ToolServiceInterface
	collector metrics.MetricsCollector
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients int
}

// NewStreamHandler はStreamHandlerを生成する。collectorはnil可。
// checkOriginがnilの場合は全オリジンを許可する（開発用）。
func NewStreamHandler(service ToolServiceInterface, collector metrics.MetricsCollector, checkOrigin func(r *http.Request) bool) *StreamHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &StreamHandler{
		service:   service,
		collector: collector,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
		},
	}
}

// streamFilterMessage はクライアントから受信するフィルタ変更メッセージ。
type streamFilterMessage struct {
	Search        string   `json:"search"`
	Category      string   `json:"category"`
	Subcategories []string `json:"subcategories"`
}

// toFilters はメッセージから表示フィルタに変換する。
// 無効なカテゴリはallとして扱う。
func (m *streamFilterMessage) toFilters() panel.Filters {
	filters := panel.Filters{
		SearchTerm:    m.Search,
		Category:      model.ToolFilterAll,
		Subcategories: m.Subcategories,
	}
	if f := model.ToolFilter(m.Category); model.IsValidToolFilter(f) {
		filters.Category = f
	}
	return filters
}

// streamListMessage はクライアントへ送信するツール一覧メッセージ。
type streamListMessage struct {
	Type  string         `json:"type"`
	Tools []toolResponse `json:"tools"`
	Total int            `json:"total"`
}

// ServeStream はWebSocket接続を確立し、ツール一覧の変更を配信する。
// クライアントはフィルタ変更メッセージを送信でき、以後の配信と
// 即時の再計算結果にそのフィルタが適用される。
// GET /api/tools/stream
func (h *StreamHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	updates, unsubscribe, err := h.service.Watch(r.Context())
	if err != nil {
		slog.Error("failed to watch catalog", slog.String("error", err.Error()))
		return
	}
	defer unsubscribe()

	h.trackConnect()
	defer h.trackDisconnect()

	// フィルタはこの接続専用。受信goroutineと配信ループで共有する
	var filterMu sync.Mutex
	filters := panel.Filters{Category: model.ToolFilterAll}

	currentFilters := func() panel.Filters {
		filterMu.Lock()
		defer filterMu.Unlock()
		return filters
	}

	// 最新の一覧を保持し、フィルタ変更時の即時再計算に使う
	var listMu sync.Mutex
	var latest []*model.Tool

	var writeMu sync.Mutex
	send := func(tools []*model.Tool, f panel.Filters) error {
		filtered := panel.Apply(tools, f)
		results := make([]toolResponse, len(filtered))
		for i, tool := range filtered {
			results[i] = toToolResponse(tool)
		}

		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(streamListMessage{
			Type:  "tools",
			Tools: results,
			Total: len(results),
		})
	}

	// 受信ループ: フィルタ変更メッセージを処理する
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}

			var fm streamFilterMessage
			if err := json.Unmarshal(msg, &fm); err != nil {
				slog.Warn("invalid stream filter message", slog.String("error", err.Error()))
				continue
			}

			newFilters := fm.toFilters()

			filterMu.Lock()
			filters = newFilters
			filterMu.Unlock()

			// フィルタ変更時は最新の一覧で即座に再計算して返す
			listMu.Lock()
			snapshot := latest
			listMu.Unlock()

			if snapshot != nil {
				if err := send(snapshot, newFilters); err != nil {
					return
				}
			}
		}
	}()

	// 配信ループ: カタログ変更のたびにフィルタ適用済み一覧を送信する
	for {
		select {
		case tools, ok := <-updates:
			if !ok {
				return
			}

			listMu.Lock()
			latest = tools
			listMu.Unlock()

			if err := send(tools, currentFilters()); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// trackConnect は接続クライアント数を増やしてメトリクスに反映する。
func (h *StreamHandler) trackConnect() {
	h.mu.Lock()
	h.clients++
	count := h.clients
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.SetStreamClients(count)
	}
}

// trackDisconnect は接続クライアント数を減らしてメトリクスに反映する。
func (h *StreamHandler) trackDisconnect() {
	h.mu.Lock()
	h.clients--
	count := h.clients
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.SetStreamClients(count)
	}
}

// ClientCount は接続中のクライアント数を返す。テスト用。
func (h *StreamHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}
