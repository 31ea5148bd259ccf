package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/toolvault/internal/model"
)

// newStreamTestServer はStreamHandlerをテストサーバーで起動し、
// 配信チャネルへの送信関数とWebSocket URLを返す。
func newStreamTestServer(t *testing.T) (*StreamHandler, chan []*model.Tool, string, func()) {
	t.Helper()

	updates := make(chan []*model.Tool, 16)
	service := &mockToolService{
		watchFn: func(_ context.Context) (<-chan []*model.Tool, func(), error) {
			// 初期一覧を先行して積んでおく（実サービスのリプレイ動作に合わせる）
			updates <- catalogFixture()
			return updates, func() {}, nil
		},
	}

	h := NewStreamHandler(service, nil, nil)
	server := httptest.NewServer(http.HandlerFunc(h.ServeStream))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return h, updates, wsURL, server.Close
}

// readListMessage は一覧メッセージを1件読み取る。
func readListMessage(t *testing.T, conn *websocket.Conn) streamListMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg streamListMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read stream message: %v", err)
	}
	return msg
}

// TestServeStream_SendsInitialList は接続直後に現在の一覧が配信されることを検証する。
func TestServeStream_SendsInitialList(t *testing.T) {
	_, _, wsURL, cleanup := newStreamTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	msg := readListMessage(t, conn)
	if msg.Type != "tools" {
		t.Errorf("type = %q, want %q", msg.Type, "tools")
	}
	if msg.Total != 3 {
		t.Errorf("total = %d, want 3", msg.Total)
	}
}

// TestServeStream_AppliesFilterMessage はフィルタ変更メッセージで
// 再計算された一覧が即座に返ることを検証する。
func TestServeStream_AppliesFilterMessage(t *testing.T) {
	_, _, wsURL, cleanup := newStreamTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// 初期一覧を読み捨てる
	readListMessage(t, conn)

	// 無料フィルタを送信
	if err := conn.WriteJSON(streamFilterMessage{Category: "free"}); err != nil {
		t.Fatalf("failed to send filter message: %v", err)
	}

	msg := readListMessage(t, conn)
	if msg.Total != 2 {
		t.Errorf("total = %d, want 2", msg.Total)
	}
	for _, tool := range msg.Tools {
		if tool.Price != 0 {
			t.Errorf("tool %s has price %v, want 0", tool.Name, tool.Price)
		}
	}
}

// TestServeStream_BroadcastsCatalogChanges はカタログ変更が
// 接続中のクライアントに配信されることを検証する。
func TestServeStream_BroadcastsCatalogChanges(t *testing.T) {
	_, updates, wsURL, cleanup := newStreamTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// 初期一覧を読み捨てる
	readListMessage(t, conn)

	// カタログ変更を配信
	updated := append(catalogFixture(), &model.Tool{ID: "t4", Name: "NewTool", Price: 5, Category: "otros"})
	updates <- updated

	msg := readListMessage(t, conn)
	if msg.Total != 4 {
		t.Errorf("total = %d, want 4", msg.Total)
	}
}

// TestServeStream_FilterPersistsAcrossBroadcasts は設定済みフィルタが
// 以降の配信にも適用されることを検証する。
func TestServeStream_FilterPersistsAcrossBroadcasts(t *testing.T) {
	_, updates, wsURL, cleanup := newStreamTestServer(t)
	defer cleanup()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	readListMessage(t, conn)

	// 有料フィルタを設定
	if err := conn.WriteJSON(streamFilterMessage{Category: "paid"}); err != nil {
		t.Fatalf("failed to send filter message: %v", err)
	}
	msg := readListMessage(t, conn)
	if msg.Total != 1 {
		t.Fatalf("total after filter = %d, want 1", msg.Total)
	}

	// カタログ変更後もフィルタが維持される
	updated := append(catalogFixture(), &model.Tool{ID: "t4", Name: "PaidTool", Price: 10, Category: "otros"})
	updates <- updated

	msg = readListMessage(t, conn)
	if msg.Total != 2 {
		t.Errorf("total after broadcast = %d, want 2", msg.Total)
	}
	for _, tool := range msg.Tools {
		if tool.Price <= 0 {
			t.Errorf("tool %s has price %v, want > 0", tool.Name, tool.Price)
		}
	}
}

// TestServeStream_TracksClientCount は接続クライアント数が追跡されることを検証する。
func TestServeStream_TracksClientCount(t *testing.T) {
	h, _, wsURL, cleanup := newStreamTestServer(t)
	defer cleanup()

	if h.ClientCount() != 0 {
		t.Fatalf("initial client count = %d, want 0", h.ClientCount())
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}

	// 初期一覧の受信時点で接続は確立済み
	readListMessage(t, conn)

	if h.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", h.ClientCount())
	}

	conn.Close()

	// 切断の反映を待つ
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d after close, want 0", h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
