package internal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/koopa0/system-design/14-room-server/internal/message"
	"github.com/koopa0/system-design/14-room-server/internal/transport"
)

// ErrHubStopped 事件迴圈已結束
var ErrHubStopped = errors.New("事件迴圈已停止")

// 系統設計問題：
//   每條連接各有自己的讀 goroutine，房間狀態卻要在所有連接之間共享，
//   怎麼避免到處加鎖？
//
// 設計方案：
//   - 單一事件迴圈（Run）擁有 Server、所有 Room 與 Peer
//   - 傳輸層只把 connected / received / closed 事件丟進 channel
//   - 每個封包處理完才處理下一個
//   - 其他 goroutine 需要讀狀態時用 Do 把函數送進迴圈執行

type eventKind int

const (
	eventConnected eventKind = iota
	eventReceived
	eventClosed
	eventCall
)

type hubEvent struct {
	kind eventKind
	conn transport.Conn
	msg  message.Message
	fn   func(*Server)
}

// Hub 把傳輸事件序列化到單一 goroutine
type Hub struct {
	server *Server
	logger *slog.Logger
	clock  clock.Clock

	events  chan hubEvent
	peers   map[transport.Conn]*Peer
	stopped chan struct{}
}

// HubOption 設定 Hub
type HubOption func(*Hub)

// WithHubClock 替換 ticker 使用的時鐘（測試用）
func WithHubClock(c clock.Clock) HubOption {
	return func(h *Hub) { h.clock = c }
}

// WithQueueSize 事件佇列長度
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.events = make(chan hubEvent, n)
		}
	}
}

// NewHub 創建事件迴圈，需另外呼叫 Run
func NewHub(server *Server, logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		server:  server,
		logger:  logger,
		clock:   clock.New(),
		events:  make(chan hubEvent, 4096),
		peers:   make(map[transport.Conn]*Peer),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connected 實作 transport.Handler
func (h *Hub) Connected(c transport.Conn) {
	h.post(hubEvent{kind: eventConnected, conn: c})
}

// Received 實作 transport.Handler
func (h *Hub) Received(c transport.Conn, msg message.Message) {
	h.post(hubEvent{kind: eventReceived, conn: c, msg: msg})
}

// Closed 實作 transport.Handler
func (h *Hub) Closed(c transport.Conn) {
	h.post(hubEvent{kind: eventClosed, conn: c})
}

// post 迴圈停止後的事件直接丟棄
func (h *Hub) post(ev hubEvent) bool {
	select {
	case <-h.stopped:
		return false
	default:
	}

	select {
	case h.events <- ev:
		return true
	case <-h.stopped:
		return false
	}
}

// Do 在事件迴圈中執行 fn 並等待完成
func (h *Hub) Do(ctx context.Context, fn func(*Server)) error {
	done := make(chan struct{})
	ev := hubEvent{kind: eventCall, fn: func(s *Server) {
		defer close(done)
		fn(s)
	}}

	select {
	case h.events <- ev:
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped 迴圈結束時關閉
func (h *Hub) Stopped() <-chan struct{} {
	return h.stopped
}

// Run 執行事件迴圈直到 ctx 取消
//
// 返回前停止 ticker，並寫出、關閉狀態日誌。
func (h *Hub) Run(ctx context.Context) error {
	ticker := h.clock.Ticker(StatusInterval)
	defer close(h.stopped)
	defer ticker.Stop()

	h.logger.Info("事件迴圈啟動")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("事件迴圈停止", "connections", len(h.peers))
			return h.server.Close()

		case <-ticker.C:
			h.server.PollStatus()

		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev hubEvent) {
	switch ev.kind {
	case eventConnected:
		if _, exists := h.peers[ev.conn]; exists {
			return
		}
		h.peers[ev.conn] = h.server.Connect(ev.conn)

	case eventReceived:
		peer, ok := h.peers[ev.conn]
		if !ok {
			h.logger.Warn("收到未登記連接的封包", "remote_addr", ev.conn.RemoteAddr())
			return
		}
		peer.HandleMessage(ev.msg)

	case eventClosed:
		peer, ok := h.peers[ev.conn]
		if !ok {
			return
		}
		delete(h.peers, ev.conn)
		peer.HandleClose()

	case eventCall:
		ev.fn(h.server)
	}
}
