package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// 心跳參數：每 54 秒 Ping 一次，60 秒內沒有任何讀取就視為斷線
const (
	pingPeriod = 54 * time.Second
	pongWait   = 60 * time.Second
)

// WebSocketServer 把 HTTP 請求升級為 WebSocket 連接
//
// 每個二進位訊息就是一個完整封包（格式同 TCP 分幀，含長度欄位），
// 不需要額外分幀；文字訊息忽略。
type WebSocketServer struct {
	handler  Handler
	logger   *slog.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewWebSocketServer 創建 WebSocket 服務器
func NewWebSocketServer(handler Handler, logger *slog.Logger, opts Options) *WebSocketServer {
	return &WebSocketServer{
		handler: handler,
		logger:  logger,
		opts:    opts.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 不做身份驗證，任何來源都可以連
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*wsConn]struct{}),
	}
}

// ServeHTTP 升級連接
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.isClosed() {
		http.Error(w, "服務器關閉中", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("升級 WebSocket 失敗", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newWSConn(s.handler, s.logger.With("remote_addr", r.RemoteAddr), s.opts, true)
	c.attach(ws)
	if !s.track(c) {
		ws.Close()
		return
	}
	c.release = func() { s.untrack(c) }

	s.handler.Connected(c)
	c.start()
}

// Close 關閉所有 WebSocket 連接，之後的升級請求會被拒絕
func (s *WebSocketServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	s.wg.Wait()
	s.logger.Info("WebSocket 服務器已關閉")
	return err
}

func (s *WebSocketServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *WebSocketServer) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *WebSocketServer) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// DialWebSocket 連到房間服務器的 WebSocket 端點
//
// 立即回傳 Conn；握手在背景完成。握手前呼叫的 Send 會排隊，
// 握手完成後依序送出。握手失敗時觸發 handler.Closed。
func DialWebSocket(ctx context.Context, url string, handler Handler, logger *slog.Logger, opts Options) Conn {
	c := newWSConn(handler, logger.With("url", url), opts.withDefaults(), false)

	go func() {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			c.logger.Warn("WebSocket 握手失敗", "error", err)
			c.Close()
			handler.Closed(c)
			return
		}

		c.attach(ws)
		select {
		case <-c.done:
			// 握手期間已被關閉
			ws.Close()
			handler.Closed(c)
			return
		default:
		}
		c.start()
	}()

	return c
}

// wsConn 一條 WebSocket 連接
type wsConn struct {
	handler   Handler
	logger    *slog.Logger
	opts      Options
	heartbeat bool

	mu   sync.Mutex
	conn *websocket.Conn

	send      chan message.Message
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	release   func()
}

func newWSConn(handler Handler, logger *slog.Logger, opts Options, heartbeat bool) *wsConn {
	return &wsConn{
		handler:   handler,
		logger:    logger.With("transport", "websocket"),
		opts:      opts,
		heartbeat: heartbeat,
		send:      make(chan message.Message, opts.SendQueueSize),
		done:      make(chan struct{}),
	}
}

func (c *wsConn) attach(ws *websocket.Conn) {
	c.mu.Lock()
	c.conn = ws
	c.mu.Unlock()
}

func (c *wsConn) ws() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *wsConn) start() {
	go c.writePump()
	go c.readPump()
}

// Send 實作 Conn.Send
func (c *wsConn) Send(msg message.Message) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("發送佇列已滿，關閉連接", "queue", cap(c.send))
		c.Close()
	}
}

// Close 實作 Conn.Close，會先嘗試送出正常關閉訊框
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		ws := c.ws()
		if ws == nil {
			return
		}
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = ws.Close()
	})
	return c.closeErr
}

// RemoteAddr 實作 Conn.RemoteAddr
func (c *wsConn) RemoteAddr() string {
	if ws := c.ws(); ws != nil {
		return ws.RemoteAddr().String()
	}
	return ""
}

// readPump 讀取二進位訊息
//
// 服務器端連接設置 60 秒讀取期限，收到 Pong 時延長。
func (c *wsConn) readPump() {
	ws := c.ws()
	defer func() {
		c.Close()
		c.handler.Closed(c)
		if c.release != nil {
			c.release()
		}
	}()

	ws.SetReadLimit(int64(message.HeaderSize + c.opts.MaxFrameSize))

	if c.heartbeat {
		if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("設置讀取期限失敗", "error", err)
		}
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket 讀取錯誤", "error", err)
			}
			return
		}

		if c.heartbeat {
			if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
				c.logger.Error("設置讀取期限失敗", "error", err)
			}
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		msg, err := message.Parse(data)
		if err != nil {
			c.logger.Warn("無法解析 WebSocket 封包", "error", err, "size", len(data))
			continue
		}
		c.handler.Received(c, msg)
	}
}

// writePump 依序寫出佇列中的封包，服務器端連接定期送出 Ping
func (c *wsConn) writePump() {
	ws := c.ws()

	var tick <-chan time.Time
	if c.heartbeat {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	write := func(msg message.Message) bool {
		if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			c.logger.Debug("設置寫入期限失敗", "error", err)
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, msg.Bytes()); err != nil {
			c.logger.Debug("WebSocket 寫入失敗", "error", err)
			c.Close()
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-c.send:
			if !write(msg) {
				return
			}
			// 批量發送隊列中的封包
			n := len(c.send)
			for i := 0; i < n; i++ {
				if !write(<-c.send) {
					return
				}
			}

		case <-tick:
			if err := ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.logger.Debug("設置寫入期限失敗", "error", err)
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}
