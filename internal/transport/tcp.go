package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// TCPServer 接受原生 TCP 連接並以長度前綴分幀
type TCPServer struct {
	handler Handler
	logger  *slog.Logger
	opts    Options

	mu       sync.Mutex
	listener net.Listener
	conns    map[*tcpConn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewTCPServer 創建 TCP 服務器
func NewTCPServer(handler Handler, logger *slog.Logger, opts Options) *TCPServer {
	return &TCPServer{
		handler: handler,
		logger:  logger,
		opts:    opts.withDefaults(),
		conns:   make(map[*tcpConn]struct{}),
	}
}

// Listen 綁定地址，之後呼叫 Serve
func (s *TCPServer) Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Serve 在 ln 上接受連接，直到 Close 被呼叫
func (s *TCPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("TCP 服務器開始監聽", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// 暫時性錯誤（如 fd 耗盡）退避重試
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn("接受 TCP 連接失敗", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c := newTCPConn(nc, s.handler, s.logger, s.opts)
		if !s.track(c) {
			nc.Close()
			return nil
		}
		c.release = func() { s.untrack(c) }

		s.handler.Connected(c)
		c.start()
	}
}

// Addr 監聽地址，尚未 Serve 時為 nil
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close 停止監聽並關閉所有連接
func (s *TCPServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		if lerr := s.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
			err = multierr.Append(err, lerr)
		}
	}
	conns := make([]*tcpConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}

	s.wg.Wait()
	s.logger.Info("TCP 服務器已關閉")
	return err
}

func (s *TCPServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TCPServer) track(c *tcpConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *TCPServer) untrack(c *tcpConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// DialTCP 連到房間服務器，回傳的 Conn 收到的封包交給 handler
func DialTCP(ctx context.Context, addr string, handler Handler, logger *slog.Logger, opts Options) (Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := newTCPConn(nc, handler, logger, opts.withDefaults())
	c.start()
	return c, nil
}

// tcpConn 一條 TCP 連接
type tcpConn struct {
	conn    net.Conn
	handler Handler
	logger  *slog.Logger
	opts    Options
	decoder *Decoder

	send      chan message.Message
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	release   func()
}

func newTCPConn(nc net.Conn, handler Handler, logger *slog.Logger, opts Options) *tcpConn {
	return &tcpConn{
		conn:    nc,
		handler: handler,
		logger:  logger.With("remote_addr", nc.RemoteAddr().String(), "transport", "tcp"),
		opts:    opts,
		decoder: NewDecoder(opts.MaxFrameSize),
		send:    make(chan message.Message, opts.SendQueueSize),
		done:    make(chan struct{}),
	}
}

func (c *tcpConn) start() {
	go c.writePump()
	go c.readPump()
}

// Send 實作 Conn.Send
func (c *tcpConn) Send(msg message.Message) {
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

// Close 實作 Conn.Close
func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr 實作 Conn.RemoteAddr
func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// readPump 讀取位元組流並分幀
//
// 結束時（對端關閉、讀取錯誤、分幀錯誤）觸發一次 Closed。
func (c *tcpConn) readPump() {
	defer func() {
		c.Close()
		c.handler.Closed(c)
		if c.release != nil {
			c.release()
		}
	}()

	buf := make([]byte, 32*1024)
	emit := func(msg message.Message) {
		c.handler.Received(c, msg)
	}

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if ferr := c.decoder.Feed(buf[:n], emit); ferr != nil {
				c.logger.Warn("TCP 分幀錯誤，關閉連接", "error", ferr)
				return
			}
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					c.logger.Debug("TCP 讀取結束", "error", err)
				}
			}
			return
		}
	}
}

// writePump 依序寫出佇列中的封包，一次寫出所有已排隊的封包
func (c *tcpConn) writePump() {
	var batch []byte
	for {
		select {
		case msg := <-c.send:
			batch = append(batch[:0], msg.Bytes()...)
			n := len(c.send)
			for i := 0; i < n; i++ {
				batch = append(batch, (<-c.send).Bytes()...)
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.logger.Debug("設置寫入期限失敗", "error", err)
			}
			if _, err := c.conn.Write(batch); err != nil {
				c.logger.Debug("TCP 寫入失敗", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
