// Package transport 把 TCP socket 與 WebSocket 統一成收發 message.Message 的雙向通道。
//
// 系統設計問題：
//
//	不同的客戶端走不同的傳輸（原生 TCP / 瀏覽器 WebSocket），
//	上層的房間邏輯不應該知道差異。
//
// 設計方案：
//   - Conn：送出封包（fire-and-forget）、關閉
//   - Handler：接收新連接、封包、關閉事件
//   - 每個連接一個讀 goroutine + 一個寫 goroutine（readPump / writePump）
//   - Closed 對每個連接只觸發一次
package transport

import (
	"errors"
	"time"

	"github.com/koopa0/system-design/14-room-server/internal/message"
)

var (
	// ErrFrameTooLarge 長度欄位超過上限
	ErrFrameTooLarge = errors.New("封包超過長度上限")

	// ErrFrameTooSmall 長度欄位小於 NetworkID 寬度
	ErrFrameTooSmall = errors.New("封包長度小於地址寬度")

	// ErrServerClosed 服務器已關閉
	ErrServerClosed = errors.New("傳輸服務器已關閉")
)

// Conn 一條已建立的連接
type Conn interface {
	// Send 將封包放入發送佇列，不等待寫出
	Send(msg message.Message)

	// Close 關閉連接，可重複呼叫
	Close() error

	// RemoteAddr 對端地址
	RemoteAddr() string
}

// Handler 接收傳輸事件
//
// Connected 只在服務器端接受連接時呼叫；Dial 出去的連接由呼叫者自行持有。
// 三個方法都可能在不同的 goroutine 被呼叫。
type Handler interface {
	Connected(c Conn)
	Received(c Conn, msg message.Message)
	Closed(c Conn)
}

// Options 連接參數
type Options struct {
	// MaxFrameSize 單一封包（不含長度欄位）的最大位元組數
	MaxFrameSize int

	// SendQueueSize 每個連接的發送佇列長度，滿了就關閉連接
	SendQueueSize int

	// WriteTimeout 單次寫入期限
	WriteTimeout time.Duration
}

// DefaultOptions 預設參數
func DefaultOptions() Options {
	return Options{
		MaxFrameSize:  16 << 20,
		SendQueueSize: 1024,
		WriteTimeout:  10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = d.SendQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	return o
}

// HandlerFuncs 以函數組成 Handler，未設定的欄位忽略
type HandlerFuncs struct {
	OnConnected func(c Conn)
	OnReceived  func(c Conn, msg message.Message)
	OnClosed    func(c Conn)
}

func (h HandlerFuncs) Connected(c Conn) {
	if h.OnConnected != nil {
		h.OnConnected(c)
	}
}

func (h HandlerFuncs) Received(c Conn, msg message.Message) {
	if h.OnReceived != nil {
		h.OnReceived(c, msg)
	}
}

func (h HandlerFuncs) Closed(c Conn) {
	if h.OnClosed != nil {
		h.OnClosed(c)
	}
}
