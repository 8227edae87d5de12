package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StatusInterval 狀態日誌兩行之間的最短間隔
const StatusInterval = 100 * time.Millisecond

// dotNetEpochTicks 0001-01-01 到 1970-01-01 的 100ns tick 數
const dotNetEpochTicks = 621355968000000000

// DotNetTicks 把時間轉成 .NET DateTime ticks（毫秒精度）
func DotNetTicks(t time.Time) int64 {
	return t.UnixMilli()*10000 + dotNetEpochTicks
}

// StatusLog 以 JSON Lines 追加寫入服務器狀態
//
// Poll 在每個封包與每次 ticker 觸發時呼叫，只有距離上一行超過 StatusInterval 才真的寫。
type StatusLog struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	enc      *json.Encoder
	clock    clock.Clock
	interval time.Duration
	last     time.Time
	closed   bool
}

// NewStatusLog 寫入任意 io.Writer；若同時實作 io.Closer，Close 時一併關閉
func NewStatusLog(w io.Writer, clk clock.Clock) *StatusLog {
	l := &StatusLog{
		w:        w,
		enc:      json.NewEncoder(w),
		clock:    clk,
		interval: StatusInterval,
	}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// OpenStatusLog 以追加模式開啟檔案
func OpenStatusLog(path string, clk clock.Clock) (*StatusLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("開啟狀態日誌 %s 失敗: %w", path, err)
	}
	return NewStatusLog(f, clk), nil
}

// Poll 到期時取一次快照並寫入，回傳是否寫了一行
func (l *StatusLog) Poll(snapshot func() Status) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, nil
	}
	now := l.clock.Now()
	if !l.last.IsZero() && now.Sub(l.last) <= l.interval {
		return false, nil
	}
	l.last = now

	if err := l.enc.Encode(snapshot()); err != nil {
		return false, fmt.Errorf("寫入狀態失敗: %w", err)
	}
	return true, nil
}

// Close 停止寫入並關閉底層檔案
func (l *StatusLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if f, ok := l.w.(interface{ Sync() error }); ok {
		_ = f.Sync()
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
