package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// Decoder 從任意切分的 TCP 位元組流中還原封包
//
// 狀態：先收滿 4 bytes 長度欄位，再收滿 L bytes 內容，之後交出一個封包並重置。
// 一次 Feed 可能包含多個封包，也可能只有某個封包的一小段。
type Decoder struct {
	maxFrameSize int

	header  [message.HeaderSize]byte
	nheader int

	payload  []byte
	npayload int
}

// NewDecoder 建立解碼器，maxFrameSize <= 0 表示不限制
func NewDecoder(maxFrameSize int) *Decoder {
	return &Decoder{maxFrameSize: maxFrameSize}
}

// Feed 餵入一段資料，每個完整的封包依序呼叫 emit
//
// 回傳錯誤後解碼器狀態不再可靠，呼叫者應關閉連接。
func (d *Decoder) Feed(p []byte, emit func(message.Message)) error {
	for len(p) > 0 {
		if d.payload == nil {
			n := copy(d.header[d.nheader:], p)
			d.nheader += n
			p = p[n:]
			if d.nheader < message.HeaderSize {
				return nil
			}

			length := binary.LittleEndian.Uint32(d.header[:])
			if length < message.IDSize {
				return fmt.Errorf("%w: %d", ErrFrameTooSmall, length)
			}
			if d.maxFrameSize > 0 && uint64(length) > uint64(d.maxFrameSize) {
				return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, d.maxFrameSize)
			}
			d.payload = make([]byte, length)
			d.npayload = 0
		}

		n := copy(d.payload[d.npayload:], p)
		d.npayload += n
		p = p[n:]

		if d.npayload == len(d.payload) {
			msg, err := message.ParsePayload(d.payload)
			d.payload = nil
			d.nheader = 0
			if err != nil {
				return err
			}
			emit(msg)
		}
	}
	return nil
}

// Buffered 目前暫存、尚未組成封包的位元組數
func (d *Decoder) Buffered() int {
	if d.payload != nil {
		return message.HeaderSize + d.npayload
	}
	return d.nheader
}
