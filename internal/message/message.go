// Package message 定義房間服務器在傳輸層上交換的訊息封包。
//
// 線上格式（TCP 與 WebSocket 相同）：
//
//	[4 bytes 小端長度 L][NetworkID 8 bytes][L-8 bytes 內容]
//
// L 不包含長度欄位本身。
package message

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// HeaderSize 長度欄位大小
	HeaderSize = 4

	// IDSize NetworkID 編碼寬度
	IDSize = 8
)

var (
	// ErrShortMessage 資料不足以構成一個完整封包
	ErrShortMessage = errors.New("封包長度不足")

	// ErrLengthMismatch 長度欄位與實際資料不符
	ErrLengthMismatch = errors.New("封包長度欄位不符")
)

// Message 不可變的定址封包
type Message struct {
	id   NetworkID
	body []byte
}

// New 建立封包，body 會被複製
func New(id NetworkID, body []byte) Message {
	b := make([]byte, len(body))
	copy(b, body)
	return Message{id: id, body: b}
}

// NewJSON 將 v 編碼為 JSON 後建立封包
func NewJSON(id NetworkID, v any) (Message, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("編碼封包內容失敗: %w", err)
	}
	return Message{id: id, body: body}, nil
}

// ID 目的地
func (m Message) ID() NetworkID {
	return m.id
}

// Body 回傳內容的副本
func (m Message) Body() []byte {
	b := make([]byte, len(m.body))
	copy(b, m.body)
	return b
}

// Len 編碼後的總位元組數（含長度欄位）
func (m Message) Len() int {
	return HeaderSize + IDSize + len(m.body)
}

// Bytes 編碼為線上格式
func (m Message) Bytes() []byte {
	buf := make([]byte, m.Len())
	binary.LittleEndian.PutUint32(buf[0:HeaderSize], uint32(IDSize+len(m.body)))
	m.id.put(buf[HeaderSize : HeaderSize+IDSize])
	copy(buf[HeaderSize+IDSize:], m.body)
	return buf
}

// String 除錯用
func (m Message) String() string {
	return fmt.Sprintf("%s %q", m.id, m.body)
}

// Parse 解析一個完整封包（含長度欄位）
func Parse(frame []byte) (Message, error) {
	if len(frame) < HeaderSize+IDSize {
		return Message{}, ErrShortMessage
	}
	length := int(binary.LittleEndian.Uint32(frame[0:HeaderSize]))
	if length != len(frame)-HeaderSize {
		return Message{}, fmt.Errorf("%w: 宣告 %d，實際 %d", ErrLengthMismatch, length, len(frame)-HeaderSize)
	}
	return ParsePayload(frame[HeaderSize:])
}

// ParsePayload 解析去掉長度欄位後的部分（NetworkID + 內容）
func ParsePayload(payload []byte) (Message, error) {
	if len(payload) < IDSize {
		return Message{}, ErrShortMessage
	}
	return New(readID(payload[:IDSize]), payload[IDSize:]), nil
}
