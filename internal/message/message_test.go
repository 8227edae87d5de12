package message_test

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/koopa0/system-design/14-room-server/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessage_Bytes 測試編碼格式
func TestMessage_Bytes(t *testing.T) {
	msg := message.New(message.NetworkID{A: 2, B: 3}, []byte("hello"))
	b := msg.Bytes()

	require.Len(t, b, 4+8+5)
	assert.Equal(t, uint32(8+5), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, "hello", string(b[12:]))
	assert.Equal(t, len(b), msg.Len())
}

// TestParse 測試解析
func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		frame    func() []byte
		validate func(t *testing.T, msg message.Message, err error)
	}{
		{
			name: "valid frame",
			frame: func() []byte {
				return message.New(message.ServerID, []byte(`{"type":"Ping"}`)).Bytes()
			},
			validate: func(t *testing.T, msg message.Message, err error) {
				require.NoError(t, err)
				assert.Equal(t, message.ServerID, msg.ID())
				assert.Equal(t, `{"type":"Ping"}`, string(msg.Body()))
			},
		},
		{
			name: "empty body",
			frame: func() []byte {
				return message.New(message.NewID(7), nil).Bytes()
			},
			validate: func(t *testing.T, msg message.Message, err error) {
				require.NoError(t, err)
				assert.Equal(t, message.NewID(7), msg.ID())
				assert.Empty(t, msg.Body())
			},
		},
		{
			name: "too short",
			frame: func() []byte {
				return []byte{1, 2, 3}
			},
			validate: func(t *testing.T, msg message.Message, err error) {
				assert.ErrorIs(t, err, message.ErrShortMessage)
			},
		},
		{
			name: "length mismatch",
			frame: func() []byte {
				b := message.New(message.ServerID, []byte("abc")).Bytes()
				binary.LittleEndian.PutUint32(b[0:4], 99)
				return b
			},
			validate: func(t *testing.T, msg message.Message, err error) {
				assert.ErrorIs(t, err, message.ErrLengthMismatch)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := message.Parse(tt.frame())
			tt.validate(t, msg, err)
		})
	}
}

// TestMessage_Immutable 封包內容不受外部修改影響
func TestMessage_Immutable(t *testing.T) {
	body := []byte("abc")
	msg := message.New(message.ServerID, body)
	body[0] = 'x'
	assert.Equal(t, "abc", string(msg.Body()))

	out := msg.Body()
	out[0] = 'y'
	assert.Equal(t, "abc", string(msg.Body()))
}

// TestNetworkID_JSON 測試 JSON 形式
func TestNetworkID_JSON(t *testing.T) {
	b, err := json.Marshal(message.ServerID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0,"b":1}`, string(b))

	var id message.NetworkID
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":34}`), &id))
	assert.Equal(t, message.NetworkID{A: 12, B: 34}, id)
}

// TestRandomID 隨機地址不會撞到保留地址的高位
func TestRandomID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := message.RandomID()
		assert.Less(t, id.A, uint32(1<<31))
		assert.Less(t, id.B, uint32(1<<31))
	}
}
