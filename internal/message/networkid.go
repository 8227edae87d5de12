package message

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NetworkID 封包路由地址（兩個 uint32）
//
// JSON 形式為 {"a":0,"b":1}，線上為 a、b 各 4 bytes 小端。
type NetworkID struct {
	A uint32 `json:"a"`
	B uint32 `json:"b"`
}

// ServerID 房間服務器的保留地址
var ServerID = NetworkID{A: 0, B: 1}

// NewID 由單一數值建立地址
func NewID(b uint32) NetworkID {
	return NetworkID{B: b}
}

// RandomID 產生隨機地址，兩半都落在 [0, 2^31)
func RandomID() NetworkID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("讀取隨機數失敗: %v", err))
	}
	return NetworkID{
		A: binary.LittleEndian.Uint32(b[0:4]) & 0x7fffffff,
		B: binary.LittleEndian.Uint32(b[4:8]) & 0x7fffffff,
	}
}

// IsZero 是否為零值
func (id NetworkID) IsZero() bool {
	return id == NetworkID{}
}

func (id NetworkID) String() string {
	return fmt.Sprintf("%08x-%08x", id.A, id.B)
}

func (id NetworkID) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], id.A)
	binary.LittleEndian.PutUint32(b[4:8], id.B)
}

func readID(b []byte) NetworkID {
	return NetworkID{
		A: binary.LittleEndian.Uint32(b[0:4]),
		B: binary.LittleEndian.Uint32(b[4:8]),
	}
}
