package internal

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	joinCodeChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	joinCodeLength = 3
)

// Directory 目前存活房間的索引
//
// 兩個 map（uuid → Room、joinCode → Room）一起增刪，保持一致；
// order 記錄創建順序，All() 依此回傳。
//
// 與其他核心狀態一樣只在事件迴圈中存取，不加鎖。
type Directory struct {
	byUUID     map[string]*Room
	byJoinCode map[string]*Room
	order      []*Room
}

// NewDirectory 創建空的房間索引
func NewDirectory() *Directory {
	return &Directory{
		byUUID:     make(map[string]*Room),
		byJoinCode: make(map[string]*Room),
	}
}

// Add 登記房間
func (d *Directory) Add(room *Room) error {
	if _, exists := d.byUUID[room.UUID()]; exists {
		return fmt.Errorf("房間已存在: %s", room.UUID())
	}
	if _, exists := d.byJoinCode[room.JoinCode()]; exists {
		return fmt.Errorf("加入碼已被使用: %s", room.JoinCode())
	}
	d.byUUID[room.UUID()] = room
	d.byJoinCode[room.JoinCode()] = room
	d.order = append(d.order, room)
	return nil
}

// Remove 依 uuid 移除房間，回傳被移除的房間
func (d *Directory) Remove(id string) (*Room, bool) {
	room, exists := d.byUUID[id]
	if !exists {
		return nil, false
	}
	delete(d.byUUID, id)
	delete(d.byJoinCode, room.JoinCode())
	for i, r := range d.order {
		if r == room {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return room, true
}

// ByUUID 依 uuid 查詢
func (d *Directory) ByUUID(id string) (*Room, bool) {
	room, ok := d.byUUID[id]
	return room, ok
}

// ByJoinCode 依加入碼查詢
func (d *Directory) ByJoinCode(code string) (*Room, bool) {
	room, ok := d.byJoinCode[code]
	return room, ok
}

// All 依創建順序回傳所有房間
func (d *Directory) All() []*Room {
	out := make([]*Room, len(d.order))
	copy(out, d.order)
	return out
}

// Len 房間數量
func (d *Directory) Len() int {
	return len(d.byUUID)
}

// NewUUID 產生一個目前未被使用的 v4 uuid
func (d *Directory) NewUUID() string {
	for {
		id := uuid.NewString()
		if _, exists := d.byUUID[id]; !exists {
			return id
		}
	}
}

// NewJoinCode 產生一個目前未被使用的加入碼
//
// 加入碼只有 36^3 種組合，撞到就重抽。
func (d *Directory) NewJoinCode() string {
	for {
		code := generateJoinCode()
		if _, exists := d.byJoinCode[code]; !exists {
			return code
		}
	}
}

// generateJoinCode 生成簡短的加入碼
func generateJoinCode() string {
	var b strings.Builder
	limit := big.NewInt(int64(len(joinCodeChars)))
	for i := 0; i < joinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(fmt.Sprintf("讀取隨機數失敗: %v", err))
		}
		b.WriteByte(joinCodeChars[n.Int64()])
	}
	return b.String()
}

// ValidUUID 是否為標準格式的 RFC 4122 v4 uuid
func ValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}
