package internal

import (
	"io"
	"log/slog"
	"slices"

	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// 系統設計問題：
//   一個房間內的多個 peer 如何互相發現、同步共享屬性、轉發任意訊息？
//
// 設計方案：
//   - 成員有序：加入時與每個既有成員互相介紹（N 個成員 → 2N 則 PeerAdded）
//   - 屬性只廣播實際變更的部分
//   - 房間不持有 Server：RemovePeer 回傳「已空」，由 Server 負責銷毀
//   - 不在任何房間的 peer 指向 EmptyRoom，所有修改都是 no-op
//
// 所有方法只在事件迴圈中呼叫，不加鎖。

// Room 一個多人 session
type Room struct {
	uuid     string
	joinCode string
	name     string
	publish  bool

	properties *Dictionary
	blobs      map[string]string
	peers      []*Peer
	observers  []*Peer

	sentinel bool
	logger   *slog.Logger
}

var emptyRoom = &Room{
	sentinel:   true,
	properties: NewDictionary(),
	blobs:      make(map[string]string),
	logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
}

// EmptyRoom 代表「不在任何房間」的哨兵
func EmptyRoom() *Room {
	return emptyRoom
}

// NewRoom 創建房間（不登記到 Directory）
func NewRoom(uuid, joinCode, name string, publish bool, logger *slog.Logger) *Room {
	return &Room{
		uuid:       uuid,
		joinCode:   joinCode,
		name:       name,
		publish:    publish,
		properties: NewDictionary(),
		blobs:      make(map[string]string),
		logger:     logger.With("room_id", uuid),
	}
}

func (r *Room) UUID() string     { return r.uuid }
func (r *Room) JoinCode() string { return r.joinCode }
func (r *Room) Name() string     { return r.name }
func (r *Room) Publish() bool    { return r.publish }

// IsEmptyRoom 是否為哨兵
func (r *Room) IsEmptyRoom() bool {
	return r.sentinel
}

// Peers 依加入順序回傳成員
func (r *Room) Peers() []*Peer {
	return slices.Clone(r.peers)
}

// PeerCount 成員數量
func (r *Room) PeerCount() int {
	return len(r.peers)
}

// Has 是否為成員
func (r *Room) Has(p *Peer) bool {
	return slices.Contains(r.peers, p)
}

// Observers 目前的觀察者
func (r *Room) Observers() []*Peer {
	return slices.Clone(r.observers)
}

// Property 讀取房間屬性
func (r *Room) Property(key string) string {
	return r.properties.Get(key)
}

// Info 房間摘要
func (r *Room) Info() RoomInfo {
	return RoomInfo{
		UUID:     r.uuid,
		JoinCode: r.joinCode,
		Publish:  r.publish,
		Name:     r.name,
		Keys:     r.properties.Keys(),
		Values:   r.properties.Values(),
	}
}

// PeerInfos 所有成員的摘要
func (r *Room) PeerInfos() []PeerInfo {
	out := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.Info())
	}
	return out
}

// AddPeer 加入成員
//
// 先把房間指派給 peer（peer 收到 SetRoom），再讓新成員與每個既有成員互相收到 PeerAdded。
func (r *Room) AddPeer(p *Peer) {
	if r.sentinel || r.Has(p) {
		return
	}

	r.peers = append(r.peers, p)
	p.setRoom(r)

	for _, existing := range r.peers {
		if existing == p {
			continue
		}
		existing.sendPeerAdded(p)
		p.sendPeerAdded(existing)
	}

	r.logger.Info("peer 加入房間", "peer_uuid", p.UUID(), "name", r.name, "peers", len(r.peers))
}

// RemovePeer 移除成員，回傳房間是否已空
//
// peer 會被指回 EmptyRoom（收到 SetRoom），剩餘成員收到 PeerRemoved，
// 離開的 peer 也會收到每個剩餘成員的 PeerRemoved。
func (r *Room) RemovePeer(p *Peer) (empty bool) {
	if r.sentinel {
		return false
	}
	i := slices.Index(r.peers, p)
	if i < 0 {
		return false
	}

	r.peers = slices.Delete(r.peers, i, i+1)
	p.setRoom(emptyRoom)

	for _, existing := range r.peers {
		existing.sendPeerRemoved(p)
		p.sendPeerRemoved(existing)
	}

	r.logger.Info("peer 離開房間", "peer_uuid", p.UUID(), "name", r.name, "peers", len(r.peers))
	return len(r.peers) == 0
}

// AppendProperties 合併房間屬性，只把變更的部分廣播給所有成員
func (r *Room) AppendProperties(keys, values []string) Changes {
	if r.sentinel {
		return Changes{Keys: []string{}, Values: []string{}}
	}

	changes := r.properties.Append(keys, values)
	if changes.Empty() {
		return changes
	}
	for _, p := range r.peers {
		p.sendRoomPropertiesAppended(changes)
	}
	return changes
}

// BroadcastPeerProperties 把某個 peer 的屬性變更轉告其他成員與觀察者
func (r *Room) BroadcastPeerProperties(source *Peer, changes Changes) {
	if r.sentinel {
		return
	}
	for _, p := range r.peers {
		if p != source {
			p.sendPeerPropertiesAppended(source, changes)
		}
	}
	for _, o := range r.observers {
		if o != source && !r.Has(o) {
			o.sendPeerPropertiesAppended(source, changes)
		}
	}
}

// ProcessMessage 把封包原樣轉發給其他成員
func (r *Room) ProcessMessage(source *Peer, msg message.Message) {
	if r.sentinel {
		return
	}
	for _, p := range r.peers {
		if p != source {
			p.send(msg)
		}
	}
}

// SetBlob 寫入 blob
func (r *Room) SetBlob(id, blob string) {
	if r.sentinel {
		return
	}
	r.blobs[id] = blob
}

// Blob 讀取 blob，不存在回傳空字串
func (r *Room) Blob(id string) string {
	return r.blobs[id]
}

// AddObserver 登記觀察者，觀察者只收 peer 屬性變更
func (r *Room) AddObserver(p *Peer) {
	if r.sentinel || slices.Contains(r.observers, p) {
		return
	}
	r.observers = append(r.observers, p)
	p.observed = append(p.observed, r)
}

// RemoveObserver 取消觀察
func (r *Room) RemoveObserver(p *Peer) {
	if i := slices.Index(r.observers, p); i >= 0 {
		r.observers = slices.Delete(r.observers, i, i+1)
	}
	if i := slices.Index(p.observed, r); i >= 0 {
		p.observed = slices.Delete(p.observed, i, i+1)
	}
}
