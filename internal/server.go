package internal

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/koopa0/system-design/14-room-server/internal/message"
	"github.com/koopa0/system-design/14-room-server/internal/transport"
)

// Version 回傳給 DiscoverRooms 的服務器版本
const Version = "0.0.4"

// 系統設計問題：
//   客戶端只知道一個 uuid、一個三字元加入碼，或什麼都不知道，
//   服務器如何把它放進正確的房間，並在房間空掉時回收？
//
// 設計方案：
//   - uuid 優先：格式不對就拒絕，不存在就用這個 uuid 創建
//   - 其次加入碼：不存在就拒絕
//   - 都沒有就創建新房間
//   - 房間最後一個成員離開時銷毀
//
// Server 的所有方法都在 Hub 的事件迴圈中呼叫。

// RoomEventKind 房間生命週期事件
type RoomEventKind int

const (
	RoomCreated RoomEventKind = iota
	RoomDestroyed
)

func (k RoomEventKind) String() string {
	switch k {
	case RoomCreated:
		return "created"
	case RoomDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("RoomEventKind(%d)", int(k))
	}
}

// RoomEvent 房間被創建或銷毀
type RoomEvent struct {
	Kind RoomEventKind
	Room *Room
}

// Status 服務器統計快照
type Status struct {
	Connections int   `json:"connections"`
	Rooms       int   `json:"rooms"`
	Messages    int64 `json:"messages"`
	BytesIn     int64 `json:"bytesIn"`
	BytesOut    int64 `json:"bytesOut"`
	Time        int64 `json:"time"`
}

// Server 房間服務器
type Server struct {
	directory *Directory
	logger    *slog.Logger
	metrics   *Metrics
	statusLog *StatusLog
	clock     clock.Clock

	status    Status
	listeners []func(RoomEvent)
}

// Option 設定 Server
type Option func(*Server)

// WithMetrics 統計寫入 Prometheus
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithStatusLog 定期寫入狀態日誌
func WithStatusLog(l *StatusLog) Option {
	return func(s *Server) { s.statusLog = l }
}

// WithClock 替換時鐘（測試用）
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// NewServer 創建房間服務器
func NewServer(logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		directory: NewDirectory(),
		logger:    logger,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.ObserveRooms(s)
	return s
}

// Version 服務器版本
func (s *Server) Version() string {
	return Version
}

// OnRoomEvent 註冊房間生命週期監聽
func (s *Server) OnRoomEvent(fn func(RoomEvent)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Server) emit(kind RoomEventKind, room *Room) {
	for _, fn := range s.listeners {
		fn(RoomEvent{Kind: kind, Room: room})
	}
}

// Connect 為新連接創建 peer
func (s *Server) Connect(conn transport.Conn) *Peer {
	s.status.Connections++
	s.metrics.connectionOpened()
	s.logger.Debug("新連接", "remote_addr", conn.RemoteAddr(), "connections", s.status.Connections)
	return newPeer(s, conn)
}

func (s *Server) disconnected(p *Peer) {
	s.status.Connections--
	s.metrics.connectionClosed()
	s.logger.Debug("連接關閉", "remote_addr", p.conn.RemoteAddr(), "peer_uuid", p.uuid, "connections", s.status.Connections)
}

func (s *Server) messageReceived(msg message.Message) {
	s.status.Messages++
	s.status.BytesIn += int64(msg.Len())
	s.metrics.messageIn(msg.Len())
	s.PollStatus()
}

func (s *Server) messageSent(msg message.Message) {
	s.status.BytesOut += int64(msg.Len())
	s.metrics.messageOut(msg.Len())
}

// Join 依 JoinArgs 把 peer 放進房間
func (s *Server) Join(peer *Peer, args JoinArgs) {
	peer.sceneID = args.Peer.SceneID
	peer.clientID = args.Peer.ClientID
	peer.uuid = args.Peer.UUID
	peer.properties.Append(args.Peer.Keys, args.Peer.Values)

	var room *Room

	switch {
	case args.UUID != "":
		if !ValidUUID(args.UUID) {
			s.reject(peer, fmt.Sprintf("Could not join room with uuid %s. We require an RFC4122 v4 uuid.", args.UUID), args)
			return
		}
		if existing, ok := s.directory.ByUUID(args.UUID); ok {
			room = existing
		} else {
			room = s.createRoom(args.UUID, args.Name, args.Publish)
		}

	case args.JoinCode != "":
		existing, ok := s.directory.ByJoinCode(args.JoinCode)
		if !ok {
			s.reject(peer, fmt.Sprintf("Could not join room with code %s. No such room exists.", args.JoinCode), args)
			return
		}
		room = existing

	default:
		room = s.createRoom(s.directory.NewUUID(), args.Name, args.Publish)
	}

	if peer.room == room {
		return
	}

	s.Leave(peer)
	room.AddPeer(peer)
}

func (s *Server) reject(peer *Peer, reason string, args JoinArgs) {
	s.metrics.joinRejected()
	s.logger.Info("拒絕加入", "peer_uuid", peer.uuid, "reason", reason)
	peer.sendRejected(reason, args)
}

// Leave 讓 peer 離開目前的房間，房間空了就銷毀
func (s *Server) Leave(peer *Peer) {
	room := peer.room
	if room.IsEmptyRoom() {
		return
	}
	if room.RemovePeer(peer) {
		s.RemoveRoom(room)
	}
}

func (s *Server) createRoom(id, name string, publish bool) *Room {
	if name == "" {
		name = id
	}
	room := NewRoom(id, s.directory.NewJoinCode(), name, publish, s.logger)
	if err := s.directory.Add(room); err != nil {
		// uuid 與加入碼在同一個迴圈內產生並檢查過
		panic(err)
	}

	s.logger.Info("創建房間", "room_id", room.UUID(), "join_code", room.JoinCode(), "name", name, "publish", publish)
	s.emit(RoomCreated, room)
	return room
}

// FindOrCreateRoom 依 uuid 取得房間，不存在就創建一個不公開的房間
//
// 供嵌入服務器的程式直接建立房間，不經過 Join 指令。
func (s *Server) FindOrCreateRoom(id string) (*Room, error) {
	if room, ok := s.directory.ByUUID(id); ok {
		return room, nil
	}
	if !ValidUUID(id) {
		return nil, fmt.Errorf("無效的房間 uuid: %q", id)
	}
	return s.createRoom(id, "", false), nil
}

// RemoveRoom 銷毀房間並移除所有觀察者
func (s *Server) RemoveRoom(room *Room) {
	if _, ok := s.directory.Remove(room.UUID()); !ok {
		return
	}
	for _, o := range room.Observers() {
		room.RemoveObserver(o)
	}

	s.logger.Info("刪除空房間", "room_id", room.UUID(), "join_code", room.JoinCode())
	s.emit(RoomDestroyed, room)
}

// DiscoverRooms 有加入碼時回傳該加入碼的房間（不論是否公開），否則回傳所有公開房間
func (s *Server) DiscoverRooms(joinCode string) []*Room {
	if joinCode != "" {
		if room, ok := s.directory.ByJoinCode(joinCode); ok {
			return []*Room{room}
		}
		return []*Room{}
	}

	rooms := []*Room{}
	for _, room := range s.directory.All() {
		if room.Publish() {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// Rooms 所有存活的房間（依創建順序）
func (s *Server) Rooms() []*Room {
	return s.directory.All()
}

// Room 依 uuid 查詢房間
func (s *Server) Room(id string) (*Room, bool) {
	return s.directory.ByUUID(id)
}

// Observe 讓 peer 觀察既有房間
func (s *Server) Observe(peer *Peer, id string) {
	room, ok := s.directory.ByUUID(id)
	if !ok {
		s.logger.Debug("觀察的房間不存在", "peer_uuid", peer.uuid, "room_id", id)
		return
	}
	room.AddObserver(peer)
}

// Unobserve 取消觀察
func (s *Server) Unobserve(peer *Peer, id string) {
	room, ok := s.directory.ByUUID(id)
	if !ok {
		s.logger.Debug("取消觀察的房間不存在", "peer_uuid", peer.uuid, "room_id", id)
		return
	}
	room.RemoveObserver(peer)
}

// Status 目前的統計快照
func (s *Server) Status() Status {
	st := s.status
	st.Rooms = s.directory.Len()
	st.Time = DotNetTicks(s.clock.Now())
	return st
}

// PollStatus 距離上次寫入超過間隔時寫一行狀態日誌
func (s *Server) PollStatus() {
	if s.statusLog == nil {
		return
	}
	if _, err := s.statusLog.Poll(s.Status); err != nil {
		s.logger.Warn("寫入狀態日誌失敗", "error", err)
	}
}

// Close 寫出並關閉狀態日誌
func (s *Server) Close() error {
	if s.statusLog == nil {
		return nil
	}
	if err := s.statusLog.Close(); err != nil {
		return fmt.Errorf("關閉狀態日誌失敗: %w", err)
	}
	return nil
}
