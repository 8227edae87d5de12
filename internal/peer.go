package internal

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-room-server/internal/message"
	"github.com/koopa0/system-design/14-room-server/internal/transport"
)

// Peer 服務器端代表一條客戶端連接
//
// 收到送往服務器（ServerID）的封包時解析成指令並執行，
// 其餘封包交給目前的房間轉發。所有回應都送往 peer 最近一次告知的 clientID。
type Peer struct {
	server *Server
	conn   transport.Conn
	logger *slog.Logger

	room       *Room
	sceneID    message.NetworkID
	clientID   message.NetworkID
	uuid       string
	properties *Dictionary
	sessionID  string
	observed   []*Room
	closed     bool
}

func newPeer(server *Server, conn transport.Conn) *Peer {
	return &Peer{
		server:     server,
		conn:       conn,
		logger:     server.logger.With("remote_addr", conn.RemoteAddr()),
		room:       emptyRoom,
		sceneID:    message.RandomID(),
		properties: NewDictionary(),
		sessionID:  uuid.NewString(),
	}
}

func (p *Peer) UUID() string                { return p.uuid }
func (p *Peer) SceneID() message.NetworkID  { return p.sceneID }
func (p *Peer) ClientID() message.NetworkID { return p.clientID }
func (p *Peer) SessionID() string           { return p.sessionID }
func (p *Peer) Conn() transport.Conn        { return p.conn }

// Room 目前所在的房間，不在任何房間時為 EmptyRoom()
func (p *Peer) Room() *Room {
	return p.room
}

// Property 讀取 peer 屬性
func (p *Peer) Property(key string) string {
	return p.properties.Get(key)
}

// Info peer 摘要
func (p *Peer) Info() PeerInfo {
	return PeerInfo{
		UUID:     p.uuid,
		SceneID:  p.sceneID,
		ClientID: p.clientID,
		Keys:     p.properties.Keys(),
		Values:   p.properties.Values(),
	}
}

// HandleMessage 處理一個收到的封包
func (p *Peer) HandleMessage(msg message.Message) {
	p.server.messageReceived(msg)

	if msg.ID() != message.ServerID {
		p.room.ProcessMessage(p, msg)
		return
	}

	cmd, err := ParseCommand(msg.Body())
	if errors.Is(err, ErrUnknownCommand) {
		p.room.ProcessMessage(p, msg)
		return
	}
	if err != nil {
		p.server.metrics.invalidCommand()
		p.logger.Warn("指令格式錯誤，已丟棄", "peer_uuid", p.uuid, "error", err)
		return
	}

	p.server.metrics.command(cmd.Type())
	p.execute(cmd)
}

func (p *Peer) execute(cmd Command) {
	switch c := cmd.(type) {
	case JoinArgs:
		p.server.Join(p, c)

	case AppendPeerProperties:
		changes := p.properties.Append(c.Keys, c.Values)
		if !changes.Empty() {
			p.room.BroadcastPeerProperties(p, changes)
		}

	case AppendRoomProperties:
		p.room.AppendProperties(c.Keys, c.Values)

	case DiscoverRooms:
		p.clientID = c.ClientID
		rooms := p.server.DiscoverRooms(c.JoinCode)
		infos := make([]RoomInfo, 0, len(rooms))
		for _, r := range rooms {
			infos = append(infos, r.Info())
		}
		p.sendRooms(infos, c)

	case SetBlob:
		p.room.SetBlob(c.UUID, c.Blob)

	case GetBlob:
		p.clientID = c.ClientID
		p.sendBlob(c.UUID, p.room.Blob(c.UUID))

	case Ping:
		p.clientID = c.ClientID
		p.sendPing()

	case Observe:
		p.server.Observe(p, c.UUID)

	case Unobserve:
		p.server.Unobserve(p, c.UUID)
	}
}

// HandleClose 連接關閉：離開房間、取消所有觀察，可重複呼叫
func (p *Peer) HandleClose() {
	if p.closed {
		return
	}
	p.closed = true

	p.server.Leave(p)
	for _, r := range p.Observed() {
		r.RemoveObserver(p)
	}
	p.server.disconnected(p)
}

// Observed 目前觀察中的房間
func (p *Peer) Observed() []*Room {
	out := make([]*Room, len(p.observed))
	copy(out, p.observed)
	return out
}

func (p *Peer) setRoom(r *Room) {
	p.room = r
	p.sendSetRoom(r)
}

// send 把封包交給傳輸層並計入出站流量
func (p *Peer) send(msg message.Message) {
	p.server.messageSent(msg)
	p.conn.Send(msg)
}

func (p *Peer) sendServerMessage(typ string, args any) {
	msg, err := EncodeServerMessage(p.clientID, typ, args)
	if err != nil {
		p.logger.Error("編碼回應失敗", "peer_uuid", p.uuid, "type", typ, "error", err)
		return
	}
	p.send(msg)
}

func (p *Peer) sendSetRoom(r *Room) {
	p.sendServerMessage(TypeSetRoom, SetRoomArgs{Room: r.Info()})
}

func (p *Peer) sendRejected(reason string, args JoinArgs) {
	p.sendServerMessage(TypeRejected, RejectedArgs{Reason: reason, JoinArgs: args})
}

func (p *Peer) sendRooms(rooms []RoomInfo, request DiscoverRooms) {
	p.sendServerMessage(TypeRooms, RoomsArgs{
		Rooms:   rooms,
		Version: p.server.Version(),
		Request: request,
	})
}

func (p *Peer) sendPeerAdded(other *Peer) {
	p.sendServerMessage(TypePeerAdded, PeerAddedArgs{Peer: other.Info()})
}

func (p *Peer) sendPeerRemoved(other *Peer) {
	p.sendServerMessage(TypePeerRemoved, PeerRemovedArgs{UUID: other.uuid})
}

func (p *Peer) sendRoomPropertiesAppended(changes Changes) {
	p.sendServerMessage(TypeRoomPropertiesAppended, RoomPropertiesArgs{
		Keys:   changes.Keys,
		Values: changes.Values,
	})
}

func (p *Peer) sendPeerPropertiesAppended(source *Peer, changes Changes) {
	p.sendServerMessage(TypePeerPropertiesAppended, PeerPropertiesArgs{
		UUID:   source.uuid,
		Keys:   changes.Keys,
		Values: changes.Values,
	})
}

func (p *Peer) sendBlob(id, blob string) {
	p.sendServerMessage(TypeBlob, BlobArgs{UUID: id, Blob: blob})
}

func (p *Peer) sendPing() {
	p.sendServerMessage(TypePing, PingArgs{SessionID: p.sessionID})
}
