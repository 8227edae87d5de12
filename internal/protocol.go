package internal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// 送往服務器的封包內容：
//
//	{"type": "<指令>", "args": "<JSON 字串>"}
//
// args 是二次編碼的 JSON 字串。每種指令一個型別，ParseCommand 先以 commands.schema.json 驗證再解碼。

// 指令類型
const (
	TypeJoin                 = "Join"
	TypeAppendPeerProperties = "AppendPeerProperties"
	TypeAppendRoomProperties = "AppendRoomProperties"
	TypeDiscoverRooms        = "DiscoverRooms"
	TypeSetBlob              = "SetBlob"
	TypeGetBlob              = "GetBlob"
	TypePing                 = "Ping"
	TypeObserve              = "Observe"
	TypeUnobserve            = "Unobserve"
)

// 回應類型
const (
	TypeSetRoom                = "SetRoom"
	TypeRejected               = "Rejected"
	TypeRooms                  = "Rooms"
	TypePeerAdded              = "PeerAdded"
	TypePeerRemoved            = "PeerRemoved"
	TypeRoomPropertiesAppended = "RoomPropertiesAppended"
	TypePeerPropertiesAppended = "PeerPropertiesAppended"
	TypeBlob                   = "Blob"
)

// ErrUnknownCommand 不是服務器處理的指令，交給房間轉發
var ErrUnknownCommand = errors.New("未知的指令類型")

// ValidationError 指令格式錯誤
type ValidationError struct {
	Command string
	Field   string
	Reason  string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Command, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Command 已驗證的服務器指令
type Command interface {
	Type() string
}

// PeerInfo peer 摘要
type PeerInfo struct {
	UUID     string            `json:"uuid"`
	SceneID  message.NetworkID `json:"sceneid"`
	ClientID message.NetworkID `json:"clientid"`
	Keys     []string          `json:"keys"`
	Values   []string          `json:"values"`
}

// RoomInfo 房間摘要
type RoomInfo struct {
	UUID     string   `json:"uuid"`
	JoinCode string   `json:"joincode"`
	Publish  bool     `json:"publish"`
	Name     string   `json:"name"`
	Keys     []string `json:"keys"`
	Values   []string `json:"values"`
}

// JoinArgs 加入房間請求
//
// UUID 優先於 JoinCode；兩者皆空代表創建新房間。
type JoinArgs struct {
	JoinCode string   `json:"joincode,omitempty"`
	UUID     string   `json:"uuid,omitempty"`
	Name     string   `json:"name,omitempty"`
	Publish  bool     `json:"publish"`
	Peer     PeerInfo `json:"peer"`
}

func (JoinArgs) Type() string { return TypeJoin }

// AppendPeerProperties 修改自己的屬性
type AppendPeerProperties struct {
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

func (AppendPeerProperties) Type() string { return TypeAppendPeerProperties }

// AppendRoomProperties 修改目前房間的屬性
type AppendRoomProperties struct {
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

func (AppendRoomProperties) Type() string { return TypeAppendRoomProperties }

// DiscoverRooms 查詢房間
type DiscoverRooms struct {
	ClientID message.NetworkID `json:"clientid"`
	JoinCode string            `json:"joincode"`
}

func (DiscoverRooms) Type() string { return TypeDiscoverRooms }

// SetBlob 寫入房間內的 blob
type SetBlob struct {
	UUID string `json:"uuid"`
	Blob string `json:"blob"`
}

func (SetBlob) Type() string { return TypeSetBlob }

// GetBlob 讀取房間內的 blob
type GetBlob struct {
	ClientID message.NetworkID `json:"clientid"`
	UUID     string            `json:"uuid"`
}

func (GetBlob) Type() string { return TypeGetBlob }

// Ping 回傳 session id
type Ping struct {
	ClientID message.NetworkID `json:"clientid"`
}

func (Ping) Type() string { return TypePing }

// Observe 觀察某個房間的 peer 屬性變更（不成為成員）
type Observe struct {
	UUID string `json:"uuid"`
}

func (Observe) Type() string { return TypeObserve }

// Unobserve 停止觀察
type Unobserve struct {
	UUID string `json:"uuid"`
}

func (Unobserve) Type() string { return TypeUnobserve }

// ServerMessage 服務器訊息外層
type ServerMessage struct {
	Type string `json:"type"`
	Args string `json:"args"`
}

// Decode 解出 args
func (m ServerMessage) Decode(v any) error {
	return json.Unmarshal([]byte(m.Args), v)
}

// DecodeServerMessage 解析外層（不驗證 args）
func DecodeServerMessage(body []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := validateJSON(schemaMessage, schemaMessage, body, &m); err != nil {
		return ServerMessage{}, err
	}
	return m, nil
}

// EncodeServerMessage 將 args 二次編碼後組成封包
func EncodeServerMessage(to message.NetworkID, typ string, args any) (message.Message, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return message.Message{}, fmt.Errorf("編碼 %s 參數失敗: %w", typ, err)
	}
	return message.NewJSON(to, ServerMessage{Type: typ, Args: string(encoded)})
}

// ParseCommand 解析並驗證送往服務器的封包內容
//
// 未知的 type 回傳 ErrUnknownCommand；格式錯誤回傳 *ValidationError。
func ParseCommand(body []byte) (Command, error) {
	m, err := DecodeServerMessage(body)
	if err != nil {
		return nil, err
	}

	switch m.Type {
	case TypeJoin:
		return parseArgs[JoinArgs](m)
	case TypeAppendPeerProperties:
		return parseArgs[AppendPeerProperties](m)
	case TypeAppendRoomProperties:
		return parseArgs[AppendRoomProperties](m)
	case TypeDiscoverRooms:
		return parseArgs[DiscoverRooms](m)
	case TypeSetBlob:
		return parseArgs[SetBlob](m)
	case TypeGetBlob:
		return parseArgs[GetBlob](m)
	case TypePing:
		return parseArgs[Ping](m)
	case TypeObserve:
		return parseArgs[Observe](m)
	case TypeUnobserve:
		return parseArgs[Unobserve](m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Type)
	}
}

// parseArgs 以該指令的 schema 驗證 args 後解碼
func parseArgs[T Command](m ServerMessage) (Command, error) {
	var cmd T
	if err := validateJSON(m.Type, m.Type, []byte(m.Args), &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// 回應的 args

// SetRoomArgs SetRoom 回應
type SetRoomArgs struct {
	Room RoomInfo `json:"room"`
}

// RejectedArgs Rejected 回應
type RejectedArgs struct {
	Reason   string   `json:"reason"`
	JoinArgs JoinArgs `json:"joinArgs"`
}

// RoomsArgs Rooms 回應
type RoomsArgs struct {
	Rooms   []RoomInfo    `json:"rooms"`
	Version string        `json:"version"`
	Request DiscoverRooms `json:"request"`
}

// PeerAddedArgs PeerAdded 通知
type PeerAddedArgs struct {
	Peer PeerInfo `json:"peer"`
}

// PeerRemovedArgs PeerRemoved 通知
type PeerRemovedArgs struct {
	UUID string `json:"uuid"`
}

// RoomPropertiesArgs RoomPropertiesAppended 通知
type RoomPropertiesArgs struct {
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

// PeerPropertiesArgs PeerPropertiesAppended 通知
type PeerPropertiesArgs struct {
	UUID   string   `json:"uuid"`
	Keys   []string `json:"keys"`
	Values []string `json:"values"`
}

// BlobArgs Blob 回應
type BlobArgs struct {
	UUID string `json:"uuid"`
	Blob string `json:"blob"`
}

// PingArgs Ping 回應
type PingArgs struct {
	SessionID string `json:"sessionId"`
}
