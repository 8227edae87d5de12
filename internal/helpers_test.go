package internal_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-room-server/internal"
	"github.com/koopa0/system-design/14-room-server/internal/message"
)

const (
	roomUUID  = "5b2f0e0c-3c2a-4f6e-9a1b-2c3d4e5f6a7b"
	otherUUID = "0f8fad5b-d9cb-469f-a165-70867728950e"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn 記錄送出的封包，不經過網路
type fakeConn struct {
	addr   string
	sent   []message.Message
	closed bool
}

func (c *fakeConn) Send(msg message.Message) { c.sent = append(c.sent, msg) }
func (c *fakeConn) Close() error             { c.closed = true; return nil }
func (c *fakeConn) RemoteAddr() string       { return c.addr }

// take 取出並清空已送出的封包
func (c *fakeConn) take() []message.Message {
	out := c.sent
	c.sent = nil
	return out
}

// replies 取出並解析所有服務器回應
func (c *fakeConn) replies(t *testing.T) []internal.ServerMessage {
	t.Helper()
	var out []internal.ServerMessage
	for _, msg := range c.take() {
		sm, err := internal.DecodeServerMessage(msg.Body())
		require.NoError(t, err, "不是服務器回應: %s", msg)
		out = append(out, sm)
	}
	return out
}

func replyTypes(msgs []internal.ServerMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func decodeArgs[T any](t *testing.T, m internal.ServerMessage) T {
	t.Helper()
	var v T
	require.NoError(t, m.Decode(&v))
	return v
}

// testPeer 一個連到 Server 的假客戶端
type testPeer struct {
	*internal.Peer
	conn     *fakeConn
	clientID message.NetworkID
	uuid     string
}

func connect(t *testing.T, s *internal.Server, uuid string, clientB uint32) *testPeer {
	t.Helper()
	conn := &fakeConn{addr: "test/" + uuid}
	return &testPeer{
		Peer:     s.Connect(conn),
		conn:     conn,
		clientID: message.NetworkID{A: 1, B: clientB},
		uuid:     uuid,
	}
}

func (p *testPeer) send(t *testing.T, typ string, args any) {
	t.Helper()
	msg, err := internal.EncodeServerMessage(message.ServerID, typ, args)
	require.NoError(t, err)
	p.HandleMessage(msg)
}

func (p *testPeer) joinArgs() internal.JoinArgs {
	return internal.JoinArgs{
		Peer: internal.PeerInfo{
			UUID:     p.uuid,
			SceneID:  message.NetworkID{A: 2, B: p.clientID.B},
			ClientID: p.clientID,
			Keys:     []string{},
			Values:   []string{},
		},
	}
}

func (p *testPeer) join(t *testing.T, modify func(*internal.JoinArgs)) {
	t.Helper()
	args := p.joinArgs()
	if modify != nil {
		modify(&args)
	}
	p.send(t, internal.TypeJoin, args)
}
