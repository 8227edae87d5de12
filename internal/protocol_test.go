package internal_test

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-room-server/internal"
	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// body 組出 {type, args} 封包內容，args 二次編碼
func body(typ, args string) []byte {
	return []byte(`{"type":"` + typ + `","args":` + strconv.Quote(args) + `}`)
}

// TestParseCommand 測試指令解析與驗證
func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		validate func(t *testing.T, cmd internal.Command, err error)
	}{
		{
			name: "join with all fields",
			body: body("Join", `{"joincode":"abc","uuid":"`+roomUUID+`","name":"Lounge","publish":true,
				"peer":{"uuid":"p1","sceneid":{"a":1,"b":2},"clientid":{"a":3,"b":4},"keys":["k"],"values":["v"]}}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				join, ok := cmd.(internal.JoinArgs)
				require.True(t, ok)
				assert.Equal(t, "abc", join.JoinCode)
				assert.Equal(t, roomUUID, join.UUID)
				assert.Equal(t, "Lounge", join.Name)
				assert.True(t, join.Publish)
				assert.Equal(t, message.NetworkID{A: 1, B: 2}, join.Peer.SceneID)
				assert.Equal(t, message.NetworkID{A: 3, B: 4}, join.Peer.ClientID)
				assert.Equal(t, []string{"k"}, join.Peer.Keys)
			},
		},
		{
			name: "join without optional fields",
			body: body("Join", `{"publish":false,"peer":{"uuid":"p1","sceneid":{"a":0,"b":0},"clientid":{"a":0,"b":0},"keys":[],"values":[]}}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				join := cmd.(internal.JoinArgs)
				assert.Empty(t, join.UUID)
				assert.Empty(t, join.JoinCode)
				assert.NotNil(t, join.Peer.Keys)
			},
		},
		{
			name: "join missing peer",
			body: body("Join", `{"publish":false}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "Join", verr.Command)
				assert.Equal(t, "peer", verr.Field)
			},
		},
		{
			name: "nested field error keeps path",
			body: body("Join", `{"publish":false,"peer":{"uuid":"p1","sceneid":{"a":0,"b":0},"clientid":{"a":0},"keys":[],"values":[]}}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "peer.clientid.b", verr.Field)
			},
		},
		{
			name: "network id must be integer",
			body: body("Ping", `{"clientid":{"a":1.5,"b":0}}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "clientid.a", verr.Field)
			},
		},
		{
			name: "network id above uint32",
			body: body("Ping", `{"clientid":{"a":0,"b":4294967296}}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "clientid.b", verr.Field)
			},
		},
		{
			name: "append peer properties",
			body: body("AppendPeerProperties", `{"keys":["a","b"],"values":["1","2"]}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				assert.Equal(t, internal.AppendPeerProperties{Keys: []string{"a", "b"}, Values: []string{"1", "2"}}, cmd)
			},
		},
		{
			name: "append room properties with null values",
			body: body("AppendRoomProperties", `{"keys":["a"],"values":null}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "values", verr.Field)
			},
		},
		{
			name: "null element in values",
			body: body("AppendRoomProperties", `{"keys":["k"],"values":[null]}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "values.0", verr.Field)
				assert.Nil(t, cmd)
			},
		},
		{
			name: "null element in peer keys",
			body: body("Join", `{"publish":false,"peer":{"uuid":"p1","sceneid":{"a":0,"b":0},"clientid":{"a":0,"b":0},"keys":[null],"values":[]}}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "peer.keys.0", verr.Field)
			},
		},
		{
			name: "extra fields are ignored",
			body: body("SetBlob", `{"uuid":"layout","blob":"x","extra":1}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				assert.Equal(t, internal.SetBlob{UUID: "layout", Blob: "x"}, cmd)
			},
		},
		{
			name: "discover rooms",
			body: body("DiscoverRooms", `{"clientid":{"a":1,"b":2},"joincode":""}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				assert.Equal(t, internal.DiscoverRooms{ClientID: message.NetworkID{A: 1, B: 2}}, cmd)
			},
		},
		{
			name: "set blob",
			body: body("SetBlob", `{"uuid":"layout","blob":"{}"}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				assert.Equal(t, internal.SetBlob{UUID: "layout", Blob: "{}"}, cmd)
			},
		},
		{
			name: "get blob",
			body: body("GetBlob", `{"clientid":{"a":1,"b":2},"uuid":"layout"}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				assert.Equal(t, internal.TypeGetBlob, cmd.Type())
			},
		},
		{
			name: "observe",
			body: body("Observe", `{"uuid":"`+roomUUID+`"}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				require.NoError(t, err)
				assert.Equal(t, internal.Observe{UUID: roomUUID}, cmd)
			},
		},
		{
			name: "unknown type",
			body: body("Custom", `{}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				assert.ErrorIs(t, err, internal.ErrUnknownCommand)
				assert.Nil(t, cmd)
			},
		},
		{
			name: "args is not json",
			body: body("Ping", `{`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.NotErrorIs(t, err, internal.ErrUnknownCommand)
			},
		},
		{
			name: "missing type",
			body: []byte(`{"args":"{}"}`),
			validate: func(t *testing.T, cmd internal.Command, err error) {
				var verr *internal.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "type", verr.Field)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := internal.ParseCommand(tt.body)
			tt.validate(t, cmd, err)
		})
	}
}

// TestEncodeServerMessage args 以字串形式二次編碼
func TestEncodeServerMessage(t *testing.T) {
	to := message.NetworkID{A: 5, B: 6}
	msg, err := internal.EncodeServerMessage(to, internal.TypePing, internal.PingArgs{SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, to, msg.ID())

	var outer map[string]any
	require.NoError(t, json.Unmarshal(msg.Body(), &outer))
	assert.Equal(t, "Ping", outer["type"])
	assert.Equal(t, `{"sessionId":"s-1"}`, outer["args"])
}

// TestRejectedArgs_JSON 欄位名稱與客戶端一致
func TestRejectedArgs_JSON(t *testing.T) {
	data, err := json.Marshal(internal.RejectedArgs{
		Reason:   "no",
		JoinArgs: internal.JoinArgs{JoinCode: "abc", Peer: internal.PeerInfo{Keys: []string{}, Values: []string{}}},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "no", decoded["reason"])
	joinArgs, ok := decoded["joinArgs"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc", joinArgs["joincode"])
	assert.NotContains(t, joinArgs, "uuid")
}
