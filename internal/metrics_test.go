package internal_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-room-server/internal"
	"github.com/koopa0/system-design/14-room-server/internal/message"
)

// TestMetrics_RoomLifecycle 房間與連接指標跟隨 Server 狀態
func TestMetrics_RoomLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := internal.NewServer(testLogger(), internal.WithMetrics(internal.NewMetrics(reg)))

	a := connect(t, s, "peer-a", 1)
	b := connect(t, s, "peer-b", 2)
	a.join(t, func(args *internal.JoinArgs) { args.UUID = roomUUID })
	b.join(t, func(args *internal.JoinArgs) { args.JoinCode = "nope" })
	b.HandleMessage(message.New(message.ServerID, []byte(`{"type":"Ping","args":"{}"}`)))
	a.HandleClose()

	expected := `
# HELP roomserver_connections 目前的連接數
# TYPE roomserver_connections gauge
roomserver_connections 1
# HELP roomserver_invalid_commands_total 格式錯誤而被丟棄的指令數
# TYPE roomserver_invalid_commands_total counter
roomserver_invalid_commands_total 1
# HELP roomserver_joins_rejected_total 被拒絕的加入請求數
# TYPE roomserver_joins_rejected_total counter
roomserver_joins_rejected_total 1
# HELP roomserver_rooms 目前存活的房間數
# TYPE roomserver_rooms gauge
roomserver_rooms 0
# HELP roomserver_rooms_created_total 創建的房間總數
# TYPE roomserver_rooms_created_total counter
roomserver_rooms_created_total 1
# HELP roomserver_rooms_destroyed_total 銷毀的房間總數
# TYPE roomserver_rooms_destroyed_total counter
roomserver_rooms_destroyed_total 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"roomserver_connections",
		"roomserver_invalid_commands_total",
		"roomserver_joins_rejected_total",
		"roomserver_rooms",
		"roomserver_rooms_created_total",
		"roomserver_rooms_destroyed_total",
	)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "roomserver_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "只有 Join 一種類型")
}

// TestMetrics_Bytes 位元組計數與 Status 一致
func TestMetrics_Bytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := internal.NewServer(testLogger(), internal.WithMetrics(internal.NewMetrics(reg)))

	a := connect(t, s, "peer-a", 1)
	a.send(t, internal.TypePing, internal.Ping{ClientID: a.clientID})

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}

	st := s.Status()
	assert.EqualValues(t, st.BytesIn, values["roomserver_received_bytes_total"])
	assert.EqualValues(t, st.BytesOut, values["roomserver_sent_bytes_total"])
	assert.EqualValues(t, 1, values["roomserver_messages_received_total"])
}

// TestMetrics_Nil 未啟用指標時不會 panic
func TestMetrics_Nil(t *testing.T) {
	s := internal.NewServer(testLogger(), internal.WithMetrics(nil))
	a := connect(t, s, "peer-a", 1)

	assert.NotPanics(t, func() {
		a.join(t, nil)
		a.HandleClose()
	})
}
