package internal_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-room-server/internal"
	"github.com/koopa0/system-design/14-room-server/internal/message"
)

func readStatusLines(t *testing.T, data []byte) []internal.Status {
	t.Helper()
	var out []internal.Status
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var st internal.Status
		require.NoError(t, json.Unmarshal(sc.Bytes(), &st))
		out = append(out, st)
	}
	require.NoError(t, sc.Err())
	return out
}

// TestDotNetTicks 測試 .NET ticks 換算
func TestDotNetTicks(t *testing.T) {
	assert.EqualValues(t, 621355968000000000, internal.DotNetTicks(time.Unix(0, 0)))
	assert.EqualValues(t, 621355968000010000, internal.DotNetTicks(time.UnixMilli(1)))
	// 毫秒以下捨去
	assert.EqualValues(t, 621355968000010000, internal.DotNetTicks(time.Unix(0, 1_999_999)))
}

// TestStatusLog_Throttle 兩行之間至少間隔 StatusInterval
func TestStatusLog_Throttle(t *testing.T) {
	clk := clock.NewMock()
	var buf bytes.Buffer
	l := internal.NewStatusLog(&buf, clk)

	calls := 0
	snapshot := func() internal.Status {
		calls++
		return internal.Status{Connections: calls}
	}

	steps := []struct {
		advance time.Duration
		written bool
	}{
		{advance: 0, written: true},
		{advance: 50 * time.Millisecond, written: false},
		{advance: 50 * time.Millisecond, written: false},
		{advance: time.Millisecond, written: true},
		{advance: 10 * time.Millisecond, written: false},
		{advance: time.Second, written: true},
	}

	for i, step := range steps {
		clk.Add(step.advance)
		written, err := l.Poll(snapshot)
		require.NoError(t, err)
		assert.Equal(t, step.written, written, "step %d", i)
	}

	lines := readStatusLines(t, buf.Bytes())
	require.Len(t, lines, 3)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, lines[2].Connections)

	require.NoError(t, l.Close())
	written, err := l.Poll(snapshot)
	require.NoError(t, err)
	assert.False(t, written)
}

// TestStatusLog_File 追加寫入檔案，欄位名稱固定
func TestStatusLog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"connections":0,"rooms":0,"messages":0,"bytesIn":0,"bytesOut":0,"time":0}`+"\n"), 0o644))

	clk := clock.NewMock()
	l, err := internal.OpenStatusLog(path, clk)
	require.NoError(t, err)

	s := internal.NewServer(testLogger(), internal.WithStatusLog(l), internal.WithClock(clk))
	p := connect(t, s, "peer-a", 1)
	p.HandleMessage(message.New(message.NetworkID{A: 1, B: 1}, []byte("hello")))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	firstNewline := bytes.IndexByte(data, '\n')
	require.NoError(t, json.Unmarshal(data[firstNewline+1:bytes.LastIndexByte(data, '\n')], &raw))
	for _, key := range []string{"connections", "rooms", "messages", "bytesIn", "bytesOut", "time"} {
		assert.Contains(t, raw, key)
	}

	lines := readStatusLines(t, data)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[1].Connections)
	assert.EqualValues(t, 1, lines[1].Messages)
	assert.EqualValues(t, 8+5+4, lines[1].BytesIn)
	assert.Equal(t, internal.DotNetTicks(clk.Now()), lines[1].Time)
}
