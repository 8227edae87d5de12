package internal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-room-server/internal"
)

// TestDirectory_AddRemove 兩個索引一起增刪
func TestDirectory_AddRemove(t *testing.T) {
	d := internal.NewDirectory()
	room := internal.NewRoom(roomUUID, "abc", "Lounge", true, testLogger())

	require.NoError(t, d.Add(room))
	assert.Equal(t, 1, d.Len())

	got, ok := d.ByUUID(roomUUID)
	require.True(t, ok)
	assert.Same(t, room, got)
	got, ok = d.ByJoinCode("abc")
	require.True(t, ok)
	assert.Same(t, room, got)

	// 重複的 uuid 或加入碼
	assert.Error(t, d.Add(internal.NewRoom(roomUUID, "xyz", "", false, testLogger())))
	assert.Error(t, d.Add(internal.NewRoom(otherUUID, "abc", "", false, testLogger())))
	assert.Equal(t, 1, d.Len())

	removed, ok := d.Remove(roomUUID)
	require.True(t, ok)
	assert.Same(t, room, removed)

	_, ok = d.ByUUID(roomUUID)
	assert.False(t, ok)
	_, ok = d.ByJoinCode("abc")
	assert.False(t, ok)
	assert.Empty(t, d.All())

	_, ok = d.Remove(roomUUID)
	assert.False(t, ok)
}

// TestDirectory_AllOrder 依創建順序回傳
func TestDirectory_AllOrder(t *testing.T) {
	d := internal.NewDirectory()
	var ids []string
	for i := 0; i < 5; i++ {
		id := d.NewUUID()
		require.NoError(t, d.Add(internal.NewRoom(id, d.NewJoinCode(), "", false, testLogger())))
		ids = append(ids, id)
	}
	d.Remove(ids[2])

	var got []string
	for _, r := range d.All() {
		got = append(got, r.UUID())
	}
	assert.Equal(t, []string{ids[0], ids[1], ids[3], ids[4]}, got)
}

// TestDirectory_UniqueJoinCodes 產生的加入碼不會與存活房間重複
func TestDirectory_UniqueJoinCodes(t *testing.T) {
	d := internal.NewDirectory()
	const n = 2000

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		code := d.NewJoinCode()
		require.Len(t, code, 3)
		require.Regexp(t, `^[a-z0-9]{3}$`, code)
		require.False(t, seen[code], "重複的加入碼 %s", code)
		seen[code] = true

		require.NoError(t, d.Add(internal.NewRoom(d.NewUUID(), code, "", false, testLogger())))
	}
	assert.Equal(t, n, d.Len())
}

// TestValidUUID 測試 uuid 格式檢查
func TestValidUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "v4", input: roomUUID, want: true},
		{name: "v4 uppercase", input: "5B2F0E0C-3C2A-4F6E-9A1B-2C3D4E5F6A7B", want: true},
		{name: "v1", input: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", want: false},
		{name: "wrong variant", input: "5b2f0e0c-3c2a-4f6e-ca1b-2c3d4e5f6a7b", want: false},
		{name: "braces", input: "{" + roomUUID + "}", want: false},
		{name: "no hyphens", input: "5b2f0e0c3c2a4f6e9a1b2c3d4e5f6a7b", want: false},
		{name: "empty", input: "", want: false},
		{name: "garbage", input: "not-a-uuid", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, internal.ValidUUID(tt.input))
		})
	}
}
