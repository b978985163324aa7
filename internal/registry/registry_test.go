package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddParticipantReturnsJoinOrder(t *testing.T) {
	reg := New()

	snap := reg.AddParticipant("R1", "conn-a", "Alice")
	require.Len(t, snap, 1)
	assert.Equal(t, "conn-a", snap[0].ID)
	assert.Equal(t, "Alice", snap[0].Name)
	assert.False(t, snap[0].IsTalking, "参加直後は発話状態false")
	assert.NotZero(t, snap[0].JoinedAt)

	reg.AddParticipant("R1", "conn-b", "Bob")
	snap = reg.AddParticipant("R1", "conn-c", "Carol")
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"conn-a", "conn-b", "conn-c"}, ids(snap))
}

func TestAddParticipantOverwritesSameConnection(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")
	snap := reg.AddParticipant("R1", "conn-a", "Alice2")

	require.Len(t, snap, 1)
	assert.Equal(t, "Alice2", snap[0].Name)
}

func TestRemoveParticipantKeepsJoinOrder(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")
	reg.AddParticipant("R1", "conn-b", "Bob")
	reg.AddParticipant("R1", "conn-c", "Carol")

	remaining, snap, removed := reg.RemoveParticipant("R1", "conn-b")
	require.True(t, removed)
	assert.Equal(t, 2, remaining)
	assert.Equal(t, []string{"conn-a", "conn-c"}, ids(snap))
}

func TestRemoveLastParticipantDeletesRoomImmediately(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")

	remaining, snap, removed := reg.RemoveParticipant("R1", "conn-a")
	require.True(t, removed)
	assert.Zero(t, remaining)
	assert.Empty(t, snap)

	// スイープを待たずに次の参照から見えなくなること
	_, _, ok := reg.Snapshot("R1")
	assert.False(t, ok)
	assert.Zero(t, reg.RoomCount())
}

func TestRemoveParticipantAbsentIsNoop(t *testing.T) {
	reg := New()

	_, _, removed := reg.RemoveParticipant("no-such-room", "conn-a")
	assert.False(t, removed)

	reg.AddParticipant("R1", "conn-a", "Alice")
	reg.AddParticipant("R1", "conn-b", "Bob")

	// 重複退出の2回目は no-op（減りもしないし壊れもしない）
	remaining, _, removed := reg.RemoveParticipant("R1", "conn-c")
	assert.False(t, removed)
	assert.Equal(t, 2, remaining)
}

func TestSetTalking(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")

	part, ok := reg.SetTalking("R1", "conn-a", true)
	require.True(t, ok)
	assert.True(t, part.IsTalking)
	assert.Equal(t, "Alice", part.Name)

	_, snap, _ := reg.Snapshot("R1")
	assert.True(t, snap[0].IsTalking)

	// 存在しないルーム / 参加者には適用されない（エラーでもない）
	_, ok = reg.SetTalking("no-such-room", "conn-a", true)
	assert.False(t, ok)
	_, ok = reg.SetTalking("R1", "conn-gone", true)
	assert.False(t, ok)
}

func TestRename(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")

	part, ok := reg.Rename("R1", "conn-a", "Alicia")
	require.True(t, ok)
	assert.Equal(t, "Alicia", part.Name)

	_, ok = reg.Rename("R1", "conn-gone", "x")
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")
	reg.AddParticipant("R1", "conn-b", "Bob")

	info, snap, ok := reg.Snapshot("R1")
	require.True(t, ok)
	assert.Equal(t, "R1", info.RoomID)
	assert.Equal(t, 2, info.Count)
	assert.NotZero(t, info.CreatedAt)
	assert.Equal(t, []string{"conn-a", "conn-b"}, ids(snap))

	_, _, ok = reg.Snapshot("no-such-room")
	assert.False(t, ok)
}

func TestMemberIDs(t *testing.T) {
	reg := New()
	reg.AddParticipant("R1", "conn-a", "Alice")
	reg.AddParticipant("R1", "conn-b", "Bob")

	assert.Equal(t, []string{"conn-a", "conn-b"}, reg.MemberIDs("R1"))
	assert.Empty(t, reg.MemberIDs("no-such-room"))
}

func TestSweepEmptyRooms(t *testing.T) {
	reg := New()
	// 正常経路では空ルームは作れないため、内部APIで取りこぼしを再現する
	reg.getOrCreate("ghost-1")
	reg.getOrCreate("ghost-2")
	reg.AddParticipant("live", "conn-a", "Alice")

	swept := reg.SweepEmptyRooms()
	assert.ElementsMatch(t, []string{"ghost-1", "ghost-2"}, swept)
	assert.Equal(t, 1, reg.RoomCount())

	// 冪等: もう一度掃除しても何も起きない
	assert.Empty(t, reg.SweepEmptyRooms())
}

func TestConcurrentJoinLeaveSameRoom(t *testing.T) {
	reg := New()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			for j := 0; j < 20; j++ {
				reg.AddParticipant("R1", connID, "user")
				reg.SetTalking("R1", connID, true)
				reg.RemoveParticipant("R1", connID)
			}
		}(i)
	}
	wg.Wait()

	// 全員が退出し終えたらルームは残らない
	_, _, ok := reg.Snapshot("R1")
	assert.False(t, ok)
	assert.Zero(t, reg.RoomCount())
}

func TestConcurrentDistinctRooms(t *testing.T) {
	reg := New()

	const workers = 30
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			roomID := fmt.Sprintf("room-%d", i)
			for j := 0; j < 10; j++ {
				connID := fmt.Sprintf("conn-%d-%d", i, j)
				reg.AddParticipant(roomID, connID, "user")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, reg.RoomCount())
	for i := 0; i < workers; i++ {
		info, _, ok := reg.Snapshot(fmt.Sprintf("room-%d", i))
		require.True(t, ok)
		assert.Equal(t, 10, info.Count)
	}
}

func ids(parts []Participant) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.ID)
	}
	return out
}
