package rooms

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewRegistry(append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func TestCreateRoomIDsAreUniqueAndCreatorBecomesHost(t *testing.T) {
	reg, _ := newTestRegistry(t)
	seen := map[string]bool{}
	for size := MinPlayers; size <= MaxPlayers; size++ {
		owner := fmt.Sprintf("p%d", size)
		roomID, err := reg.CreateRoom("R", size, "", owner)
		require.NoError(t, err)
		assert.False(t, seen[roomID], "duplicate room id %s", roomID)
		seen[roomID] = true

		_, err = reg.JoinRoom(owner, roomID, owner, "")
		require.NoError(t, err)
		info, ok := reg.Snapshot(roomID)
		require.True(t, ok)
		assert.Equal(t, owner, info.HostID)
		assert.Equal(t, size, info.MaxPlayers)
		assert.Equal(t, protocol.RoomWaiting, info.State)
	}
	require.NoError(t, reg.CheckInvariants())
}

func TestClampMaxPlayers(t *testing.T) {
	assert.Equal(t, DefaultMaxPlayers, ClampMaxPlayers(0))
	assert.Equal(t, MinPlayers, ClampMaxPlayers(1))
	assert.Equal(t, MaxPlayers, ClampMaxPlayers(12))
	assert.Equal(t, 3, ClampMaxPlayers(3))
}

func TestHostHandoverAndRoomDeletion(t *testing.T) {
	reg, clock := newTestRegistry(t)
	roomID, err := reg.CreateRoom("R", 2, "", "A")
	require.NoError(t, err)

	_, err = reg.JoinRoom("A", roomID, "A", "")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = reg.JoinRoom("B", roomID, "B", "")
	require.NoError(t, err)

	result, ok := reg.LeaveRoom("A")
	require.True(t, ok)
	assert.Equal(t, "B", result.NewHostID)
	assert.False(t, result.RoomDeleted)

	info, ok := reg.Snapshot(roomID)
	require.True(t, ok)
	assert.Equal(t, "B", info.HostID)
	assert.Equal(t, 1, info.CurrentPlayers)

	result, ok = reg.LeaveRoom("B")
	require.True(t, ok)
	assert.True(t, result.RoomDeleted)
	assert.False(t, reg.Exists(roomID))
	require.NoError(t, reg.CheckInvariants())
}

func TestHostHandoverPrefersEarliestJoin(t *testing.T) {
	reg, clock := newTestRegistry(t)
	roomID, err := reg.CreateRoom("R", 4, "", "A")
	require.NoError(t, err)
	for _, player := range []string{"A", "C", "B"} {
		_, err := reg.JoinRoom(player, roomID, player, "")
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	result, _ := reg.LeaveRoom("A")
	assert.Equal(t, "C", result.NewHostID)
}

func TestJoinRoomFailuresDoNotMutate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	locked, err := reg.CreateRoom("locked", 2, "secret", "A")
	require.NoError(t, err)
	_, err = reg.JoinRoom("A", locked, "A", "secret")
	require.NoError(t, err)
	_, err = reg.JoinRoom("B", locked, "B", "secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		roomID   string
		password string
		code     apperrors.Code
	}{
		{name: "missing room", roomID: "nope", code: apperrors.CodeNotFound},
		{name: "wrong password", roomID: locked, password: "guess", code: apperrors.CodeAuthorization},
		{name: "full room", roomID: locked, password: "secret", code: apperrors.CodeCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.JoinRoom("C", tt.roomID, "C", tt.password)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			_, seated := reg.RoomOf("C")
			assert.False(t, seated)
		})
	}
	require.NoError(t, reg.CheckInvariants())
}

func TestJoinRoomMovesPlayerBetweenRooms(t *testing.T) {
	reg, _ := newTestRegistry(t)
	first, _ := reg.CreateRoom("one", 4, "", "A")
	second, _ := reg.CreateRoom("two", 4, "", "B")
	_, err := reg.JoinRoom("A", first, "A", "")
	require.NoError(t, err)
	_, err = reg.JoinRoom("B", second, "B", "")
	require.NoError(t, err)

	previous, err := reg.JoinRoom("A", second, "A", "")
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, first, previous.RoomID)
	assert.True(t, previous.RoomDeleted)

	roomID, _ := reg.RoomOf("A")
	assert.Equal(t, second, roomID)
	info, _ := reg.Snapshot(second)
	assert.Equal(t, "B", info.HostID)
	require.NoError(t, reg.CheckInvariants())
}

func TestJoinOwnRoomAgainIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 2, "", "A")
	_, err := reg.JoinRoom("A", roomID, "A", "")
	require.NoError(t, err)

	previous, err := reg.JoinRoom("A", roomID, "Ann", "")
	require.NoError(t, err)
	assert.Nil(t, previous)
	info, ok := reg.Snapshot(roomID)
	require.True(t, ok)
	assert.Equal(t, "Ann", info.Players[0].Name)
	assert.Equal(t, "A", info.HostID)
}

func TestAllReadyCountsHostAsReady(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 3, "", "A")
	assert.False(t, reg.AllReady(roomID), "empty room is never ready")

	_, _ = reg.JoinRoom("A", roomID, "A", "")
	assert.True(t, reg.AllReady(roomID), "lone host is implicitly ready")

	_, _ = reg.JoinRoom("B", roomID, "B", "")
	assert.False(t, reg.AllReady(roomID))

	_, ok := reg.SetReady("B", true)
	require.True(t, ok)
	assert.True(t, reg.AllReady(roomID))

	_, _, err := reg.AddAISeat("A", "")
	require.NoError(t, err)
	assert.True(t, reg.AllReady(roomID), "AI seats are always ready")

	info, _ := reg.Snapshot(roomID)
	assert.True(t, info.CanStart)
	assert.True(t, info.AllReady)
}

func TestCleanupOfflineEvictsStalePlayers(t *testing.T) {
	reg, clock := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 4, "", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "")
	_, _ = reg.JoinRoom("B", roomID, "B", "")

	clock.Advance(40 * time.Second)
	require.True(t, reg.Touch("B"))
	clock.Advance(30 * time.Second)

	evicted := reg.CleanupOffline(60 * time.Second)
	require.Len(t, evicted, 1)
	assert.Equal(t, "A", evicted[0].PlayerID)
	assert.Equal(t, "B", evicted[0].NewHostID)

	clock.Advance(time.Hour)
	evicted = reg.CleanupOffline(60 * time.Second)
	require.Len(t, evicted, 1)
	assert.True(t, evicted[0].RoomDeleted)
	assert.Equal(t, 0, reg.Len())
}

func TestAISeatsCountTowardCapacity(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 2, "", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "")

	_, seat, err := reg.AddAISeat("A", "hard")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("ai_%s_1", roomID), seat.ID)

	_, err = reg.JoinRoom("B", roomID, "B", "")
	assert.Equal(t, apperrors.CodeCapacity, apperrors.CodeOf(err))

	_, _, err = reg.AddAISeat("A", "")
	assert.Equal(t, apperrors.CodeCapacity, apperrors.CodeOf(err))

	_, err = reg.RemoveAISeat("A", seat.ID)
	require.NoError(t, err)
	_, err = reg.JoinRoom("B", roomID, "B", "")
	require.NoError(t, err)
}

func TestAISeatsDoNotKeepRoomAlive(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 4, "", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "")
	_, _, err := reg.AddAISeat("A", "")
	require.NoError(t, err)

	result, _ := reg.LeaveRoom("A")
	assert.True(t, result.RoomDeleted)
	assert.False(t, reg.Exists(roomID))
}

func TestOnlyHostManagesRoom(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 4, "", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "")
	_, _ = reg.JoinRoom("B", roomID, "B", "")

	_, _, err := reg.AddAISeat("B", "")
	assert.Equal(t, apperrors.CodeState, apperrors.CodeOf(err))
	_, _, err = reg.StartGame("B", nil)
	assert.Equal(t, apperrors.CodeState, apperrors.CodeOf(err))
	_, _, err = reg.StartGame("nobody", nil)
	assert.Equal(t, apperrors.CodeState, apperrors.CodeOf(err))
}

func TestGameLifecycle(t *testing.T) {
	reg, clock := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 4, "", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "")

	_, _, err := reg.StartGame("A", nil)
	require.Error(t, err, "a lone host cannot start")

	clock.Advance(time.Second)
	_, _ = reg.JoinRoom("B", roomID, "B", "")
	_, _, err = reg.StartGame("A", nil)
	require.Error(t, err, "B is not ready")

	reg.SetReady("B", true)
	_, seat, err := reg.AddAISeat("A", "")
	require.NoError(t, err)

	_, _, err = reg.StartGame("A", func(string, []string) error {
		return apperrors.New(apperrors.CodeEngine, "no engine")
	})
	require.Error(t, err)
	state, _ := reg.State(roomID)
	assert.Equal(t, protocol.RoomWaiting, state, "failed prepare leaves the room waiting")

	var prepared []string
	gotRoom, seats, err := reg.StartGame("A", func(_ string, seats []string) error {
		prepared = seats
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, seats, prepared)
	assert.Equal(t, roomID, gotRoom)
	assert.Equal(t, []string{"A", "B", seat.ID}, seats)

	state, _ = reg.State(roomID)
	assert.Equal(t, protocol.RoomPlaying, state)
	assert.Len(t, reg.List(), 1)

	_, err = reg.EndGame("A")
	require.NoError(t, err)
	state, _ = reg.State(roomID)
	assert.Equal(t, protocol.RoomFinished, state)
	assert.Empty(t, reg.List(), "finished rooms are not listed")

	_, err = reg.EndGame("A")
	assert.Equal(t, apperrors.CodeState, apperrors.CodeOf(err))
}

func TestSnapshotHidesPassword(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 4, "hunter2", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "hunter2")

	info, ok := reg.Snapshot(roomID)
	require.True(t, ok)
	assert.True(t, info.HasPassword)
	cfg, _ := reg.Config(roomID)
	assert.Equal(t, "hunter2", cfg.Password)
}

func TestMaxRooms(t *testing.T) {
	reg, _ := newTestRegistry(t, WithMaxRooms(1))
	_, err := reg.CreateRoom("one", 2, "", "A")
	require.NoError(t, err)
	_, err = reg.CreateRoom("two", 2, "", "B")
	assert.Equal(t, apperrors.CodeCapacity, apperrors.CodeOf(err))
}

func TestRestoreAndJoinReopensRoomUnderSameID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _ := reg.CreateRoom("R", 3, "pw", "A")
	_, _ = reg.JoinRoom("A", roomID, "A", "pw")
	cfg, _ := reg.Config(roomID)
	reg.LeaveRoom("A")
	require.False(t, reg.Exists(roomID))

	cfg.State = protocol.RoomPlaying
	_, err := reg.RestoreAndJoin(cfg, "A", "A", "pw")
	require.NoError(t, err)
	info, _ := reg.Snapshot(roomID)
	assert.Equal(t, protocol.RoomPlaying, info.State)
	assert.Equal(t, "A", info.HostID)

	_, err = reg.RestoreAndJoin(cfg, "B", "B", "pw")
	require.NoError(t, err, "an existing room is joined as is")
	assert.Len(t, reg.Members(roomID), 2)
	require.NoError(t, reg.CheckInvariants())
}

func TestRestoreAndJoinRefusalRegistersNothing(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID, _, err := reg.CreateAndJoin("R", 2, "pw", "A", "A")
	require.NoError(t, err)
	cfg, _ := reg.Config(roomID)
	reg.LeaveRoom("A")

	_, err = reg.RestoreAndJoin(cfg, "B", "B", "wrong")
	assert.Equal(t, apperrors.CodeAuthorization, apperrors.CodeOf(err))
	assert.False(t, reg.Exists(roomID))
	for _, info := range reg.List() {
		assert.NotEqual(t, roomID, info.RoomID)
	}
	landed, ok := reg.RoomOf("B")
	assert.False(t, ok, "B landed in %s", landed)
	require.NoError(t, reg.CheckInvariants())
}

func TestCreateAndJoinSeatsOwnerAtomically(t *testing.T) {
	reg, _ := newTestRegistry(t)
	first, previous, err := reg.CreateAndJoin("one", 4, "", "A", "Ada")
	require.NoError(t, err)
	assert.Nil(t, previous)
	info, ok := reg.Snapshot(first)
	require.True(t, ok)
	assert.Equal(t, "A", info.HostID)
	assert.Equal(t, 1, info.CurrentPlayers)

	second, previous, err := reg.CreateAndJoin("two", 4, "pw", "A", "Ada")
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, first, previous.RoomID)
	assert.True(t, previous.RoomDeleted)
	roomID, _ := reg.RoomOf("A")
	assert.Equal(t, second, roomID)
	require.NoError(t, reg.CheckInvariants())
}

func TestCheckInvariantsFlagsEmptyRooms(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.CreateRoom("pending", 2, "", "A")
	require.NoError(t, err)
	require.NoError(t, reg.CheckInvariants(), "a freshly created room awaits its owner")

	reg.mu.Lock()
	reg.rooms["room_orphan"] = &room{id: "room_orphan", maxPlayers: 2, state: protocol.RoomPlaying, players: map[string]*Player{}}
	reg.mu.Unlock()
	assert.ErrorContains(t, reg.CheckInvariants(), "room room_orphan has no members")
}

func TestRandomOperationsPreserveInvariants(t *testing.T) {
	reg, clock := newTestRegistry(t)
	rng := rand.New(rand.NewPCG(7, 11))
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	var roomIDs []string

	for step := 0; step < 2000; step++ {
		clock.Advance(time.Millisecond)
		player := players[rng.IntN(len(players))]
		switch rng.IntN(5) {
		case 0:
			roomID, err := reg.CreateRoom("R", 2+rng.IntN(5), "", player)
			require.NoError(t, err)
			roomIDs = append(roomIDs, roomID)
		case 1, 2:
			if len(roomIDs) == 0 {
				continue
			}
			_, _ = reg.JoinRoom(player, roomIDs[rng.IntN(len(roomIDs))], player, "")
		case 3:
			reg.LeaveRoom(player)
		case 4:
			reg.SetReady(player, rng.IntN(2) == 0)
		}
		require.NoError(t, reg.CheckInvariants(), "step %d", step)
	}
}

func TestConcurrentJoinLeaveKeepsIndexConsistent(t *testing.T) {
	reg := NewRegistry()
	roomA, _ := reg.CreateRoom("A", 6, "", "x")
	roomB, _ := reg.CreateRoom("B", 6, "", "y")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			player := fmt.Sprintf("p%d", n)
			for j := 0; j < 200; j++ {
				target := roomA
				if (n+j)%2 == 0 {
					target = roomB
				}
				_, _ = reg.JoinRoom(player, target, player, "")
				if j%3 == 0 {
					reg.LeaveRoom(player)
				}
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, reg.CheckInvariants())
}
