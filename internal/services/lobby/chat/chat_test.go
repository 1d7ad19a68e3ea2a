package chat

import (
	"strings"
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

func newTestService(cfg Config) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(cfg, clock.Now), clock
}

func TestFilterRateLimitSlidingWindow(t *testing.T) {
	svc, clock := newTestService(Config{MaxMessagesPerMinute: 3})

	for i := 0; i < 3; i++ {
		_, err := svc.Filter("alice", "hello")
		require.NoError(t, err)
		clock.Advance(100 * time.Millisecond)
	}
	_, err := svc.Filter("alice", "hello")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRateLimited, apperrors.CodeOf(err))

	_, err = svc.Filter("bob", "hello")
	require.NoError(t, err, "limits are per sender")

	clock.Advance(60 * time.Second)
	_, err = svc.Filter("alice", "back again")
	require.NoError(t, err)
}

func TestFilterRejectsLongAndEmptyContent(t *testing.T) {
	svc, _ := newTestService(Config{MaxLength: 5})

	_, err := svc.Filter("alice", "123456")
	assert.Equal(t, apperrors.CodeContentRejected, apperrors.CodeOf(err))

	_, err = svc.Filter("alice", "   ")
	assert.Equal(t, apperrors.CodeContentRejected, apperrors.CodeOf(err))

	got, err := svc.Filter("alice", "日本語です")
	require.NoError(t, err, "length counts runes")
	assert.Equal(t, "日本語です", got)

	assert.Equal(t, 2, svc.Stats().Rejected)
}

func TestFilterLengthCheckDoesNotConsumeRate(t *testing.T) {
	svc, _ := newTestService(Config{MaxLength: 3, MaxMessagesPerMinute: 1})

	_, err := svc.Filter("alice", "too long")
	require.Error(t, err)
	_, err = svc.Filter("alice", "ok")
	require.NoError(t, err)
}

func TestFilterMasksBannedWords(t *testing.T) {
	svc, _ := newTestService(Config{BannedWords: []string{"darn", "heck"}})

	got, err := svc.Filter("alice", "Darn it, what the heck, darn!")
	require.NoError(t, err)
	assert.Equal(t, "**** it, what the ****, ****!", got)
}

func TestPostFlagsMaskedContent(t *testing.T) {
	svc, _ := newTestService(Config{BannedWords: []string{"darn"}})

	masked, err := svc.Post(Draft{SenderID: "a", SenderName: "Ann", Content: " darn dice "})
	require.NoError(t, err)
	assert.True(t, masked.Filtered)
	assert.Equal(t, "**** dice", masked.Content)

	clean, err := svc.Post(Draft{SenderID: "a", SenderName: "Ann", Content: " nice dice "})
	require.NoError(t, err)
	assert.False(t, clean.Filtered)
}

func TestPostPublicStoresGlobalAndRoom(t *testing.T) {
	svc, _ := newTestService(Config{})

	msg, err := svc.Post(Draft{SenderID: "a", SenderName: "Ann", Content: "hi", RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatPublic, msg.MessageType)
	assert.True(t, strings.HasPrefix(msg.MessageID, "msg_"))

	assert.Len(t, svc.RoomHistory("r1", 0), 1)
	assert.Len(t, svc.GlobalHistory(0), 1)
	assert.Empty(t, svc.RoomHistory("r2", 0))
}

func TestPrivateHistoryIsSymmetric(t *testing.T) {
	svc, _ := newTestService(Config{})

	_, err := svc.Post(Draft{SenderID: "a", Content: "ping", Kind: protocol.ChatPrivate, TargetID: "b"})
	require.NoError(t, err)
	_, err = svc.Post(Draft{SenderID: "b", Content: "pong", Kind: protocol.ChatPrivate, TargetID: "a"})
	require.NoError(t, err)

	ab := svc.PrivateHistory("a", "b", 0)
	ba := svc.PrivateHistory("b", "a", 0)
	require.Len(t, ab, 2)
	assert.Equal(t, ab, ba)
	assert.Empty(t, svc.GlobalHistory(0), "private messages stay out of the global history")

	_, err = svc.Post(Draft{SenderID: "a", Content: "lost", Kind: protocol.ChatPrivate})
	assert.Equal(t, apperrors.CodeContentRejected, apperrors.CodeOf(err))
}

func TestHistoriesEvictOldest(t *testing.T) {
	svc, _ := newTestService(Config{HistorySize: 3, RoomHistorySize: 2, MaxMessagesPerMinute: 100})

	for _, body := range []string{"1", "2", "3", "4"} {
		_, err := svc.Post(Draft{SenderID: "a", Content: body, RoomID: "r"})
		require.NoError(t, err)
	}
	room := svc.RoomHistory("r", 0)
	require.Len(t, room, 2)
	assert.Equal(t, "3", room[0].Content)
	assert.Equal(t, "4", room[1].Content)

	global := svc.GlobalHistory(0)
	require.Len(t, global, 3)
	assert.Equal(t, "2", global[0].Content)

	limited := svc.GlobalHistory(1)
	require.Len(t, limited, 1)
	assert.Equal(t, "4", limited[0].Content)
}

func TestSystemMessagesBypassFilter(t *testing.T) {
	svc, _ := newTestService(Config{MaxLength: 2})

	msg := svc.System(protocol.ChatSystem, "r", "Ann joined the room")
	assert.Equal(t, protocol.ChatSystem, msg.MessageType)
	assert.Empty(t, msg.SenderID)
	assert.Len(t, svc.RoomHistory("r", 0), 1)

	svc.DropRoom("r")
	assert.Empty(t, svc.RoomHistory("r", 0))
}

func TestTypingIndicatorsExpire(t *testing.T) {
	svc, clock := newTestService(Config{})

	svc.SetTyping("a", true)
	svc.SetTyping("b", true)
	assert.ElementsMatch(t, []string{"a", "b"}, svc.TypingUsers())

	svc.SetTyping("b", false)
	assert.False(t, svc.IsTyping("b"))

	clock.Advance(6 * time.Second)
	assert.Empty(t, svc.TypingUsers())
	assert.Equal(t, 0, svc.Stats().TypingUsers)
}

func TestForgetClearsRateWindow(t *testing.T) {
	svc, _ := newTestService(Config{MaxMessagesPerMinute: 1})

	_, err := svc.Filter("a", "one")
	require.NoError(t, err)
	_, err = svc.Filter("a", "two")
	require.Error(t, err)

	svc.Forget("a")
	_, err = svc.Filter("a", "three")
	require.NoError(t, err)
}

func TestStatsCountsCollections(t *testing.T) {
	svc, _ := newTestService(Config{})
	_, _ = svc.Post(Draft{SenderID: "a", Content: "x", RoomID: "r1"})
	_, _ = svc.Post(Draft{SenderID: "a", Content: "y", Kind: protocol.ChatPrivate, TargetID: "b"})

	stats := svc.Stats()
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 1, stats.PrivateChats)
}
