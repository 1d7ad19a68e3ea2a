package app

import (
	"time"

	"github.com/louisbranch/tycoon.lobby/internal/platform/timeouts"
)

// ServerVersion is reported in the connect greeting.
const ServerVersion = "1.0.0"

// Config holds every operational knob of the session server. Zero values
// fall back to the defaults applied by withDefaults.
type Config struct {
	// HTTPAddr is the websocket and stats listen address.
	HTTPAddr string
	// GRPCAddr exposes the gRPC health service; empty disables it.
	GRPCAddr string
	// MaxConnections caps concurrent websocket connections.
	MaxConnections int
	// MaxRooms caps concurrent rooms.
	MaxRooms int
	// HeartbeatInterval is the period of the liveness sweep.
	HeartbeatInterval time.Duration
	// ClientTimeout is the silence after which a connection is closed and a
	// seated player evicted.
	ClientTimeout time.Duration
	// CleanupInterval is the period of the stale-membership sweep.
	CleanupInterval time.Duration
	// StatsInterval is the period of the stats log line.
	StatsInterval time.Duration
	// SyncTickInterval is the period of each running room's reconciliation.
	SyncTickInterval time.Duration
	// FullSyncInterval forces a full sync at least this often.
	FullSyncInterval time.Duration
	// RoomGracePeriod keeps a deleted room's game alive for rejoining players.
	RoomGracePeriod time.Duration
	// ChatMaxLength is the longest accepted chat message in runes.
	ChatMaxLength int
	// ChatMaxMessagesPerMinute is the per-sender chat budget.
	ChatMaxMessagesPerMinute int
	// ChatHistorySize bounds the global chat history.
	ChatHistorySize int
	// ChatRoomHistorySize bounds each room's chat history.
	ChatRoomHistorySize int
	// ChatBannedWords are masked in chat content.
	ChatBannedWords []string
	// MaxFramePayloadBytes bounds one inbound websocket frame.
	MaxFramePayloadBytes int
	// ReadHeaderTimeout bounds HTTP request headers.
	ReadHeaderTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1000
	}
	if c.MaxRooms <= 0 {
		c.MaxRooms = 100
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = timeouts.Heartbeat
	}
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = 60 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 5 * time.Minute
	}
	if c.SyncTickInterval <= 0 {
		c.SyncTickInterval = 500 * time.Millisecond
	}
	if c.FullSyncInterval <= 0 {
		c.FullSyncInterval = 10 * time.Second
	}
	if c.RoomGracePeriod < 0 {
		c.RoomGracePeriod = 0
	}
	if c.ChatMaxLength <= 0 {
		c.ChatMaxLength = 200
	}
	if c.ChatMaxMessagesPerMinute <= 0 {
		c.ChatMaxMessagesPerMinute = 30
	}
	if c.ChatHistorySize <= 0 {
		c.ChatHistorySize = 1000
	}
	if c.ChatRoomHistorySize <= 0 {
		c.ChatRoomHistorySize = 500
	}
	if c.MaxFramePayloadBytes <= 0 {
		c.MaxFramePayloadBytes = 16 * 1024
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = timeouts.Shutdown
	}
	return c
}
