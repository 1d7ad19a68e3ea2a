// Package lobby parses lobby command configuration and composes the session
// server run loop.
package lobby

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	entrypoint "github.com/louisbranch/tycoon.lobby/internal/platform/cmd"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/app"
)

// Config holds lobby command configuration.
type Config struct {
	HTTPAddr                 string        `env:"TYCOON_LOBBY_HTTP_ADDR"                envDefault:":8090"`
	GRPCAddr                 string        `env:"TYCOON_LOBBY_GRPC_ADDR"                envDefault:":8091"`
	LogLevel                 string        `env:"TYCOON_LOBBY_LOG_LEVEL"                envDefault:"info"`
	MaxConnections           int           `env:"TYCOON_LOBBY_MAX_CONNECTIONS"          envDefault:"1000"`
	MaxRooms                 int           `env:"TYCOON_LOBBY_MAX_ROOMS"                envDefault:"100"`
	HeartbeatInterval        time.Duration `env:"TYCOON_LOBBY_HEARTBEAT_INTERVAL"       envDefault:"10s"`
	ClientTimeout            time.Duration `env:"TYCOON_LOBBY_CLIENT_TIMEOUT"           envDefault:"60s"`
	CleanupInterval          time.Duration `env:"TYCOON_LOBBY_CLEANUP_INTERVAL"         envDefault:"60s"`
	StatsInterval            time.Duration `env:"TYCOON_LOBBY_STATS_INTERVAL"           envDefault:"5m"`
	SyncTickInterval         time.Duration `env:"TYCOON_LOBBY_SYNC_TICK_INTERVAL"       envDefault:"500ms"`
	FullSyncInterval         time.Duration `env:"TYCOON_LOBBY_FULL_SYNC_INTERVAL"       envDefault:"10s"`
	RoomGracePeriod          time.Duration `env:"TYCOON_LOBBY_ROOM_GRACE_PERIOD"        envDefault:"2m"`
	ChatMaxLength            int           `env:"TYCOON_LOBBY_CHAT_MAX_LENGTH"          envDefault:"200"`
	ChatMaxMessagesPerMinute int           `env:"TYCOON_LOBBY_CHAT_MAX_PER_MINUTE"      envDefault:"30"`
	ChatHistorySize          int           `env:"TYCOON_LOBBY_CHAT_HISTORY_SIZE"        envDefault:"1000"`
	ChatRoomHistorySize      int           `env:"TYCOON_LOBBY_CHAT_ROOM_HISTORY_SIZE"   envDefault:"500"`
	ChatBannedWords          []string      `env:"TYCOON_LOBBY_CHAT_BANNED_WORDS"        envSeparator:","`
	MaxFramePayloadBytes     int           `env:"TYCOON_LOBBY_MAX_FRAME_BYTES"          envDefault:"16384"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "websocket and stats listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "maximum concurrent websocket connections")
	fs.IntVar(&cfg.MaxRooms, "max-rooms", cfg.MaxRooms, "maximum concurrent rooms")
	fs.DurationVar(&cfg.ClientTimeout, "client-timeout", cfg.ClientTimeout, "silence before a client is dropped")
	fs.DurationVar(&cfg.SyncTickInterval, "sync-tick", cfg.SyncTickInterval, "state sync tick interval")
	fs.DurationVar(&cfg.RoomGracePeriod, "room-grace", cfg.RoomGracePeriod, "how long a deleted room's game waits for rejoins")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) serverConfig() app.Config {
	return app.Config{
		HTTPAddr:                 c.HTTPAddr,
		GRPCAddr:                 c.GRPCAddr,
		MaxConnections:           c.MaxConnections,
		MaxRooms:                 c.MaxRooms,
		HeartbeatInterval:        c.HeartbeatInterval,
		ClientTimeout:            c.ClientTimeout,
		CleanupInterval:          c.CleanupInterval,
		StatsInterval:            c.StatsInterval,
		SyncTickInterval:         c.SyncTickInterval,
		FullSyncInterval:         c.FullSyncInterval,
		RoomGracePeriod:          c.RoomGracePeriod,
		ChatMaxLength:            c.ChatMaxLength,
		ChatMaxMessagesPerMinute: c.ChatMaxMessagesPerMinute,
		ChatHistorySize:          c.ChatHistorySize,
		ChatRoomHistorySize:      c.ChatRoomHistorySize,
		ChatBannedWords:          c.ChatBannedWords,
		MaxFramePayloadBytes:     c.MaxFramePayloadBytes,
	}
}

// Run builds the lobby server and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	logger := entrypoint.SetupLogger(os.Stderr, cfg.LogLevel, entrypoint.ServiceLobby)
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLobby, func(ctx context.Context) error {
		if err := app.Run(ctx, cfg.serverConfig(), app.WithLogger(logger)); err != nil {
			return fmt.Errorf("serve lobby: %w", err)
		}
		return nil
	})
}
