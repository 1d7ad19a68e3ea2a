package client

import (
	"time"

	"github.com/louisbranch/tycoon.lobby/internal/platform/timeouts"
)

// Config tunes one session client. Zero values take the defaults below.
type Config struct {
	// URL is the server websocket endpoint, e.g. ws://localhost:8090/ws.
	URL string
	// PlayerName is sent with room operations and rejoins.
	PlayerName string
	// Locale selects the language of server error messages.
	Locale string
	// HeartbeatInterval is how often the client pings the server.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is the inbound silence after which the connection is
	// considered dead.
	HeartbeatTimeout time.Duration
	// ReconnectBaseDelay is the wait before the first reconnect attempt.
	ReconnectBaseDelay time.Duration
	// ReconnectMultiplier grows the wait after each failed attempt.
	ReconnectMultiplier float64
	// ReconnectMaxDelay caps the wait between attempts.
	ReconnectMaxDelay time.Duration
	// MaxReconnectAttempts bounds reconnect attempts per outage.
	MaxReconnectAttempts int
	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration
	// SendQueueSize bounds outbound messages waiting for the writer.
	SendQueueSize int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = timeouts.Heartbeat
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = timeouts.ClientTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMultiplier < 1 {
		c.ReconnectMultiplier = 2
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = c.ReconnectBaseDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = timeouts.WebSocketDial
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	return c
}
