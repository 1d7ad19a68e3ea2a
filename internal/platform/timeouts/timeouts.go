// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between the lobby server, its
// client, and the operator CLI.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the ops health endpoint.
const GRPCDial = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// WebSocketWrite bounds a single frame write to one peer.
const WebSocketWrite = 10 * time.Second

// WebSocketDial bounds the client handshake with the lobby server.
const WebSocketDial = 10 * time.Second

// Heartbeat is the default interval for heartbeat frames and server sweeps.
const Heartbeat = 10 * time.Second

// ClientTimeout is the default silence after which a peer is considered gone.
const ClientTimeout = 30 * time.Second
