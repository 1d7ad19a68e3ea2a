// Package protocol defines the envelope exchanged between lobby clients and
// the session server, one JSON object per websocket text frame.
package protocol
