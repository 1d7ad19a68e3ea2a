// Package game defines the rules-engine collaborator the session server
// drives, and a small table engine used by the default binary and tests.
package game

import (
	"encoding/json"

	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
)

// Engine is the rules engine for one room. Implementations must be safe for
// concurrent use: the sync ticker serializes state while connections apply
// actions.
type Engine interface {
	// SerializeGameState returns the whole tracked state as a JSON object
	// with a "players" array (each entry keyed by "player_id"), a "map"
	// value, and scalar turn fields.
	SerializeGameState() (json.RawMessage, error)
	// ApplyPlayerAction applies one opaque action and returns an opaque
	// result. Rejections should be *errors.Error values.
	ApplyPlayerAction(playerID string, action protocol.PlayerActionPayload) (json.RawMessage, error)
}

// Event is a point event emitted by an engine, such as a dice roll.
type Event struct {
	Type protocol.MessageType
	Data json.RawMessage
}

// EventSource is implemented by engines that publish point events. The
// channel is closed when the engine is closed.
type EventSource interface {
	Events() <-chan Event
}

// Factory creates the engine for a room entering PLAYING. seats lists the
// human members in join order followed by AI seats.
type Factory func(roomID string, seats []string) (Engine, error)
