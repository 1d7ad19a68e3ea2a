package statesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNoBaseState is returned when a delta arrives before any full sync.
var ErrNoBaseState = errors.New("delta received before full state")

// Replica is a subscriber's local copy of a room state, patched in place by
// deltas.
type Replica struct {
	mu       sync.Mutex
	roomID   string
	state    []byte
	sequence uint64
}

// Apply folds one sync payload into the replica. Payloads must be applied in
// broadcast order; a full sync always replaces the state.
func (r *Replica) Apply(payload protocol.SyncPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch payload.Kind {
	case protocol.SyncFull:
		if !gjson.ValidBytes(payload.State) {
			return fmt.Errorf("full sync %d: invalid state", payload.Sequence)
		}
		r.state = slices.Clone([]byte(payload.State))
	case protocol.SyncDelta:
		if r.state == nil || (r.roomID != "" && r.roomID != payload.RoomID) {
			return ErrNoBaseState
		}
		next := slices.Clone(r.state)
		for _, change := range payload.Changes {
			var err error
			next, err = applyChange(next, change)
			if err != nil {
				return fmt.Errorf("delta %d: %w", payload.Sequence, err)
			}
		}
		r.state = next
	default:
		return fmt.Errorf("unknown sync kind %q", payload.Kind)
	}
	r.roomID = payload.RoomID
	r.sequence = payload.Sequence
	return nil
}

func applyChange(state []byte, change protocol.Change) ([]byte, error) {
	switch change.Type {
	case protocol.ChangePlayerUpdate:
		index := playerIndex(state, change.ID)
		if index < 0 {
			return sjson.SetRawBytes(state, "players.-1", change.Data)
		}
		return sjson.SetRawBytes(state, "players."+strconv.Itoa(index), change.Data)
	case protocol.ChangePlayerRemove:
		index := playerIndex(state, change.ID)
		if index < 0 {
			return state, nil
		}
		return sjson.DeleteBytes(state, "players."+strconv.Itoa(index))
	case protocol.ChangeMapUpdate:
		if len(change.Data) == 0 || gjson.ParseBytes(change.Data).Type == gjson.Null {
			return deleteIfPresent(state, mapKey)
		}
		return sjson.SetRawBytes(state, mapKey, change.Data)
	case protocol.ChangeGameStateUpdate:
		scalars := gjson.ParseBytes(change.Data)
		for _, field := range scalarFields {
			var err error
			if value := scalars.Get(field); value.Exists() {
				state, err = sjson.SetRawBytes(state, field, []byte(value.Raw))
			} else {
				state, err = deleteIfPresent(state, field)
			}
			if err != nil {
				return nil, err
			}
		}
		return state, nil
	default:
		return nil, fmt.Errorf("unknown change type %q", change.Type)
	}
}

func deleteIfPresent(state []byte, path string) ([]byte, error) {
	if !gjson.GetBytes(state, path).Exists() {
		return state, nil
	}
	return sjson.DeleteBytes(state, path)
}

func playerIndex(state []byte, playerID string) int {
	for i, player := range playersOf(state) {
		if player.id == playerID {
			return i
		}
	}
	return -1
}

// Reset forgets the state, for example after leaving a room.
func (r *Replica) Reset() {
	r.mu.Lock()
	r.state = nil
	r.roomID = ""
	r.sequence = 0
	r.mu.Unlock()
}

// State returns a copy of the current state, nil before the first full sync.
func (r *Replica) State() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.state)
}

// Sequence returns the sequence number of the last applied payload.
func (r *Replica) Sequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}
