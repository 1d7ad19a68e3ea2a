// Package statesync reconciles an authoritative game state with room
// subscribers through periodic full and delta broadcasts.
package statesync

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/tidwall/gjson"
)

const (
	// DefaultFullSyncInterval bounds how long a subscriber can drift.
	DefaultFullSyncInterval = 10 * time.Second

	mapKey     = "map"
	scalarsKey = "scalars"

	// canonicalPath sorts object keys and strips whitespace before hashing.
	canonicalPath = `@pretty:{"sortKeys":true}|@ugly`
)

// scalarFields are the turn fields carried together by game_state_update.
// The record replaces the whole set: a field missing from it was removed.
var scalarFields = []string{"current_player_index", "turn_phase", "game_status", "turn_count", "round_count"}

// scalarsPath collects the present scalar fields into one object.
var scalarsPath = "{" + strings.Join(scalarFields, ",") + "}"

// removedData marks a map_update whose entity left the state.
var removedData = json.RawMessage("null")

// StateSource yields the authoritative state for one room.
type StateSource interface {
	SerializeGameState() (json.RawMessage, error)
}

// Stats counts what a manager has emitted.
type Stats struct {
	FullSyncs    uint64        `json:"full_syncs"`
	DeltaSyncs   uint64        `json:"delta_syncs"`
	SilentTicks  uint64        `json:"silent_ticks"`
	Changes      uint64        `json:"changes"`
	BytesSent    uint64        `json:"bytes_sent"`
	LastTickTook time.Duration `json:"last_tick_ns"`
}

// Manager owns one room's reconciliation cache. Tick is serialized; other
// methods may be called from any goroutine.
type Manager struct {
	roomID       string
	source       StateSource
	fullInterval time.Duration
	now          func() time.Time

	forceFull atomic.Bool

	mu       sync.Mutex
	digests  map[string]uint64
	primed   bool
	lastFull time.Time
	sequence uint64
	stats    Stats
}

// NewManager builds a manager. A non-positive interval selects the default;
// a nil clock means time.Now.
func NewManager(roomID string, source StateSource, fullInterval time.Duration, now func() time.Time) *Manager {
	if fullInterval <= 0 {
		fullInterval = DefaultFullSyncInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		roomID:       roomID,
		source:       source,
		fullInterval: fullInterval,
		now:          now,
		digests:      make(map[string]uint64),
	}
}

// RoomID returns the room this manager serves.
func (m *Manager) RoomID() string {
	return m.roomID
}

// ForceFullSync makes the next tick a full sync.
func (m *Manager) ForceFullSync() {
	m.forceFull.Store(true)
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Tick runs one reconciliation step. It returns the GAME_STATE_SYNC envelope
// to broadcast, or false when nothing changed.
func (m *Manager) Tick() (protocol.Envelope, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	started := m.now()
	defer func() {
		m.stats.LastTickTook = m.now().Sub(started)
	}()

	state, err := m.source.SerializeGameState()
	if err != nil {
		return protocol.Envelope{}, false, fmt.Errorf("serialize room %s state: %w", m.roomID, err)
	}
	if !gjson.ValidBytes(state) || !gjson.ParseBytes(state).IsObject() {
		return protocol.Envelope{}, false, fmt.Errorf("room %s state is not a JSON object", m.roomID)
	}

	forced := m.forceFull.Swap(false)
	if !m.primed || forced || started.Sub(m.lastFull) >= m.fullInterval {
		m.digests = digestAll(state)
		m.primed = true
		m.lastFull = started
		m.stats.FullSyncs++
		return m.envelope(protocol.SyncPayload{Kind: protocol.SyncFull, State: state})
	}

	changes := m.diff(state)
	if len(changes) == 0 {
		m.stats.SilentTicks++
		return protocol.Envelope{}, false, nil
	}
	m.stats.DeltaSyncs++
	m.stats.Changes += uint64(len(changes))
	return m.envelope(protocol.SyncPayload{Kind: protocol.SyncDelta, Changes: changes})
}

func (m *Manager) envelope(payload protocol.SyncPayload) (protocol.Envelope, bool, error) {
	m.sequence++
	payload.RoomID = m.roomID
	payload.Sequence = m.sequence
	env, err := protocol.New(protocol.TypeGameStateSync, payload)
	if err != nil {
		return protocol.Envelope{}, false, err
	}
	m.stats.BytesSent += uint64(len(env.Data))
	return env.WithRoom(m.roomID), true, nil
}

// diff compares state against the cache, updates the cache for every changed
// entity and returns the change records in a stable order: players in state
// order, removed players by id, the map, then the scalar fields. A map that
// disappeared is reported as a map_update with null data.
func (m *Manager) diff(state []byte) []protocol.Change {
	var changes []protocol.Change
	seen := make(map[string]struct{})

	for _, player := range playersOf(state) {
		key := playerKey(player.id)
		seen[key] = struct{}{}
		digest := hashJSON(player.raw)
		if cached, ok := m.digests[key]; ok && cached == digest {
			continue
		}
		m.digests[key] = digest
		changes = append(changes, protocol.Change{
			Type: protocol.ChangePlayerUpdate,
			ID:   player.id,
			Data: json.RawMessage(player.raw),
		})
	}

	var removed []string
	for key := range m.digests {
		if key == mapKey || key == scalarsKey {
			continue
		}
		if _, ok := seen[key]; !ok {
			removed = append(removed, key)
		}
	}
	slices.Sort(removed)
	for _, key := range removed {
		delete(m.digests, key)
		changes = append(changes, protocol.Change{Type: protocol.ChangePlayerRemove, ID: key[len("player:"):]})
	}

	if raw := gjson.GetBytes(state, mapKey).Raw; raw != "" {
		if digest := hashJSON(raw); m.digests[mapKey] != digest {
			m.digests[mapKey] = digest
			changes = append(changes, protocol.Change{Type: protocol.ChangeMapUpdate, Data: json.RawMessage(raw)})
		}
	} else if _, ok := m.digests[mapKey]; ok {
		delete(m.digests, mapKey)
		changes = append(changes, protocol.Change{Type: protocol.ChangeMapUpdate, Data: removedData})
	}

	scalars := gjson.GetBytes(state, scalarsPath).Raw
	if digest := hashJSON(scalars); m.digests[scalarsKey] != digest {
		m.digests[scalarsKey] = digest
		changes = append(changes, protocol.Change{Type: protocol.ChangeGameStateUpdate, Data: json.RawMessage(scalars)})
	}
	return changes
}

type playerEntry struct {
	id  string
	raw string
}

// playersOf extracts the "players" array. Entries without a player_id are
// keyed by position.
func playersOf(state []byte) []playerEntry {
	var out []playerEntry
	index := 0
	gjson.GetBytes(state, "players").ForEach(func(_, value gjson.Result) bool {
		playerID := value.Get("player_id").String()
		if playerID == "" {
			playerID = "#" + strconv.Itoa(index)
		}
		out = append(out, playerEntry{id: playerID, raw: value.Raw})
		index++
		return true
	})
	return out
}

func digestAll(state []byte) map[string]uint64 {
	digests := make(map[string]uint64)
	for _, player := range playersOf(state) {
		digests[playerKey(player.id)] = hashJSON(player.raw)
	}
	if raw := gjson.GetBytes(state, mapKey).Raw; raw != "" {
		digests[mapKey] = hashJSON(raw)
	}
	digests[scalarsKey] = hashJSON(gjson.GetBytes(state, scalarsPath).Raw)
	return digests
}

func playerKey(playerID string) string {
	return "player:" + playerID
}

func hashJSON(raw string) uint64 {
	return xxhash.Sum64String(gjson.Get(raw, canonicalPath).Raw)
}
