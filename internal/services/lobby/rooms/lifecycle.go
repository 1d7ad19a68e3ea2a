package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
)

var aiNames = []string{"Ada", "Babbage", "Curie", "Dijkstra", "Euler", "Fermat"}

// hostRoomLocked resolves the room hosted by playerID.
func (r *Registry) hostRoomLocked(playerID string) (*room, error) {
	roomID, ok := r.playerRoom[playerID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeState, "not in a room")
	}
	rm := r.rooms[roomID]
	if rm.hostID != playerID {
		return nil, apperrors.WithMetadata(apperrors.CodeState, "only the host can do that", map[string]string{"Reason": "Only the host can do that"})
	}
	return rm, nil
}

// AddAISeat adds a computer seat to the room hosted by hostID.
func (r *Registry) AddAISeat(hostID, difficulty string) (string, AISeat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.hostRoomLocked(hostID)
	if err != nil {
		return "", AISeat{}, err
	}
	if rm.state != protocol.RoomWaiting {
		return "", AISeat{}, apperrors.New(apperrors.CodeState, "game already started")
	}
	if rm.seats() >= rm.maxPlayers {
		return "", AISeat{}, apperrors.WithMetadata(apperrors.CodeCapacity, fmt.Sprintf("room %s is full", rm.id), map[string]string{"Resource": "Room"})
	}
	difficulty = strings.TrimSpace(difficulty)
	if difficulty == "" {
		difficulty = "normal"
	}
	rm.aiCounter++
	seat := AISeat{
		ID:         fmt.Sprintf("ai_%s_%d", rm.id, rm.aiCounter),
		Name:       "AI " + aiNames[(rm.aiCounter-1)%len(aiNames)],
		Difficulty: difficulty,
	}
	rm.aiSeats = append(rm.aiSeats, seat)
	return rm.id, seat, nil
}

// RemoveAISeat drops an AI seat from the room hosted by hostID.
func (r *Registry) RemoveAISeat(hostID, seatID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.hostRoomLocked(hostID)
	if err != nil {
		return "", err
	}
	if rm.state != protocol.RoomWaiting {
		return "", apperrors.New(apperrors.CodeState, "game already started")
	}
	index := slices.IndexFunc(rm.aiSeats, func(seat AISeat) bool { return seat.ID == seatID })
	if index < 0 {
		return "", apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("ai seat %s not found", seatID), map[string]string{"Resource": "AI player"})
	}
	rm.aiSeats = slices.Delete(rm.aiSeats, index, index+1)
	return rm.id, nil
}

// StartGame moves the host's room to PLAYING. It requires a WAITING room with
// at least MinPlayers seats, all of them ready. Seats are the human ids in
// join order followed by AI seats. prepare, when set, runs before the state
// change and under the registry lock; its error aborts the start.
func (r *Registry) StartGame(hostID string, prepare func(roomID string, seats []string) error) (string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.hostRoomLocked(hostID)
	if err != nil {
		return "", nil, err
	}
	switch {
	case rm.state != protocol.RoomWaiting:
		return "", nil, apperrors.New(apperrors.CodeState, "game already started")
	case rm.seats() < MinPlayers:
		return "", nil, apperrors.WithMetadata(apperrors.CodeState, "not enough players", map[string]string{"Reason": "Not enough players"})
	case !allReady(rm):
		return "", nil, apperrors.WithMetadata(apperrors.CodeState, "players not ready", map[string]string{"Reason": "Not every player is ready"})
	}

	info := snapshot(rm)
	seats := make([]string, 0, info.CurrentPlayers)
	for _, p := range info.Players {
		seats = append(seats, p.PlayerID)
	}
	for _, seat := range info.AIPlayers {
		seats = append(seats, seat.PlayerID)
	}
	if prepare != nil {
		if err := prepare(rm.id, seats); err != nil {
			return "", nil, err
		}
	}
	rm.state = protocol.RoomPlaying
	return rm.id, seats, nil
}

// EndGame moves the host's room from PLAYING to FINISHED.
func (r *Registry) EndGame(hostID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.hostRoomLocked(hostID)
	if err != nil {
		return "", err
	}
	if rm.state != protocol.RoomPlaying {
		return "", apperrors.New(apperrors.CodeState, "game is not running")
	}
	rm.state = protocol.RoomFinished
	return rm.id, nil
}

// State returns a room's lifecycle state.
func (r *Registry) State(roomID string) (protocol.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	return rm.state, true
}

// SetGameData stores an opaque blob alongside the room.
func (r *Registry) SetGameData(roomID string, data json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	rm.gameData = slices.Clone(data)
	return true
}

// GameData returns the blob stored by SetGameData.
func (r *Registry) GameData(roomID string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return slices.Clone(rm.gameData), true
}

// CheckInvariants verifies that the player index and room memberships agree,
// that hosts are members and that no room is over capacity or left empty.
func (r *Registry) CheckInvariants() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for playerID, roomID := range r.playerRoom {
		rm, ok := r.rooms[roomID]
		if !ok {
			errs = append(errs, fmt.Errorf("player %s indexed to missing room %s", playerID, roomID))
			continue
		}
		if _, ok := rm.players[playerID]; !ok {
			errs = append(errs, fmt.Errorf("player %s indexed to room %s but not a member", playerID, roomID))
		}
	}
	for roomID, rm := range r.rooms {
		if len(rm.players) == 0 && !rm.awaitingFirst {
			errs = append(errs, fmt.Errorf("room %s has no members", roomID))
		}
		if rm.seats() > rm.maxPlayers {
			errs = append(errs, fmt.Errorf("room %s has %d seats over max %d", roomID, rm.seats(), rm.maxPlayers))
		}
		if rm.hostID != "" {
			host, ok := rm.players[rm.hostID]
			if !ok || !host.Host {
				errs = append(errs, fmt.Errorf("room %s host %s is not a member", roomID, rm.hostID))
			}
		}
		for playerID, p := range rm.players {
			if r.playerRoom[playerID] != roomID {
				errs = append(errs, fmt.Errorf("member %s of room %s indexed to %q", playerID, roomID, r.playerRoom[playerID]))
			}
			if p.Host && playerID != rm.hostID {
				errs = append(errs, fmt.Errorf("room %s has extra host %s", roomID, playerID))
			}
		}
	}
	return errors.Join(errs...)
}
