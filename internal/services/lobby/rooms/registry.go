// Package rooms keeps lobby bookkeeping: which rooms exist, who sits in them,
// and who hosts each one.
//
// Every exported method takes the registry lock for its whole duration, so a
// compound check-then-mutate (for example moving a player between rooms) is
// atomic with respect to every other caller.
package rooms

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/platform/id"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
)

const (
	// MinPlayers and MaxPlayers bound a room's seat count.
	MinPlayers = 2
	MaxPlayers = 6
	// DefaultMaxPlayers applies when a create request leaves the size unset.
	DefaultMaxPlayers = 4
)

// Player is a session player: lobby identity, not the rules engine's player.
type Player struct {
	ID            string
	Name          string
	Ready         bool
	Host          bool
	JoinTime      time.Time
	LastHeartbeat time.Time
}

// AISeat is a computer-controlled seat. It is always ready and never hosts.
type AISeat struct {
	ID         string
	Name       string
	Difficulty string
}

type room struct {
	id         string
	name       string
	maxPlayers int
	password   string
	state      protocol.RoomState
	hostID     string
	ownerID    string
	createTime time.Time
	players    map[string]*Player
	aiSeats    []AISeat
	aiCounter  int
	gameData   json.RawMessage
	// awaitingFirst marks a room created empty whose first member has not
	// joined yet.
	awaitingFirst bool
}

func (r *room) seats() int {
	return len(r.players) + len(r.aiSeats)
}

// RoomConfig is the durable part of a room, enough to reopen it under the
// same id.
type RoomConfig struct {
	ID         string
	Name       string
	MaxPlayers int
	Password   string
	State      protocol.RoomState
}

// LeaveResult describes the effect of removing a player.
type LeaveResult struct {
	PlayerID    string
	PlayerName  string
	RoomID      string
	NewHostID   string
	RoomDeleted bool
}

// Registry owns every room and the player→room index.
type Registry struct {
	mu         sync.Mutex
	rooms      map[string]*room
	playerRoom map[string]string
	maxRooms   int
	now        func() time.Time
	newID      func() (string, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator replaces the room id source.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(r *Registry) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// WithMaxRooms caps concurrent rooms. Zero or negative means unlimited.
func WithMaxRooms(n int) Option {
	return func(r *Registry) {
		r.maxRooms = n
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:      make(map[string]*room),
		playerRoom: make(map[string]string),
		now:        time.Now,
		newID: func() (string, error) {
			return id.NewPrefixed("room_")
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ClampMaxPlayers maps a requested size into [MinPlayers, MaxPlayers].
func ClampMaxPlayers(n int) int {
	if n == 0 {
		return DefaultMaxPlayers
	}
	return min(max(n, MinPlayers), MaxPlayers)
}

// CreateRoom registers an empty WAITING room and returns its id. The owner is
// recorded but not joined.
func (r *Registry) CreateRoom(name string, maxPlayers int, password string, ownerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.newRoomLocked(name, maxPlayers, password, ownerID)
	if err != nil {
		return "", err
	}
	rm.awaitingFirst = true
	r.rooms[rm.id] = rm
	return rm.id, nil
}

// CreateAndJoin registers a WAITING room with ownerID as its host in one step,
// so no reader ever sees it empty. previous reports the room the owner left.
func (r *Registry) CreateAndJoin(name string, maxPlayers int, password, ownerID, ownerName string) (roomID string, previous *LeaveResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, err := r.newRoomLocked(name, maxPlayers, password, ownerID)
	if err != nil {
		return "", nil, err
	}
	r.rooms[rm.id] = rm
	previous, err = r.joinLocked(rm, ownerID, ownerName, password)
	if err != nil {
		delete(r.rooms, rm.id)
		return "", nil, err
	}
	return rm.id, previous, nil
}

func (r *Registry) newRoomLocked(name string, maxPlayers int, password string, ownerID string) (*room, error) {
	if r.maxRooms > 0 && len(r.rooms) >= r.maxRooms {
		return nil, apperrors.WithMetadata(apperrors.CodeCapacity, "room limit reached", map[string]string{"Resource": "Server"})
	}
	roomID, err := r.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate room id", err)
	}
	if _, exists := r.rooms[roomID]; exists {
		return nil, apperrors.New(apperrors.CodeInternal, fmt.Sprintf("room id collision %s", roomID))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Room"
	}
	return &room{
		id:         roomID,
		name:       name,
		maxPlayers: ClampMaxPlayers(maxPlayers),
		password:   password,
		state:      protocol.RoomWaiting,
		ownerID:    ownerID,
		createTime: r.now(),
		players:    make(map[string]*Player),
	}, nil
}

// RestoreAndJoin reopens a deleted room under its previous id and seats
// playerID in it. When the join is refused nothing is registered. A room that
// already exists is joined as is.
func (r *Registry) RestoreAndJoin(cfg RoomConfig, playerID, name, password string) (*LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if target, ok := r.rooms[cfg.ID]; ok {
		return r.joinLocked(target, playerID, name, password)
	}
	if r.maxRooms > 0 && len(r.rooms) >= r.maxRooms {
		return nil, apperrors.WithMetadata(apperrors.CodeCapacity, "room limit reached", map[string]string{"Resource": "Server"})
	}
	state := cfg.State
	if state == "" {
		state = protocol.RoomWaiting
	}
	target := &room{
		id:         cfg.ID,
		name:       cfg.Name,
		maxPlayers: ClampMaxPlayers(cfg.MaxPlayers),
		password:   cfg.Password,
		state:      state,
		createTime: r.now(),
		players:    make(map[string]*Player),
	}
	r.rooms[cfg.ID] = target
	previous, err := r.joinLocked(target, playerID, name, password)
	if err != nil {
		delete(r.rooms, cfg.ID)
		return nil, err
	}
	return previous, nil
}

// Config returns the durable configuration of a room.
func (r *Registry) Config(roomID string) (RoomConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return RoomConfig{}, false
	}
	return RoomConfig{ID: rm.id, Name: rm.name, MaxPlayers: rm.maxPlayers, Password: rm.password, State: rm.state}, true
}

// JoinRoom adds playerID to roomID. It fails without mutating anything when
// the room is missing, the password differs or the room is full. A player
// already seated elsewhere is moved; the first member becomes host. Joining
// one's own room again only refreshes the name and heartbeat.
func (r *Registry) JoinRoom(playerID, roomID, name, password string) (*LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.rooms[roomID]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("room %s not found", roomID), map[string]string{"Resource": "Room"})
	}
	return r.joinLocked(target, playerID, name, password)
}

// joinLocked seats playerID in target. Every check runs before the first
// mutation.
func (r *Registry) joinLocked(target *room, playerID, name, password string) (*LeaveResult, error) {
	roomID := target.id
	if target.password != "" && target.password != password {
		return nil, apperrors.New(apperrors.CodeAuthorization, fmt.Sprintf("wrong password for room %s", roomID))
	}

	now := r.now()
	if current, ok := r.playerRoom[playerID]; ok && current == roomID {
		p := target.players[playerID]
		if strings.TrimSpace(name) != "" {
			p.Name = name
		}
		p.LastHeartbeat = now
		return nil, nil
	}
	if target.seats() >= target.maxPlayers {
		return nil, apperrors.WithMetadata(apperrors.CodeCapacity, fmt.Sprintf("room %s is full", roomID), map[string]string{"Resource": "Room"})
	}

	var previous *LeaveResult
	if _, ok := r.playerRoom[playerID]; ok {
		left := r.leaveLocked(playerID)
		previous = &left
	}

	if strings.TrimSpace(name) == "" {
		name = playerID
	}
	player := &Player{
		ID:            playerID,
		Name:          name,
		JoinTime:      now,
		LastHeartbeat: now,
	}
	if len(target.players) == 0 {
		player.Host = true
		target.hostID = playerID
	}
	target.players[playerID] = player
	target.awaitingFirst = false
	r.playerRoom[playerID] = roomID
	return previous, nil
}

// LeaveRoom removes playerID from its room. A departing host hands over to
// the remaining member with the earliest join time (ties by id). A room with
// no human left is deleted at once.
func (r *Registry) LeaveRoom(playerID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.playerRoom[playerID]; !ok {
		return LeaveResult{PlayerID: playerID}, false
	}
	return r.leaveLocked(playerID), true
}

func (r *Registry) leaveLocked(playerID string) LeaveResult {
	roomID := r.playerRoom[playerID]
	delete(r.playerRoom, playerID)
	result := LeaveResult{PlayerID: playerID, RoomID: roomID}

	rm, ok := r.rooms[roomID]
	if !ok {
		return result
	}
	if p, ok := rm.players[playerID]; ok {
		result.PlayerName = p.Name
	}
	delete(rm.players, playerID)

	if len(rm.players) == 0 {
		delete(r.rooms, roomID)
		result.RoomDeleted = true
		return result
	}
	if rm.hostID == playerID {
		next := earliestJoined(rm.players)
		next.Host = true
		rm.hostID = next.ID
		result.NewHostID = next.ID
	}
	return result
}

func earliestJoined(players map[string]*Player) *Player {
	var best *Player
	for _, p := range players {
		if best == nil || p.JoinTime.Before(best.JoinTime) || (p.JoinTime.Equal(best.JoinTime) && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

// SetReady updates the ready flag and returns the player's room.
func (r *Registry) SetReady(playerID string, ready bool) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.playerRoom[playerID]
	if !ok {
		return "", false
	}
	r.rooms[roomID].players[playerID].Ready = ready
	return roomID, true
}

// AllReady reports whether the room has at least one member and every human
// member is ready. The host counts as ready; AI seats always are.
func (r *Registry) AllReady(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	return allReady(rm)
}

func allReady(rm *room) bool {
	if len(rm.players) == 0 {
		return false
	}
	for _, p := range rm.players {
		if !p.Ready && !p.Host {
			return false
		}
	}
	return true
}

func canStart(rm *room) bool {
	return rm.state == protocol.RoomWaiting && rm.seats() >= MinPlayers && allReady(rm)
}

// Touch records a heartbeat for a seated player.
func (r *Registry) Touch(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.playerRoom[playerID]
	if !ok {
		return false
	}
	r.rooms[roomID].players[playerID].LastHeartbeat = r.now()
	return true
}

// CleanupOffline evicts every player silent for longer than timeout through
// the normal leave path.
func (r *Registry) CleanupOffline(timeout time.Duration) []LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var stale []string
	for _, rm := range r.rooms {
		for _, p := range rm.players {
			if now.Sub(p.LastHeartbeat) > timeout {
				stale = append(stale, p.ID)
			}
		}
	}
	slices.Sort(stale)

	evicted := make([]LeaveResult, 0, len(stale))
	for _, playerID := range stale {
		evicted = append(evicted, r.leaveLocked(playerID))
	}
	return evicted
}

// RoomOf returns the room a player sits in.
func (r *Registry) RoomOf(playerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.playerRoom[playerID]
	return roomID, ok
}

// Members returns the human member ids of a room, sorted.
func (r *Registry) Members(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rm.players))
	for playerID := range rm.players {
		ids = append(ids, playerID)
	}
	slices.Sort(ids)
	return ids
}

// Exists reports whether roomID is registered.
func (r *Registry) Exists(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.rooms[roomID]
	return ok
}

// Len returns the number of rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// PlayerCount returns the number of seated humans.
func (r *Registry) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.playerRoom)
}

// Snapshot renders the public view of one room.
func (r *Registry) Snapshot(roomID string) (protocol.RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return protocol.RoomInfo{}, false
	}
	return snapshot(rm), true
}

// List renders every room that is not FINISHED, oldest first.
func (r *Registry) List() []protocol.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		if rm.state == protocol.RoomFinished {
			continue
		}
		out = append(out, snapshot(rm))
	}
	slices.SortFunc(out, func(a, b protocol.RoomInfo) int {
		return cmp.Or(cmp.Compare(a.CreateTime, b.CreateTime), strings.Compare(a.RoomID, b.RoomID))
	})
	return out
}

func snapshot(rm *room) protocol.RoomInfo {
	players := make([]protocol.PlayerInfo, 0, len(rm.players))
	for _, p := range rm.players {
		players = append(players, protocol.PlayerInfo{
			PlayerID: p.ID,
			Name:     p.Name,
			IsReady:  p.Ready,
			IsHost:   p.Host,
			JoinTime: p.JoinTime.UnixMilli(),
		})
	}
	slices.SortFunc(players, func(a, b protocol.PlayerInfo) int {
		return cmp.Or(cmp.Compare(a.JoinTime, b.JoinTime), strings.Compare(a.PlayerID, b.PlayerID))
	})
	ai := make([]protocol.AIPlayerInfo, 0, len(rm.aiSeats))
	for _, seat := range rm.aiSeats {
		ai = append(ai, protocol.AIPlayerInfo{PlayerID: seat.ID, Name: seat.Name, Difficulty: seat.Difficulty})
	}
	return protocol.RoomInfo{
		RoomID:         rm.id,
		Name:           rm.name,
		MaxPlayers:     rm.maxPlayers,
		CurrentPlayers: rm.seats(),
		HasPassword:    rm.password != "",
		State:          rm.state,
		HostID:         rm.hostID,
		CreateTime:     rm.createTime.UnixMilli(),
		Players:        players,
		AIPlayers:      ai,
		CanStart:       canStart(rm),
		AllReady:       allReady(rm),
	}
}
