package protocol

import "encoding/json"

// ConnectAck greets a freshly accepted connection inside a SUCCESS envelope.
type ConnectAck struct {
	Operation     MessageType `json:"operation"`
	ClientID      string `json:"client_id"`
	ServerTime    string `json:"server_time"`
	ServerVersion string `json:"server_version"`
}

// ErrorPayload is the data of every ERROR envelope.
type ErrorPayload struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// SuccessPayload confirms an operation. Operation names the request type it
// answers; the remaining fields depend on it.
type SuccessPayload struct {
	Operation MessageType     `json:"operation"`
	Message   string          `json:"message,omitempty"`
	RoomID    string          `json:"room_id,omitempty"`
	Room      *RoomInfo       `json:"room,omitempty"`
	Action    string          `json:"action,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	PlayerID  string          `json:"player_id,omitempty"`
}

// NotificationPayload is used by NOTIFICATION, WARNING and WELCOME envelopes.
type NotificationPayload struct {
	Message string `json:"message"`
}

// HeartbeatPayload echoes liveness in both directions.
type HeartbeatPayload struct {
	ClientTime int64 `json:"client_time,omitempty"`
	ServerTime int64 `json:"server_time,omitempty"`
}

// DisconnectPayload announces an orderly close.
type DisconnectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// CreateRoomPayload requests a new room. The creator joins it as host.
type CreateRoomPayload struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
	Password   string `json:"password,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
}

// JoinRoomPayload requests membership of an existing room.
type JoinRoomPayload struct {
	RoomID     string `json:"room_id"`
	PlayerName string `json:"player_name,omitempty"`
	Password   string `json:"password,omitempty"`
}

// RoomInfoRequest asks for one room. An empty RoomID means the caller's room.
type RoomInfoRequest struct {
	RoomID string `json:"room_id,omitempty"`
}

// RoomListPayload lists every joinable or running room.
type RoomListPayload struct {
	Rooms []RoomInfo `json:"rooms"`
}

// RoomState is the lifecycle of a room.
type RoomState string

const (
	RoomWaiting  RoomState = "waiting"
	RoomPlaying  RoomState = "playing"
	RoomFinished RoomState = "finished"
)

// PlayerInfo is the public view of a session player.
type PlayerInfo struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	IsReady  bool   `json:"is_ready"`
	IsHost   bool   `json:"is_host"`
	JoinTime int64  `json:"join_time"`
}

// AIPlayerInfo is the public view of an AI seat.
type AIPlayerInfo struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	Difficulty string `json:"difficulty"`
}

// RoomInfo is the public snapshot of a room. The password is never exposed.
type RoomInfo struct {
	RoomID         string         `json:"room_id"`
	Name           string         `json:"name"`
	MaxPlayers     int            `json:"max_players"`
	CurrentPlayers int            `json:"current_players"`
	HasPassword    bool           `json:"has_password"`
	State          RoomState      `json:"state"`
	HostID         string         `json:"host_id,omitempty"`
	CreateTime     int64          `json:"create_time"`
	Players        []PlayerInfo   `json:"players"`
	AIPlayers      []AIPlayerInfo `json:"ai_players"`
	CanStart       bool           `json:"can_start"`
	AllReady       bool           `json:"all_ready"`
}

// AddAIPlayerPayload asks the host's room for a new AI seat.
type AddAIPlayerPayload struct {
	Difficulty string `json:"difficulty,omitempty"`
}

// RemoveAIPlayerPayload names the AI seat to drop.
type RemoveAIPlayerPayload struct {
	PlayerID string `json:"player_id"`
}

// PlayerReadyPayload toggles the sender's ready flag.
type PlayerReadyPayload struct {
	Ready bool `json:"ready"`
}

// GameStartPayload is broadcast once a room enters PLAYING.
type GameStartPayload struct {
	RoomID  string   `json:"room_id"`
	Players []string `json:"players"`
}

// GameEndPayload is broadcast once a room enters FINISHED.
type GameEndPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason,omitempty"`
}

// PlayerActionPayload is forwarded untouched to the rules engine.
type PlayerActionPayload struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// SyncKind distinguishes full and delta state broadcasts.
type SyncKind string

const (
	SyncFull  SyncKind = "full"
	SyncDelta SyncKind = "delta"
)

// ChangeType names the entity a delta record replaces.
type ChangeType string

const (
	ChangePlayerUpdate    ChangeType = "player_update"
	ChangePlayerRemove    ChangeType = "player_remove"
	ChangeMapUpdate       ChangeType = "map_update"
	ChangeGameStateUpdate ChangeType = "game_state_update"
)

// Change is one entity replacement inside a delta.
type Change struct {
	Type ChangeType      `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SyncPayload is the data of GAME_STATE_SYNC. Full syncs carry State, deltas
// carry Changes, never both.
type SyncPayload struct {
	Kind     SyncKind        `json:"sync_type"`
	RoomID   string          `json:"room_id"`
	Sequence uint64          `json:"sequence"`
	State    json.RawMessage `json:"state,omitempty"`
	Changes  []Change        `json:"changes,omitempty"`
}

// ChatKind classifies a chat message.
type ChatKind string

const (
	ChatPublic       ChatKind = "public"
	ChatPrivate      ChatKind = "private"
	ChatSystem       ChatKind = "system"
	ChatGame         ChatKind = "game"
	ChatNotification ChatKind = "notification"
)

// SendChatPayload is what a client submits.
type SendChatPayload struct {
	Content     string   `json:"content"`
	MessageType ChatKind `json:"message_type,omitempty"`
	TargetID    string   `json:"target_id,omitempty"`
}

// ChatMessage is a stored and broadcast chat line.
type ChatMessage struct {
	MessageID   string   `json:"message_id"`
	SenderID    string   `json:"sender_id,omitempty"`
	SenderName  string   `json:"sender_name"`
	Content     string   `json:"content"`
	MessageType ChatKind `json:"message_type"`
	Timestamp   int64    `json:"timestamp"`
	RoomID      string   `json:"room_id,omitempty"`
	TargetID    string   `json:"target_id,omitempty"`
	// Filtered is set when banned words were masked out of Content.
	Filtered bool `json:"filtered,omitempty"`
}

// ChatHistoryRequest selects a history: private when TargetID is set, the
// room when RoomID is set, global otherwise.
type ChatHistoryRequest struct {
	RoomID   string `json:"room_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ChatHistoryPayload answers a ChatHistoryRequest.
type ChatHistoryPayload struct {
	RoomID   string        `json:"room_id,omitempty"`
	TargetID string        `json:"target_id,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

// TypingPayload reports a typing indicator change.
type TypingPayload struct {
	IsTyping   bool   `json:"is_typing"`
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
}
