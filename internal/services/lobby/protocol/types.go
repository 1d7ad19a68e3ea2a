package protocol

// MessageType tags an envelope. The set is closed: Decode rejects any tag not
// listed here.
type MessageType string

const (
	// Connection lifecycle.
	TypeConnect    MessageType = "connect"
	TypeDisconnect MessageType = "disconnect"
	TypeHeartbeat  MessageType = "heartbeat"

	// Room management.
	TypeCreateRoom     MessageType = "create_room"
	TypeJoinRoom       MessageType = "join_room"
	TypeLeaveRoom      MessageType = "leave_room"
	TypeRoomList       MessageType = "room_list"
	TypeRoomInfo       MessageType = "room_info"
	TypeAddAIPlayer    MessageType = "add_ai_player"
	TypeRemoveAIPlayer MessageType = "remove_ai_player"
	TypePlayerReady    MessageType = "player_ready"

	// Game flow.
	TypeGameStart     MessageType = "game_start"
	TypeGameEnd       MessageType = "game_end"
	TypeGameStateSync MessageType = "game_state_sync"
	TypePlayerAction  MessageType = "player_action"
	TypeDiceResult    MessageType = "dice_result"
	TypeTurnChange    MessageType = "turn_change"

	// Chat.
	TypeChatMessage  MessageType = "chat_message"
	TypeChatHistory  MessageType = "chat_history"
	TypePlayerTyping MessageType = "player_typing"

	// Status replies.
	TypeError        MessageType = "error"
	TypeSuccess      MessageType = "success"
	TypeNotification MessageType = "notification"
	TypeWarning      MessageType = "warning"
	TypeWelcome      MessageType = "welcome"
)

var knownTypes = map[MessageType]struct{}{
	TypeConnect:        {},
	TypeDisconnect:     {},
	TypeHeartbeat:      {},
	TypeCreateRoom:     {},
	TypeJoinRoom:       {},
	TypeLeaveRoom:      {},
	TypeRoomList:       {},
	TypeRoomInfo:       {},
	TypeAddAIPlayer:    {},
	TypeRemoveAIPlayer: {},
	TypePlayerReady:    {},
	TypeGameStart:      {},
	TypeGameEnd:        {},
	TypeGameStateSync:  {},
	TypePlayerAction:   {},
	TypeDiceResult:     {},
	TypeTurnChange:     {},
	TypeChatMessage:    {},
	TypeChatHistory:    {},
	TypePlayerTyping:   {},
	TypeError:          {},
	TypeSuccess:        {},
	TypeNotification:   {},
	TypeWarning:        {},
	TypeWelcome:        {},
}

// Known reports whether t is a registered tag.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// KnownTypes returns every registered tag.
func KnownTypes() []MessageType {
	out := make([]MessageType, 0, len(knownTypes))
	for t := range knownTypes {
		out = append(out, t)
	}
	return out
}
