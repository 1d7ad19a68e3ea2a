package client

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/statesync"
)

func encode(t protocol.MessageType, payload any) ([]byte, error) {
	env, err := protocol.New(t, payload)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}

// enqueue queues one envelope for the writer. It reports only whether the
// message was accepted for sending, never whether the server applied it.
func (c *Client) enqueue(t protocol.MessageType, payload any) bool {
	if c.State() != StateConnected {
		return false
	}
	data, err := encode(t, payload)
	if err != nil {
		c.logger.Error("encode outbound message", "message_type", t, "error", err)
		return false
	}
	select {
	case c.outbox <- data:
		return true
	default:
		c.logger.Warn("send queue full", "message_type", t)
		return false
	}
}

// CreateRoom asks the server for a new room hosted by this client.
func (c *Client) CreateRoom(name string, maxPlayers int, password string) bool {
	c.mu.Lock()
	c.pendingPass = password
	c.mu.Unlock()
	return c.enqueue(protocol.TypeCreateRoom, protocol.CreateRoomPayload{
		Name:       name,
		MaxPlayers: maxPlayers,
		Password:   password,
		PlayerName: c.cfg.PlayerName,
	})
}

// JoinRoom asks to join roomID.
func (c *Client) JoinRoom(roomID, password string) bool {
	c.mu.Lock()
	c.pendingPass = password
	c.mu.Unlock()
	return c.enqueue(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomID:     roomID,
		PlayerName: c.cfg.PlayerName,
		Password:   password,
	})
}

// LeaveRoom leaves the current room.
func (c *Client) LeaveRoom() bool {
	return c.enqueue(protocol.TypeLeaveRoom, nil)
}

// RequestRoomList asks for the open rooms; see Rooms.
func (c *Client) RequestRoomList() bool {
	return c.enqueue(protocol.TypeRoomList, nil)
}

// RequestRoomInfo asks for a room snapshot; empty means the current room.
func (c *Client) RequestRoomInfo(roomID string) bool {
	return c.enqueue(protocol.TypeRoomInfo, protocol.RoomInfoRequest{RoomID: roomID})
}

func (c *Client) SetReady(ready bool) bool {
	return c.enqueue(protocol.TypePlayerReady, protocol.PlayerReadyPayload{Ready: ready})
}

func (c *Client) AddAIPlayer(difficulty string) bool {
	return c.enqueue(protocol.TypeAddAIPlayer, protocol.AddAIPlayerPayload{Difficulty: difficulty})
}

func (c *Client) RemoveAIPlayer(playerID string) bool {
	return c.enqueue(protocol.TypeRemoveAIPlayer, protocol.RemoveAIPlayerPayload{PlayerID: playerID})
}

func (c *Client) StartGame() bool {
	return c.enqueue(protocol.TypeGameStart, nil)
}

func (c *Client) EndGame() bool {
	return c.enqueue(protocol.TypeGameEnd, nil)
}

// SendPlayerAction forwards an opaque action to the room's rules engine.
func (c *Client) SendPlayerAction(action string, data json.RawMessage) bool {
	return c.enqueue(protocol.TypePlayerAction, protocol.PlayerActionPayload{Action: action, Data: data})
}

// SendChat posts a public message to the current room, or to everyone when
// not in a room.
func (c *Client) SendChat(content string) bool {
	return c.enqueue(protocol.TypeChatMessage, protocol.SendChatPayload{Content: content, MessageType: protocol.ChatPublic})
}

// SendPrivateChat posts a message only targetID and this client see.
func (c *Client) SendPrivateChat(targetID, content string) bool {
	return c.enqueue(protocol.TypeChatMessage, protocol.SendChatPayload{
		Content:     content,
		MessageType: protocol.ChatPrivate,
		TargetID:    targetID,
	})
}

func (c *Client) RequestChatHistory(req protocol.ChatHistoryRequest) bool {
	return c.enqueue(protocol.TypeChatHistory, req)
}

func (c *Client) SetTyping(typing bool) bool {
	return c.enqueue(protocol.TypePlayerTyping, protocol.TypingPayload{IsTyping: typing})
}

// receive updates cached state from one server envelope, then runs the
// registered handlers.
func (c *Client) receive(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSuccess:
		c.onSuccess(env)
	case protocol.TypeRoomInfo:
		var info protocol.RoomInfo
		if err := env.DecodeData(&info); err == nil {
			c.mu.Lock()
			if info.RoomID == c.roomID {
				c.room = &info
			}
			c.mu.Unlock()
		}
	case protocol.TypeRoomList:
		var list protocol.RoomListPayload
		if err := env.DecodeData(&list); err == nil {
			c.mu.Lock()
			c.rooms = list.Rooms
			c.mu.Unlock()
		}
	case protocol.TypeGameStateSync:
		var payload protocol.SyncPayload
		if err := env.DecodeData(&payload); err != nil {
			break
		}
		if err := c.replica.Apply(payload); err != nil {
			if errors.Is(err, statesync.ErrNoBaseState) {
				c.logger.Debug("delta before full sync", "room_id", payload.RoomID)
			} else {
				c.logger.Warn("apply state sync", "room_id", payload.RoomID, "error", err)
			}
		}
	case protocol.TypeGameStart:
		c.replica.Reset()
	case protocol.TypeHeartbeat:
		var payload protocol.HeartbeatPayload
		if err := env.DecodeData(&payload); err == nil && payload.ClientTime > 0 {
			c.mu.Lock()
			c.lastRTT = c.now().Sub(time.UnixMilli(payload.ClientTime))
			c.mu.Unlock()
		}
	case protocol.TypeDisconnect:
		var payload protocol.DisconnectPayload
		_ = env.DecodeData(&payload)
		c.logger.Info("server closing connection", "reason", payload.Reason)
	}

	c.handlersMu.RLock()
	handlers := c.handlers[env.Type]
	c.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(env)
	}
}

func (c *Client) onSuccess(env protocol.Envelope) {
	var payload protocol.SuccessPayload
	if err := env.DecodeData(&payload); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch payload.Operation {
	case protocol.TypeConnect:
		var ack protocol.ConnectAck
		if err := env.DecodeData(&ack); err == nil {
			c.clientID = ack.ClientID
		}
	case protocol.TypeCreateRoom, protocol.TypeJoinRoom:
		if payload.RoomID != c.roomID {
			c.replica.Reset()
		}
		c.roomID = payload.RoomID
		c.roomPassword = c.pendingPass
		c.room = payload.Room
	case protocol.TypeLeaveRoom:
		c.roomID = ""
		c.roomPassword = ""
		c.room = nil
		c.replica.Reset()
	}
}
