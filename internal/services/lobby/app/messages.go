package app

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/chat"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/game"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/tidwall/gjson"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (s *Server) handleChatMessage(c *connection, env protocol.Envelope) error {
	var payload protocol.SendChatPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	kind := payload.MessageType
	if kind == "" {
		kind = protocol.ChatPublic
	}
	if kind != protocol.ChatPublic && kind != protocol.ChatPrivate {
		return apperrors.WithMetadata(apperrors.CodeProtocol, "clients may only send public or private chat", map[string]string{
			"Reason": "unsupported chat message_type",
		})
	}

	roomID, _ := s.registry.RoomOf(c.id)
	draft := chat.Draft{
		SenderID:   c.id,
		SenderName: c.displayName(),
		Content:    payload.Content,
		Kind:       kind,
		RoomID:     roomID,
		TargetID:   strings.TrimSpace(payload.TargetID),
	}

	if kind == protocol.ChatPrivate {
		target, ok := s.connection(draft.TargetID)
		if draft.TargetID != "" && !ok {
			return apperrors.WithMetadata(apperrors.CodeNotFound, "chat target not connected", map[string]string{"Resource": "Player"})
		}
		msg, err := s.chat.Post(draft)
		if err != nil {
			return err
		}
		s.warnFiltered(c, msg)
		out, err := protocol.New(protocol.TypeChatMessage, msg)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, "encode chat message", err)
		}
		out = out.WithSender(c.id)
		s.send(c, out)
		if target.id != c.id {
			s.send(target, out)
		}
		return nil
	}

	msg, err := s.chat.Post(draft)
	if err != nil {
		return err
	}
	s.warnFiltered(c, msg)
	out, err := protocol.New(protocol.TypeChatMessage, msg)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode chat message", err)
	}
	out = out.WithSender(c.id)
	if roomID != "" {
		s.broadcast(roomID, out.WithRoom(roomID))
		return nil
	}
	for _, peer := range s.connections() {
		s.send(peer, out)
	}
	return nil
}

func (s *Server) handleChatHistory(c *connection, env protocol.Envelope) error {
	var payload protocol.ChatHistoryRequest
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	history := protocol.ChatHistoryPayload{RoomID: payload.RoomID, TargetID: payload.TargetID}
	switch {
	case payload.TargetID != "":
		history.RoomID = ""
		history.Messages = s.chat.PrivateHistory(c.id, payload.TargetID, limit)
	case payload.RoomID != "":
		current, _ := s.registry.RoomOf(c.id)
		if current != payload.RoomID {
			return apperrors.WithMetadata(apperrors.CodeState, "room history requested by non-member", map[string]string{
				"Reason": "You are not a member of that room",
			})
		}
		history.Messages = s.chat.RoomHistory(payload.RoomID, limit)
	default:
		history.Messages = s.chat.GlobalHistory(limit)
	}
	if history.Messages == nil {
		history.Messages = []protocol.ChatMessage{}
	}
	return s.reply(c, protocol.TypeChatHistory, history)
}

func (s *Server) handlePlayerTyping(c *connection, env protocol.Envelope) error {
	var payload protocol.TypingPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	s.chat.SetTyping(c.id, payload.IsTyping)

	roomID, ok := s.registry.RoomOf(c.id)
	if !ok {
		return nil
	}
	out, err := protocol.New(protocol.TypePlayerTyping, protocol.TypingPayload{
		IsTyping:   payload.IsTyping,
		PlayerID:   c.id,
		PlayerName: c.displayName(),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode typing", err)
	}
	s.broadcast(roomID, out.WithRoom(roomID).WithSender(c.id), c.id)
	return nil
}

// warnFiltered tells the sender that part of msg was masked.
func (s *Server) warnFiltered(c *connection, msg protocol.ChatMessage) {
	if !msg.Filtered {
		return
	}
	env, err := protocol.New(protocol.TypeWarning, protocol.NotificationPayload{Message: "Part of your message was filtered"})
	if err != nil {
		s.logger.Error("encode chat warning", "client_id", c.id, "error", err)
		return
	}
	s.send(c, env)
}

// gameChat records an engine point event as a GAME line in the room history.
// The event itself already reached the room.
func (s *Server) gameChat(roomID string, event game.Event) {
	playerID := gjson.GetBytes(event.Data, "player_id").String()
	if playerID == "" {
		return
	}
	var content string
	switch event.Type {
	case protocol.TypeDiceResult:
		content = fmt.Sprintf("%s rolled %d", s.nameOf(playerID), gjson.GetBytes(event.Data, "total").Int())
	case protocol.TypeTurnChange:
		content = fmt.Sprintf("%s's turn", s.nameOf(playerID))
	default:
		return
	}
	s.chat.System(protocol.ChatGame, roomID, content)
}

// systemChat records a system line in the room history and shows it to the
// room.
func (s *Server) systemChat(roomID, content string) {
	msg := s.chat.System(protocol.ChatSystem, roomID, content)
	out, err := protocol.New(protocol.TypeChatMessage, msg)
	if err != nil {
		s.logger.Error("encode system chat", "room_id", roomID, "error", err)
		return
	}
	s.broadcast(roomID, out.WithRoom(roomID))
}
