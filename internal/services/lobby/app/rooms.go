package app

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/platform/requestctx"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/game"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/rooms"
)

func (s *Server) handleCreateRoom(c *connection, env protocol.Envelope) error {
	var payload protocol.CreateRoomPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	c.setName(strings.TrimSpace(payload.PlayerName))

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		name = c.displayName() + "'s room"
	}
	roomID, previous, err := s.registry.CreateAndJoin(name, payload.MaxPlayers, payload.Password, c.id, c.displayName())
	if err != nil {
		return err
	}
	if previous != nil {
		s.afterLeave(*previous)
	}
	s.logger.Info("room created", "room_id", roomID, "host", c.id)
	return s.afterJoin(c, roomID, protocol.TypeCreateRoom)
}

func (s *Server) handleJoinRoom(c *connection, env protocol.Envelope) error {
	var payload protocol.JoinRoomPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)
	if roomID == "" {
		return apperrors.WithMetadata(apperrors.CodeProtocol, "room_id is required", map[string]string{"Reason": "room_id is required"})
	}
	c.setName(strings.TrimSpace(payload.PlayerName))

	previous, err := s.registry.JoinRoom(c.id, roomID, c.displayName(), payload.Password)
	if apperrors.CodeOf(err) == apperrors.CodeNotFound {
		previous, err = s.rejoinLingering(c, roomID, payload.Password)
	}
	if err != nil {
		return err
	}
	if previous != nil {
		s.afterLeave(*previous)
	}
	return s.afterJoin(c, roomID, protocol.TypeJoinRoom)
}

// afterJoin confirms a join, tells the room and resyncs a running game.
func (s *Server) afterJoin(c *connection, roomID string, operation protocol.MessageType) error {
	if session, ok := s.session(roomID); ok {
		session.resume()
		session.manager.ForceFullSync()
	}

	info, ok := s.registry.Snapshot(roomID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "room vanished after join", map[string]string{"Resource": "Room"})
	}
	if err := s.replySuccess(c, protocol.SuccessPayload{Operation: operation, RoomID: roomID, Room: &info}); err != nil {
		return err
	}
	s.systemChat(roomID, fmt.Sprintf("%s joined the room", c.displayName()))
	s.broadcastRoomInfo(roomID)
	return nil
}

func (s *Server) handleLeaveRoom(c *connection) error {
	result, ok := s.registry.LeaveRoom(c.id)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeState, "not in a room", map[string]string{"Reason": "You are not in a room"})
	}
	s.afterLeave(result)
	return s.replySuccess(c, protocol.SuccessPayload{Operation: protocol.TypeLeaveRoom, RoomID: result.RoomID})
}

// afterLeave tells the remaining members about a departure, or retires the
// room's resources once it is gone.
func (s *Server) afterLeave(result rooms.LeaveResult) {
	if result.RoomID == "" {
		return
	}
	if result.RoomDeleted {
		s.logger.Info("room deleted", "room_id", result.RoomID)
		s.chat.DropRoom(result.RoomID)
		s.scheduleRelease(result.RoomID)
		return
	}
	name := result.PlayerName
	if name == "" {
		name = result.PlayerID
	}
	s.systemChat(result.RoomID, fmt.Sprintf("%s left the room", name))
	if result.NewHostID != "" {
		notice := fmt.Sprintf("%s is now the host", s.nameOf(result.NewHostID))
		s.chat.System(protocol.ChatNotification, result.RoomID, notice)
		if env, err := protocol.New(protocol.TypeNotification, protocol.NotificationPayload{Message: notice}); err == nil {
			s.broadcast(result.RoomID, env.WithRoom(result.RoomID))
		}
	}
	s.broadcastRoomInfo(result.RoomID)
}

func (s *Server) nameOf(clientID string) string {
	if c, ok := s.connection(clientID); ok {
		return c.displayName()
	}
	return clientID
}

func (s *Server) handleRoomList(c *connection) error {
	return s.reply(c, protocol.TypeRoomList, protocol.RoomListPayload{Rooms: s.registry.List()})
}

func (s *Server) handleRoomInfo(c *connection, env protocol.Envelope) error {
	var payload protocol.RoomInfoRequest
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)
	if roomID == "" {
		current, ok := s.registry.RoomOf(c.id)
		if !ok {
			return apperrors.WithMetadata(apperrors.CodeState, "not in a room", map[string]string{"Reason": "You are not in a room"})
		}
		roomID = current
	}
	info, ok := s.registry.Snapshot(roomID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("room %s not found", roomID), map[string]string{"Resource": "Room"})
	}
	return s.reply(c, protocol.TypeRoomInfo, info)
}

// broadcastRoomInfo pushes a fresh snapshot to every member.
func (s *Server) broadcastRoomInfo(roomID string) {
	info, ok := s.registry.Snapshot(roomID)
	if !ok {
		return
	}
	env, err := protocol.New(protocol.TypeRoomInfo, info)
	if err != nil {
		s.logger.Error("encode room info", "room_id", roomID, "error", err)
		return
	}
	s.broadcast(roomID, env.WithRoom(roomID))
}

func (s *Server) handleAddAIPlayer(c *connection, env protocol.Envelope) error {
	var payload protocol.AddAIPlayerPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	roomID, seat, err := s.registry.AddAISeat(c.id, payload.Difficulty)
	if err != nil {
		return err
	}
	if err := s.replySuccess(c, protocol.SuccessPayload{Operation: protocol.TypeAddAIPlayer, RoomID: roomID, PlayerID: seat.ID}); err != nil {
		return err
	}
	s.systemChat(roomID, fmt.Sprintf("%s joined the room", seat.Name))
	s.broadcastRoomInfo(roomID)
	return nil
}

func (s *Server) handleRemoveAIPlayer(c *connection, env protocol.Envelope) error {
	var payload protocol.RemoveAIPlayerPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	roomID, err := s.registry.RemoveAISeat(c.id, payload.PlayerID)
	if err != nil {
		return err
	}
	if err := s.replySuccess(c, protocol.SuccessPayload{Operation: protocol.TypeRemoveAIPlayer, RoomID: roomID, PlayerID: payload.PlayerID}); err != nil {
		return err
	}
	s.broadcastRoomInfo(roomID)
	return nil
}

func (s *Server) handlePlayerReady(c *connection, env protocol.Envelope) error {
	var payload protocol.PlayerReadyPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	roomID, ok := s.registry.SetReady(c.id, payload.Ready)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeState, "not in a room", map[string]string{"Reason": "You are not in a room"})
	}
	if err := s.replySuccess(c, protocol.SuccessPayload{Operation: protocol.TypePlayerReady, RoomID: roomID}); err != nil {
		return err
	}
	s.broadcastRoomInfo(roomID)
	return nil
}

func (s *Server) handleGameStart(ctx context.Context, c *connection) error {
	var engine game.Engine
	roomID, seats, err := s.registry.StartGame(c.id, func(roomID string, seats []string) error {
		built, err := s.engines(roomID, seats)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeEngine, "create engine", err)
		}
		engine = built
		return nil
	})
	if err != nil {
		return err
	}
	cfg, _ := s.registry.Config(roomID)
	s.startSession(ctx, cfg, engine)
	s.logger.Info("game started", append(requestctx.LogAttrs(ctx), "seats", len(seats))...)

	if err := s.replySuccess(c, protocol.SuccessPayload{Operation: protocol.TypeGameStart, RoomID: roomID}); err != nil {
		return err
	}
	start, err := protocol.New(protocol.TypeGameStart, protocol.GameStartPayload{RoomID: roomID, Players: seats})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode game start", err)
	}
	s.broadcast(roomID, start.WithRoom(roomID))
	s.broadcastRoomInfo(roomID)
	return nil
}

func (s *Server) handleGameEnd(c *connection) error {
	roomID, err := s.registry.EndGame(c.id)
	if err != nil {
		return err
	}
	s.stopSession(roomID)
	s.logger.Info("game ended", "room_id", roomID)

	if err := s.replySuccess(c, protocol.SuccessPayload{Operation: protocol.TypeGameEnd, RoomID: roomID}); err != nil {
		return err
	}
	end, err := protocol.New(protocol.TypeGameEnd, protocol.GameEndPayload{RoomID: roomID, Reason: "ended by host"})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode game end", err)
	}
	s.broadcast(roomID, end.WithRoom(roomID))
	s.broadcastRoomInfo(roomID)
	return nil
}

func (s *Server) handlePlayerAction(ctx context.Context, c *connection, env protocol.Envelope) error {
	var payload protocol.PlayerActionPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.Action) == "" {
		return apperrors.WithMetadata(apperrors.CodeProtocol, "action is required", map[string]string{"Reason": "action is required"})
	}
	roomID, ok := s.registry.RoomOf(c.id)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeState, "not in a room", map[string]string{"Reason": "You are not in a room"})
	}
	session, ok := s.session(roomID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeState, "game not running", map[string]string{"Reason": "The game is not running"})
	}

	_, span := s.tracer.Start(ctx, "lobby.engine.apply")
	result, err := session.engine.ApplyPlayerAction(c.id, payload)
	span.End()
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInternal {
			return apperrors.Wrap(apperrors.CodeEngine, "engine rejected action", err)
		}
		return err
	}
	return s.replySuccess(c, protocol.SuccessPayload{
		Operation: protocol.TypePlayerAction,
		RoomID:    roomID,
		Action:    payload.Action,
		Result:    result,
	})
}
