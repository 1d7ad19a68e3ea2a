package app

import (
	"context"
	"fmt"
	"runtime/debug"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/platform/requestctx"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dispatch decodes one frame and routes it. Every failure, including a
// handler panic, ends as an ERROR reply to this connection only.
func (s *Server) dispatch(ctx context.Context, c *connection, raw []byte) {
	now := s.now()
	c.touch(now)
	s.registry.Touch(c.id)

	env, err := protocol.Decode(raw)
	if err != nil {
		s.replyError(c, err)
		return
	}

	ctx = requestctx.WithClientID(ctx, c.id)
	if roomID, ok := s.registry.RoomOf(c.id); ok {
		ctx = requestctx.WithRoomID(ctx, roomID)
	}
	ctx, span := s.tracer.Start(ctx, "lobby.dispatch "+string(env.Type), trace.WithAttributes(
		attribute.String("lobby.client_id", c.id),
		attribute.String("lobby.message_type", string(env.Type)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.counters.panics.Add(1)
			attrs := append(requestctx.LogAttrs(ctx), "message_type", env.Type, "panic", r, "stack", string(debug.Stack()))
			s.logger.Error("handler panic", attrs...)
			span.SetStatus(codes.Error, "panic")
			s.replyError(c, apperrors.New(apperrors.CodeInternal, fmt.Sprintf("panic in %s handler", env.Type)))
		}
	}()

	if err := s.route(ctx, c, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		s.replyError(c, err)
	}
}

// route is the dispatch table. Every registered type has a case; types the
// server only emits are refused.
func (s *Server) route(ctx context.Context, c *connection, env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeHeartbeat:
		return s.handleHeartbeat(c, env)
	case protocol.TypeDisconnect:
		c.peer.close()
		return nil
	case protocol.TypeCreateRoom:
		return s.handleCreateRoom(c, env)
	case protocol.TypeJoinRoom:
		return s.handleJoinRoom(c, env)
	case protocol.TypeLeaveRoom:
		return s.handleLeaveRoom(c)
	case protocol.TypeRoomList:
		return s.handleRoomList(c)
	case protocol.TypeRoomInfo:
		return s.handleRoomInfo(c, env)
	case protocol.TypeAddAIPlayer:
		return s.handleAddAIPlayer(c, env)
	case protocol.TypeRemoveAIPlayer:
		return s.handleRemoveAIPlayer(c, env)
	case protocol.TypePlayerReady:
		return s.handlePlayerReady(c, env)
	case protocol.TypeGameStart:
		return s.handleGameStart(ctx, c)
	case protocol.TypeGameEnd:
		return s.handleGameEnd(c)
	case protocol.TypePlayerAction:
		return s.handlePlayerAction(ctx, c, env)
	case protocol.TypeChatMessage:
		return s.handleChatMessage(c, env)
	case protocol.TypeChatHistory:
		return s.handleChatHistory(c, env)
	case protocol.TypePlayerTyping:
		return s.handlePlayerTyping(c, env)
	case protocol.TypeConnect,
		protocol.TypeGameStateSync,
		protocol.TypeDiceResult,
		protocol.TypeTurnChange,
		protocol.TypeError,
		protocol.TypeSuccess,
		protocol.TypeNotification,
		protocol.TypeWarning,
		protocol.TypeWelcome:
		return apperrors.WithMetadata(apperrors.CodeProtocol, fmt.Sprintf("%s is server-only", env.Type), map[string]string{
			"Reason":      fmt.Sprintf("%s cannot be sent by clients", env.Type),
			"MessageType": string(env.Type),
		})
	default:
		return apperrors.WithMetadata(apperrors.CodeProtocol, fmt.Sprintf("no handler for %s", env.Type), map[string]string{
			"Reason":      "unsupported message_type",
			"MessageType": string(env.Type),
		})
	}
}

// reply sends one envelope of type t to c.
func (s *Server) reply(c *connection, t protocol.MessageType, payload any) error {
	env, err := protocol.New(t, payload)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "encode reply", err)
	}
	s.send(c, env)
	return nil
}

func (s *Server) replySuccess(c *connection, payload protocol.SuccessPayload) error {
	return s.reply(c, protocol.TypeSuccess, payload)
}

// replyError renders err in the connection's locale. Unexpected errors are
// logged and reported as INTERNAL.
func (s *Server) replyError(c *connection, err error) {
	code := apperrors.CodeOf(err)
	metadata := apperrors.MetadataOf(err)
	if code == apperrors.CodeInternal {
		s.logger.Error("internal handler error", "client_id", c.id, "error", err)
	}

	payload := protocol.ErrorPayload{
		Code:      string(code),
		Message:   c.catalog.Format(string(code), metadata),
		Retryable: code.Retryable(),
	}
	if len(metadata) > 0 {
		payload.Details = make(map[string]any, len(metadata))
		for key, value := range metadata {
			payload.Details[key] = value
		}
	}
	env, encodeErr := protocol.New(protocol.TypeError, payload)
	if encodeErr != nil {
		s.logger.Error("encode error reply", "error", encodeErr)
		return
	}
	s.send(c, env)
}

func (s *Server) handleHeartbeat(c *connection, env protocol.Envelope) error {
	var payload protocol.HeartbeatPayload
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	return s.reply(c, protocol.TypeHeartbeat, protocol.HeartbeatPayload{
		ClientTime: payload.ClientTime,
		ServerTime: s.now().UnixMilli(),
	})
}
