package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/game"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/rooms"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/statesync"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// gameSession drives one PLAYING room: its engine, its sync manager and the
// worker that ticks and forwards engine events.
type gameSession struct {
	roomID  string
	engine  game.Engine
	manager *statesync.Manager
	config  rooms.RoomConfig

	cancel context.CancelFunc
	done   chan struct{}

	// mu serializes the grace release against a rejoin of the same room.
	mu         sync.Mutex
	grace      *time.Timer
	graceRound uint64
	released   bool
}

// resume cancels a pending release after the room came back.
func (g *gameSession) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resumeLocked()
}

func (g *gameSession) resumeLocked() {
	if g.grace != nil {
		g.grace.Stop()
		g.grace = nil
	}
	g.graceRound++
}

func (s *Server) session(roomID string) (*gameSession, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

// startSession begins ticking a room that just entered PLAYING. The worker
// is bound to the server lifetime, not to the starting request.
func (s *Server) startSession(origin context.Context, cfg rooms.RoomConfig, engine game.Engine) {
	s.stopSession(cfg.ID)

	ctx, cancel := context.WithCancel(s.lifetime)
	session := &gameSession{
		roomID:  cfg.ID,
		engine:  engine,
		manager: statesync.NewManager(cfg.ID, engine, s.cfg.FullSyncInterval, s.now),
		config:  cfg,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.sessionsMu.Lock()
	s.sessions[cfg.ID] = session
	s.sessionsMu.Unlock()

	link := trace.LinkFromContext(origin)
	go s.runSession(ctx, session, link)
}

func (s *Server) runSession(ctx context.Context, session *gameSession, link trace.Link) {
	defer close(session.done)

	var events <-chan game.Event
	if source, ok := session.engine.(game.EventSource); ok {
		events = source.Events()
	}
	ticker := time.NewTicker(s.cfg.SyncTickInterval)
	defer ticker.Stop()

	s.syncTick(ctx, session, link)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncTick(ctx, session, link)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.forwardEvent(session.roomID, event)
		}
	}
}

func (s *Server) syncTick(ctx context.Context, session *gameSession, link trace.Link) {
	_, span := s.tracer.Start(ctx, "lobby.sync.tick",
		trace.WithLinks(link),
		trace.WithAttributes(attribute.String("lobby.room_id", session.roomID)),
	)
	defer span.End()

	env, changed, err := session.manager.Tick()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tick failed")
		s.logger.Warn("state sync tick failed", "room_id", session.roomID, "error", err)
		return
	}
	if !changed {
		return
	}
	delivered := s.broadcast(session.roomID, env)
	span.SetAttributes(attribute.Int("lobby.delivered", delivered))
}

func (s *Server) forwardEvent(roomID string, event game.Event) {
	env := protocol.Envelope{
		Type:      event.Type,
		Data:      event.Data,
		RoomID:    roomID,
		Timestamp: s.now().UnixMilli(),
	}
	s.broadcast(roomID, env)
	s.gameChat(roomID, event)
}

// stopSession ends a room's worker, keeps the final state on the room when it
// still exists and closes the engine.
func (s *Server) stopSession(roomID string) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[roomID]
	delete(s.sessions, roomID)
	s.sessionsMu.Unlock()
	if !ok {
		return
	}

	session.resume()
	session.cancel()
	<-session.done

	if state, err := session.engine.SerializeGameState(); err == nil {
		s.registry.SetGameData(roomID, state)
	}
	if closer, ok := session.engine.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("close engine", "room_id", roomID, "error", err)
		}
	}
	s.logger.Info("game session stopped", "room_id", roomID)
}

func (s *Server) stopAllSessions() {
	s.sessionsMu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for roomID := range s.sessions {
		ids = append(ids, roomID)
	}
	s.sessionsMu.Unlock()

	for _, roomID := range ids {
		s.stopSession(roomID)
	}
}

// scheduleRelease keeps a deleted room's game for RoomGracePeriod so its
// players can rejoin, then stops it.
func (s *Server) scheduleRelease(roomID string) {
	session, ok := s.session(roomID)
	if !ok {
		return
	}
	if s.cfg.RoomGracePeriod <= 0 {
		session.mu.Lock()
		round := session.graceRound
		session.mu.Unlock()
		s.releaseLingering(session, round)
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.released {
		return
	}
	session.resumeLocked()
	round := session.graceRound
	session.grace = time.AfterFunc(s.cfg.RoomGracePeriod, func() {
		s.releaseLingering(session, round)
	})
	s.logger.Info("game session lingering", "room_id", roomID, "grace", s.cfg.RoomGracePeriod)
}

// releaseLingering stops a session whose grace period ran out. A rejoin that
// won the lock first bumps graceRound or brings the room back, and the
// release is dropped.
func (s *Server) releaseLingering(session *gameSession, round uint64) {
	session.mu.Lock()
	if session.graceRound != round || session.released || s.registry.Exists(session.roomID) {
		session.mu.Unlock()
		return
	}
	session.released = true
	session.grace = nil
	session.mu.Unlock()

	s.stopSession(session.roomID)
}

// rejoinLingering seats c in a deleted room whose game is still within its
// grace period. The room is restored in PLAYING only when the join succeeds.
func (s *Server) rejoinLingering(c *connection, roomID, password string) (*rooms.LeaveResult, error) {
	notFound := apperrors.WithMetadata(apperrors.CodeNotFound, fmt.Sprintf("room %s not found", roomID), map[string]string{"Resource": "Room"})
	session, ok := s.session(roomID)
	if !ok {
		return nil, notFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.released {
		return nil, notFound
	}
	cfg := session.config
	cfg.State = protocol.RoomPlaying
	previous, err := s.registry.RestoreAndJoin(cfg, c.id, c.displayName(), password)
	if err != nil {
		return nil, err
	}
	session.resumeLocked()
	s.logger.Info("room restored", "room_id", roomID, "client_id", c.id)
	return previous, nil
}

// sessionStats reports sync counters per running room.
func (s *Server) sessionStats() map[string]statesync.Stats {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	out := make(map[string]statesync.Stats, len(s.sessions))
	for roomID, session := range s.sessions {
		out[roomID] = session.manager.Stats()
	}
	return out
}
