package app

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
)

// runSweeps drives the periodic liveness, membership and stats passes until
// ctx ends.
func (s *Server) runSweeps(ctx context.Context) {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	cleanup := time.NewTicker(s.cfg.CleanupInterval)
	defer cleanup.Stop()
	stats := time.NewTicker(s.cfg.StatsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			s.sweepConnections()
		case <-cleanup.C:
			s.sweepMembership()
		case <-stats.C:
			s.logStats()
		}
	}
}

// sweepConnections closes every connection silent for longer than
// ClientTimeout. Their read loops then unregister them.
func (s *Server) sweepConnections() int {
	now := s.now()
	evicted := 0
	for _, c := range s.connections() {
		silence := now.Sub(c.lastSeen())
		if silence <= s.cfg.ClientTimeout {
			continue
		}
		s.logger.Info("closing silent connection", "client_id", c.id, "silence", silence)
		if notice, err := protocol.New(protocol.TypeDisconnect, protocol.DisconnectPayload{Reason: "heartbeat timeout"}); err == nil {
			s.send(c, notice)
		}
		c.peer.close()
		evicted++
	}
	if evicted > 0 {
		s.counters.evictions.Add(uint64(evicted))
	}
	return evicted
}

// sweepMembership drops room members whose heartbeats went stale in the
// registry.
func (s *Server) sweepMembership() int {
	results := s.registry.CleanupOffline(s.cfg.ClientTimeout)
	for _, result := range results {
		s.logger.Info("removed offline player", "player_id", result.PlayerID, "room_id", result.RoomID)
		s.afterLeave(result)
	}
	return len(results)
}

func (s *Server) logStats() {
	snapshot := s.stats()
	s.logger.Info("lobby stats",
		"connections", snapshot.Connections,
		"rooms", snapshot.Rooms,
		"players", snapshot.Players,
		"games", len(snapshot.Sync),
		"messages_in", humanize.Comma(int64(snapshot.MessagesReceived)),
		"messages_out", humanize.Comma(int64(snapshot.MessagesSent)),
		"sent", humanize.Bytes(snapshot.BytesSent),
		"uptime", snapshot.Uptime,
	)
}
