package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/chat"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/statesync"
)

// Stats is the operational snapshot served on /stats.
type Stats struct {
	Version          string                     `json:"server_version"`
	Uptime           string                     `json:"uptime"`
	Connections      int                        `json:"connections"`
	Rooms            int                        `json:"rooms"`
	Players          int                        `json:"players"`
	Accepted         uint64                     `json:"connections_accepted"`
	Rejected         uint64                     `json:"connections_rejected"`
	Evictions        uint64                     `json:"evictions"`
	MessagesReceived uint64                     `json:"messages_received"`
	MessagesSent     uint64                     `json:"messages_sent"`
	SendErrors       uint64                     `json:"send_errors"`
	DispatchPanics   uint64                     `json:"dispatch_panics"`
	BytesSent        uint64                     `json:"bytes_sent"`
	Chat             chat.Stats                 `json:"chat"`
	Sync             map[string]statesync.Stats `json:"sync"`
}

func (s *Server) stats() Stats {
	s.mu.Lock()
	connections := len(s.conns)
	s.mu.Unlock()

	return Stats{
		Version:          ServerVersion,
		Uptime:           s.now().Sub(s.started).Round(time.Second).String(),
		Connections:      connections,
		Rooms:            s.registry.Len(),
		Players:          s.registry.PlayerCount(),
		Accepted:         s.counters.accepted.Load(),
		Rejected:         s.counters.rejected.Load(),
		Evictions:        s.counters.evictions.Load(),
		MessagesReceived: s.counters.received.Load(),
		MessagesSent:     s.counters.sent.Load(),
		SendErrors:       s.counters.sendErrors.Load(),
		DispatchPanics:   s.counters.panics.Load(),
		BytesSent:        s.counters.bytesSent.Load(),
		Chat:             s.chat.Stats(),
		Sync:             s.sessionStats(),
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats()); err != nil {
		s.logger.Warn("write stats", "error", err)
	}
}
