package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/platform/errors/i18n"
	"github.com/louisbranch/tycoon.lobby/internal/platform/id"
	"github.com/louisbranch/tycoon.lobby/internal/platform/timeouts"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"golang.org/x/net/websocket"
)

// peer serializes writes to one websocket.
type peer struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	_ = p.ws.SetWriteDeadline(time.Now().Add(timeouts.WebSocketWrite))
	return websocket.Message.Send(p.ws, string(data))
}

func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	_ = p.ws.Close()
}

var errPeerClosed = errors.New("connection closed")

// connection is the server-side record of one accepted websocket.
type connection struct {
	id          string
	peer        *peer
	catalog     *i18n.Catalog
	connectTime time.Time
	messages    atomic.Uint64

	mu            sync.Mutex
	lastHeartbeat time.Time
	name          string
}

func (c *connection) touch(now time.Time) {
	c.mu.Lock()
	c.lastHeartbeat = now
	c.mu.Unlock()
}

func (c *connection) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

func (c *connection) displayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name == "" {
		return c.id
	}
	return c.name
}

func (c *connection) setName(name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// Handler returns the lobby routes: /up, /stats and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/stats", s.handleStats)

	wsServer := websocket.Server{
		Handler: s.serveConn,
		// Origin is not checked.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.reserveSlot() {
			s.counters.rejected.Add(1)
			s.logger.Warn("websocket rejected: server full", "remote", r.RemoteAddr)
			w.Header().Set("Retry-After", "5")
			http.Error(w, "server full", http.StatusServiceUnavailable)
			return
		}
		defer s.releaseSlot()
		wsServer.ServeHTTP(w, r)
	})
	return mux
}

// reserveSlot claims a connection slot before the websocket upgrade so the
// cap is enforced before any registration happens.
func (s *Server) reserveSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting || s.reserved >= s.cfg.MaxConnections {
		return false
	}
	s.reserved++
	s.handlers.Add(1)
	return true
}

func (s *Server) releaseSlot() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
	s.handlers.Done()
}

func (s *Server) serveConn(ws *websocket.Conn) {
	ws.MaxPayloadBytes = s.cfg.MaxFramePayloadBytes
	ws.PayloadType = websocket.TextFrame

	c, err := s.register(ws)
	if err != nil {
		s.logger.Error("register connection", "error", err)
		_ = ws.Close()
		return
	}
	defer s.unregister(c)

	ctx := s.lifetime
	if request := ws.Request(); request != nil {
		ctx = mergeCancel(s.lifetime, request.Context())
	}
	s.greet(c)

	for {
		var raw []byte
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				s.replyError(c, apperrors.WithMetadata(apperrors.CodeProtocol, "frame too large", map[string]string{"Reason": "message too large"}))
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("websocket read ended", "client_id", c.id, "error", err)
			}
			return
		}
		c.messages.Add(1)
		s.counters.received.Add(1)
		s.dispatch(ctx, c, raw)
	}
}

// mergeCancel returns a context carrying values of request that also ends
// when lifetime ends.
func mergeCancel(lifetime, request context.Context) context.Context {
	ctx, cancel := context.WithCancel(request)
	context.AfterFunc(lifetime, cancel)
	return ctx
}

func (s *Server) register(ws *websocket.Conn) (*connection, error) {
	clientID, err := id.NewID()
	if err != nil {
		return nil, err
	}
	locale := ""
	if request := ws.Request(); request != nil {
		locale = request.URL.Query().Get("locale")
	}
	now := s.now()
	c := &connection{
		id:            clientID,
		peer:          &peer{ws: ws},
		catalog:       i18n.GetCatalog(locale),
		connectTime:   now,
		lastHeartbeat: now,
	}

	s.mu.Lock()
	s.conns[clientID] = c
	total := len(s.conns)
	s.mu.Unlock()

	s.counters.accepted.Add(1)
	s.logger.Info("client connected", "client_id", clientID, "locale", c.catalog.Locale(), "connections", total)
	return c, nil
}

func (s *Server) greet(c *connection) {
	ack, err := protocol.New(protocol.TypeSuccess, protocol.ConnectAck{
		Operation:     protocol.TypeConnect,
		ClientID:      c.id,
		ServerTime:    s.now().UTC().Format(time.RFC3339),
		ServerVersion: ServerVersion,
	})
	if err == nil {
		s.send(c, ack)
	}
	welcome, err := protocol.New(protocol.TypeWelcome, protocol.NotificationPayload{Message: "Welcome to the lobby"})
	if err == nil {
		s.send(c, welcome)
	}
}

// unregister removes a closed connection and releases its seat.
func (s *Server) unregister(c *connection) {
	c.peer.close()

	s.mu.Lock()
	delete(s.conns, c.id)
	total := len(s.conns)
	s.mu.Unlock()

	if result, ok := s.registry.LeaveRoom(c.id); ok {
		s.afterLeave(result)
	}
	s.chat.Forget(c.id)
	s.logger.Info("client disconnected", "client_id", c.id, "connections", total, "messages", c.messages.Load())
}

func (s *Server) connection(clientID string) (*connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[clientID]
	return c, ok
}

func (s *Server) connections() []*connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// send writes one envelope to one connection. A failure is logged and
// counted; it never propagates to the caller's other recipients.
func (s *Server) send(c *connection, env protocol.Envelope) bool {
	data, err := env.Encode()
	if err != nil {
		s.logger.Error("encode envelope", "message_type", env.Type, "error", err)
		return false
	}
	if err := c.peer.write(data); err != nil {
		s.counters.sendErrors.Add(1)
		s.logger.Debug("send failed", "client_id", c.id, "message_type", env.Type, "error", err)
		return false
	}
	s.counters.sent.Add(1)
	s.counters.bytesSent.Add(uint64(len(data)))
	return true
}

// broadcast fans env out to every human member of roomID except the listed
// ids, and returns how many sends succeeded.
func (s *Server) broadcast(roomID string, env protocol.Envelope, except ...string) int {
	delivered := 0
	for _, memberID := range s.registry.Members(roomID) {
		if slices.Contains(except, memberID) {
			continue
		}
		c, ok := s.connection(memberID)
		if !ok {
			continue
		}
		if s.send(c, env) {
			delivered++
		}
	}
	return delivered
}
