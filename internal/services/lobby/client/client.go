// Package client is the player-side session client: it keeps one websocket
// to the lobby server alive, reconnects with backoff and mirrors the room and
// game state the server pushes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/louisbranch/tycoon.lobby/internal/platform/timeouts"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/statesync"
	"golang.org/x/sync/errgroup"
)

const maxInboundBytes = 1 << 20

var (
	errHeartbeatTimeout = apperrors.New(apperrors.CodeLivenessTimeout, "no message from server within heartbeat timeout")
	errStopped          = errors.New("client stopped")
)

// Info is a point-in-time view of a client.
type Info struct {
	ClientID          string             `json:"client_id"`
	RoomID            string             `json:"room_id,omitempty"`
	State             State              `json:"state"`
	ReconnectAttempts int                `json:"reconnect_attempts"`
	LastInbound       time.Time          `json:"last_inbound"`
	LastRTT           time.Duration      `json:"last_rtt"`
	Room              *protocol.RoomInfo `json:"room,omitempty"`
}

// Handler receives every inbound envelope of one message type.
type Handler func(protocol.Envelope)

// Client is safe for concurrent use. Listeners and handlers run on the
// client's reader goroutine and must not block.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) error
	policy *reconnectPolicy

	outbox  chan []byte
	replica *statesync.Replica

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	clientID     string
	roomID       string
	roomPassword string
	pendingPass  string
	room         *protocol.RoomInfo
	rooms        []protocol.RoomInfo
	lastInbound  time.Time
	lastRTT      time.Duration
	attempts     int
	err          error
	stop         context.CancelFunc
	done         chan struct{}
	finished     bool

	notifyMu  sync.Mutex
	listeners []func(StateChange)

	handlersMu sync.RWMutex
	handlers   map[protocol.MessageType][]Handler
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger replaces slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now for liveness bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a disconnected client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("server url is required")
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		logger:   slog.Default(),
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		now:      time.Now,
		wait:     sleep,
		outbox:   make(chan []byte, cfg.SendQueueSize),
		replica:  &statesync.Replica{},
		state:    StateDisconnected,
		done:     make(chan struct{}),
		handlers: make(map[protocol.MessageType][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = newReconnectPolicy(cfg)
	return c, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OnStateChange registers a listener for state transitions.
func (c *Client) OnStateChange(fn func(StateChange)) {
	c.notifyMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.notifyMu.Unlock()
}

// Handle registers fn for inbound envelopes of type t.
func (c *Client) Handle(t protocol.MessageType, fn Handler) {
	c.handlersMu.Lock()
	c.handlers[t] = append(c.handlers[t], fn)
	c.handlersMu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Info returns a snapshot of the client.
func (c *Client) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := Info{
		ClientID:          c.clientID,
		RoomID:            c.roomID,
		State:             c.state,
		ReconnectAttempts: c.attempts,
		LastInbound:       c.lastInbound,
		LastRTT:           c.lastRTT,
	}
	if c.room != nil {
		room := *c.room
		info.Room = &room
	}
	return info
}

// Rooms returns the last room list received.
func (c *Client) Rooms() []protocol.RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.RoomInfo, len(c.rooms))
	copy(out, c.rooms)
	return out
}

// GameState returns the replicated game state, or nil before the first full
// sync of the current game.
func (c *Client) GameState() json.RawMessage {
	return c.replica.State()
}

// Done is closed when the supervisor started by Connect exits, either by
// Close or because reconnecting failed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err reports why the client stopped; nil after Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect dials the server and starts the connection supervisor. A failed
// first dial leaves the client in StateError without retrying.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return apperrors.New(apperrors.CodeState, "client already connected")
	}
	if c.finished {
		c.done = make(chan struct{})
		c.finished = false
	}
	c.err = nil
	c.mu.Unlock()

	c.setState(StateConnecting, nil)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateError, err)
		return err
	}

	lifetime, stop := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stop = stop
	done := c.done
	c.mu.Unlock()

	c.setState(StateConnected, nil)
	go c.supervise(lifetime, conn, done)
	return nil
}

// Close stops the client and suppresses reconnecting.
func (c *Client) Close() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if stop == nil {
		c.setState(StateDisconnected, nil)
		return
	}
	stop()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	<-done
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTransport, fmt.Sprintf("dial %s", c.cfg.URL), err)
	}
	conn.SetReadLimit(maxInboundBytes)

	c.mu.Lock()
	c.conn = conn
	c.lastInbound = c.now()
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) dialURL() (string, error) {
	if c.cfg.Locale == "" {
		return c.cfg.URL, nil
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("locale", c.cfg.Locale)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// supervise serves connections until the client is closed or reconnecting
// gives up.
func (c *Client) supervise(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := c.serve(ctx, conn)
		if ctx.Err() != nil {
			c.finish(StateDisconnected, nil)
			return
		}
		c.logger.Warn("lobby connection lost", "error", err)
		c.resetSession()
		c.setState(StateReconnecting, err)

		conn, err = c.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.finish(StateDisconnected, nil)
				return
			}
			c.finish(StateFailed, err)
			return
		}
		c.setState(StateConnected, nil)
		c.rejoin()
	}
}

// finish records the terminal state. Callers close done afterwards.
func (c *Client) finish(state State, err error) {
	c.mu.Lock()
	c.err = err
	c.conn = nil
	c.stop = nil
	c.finished = true
	c.mu.Unlock()
	c.setState(state, err)
}

// serve runs one connection's reader and writer until either fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(func() error {
		return c.readLoop(conn)
	})
	g.Go(func() error {
		return c.writeLoop(gctx, conn)
	})
	err := g.Wait()
	if err == nil {
		err = errStopped
	}
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return apperrors.Wrap(apperrors.CodeTransport, "read from server", err)
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("discarding malformed server frame", "error", err)
			continue
		}
		c.mu.Lock()
		c.lastInbound = c.now()
		c.mu.Unlock()
		c.receive(env)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-c.outbox:
			if err := c.write(conn, data); err != nil {
				return err
			}
		case <-heartbeat.C:
			c.mu.Lock()
			silence := c.now().Sub(c.lastInbound)
			c.mu.Unlock()
			if silence > c.cfg.HeartbeatTimeout {
				c.setState(StateError, errHeartbeatTimeout)
				return errHeartbeatTimeout
			}
			data, err := encode(protocol.TypeHeartbeat, protocol.HeartbeatPayload{ClientTime: c.now().UnixMilli()})
			if err != nil {
				return err
			}
			if err := c.write(conn, data); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WebSocketWrite))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.Wrap(apperrors.CodeTransport, "write to server", err)
	}
	return nil
}

// reconnect dials with backoff until a connection succeeds or the attempts
// run out.
func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	c.policy.reset()
	for {
		delay, ok := c.policy.next()
		if !ok {
			attempts := c.policy.attempts
			return nil, apperrors.WithMetadata(apperrors.CodeReconnectExhausted,
				fmt.Sprintf("gave up after %d reconnect attempts", attempts),
				map[string]string{"Attempts": strconv.Itoa(attempts)})
		}
		c.mu.Lock()
		c.attempts = c.policy.attempts
		c.mu.Unlock()

		c.logger.Info("reconnecting", "attempt", c.policy.attempts, "delay", delay)
		if err := c.wait(ctx, delay); err != nil {
			return nil, err
		}
		conn, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.attempts = 0
			c.mu.Unlock()
			return conn, nil
		}
		c.logger.Debug("reconnect attempt failed", "attempt", c.policy.attempts, "error", err)
	}
}

// resetSession drops per-connection state; the room id is kept for rejoin.
func (c *Client) resetSession() {
	c.mu.Lock()
	c.conn = nil
	c.clientID = ""
	c.room = nil
	c.mu.Unlock()
	c.replica.Reset()
	for {
		select {
		case <-c.outbox:
		default:
			return
		}
	}
}

// rejoin re-issues join_room for the room held before the drop. A failure
// arrives later as an ordinary ERROR.
func (c *Client) rejoin() {
	c.mu.Lock()
	roomID := c.roomID
	password := c.roomPassword
	c.pendingPass = password
	c.mu.Unlock()
	if roomID == "" {
		return
	}
	c.logger.Info("rejoining room", "room_id", roomID)
	c.enqueue(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomID:     roomID,
		PlayerName: c.cfg.PlayerName,
		Password:   password,
	})
}

func (c *Client) setState(to State, err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if from == to {
		return
	}
	c.logger.Debug("client state", "from", from, "to", to, "error", err)
	change := StateChange{From: from, To: to, Err: err}
	for _, fn := range c.listeners {
		fn(change)
	}
}
