// Package app hosts the lobby session server: websocket transport, message
// dispatch, liveness sweeps, room fan-out and per-room state sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	platformgrpc "github.com/louisbranch/tycoon.lobby/internal/platform/grpc"
	"github.com/louisbranch/tycoon.lobby/internal/platform/otel"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/chat"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/game"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/rooms"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Server hosts the lobby HTTP/WebSocket process.
//
// The room registry is the single source of truth for membership; a
// connection's room is always looked up there.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
	engines game.Factory
	started time.Time

	registry *rooms.Registry
	chat     *chat.Service

	httpServer *http.Server
	health     *platformgrpc.HealthServer

	mu        sync.Mutex
	conns     map[string]*connection
	reserved  int
	accepting bool
	handlers  sync.WaitGroup

	sessionsMu sync.Mutex
	sessions   map[string]*gameSession

	lifetime     context.Context
	stopLifetime context.CancelFunc
	shutdownOnce sync.Once
	shutdownErr  error

	counters counters
}

type counters struct {
	accepted   atomic.Uint64
	rejected   atomic.Uint64
	received   atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	bytesSent  atomic.Uint64
	evictions  atomic.Uint64
	panics     atomic.Uint64
}

// Option customizes a Server.
type Option func(*Server)

// WithEngineFactory sets the rules engine used for rooms entering PLAYING.
func WithEngineFactory(factory game.Factory) Option {
	return func(s *Server) {
		if factory != nil {
			s.engines = factory
		}
	}
}

// WithClock replaces time.Now for liveness, chat and sync bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger replaces slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds a configured server. It does not listen until
// ListenAndServe; Handler can be mounted directly for tests.
func NewServer(config Config, opts ...Option) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	config.HTTPAddr = httpAddr
	config = config.withDefaults()

	lifetime, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:          config,
		logger:       slog.Default(),
		now:          time.Now,
		tracer:       otel.Tracer("lobby/app"),
		engines:      game.NewTableFactory(game.TableOptions{}),
		conns:        make(map[string]*connection),
		accepting:    true,
		sessions:     make(map[string]*gameSession),
		lifetime:     lifetime,
		stopLifetime: stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	s.registry = rooms.NewRegistry(rooms.WithClock(s.now), rooms.WithMaxRooms(config.MaxRooms))
	s.chat = chat.NewService(chat.Config{
		MaxLength:            config.ChatMaxLength,
		MaxMessagesPerMinute: config.ChatMaxMessagesPerMinute,
		HistorySize:          config.ChatHistorySize,
		RoomHistorySize:      config.ChatRoomHistorySize,
		BannedWords:          config.ChatBannedWords,
	}, s.now)
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s, nil
}

// Run creates and serves a lobby server until the context ends.
func Run(ctx context.Context, config Config, opts ...Option) error {
	server, err := NewServer(config, opts...)
	if err != nil {
		return fmt.Errorf("init lobby server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve lobby: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, the optional gRPC health endpoint and
// the periodic sweeps until ctx ends or one of them fails, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("lobby server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	listener, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	if s.cfg.GRPCAddr != "" {
		health, err := platformgrpc.NewHealthServer(s.cfg.GRPCAddr)
		if err != nil {
			_ = listener.Close()
			return err
		}
		s.health = health
	}

	g, gctx := errgroup.WithContext(ctx)
	s.logger.Info("lobby server listening", "addr", listener.Addr().String(), "grpc_addr", s.cfg.GRPCAddr)
	g.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	if s.health != nil {
		s.health.SetServing(true)
		g.Go(func() error {
			return s.health.Serve(gctx)
		})
	}
	g.Go(func() error {
		s.runSweeps(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

// Close releases server resources. It is safe to call more than once and
// after ListenAndServe returned.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if err := s.shutdown(); err != nil {
		s.logger.Warn("close lobby server", "error", err)
	}
}

// shutdown stops accepting, cancels background work, tells every peer the
// server is going away, closes all sockets and waits for their handlers.
func (s *Server) shutdown() error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("lobby server shutting down")
		s.mu.Lock()
		s.accepting = false
		s.mu.Unlock()
		if s.health != nil {
			s.health.SetServing(false)
		}
		s.stopLifetime()
		s.stopAllSessions()

		notice, err := protocol.New(protocol.TypeDisconnect, protocol.DisconnectPayload{Reason: "server shutting down"})
		if err == nil {
			for _, c := range s.connections() {
				s.send(c, notice)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdownErr = fmt.Errorf("shutdown http server: %w", err)
		}
		for _, c := range s.connections() {
			c.peer.close()
		}

		drained := make(chan struct{})
		go func() {
			s.handlers.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			s.logger.Warn("connection handlers did not drain before shutdown timeout")
		}
	})
	return s.shutdownErr
}

// Registry exposes the room registry, mainly for tests and stats.
func (s *Server) Registry() *rooms.Registry {
	return s.registry
}
