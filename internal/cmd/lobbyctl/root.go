// Package lobbyctl is the command tree of the lobby operator and player CLI.
package lobbyctl

import (
	"context"
	"io"
	"log/slog"
	"sync"

	entrypoint "github.com/louisbranch/tycoon.lobby/internal/platform/cmd"
	"github.com/louisbranch/tycoon.lobby/internal/platform/config"
	"github.com/louisbranch/tycoon.lobby/internal/platform/discovery"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/client"
	"github.com/spf13/cobra"
)

// Config holds the environment defaults of lobbyctl flags.
type Config struct {
	URL      string `env:"TYCOON_LOBBY_URL"`
	GRPCAddr string `env:"TYCOON_LOBBY_GRPC_ADDR"`
	Name     string `env:"TYCOON_LOBBY_PLAYER"`
	Locale   string `env:"TYCOON_LOBBY_LOCALE"`
	LogLevel string `env:"TYCOON_LOBBY_LOG_LEVEL" envDefault:"warn"`
}

type options struct {
	cfg    Config
	logger *slog.Logger
}

// Execute runs lobbyctl with os.Args.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           entrypoint.ServiceLobbyCtl,
		Short:         "Inspect and play on a lobby server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = entrypoint.SetupLogger(cmd.ErrOrStderr(), opts.cfg.LogLevel, entrypoint.ServiceLobbyCtl)
		},
	}

	if err := config.LoadDotEnv(); err == nil {
		_ = config.ParseEnv(&opts.cfg)
	}
	opts.cfg.URL = discovery.OrDefaultWebSocketURL(opts.cfg.URL, discovery.ServiceLobby)
	opts.cfg.GRPCAddr = discovery.OrDefaultGRPCAddr(opts.cfg.GRPCAddr, discovery.ServiceLobby)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfg.URL, "url", opts.cfg.URL, "lobby websocket URL")
	flags.StringVar(&opts.cfg.Name, "name", opts.cfg.Name, "player name")
	flags.StringVar(&opts.cfg.Locale, "locale", opts.cfg.Locale, "language for server errors (en-US, zh-CN)")
	flags.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newHealthCmd(opts),
		newRoomsCmd(opts),
		newPlayCmd(opts),
	)
	return rootCmd
}

func (o *options) newClient() (*client.Client, error) {
	return client.New(client.Config{
		URL:        o.cfg.URL,
		PlayerName: o.cfg.Name,
		Locale:     o.cfg.Locale,
	}, client.WithLogger(o.logger))
}

// syncWriter serializes output written from client callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
