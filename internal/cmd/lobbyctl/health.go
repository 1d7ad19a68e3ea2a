package lobbyctl

import (
	"fmt"
	"time"

	platformgrpc "github.com/louisbranch/tycoon.lobby/internal/platform/grpc"
	"github.com/spf13/cobra"
)

func newHealthCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the lobby gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := platformgrpc.DialWithHealth(cmd.Context(), opts.cfg.GRPCAddr, timeout, opts.logger)
			if err != nil {
				return fmt.Errorf("lobby at %s is not healthy: %w", opts.cfg.GRPCAddr, err)
			}
			defer conn.Close()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: SERVING\n", opts.cfg.GRPCAddr)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.cfg.GRPCAddr, "addr", opts.cfg.GRPCAddr, "lobby gRPC health address")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for SERVING")
	return cmd
}
