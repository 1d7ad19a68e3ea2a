package lobbyctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/spf13/cobra"
)

func newRoomsCmd(opts *options) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List open rooms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			listed := make(chan []protocol.RoomInfo, 1)
			c.Handle(protocol.TypeRoomList, func(env protocol.Envelope) {
				var payload protocol.RoomListPayload
				if err := env.DecodeData(&payload); err == nil {
					select {
					case listed <- payload.Rooms:
					default:
					}
				}
			})
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}
			defer c.Close()
			if !c.RequestRoomList() {
				return errors.New("room list request was not sent")
			}

			var rooms []protocol.RoomInfo
			select {
			case rooms = <-listed:
			case <-time.After(timeout):
				return fmt.Errorf("no room list within %s", timeout)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
			return writeRooms(cmd, rooms, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the server")
	return cmd
}

func writeRooms(cmd *cobra.Command, rooms []protocol.RoomInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rooms)
	}
	if len(rooms) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no open rooms")
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSEATS\tSTATE\tLOCKED\tCREATED")
	for _, room := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%t\t%s\n",
			room.RoomID, room.Name, room.CurrentPlayers, room.MaxPlayers, room.State, room.HasPassword,
			humanize.Time(time.UnixMilli(room.CreateTime)))
	}
	return tw.Flush()
}
