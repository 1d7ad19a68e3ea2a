package lobbyctl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/client"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/game"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/spf13/cobra"
)

const playHelp = `commands:
  /create <name> [max] [password]   create and join a room
  /join <room> [password]           join a room
  /leave                            leave the current room
  /list                             list open rooms
  /info [room]                      show a room
  /ready | /unready                 toggle readiness
  /ai [difficulty]                  add an AI seat (host)
  /kick <ai id>                     remove an AI seat (host)
  /start | /end                     start or end the game (host)
  /roll | /claim | /pass            play your turn
  /act <action> [json]              send any game action
  /msg <player> <text>              private message
  /history [limit]                  recent chat
  /quit                             leave lobbyctl
anything else is sent as chat`

var (
	errQuit         = errors.New("quit")
	errNotConnected = errors.New("not connected; message dropped")
)

func newPlayCmd(opts *options) *cobra.Command {
	var linger time.Duration
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join the lobby interactively",
		Long:  "Connects to the lobby and reads commands from stdin.\n\n" + playHelp,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := &syncWriter{w: cmd.OutOrStdout()}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			printEvents(c, out)
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}
			defer c.Close()

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-c.Done():
					return c.Err()
				case line, ok := <-lines:
					if !ok {
						return wait(cmd, linger)
					}
					err := execute(c, out, line)
					if errors.Is(err, errQuit) {
						return wait(cmd, linger)
					}
					if err != nil {
						fmt.Fprintf(out, "! %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&linger, "linger", 0, "keep printing server messages this long after input ends")
	return cmd
}

func wait(cmd *cobra.Command, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
	case <-cmd.Context().Done():
	}
	return nil
}

// execute runs one input line against c.
func execute(c *client.Client, out io.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return sent(c.SendChat(line))
	}

	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch command {
	case "/quit", "/exit":
		return errQuit
	case "/create":
		if len(args) == 0 {
			return errors.New("usage: /create <name> [max] [password]")
		}
		maxPlayers := 0
		if raw := arg(1); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("max players %q: %w", raw, err)
			}
			maxPlayers = n
		}
		return sent(c.CreateRoom(args[0], maxPlayers, arg(2)))
	case "/join":
		if len(args) == 0 {
			return errors.New("usage: /join <room> [password]")
		}
		return sent(c.JoinRoom(args[0], arg(1)))
	case "/leave":
		return sent(c.LeaveRoom())
	case "/list":
		return sent(c.RequestRoomList())
	case "/info":
		return sent(c.RequestRoomInfo(arg(0)))
	case "/ready":
		return sent(c.SetReady(true))
	case "/unready":
		return sent(c.SetReady(false))
	case "/ai":
		return sent(c.AddAIPlayer(arg(0)))
	case "/kick":
		if len(args) == 0 {
			return errors.New("usage: /kick <ai id>")
		}
		return sent(c.RemoveAIPlayer(args[0]))
	case "/start":
		return sent(c.StartGame())
	case "/end":
		return sent(c.EndGame())
	case "/roll":
		return sent(c.SendPlayerAction(game.ActionRollDice, nil))
	case "/claim":
		return sent(c.SendPlayerAction(game.ActionClaim, nil))
	case "/pass":
		return sent(c.SendPlayerAction(game.ActionEndTurn, nil))
	case "/act":
		if len(args) == 0 {
			return errors.New("usage: /act <action> [json]")
		}
		var data json.RawMessage
		if raw := strings.TrimSpace(strings.TrimPrefix(line, command+" "+args[0])); raw != "" {
			if !json.Valid([]byte(raw)) {
				return fmt.Errorf("action data is not JSON: %s", raw)
			}
			data = json.RawMessage(raw)
		}
		return sent(c.SendPlayerAction(args[0], data))
	case "/msg":
		if len(args) < 2 {
			return errors.New("usage: /msg <player> <text>")
		}
		return sent(c.SendPrivateChat(args[0], strings.Join(args[1:], " ")))
	case "/history":
		limit, _ := strconv.Atoi(arg(0))
		return sent(c.RequestChatHistory(protocol.ChatHistoryRequest{RoomID: c.Info().RoomID, Limit: limit}))
	case "/help":
		_, err := fmt.Fprintln(out, playHelp)
		return err
	default:
		return fmt.Errorf("unknown command %s (try /help)", command)
	}
}

func sent(ok bool) error {
	if !ok {
		return errNotConnected
	}
	return nil
}

// printEvents renders inbound server messages as terminal lines.
func printEvents(c *client.Client, out io.Writer) {
	c.OnStateChange(func(change client.StateChange) {
		if change.Err != nil {
			fmt.Fprintf(out, "~ %s (%v)\n", change.To, change.Err)
			return
		}
		fmt.Fprintf(out, "~ %s\n", change.To)
	})
	c.Handle(protocol.TypeSuccess, func(env protocol.Envelope) {
		var payload protocol.SuccessPayload
		if env.DecodeData(&payload) != nil {
			return
		}
		switch {
		case payload.Operation == protocol.TypeConnect:
		case payload.RoomID != "":
			fmt.Fprintf(out, "ok %s %s\n", payload.Operation, payload.RoomID)
		default:
			fmt.Fprintf(out, "ok %s\n", payload.Operation)
		}
	})
	c.Handle(protocol.TypeError, func(env protocol.Envelope) {
		var payload protocol.ErrorPayload
		if env.DecodeData(&payload) == nil {
			fmt.Fprintf(out, "! %s: %s\n", payload.Code, payload.Message)
		}
	})
	for _, t := range []protocol.MessageType{protocol.TypeNotification, protocol.TypeWarning, protocol.TypeWelcome} {
		c.Handle(t, func(env protocol.Envelope) {
			var payload protocol.NotificationPayload
			if env.DecodeData(&payload) == nil {
				fmt.Fprintf(out, "* %s\n", payload.Message)
			}
		})
	}
	c.Handle(protocol.TypeChatMessage, func(env protocol.Envelope) {
		var msg protocol.ChatMessage
		if env.DecodeData(&msg) != nil {
			return
		}
		switch msg.MessageType {
		case protocol.ChatPrivate:
			fmt.Fprintf(out, "[pm] %s: %s\n", msg.SenderName, msg.Content)
		case protocol.ChatSystem:
			fmt.Fprintf(out, "-- %s\n", msg.Content)
		default:
			fmt.Fprintf(out, "%s: %s\n", msg.SenderName, msg.Content)
		}
	})
	c.Handle(protocol.TypeChatHistory, func(env protocol.Envelope) {
		var history protocol.ChatHistoryPayload
		if env.DecodeData(&history) != nil {
			return
		}
		for _, msg := range history.Messages {
			fmt.Fprintf(out, "(history) %s: %s\n", msg.SenderName, msg.Content)
		}
	})
	c.Handle(protocol.TypeRoomInfo, func(env protocol.Envelope) {
		var info protocol.RoomInfo
		if env.DecodeData(&info) != nil {
			return
		}
		names := make([]string, 0, len(info.Players)+len(info.AIPlayers))
		for _, p := range info.Players {
			mark := ""
			if p.IsHost {
				mark = "*"
			} else if p.IsReady {
				mark = "+"
			}
			names = append(names, p.Name+mark)
		}
		for _, ai := range info.AIPlayers {
			names = append(names, ai.Name)
		}
		fmt.Fprintf(out, "room %s %q %d/%d %s: %s\n", info.RoomID, info.Name, info.CurrentPlayers, info.MaxPlayers, info.State, strings.Join(names, ", "))
	})
	c.Handle(protocol.TypeRoomList, func(env protocol.Envelope) {
		var list protocol.RoomListPayload
		if env.DecodeData(&list) != nil {
			return
		}
		if len(list.Rooms) == 0 {
			fmt.Fprintln(out, "no open rooms")
		}
		for _, room := range list.Rooms {
			fmt.Fprintf(out, "  %s %q %d/%d %s\n", room.RoomID, room.Name, room.CurrentPlayers, room.MaxPlayers, room.State)
		}
	})
	for _, t := range []protocol.MessageType{protocol.TypeGameStart, protocol.TypeGameEnd, protocol.TypeDiceResult, protocol.TypeTurnChange} {
		c.Handle(t, func(env protocol.Envelope) {
			fmt.Fprintf(out, "%s game %s %s\n", env.Time().Format(time.TimeOnly), env.Type, env.Data)
		})
	}
}
