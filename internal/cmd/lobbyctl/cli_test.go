package lobbyctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/tycoon.lobby/internal/platform/grpc"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/app"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/client"
	"github.com/louisbranch/tycoon.lobby/internal/services/lobby/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootDefaultsFollowServiceConventions(t *testing.T) {
	t.Setenv("TYCOON_LOBBY_URL", "")
	t.Setenv("TYCOON_LOBBY_GRPC_ADDR", "")
	cmd := newRootCmd()

	url, err := cmd.PersistentFlags().GetString("url")
	require.NoError(t, err)
	assert.Equal(t, "ws://lobby:8090/ws", url)

	health, _, err := cmd.Find([]string{"health"})
	require.NoError(t, err)
	addr, err := health.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "lobby:8091", addr)
}

func TestRootDefaultsReadEnvironment(t *testing.T) {
	t.Setenv("TYCOON_LOBBY_URL", "ws://example.test:9000/ws")
	cmd := newRootCmd()

	url, err := cmd.PersistentFlags().GetString("url")
	require.NoError(t, err)
	assert.Equal(t, "ws://example.test:9000/ws", url)
}

func startLobby(t *testing.T) string {
	t.Helper()
	srv, err := app.NewServer(app.Config{HTTPAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func startHealth(t *testing.T, serving bool) string {
	t.Helper()
	server, err := platformgrpc.NewHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	server.SetServing(serving)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return server.Addr()
}

func TestHealthReportsServing(t *testing.T) {
	addr := startHealth(t, true)

	stdout, _, err := executeCLI(t, "", "health", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SERVING")
}

func TestHealthFailsWhenNotServing(t *testing.T) {
	addr := startHealth(t, false)

	_, _, err := executeCLI(t, "", "health", "--addr", addr, "--timeout", "200ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not healthy")
}

func TestRoomsListsOpenRooms(t *testing.T) {
	url := startLobby(t)
	host, err := client.New(client.Config{URL: url, PlayerName: "host"})
	require.NoError(t, err)
	require.NoError(t, host.Connect(context.Background()))
	t.Cleanup(host.Close)
	require.Eventually(t, func() bool { return host.Info().ClientID != "" }, 2*time.Second, 10*time.Millisecond)
	require.True(t, host.CreateRoom("den", 3, "pw"))
	require.Eventually(t, func() bool { return host.Info().RoomID != "" }, 2*time.Second, 10*time.Millisecond)

	stdout, _, err := executeCLI(t, "", "rooms", "--url", url, "--json")
	require.NoError(t, err)
	var rooms []protocol.RoomInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "den", rooms[0].Name)
	assert.True(t, rooms[0].HasPassword)

	stdout, _, err = executeCLI(t, "", "rooms", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "1/3")
}

func TestRoomsWithoutServerFails(t *testing.T) {
	_, _, err := executeCLI(t, "", "rooms", "--url", "ws://127.0.0.1:1/ws", "--timeout", "200ms")
	require.Error(t, err)
}

func TestPlayRunsScriptedSession(t *testing.T) {
	url := startLobby(t)
	script := strings.Join([]string{
		"/create den 3",
		"hello table",
		"/bogus",
		"/help",
		"/quit",
	}, "\n")

	stdout, _, err := executeCLI(t, script, "play", "--url", url, "--name", "Ada", "--linger", "300ms")
	require.NoError(t, err)
	assert.Contains(t, stdout, "~ connected")
	assert.Contains(t, stdout, "ok create_room")
	assert.Contains(t, stdout, "Ada: hello table")
	assert.Contains(t, stdout, "unknown command /bogus")
	assert.Contains(t, stdout, "commands:")
}

func TestExecuteValidatesInput(t *testing.T) {
	c, err := client.New(client.Config{URL: "ws://127.0.0.1:1/ws"})
	require.NoError(t, err)

	tests := []struct {
		line string
		want string
	}{
		{line: "hello", want: errNotConnected.Error()},
		{line: "/create", want: "usage: /create"},
		{line: "/create den many", want: "max players"},
		{line: "/join", want: "usage: /join"},
		{line: "/act roll {oops", want: "not JSON"},
		{line: "/msg bob", want: "usage: /msg"},
		{line: "/teleport", want: "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := execute(c, io.Discard, tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, execute(c, io.Discard, "   "))
	assert.ErrorIs(t, execute(c, io.Discard, "/quit"), errQuit)
}
