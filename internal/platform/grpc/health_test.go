package grpc

import (
	"context"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func startHealthServer(t *testing.T, serving bool) (*HealthServer, func()) {
	t.Helper()

	server, err := NewHealthServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new health server: %v", err)
	}
	server.SetServing(serving)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("health server did not stop")
		}
	}
	return server, stop
}

func dialHealthServer(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	return conn
}

func TestWaitForHealthServing(t *testing.T) {
	server, stop := startHealthServer(t, true)
	defer stop()

	conn := dialHealthServer(t, server.Addr())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait for health: %v", err)
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	server, stop := startHealthServer(t, false)
	defer stop()

	conn := dialHealthServer(t, server.Addr())
	defer conn.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		server.SetServing(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}
}

func TestWaitForHealthRespectsContext(t *testing.T) {
	server, stop := startHealthServer(t, false)
	defer stop()

	conn := dialHealthServer(t, server.Addr())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := WaitForHealth(ctx, conn, "", nil); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestHealthServerNilSafe(t *testing.T) {
	var server *HealthServer
	if server.Addr() != "" {
		t.Fatal("expected empty addr for nil server")
	}
	server.SetServing(true)
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}
