package discovery

import "testing"

func TestDefaultAddrs(t *testing.T) {
	if got := DefaultGRPCAddr(ServiceLobby); got != "lobby:8091" {
		t.Fatalf("DefaultGRPCAddr = %q, want %q", got, "lobby:8091")
	}
	if got := DefaultHTTPAddr(" lobby "); got != "lobby:8090" {
		t.Fatalf("DefaultHTTPAddr = %q, want %q", got, "lobby:8090")
	}
	if got := DefaultHTTPAddr(ServiceJaeger); got != "jaeger:16686" {
		t.Fatalf("DefaultHTTPAddr(jaeger) = %q", got)
	}
	if got := DefaultGRPCAddr("unknown"); got != "" {
		t.Fatalf("expected empty addr for unknown service, got %q", got)
	}
}

func TestOrDefaultAddrs(t *testing.T) {
	if got := OrDefaultGRPCAddr(" custom:9000 ", ServiceLobby); got != "custom:9000" {
		t.Fatalf("expected explicit grpc addr to win, got %q", got)
	}
	if got := OrDefaultGRPCAddr("", ServiceLobby); got != "lobby:8091" {
		t.Fatalf("expected default grpc addr, got %q", got)
	}
	if got := OrDefaultHTTPAddr("", ServiceLobby); got != "lobby:8090" {
		t.Fatalf("expected default http addr, got %q", got)
	}
}

func TestOrDefaultWebSocketURL(t *testing.T) {
	if got := OrDefaultWebSocketURL("", ServiceLobby); got != "ws://lobby:8090/ws" {
		t.Fatalf("OrDefaultWebSocketURL = %q", got)
	}
	if got := OrDefaultWebSocketURL("ws://localhost:1/ws", ServiceLobby); got != "ws://localhost:1/ws" {
		t.Fatalf("expected explicit url to win, got %q", got)
	}
	if got := OrDefaultWebSocketURL("", "unknown"); got != "" {
		t.Fatalf("expected empty url for unknown service, got %q", got)
	}
}
