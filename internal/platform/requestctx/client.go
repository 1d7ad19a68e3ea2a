// Package requestctx carries per-message identity through handler contexts.
package requestctx

import "context"

type clientIDContextKey struct{}

type roomIDContextKey struct{}

// WithClientID stores the sending connection's id in context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientIDContextKey{}, clientID)
}

// ClientIDFromContext returns the connection id stored in context.
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(clientIDContextKey{}).(string)
	return value
}

// WithRoomID stores the room a message concerns.
func WithRoomID(ctx context.Context, roomID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, roomIDContextKey{}, roomID)
}

// RoomIDFromContext returns the room id stored in context.
func RoomIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(roomIDContextKey{}).(string)
	return value
}

// LogAttrs returns the identity in ctx as slog key/value pairs.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if clientID := ClientIDFromContext(ctx); clientID != "" {
		attrs = append(attrs, "client_id", clientID)
	}
	if roomID := RoomIDFromContext(ctx); roomID != "" {
		attrs = append(attrs, "room_id", roomID)
	}
	return attrs
}
