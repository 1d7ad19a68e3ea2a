package client

// State is the connection state of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateError marks a detected fault before recovery starts.
	StateError State = "error"
	// StateFailed is terminal: reconnect attempts ran out.
	StateFailed State = "failed"
)

// StateChange is delivered to state listeners.
type StateChange struct {
	From State
	To   State
	Err  error
}
