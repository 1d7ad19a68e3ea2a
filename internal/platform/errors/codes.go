// Package errors provides structured error handling with i18n support.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeProtocol marks a malformed or unregistered envelope.
	CodeProtocol Code = "PROTOCOL_ERROR"
	// CodeCapacity marks a full server, full room, or room cap reached.
	CodeCapacity Code = "CAPACITY_EXCEEDED"
	// CodeAuthorization marks a room password mismatch.
	CodeAuthorization Code = "AUTHORIZATION_FAILED"
	// CodeState marks an operation invalid for the current room or game state.
	CodeState Code = "INVALID_STATE"
	// CodeNotFound marks a missing room, seat, or player.
	CodeNotFound Code = "NOT_FOUND"
	// CodeRateLimited marks a chat sender over the per-minute budget.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeContentRejected marks chat content refused by the filter.
	CodeContentRejected Code = "CONTENT_REJECTED"
	// CodeLivenessTimeout marks a peer closed for missing heartbeats.
	CodeLivenessTimeout Code = "LIVENESS_TIMEOUT"
	// CodeTransport marks a failed write or read on one connection.
	CodeTransport Code = "TRANSPORT_ERROR"
	// CodeReconnectExhausted marks a client that gave up reconnecting.
	CodeReconnectExhausted Code = "RECONNECT_EXHAUSTED"
	// CodeEngine marks a rejection from the rules engine collaborator.
	CodeEngine Code = "ENGINE_REJECTED"
	// CodeInternal marks an unexpected handler fault.
	CodeInternal Code = "INTERNAL"
)

// Retryable reports whether a caller may reasonably repeat the same request.
func (c Code) Retryable() bool {
	switch c {
	case CodeCapacity,
		CodeRateLimited,
		CodeTransport,
		CodeLivenessTimeout,
		CodeInternal:
		return true
	default:
		return false
	}
}
