package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
)

var emptyObject = json.RawMessage(`{}`)

// Envelope wraps every message crossing the client/server boundary.
type Envelope struct {
	Type      MessageType     `json:"message_type"`
	Data      json.RawMessage `json:"data"`
	SenderID  string          `json:"sender_id,omitempty"`
	RoomID    string          `json:"room_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// New builds an envelope stamped with the current time. A nil payload
// produces an empty data object.
func New(t MessageType, payload any) (Envelope, error) {
	data := emptyObject
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		data = encoded
	}
	return Envelope{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// WithRoom returns a copy of e addressed to roomID.
func (e Envelope) WithRoom(roomID string) Envelope {
	e.RoomID = roomID
	return e
}

// WithSender returns a copy of e attributed to senderID.
func (e Envelope) WithSender(senderID string) Envelope {
	e.SenderID = senderID
	return e
}

// Time converts the millisecond timestamp.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Encode serializes e for one text frame.
func (e Envelope) Encode() ([]byte, error) {
	if len(e.Data) == 0 {
		e.Data = emptyObject
	}
	return json.Marshal(e)
}

// DecodeData unmarshals the payload into target. Failures are protocol errors.
func (e Envelope) DecodeData(target any) error {
	data := e.Data
	if len(data) == 0 {
		data = emptyObject
	}
	if err := json.Unmarshal(data, target); err != nil {
		return apperrors.WithMetadata(apperrors.CodeProtocol, fmt.Sprintf("invalid %s payload: %v", e.Type, err), map[string]string{
			"Reason": fmt.Sprintf("invalid %s payload", e.Type),
		})
	}
	return nil
}

// Decode parses and validates one frame. The result is well-formed: its type
// is registered and its data is a JSON object. A missing timestamp is set to
// the decode time.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, protocolError("message is not a JSON object", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = emptyObject
	}
	env.Data = data
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	return env, nil
}

// Validate checks the tag and the payload shape.
func (e Envelope) Validate() error {
	if e.Type == "" {
		return protocolError("message_type is required", nil)
	}
	if !e.Type.Known() {
		return apperrors.WithMetadata(apperrors.CodeProtocol, fmt.Sprintf("unknown message_type %q", e.Type), map[string]string{
			"Reason":      "unknown message_type",
			"MessageType": string(e.Type),
		})
	}
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '{' {
		return protocolError("data must be a JSON object", nil)
	}
	return nil
}

func protocolError(reason string, cause error) error {
	err := apperrors.Wrap(apperrors.CodeProtocol, reason, cause)
	err.Metadata = map[string]string{"Reason": reason}
	return err
}
