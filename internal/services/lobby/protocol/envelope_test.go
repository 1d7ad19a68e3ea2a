package protocol

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/louisbranch/tycoon.lobby/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	env, err := New(TypeJoinRoom, JoinRoomPayload{RoomID: "r1", PlayerName: "Ann"})
	require.NoError(t, err)
	env = env.WithSender("c1").WithRoom("r1")

	raw, err := env.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, env, got)

	var payload JoinRoomPayload
	require.NoError(t, got.DecodeData(&payload))
	assert.Equal(t, "Ann", payload.PlayerName)
}

func TestEnvelopeTimeUsesMilliseconds(t *testing.T) {
	env := Envelope{Type: TypeHeartbeat, Timestamp: 1767225600123}
	got := env.Time()
	assert.Equal(t, int64(1767225600123), got.UnixMilli())
	assert.Equal(t, 123*time.Millisecond, time.Duration(got.Nanosecond()))
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `hello`},
		{name: "array", raw: `[1,2]`},
		{name: "missing type", raw: `{"data":{}}`},
		{name: "empty type", raw: `{"message_type":"","data":{}}`},
		{name: "unknown type", raw: `{"message_type":"teleport","data":{}}`},
		{name: "scalar data", raw: `{"message_type":"heartbeat","data":3}`},
		{name: "array data", raw: `{"message_type":"heartbeat","data":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeProtocol, apperrors.CodeOf(err))
			assert.NotEmpty(t, apperrors.MetadataOf(err)["Reason"])
		})
	}
}

func TestDecodeDefaultsDataAndTimestamp(t *testing.T) {
	got, err := Decode([]byte(`{"message_type":"room_list"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.Data))
	assert.NotZero(t, got.Timestamp)

	got, err = Decode([]byte(`{"message_type":"room_list","data":null,"timestamp":42}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got.Data))
	assert.Equal(t, int64(42), got.Timestamp)
}

func TestDecodeDataReportsProtocolError(t *testing.T) {
	env, err := Decode([]byte(`{"message_type":"player_ready","data":{"ready":"yes"}}`))
	require.NoError(t, err)

	var payload PlayerReadyPayload
	err = env.DecodeData(&payload)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeProtocol, apperrors.CodeOf(err))
}

func TestNewWithNilPayloadHasEmptyObject(t *testing.T) {
	env, err := New(TypeHeartbeat, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(env.Data))
	assert.NotZero(t, env.Timestamp)
}

func TestEncodeUsesWireFieldNames(t *testing.T) {
	env := Envelope{Type: TypeHeartbeat, Timestamp: 7}
	raw, err := env.Encode()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "message_type")
	assert.Contains(t, fields, "data")
	assert.Contains(t, fields, "timestamp")
	assert.NotContains(t, fields, "sender_id")
}

func TestKnownTypes(t *testing.T) {
	for _, tag := range KnownTypes() {
		assert.True(t, tag.Known(), tag)
	}
	assert.False(t, MessageType("nope").Known())
}
