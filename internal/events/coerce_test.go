package events

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceUserID(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"string", "u1", "u1"},
		{"integral float", float64(42), "42"},
		{"fractional float", 42.5, "42.5"},
		{"int", 7, "7"},
		{"int64", int64(9), "9"},
		{"json number", json.Number("123"), "123"},
		{"object user_id", map[string]any{"user_id": "u1"}, "u1"},
		{"object userId", map[string]any{"userId": float64(5)}, "5"},
		{"object id", map[string]any{"id": "u2"}, "u2"},
		{"object _id", map[string]any{"_id": "u3"}, "u3"},
		{"nested object", map[string]any{"user_id": map[string]any{"id": "u4"}}, "u4"},
		{"nil", nil, ""},
		{"bool", true, ""},
		{"object without id", map[string]any{"name": "bea"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CoerceUserID(tc.in))
		})
	}
}

func TestDecodeStatusChangedToleratesShapes(t *testing.T) {
	payload, err := DecodeStatusChanged([]byte(`{"user_id": 42, "status": "online"}`))
	require.NoError(t, err)
	assert.Equal(t, UserStatusChangedPayload{UserID: "42", Status: "online"}, payload)

	payload, err = DecodeStatusChanged([]byte(`{"user_id": {"id": "u7"}, "status": "offline"}`))
	require.NoError(t, err)
	assert.Equal(t, UserStatusChangedPayload{UserID: "u7", Status: "offline"}, payload)
}

func TestDecodeOnlineUsersDropsUnusableEntries(t *testing.T) {
	payload, err := DecodeOnlineUsers([]byte(`{"online_users": ["u1", 2, {"user_id": "u3"}, null]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "2", "u3"}, payload.OnlineUsers)
}

func TestNewEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(UserTyping, UserTypingPayload{ConversationID: "c1", UserID: "u1", IsTyping: true})
	require.NoError(t, err)
	assert.Equal(t, UserTyping, env.Kind)

	var decoded UserTypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, "c1", decoded.ConversationID)
	assert.True(t, decoded.IsTyping)
}
