package events

import (
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// CoerceUserID normalizes the many shapes a user identifier arrives in on the
// wire: a raw string, a JSON number, or an object wrapping the identifier
// under a conventional key. Returns "" when nothing usable is found. All
// identifier comparisons in the sync core happen on the output of this
// function, exactly once, at the channel boundary.
func CoerceUserID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case json.Number:
		return id.String()
	case map[string]any:
		for _, key := range []string{"user_id", "userId", "id", "_id"} {
			if inner, ok := id[key]; ok {
				if s := CoerceUserID(inner); s != "" {
					return s
				}
			}
		}
		return ""
	default:
		return ""
	}
}

// DecodeStatusChanged decodes a user-status-changed payload, tolerating a
// user identifier sent as a string, number, or object.
func DecodeStatusChanged(raw json.RawMessage) (UserStatusChangedPayload, error) {
	var loose struct {
		UserID any    `json:"user_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return UserStatusChangedPayload{}, err
	}
	return UserStatusChangedPayload{
		UserID: CoerceUserID(loose.UserID),
		Status: loose.Status,
	}, nil
}

// DecodeOnlineUsers decodes an online-users-list payload, tolerating snapshot
// entries sent as strings, numbers, or objects.
func DecodeOnlineUsers(raw json.RawMessage) (OnlineUsersListPayload, error) {
	var loose struct {
		OnlineUsers []any `json:"online_users"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return OnlineUsersListPayload{}, err
	}
	out := OnlineUsersListPayload{OnlineUsers: make([]string, 0, len(loose.OnlineUsers))}
	for _, entry := range loose.OnlineUsers {
		if id := CoerceUserID(entry); id != "" {
			out.OnlineUsers = append(out.OnlineUsers, id)
		}
	}
	return out, nil
}
