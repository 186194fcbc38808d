package channel

import (
	"context"

	"github.com/gorilla/websocket"
)

// TextMessage mirrors the websocket text frame type so fakes in tests do not
// need the gorilla package.
const TextMessage = websocket.TextMessage

// Conn is the minimal transport surface the manager needs. Satisfied by
// *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes one connection attempt.
type Dialer func(ctx context.Context) (Conn, error)

// GorillaDialer dials url with the default gorilla websocket dialer.
func GorillaDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
