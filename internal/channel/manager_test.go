package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/events"
)

type fakeConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written []events.Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writtenKinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]string, len(c.written))
	for i, env := range c.written {
		kinds[i] = env.Kind
	}
	return kinds
}

func (c *fakeConn) push(t *testing.T, kind string, payload any) {
	t.Helper()
	env, err := events.NewEnvelope(kind, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	c.inbound <- data
}

// connQueue hands out one fake connection per dial.
type connQueue struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (q *connQueue) dial(ctx context.Context) (Conn, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.conns) == 0 {
		return nil, errors.New("no connection available")
	}
	conn := q.conns[0]
	q.conns = q.conns[1:]
	q.dials++
	return conn, nil
}

func TestConnectRegistersIdentityFirst(t *testing.T) {
	conn := newFakeConn()
	queue := &connQueue{conns: []*fakeConn{conn}}
	m := NewManager(queue.dial, zerolog.Nop())
	defer m.Disconnect()

	require.NoError(t, m.Connect(context.Background(), "me"))

	require.Eventually(t, func() bool {
		return len(conn.writtenKinds()) > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, events.UserOnline, conn.writtenKinds()[0])
	assert.Equal(t, StateConnected, m.State())
}

func TestInboundEventsReachHandlersInOrder(t *testing.T) {
	conn := newFakeConn()
	queue := &connQueue{conns: []*fakeConn{conn}}
	m := NewManager(queue.dial, zerolog.Nop())
	defer m.Disconnect()

	var mu sync.Mutex
	var got []string
	m.On(events.NewMessage, func(raw json.RawMessage) {
		var payload struct {
			ConversationID string `json:"conversation_id"`
		}
		require.NoError(t, json.Unmarshal(raw, &payload))
		mu.Lock()
		got = append(got, payload.ConversationID)
		mu.Unlock()
	})

	require.NoError(t, m.Connect(context.Background(), "me"))
	conn.push(t, events.NewMessage, map[string]string{"conversation_id": "c1"})
	conn.push(t, events.NewMessage, map[string]string{"conversation_id": "c2"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"c1", "c2"}, got)
	mu.Unlock()
}

func TestHandlersSurviveReconnect(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	queue := &connQueue{conns: []*fakeConn{conn1, conn2}}
	m := NewManager(queue.dial, zerolog.Nop())
	defer m.Disconnect()

	received := make(chan struct{}, 2)
	m.On(events.NewMessage, func(json.RawMessage) { received <- struct{}{} })

	reconnects := make(chan struct{}, 1)
	m.OnReconnected(func() { reconnects <- struct{}{} })
	disconnects := make(chan struct{}, 2)
	m.OnDisconnected(func() { disconnects <- struct{}{} })

	require.NoError(t, m.Connect(context.Background(), "me"))
	conn1.push(t, events.NewMessage, map[string]string{"conversation_id": "c1"})
	<-received

	// Server drops the connection.
	conn1.Close()

	select {
	case <-reconnects:
	case <-time.After(time.Second):
		t.Fatal("reconnected callback never fired")
	}
	select {
	case <-disconnects:
	case <-time.After(time.Second):
		t.Fatal("disconnected callback never fired")
	}

	// Identity is re-registered on the new connection without any re-subscribe
	// call from the consumer.
	require.Eventually(t, func() bool {
		kinds := conn2.writtenKinds()
		return len(kinds) > 0 && kinds[0] == events.UserOnline
	}, time.Second, 5*time.Millisecond)

	conn2.push(t, events.NewMessage, map[string]string{"conversation_id": "c2"})
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handler did not survive the reconnect")
	}
}

func TestEmitWhileDisconnected(t *testing.T) {
	m := NewManager((&connQueue{}).dial, zerolog.Nop())
	err := m.Emit(events.TypingStart, events.UserTypingPayload{ConversationID: "c1", UserID: "me"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	conn := newFakeConn()
	queue := &connQueue{conns: []*fakeConn{conn}}
	m := NewManager(queue.dial, zerolog.Nop())
	defer m.Disconnect()

	m.On(events.NewMessage, func(json.RawMessage) { panic("boom") })
	survived := make(chan struct{}, 1)
	m.On(events.UserTyping, func(json.RawMessage) { survived <- struct{}{} })

	require.NoError(t, m.Connect(context.Background(), "me"))
	conn.push(t, events.NewMessage, map[string]string{"conversation_id": "c1"})
	conn.push(t, events.UserTyping, map[string]string{"conversation_id": "c1"})

	select {
	case <-survived:
	case <-time.After(time.Second):
		t.Fatal("dispatch stopped after handler panic")
	}
}

func TestDisconnectStopsTheLoop(t *testing.T) {
	conn := newFakeConn()
	queue := &connQueue{conns: []*fakeConn{conn}}
	m := NewManager(queue.dial, zerolog.Nop())

	require.NoError(t, m.Connect(context.Background(), "me"))
	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	// A second connect starts a fresh loop.
	conn2 := newFakeConn()
	queue.mu.Lock()
	queue.conns = append(queue.conns, conn2)
	queue.mu.Unlock()
	require.NoError(t, m.Connect(context.Background(), "me"))
	defer m.Disconnect()
	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, time.Second, 5*time.Millisecond)
}
