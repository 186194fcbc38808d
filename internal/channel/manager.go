package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"chat-sync/internal/events"
	"chat-sync/internal/observability"
)

// Transport states.
const (
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

const (
	// DefaultMaxInterval caps the gap between reconnect attempts.
	DefaultMaxInterval = 5 * time.Second
	// DefaultMaxAttempts is the reconnect attempt ceiling per outage.
	DefaultMaxAttempts = 120
)

// ErrNotConnected is returned by Emit while the transport is down. Callers
// treat it as a skipped pulse, not a failure: outbound state converges once
// the connection is back.
var ErrNotConnected = errors.New("channel not connected")

// Handler consumes one inbound event's raw payload.
type Handler func(payload json.RawMessage)

// Manager owns the single persistent connection to the message server:
// connect, reconnect with bounded exponential backoff, identity registration
// on every (re)connect, and event dispatch. Handlers registered once remain
// registered across reconnects. Events are dispatched one at a time in
// arrival order by the read loop; a panicking handler is logged and never
// stops the loop.
type Manager struct {
	dial        Dialer
	log         zerolog.Logger
	maxInterval time.Duration
	maxAttempts uint64

	mu           sync.RWMutex
	handlers     map[string][]Handler
	reconnected  []func()
	disconnected []func()
	conn         Conn
	state        string
	identity     string

	wmu    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option adjusts manager construction.
type Option func(*Manager)

// WithBackoff overrides the reconnect interval cap and attempt ceiling.
func WithBackoff(maxInterval time.Duration, maxAttempts uint64) Option {
	return func(m *Manager) {
		m.maxInterval = maxInterval
		m.maxAttempts = maxAttempts
	}
}

// NewManager creates a manager that dials through dial.
func NewManager(dial Dialer, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		dial:        dial,
		log:         log,
		maxInterval: DefaultMaxInterval,
		maxAttempts: DefaultMaxAttempts,
		handlers:    make(map[string][]Handler),
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// On registers a handler for an inbound event kind. Registration survives
// reconnects.
func (m *Manager) On(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], h)
}

// OnReconnected registers a callback fired after every successful reconnect
// (not the initial connect). Room subscriptions do not survive the
// transport, so consumers re-join here.
func (m *Manager) OnReconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnected = append(m.reconnected, fn)
}

// OnDisconnected registers a callback fired when the transport drops.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, fn)
}

// Connect starts the connection loop for the given identity and returns once
// the loop is running. Connection errors are retried with backoff and never
// surfaced to callers; they become fatal only when the attempt ceiling is
// exhausted, at which point the manager settles in the disconnected state.
func (m *Manager) Connect(ctx context.Context, identity string) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return errors.New("channel already connected")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.identity = identity
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Disconnect stops the connection loop, cancelling any in-flight backoff
// wait, and blocks until the loop exits.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Emit sends an outbound event on the current connection.
func (m *Manager) Emit(kind string, payload any) error {
	env, err := events.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.wmu.Lock()
	defer m.wmu.Unlock()
	return conn.WriteMessage(TextMessage, data)
}

// State returns the transport state.
func (m *Manager) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	connects := 0
	for {
		if ctx.Err() != nil {
			return
		}
		m.setState(StateConnecting)

		conn, err := m.dialWithBackoff(ctx)
		if err != nil {
			m.setState(StateDisconnected)
			if ctx.Err() == nil {
				m.log.Error().Err(err).Msg("reconnect attempts exhausted")
			}
			return
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setState(StateConnected)
		observability.IncClientConnect()

		// The server, not the client, is the source of truth for presence:
		// registering the identity triggers a fresh snapshot.
		if err := m.Emit(events.UserOnline, events.UserOnlinePayload{UserID: m.identity}); err != nil {
			m.log.Warn().Err(err).Msg("identity registration failed")
		}

		if connects > 0 {
			observability.IncClientReconnect()
			m.fire(m.snapshotCallbacks(&m.reconnected))
		}
		connects++

		m.readLoop(conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.setState(StateDisconnected)
		m.fire(m.snapshotCallbacks(&m.disconnected))

		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Msg("connection lost, reconnecting")
	}
}

func (m *Manager) dialWithBackoff(ctx context.Context) (Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = m.maxInterval
	bo.MaxElapsedTime = 0

	var conn Conn
	operation := func() error {
		c, err := m.dial(ctx)
		if err != nil {
			m.log.Debug().Err(err).Msg("dial failed, backing off")
			return err
		}
		conn = c
		return nil
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, m.maxAttempts), ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.log.Debug().Err(err).Msg("read loop ended")
			return
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.log.Warn().Err(err).Msg("undecodable frame dropped")
			continue
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env events.Envelope) {
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers[env.Kind]...)
	m.mu.RUnlock()
	if len(handlers) == 0 {
		m.log.Debug().Str("kind", env.Kind).Msg("no handler for event kind")
		return
	}
	for _, h := range handlers {
		m.invoke(env.Kind, h, env.Payload)
	}
	observability.IncClientEvent(env.Kind)
}

// invoke isolates one handler: a panic inside it must not prevent
// subsequent, unrelated events from being processed.
func (m *Manager) invoke(kind string, h Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("kind", kind).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	h(payload)
}

func (m *Manager) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Manager) snapshotCallbacks(list *[]func()) []func() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]func(){}, *list...)
}

func (m *Manager) fire(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
