package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/events"
)

type recordingSender struct {
	mu    sync.Mutex
	kinds []string
}

func (s *recordingSender) Emit(kind string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	return nil
}

func (s *recordingSender) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.kinds...)
}

func newTestEmitter(debounce, idleStop time.Duration) (*Emitter, *recordingSender, *fakeClock) {
	sender := &recordingSender{}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	e := newEmitter(sender, "me", "Me", debounce, idleStop, clock.Now, zerolog.Nop())
	return e, sender, clock
}

func TestKeystrokesAreDebounced(t *testing.T) {
	e, sender, clock := newTestEmitter(2*time.Second, time.Hour)

	e.Keystroke("conv1")
	clock.Advance(500 * time.Millisecond)
	e.Keystroke("conv1")
	clock.Advance(500 * time.Millisecond)
	e.Keystroke("conv1")

	assert.Equal(t, []string{events.TypingStart}, sender.snapshot())

	clock.Advance(2 * time.Second)
	e.Keystroke("conv1")
	assert.Equal(t, []string{events.TypingStart, events.TypingStart}, sender.snapshot())
}

func TestDebounceIsPerConversation(t *testing.T) {
	e, sender, _ := newTestEmitter(2*time.Second, time.Hour)

	e.Keystroke("conv1")
	e.Keystroke("conv2")

	assert.Len(t, sender.snapshot(), 2)
}

func TestStopEmitsTypingStopOnce(t *testing.T) {
	e, sender, _ := newTestEmitter(2*time.Second, time.Hour)

	e.Keystroke("conv1")
	e.Stop("conv1")
	e.Stop("conv1")

	assert.Equal(t, []string{events.TypingStart, events.TypingStop}, sender.snapshot())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	e, sender, _ := newTestEmitter(2*time.Second, time.Hour)

	e.Stop("conv1")

	assert.Empty(t, sender.snapshot())
}

func TestIdleEmitsAutomaticStop(t *testing.T) {
	e, sender, _ := newTestEmitter(time.Hour, 20*time.Millisecond)

	e.Keystroke("conv1")

	require.Eventually(t, func() bool {
		kinds := sender.snapshot()
		return len(kinds) == 2 && kinds[1] == events.TypingStop
	}, time.Second, 5*time.Millisecond)
}

func TestExplicitStopCancelsIdleTimer(t *testing.T) {
	e, sender, _ := newTestEmitter(time.Hour, 30*time.Millisecond)

	e.Keystroke("conv1")
	e.Stop("conv1")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{events.TypingStart, events.TypingStop}, sender.snapshot())
}
