package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/events"
)

const (
	// DefaultDebounce is the minimum gap between two emitted typing-start
	// pulses for the same conversation.
	DefaultDebounce = 2 * time.Second
	// DefaultIdleStop is how long after the last keystroke an automatic
	// typing-stop is emitted.
	DefaultIdleStop = 2 * time.Second
)

// Sender pushes an outbound event. Satisfied by channel.Manager.
type Sender interface {
	Emit(kind string, payload any) error
}

// Emitter translates the current user's keystrokes into debounced
// typing-start pulses and an automatic typing-stop after input goes idle.
type Emitter struct {
	mu        sync.Mutex
	sender    Sender
	userID    string
	userName  string
	debounce  time.Duration
	idleStop  time.Duration
	clock     func() time.Time
	lastStart map[string]time.Time
	idle      map[string]*time.Timer
	log       zerolog.Logger
}

// NewEmitter creates an emitter with the default debounce and idle windows.
func NewEmitter(sender Sender, userID, userName string, log zerolog.Logger) *Emitter {
	return newEmitter(sender, userID, userName, DefaultDebounce, DefaultIdleStop, time.Now, log)
}

func newEmitter(sender Sender, userID, userName string, debounce, idleStop time.Duration, clock func() time.Time, log zerolog.Logger) *Emitter {
	return &Emitter{
		sender:    sender,
		userID:    userID,
		userName:  userName,
		debounce:  debounce,
		idleStop:  idleStop,
		clock:     clock,
		lastStart: make(map[string]time.Time),
		idle:      make(map[string]*time.Timer),
		log:       log,
	}
}

// Keystroke reports one keystroke in the conversation's composer. Emits a
// typing-start unless one was emitted within the debounce window, and
// (re)arms the idle timer that emits the automatic typing-stop.
func (e *Emitter) Keystroke(conversationID string) {
	now := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastStart[conversationID]; !ok || now.Sub(last) >= e.debounce {
		e.lastStart[conversationID] = now
		e.emit(events.TypingStart, conversationID, true)
	}

	if timer, ok := e.idle[conversationID]; ok {
		timer.Reset(e.idleStop)
		return
	}
	e.idle[conversationID] = time.AfterFunc(e.idleStop, func() {
		e.Stop(conversationID)
	})
}

// Stop emits an immediate typing-stop and cancels the idle timer. Called on
// send and on composer blur.
func (e *Emitter) Stop(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if timer, ok := e.idle[conversationID]; ok {
		timer.Stop()
		delete(e.idle, conversationID)
	}
	if _, ok := e.lastStart[conversationID]; !ok {
		return
	}
	delete(e.lastStart, conversationID)
	e.emit(events.TypingStop, conversationID, false)
}

func (e *Emitter) emit(kind, conversationID string, isTyping bool) {
	err := e.sender.Emit(kind, events.UserTypingPayload{
		ConversationID: conversationID,
		UserID:         e.userID,
		UserName:       e.userName,
		IsTyping:       isTyping,
	})
	if err != nil {
		e.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("typing pulse not sent")
	}
}
