package session

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"chat-sync/internal/channel"
	"chat-sync/internal/convcache"
	"chat-sync/internal/events"
	"chat-sync/internal/models"
	"chat-sync/internal/msgstore"
	"chat-sync/internal/notify"
	"chat-sync/internal/observability"
	"chat-sync/internal/presence"
	"chat-sync/internal/typing"
)

// DefaultPageSize is the history page requested when opening a conversation.
const DefaultPageSize = 50

// Channel is the slice of channel.Manager the session depends on.
type Channel interface {
	Connect(ctx context.Context, identity string) error
	Disconnect()
	On(kind string, h channel.Handler)
	OnReconnected(fn func())
	OnDisconnected(fn func())
	Emit(kind string, payload any) error
}

// RestClient consumes the REST collaborators: conversation list, message
// pages, and message creation.
type RestClient interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	MessagePage(ctx context.Context, conversationID string, before time.Time, limit int) ([]models.Message, error)
	PostMessage(ctx context.Context, conversationID string, msg models.Message) (models.Message, error)
}

// IntentSink receives notification intents that survived suppression.
type IntentSink interface {
	Deliver(ctx context.Context, intent notify.Intent) error
}

// Session wires the sync core for one logged-in user: it owns the channel,
// routes every inbound event to its component, and exposes the stateful
// components the UI layer reads from. Constructed explicitly and passed by
// reference; there is no ambient global instance.
type Session struct {
	userID   string
	userName string
	ch       Channel
	rest     RestClient
	sink     IntentSink
	prefs    models.Preferences
	log      zerolog.Logger

	presence *presence.Registry
	typing   *typing.Coordinator
	emitter  *typing.Emitter
	store    *msgstore.Store
	cache    *convcache.Cache
	notifier *notify.Dispatcher

	mu       sync.Mutex
	fetchSeq map[string]uint64
}

// New builds a session and its components for userID.
func New(userID, userName string, ch Channel, rest RestClient, sink IntentSink, snapshots convcache.SnapshotStore, prefs models.Preferences, log zerolog.Logger) *Session {
	s := &Session{
		userID:   userID,
		userName: userName,
		ch:       ch,
		rest:     rest,
		sink:     sink,
		prefs:    prefs,
		log:      log,
		presence: presence.NewRegistry(),
		typing:   typing.NewCoordinator(log),
		store:    msgstore.NewStore(log),
		cache:    convcache.NewCache(snapshots, userID, log),
		notifier: notify.NewDispatcher(log),
		fetchSeq: make(map[string]uint64),
	}
	s.emitter = typing.NewEmitter(ch, userID, userName, log)
	return s
}

// Accessors for the UI layer.
func (s *Session) Presence() *presence.Registry      { return s.presence }
func (s *Session) Typing() *typing.Coordinator       { return s.typing }
func (s *Session) TypingEmitter() *typing.Emitter    { return s.emitter }
func (s *Session) Messages() *msgstore.Store         { return s.store }
func (s *Session) Conversations() *convcache.Cache   { return s.cache }
func (s *Session) Preferences() models.Preferences   { return s.prefs }

// Start renders the cached conversation list immediately, registers all
// event handlers, connects the channel, and kicks off the authoritative
// conversation refresh. The cached render happens before any network
// round-trip so the user never sees an empty list while the fetch is in
// flight.
func (s *Session) Start(ctx context.Context) error {
	s.cache.LoadCached()
	s.registerHandlers()
	s.ch.OnDisconnected(s.presence.Invalidate)
	s.ch.OnReconnected(func() { s.onReconnected(ctx) })

	if err := s.ch.Connect(ctx, s.userID); err != nil {
		return err
	}

	go s.cache.RunFlusher(ctx, convcache.DefaultFlushInterval)
	go s.typing.Run(ctx, time.Second)
	go s.refreshConversations(ctx)
	return nil
}

// Stop disconnects the channel and flushes the conversation snapshot.
func (s *Session) Stop() {
	s.ch.Disconnect()
	_ = s.cache.Persist()
}

// OpenConversation marks the conversation active, joins its event room, and
// loads a history page. A response that lands after the user has moved on is
// discarded (stale-response guard keyed by conversation id); in-flight
// fetches are not cancelled.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) error {
	s.cache.Open(conversationID)
	if err := s.ch.Emit(events.JoinConversation, events.JoinConversationPayload{ConversationID: conversationID}); err != nil {
		s.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("join deferred until reconnect")
	}

	seq := s.nextFetch(conversationID)
	msgs, err := s.rest.MessagePage(ctx, conversationID, time.Time{}, DefaultPageSize)
	if err != nil {
		return err
	}
	if !s.fetchCurrent(conversationID, seq) || s.cache.Active() != conversationID {
		s.log.Debug().Str("conversation_id", conversationID).Msg("stale history page discarded")
		return nil
	}
	for _, m := range msgs {
		s.store.Append(conversationID, m)
	}
	return nil
}

// CloseConversation clears the active conversation.
func (s *Session) CloseConversation() {
	s.cache.CloseActive()
}

// SendMessage appends an optimistic entry, posts it, and reconciles the
// temporary id with the server-assigned one. On failure the entry is marked
// failed in place and not retried.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string, msgType models.MessageType) (models.Message, error) {
	s.emitter.Stop(conversationID)

	temp := s.store.AppendPending(conversationID, s.userID, s.userName, content, msgType)
	s.cache.ApplyIncoming(temp)

	confirmed, err := s.rest.PostMessage(ctx, conversationID, temp)
	if err != nil {
		s.store.MarkFailed(temp.ID)
		return models.Message{}, err
	}
	if err := s.store.ReplaceTemporary(temp.ID, confirmed); err != nil {
		// The socket echo can win the race and confirm the entry first.
		s.log.Debug().Str("temp_id", temp.ID).Msg("temporary id already confirmed")
	}
	return confirmed, nil
}

func (s *Session) registerHandlers() {
	s.ch.On(events.OnlineUsersList, func(raw json.RawMessage) {
		payload, err := events.DecodeOnlineUsers(raw)
		if err != nil {
			s.dropEvent(events.OnlineUsersList, err)
			return
		}
		s.presence.ApplySnapshot(payload.OnlineUsers)
	})

	s.ch.On(events.UserStatusChanged, func(raw json.RawMessage) {
		payload, err := events.DecodeStatusChanged(raw)
		if err != nil {
			s.dropEvent(events.UserStatusChanged, err)
			return
		}
		s.presence.ApplyDelta(payload.UserID, payload.Status)
	})

	s.ch.On(events.UserTyping, func(raw json.RawMessage) {
		var payload events.UserTypingPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.dropEvent(events.UserTyping, err)
			return
		}
		if payload.UserID == s.userID || !s.prefs.TypingIndicators {
			return
		}
		if payload.IsTyping {
			s.typing.StartTyping(payload.ConversationID, payload.UserID, payload.UserName)
		} else {
			s.typing.StopTyping(payload.ConversationID, payload.UserID)
		}
	})

	s.ch.On(events.NewMessage, s.handleNewMessage)

	s.ch.On(events.MessageEdited, func(raw json.RawMessage) {
		var payload events.MessageEditedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.dropEvent(events.MessageEdited, err)
			return
		}
		s.store.Edit(payload.MessageID, payload.Content)
	})

	s.ch.On(events.MessageDeleted, func(raw json.RawMessage) {
		var payload events.MessageDeletedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.dropEvent(events.MessageDeleted, err)
			return
		}
		s.store.MarkDeleted(payload.MessageID)
	})

	s.ch.On(events.MessageReaction, func(raw json.RawMessage) {
		var payload events.MessageReactionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.dropEvent(events.MessageReaction, err)
			return
		}
		s.store.ApplyReaction(payload.MessageID, payload.UserID, payload.EmojiID)
	})

	s.ch.On(events.MessageDelivered, func(raw json.RawMessage) {
		var payload events.MessageReceiptPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.dropEvent(events.MessageDelivered, err)
			return
		}
		s.store.MarkDelivered(payload.MessageID, payload.UserID)
	})

	s.ch.On(events.MessageSeen, func(raw json.RawMessage) {
		var payload events.MessageReceiptPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.dropEvent(events.MessageSeen, err)
			return
		}
		s.store.MarkSeen(payload.MessageID, payload.UserID)
	})
}

func (s *Session) handleNewMessage(raw json.RawMessage) {
	var ev events.NewMessagePayload
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.dropEvent(events.NewMessage, err)
		return
	}
	if ev.ConversationID == "" {
		ev.ConversationID = ev.Message.ConversationID
	}
	ev.Message.ConversationID = ev.ConversationID

	s.store.Append(ev.ConversationID, ev.Message)
	s.cache.ApplyIncoming(ev.Message)

	if ev.Message.SenderID != s.userID {
		s.acknowledge(ev)
	}

	var summary *models.ConversationSummary
	if found, ok := s.cache.Get(ev.ConversationID); ok {
		summary = &found
	}
	intent := s.notifier.OnEvent(ev, summary, s.userID, s.cache.Active(), s.prefs)
	if intent == nil {
		return
	}
	observability.IncNotificationIntent()
	if s.sink != nil {
		if err := s.sink.Deliver(context.Background(), *intent); err != nil {
			s.log.Warn().Err(err).Msg("notification intent delivery failed")
		}
	}
}

// acknowledge reports delivery for every inbound message and reading when
// the conversation is open and read receipts are enabled.
func (s *Session) acknowledge(ev events.NewMessagePayload) {
	receipt := events.MessageReceiptPayload{
		ConversationID: ev.ConversationID,
		MessageID:      ev.Message.ID,
		UserID:         s.userID,
	}
	if err := s.ch.Emit(events.MessageDelivered, receipt); err != nil {
		s.log.Debug().Err(err).Msg("delivery receipt not sent")
	}
	if s.cache.Active() == ev.ConversationID && s.prefs.ReadReceipts {
		if err := s.ch.Emit(events.MessageSeen, receipt); err != nil {
			s.log.Debug().Err(err).Msg("read receipt not sent")
		}
	}
}

// onReconnected re-subscribes conversation-scoped rooms and refreshes the
// authoritative conversation list: room membership does not survive a
// transport-level reconnect.
func (s *Session) onReconnected(ctx context.Context) {
	if active := s.cache.Active(); active != "" {
		if err := s.ch.Emit(events.JoinConversation, events.JoinConversationPayload{ConversationID: active}); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", active).Msg("room re-join failed")
		}
	}
	s.refreshConversations(ctx)
}

func (s *Session) refreshConversations(ctx context.Context) {
	list, err := s.rest.ListConversations(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("conversation refresh failed, keeping cached view")
		return
	}
	s.cache.MergeFresh(list)
}

func (s *Session) dropEvent(kind string, err error) {
	s.log.Warn().Err(err).Str("kind", kind).Msg("undecodable event dropped")
}

func (s *Session) nextFetch(conversationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchSeq[conversationID]++
	return s.fetchSeq[conversationID]
}

func (s *Session) fetchCurrent(conversationID string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchSeq[conversationID] == seq
}
