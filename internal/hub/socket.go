package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/events"
	"chat-sync/internal/observability"
)

const wsRoutingKey = "ws_events.sync"

// SocketHandler upgrades HTTP requests to the event channel and pumps inbound
// frames into the hub.
type SocketHandler struct {
	hub *Hub
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(hub *Hub) *SocketHandler {
	return &SocketHandler{hub: hub}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs its read loop. Identity arrives
// in-band via the first user-online event, not in the handshake.
func (h *SocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-sync/hub").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	observability.IncWSActive()
	h.publishLifecycle(ctx, client, "ws_connect", "")

	go h.readLoop(client)
}

func (h *SocketHandler) readLoop(client *Client) {
	var closeReason string
	defer func() {
		userID := client.UserID()
		if h.hub.Unregister(client) {
			h.hub.BroadcastAll(events.UserStatusChanged, events.UserStatusChangedPayload{
				UserID: userID,
				Status: events.StatusOffline,
			}, nil)
		}
		observability.DecWSActive()
		h.publishLifecycle(context.Background(), client, "ws_disconnect", closeReason)
		client.conn.Close()
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(context.Background(), client, "ws_error", closeReason)
			}
			return
		}
		h.hub.HandleEvent(context.Background(), client, raw)
	}
}

func (h *SocketHandler) publishLifecycle(ctx context.Context, client *Client, event, reason string) {
	info := client.info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   client.UserID(),
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(event)
}
