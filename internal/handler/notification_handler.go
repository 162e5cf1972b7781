package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/middleware"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/notify"
	"github.com/stemsi/diagnostic-gateway/internal/response"
	ws "github.com/stemsi/diagnostic-gateway/internal/websocket"
)

// NotificationFeed is the read side of the notification pipeline.
type NotificationFeed interface {
	Recent(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	Subscribe(ctx context.Context, userID string) notify.Subscription
}

// NotificationHandler streams diagnostic completion notifications over a
// WebSocket.
type NotificationHandler struct {
	feed     NotificationFeed
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(feed NotificationFeed, log zerolog.Logger, allowedOrigins []string) *NotificationHandler {
	return &NotificationHandler{
		feed:     feed,
		log:      log.With().Str("component", "notification_handler").Logger(),
		upgrader: ws.NewUpgrader(allowedOrigins),
	}
}

// NotificationStream godoc
// WS /ws/v1/notifications?token=...
// Sends the recent notifications on connect, then relays new ones as they
// are published.
func (h *NotificationHandler) NotificationStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	if h.feed == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrBackendUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	userID := claims.UserID
	wsLog := h.log.With().Str("user_id", userID).Logger()

	// Subscribe before reading the backlog so nothing published in between
	// is lost. A notification may then arrive twice; clients dedupe by
	// diagnostic id.
	sub := h.feed.Subscribe(ctx, userID)
	defer sub.Close()

	if err := h.sendRecent(ctx, conn, userID); err != nil {
		wsLog.Debug().Err(err).Msg("Initial notification write failed")
		return
	}

	wsLog.Info().Msg("Notification stream connected")

	// Reads happen on their own goroutine; every write stays on this one.
	actions := make(chan ws.Action, 4)
	go func() {
		defer cancel()
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			select {
			case actions <- msg.Action:
			case <-ctx.Done():
				return
			}
		}
	}()

	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			wsLog.Info().Msg("Notification stream disconnected")
			return

		case payload, ok := <-messages:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed.
			out := ws.NotificationResponse{Event: ws.EventNotification, Data: payload}
			if err := ws.WriteTyped(conn, out); err != nil {
				wsLog.Debug().Err(err).Msg("Notification write failed")
				return
			}

		case action := <-actions:
			var err error
			switch action {
			case ws.ActionPing:
				err = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			case ws.ActionHistory:
				err = h.sendRecent(ctx, conn, userID)
			default:
				wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
				err = ws.WriteError(conn, "unknown action: "+string(action))
			}
			if err != nil {
				return
			}
		}
	}
}

func (h *NotificationHandler) sendRecent(ctx context.Context, conn *websocket.Conn, userID string) error {
	recent, err := h.feed.Recent(ctx, userID, notify.RecentLimit)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Load recent notifications failed")
		recent = nil
	}
	if recent == nil {
		recent = []model.Notification{}
	}
	return ws.WriteTyped(conn, ws.RecentResponse{Event: ws.EventRecent, Notifications: recent})
}
