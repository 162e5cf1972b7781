package websocket

import (
	"encoding/json"

	"github.com/stemsi/diagnostic-gateway/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
	// ActionHistory asks for the recent notification list again.
	ActionHistory Action = "history"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventRecent       Event = "recent"
	EventNotification Event = "notification"
	EventPong         Event = "pong"
)

// RecentResponse carries the notifications kept for the user, newest first.
type RecentResponse struct {
	Event         Event                `json:"event"`
	Notifications []model.Notification `json:"notifications"`
}

// NotificationResponse wraps one live notification. Data is forwarded as
// published, without decoding.
type NotificationResponse struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
