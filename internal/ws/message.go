package ws

import (
	"encoding/json"
	"errors"

	"github.com/coder/websocket"
)

// Message is the frame exchanged with browser clients in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	TypeSubscribeView   = "subscribe_view"
	TypeUnsubscribeView = "unsubscribe_view"
	TypeGlobal          = "dashboard_global"
	TypeConnectError    = "connect_error"
)

// UpdateType is the event name delivered to members of a view room.
func UpdateType(viewID string) string {
	return "update:" + viewID
}

// StatusAuthenticationFailed closes a handshake whose credential was refused.
// Clients treat it as a signal to discard their stored token.
const StatusAuthenticationFailed websocket.StatusCode = 4401

var (
	ErrSlowConsumer     = errors.New("send queue full")
	ErrConnectionClosed = errors.New("connection closed")
)

type connectError struct {
	Message string `json:"message"`
}
