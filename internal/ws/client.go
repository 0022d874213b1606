package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dashboard-relay/internal/auth"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	pingTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Client is one browser connection. A Client never leaves
// StateDisconnected; a reconnect gets a new Client and a new ID.
type Client struct {
	ID       string
	Identity auth.Identity
	Conn     *websocket.Conn
	Manager  *Manager

	send   chan Message
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	closeOnce sync.Once
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(manager.ctx)
	return &Client{
		ID:      id,
		Conn:    conn,
		Manager: manager,
		send:    make(chan Message, manager.sendQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateConnecting,
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves the client to the next state if the move is allowed.
func (c *Client) transition(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(to)
}

func (c *Client) transitionLocked(to State) bool {
	switch {
	case c.state == StateDisconnected:
		return false
	case to == StateDisconnected:
	case c.state == StateConnecting && to == StateAuthenticating:
	case c.state == StateAuthenticating && to == StateActive:
	default:
		return false
	}
	c.state = to
	return true
}

// Send queues msg without blocking. When the queue is full the client is
// disconnected and ErrSlowConsumer is returned; nothing is retried.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	if c.disconnect(websocket.StatusPolicyViolation, "slow consumer") {
		c.Manager.metrics.SlowConsumerDisconnects.Inc()
		c.Manager.logger.Warn("disconnecting slow client", "clientID", c.ID, "queueSize", cap(c.send))
	}
	return ErrSlowConsumer
}

// disconnect moves the client to StateDisconnected, drops its room
// memberships before returning and closes the socket in the background.
// It reports whether this call performed the teardown.
func (c *Client) disconnect(code websocket.StatusCode, reason string) bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.transition(StateDisconnected)
		c.cancel()
		tracked := c.Manager.unregister(c)

		go func() {
			if tracked {
				defer c.Manager.closing.Done()
			}
			if err := c.Conn.Close(code, reason); err != nil {
				c.Manager.logger.Debug("failed to close connection", "clientID", c.ID, "error", err)
			}
		}()
	})
	return first
}

func (c *Client) readPump(ctx context.Context) {
	defer c.disconnect(websocket.StatusNormalClosure, "bye")

	for {
		var msg Message
		if err := wsjson.Read(ctx, c.Conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || c.State() == StateDisconnected {
				c.Manager.logger.Debug("connection closed", "clientID", c.ID, "status", status)
			} else {
				c.Manager.logger.Warn("failed to read message", "clientID", c.ID, "error", err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.Manager.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if c.ctx.Err() != nil {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.Conn, msg)
			cancel()
			if err != nil {
				if c.State() != StateDisconnected {
					c.Manager.logger.Warn("failed to write message", "clientID", c.ID, "error", err)
				}
				c.disconnect(websocket.StatusInternalError, "write failed")
				return
			}
			c.Manager.logger.Debug("message sent", "clientID", c.ID, "type", msg.Type)
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			err := c.Conn.Ping(ctx)
			cancel()
			if err != nil {
				c.Manager.logger.Debug("failed to ping client", "clientID", c.ID, "error", err)
				c.disconnect(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case TypeSubscribeView:
		viewID, ok := c.viewID(msg)
		if !ok {
			return
		}
		c.Manager.join(c, viewID)
	case TypeUnsubscribeView:
		viewID, ok := c.viewID(msg)
		if !ok {
			return
		}
		c.Manager.leave(c, viewID)
	default:
		c.Manager.logger.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}

func (c *Client) viewID(msg Message) (string, bool) {
	var viewID string
	if err := json.Unmarshal(msg.Data, &viewID); err != nil {
		c.Manager.logger.Warn("failed to unmarshal view id", "clientID", c.ID, "type", msg.Type, "error", err)
		return "", false
	}
	if viewID == "" {
		c.Manager.logger.Warn("empty view id", "clientID", c.ID, "type", msg.Type)
		return "", false
	}
	return viewID, true
}
