package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dashboard-relay/internal/auth"
	"dashboard-relay/internal/metrics"
	"dashboard-relay/internal/rooms"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const rejectTimeout = 5 * time.Second

type Options struct {
	SendQueueSize int
	PingPeriod    time.Duration
}

// Manager owns every connection of the relay: it authenticates new sockets,
// keeps the set of active clients and their room memberships, and tears
// them down on disconnect or shutdown.
type Manager struct {
	logger   *slog.Logger
	gate     auth.Authenticator
	registry *rooms.Registry
	metrics  *metrics.Relay

	clients map[string]*Client
	mu      sync.RWMutex
	closed  bool
	closing sync.WaitGroup

	sendQueueSize int
	pingPeriod    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(ctx context.Context, logger *slog.Logger, gate auth.Authenticator, registry *rooms.Registry, m *metrics.Relay, opts Options) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		logger:        logger,
		gate:          gate,
		registry:      registry,
		metrics:       m,
		clients:       make(map[string]*Client),
		sendQueueSize: opts.SendQueueSize,
		pingPeriod:    opts.PingPeriod,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// HandleNewConnection runs the lifecycle of an accepted socket and returns
// once the client is disconnected.
func (m *Manager) HandleNewConnection(conn *websocket.Conn, token string) {
	c := NewClient(uuid.NewString(), conn, m)
	c.transition(StateAuthenticating)

	identity, err := m.gate.Authenticate(token)
	if err != nil {
		m.reject(c, err)
		return
	}
	c.Identity = identity

	if !m.register(c) {
		c.transition(StateDisconnected)
		c.cancel()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go c.writePump()
	c.readPump(m.ctx)
}

// reject sends a connect_error frame and closes with 4401. No room state
// exists for the client at this point.
func (m *Manager) reject(c *Client, err error) {
	c.transition(StateDisconnected)
	c.cancel()
	m.metrics.AuthRejections.Inc()

	reason := auth.ReasonInvalid
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		reason = authErr.Reason
	}
	m.logger.Info("rejecting connection", "clientID", c.ID, "reason", reason, "error", err)

	data, _ := json.Marshal(connectError{Message: "Authentication error: " + string(reason) + " token"})

	ctx, cancel := context.WithTimeout(m.ctx, rejectTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.Conn, Message{Type: TypeConnectError, Data: data}); err != nil {
		m.logger.Debug("failed to send rejection", "clientID", c.ID, "error", err)
	}
	if err := c.Conn.Close(StatusAuthenticationFailed, "Authentication error"); err != nil {
		m.logger.Debug("failed to close rejected connection", "clientID", c.ID, "error", err)
	}
}

func (m *Manager) register(c *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !c.transition(StateActive) {
		return false
	}
	m.clients[c.ID] = c
	m.metrics.ActiveConnections.Inc()
	m.logger.Info("client connected", "clientID", c.ID, "subject", c.Identity.Subject)
	return true
}

// unregister removes an active client and drops its room memberships. When
// it reports true the caller owes closing.Done once the socket is closed.
// The Add happens under mu, so it is ordered before Shutdown's Wait.
func (m *Manager) unregister(c *Client) bool {
	m.mu.Lock()
	_, ok := m.clients[c.ID]
	if ok {
		delete(m.clients, c.ID)
		m.closing.Add(1)
		m.metrics.ActiveConnections.Dec()
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	joined := m.registry.RoomsOf(c.ID)
	m.registry.LeaveAll(c.ID)
	m.metrics.ActiveRooms.Set(float64(m.registry.RoomCount()))
	m.logger.Info("client disconnected", "clientID", c.ID, "rooms", joined)
	return true
}

// join holds the client lock so a join racing with teardown either lands
// before LeaveAll or is dropped.
func (m *Manager) join(c *Client, viewID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return
	}
	room := rooms.ViewRoom(viewID)
	m.registry.Join(c.ID, room)
	m.metrics.ActiveRooms.Set(float64(m.registry.RoomCount()))
	m.logger.Debug("client joined room", "clientID", c.ID, "room", room)
}

func (m *Manager) leave(c *Client, viewID string) {
	room := rooms.ViewRoom(viewID)
	m.registry.Leave(c.ID, room)
	m.metrics.ActiveRooms.Set(float64(m.registry.RoomCount()))
	m.logger.Debug("client left room", "clientID", c.ID, "room", room)
}

// Deliver queues msg for one connection.
func (m *Manager) Deliver(clientID string, msg Message) error {
	m.mu.RLock()
	c, ok := m.clients[clientID]
	m.mu.RUnlock()
	if !ok {
		return ErrConnectionClosed
	}
	return c.Send(msg)
}

// Broadcast queues msg for every active connection and returns how many
// accepted it.
func (m *Manager) Broadcast(msg Message) int {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if err := c.Send(msg); err == nil {
			delivered++
		}
	}
	return delivered
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Shutdown disconnects every client with a going-away close and waits for
// the close handshakes until ctx ends. New connections are refused after.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	m.logger.Info("closing websocket connections", "clients", len(clients))
	// disconnect returns only once the teardown of c ran, whoever started it,
	// so every closing.Add for these clients precedes the Wait below.
	for _, c := range clients {
		c.disconnect(websocket.StatusGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.closing.Wait()
		close(done)
	}()

	defer m.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
