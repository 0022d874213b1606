package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"dashboard-relay/internal/metrics"
	"dashboard-relay/internal/rooms"
	"dashboard-relay/internal/subscriber"
	"dashboard-relay/internal/ws"
)

type Registry interface {
	MembersOf(roomID string) []string
}

type Connections interface {
	Deliver(clientID string, msg ws.Message) error
	Broadcast(msg ws.Message) int
}

// Result counts the connections that accepted each kind of message.
type Result struct {
	Updates int
	Global  int
}

type Dispatcher struct {
	logger      *slog.Logger
	registry    Registry
	connections Connections
	metrics     *metrics.Relay
}

func NewDispatcher(logger *slog.Logger, registry Registry, connections Connections, m *metrics.Relay) *Dispatcher {
	return &Dispatcher{
		logger:      logger,
		registry:    registry,
		connections: connections,
		metrics:     m,
	}
}

// Route sends ev.Payload as update:<view_id> to the members of the view room,
// then the whole envelope as dashboard_global to every connection.
func (d *Dispatcher) Route(_ context.Context, ev subscriber.Event) (Result, error) {
	var res Result

	room := rooms.ViewRoom(ev.ViewID)
	update := ws.Message{Type: ws.UpdateType(ev.ViewID), Data: ev.Payload}
	for _, id := range d.registry.MembersOf(room) {
		if err := d.connections.Deliver(id, update); err != nil {
			d.logger.Debug("update not delivered", "clientID", id, "room", room, "error", err)
			continue
		}
		res.Updates++
	}
	d.metrics.Deliveries.WithLabelValues(metrics.KindUpdate).Add(float64(res.Updates))

	envelope, err := json.Marshal(ev)
	if err != nil {
		return res, fmt.Errorf("marshalling envelope: %w", err)
	}
	res.Global = d.connections.Broadcast(ws.Message{Type: ws.TypeGlobal, Data: envelope})
	d.metrics.Deliveries.WithLabelValues(metrics.KindGlobal).Add(float64(res.Global))

	d.logger.Debug("event dispatched", "viewID", ev.ViewID, "updates", res.Updates, "global", res.Global)
	return res, nil
}

// Handle adapts Route to a subscriber.Handler.
func (d *Dispatcher) Handle(ctx context.Context, ev subscriber.Event) {
	if _, err := d.Route(ctx, ev); err != nil {
		d.logger.Error("failed to dispatch event", "viewID", ev.ViewID, "error", err)
	}
}
