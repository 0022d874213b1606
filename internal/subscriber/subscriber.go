package subscriber

import (
	"context"
	"log/slog"
	"sync/atomic"

	"dashboard-relay/internal/broker"
	"dashboard-relay/internal/metrics"

	"github.com/jonboulle/clockwork"
)

type State int32

const (
	StateConnecting State = iota
	StateSubscribed
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Transport interface {
	Subscribe(ctx context.Context, topic string) (broker.Stream, error)
}

// Handler receives decoded events one at a time, in arrival order.
type Handler func(ctx context.Context, ev Event)

type Subscriber struct {
	logger    *slog.Logger
	transport Transport
	topic     string
	handler   Handler
	backoff   *Backoff
	clock     clockwork.Clock
	metrics   *metrics.Relay
	state     atomic.Int32
}

func NewSubscriber(logger *slog.Logger, transport Transport, topic string, handler Handler, backoff *Backoff, clock clockwork.Clock, m *metrics.Relay) *Subscriber {
	return &Subscriber{
		logger:    logger,
		transport: transport,
		topic:     topic,
		handler:   handler,
		backoff:   backoff,
		clock:     clock,
		metrics:   m,
	}
}

func (s *Subscriber) State() State {
	return State(s.state.Load())
}

func (s *Subscriber) setState(state State) {
	s.state.Store(int32(state))
}

// Start keeps one subscription to the topic alive until ctx is cancelled.
// Transport failures move the subscriber into backoff and it subscribes
// again afterwards; messages published in between are lost.
func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("Redis subscriber is running", "topic", s.topic)
	defer s.setState(StateStopped)

	for {
		s.setState(StateConnecting)
		stream, err := s.transport.Subscribe(ctx, s.topic)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !s.wait(ctx, err) {
				return nil
			}
			continue
		}

		s.backoff.Reset()
		s.setState(StateSubscribed)
		s.logger.Info("subscribed to broker topic", "topic", s.topic)

		err = s.consume(ctx, stream)
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Warn("failed to close pubsub", "error", closeErr)
		}
		if ctx.Err() != nil {
			s.logger.Info("shutting down Redis subscriber")
			return nil
		}
		if !s.wait(ctx, err) {
			return nil
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, stream broker.Stream) error {
	for {
		raw, err := stream.Receive(ctx)
		if err != nil {
			return err
		}
		s.HandleMessage(ctx, raw)
	}
}

// wait sleeps for the next backoff delay. It reports false when ctx ended first.
func (s *Subscriber) wait(ctx context.Context, cause error) bool {
	delay := s.backoff.Next()
	err := &ConnectionError{Attempt: s.backoff.Attempt(), Err: cause}

	s.setState(StateBackoff)
	s.metrics.BrokerReconnects.Inc()
	s.logger.Warn("broker unavailable, retrying",
		"topic", s.topic,
		"attempt", err.Attempt,
		"delay", delay,
		"error", err,
	)

	timer := s.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// HandleMessage decodes one raw broker message and passes it to the handler.
// Malformed messages are logged and dropped.
func (s *Subscriber) HandleMessage(ctx context.Context, raw []byte) {
	s.metrics.EventsReceived.Inc()

	ev, err := DecodeEvent(raw)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		s.logger.Warn("dropping malformed broker message", "topic", s.topic, "error", err)
		return
	}

	s.logger.Debug("received message", "viewID", ev.ViewID)
	s.handler(ctx, ev)
}
