package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrBrokerUnresponsive = errors.New("broker did not answer health check ping")

// Redis is the pub/sub transport backed by a go-redis client.
type Redis struct {
	client      *redis.Client
	healthCheck time.Duration
}

// NewRedis returns a transport whose subscriptions ping the server after
// healthCheck without traffic. A ping left unanswered for another
// healthCheck fails the stream.
func NewRedis(client *redis.Client, healthCheck time.Duration) *Redis {
	return &Redis{client: client, healthCheck: healthCheck}
}

// Subscribe opens a dedicated pub/sub connection and waits for the
// subscription confirmation, so a returned stream is live.
func (r *Redis) Subscribe(ctx context.Context, topic string) (Stream, error) {
	pubsub := r.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %q: %w", topic, err)
	}
	return &redisStream{pubsub: pubsub, healthCheck: r.healthCheck}, nil
}

func (r *Redis) Publish(ctx context.Context, topic string, data []byte) error {
	if err := r.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Stream is one live subscription. It is not restarted on failure: once
// Receive returns an error the caller closes it and subscribes again.
type Stream interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type redisStream struct {
	pubsub      *redis.PubSub
	healthCheck time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Receive blocks until a message arrives. Cancelling ctx closes the stream,
// since go-redis does not interrupt a pending read on cancellation.
func (s *redisStream) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	pinged := false
	for {
		msg, err := s.pubsub.ReceiveTimeout(ctx, s.healthCheck)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTimeout(err) {
				return nil, err
			}
			if pinged {
				return nil, ErrBrokerUnresponsive
			}
			if err := s.pubsub.Ping(ctx); err != nil {
				return nil, fmt.Errorf("pinging broker: %w", err)
			}
			pinged = true
			continue
		}

		pinged = false
		if m, ok := msg.(*redis.Message); ok {
			return []byte(m.Payload), nil
		}
	}
}

func (s *redisStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
