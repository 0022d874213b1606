package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashboard-relay/internal/api"
	"dashboard-relay/internal/auth"
	"dashboard-relay/internal/broker"
	"dashboard-relay/internal/cache"
	"dashboard-relay/internal/config"
	"dashboard-relay/internal/fanout"
	"dashboard-relay/internal/metrics"
	"dashboard-relay/internal/rooms"
	"dashboard-relay/internal/subscriber"
	"dashboard-relay/internal/ws"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	tokenLeeway    = 5 * time.Second
	drainTimeout   = 10 * time.Second
	subscriberStop = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	redisOpts, err := redis.ParseURL(conf.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	reg := metrics.NewRegistry()
	relayMetrics := metrics.New(reg)

	redisBroker := broker.NewRedis(redisClient, conf.BrokerHealthCheck)
	snapshotCache := cache.NewRedisSnapshotCache(redisClient, conf.SnapshotTTL)
	registry := rooms.NewRegistry()
	gate := auth.NewJWTGate([]byte(conf.JWTSecret), tokenLeeway)

	wsManager := ws.NewManager(context.Background(), logger, gate, registry, relayMetrics, ws.Options{
		SendQueueSize: conf.SendQueueSize,
		PingPeriod:    conf.PingPeriod,
	})
	dispatcher := fanout.NewDispatcher(logger, registry, wsManager, relayMetrics)

	sub := subscriber.NewSubscriber(
		logger,
		redisBroker,
		conf.RedisChannel,
		dispatcher.Handle,
		subscriber.NewBackoff(conf.BrokerBackoffInitial, conf.BrokerBackoffMax),
		clockwork.NewRealClock(),
		relayMetrics,
	)

	subDone := make(chan struct{})
	go func() {
		defer close(subDone)
		if err := sub.Start(ctx); err != nil {
			logger.Error("subscriber stopped with error", "error", err)
		}
	}()

	server := api.NewServer(conf, wsManager, redisBroker, snapshotCache, reg, logger)
	serverErr := server.Start(ctx)
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := wsManager.Shutdown(drainCtx); err != nil {
		logger.Warn("websocket connections did not close in time", "error", err)
	}

	select {
	case <-subDone:
	case <-time.After(subscriberStop):
		logger.Warn("subscriber did not stop in time")
	}

	logger.Info("relay stopped")
	return serverErr
}
