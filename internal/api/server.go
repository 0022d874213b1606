package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"dashboard-relay/internal/config"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type ConnectionHandler interface {
	HandleNewConnection(conn *websocket.Conn, token string)
}

type Broker interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, topic string, data []byte) error
}

type SnapshotStore interface {
	SetSnapshot(ctx context.Context, viewID string, payload json.RawMessage) error
	GetSnapshot(ctx context.Context, viewID string) (json.RawMessage, error)
}

type Server struct {
	Config           *config.Config
	WebsocketManager ConnectionHandler
	broker           Broker
	snapshots        SnapshotStore
	gatherer         prometheus.Gatherer
	logger           *slog.Logger
}

func NewServer(config *config.Config, wsManager ConnectionHandler, broker Broker, snapshots SnapshotStore, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		Config:           config,
		WebsocketManager: wsManager,
		broker:           broker,
		snapshots:        snapshots,
		gatherer:         gatherer,
		logger:           logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET "+s.Config.WSPath, s.wsHandler())
	mux.HandleFunc("POST /api/update", s.updateHandler())
	mux.HandleFunc("GET /api/data/{view_id}", s.snapshotHandler())
	// Unprefixed paths served by the standalone publisher.
	mux.HandleFunc("POST /update", s.updateHandler())
	mux.HandleFunc("GET /data/{view_id}", s.snapshotHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves until ctx is cancelled, then shuts the listener down.
// Upgraded websocket connections are not closed here.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    net.JoinHostPort(s.Config.APIServerHost, s.Config.APIServerPort),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server is running", "port", s.Config.APIServerPort, "wsPath", s.Config.WSPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.logger.Error("API server failed to listen and serve", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("API server failed to shutdown", "error", err)
	}
	return nil
}
