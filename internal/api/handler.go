package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"dashboard-relay/internal/auth"
	"dashboard-relay/internal/cache"
	"dashboard-relay/internal/subscriber"

	"github.com/coder/websocket"
	"github.com/matheodrd/httphelper/handler"
)

const (
	defaultViewID = "default"
	maxUpdateBody = 1 << 20
)

func (s *Server) wsHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		token := auth.TokenFromRequest(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.Config.WSAllowedOrigins,
		})
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("websocket accept: %w", err))
		}

		s.WebsocketManager.HandleNewConnection(conn, token)
		return nil
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Redis   bool   `json:"redis,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := s.broker.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, healthResponse{Status: "error", Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Redis: true})
}

type updateRequest struct {
	ViewID  string          `json:"view_id"`
	Payload json.RawMessage `json:"payload"`
}

type updateResponse struct {
	Message string           `json:"message"`
	Data    subscriber.Event `json:"data"`
}

// updateHandler stores the payload as the view's latest snapshot and
// publishes the envelope on the dashboard topic.
func (s *Server) updateHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var req updateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBody)).Decode(&req); err != nil {
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		}
		if req.ViewID == "" {
			req.ViewID = defaultViewID
		}
		if len(req.Payload) == 0 {
			req.Payload = json.RawMessage(`{}`)
		}
		ev := subscriber.Event{ViewID: req.ViewID, Payload: req.Payload}

		if err := s.snapshots.SetSnapshot(r.Context(), ev.ViewID, ev.Payload); err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("marshalling envelope: %w", err))
		}
		if err := s.broker.Publish(r.Context(), s.Config.RedisChannel, data); err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}

		s.logger.Info("dashboard updated", "viewID", ev.ViewID)
		s.writeJSON(w, http.StatusOK, updateResponse{Message: "Updated " + ev.ViewID, Data: ev})
		return nil
	})
}

func (s *Server) snapshotHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		viewID := r.PathValue("view_id")

		payload, err := s.snapshots.GetSnapshot(r.Context(), viewID)
		if errors.Is(err, cache.ErrSnapshotNotFound) {
			s.writeJSON(w, http.StatusNotFound, struct{}{})
			return nil
		}
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}

		s.writeJSON(w, http.StatusOK, payload)
		return nil
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
