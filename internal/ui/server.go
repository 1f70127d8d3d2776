// Package ui is the monitor daemon's presentation surface: a JSON API for
// the dashboard, a websocket event feed and an MCP tool server.
package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/resqfreeze/internal/backend"
	"github.com/kalambet/resqfreeze/internal/monitor"
	"github.com/kalambet/resqfreeze/internal/notify"
	"github.com/kalambet/resqfreeze/internal/session"
)

const (
	maxRequestBodySize = 64 << 10
	sendTimeout        = 90 * time.Second
)

// Session is the chat transcript the dashboard drives.
type Session interface {
	View() session.View
	Send(ctx context.Context, text string) error
	RequestClear()
	CancelClear()
	ConfirmClear(ctx context.Context) error
}

// Dashboard is the monitor state.
type Dashboard interface {
	Status() monitor.Status
	Feed() notify.Feed
	RefreshSensors(ctx context.Context) error
	RefreshNotifications(ctx context.Context) error
}

// Backend covers the calls proxied straight to the container backend.
type Backend interface {
	SensorHistory(ctx context.Context, limit int) ([]backend.SensorPoint, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

type Deps struct {
	Session Session
	Monitor Dashboard
	Backend Backend
	Hub     *Hub
	Logger  *slog.Logger
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	Status  monitor.Status `json:"status"`
	Session session.View   `json:"session"`
}

// NewHandler returns the dashboard router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StateResponse{Status: deps.Monitor.Status(), Session: deps.Session.View()})
	})
	r.Get("/transcript", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.View())
	})

	r.Post("/chat", handleChat(deps))
	r.Post("/chat/clear", func(w http.ResponseWriter, r *http.Request) {
		deps.Session.RequestClear()
		writeJSON(w, http.StatusOK, deps.Session.View())
	})
	r.Post("/chat/clear/cancel", func(w http.ResponseWriter, r *http.Request) {
		deps.Session.CancelClear()
		writeJSON(w, http.StatusOK, deps.Session.View())
	})
	r.Post("/chat/clear/confirm", handleConfirmClear(deps))

	r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Monitor.Feed())
	})
	r.Post("/notifications/{id}/read", handleMarkRead(deps))
	r.Get("/sensors/history", handleHistory(deps))
	r.Post("/refresh", handleRefresh(deps))

	if deps.Hub != nil {
		r.Handle("/ws", deps.Hub)
	}
	return r
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		// The reply is part of the shared transcript, so a client hanging up
		// must not abort it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), sendTimeout)
		defer cancel()

		err := deps.Session.Send(ctx, req.Message)
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case errors.Is(err, session.ErrBusy):
			httpError(w, http.StatusConflict, "conflict", "%v", err)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		default:
			writeJSON(w, http.StatusOK, deps.Session.View())
		}
	}
}

func handleConfirmClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Session.ConfirmClear(r.Context())
		switch {
		case errors.Is(err, session.ErrClearNotRequested):
			httpError(w, http.StatusConflict, "conflict", "%v", err)
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "%v", err)
		default:
			writeJSON(w, http.StatusOK, deps.Session.View())
		}
	}
}

func handleMarkRead(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Backend == nil {
			httpError(w, http.StatusServiceUnavailable, "service_unavailable", "backend not configured")
			return
		}
		if err := deps.Backend.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
			backendError(w, err)
			return
		}
		if err := deps.Monitor.RefreshNotifications(r.Context()); err != nil {
			deps.Logger.Warn("refreshing notifications", "error", err)
		}
		writeJSON(w, http.StatusOK, deps.Monitor.Feed())
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Backend == nil {
			httpError(w, http.StatusServiceUnavailable, "service_unavailable", "backend not configured")
			return
		}
		limit := 12
		if s := r.URL.Query().Get("limit"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = v
		}
		points, err := deps.Backend.SensorHistory(r.Context(), limit)
		if err != nil {
			backendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	}
}

func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Monitor.RefreshSensors(r.Context()); err != nil {
			deps.Logger.Warn("manual sensor refresh", "error", err)
		}
		if err := deps.Monitor.RefreshNotifications(r.Context()); err != nil {
			deps.Logger.Warn("manual notification refresh", "error", err)
		}
		writeJSON(w, http.StatusOK, deps.Monitor.Status())
	}
}

func backendError(w http.ResponseWriter, err error) {
	var se *backend.StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return
	}
	httpError(w, http.StatusBadGateway, "api_error", "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
