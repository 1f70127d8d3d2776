package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/notify"
	"github.com/kalambet/resqfreeze/internal/storage"
)

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)

		rows, err := deps.Store.ListNotifications(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notifications: %v", err)
			return
		}

		events := make([]notify.Event, len(rows))
		for i, n := range rows {
			events[i] = notify.Event{
				ID:        chat.Itoa(n.ID),
				Title:     n.Title,
				Message:   n.Message,
				CreatedAt: n.CreatedAt,
				IsRead:    n.IsRead,
			}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func handleMarkNotificationRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid notification id")
			return
		}

		err = deps.Store.MarkNotificationRead(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to mark notification read: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}
