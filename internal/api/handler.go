// Package api is the container backend: sensor ingestion, chat history, the
// AI assistant endpoints, notifications and the container profile.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/profile"
	"github.com/kalambet/resqfreeze/internal/storage"
)

// DefaultMaxReadings is how many sensor readings are retained.
const DefaultMaxReadings = 100

// Assistant answers the /ai endpoints. Implemented by chef.Service.
type Assistant interface {
	Reply(ctx context.Context, req chat.ChatRequest) (string, error)
	Recipe(ctx context.Context, req chat.RecipeRequest) (chat.Recipe, error)
}

type AppDeps struct {
	Store   *storage.Store
	Profile *profile.Manager
	Chef    Assistant
	Token   string
	Logger  *slog.Logger

	// MaxReadings caps stored readings; 0 means DefaultMaxReadings and a
	// negative value disables pruning.
	MaxReadings int
	Now         func() time.Time
}

func (d AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d AppDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewAppHandler returns the backend router. /health is always public; every
// other route requires the bearer token when one is configured.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.MaxReadings == 0 {
		deps.MaxReadings = DefaultMaxReadings
	}
	// Serializes read-previous-then-insert so transitions are detected once.
	var sensorMu sync.Mutex

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/sensors", handlePostReading(deps, &sensorMu))
		r.Post("/sensors/", handlePostReading(deps, &sensorMu))
		r.Get("/sensors/latest", handleLatestReading(deps))
		r.Get("/sensors/history", handleSensorHistory(deps))

		r.Get("/chat-history", handleListChat(deps))
		r.Post("/chat-history", handleSaveChat(deps))
		r.Delete("/chat-history", handleClearChat(deps))

		r.Post("/ai/chat", handleAIChat(deps))
		r.Post("/ai/generate-recipe", handleGenerateRecipe(deps))

		r.Get("/notifications/auto", handleListNotifications(deps))
		r.Post("/notifications/{id}/read", handleMarkNotificationRead(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
