package api

import (
	"net/http"
	"time"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/storage"
)

// chatRecord is the wire form of a stored message. List fields are always
// arrays.
type chatRecord struct {
	ID          int64     `json:"id"`
	Type        string    `json:"message_type"`
	Sender      string    `json:"sender"`
	Content     string    `json:"content"`
	RecipeName  string    `json:"recipe_name"`
	Ingredients []string  `json:"ingredients"`
	Steps       []string  `json:"steps"`
	CreatedAt   time.Time `json:"created_at"`
}

type saveChatRequest struct {
	Type        chat.Kind   `json:"message_type"`
	Sender      chat.Sender `json:"sender"`
	Content     string      `json:"content"`
	RecipeName  string      `json:"recipe_name"`
	Ingredients []string    `json:"ingredients"`
	Steps       []string    `json:"steps"`
}

func handleListChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := deps.Store.ListChatMessages()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list chat history: %v", err)
			return
		}
		out := make([]chatRecord, len(msgs))
		for i, m := range msgs {
			out[i] = chatRecord{
				ID:          m.ID,
				Type:        m.Type,
				Sender:      m.Sender,
				Content:     m.Content,
				RecipeName:  m.RecipeName,
				Ingredients: m.Ingredients,
				Steps:       m.Steps,
				CreatedAt:   m.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleSaveChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Sender != chat.SenderUser && req.Sender != chat.SenderBot {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sender must be %q or %q", chat.SenderUser, chat.SenderBot)
			return
		}
		if req.Type == "" {
			req.Type = chat.KindText
		}
		if req.Type != chat.KindText && req.Type != chat.KindRecipe {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message_type must be %q or %q", chat.KindText, chat.KindRecipe)
			return
		}

		saved, err := deps.Store.SaveChatMessage(storage.ChatMessage{
			Type:        string(req.Type),
			Sender:      string(req.Sender),
			Content:     req.Content,
			RecipeName:  req.RecipeName,
			Ingredients: req.Ingredients,
			Steps:       req.Steps,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save chat message: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"id":         saved.ID,
			"created_at": saved.CreatedAt,
		})
	}
}

func handleClearChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.ClearChatMessages()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear chat history: %v", err)
			return
		}
		deps.logger().Info("chat history cleared", "deleted", n)
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "deleted": n})
	}
}
