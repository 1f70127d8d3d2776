package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/chef"
)

func handleAIChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		if deps.Chef == nil {
			assistantError(w, deps, chef.ErrNoModel)
			return
		}
		reply, err := deps.Chef.Reply(r.Context(), req)
		if err != nil {
			assistantError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, chat.ChatReply{Reply: reply})
	}
}

func handleGenerateRecipe(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.RecipeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if deps.Chef == nil {
			assistantError(w, deps, chef.ErrNoModel)
			return
		}
		if req.VegetableName == "" && deps.Profile != nil {
			req.VegetableName = deps.Profile.VegetableName()
		}

		recipe, err := deps.Chef.Recipe(r.Context(), req)
		if err != nil {
			assistantError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, recipe)
	}
}

func assistantError(w http.ResponseWriter, deps AppDeps, err error) {
	if errors.Is(err, chef.ErrNoModel) {
		httpError(w, http.StatusServiceUnavailable, "service_unavailable", "assistant unavailable: %v", err)
		return
	}
	deps.logger().Warn("assistant request failed", "error", err)
	httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
}
