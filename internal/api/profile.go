package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/kalambet/resqfreeze/internal/profile"
)

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profile.GetProfile()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if !decodeBody(w, r, &fields) {
			return
		}

		values := make(map[string]any, len(fields))
		for key, raw := range fields {
			if !slices.Contains(profile.ValidKeys(), key) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown profile key %q", key)
				return
			}
			v, err := profileValue(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "field %q: %v", key, err)
				return
			}
			values[key] = v
		}

		for key, v := range values {
			if err := deps.Profile.SetField(key, v); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to set field %q: %v", key, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

// profileValue narrows a decoded JSON value to what profile.Manager accepts.
func profileValue(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list items must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}
