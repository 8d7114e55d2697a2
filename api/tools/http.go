package tools

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// NewHandler returns an HTTP handler serving the registry via
// POST /api/tools/<name> with the request envelope as the JSON body.
func NewHandler(reg *Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/api/tools/")
		if name == "" || strings.Contains(name, "/") {
			http.Error(w, "missing tool name", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := reg.Invoke(r.Context(), name, body)
		w.Header().Set("Content-Type", "application/json")
		if !res.Success {
			w.WriteHeader(statusFor(res.Error.Kind))
		}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func statusFor(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "parse_failure", "invalid_range":
		return http.StatusBadRequest
	case "state_conflict":
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
