package handlers

import (
	"context"
	"net/http"
	"time"
)

// BackendPinger reports whether the appointments backend answers.
type BackendPinger interface {
	Health(ctx context.Context) error
}

type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// Health always answers 200 while the process is up; a backend outage is
// reported in the body so the dashboard can show it.
func Health(backend BackendPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Backend: "unknown"}
		if backend != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := backend.Health(ctx); err != nil {
				resp.Backend = "unreachable"
			} else {
				resp.Backend = "ok"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
