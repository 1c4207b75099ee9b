package api

import (
	"context"
	"net/http"
	"time"
)

// HandleHealth handles GET /api/health with a database connectivity check.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"db":     "unreachable",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"db":     "ok",
	})
}
