package handler

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Sessions int    `json:"sessions"`
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Database: "ok", Sessions: h.sessions.Len()}
	status := http.StatusOK
	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			h.log.WithError(err).Warn("HTTP: health check failed")
			resp.Status = "unhealthy"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// Stats returns submission activity for the last 7 and 30 days.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "activity log disabled"})
		return
	}
	stats, err := h.activity.GetStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
