package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/events"
)

// StreamEvents sends the terminal events of a session's submissions as
// server-sent events until the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.bus == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "event stream disabled"})
		return
	}
	if _, err := h.lookup(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	ctx := r.Context()
	merged := make(chan events.Event)
	for _, name := range []string{
		events.PhotosReady(id),
		events.PhotosDeleted(id),
		events.ShippingUpdate(id),
		events.VariantsPosted(id),
	} {
		ch, err := h.bus.Subscribe(ctx, name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		go func() {
			for ev := range ch {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-merged:
			body, err := json.Marshal(ev)
			if err != nil {
				h.log.WithError(err).WithField("event", ev.Name).Warn("HTTP: failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, body); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
