package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storefront/internal/middleware"
)

// Routes builds the router. limiter may be nil to disable rate limiting.
func (h *Handler) Routes(limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health)
	if h.recorder != nil {
		r.Method(http.MethodGet, "/metrics", h.recorder.Handler())
	}

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware())
		}

		r.Get("/stats", h.Stats)
		r.Post("/sessions", h.CreateSession)
		r.Get("/owners/{owner}/drafts", h.ListOwnerDrafts)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DiscardSession)
			r.Post("/photos", h.AddPhotos)
			r.Post("/photos/submit", h.SubmitPhotos)
			r.Delete("/slots/{index}", h.RemoveSlot)
			r.Put("/shipping", h.SyncShipping)
			r.Post("/variants", h.SubmitVariants)
			r.Get("/events", h.StreamEvents)
		})
	})
	return r
}
