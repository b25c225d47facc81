package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/coordinator"
	"storefront/internal/session"
	"storefront/internal/submitter"
)

type shippingResponse struct {
	Session session.EditSession          `json:"session"`
	Changes []submitter.ShippingChange `json:"changes"`
}

type variantsRequest struct {
	Groups []session.VariantGroup `json:"groups" validate:"max=10,dive"`
}

type variantsResponse struct {
	Session session.EditSession `json:"session"`
	IDs     []string            `json:"ids"`
}

// SyncShipping stores the submitted shipping selection and reconciles it
// with the methods saved remotely. The listing is addressed by session ID.
func (h *Handler) SyncShipping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var current session.ShippingState
	if err := h.decodeJSON(r, &current); err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.update(r.Context(), id, func(s *session.EditSession) error {
		s.Shipping = current.Clone()
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resolved := make(chan submitter.ShippingOutcome, 1)
	_, err = h.submitter.ReconcileShipping(r.Context(), id, id, snap.ShippingSaved, current, func(out submitter.ShippingOutcome) {
		if out.Success {
			h.commit(id, func(s *session.EditSession) { s.CommitShipping(out.Saved) })
		}
		resolved <- out
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.submitTimeout())
	defer cancel()
	out, err := await(ctx, resolved)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !out.Success {
		h.writeError(w, r, out.Err)
		return
	}

	snap, err = h.sessions.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	changes := out.Changes
	if changes == nil {
		changes = []submitter.ShippingChange{}
	}
	writeJSON(w, http.StatusOK, shippingResponse{Session: snap, Changes: changes})
}

// SubmitVariants cleans the submitted variant groups and posts them.
func (h *Handler) SubmitVariants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req variantsRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.lookup(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	groups := session.CleanVariantGroups(req.Groups)
	resolved := make(chan coordinator.Outcome[string], 1)
	_, err := h.submitter.PostVariants(r.Context(), id, id, groups, func(out coordinator.Outcome[string]) {
		if out.Success {
			h.commit(id, func(s *session.EditSession) { s.CommitVariants(groups, out.Payload) })
		}
		resolved <- out
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.submitTimeout())
	defer cancel()
	out, err := await(ctx, resolved)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !out.Success {
		h.writeError(w, r, out.Err)
		return
	}

	snap, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ids := out.Payload
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, variantsResponse{Session: snap, IDs: ids})
}
