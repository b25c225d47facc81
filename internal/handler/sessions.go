package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/repository"
	"storefront/internal/session"
)

type createSessionRequest struct {
	OwnerID  string `json:"owner_id" validate:"required,max=64"`
	Category string `json:"category" validate:"required,max=64"`
}

// CreateSession starts an empty edit session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	s := session.New(req.OwnerID, req.Category)
	h.sessions.Add(s)
	snap := s.Snapshot()
	h.saveDraft(r.Context(), snap)

	h.log.WithField("session_id", s.ID).Info("HTTP: session created")
	writeJSON(w, http.StatusCreated, snap)
}

// GetSession returns a session, resuming it from its saved draft when the
// process no longer holds it.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DiscardSession forgets a session and its draft. Committed photos stay.
func (h *Handler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.lookup(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sessions.Remove(id)
	if h.repo != nil {
		if err := h.repo.DeleteDraft(r.Context(), id); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(ctx context.Context, id string) (session.EditSession, error) {
	s, err := h.sessions.Get(id)
	if err == nil || !errors.Is(err, session.ErrNotFound) || h.repo == nil {
		return s, err
	}

	draft, err := h.repo.LoadDraft(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return session.EditSession{}, session.ErrNotFound
		}
		return session.EditSession{}, err
	}
	h.sessions.Add(draft)
	h.log.WithField("session_id", id).Debug("HTTP: session resumed from draft")
	return draft.Snapshot(), nil
}

// update applies fn to session id, resuming it first if needed, and saves
// the draft when fn succeeds.
func (h *Handler) update(ctx context.Context, id string, fn func(*session.EditSession) error) (session.EditSession, error) {
	if _, err := h.lookup(ctx, id); err != nil {
		return session.EditSession{}, err
	}
	s, err := h.sessions.Update(id, fn)
	if err != nil {
		return s, err
	}
	h.saveDraft(ctx, s)
	return s, nil
}

// saveDraft persists s. Failures are logged only; the live session stays
// authoritative.
func (h *Handler) saveDraft(ctx context.Context, s session.EditSession) {
	if h.repo == nil {
		return
	}
	if err := h.repo.SaveDraft(context.WithoutCancel(ctx), s); err != nil {
		h.log.WithError(err).WithField("session_id", s.ID).Warn("HTTP: failed to save draft")
	}
}

// ListOwnerDrafts returns the saved draft IDs of an owner, newest first.
func (h *Handler) ListOwnerDrafts(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusOK, map[string][]string{"drafts": {}})
		return
	}
	ids, err := h.repo.ListDraftIDs(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"drafts": ids})
}
