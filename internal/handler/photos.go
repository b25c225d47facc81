package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storefront/internal/codec"
	"storefront/internal/coordinator"
	"storefront/internal/preparer"
	"storefront/internal/session"
	"storefront/internal/submitter"
)

const multipartMemory = 32 << 20

type photoResult struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

type addPhotosResponse struct {
	Session session.EditSession `json:"session"`
	Results []photoResult       `json:"results"`
}

type submitPhotosResponse struct {
	Session session.EditSession `json:"session"`
	Keys    []string            `json:"keys"`
}

// AddPhotos reserves one slot per uploaded "photos" part, normalizes the
// parts concurrently and stores each result in its slot. A photo that
// cannot be decoded fails its own slot only; the request fails with 422
// when none could be prepared.
func (h *Handler) AddPhotos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.lookup(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, r, errors.Join(errBadRequest, fmt.Errorf("parse upload: %w", err)))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: no photos uploaded", errBadRequest))
		return
	}

	names := make([]string, len(files))
	raws := make([]preparer.RawImage, len(files))
	for i, fh := range files {
		raw, err := readPart(fh)
		if err != nil {
			h.writeError(w, r, errors.Join(errBadRequest, err))
			return
		}
		names[i] = fh.Filename
		raws[i] = raw
	}

	var indices []int
	_, err := h.sessions.Update(id, func(s *session.EditSession) error {
		if s.FreeSlots() < len(files) {
			return fmt.Errorf("%w: %d free, %d uploaded", session.ErrSlotsFull, s.FreeSlots(), len(files))
		}
		for _, name := range names {
			i, err := s.AddSlot(name)
			if err != nil {
				return err
			}
			indices = append(indices, i)
		}
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results := h.preparer.PrepareAll(r.Context(), names, raws)

	resp := addPhotosResponse{Results: make([]photoResult, len(results))}
	var firstErr error
	prepared := 0
	snap, err := h.update(r.Context(), id, func(s *session.EditSession) error {
		for k, res := range results {
			i := indices[k]
			// the slot may have moved if the user removed an earlier one meanwhile
			if i >= len(s.Slots) || s.Slots[i].Name != res.Name || s.Slots[i].Status != session.SlotPending {
				continue
			}
			if res.Err != nil {
				_ = s.SetFailed(i, res.Err)
				continue
			}
			_ = s.SetReady(i, res.Asset)
		}
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	for k, res := range results {
		resp.Results[k] = photoResult{Index: indices[k], Name: res.Name}
		if res.Err != nil {
			resp.Results[k].Error = res.Err.Error()
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		prepared++
	}
	resp.Session = snap

	if prepared == 0 {
		h.writeError(w, r, firstErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func readPart(fh *multipart.FileHeader) (preparer.RawImage, error) {
	f, err := fh.Open()
	if err != nil {
		return preparer.RawImage{}, fmt.Errorf("open %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return preparer.RawImage{}, fmt.Errorf("read %q: %w", fh.Filename, err)
	}
	return preparer.RawImage{Data: data, MIME: codec.DetectMIME(data)}, nil
}

// RemoveSlot drops one photo slot; later slots move down.
func (h *Handler) RemoveSlot(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid slot index", errBadRequest))
		return
	}
	snap, err := h.update(r.Context(), chi.URLParam(r, "id"), func(s *session.EditSession) error {
		return s.RemoveSlot(i)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SubmitPhotos uploads the ready photos of the session as one batch and
// commits the new keys once every upload succeeded. Photos of the previous
// commit that are no longer used are deleted afterwards.
func (h *Handler) SubmitPhotos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.lookup(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	assets := snap.ReadyAssets()
	resolved := make(chan coordinator.Outcome[string], 1)
	_, err = h.submitter.ReplacePhotos(r.Context(), submitter.PhotoBatch{
		SessionID: snap.ID,
		OwnerID:   snap.OwnerID,
		Category:  snap.Category,
		Assets:    assets,
		Committed: snap.PhotoKeys,
	}, snap.PhotoKeys, func(out coordinator.Outcome[string]) {
		if out.Success {
			h.commit(id, func(s *session.EditSession) { s.CommitPhotoKeys(assets, out.Payload) })
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
	writeJSON(w, http.StatusOK, submitPhotosResponse{Session: snap, Keys: out.Payload})
}

// commit applies a successful submission to the live session and its draft.
// It runs from a completion callback, possibly after the request is gone.
func (h *Handler) commit(id string, fn func(*session.EditSession)) {
	snap, err := h.sessions.Update(id, func(s *session.EditSession) error {
		fn(s)
		return nil
	})
	if err != nil {
		h.log.WithError(err).WithField("session_id", id).Warn("HTTP: submission finished for a discarded session")
		return
	}
	h.saveDraft(context.Background(), snap)
}
