package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/codec"
	"storefront/internal/session"
)

// SaveDraft upserts s. Asset bytes travel inside their presentation URLs.
func (r *Repository) SaveDraft(ctx context.Context, s session.EditSession) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", s.ID, err)
	}
	now := sqlTime(r.now())
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO drafts (id, owner_id, category, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   category = excluded.category,
		   body = excluded.body,
		   updated_at = excluded.updated_at`,
		s.ID, s.OwnerID, s.Category, string(body), now, now)
	if err != nil {
		return fmt.Errorf("save draft %s: %w", s.ID, err)
	}
	return nil
}

// LoadDraft reads draft id back. Slots whose asset no longer resolves to
// image data are dropped and the rest compacted; pending and failed slots
// do not survive a reload.
func (r *Repository) LoadDraft(ctx context.Context, id string) (*session.EditSession, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM drafts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}

	var s session.EditSession
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}

	slots := make([]session.AssetSlot, 0, len(s.Slots))
	for _, sl := range s.Slots {
		if sl.Status != session.SlotReady || sl.Asset == nil || !codec.LooksLikeImageData(sl.Asset.URL) {
			continue
		}
		data, err := codec.DataURIToBytes(sl.Asset.URL)
		if err != nil {
			continue
		}
		asset := *sl.Asset
		asset.Data = data
		sl.Asset = &asset
		sl.Index = len(slots)
		slots = append(slots, sl)
	}
	s.Slots = slots
	if s.PhotoKeys == nil {
		s.PhotoKeys = []string{}
	}
	return &s, nil
}

// DeleteDraft removes draft id. Deleting a missing draft is not an error.
func (r *Repository) DeleteDraft(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}

// DeleteDraftsBefore removes drafts not updated since cutoff.
func (r *Repository) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, sqlTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete expired drafts: %w", err)
	}
	return res.RowsAffected()
}

// ListDraftIDs returns the draft IDs of owner, most recently updated first.
func (r *Repository) ListDraftIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM drafts WHERE owner_id = ? ORDER BY updated_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
