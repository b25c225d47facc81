package submitter

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"storefront/internal/coordinator"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/objectstore"
	"storefront/internal/pipeline"
	"storefront/internal/session"
)

// PhotoBatch is the set of normalized photos of one listing, in slot order.
type PhotoBatch struct {
	SessionID string
	OwnerID   string
	Category  string
	Assets    []*pipeline.NormalizedAsset
	// Committed holds the keys the session already references. Compensation
	// never deletes them, even when a new key collides with one.
	Committed []string
}

func (b PhotoBatch) validate() error {
	switch {
	case len(b.Assets) == 0:
		return ErrEmptyBatchInput
	case len(b.Assets) > session.MaxSlots:
		return fmt.Errorf("%w: got %d", ErrTooManyAssets, len(b.Assets))
	}
	for i, a := range b.Assets {
		if a == nil || len(a.Data) == 0 {
			return fmt.Errorf("%w: asset %d has no data", ErrEmptyBatchInput, i)
		}
	}
	return nil
}

// UploadPhotos puts every asset under a fresh key. On success done receives
// the keys in slot order; the caller commits them to its session only then.
// On failure the puts already issued still finish; with compensation
// enabled the ones that succeeded are deleted again once all have reported.
func (s *Submitter) UploadPhotos(ctx context.Context, b PhotoBatch, done func(coordinator.Outcome[string])) (*coordinator.Run[string], error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	at := s.cfg.Now()
	ops := make([]coordinator.Op[string], len(b.Assets))
	for i, asset := range b.Assets {
		key := objectstore.PhotoKey(b.Category, b.OwnerID, at, i)
		ops[i] = func(ctx context.Context) (string, error) {
			ctx, cancel := s.opContext(ctx)
			defer cancel()
			if err := s.cfg.Store.Put(ctx, s.cfg.Bucket, key, asset.Data, asset.MIME); err != nil {
				return "", fmt.Errorf("upload photo %d: %w", i+1, err)
			}
			return key, nil
		}
	}

	run := launch(ctx, s, batch{
		kind:      metrics.EventPhotosUpload,
		sessionID: b.SessionID,
		event:     events.PhotosReady(b.SessionID),
		items:     len(ops),
	}, ops, func(out coordinator.Outcome[string]) any {
		if done != nil {
			done(out)
		}
		return out.Payload
	})

	if s.cfg.CompensateOnFailure {
		detached := context.WithoutCancel(ctx)
		go func() {
			<-run.Drained()
			if run.Err() == nil {
				return
			}
			committed := make(map[string]bool, len(b.Committed))
			for _, k := range b.Committed {
				committed[k] = true
			}
			var written []string
			for _, r := range run.Results() {
				if r.State == coordinator.Succeeded && !committed[r.Value] {
					written = append(written, r.Value)
				}
			}
			if len(written) == 0 {
				return
			}
			s.log.WithFields(logrus.Fields{"session": b.SessionID, "count": len(written)}).
				Info("Submitter: removing photos of failed upload")
			for _, key := range written {
				s.deleteKey(detached, key)
			}
		}()
	}
	return run, nil
}

// ReplacePhotos uploads b like UploadPhotos and, after a successful upload
// and after done returned, deletes the superseded keys that are not part of
// the new set. That delete is fire-and-forget: its failures never reverse
// the upload.
func (s *Submitter) ReplacePhotos(ctx context.Context, b PhotoBatch, superseded []string, done func(coordinator.Outcome[string])) (*coordinator.Run[string], error) {
	detached := context.WithoutCancel(ctx)
	return s.UploadPhotos(ctx, b, func(out coordinator.Outcome[string]) {
		if done != nil {
			done(out)
		}
		if !out.Success {
			return
		}
		keep := make(map[string]bool, len(out.Payload))
		for _, k := range out.Payload {
			keep[k] = true
		}
		var stale []string
		for _, k := range superseded {
			if k != "" && !keep[k] {
				stale = append(stale, k)
			}
		}
		if len(stale) > 0 {
			s.DeletePhotos(detached, b.SessionID, stale, nil)
		}
	})
}

// DeletePhotos deletes every key. A failed delete is logged and queued for a
// later retry.
func (s *Submitter) DeletePhotos(ctx context.Context, sessionID string, keys []string, done func(coordinator.Outcome[string])) *coordinator.Run[string] {
	ops := make([]coordinator.Op[string], len(keys))
	for i, key := range keys {
		ops[i] = func(ctx context.Context) (string, error) {
			if err := s.deleteKey(ctx, key); err != nil {
				return "", fmt.Errorf("delete photo %d: %w", i+1, err)
			}
			return key, nil
		}
	}

	return launch(ctx, s, batch{
		kind:      metrics.EventPhotosDelete,
		sessionID: sessionID,
		event:     events.PhotosDeleted(sessionID),
		items:     len(ops),
	}, ops, func(out coordinator.Outcome[string]) any {
		if done != nil {
			done(out)
		}
		return out.Payload
	})
}

func (s *Submitter) deleteKey(ctx context.Context, key string) error {
	opCtx, cancel := s.opContext(ctx)
	err := s.cfg.Store.Delete(opCtx, s.cfg.Bucket, key)
	cancel()
	if err == nil {
		return nil
	}

	s.log.WithError(err).WithField("key", key).Warn("Submitter: photo delete failed")
	if s.cfg.Queue != nil {
		if qErr := s.cfg.Queue.EnqueueDelete(context.WithoutCancel(ctx), s.cfg.Bucket, key, err.Error()); qErr != nil {
			s.log.WithError(qErr).WithField("key", key).Error("Submitter: failed to queue delete retry")
		}
	}
	return err
}
