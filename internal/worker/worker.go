// Package worker retries object deletes that failed inside a batch.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/objectstore"
	"storefront/internal/repository"
)

// Queue is the persistent pending-delete queue.
type Queue interface {
	DueDeletes(ctx context.Context, limit, maxAttempts int) ([]repository.PendingDelete, error)
	MarkDeleteDone(ctx context.Context, id int64) error
	MarkDeleteFailed(ctx context.Context, id int64, cause string, backoff time.Duration) error
}

// Worker drains the pending-delete queue against the object store.
type Worker struct {
	queue   Queue
	store   objectstore.Store
	cfg     config.WorkerConfig
	log     logrus.FieldLogger
	trigger chan struct{}
	wg      sync.WaitGroup
}

func NewWorker(queue Queue, store objectstore.Store, cfg config.WorkerConfig, logger logrus.FieldLogger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if logger == nil {
		logger = logrus.WithField("component", "worker")
	}
	return &Worker{
		queue:   queue,
		store:   store,
		cfg:     cfg,
		log:     logger,
		trigger: make(chan struct{}, 1),
	}
}

// Start runs the worker loop in a goroutine until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Worker: started delete retry queue")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.log.Info("Worker: context cancelled, stopping loop")
				return
			case <-ticker.C:
				w.ProcessBatch(ctx)
			case <-w.trigger:
				w.ProcessBatch(ctx)
			}
		}
	}()
}

// Stop waits for the loop to exit.
func (w *Worker) Stop() {
	w.wg.Wait()
	w.log.Info("Worker: stopped")
}

// TriggerSignal wakes the worker without waiting for the next tick.
func (w *Worker) TriggerSignal() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// ProcessBatch retries one batch of due deletes and returns how many
// succeeded.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	due, err := w.queue.DueDeletes(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		w.log.WithError(err).Error("Worker: failed to read queue")
		return 0
	}

	done := 0
	for _, p := range due {
		if ctx.Err() != nil {
			return done
		}
		fields := logrus.Fields{"bucket": p.Bucket, "key": p.Key, "attempt": p.Attempts + 1}

		if err := w.store.Delete(ctx, p.Bucket, p.Key); err != nil {
			w.log.WithFields(fields).WithError(err).Warn("Worker: delete retry failed")
			if mErr := w.queue.MarkDeleteFailed(ctx, p.ID, err.Error(), Backoff(w.cfg.Interval, p.Attempts+1)); mErr != nil {
				w.log.WithError(mErr).Error("Worker: failed to reschedule delete")
			}
			continue
		}

		if err := w.queue.MarkDeleteDone(ctx, p.ID); err != nil {
			w.log.WithError(err).Error("Worker: failed to clear delete")
			continue
		}
		w.log.WithFields(fields).Info("Worker: object deleted")
		done++
	}
	return done
}

// Backoff doubles base per attempt, capped at one day.
func Backoff(base time.Duration, attempts int) time.Duration {
	const ceiling = 24 * time.Hour
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// Enqueuer persists a delete that failed.
type Enqueuer interface {
	EnqueueDelete(ctx context.Context, bucket, key, cause string) error
}

type wakingQueue struct {
	Enqueuer
	w *Worker
}

func (q wakingQueue) EnqueueDelete(ctx context.Context, bucket, key, cause string) error {
	if err := q.Enqueuer.EnqueueDelete(ctx, bucket, key, cause); err != nil {
		return err
	}
	q.w.TriggerSignal()
	return nil
}

// WakeOnEnqueue wraps q so every queued delete gets its first retry right
// away instead of at the next tick.
func (w *Worker) WakeOnEnqueue(q Enqueuer) Enqueuer {
	return wakingQueue{Enqueuer: q, w: w}
}
