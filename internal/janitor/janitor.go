// Package janitor runs periodic cleanup of expired drafts, old activity
// events, exhausted delete retries and orphaned temp files.
package janitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/objectstore"
)

// Drafts is the draft store.
type Drafts interface {
	DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DropExhaustedDeletes(ctx context.Context, maxAttempts int) (int64, error)
}

// Activity is the activity event log.
type Activity interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds janitor configuration. DataDir is empty unless the
// filesystem object store is in use.
type Config struct {
	Drafts         Drafts
	Activity       Activity
	DataDir        string
	Interval       time.Duration
	DraftTTL       time.Duration
	EventRetention time.Duration
	MaxAttempts    int
	TempMaxAge     time.Duration
	Logger         logrus.FieldLogger
}

// Report counts what one cycle removed.
type Report struct {
	Drafts    int64
	Events    int64
	Deletes   int64
	TempFiles int
}

type Janitor struct {
	cfg      Config
	log      logrus.FieldLogger
	now      func() time.Time
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(cfg Config) *Janitor {
	if cfg.Interval == 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.DraftTTL == 0 {
		cfg.DraftTTL = 30 * 24 * time.Hour
	}
	if cfg.EventRetention == 0 {
		cfg.EventRetention = 90 * 24 * time.Hour
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TempMaxAge == 0 {
		cfg.TempMaxAge = 15 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("component", "janitor")
	}
	return &Janitor{
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup scheduler in a goroutine.
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (j *Janitor) Stop() {
	close(j.stopChan)
	<-j.doneChan
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneChan)

	j.RunCleanup(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunCleanup(ctx)
		case <-j.stopChan:
			j.log.Info("Janitor: received stop signal, shutting down")
			return
		case <-ctx.Done():
			j.log.Info("Janitor: context cancelled, shutting down")
			return
		}
	}
}

// RunCleanup executes every cleanup task once. A failing task is logged and
// does not stop the others.
func (j *Janitor) RunCleanup(ctx context.Context) Report {
	start := time.Now()
	now := j.now().UTC()
	var rep Report

	if j.cfg.Drafts != nil {
		n, err := j.cfg.Drafts.DeleteDraftsBefore(ctx, now.Add(-j.cfg.DraftTTL))
		if err != nil {
			j.log.WithError(err).Error("Janitor: failed to delete expired drafts")
		}
		rep.Drafts = n

		n, err = j.cfg.Drafts.DropExhaustedDeletes(ctx, j.cfg.MaxAttempts)
		if err != nil {
			j.log.WithError(err).Error("Janitor: failed to drop exhausted deletes")
		}
		if n > 0 {
			j.log.WithField("count", n).Warn("Janitor: gave up on object deletes")
		}
		rep.Deletes = n
	}

	if j.cfg.Activity != nil {
		n, err := j.cfg.Activity.PruneBefore(ctx, now.Add(-j.cfg.EventRetention))
		if err != nil {
			j.log.WithError(err).Error("Janitor: failed to delete old activity events")
		}
		rep.Events = n
	}

	if j.cfg.DataDir != "" {
		n, err := objectstore.CleanOrphanedTempFiles(j.cfg.DataDir, j.cfg.TempMaxAge)
		if err != nil {
			j.log.WithError(err).Error("Janitor: failed to clean temp files")
		}
		rep.TempFiles = n
	}

	j.log.WithFields(logrus.Fields{
		"drafts":     rep.Drafts,
		"events":     rep.Events,
		"deletes":    rep.Deletes,
		"temp_files": rep.TempFiles,
		"duration":   time.Since(start),
	}).Info("Janitor: cleanup cycle completed")
	return rep
}
