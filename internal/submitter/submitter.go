// Package submitter turns edits of a listing into batches of remote
// operations against the object store and the REST API. Every batch runs as
// one coordinator run: it resolves once, success when every operation
// succeeded, failure on the first error. Resolutions are published on the
// event bus, written to the activity log and recorded as metrics.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/coordinator"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/objectstore"
	"storefront/internal/session"
)

var (
	ErrEmptyBatchInput = errors.New("batch needs at least one asset")
	ErrTooManyAssets   = fmt.Errorf("batch holds at most %d assets", session.MaxSlots)
	ErrNoAPI           = errors.New("no REST API client configured")
)

// API is the REST boundary.
type API interface {
	CreateShippingMethod(ctx context.Context, listingID string, m session.ShippingMethod) (session.ShippingMethod, error)
	UpdateShippingMethod(ctx context.Context, listingID string, m session.ShippingMethod) (session.ShippingMethod, error)
	DeleteShippingMethod(ctx context.Context, id string) error
	CreateVariant(ctx context.Context, listingID string, g session.VariantGroup) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type ActivityLog interface {
	LogEvent(ctx context.Context, a metrics.Activity) error
}

type RunRecorder interface {
	RecordRun(kind string, d time.Duration, success bool, late int)
}

// DeleteQueue persists deletes that failed so they can be retried later.
type DeleteQueue interface {
	EnqueueDelete(ctx context.Context, bucket, key, cause string) error
}

type Config struct {
	Store  objectstore.Store
	Bucket string
	API    API

	// OperationTimeout bounds each remote call; zero means no bound.
	OperationTimeout time.Duration
	// CompensateOnFailure deletes the photos a failed upload batch did
	// write, once every put of the batch has reported.
	CompensateOnFailure bool

	Events   Publisher
	Activity ActivityLog
	Recorder RunRecorder
	Queue    DeleteQueue
	Logger   logrus.FieldLogger
	Now      func() time.Time
}

type Submitter struct {
	cfg Config
	log logrus.FieldLogger
}

func New(cfg Config) (*Submitter, error) {
	if cfg.Store == nil {
		return nil, errors.New("submitter: object store is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("submitter: bucket is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("component", "submitter")
	}
	return &Submitter{cfg: cfg, log: log}, nil
}

func (s *Submitter) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// batch describes one run for reporting.
type batch struct {
	kind      metrics.EventType
	sessionID string
	event     string
	items     int
}

// launch issues ops as one coordinator run. resolve is invoked once with the
// outcome and returns the data published with the event.
func launch[T any](ctx context.Context, s *Submitter, b batch, ops []coordinator.Op[T], resolve func(coordinator.Outcome[T]) any) *coordinator.Run[T] {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	resolvedAfter := make(chan time.Duration, 1)

	run := coordinator.Execute(ctx, ops, func(out coordinator.Outcome[T]) {
		resolvedAfter <- time.Since(start)
		var data any
		if resolve != nil {
			data = resolve(out)
		}
		s.report(ctx, b, out.Success, out.Err, data)
	})

	go func() {
		<-run.Drained()
		d := <-resolvedAfter
		late := run.Late()
		if late > 0 {
			s.log.WithFields(logrus.Fields{
				"kind":    b.kind,
				"session": b.sessionID,
				"late":    late,
			}).Info("Submitter: operations finished after the batch failed")
		}
		if s.cfg.Recorder != nil {
			s.cfg.Recorder.RecordRun(string(b.kind), d, run.Err() == nil, late)
		}
	}()
	return run
}

func (s *Submitter) report(ctx context.Context, b batch, success bool, err error, data any) {
	fields := logrus.Fields{"kind": b.kind, "session": b.sessionID, "items": b.items}
	ev := events.Event{Name: b.event, Success: success}
	act := metrics.Activity{Type: b.kind, SessionID: b.sessionID, Success: success, Items: b.items}
	if success {
		ev.Data = data
		s.log.WithFields(fields).Info("Submitter: batch succeeded")
	} else {
		ev.Error = err.Error()
		act.Detail = err.Error()
		s.log.WithFields(fields).WithError(err).Warn("Submitter: batch failed")
	}

	if s.cfg.Events != nil {
		if pErr := s.cfg.Events.Publish(ctx, ev); pErr != nil {
			s.log.WithError(pErr).WithField("event", b.event).Warn("Submitter: publish failed")
		}
	}
	if s.cfg.Activity != nil {
		_ = s.cfg.Activity.LogEvent(ctx, act)
	}
}
