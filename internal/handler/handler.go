// Package handler is the HTTP surface of the storefront: edit sessions,
// photo preparation and the batch submissions that commit them.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"storefront/internal/api"
	"storefront/internal/codec"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/objectstore"
	"storefront/internal/pipeline"
	"storefront/internal/preparer"
	"storefront/internal/repository"
	"storefront/internal/session"
	"storefront/internal/submitter"
)

// Deps are the collaborators of the handler. Activity and Recorder are
// optional.
type Deps struct {
	Config    config.Config
	Repo      *repository.Repository
	Sessions  *session.Registry
	Preparer  *preparer.Preparer
	Submitter *submitter.Submitter
	Bus       *events.Bus
	Activity  *metrics.Logger
	Recorder  *metrics.Recorder
	Logger    logrus.FieldLogger
}

type Handler struct {
	cfg       config.Config
	repo      *repository.Repository
	sessions  *session.Registry
	preparer  *preparer.Preparer
	submitter *submitter.Submitter
	bus       *events.Bus
	activity  *metrics.Logger
	recorder  *metrics.Recorder
	validate  *validator.Validate
	log       logrus.FieldLogger
}

func New(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = logrus.WithField("component", "http")
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = session.NewRegistry()
	}
	return &Handler{
		cfg:       d.Config,
		repo:      d.Repo,
		sessions:  sessions,
		preparer:  d.Preparer,
		submitter: d.Submitter,
		bus:       d.Bus,
		activity:  d.Activity,
		recorder:  d.Recorder,
		validate:  validator.New(),
		log:       log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	var (
		apiErr *api.APIError
		verr   validator.ValidationErrors
	)
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrSlotNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrDecode),
		errors.Is(err, codec.ErrMalformedEncoding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, submitter.ErrEmptyBatchInput),
		errors.Is(err, submitter.ErrTooManyAssets),
		errors.Is(err, session.ErrSlotsFull),
		errors.Is(err, errBadRequest),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, objectstore.ErrStorageWrite),
		errors.Is(err, objectstore.ErrStorageRead),
		errors.Is(err, objectstore.ErrStorageDelete),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, submitter.ErrNoAPI):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= 500 {
		entry.Error("HTTP: request failed")
	} else {
		entry.Debug("HTTP: request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return h.validate.Struct(v)
}

// submitTimeout bounds how long a request waits for a batch to resolve. The
// batch itself keeps running past it.
func (h *Handler) submitTimeout() time.Duration {
	d := h.cfg.Submit.OperationTimeout
	if d <= 0 {
		d = time.Minute
	}
	return d + 5*time.Second
}

func await[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
