package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/objectstore"
	"storefront/internal/preparer"
)

var (
	_ objectstore.Observer = (*Recorder)(nil)
	_ preparer.Observer    = (*Recorder)(nil)
)

func TestRecorder(t *testing.T) {
	r, err := NewRecorder(prometheus.NewRegistry())
	require.NoError(t, err)

	r.RecordPut(10*time.Millisecond, 1000, nil)
	r.RecordPut(10*time.Millisecond, 500, errors.New("boom"))
	r.RecordDelete(time.Millisecond, errors.New("gone"))
	r.RecordGet(time.Millisecond, nil)
	r.RecordPrepare(time.Millisecond, true, nil)
	r.RecordPrepare(time.Millisecond, false, errors.New("decode"))
	r.RecordRun("photos_upload", time.Second, false, 2)
	r.RecordRun("photos_upload", time.Second, true, 0)

	assert.Equal(t, 1000.0, testutil.ToFloat64(r.uploadedBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storeErrors.WithLabelValues("put")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storeErrors.WithLabelValues("delete")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.storeErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.prepareErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("photos_upload", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("photos_upload", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.lateReports.WithLabelValues("photos_upload")))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordPut(time.Millisecond, 1, nil)
		r.RecordGet(time.Millisecond, nil)
		r.RecordDelete(time.Millisecond, nil)
		r.RecordPrepare(time.Millisecond, false, nil)
		r.RecordRun("x", time.Millisecond, true, 0)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r, err := NewRecorder(nil)
	require.NoError(t, err)
	r.RecordRun("variants_post", time.Millisecond, true, 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `storefront_submitter_runs_total{kind="variants_post",outcome="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewRecorder_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewRecorder(reg)
	require.NoError(t, err)
	second, err := NewRecorder(reg)
	require.NoError(t, err)

	second.RecordRun("photos_delete", time.Millisecond, true, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.runs.WithLabelValues("photos_delete", "success")))
}
