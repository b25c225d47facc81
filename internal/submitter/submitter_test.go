package submitter

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/coordinator"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/objectstore"
	"storefront/internal/pipeline"
	"storefront/internal/preparer"
	"storefront/internal/repository"
	"storefront/internal/testutil"
)

const bucket = "storefront-media"

var fixedNow = time.Unix(1718000000, 0)

type recordedRun struct {
	kind    string
	success bool
	late    int
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (r *fakeRecorder) RecordRun(kind string, _ time.Duration, success bool, late int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, recordedRun{kind, success, late})
}

func (r *fakeRecorder) snapshot() []recordedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRun(nil), r.runs...)
}

type env struct {
	store    *objectstore.MemoryStore
	bus      *events.Bus
	repo     *repository.Repository
	activity *metrics.Logger
	recorder *fakeRecorder
	api      *fakeAPI
	sub      *Submitter
}

func newEnv(t *testing.T, tweak func(*Config)) *env {
	t.Helper()
	database, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	e := &env{
		store:    objectstore.NewMemoryStore(),
		bus:      events.NewBus(8, logging.Discard()),
		repo:     repository.New(database),
		activity: metrics.New(database),
		recorder: &fakeRecorder{},
		api:      newFakeAPI(),
	}
	cfg := Config{
		Store:            e.store,
		Bucket:           bucket,
		API:              e.api,
		OperationTimeout: 5 * time.Second,
		Events:           e.bus,
		Activity:         e.activity,
		Recorder:         e.recorder,
		Queue:            e.repo,
		Logger:           logging.Discard(),
		Now:              func() time.Time { return fixedNow },
	}
	if tweak != nil {
		tweak(&cfg)
	}
	sub, err := New(cfg)
	require.NoError(t, err)
	e.sub = sub
	return e
}

func (e *env) subscribe(t *testing.T, name string) <-chan events.Event {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := e.bus.Subscribe(ctx, name)
	require.NoError(t, err)
	return ch
}

func waitEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return events.Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan events.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitDrained[T any](t *testing.T, run *coordinator.Run[T]) {
	t.Helper()
	select {
	case <-run.Drained():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not drain")
	}
}

// prepareThree normalizes three large photos the way an edit session would.
func prepareThree(t *testing.T) []*pipeline.NormalizedAsset {
	t.Helper()
	p, err := preparer.New(preparer.Config{Options: pipeline.DefaultOptions(), Logger: logging.Discard()})
	require.NoError(t, err)

	raws := []preparer.RawImage{
		{Data: testutil.GenerateTestImage(t, "jpeg", 1600, 1200), MIME: "image/jpeg"},
		{Data: testutil.GenerateOrientedJPEG(t, 1200, 900, 6), MIME: "image/jpeg"},
		{Data: testutil.GenerateTestImage(t, "png", 960, 640), MIME: "image/png"},
	}
	results := p.PrepareAll(context.Background(), []string{"a.jpg", "b.jpg", "c.png"}, raws)

	assets := make([]*pipeline.NormalizedAsset, len(results))
	for i, r := range results {
		require.NoError(t, r.Err)
		require.LessOrEqual(t, r.Asset.Width, 480)
		assets[i] = r.Asset
	}
	return assets
}

func countPuts(store *objectstore.MemoryStore, fail func(key string) bool) *atomic.Int32 {
	var puts atomic.Int32
	store.SetFault(func(op, _, key string) error {
		if op != "put" {
			return nil
		}
		puts.Add(1)
		if fail != nil && fail(key) {
			return errors.New("connection reset")
		}
		return nil
	})
	return &puts
}

func TestUploadPhotos_ThreeSucceed(t *testing.T) {
	e := newEnv(t, nil)
	assets := prepareThree(t)
	puts := countPuts(e.store, nil)
	ready := e.subscribe(t, events.PhotosReady("s1"))

	var calls atomic.Int32
	outcome := make(chan coordinator.Outcome[string], 1)
	run, err := e.sub.UploadPhotos(context.Background(), PhotoBatch{
		SessionID: "s1", OwnerID: "u42", Category: "shoes", Assets: assets,
	}, func(out coordinator.Outcome[string]) {
		calls.Add(1)
		outcome <- out
	})
	require.NoError(t, err)

	out := <-outcome
	waitDrained(t, run)

	want := []string{
		"media/shoes/u42_1718000000_1.png",
		"media/shoes/u42_1718000000_2.png",
		"media/shoes/u42_1718000000_3.png",
	}
	require.True(t, out.Success)
	assert.Equal(t, want, out.Payload)
	assert.Equal(t, int32(3), puts.Load())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, want, e.store.Keys(bucket))
	assert.Equal(t, "image/jpeg", e.store.ContentType(bucket, want[0]))

	ev := waitEvent(t, ready)
	assert.True(t, ev.Success)
	assert.Equal(t, want, ev.Data)
	assertNoEvent(t, ready)

	require.Eventually(t, func() bool { return len(e.recorder.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, recordedRun{"photos_upload", true, 0}, e.recorder.snapshot()[0])
}

func TestUploadPhotos_SecondPutFails(t *testing.T) {
	e := newEnv(t, nil)
	assets := prepareThree(t)
	puts := countPuts(e.store, func(key string) bool { return strings.HasSuffix(key, "_2.png") })
	ready := e.subscribe(t, events.PhotosReady("s1"))

	var calls atomic.Int32
	outcome := make(chan coordinator.Outcome[string], 2)
	run, err := e.sub.UploadPhotos(context.Background(), PhotoBatch{
		SessionID: "s1", OwnerID: "u42", Category: "shoes", Assets: assets,
	}, func(out coordinator.Outcome[string]) {
		calls.Add(1)
		outcome <- out
	})
	require.NoError(t, err)

	out := <-outcome
	waitDrained(t, run)

	require.False(t, out.Success)
	assert.Nil(t, out.Payload)
	var se *objectstore.StorageError
	require.True(t, errors.As(out.Err, &se))
	assert.True(t, errors.Is(out.Err, objectstore.ErrStorageWrite))
	assert.Contains(t, out.Err.Error(), "upload photo 2")

	assert.Equal(t, int32(3), puts.Load())
	assert.Equal(t, int32(1), calls.Load())

	states := []coordinator.State{}
	for _, r := range run.Results() {
		states = append(states, r.State)
	}
	assert.Equal(t, []coordinator.State{coordinator.Succeeded, coordinator.Failed, coordinator.Succeeded}, states)

	ev := waitEvent(t, ready)
	assert.False(t, ev.Success)
	assert.Contains(t, ev.Error, "connection reset")
	assertNoEvent(t, ready)

	// no compensation by default
	assert.Equal(t, []string{
		"media/shoes/u42_1718000000_1.png",
		"media/shoes/u42_1718000000_3.png",
	}, e.store.Keys(bucket))

	require.Eventually(t, func() bool {
		stats, err := e.activity.GetStats(context.Background())
		return err == nil && stats.Last7Days.Failures == 1
	}, time.Second, 10*time.Millisecond)
}

func TestUploadPhotos_Compensation(t *testing.T) {
	e := newEnv(t, func(c *Config) { c.CompensateOnFailure = true })
	assets := prepareThree(t)
	countPuts(e.store, func(key string) bool { return strings.HasSuffix(key, "_2.png") })

	run, err := e.sub.UploadPhotos(context.Background(), PhotoBatch{
		SessionID: "s1", OwnerID: "u42", Category: "shoes", Assets: assets,
	}, nil)
	require.NoError(t, err)
	waitDrained(t, run)

	require.Eventually(t, func() bool { return len(e.store.Keys(bucket)) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestUploadPhotos_CompensationKeepsCommittedKeys(t *testing.T) {
	e := newEnv(t, func(c *Config) { c.CompensateOnFailure = true })
	ctx := context.Background()
	committed := "media/shoes/u42_1718000000_1.png"
	require.NoError(t, e.store.Put(ctx, bucket, committed, []byte("old"), "image/png"))
	assets := prepareThree(t)
	countPuts(e.store, func(key string) bool { return strings.HasSuffix(key, "_2.png") })

	// same second as the committed set, so the first key collides
	run, err := e.sub.UploadPhotos(ctx, PhotoBatch{
		SessionID: "s1", OwnerID: "u42", Category: "shoes", Assets: assets,
		Committed: []string{committed},
	}, nil)
	require.NoError(t, err)
	waitDrained(t, run)

	require.Eventually(t, func() bool {
		return !slices.Contains(e.store.Keys(bucket), "media/shoes/u42_1718000000_3.png")
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{committed}, e.store.Keys(bucket))
}

func TestUploadPhotos_Validation(t *testing.T) {
	e := newEnv(t, nil)
	asset := &pipeline.NormalizedAsset{Data: []byte{1}, MIME: "image/jpeg"}

	_, err := e.sub.UploadPhotos(context.Background(), PhotoBatch{SessionID: "s"}, nil)
	assert.True(t, errors.Is(err, ErrEmptyBatchInput))

	_, err = e.sub.UploadPhotos(context.Background(), PhotoBatch{Assets: []*pipeline.NormalizedAsset{asset, asset, asset, asset, asset}}, nil)
	assert.True(t, errors.Is(err, ErrTooManyAssets))

	_, err = e.sub.UploadPhotos(context.Background(), PhotoBatch{Assets: []*pipeline.NormalizedAsset{asset, nil}}, nil)
	assert.True(t, errors.Is(err, ErrEmptyBatchInput))

	assert.Empty(t, e.store.Keys(bucket))
}

func TestReplacePhotos_DeletesSuperseded(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	old := []string{"media/shoes/u42_1700000000_1.png", "media/shoes/u42_1700000000_2.png"}
	for _, k := range old {
		require.NoError(t, e.store.Put(ctx, bucket, k, []byte("old"), "image/jpeg"))
	}
	deleted := e.subscribe(t, events.PhotosDeleted("s1"))

	asset := &pipeline.NormalizedAsset{Data: []byte("new"), MIME: "image/jpeg"}
	outcome := make(chan coordinator.Outcome[string], 1)
	_, err := e.sub.ReplacePhotos(ctx, PhotoBatch{SessionID: "s1", OwnerID: "u42", Category: "shoes",
		Assets: []*pipeline.NormalizedAsset{asset}}, old, func(out coordinator.Outcome[string]) { outcome <- out })
	require.NoError(t, err)

	out := <-outcome
	require.True(t, out.Success)

	ev := waitEvent(t, deleted)
	assert.True(t, ev.Success)
	assert.ElementsMatch(t, old, ev.Data)
	assert.Equal(t, []string{"media/shoes/u42_1718000000_1.png"}, e.store.Keys(bucket))
}

func TestReplacePhotos_FailedUploadKeepsOldPhotos(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	old := "media/shoes/u42_1700000000_1.png"
	require.NoError(t, e.store.Put(ctx, bucket, old, []byte("old"), "image/jpeg"))
	countPuts(e.store, func(string) bool { return true })

	asset := &pipeline.NormalizedAsset{Data: []byte("new"), MIME: "image/jpeg"}
	run, err := e.sub.ReplacePhotos(ctx, PhotoBatch{SessionID: "s1", OwnerID: "u42", Category: "shoes",
		Assets: []*pipeline.NormalizedAsset{asset}}, []string{old}, nil)
	require.NoError(t, err)
	waitDrained(t, run)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{old}, e.store.Keys(bucket))
}

func TestDeletePhotos_FailuresAreQueued(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	keys := []string{"media/a/1.png", "media/a/2.png"}
	for _, k := range keys {
		require.NoError(t, e.store.Put(ctx, bucket, k, []byte("x"), "image/png"))
	}
	e.store.SetFault(func(op, _, key string) error {
		if op == "delete" && key == "media/a/2.png" {
			return errors.New("throttled")
		}
		return nil
	})

	outcome := make(chan coordinator.Outcome[string], 1)
	run := e.sub.DeletePhotos(ctx, "s1", keys, func(out coordinator.Outcome[string]) { outcome <- out })
	out := <-outcome
	waitDrained(t, run)

	require.False(t, out.Success)
	assert.True(t, errors.Is(out.Err, objectstore.ErrStorageDelete))

	n, err := e.repo.PendingDeleteCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	due, err := e.repo.DueDeletes(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "media/a/2.png", due[0].Key)
}

func TestDeletePhotos_Empty(t *testing.T) {
	e := newEnv(t, nil)
	var got *coordinator.Outcome[string]
	e.sub.DeletePhotos(context.Background(), "s1", nil, func(out coordinator.Outcome[string]) { got = &out })
	require.NotNil(t, got, "zero-length batch must resolve before returning")
	assert.True(t, got.Success)
	assert.Empty(t, got.Payload)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = New(Config{Store: objectstore.NewMemoryStore()})
	assert.Error(t, err)
}
