package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/api"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/objectstore"
	"storefront/internal/pipeline"
	"storefront/internal/preparer"
	"storefront/internal/repository"
	"storefront/internal/session"
	"storefront/internal/submitter"
	"storefront/internal/testutil"
)

const testBucket = "storefront-media"

// remote is a minimal in-memory listing API.
type remote struct {
	mu       sync.Mutex
	methods  map[string]session.ShippingMethod
	variants []session.VariantGroup
	nextID   int
}

func newRemote(t *testing.T) (*remote, *httptest.Server) {
	t.Helper()
	rm := &remote{methods: map[string]session.ShippingMethod{}}

	r := chi.NewRouter()
	r.Post("/shippingMethods", func(w http.ResponseWriter, r *http.Request) {
		var m session.ShippingMethod
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rm.mu.Lock()
		rm.nextID++
		m.ID = fmt.Sprintf("ship-%d", rm.nextID)
		rm.methods[m.ID] = m
		rm.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(m)
	})
	r.Patch("/shippingMethods/{id}", func(w http.ResponseWriter, r *http.Request) {
		var m session.ShippingMethod
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m.ID = chi.URLParam(r, "id")
		rm.mu.Lock()
		rm.methods[m.ID] = m
		rm.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m)
	})
	r.Delete("/shippingMethods/{id}", func(w http.ResponseWriter, r *http.Request) {
		rm.mu.Lock()
		delete(rm.methods, chi.URLParam(r, "id"))
		rm.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/variants", func(w http.ResponseWriter, r *http.Request) {
		var g session.VariantGroup
		if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rm.mu.Lock()
		rm.variants = append(rm.variants, g)
		id := fmt.Sprintf("var-%d", len(rm.variants))
		rm.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return rm, srv
}

func (rm *remote) methodCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.methods)
}

type testEnv struct {
	handler *Handler
	server  *httptest.Server
	store   *objectstore.MemoryStore
	repo    *repository.Repository
	remote  *remote
	deps    Deps
}

type envOptions struct {
	noAPI   bool
	limiter *middleware.RateLimiter
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	database, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	cfg := config.Config{
		Server: config.ServerConfig{MaxUploadBytes: 50 << 20},
		Submit: config.SubmitConfig{OperationTimeout: 5 * time.Second},
	}
	store := objectstore.NewMemoryStore()
	repo := repository.New(database)
	bus := events.NewBus(8, logging.Discard())
	recorder, err := metrics.NewRecorder(nil)
	require.NoError(t, err)

	prep, err := preparer.New(preparer.Config{
		Options:     pipeline.DefaultOptions(),
		Concurrency: 2,
		Logger:      logging.Discard(),
		Observer:    recorder,
	})
	require.NoError(t, err)

	// each batch gets its own second so keys never collide between submits
	var tick atomic.Int64
	subCfg := submitter.Config{
		Store:            store,
		Bucket:           testBucket,
		OperationTimeout: cfg.Submit.OperationTimeout,
		Events:           bus,
		Activity:         metrics.New(database),
		Recorder:         recorder,
		Queue:            repo,
		Logger:           logging.Discard(),
		Now: func() time.Time {
			return time.Unix(1718000000+tick.Add(1), 0)
		},
	}

	env := &testEnv{store: store, repo: repo}
	if !opts.noAPI {
		rm, srv := newRemote(t)
		client, err := api.New(api.Options{BaseURL: srv.URL, Timeout: 5 * time.Second, Logger: logging.Discard()})
		require.NoError(t, err)
		subCfg.API = client
		env.remote = rm
	}
	sub, err := submitter.New(subCfg)
	require.NoError(t, err)

	env.deps = Deps{
		Config:    cfg,
		Repo:      repo,
		Sessions:  session.NewRegistry(),
		Preparer:  prep,
		Submitter: sub,
		Bus:       bus,
		Activity:  metrics.New(database),
		Recorder:  recorder,
		Logger:    logging.Discard(),
	}
	env.handler = New(env.deps)
	env.server = httptest.NewServer(env.handler.Routes(opts.limiter))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) upload(t *testing.T, id string, files map[string][]byte, order ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := mw.CreateFormFile("photos", name)
		require.NoError(t, err)
		_, err = part.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/sessions/"+id+"/photos", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) createSession(t *testing.T) session.EditSession {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/sessions", map[string]string{"owner_id": "u42", "category": "shoes"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[session.EditSession](t, resp)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[healthResponse](t, resp)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Database)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "go_goroutines")
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	s := env.createSession(t)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "u42", s.OwnerID)
	assert.Empty(t, s.Slots)

	resp := env.do(t, http.MethodGet, "/sessions/"+s.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[session.EditSession](t, resp)
	assert.Equal(t, s.ID, got.ID)

	resp = env.do(t, http.MethodGet, "/owners/u42/drafts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	drafts := decode[map[string][]string](t, resp)
	assert.Equal(t, []string{s.ID}, drafts["drafts"])
}

func TestCreateSession_Validation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodPost, "/sessions", map[string]string{"category": "shoes"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions", map[string]string{"owner_id": "u1", "category": "shoes", "color": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSession_Unknown(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, http.MethodGet, "/sessions/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Contains(t, body.Error, "not found")
}

func TestDiscardSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	resp := env.do(t, http.MethodDelete, "/sessions/"+s.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/sessions/"+s.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddPhotos(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	files := map[string][]byte{
		"front.jpg": testutil.GenerateTestImage(t, "jpeg", 960, 720),
		"side.png":  testutil.GenerateTestImage(t, "png", 300, 200),
	}
	resp := env.upload(t, s.ID, files, "front.jpg", "side.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[addPhotosResponse](t, resp)
	require.Len(t, body.Results, 2)
	assert.Empty(t, body.Results[0].Error)
	assert.Empty(t, body.Results[1].Error)

	require.Len(t, body.Session.Slots, 2)
	for i, sl := range body.Session.Slots {
		assert.Equal(t, i, sl.Index)
		assert.Equal(t, session.SlotReady, sl.Status)
		require.NotNil(t, sl.Asset)
		assert.LessOrEqual(t, sl.Asset.Width, pipeline.DefaultMaxWidth)
		assert.True(t, strings.HasPrefix(sl.Asset.URL, "data:image/jpeg;base64,"))
	}
	assert.Equal(t, 480, body.Session.Slots[0].Asset.Width)
	assert.Equal(t, 360, body.Session.Slots[0].Asset.Height)
	assert.Equal(t, 300, body.Session.Slots[1].Asset.Width)
}

func TestAddPhotos_OneBadFileFailsItsSlotOnly(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	files := map[string][]byte{
		"good.jpg":  testutil.GenerateTestImage(t, "jpeg", 200, 100),
		"notes.txt": []byte("definitely not a photo"),
	}
	resp := env.upload(t, s.ID, files, "notes.txt", "good.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[addPhotosResponse](t, resp)
	assert.NotEmpty(t, body.Results[0].Error)
	assert.Empty(t, body.Results[1].Error)
	require.Len(t, body.Session.Slots, 2)
	assert.Equal(t, session.SlotFailed, body.Session.Slots[0].Status)
	assert.Equal(t, session.SlotReady, body.Session.Slots[1].Status)
}

func TestAddPhotos_NothingDecodable(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	resp := env.upload(t, s.ID, map[string][]byte{"a.bin": []byte("garbage")}, "a.bin")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAddPhotos_TooMany(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	img := testutil.GenerateTestImage(t, "jpeg", 64, 64)
	files := map[string][]byte{}
	var order []string
	for i := range session.MaxSlots + 1 {
		name := fmt.Sprintf("p%d.jpg", i)
		files[name] = img
		order = append(order, name)
	}
	resp := env.upload(t, s.ID, files, order...)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	got := decode[session.EditSession](t, env.do(t, http.MethodGet, "/sessions/"+s.ID, nil))
	assert.Empty(t, got.Slots)
}

func TestRemoveSlot(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	img := testutil.GenerateTestImage(t, "jpeg", 64, 64)
	resp := env.upload(t, s.ID, map[string][]byte{"a.jpg": img, "b.jpg": img, "c.jpg": img}, "a.jpg", "b.jpg", "c.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/sessions/"+s.ID+"/slots/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[session.EditSession](t, resp)
	require.Len(t, got.Slots, 2)
	assert.Equal(t, "a.jpg", got.Slots[0].Name)
	assert.Equal(t, "c.jpg", got.Slots[1].Name)
	assert.Equal(t, 1, got.Slots[1].Index)

	resp = env.do(t, http.MethodDelete, "/sessions/"+s.ID+"/slots/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/sessions/"+s.ID+"/slots/x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitPhotos_ReplacesPreviousCommit(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	img := testutil.GenerateTestImage(t, "jpeg", 640, 480)
	resp := env.upload(t, s.ID, map[string][]byte{"a.jpg": img, "b.jpg": img}, "a.jpg", "b.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions/"+s.ID+"/photos/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[submitPhotosResponse](t, resp)
	require.Len(t, first.Keys, 2)
	assert.Equal(t, first.Keys, first.Session.PhotoKeys)
	assert.ElementsMatch(t, first.Keys, env.store.Keys(testBucket))
	for _, k := range first.Keys {
		assert.True(t, strings.HasPrefix(k, "media/shoes/u42_"), k)
	}

	resp = env.do(t, http.MethodDelete, "/sessions/"+s.ID+"/slots/0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/sessions/"+s.ID+"/photos/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[submitPhotosResponse](t, resp)
	require.Len(t, second.Keys, 1)
	assert.NotContains(t, first.Keys, second.Keys[0])

	require.Eventually(t, func() bool {
		keys := env.store.Keys(testBucket)
		return len(keys) == 1 && keys[0] == second.Keys[0]
	}, 2*time.Second, 10*time.Millisecond)

	draft, err := env.repo.LoadDraft(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Keys, draft.PhotoKeys)
}

func TestSubmitPhotos_EmptyBatch(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+s.ID+"/photos/submit", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitPhotos_StorageFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	img := testutil.GenerateTestImage(t, "jpeg", 64, 64)
	resp := env.upload(t, s.ID, map[string][]byte{"a.jpg": img}, "a.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.store.SetFault(func(op, _, _ string) error {
		if op == "put" {
			return errors.New("disk full")
		}
		return nil
	})

	resp = env.do(t, http.MethodPost, "/sessions/"+s.ID+"/photos/submit", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	got := decode[session.EditSession](t, env.do(t, http.MethodGet, "/sessions/"+s.ID, nil))
	assert.Empty(t, got.PhotoKeys)
	assert.Equal(t, session.SlotReady, got.Slots[0].Status)
}

func TestSyncShipping(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	state := session.ShippingState{
		Standard: &session.ShippingMethod{Carrier: "DHL", PriceCents: 499, Currency: "EUR", MinDays: 2, MaxDays: 4},
	}
	resp := env.do(t, http.MethodPut, "/sessions/"+s.ID+"/shipping", state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[shippingResponse](t, resp)
	require.Len(t, body.Changes, 1)
	assert.Equal(t, submitter.OpCreate, body.Changes[0].Kind)
	require.NotNil(t, body.Session.ShippingSaved.Standard)
	assert.Equal(t, "ship-1", body.Session.ShippingSaved.Standard.ID)
	assert.Equal(t, 1, env.remote.methodCount())

	// unchanged selection resolves without remote calls
	resp = env.do(t, http.MethodPut, "/sessions/"+s.ID+"/shipping", state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[shippingResponse](t, resp)
	assert.Empty(t, body.Changes)

	resp = env.do(t, http.MethodPut, "/sessions/"+s.ID+"/shipping", session.ShippingState{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[shippingResponse](t, resp)
	require.Len(t, body.Changes, 1)
	assert.Equal(t, submitter.OpDelete, body.Changes[0].Kind)
	assert.Nil(t, body.Session.ShippingSaved.Standard)
	assert.Equal(t, 0, env.remote.methodCount())
}

func TestSyncShipping_Validation(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	state := session.ShippingState{
		Pickup: &session.ShippingMethod{Carrier: "Store", Currency: "EURO"},
	}
	resp := env.do(t, http.MethodPut, "/sessions/"+s.ID+"/shipping", state)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, env.remote.methodCount())
}

func TestSyncShipping_NoAPI(t *testing.T) {
	env := newTestEnv(t, envOptions{noAPI: true})
	s := env.createSession(t)

	state := session.ShippingState{
		Standard: &session.ShippingMethod{Carrier: "DHL", Currency: "EUR"},
	}
	resp := env.do(t, http.MethodPut, "/sessions/"+s.ID+"/shipping", state)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSubmitVariants(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	req := variantsRequest{Groups: []session.VariantGroup{
		{Name: " Size ", Options: []string{"S", "M", "m", " "}},
		{Name: "size", Options: []string{"XL"}},
		{Name: "Color", Options: []string{}},
	}}
	resp := env.do(t, http.MethodPost, "/sessions/"+s.ID+"/variants", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[variantsResponse](t, resp)
	assert.Equal(t, []string{"var-1"}, body.IDs)
	assert.Equal(t, []session.VariantGroup{{Name: "Size", Options: []string{"S", "M"}}}, body.Session.Variants)
	assert.Equal(t, []string{"var-1"}, body.Session.VariantIDs)
}

func TestSessionResumesFromDraft(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	img := testutil.GenerateTestImage(t, "jpeg", 64, 64)
	resp := env.upload(t, s.ID, map[string][]byte{"bad.txt": []byte("nope"), "a.jpg": img}, "bad.txt", "a.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// a fresh process: same database, empty registry
	deps := env.deps
	deps.Sessions = session.NewRegistry()
	srv := httptest.NewServer(New(deps).Routes(nil))
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/sessions/" + s.ID)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[session.EditSession](t, res)
	require.Len(t, got.Slots, 1)
	assert.Equal(t, 0, got.Slots[0].Index)
	assert.Equal(t, "a.jpg", got.Slots[0].Name)
	assert.Equal(t, 1, deps.Sessions.Len())
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	resp := env.do(t, http.MethodPost, "/sessions/"+s.ID+"/variants", variantsRequest{Groups: []session.VariantGroup{{Name: "Size", Options: []string{"S"}}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp := env.do(t, http.MethodGet, "/stats", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		stats := decode[metrics.Stats](t, resp)
		return stats.Last7Days.VariantPosts == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1, Logger: logging.Discard()})
	env := newTestEnv(t, envOptions{limiter: limiter})

	resp := env.do(t, http.MethodGet, "/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/sessions/nope", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// health stays reachable for load balancers
	resp = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	s := env.createSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/sessions/"+s.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return env.deps.Bus.Subscribers(events.VariantsPosted(s.ID)) == 1
	}, time.Second, 10*time.Millisecond)

	r := env.do(t, http.MethodPost, "/sessions/"+s.ID+"/variants", variantsRequest{Groups: []session.VariantGroup{{Name: "Size", Options: []string{"S"}}}})
	require.Equal(t, http.StatusOK, r.StatusCode)

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	chunk := string(buf[:n])
	assert.Contains(t, chunk, "event: "+events.VariantsPosted(s.ID))
	assert.Contains(t, chunk, `"success":true`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", repository.ErrNotFound), http.StatusNotFound},
		{pipeline.ErrNotAnImage, http.StatusUnprocessableEntity},
		{submitter.ErrEmptyBatchInput, http.StatusBadRequest},
		{session.ErrSlotsFull, http.StatusBadRequest},
		{&objectstore.StorageError{Op: "put", Bucket: "b", Key: "k", Err: errors.New("boom")}, http.StatusBadGateway},
		{&api.APIError{Method: "POST", Path: "/variants", StatusCode: 500}, http.StatusBadGateway},
		{submitter.ErrNoAPI, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
