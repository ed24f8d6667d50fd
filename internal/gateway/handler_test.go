package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"offline_gateway/internal/cache"
	"offline_gateway/internal/classify"
	"offline_gateway/internal/lifecycle"
	"offline_gateway/internal/strategy"
	"offline_gateway/internal/syncq"
	"offline_gateway/internal/testutil"
	"offline_gateway/internal/transport"
)

type fixture struct {
	handler  *Handler
	upstream *testutil.CountingUpstream
	static   cache.Bucket
	dynamic  cache.Bucket
}

// newFixture wires a full gateway against a real upstream, with the
// lifecycle already driven to active.
func newFixture(t *testing.T, origin http.HandlerFunc) *fixture {
	t.Helper()
	upstream := testutil.StartCountingUpstream(t, origin)

	forwarder, err := NewForwarder(upstream.URL(), transport.DefaultOptions())
	if err != nil {
		t.Fatalf("forwarder: %v", err)
	}

	storage := cache.NewMemoryStorage(0)
	static, _ := storage.Open("churchtv-static-v1")
	dynamic, _ := storage.Open("churchtv-dynamic-v1")

	classifier := classify.NewClassifier(classify.Config{
		CriticalResources: []string{"/", "/offline.html"},
	})

	controller := lifecycle.NewController(lifecycle.Config{
		Storage:           storage,
		Fetcher:           forwarder,
		StaticBucketName:  "churchtv-static-v1",
		DynamicBucketName: "churchtv-dynamic-v1",
		PreservePrefixes:  []string{"churchtv-offline-"},
		CriticalResources: []string{"/", "/offline.html"},
	})
	if err := controller.Run(context.Background()); err != nil {
		t.Fatalf("lifecycle: %v", err)
	}

	queue, err := syncq.Open(t.TempDir() + "/queue")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	h := &Handler{
		Classifier: classifier,
		Lifecycle:  controller,
		Forwarder:  forwarder,
		NetworkFirst: &strategy.NetworkFirst{
			Fetcher:           forwarder,
			Bucket:            dynamic,
			CacheablePatterns: []*regexp.Regexp{regexp.MustCompile(`^/api/`)},
			Timeout:           2 * time.Second,
		},
		CacheFirst: &strategy.CacheFirst{
			Fetcher: forwarder,
			Lookup:  []cache.Bucket{static, dynamic},
			Store:   dynamic,
			Timeout: 2 * time.Second,
		},
		Navigation: &strategy.NavigationFallback{
			Fetcher:    forwarder,
			Lookup:     []cache.Bucket{static},
			OfflineDoc: "/offline.html",
			Timeout:    2 * time.Second,
		},
		Queue:        queue,
		FetchTimeout: 2 * time.Second,
	}
	return &fixture{handler: h, upstream: upstream, static: static, dynamic: dynamic}
}

func defaultOrigin(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/videos":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"v1"}]}`))
	case r.URL.Path == "/offline.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>offline shell</html>"))
	case strings.HasSuffix(r.URL.Path, ".css"):
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{margin:0}"))
	default:
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>page</html>"))
	}
}

func TestAPIServedLiveThenFromCacheWhenOffline(t *testing.T) {
	f := newFixture(t, defaultOrigin)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("live status = %d", rec.Code)
	}
	live := rec.Body.String()

	f.upstream.SetDown(true)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("offline status = %d", rec.Code)
	}
	if rec.Body.String() != live {
		t.Fatalf("cached response differs from live: %s", rec.Body.String())
	}
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Fatal("cache fallback not marked")
	}
}

func TestUncachedAPIOfflineGetsJSONEnvelope(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	f.upstream.SetDown(true)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/never-fetched", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    []any  `json:"data"`
		Offline bool   `json:"offline"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("offline fallback is not valid JSON: %v", err)
	}
	if envelope.Success || !envelope.Offline || envelope.Data == nil || len(envelope.Data) != 0 {
		t.Fatalf("envelope = %+v", envelope)
	}
	if envelope.Message != strategy.OfflineMessage {
		t.Fatalf("message = %q", envelope.Message)
	}
}

func TestStaticAssetCachedOnFirstFetch(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	before := f.upstream.Count()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.css", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
		if rec.Body.String() != "body{margin:0}" {
			t.Fatalf("request %d body = %s", i, rec.Body.String())
		}
	}

	if got := f.upstream.Count() - before; got != 1 {
		t.Fatalf("upstream saw %d asset fetches, want 1", got)
	}
}

func TestNavigationOfflineServesPrecachedShell(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	f.upstream.SetDown(true)

	req := httptest.NewRequest(http.MethodGet, "/watch/sermon-42", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "<html>offline shell</html>" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestFailedPostToAPIIsQueued(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	f.upstream.SetDown(true)

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(`{"text":"amen"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var envelope struct {
		Offline bool  `json:"offline"`
		Queued  *bool `json:"queued"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Offline || envelope.Queued == nil || !*envelope.Queued {
		t.Fatalf("envelope = %+v", envelope)
	}

	actions, err := f.handler.Queue.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("queued %d actions, want 1", len(actions))
	}
	if actions[0].Method != http.MethodPost || actions[0].URL != "/api/comments" {
		t.Fatalf("queued action = %+v", actions[0])
	}
	if string(actions[0].Body) != `{"text":"amen"}` {
		t.Fatalf("queued body = %s", actions[0].Body)
	}
}

func TestLargePostStreamsThroughIntact(t *testing.T) {
	var received atomic.Int64
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		n, err := io.Copy(io.Discard, r.Body)
		if err != nil {
			t.Errorf("origin read: %v", err)
		}
		received.Store(n)
		w.WriteHeader(http.StatusOK)
	})

	payload := bytes.Repeat([]byte("x"), 3<<20)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := received.Load(); got != int64(len(payload)) {
		t.Fatalf("origin received %d bytes, want %d", got, len(payload))
	}
}

func TestLargePostOfflineIsNotQueued(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	f.upstream.SetDown(true)

	payload := bytes.Repeat([]byte("x"), 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if n, _ := f.handler.Queue.Len(); n != 0 {
		t.Fatalf("oversized action queued, len = %d", n)
	}
}

func TestFailedPostOutsideAPIIsNotQueued(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	f.upstream.SetDown(true)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("data"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if n, _ := f.handler.Queue.Len(); n != 0 {
		t.Fatalf("non-API action queued, len = %d", n)
	}
}

func TestInactiveLifecycleForwardsEverything(t *testing.T) {
	upstream := testutil.StartCountingUpstream(t, defaultOrigin)
	forwarder, err := NewForwarder(upstream.URL(), transport.DefaultOptions())
	if err != nil {
		t.Fatalf("forwarder: %v", err)
	}

	// Controller never ran, so state stays installing.
	controller := lifecycle.NewController(lifecycle.Config{
		Storage: cache.NewMemoryStorage(0),
		Fetcher: forwarder,
	})
	h := &Handler{
		Classifier:   classify.NewClassifier(classify.Config{}),
		Lifecycle:    controller,
		Forwarder:    forwarder,
		FetchTimeout: 2 * time.Second,
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Cache") == "HIT" {
		t.Fatal("request intercepted before activation")
	}
	if upstream.Count() != 1 {
		t.Fatalf("upstream count = %d, want 1", upstream.Count())
	}
}

func TestPrecachedShellServedWithoutNetwork(t *testing.T) {
	f := newFixture(t, defaultOrigin)
	before := f.upstream.Count()
	f.upstream.SetDown(true)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "<html>page</html>" {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if f.upstream.Count() != before {
		t.Fatal("precached critical resource hit the network")
	}
}
