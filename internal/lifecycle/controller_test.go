package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"offline_gateway/internal/cache"
)

// pathFetcher answers per-path bodies and fails paths listed in broken.
type pathFetcher struct {
	bodies map[string]string
	broken map[string]bool
}

func (f *pathFetcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	if f.broken[path] {
		return nil, errors.New("connection refused")
	}
	body, ok := f.bodies[path]
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}, nil
}

func testConfig(storage cache.Storage, fetcher *pathFetcher) Config {
	return Config{
		Storage:           storage,
		Fetcher:           fetcher,
		StaticBucketName:  "churchtv-static-v2",
		DynamicBucketName: "churchtv-dynamic-v2",
		PreservePrefixes:  []string{"churchtv-offline-"},
		CriticalResources: []string{"/", "/offline.html", "/assets/js/main.js"},
	}
}

func TestInstallPrecachesAllCriticalResources(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	fetcher := &pathFetcher{bodies: map[string]string{
		"/":                  "<html>shell</html>",
		"/offline.html":      "<html>offline</html>",
		"/assets/js/main.js": "console.log('app')",
	}}
	c := NewController(testConfig(storage, fetcher))

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if c.State() != StateInstalled {
		t.Fatalf("state = %s, want installed", c.State())
	}

	bucket, _ := storage.Open("churchtv-static-v2")
	for path, want := range fetcher.bodies {
		entry, ok := bucket.Get(cache.PathKey(http.MethodGet, path, ""))
		if !ok {
			t.Fatalf("%s not precached", path)
		}
		if string(entry.Body) != want {
			t.Fatalf("%s body = %s", path, entry.Body)
		}
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	fetcher := &pathFetcher{
		bodies: map[string]string{"/": "<html></html>", "/offline.html": "x"},
		broken: map[string]bool{"/assets/js/main.js": true},
	}
	c := NewController(testConfig(storage, fetcher))

	err := c.Install(context.Background())
	if err == nil {
		t.Fatal("install should fail when a critical fetch fails")
	}
	if !strings.Contains(err.Error(), "/assets/js/main.js") {
		t.Fatalf("error should name the failing resource: %v", err)
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %s, want failed", c.State())
	}

	// No partial precache: the two successful fetches were never committed.
	bucket, _ := storage.Open("churchtv-static-v2")
	if n, _ := bucket.Len(); n != 0 {
		t.Fatalf("static bucket holds %d entries after failed install, want 0", n)
	}
}

func TestInstallFailsOnNon2xxCritical(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	fetcher := &pathFetcher{bodies: map[string]string{"/": "ok", "/offline.html": "ok"}}
	c := NewController(testConfig(storage, fetcher)) // /assets/js/main.js answers 404

	if err := c.Install(context.Background()); err == nil {
		t.Fatal("a 404 critical resource should fail install")
	}
}

func TestActivateDropsStaleVersionsAndPreservesVideos(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	for _, name := range []string{"churchtv-static-v1", "churchtv-dynamic-v1", "churchtv-offline-videos"} {
		bucket, _ := storage.Open(name)
		_ = bucket.Put("k", cache.Entry{Status: 200, Body: []byte("old")})
	}
	fetcher := &pathFetcher{bodies: map[string]string{
		"/": "x", "/offline.html": "x", "/assets/js/main.js": "x",
	}}
	c := NewController(testConfig(storage, fetcher))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !c.Active() {
		t.Fatalf("state = %s, want active", c.State())
	}

	names, _ := storage.Names()
	got := map[string]bool{}
	for _, name := range names {
		got[name] = true
	}
	if got["churchtv-static-v1"] || got["churchtv-dynamic-v1"] {
		t.Fatalf("stale buckets survive activation: %v", names)
	}
	if !got["churchtv-offline-videos"] {
		t.Fatalf("pinned video bucket deleted during activation: %v", names)
	}
	if !got["churchtv-static-v2"] {
		t.Fatalf("current static bucket missing: %v", names)
	}
}

func TestActivateRequiresInstalledState(t *testing.T) {
	c := NewController(testConfig(cache.NewMemoryStorage(0), &pathFetcher{}))
	if err := c.Activate(context.Background()); err == nil {
		t.Fatal("activate before install must fail")
	}
}

func TestTransitionCallbackObservesEveryState(t *testing.T) {
	storage := cache.NewMemoryStorage(0)
	fetcher := &pathFetcher{bodies: map[string]string{
		"/": "x", "/offline.html": "x", "/assets/js/main.js": "x",
	}}
	cfg := testConfig(storage, fetcher)
	var seen []State
	cfg.OnTransition = func(s State) { seen = append(seen, s) }
	c := NewController(cfg)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []State{StateInstalling, StateInstalled, StateActivating, StateActive}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestNilControllerIsNeverActive(t *testing.T) {
	var c *Controller
	if c.Active() {
		t.Fatal("nil controller reports active")
	}
}
