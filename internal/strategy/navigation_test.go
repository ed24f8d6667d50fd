package strategy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"offline_gateway/internal/cache"
)

func navRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://tv.example.org/watch/live", nil)
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	return r
}

func TestNavigationPassesLiveResponseThrough(t *testing.T) {
	fetcher := &fakeFetcher{
		header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		body:   []byte("<html>live</html>"),
	}
	bucket := newBucket(t)
	s := &NavigationFallback{Fetcher: fetcher, Lookup: []cache.Bucket{bucket}, OfflineDoc: "/offline.html", Timeout: time.Second}

	rec := httptest.NewRecorder()
	result := s.Serve(rec, navRequest())

	if result.Outcome != OutcomeNetwork {
		t.Fatalf("outcome = %s, want network", result.Outcome)
	}
	if rec.Body.String() != "<html>live</html>" {
		t.Fatalf("body = %s", rec.Body.String())
	}
	// Navigations are never written to the cache.
	if n, _ := bucket.Len(); n != 0 {
		t.Fatalf("navigation stored %d entries, want 0", n)
	}
}

func TestNavigationFallsBackToPrecachedDocument(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.down.Store(true)
	bucket := newBucket(t)
	_ = bucket.Put(cache.PathKey(http.MethodGet, "/offline.html", ""), cache.Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte("<html>precached offline</html>"),
	})
	s := &NavigationFallback{Fetcher: fetcher, Lookup: []cache.Bucket{bucket}, OfflineDoc: "/offline.html", Timeout: time.Second}

	rec := httptest.NewRecorder()
	result := s.Serve(rec, navRequest())

	if result.Outcome != OutcomeCacheFallback {
		t.Fatalf("outcome = %s, want cache_fallback", result.Outcome)
	}
	if rec.Body.String() != "<html>precached offline</html>" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestNavigationSynthesizesPageWhenCacheEmpty(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.down.Store(true)
	s := &NavigationFallback{Fetcher: fetcher, Lookup: []cache.Bucket{newBucket(t)}, OfflineDoc: "/offline.html", Timeout: time.Second}

	rec := httptest.NewRecorder()
	result := s.Serve(rec, navRequest())

	if result.Outcome != OutcomeOffline {
		t.Fatalf("outcome = %s, want offline_fallback", result.Outcome)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %s, want text/html", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "offline") {
		t.Fatalf("synthesized page missing offline notice: %s", body)
	}
	if !strings.Contains(body, "location.reload()") {
		t.Fatal("synthesized page missing retry control")
	}
}

func TestNavigationNon2xxServedAsIs(t *testing.T) {
	fetcher := &fakeFetcher{status: http.StatusInternalServerError, body: []byte("boom")}
	s := &NavigationFallback{Fetcher: fetcher, Lookup: []cache.Bucket{newBucket(t)}, OfflineDoc: "/offline.html"}

	rec := httptest.NewRecorder()
	result := s.Serve(rec, navRequest())

	if result.Outcome != OutcomeNetwork || rec.Code != http.StatusInternalServerError {
		t.Fatalf("result = %+v code = %d", result, rec.Code)
	}
}
