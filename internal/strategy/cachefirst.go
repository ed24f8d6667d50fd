package strategy

import (
	"net/http"
	"time"

	"offline_gateway/internal/cache"
)

// CacheFirst serves static assets from the cache without a network round
// trip when possible. Lookup checks the precached static bucket before the
// dynamic one; fresh fetches land in the dynamic bucket.
type CacheFirst struct {
	Fetcher Fetcher
	Lookup  []cache.Bucket
	Store   cache.Bucket
	Timeout time.Duration
	Now     func() time.Time
}

func (s *CacheFirst) Serve(w http.ResponseWriter, r *http.Request) Result {
	key := cache.Key(r)

	for _, bucket := range s.Lookup {
		if bucket == nil {
			continue
		}
		if entry, ok := bucket.Get(key); ok {
			writeEntry(w, entry)
			return Result{Outcome: OutcomeCacheHit, Status: entry.Status}
		}
	}

	resp, err := fetch(r.Context(), s.Fetcher, r, s.Timeout)
	if err != nil {
		// No cached copy and no network: an empty 404 rather than a hang
		// or a dropped connection. Asset consumers handle 404 themselves.
		w.WriteHeader(http.StatusNotFound)
		return Result{Outcome: OutcomeMiss, Status: http.StatusNotFound}
	}

	stored := false
	if resp.ok() && r.Method == http.MethodGet && s.Store != nil {
		if putErr := s.Store.Put(key, resp.entry(s.now())); putErr == nil {
			stored = true
		}
	}
	resp.write(w)
	return Result{Outcome: OutcomeNetwork, Status: resp.Status, Stored: stored}
}

func (s *CacheFirst) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
