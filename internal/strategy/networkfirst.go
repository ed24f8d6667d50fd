package strategy

import (
	"net/http"
	"regexp"
	"time"

	"offline_gateway/internal/cache"
)

// NetworkFirst always prefers a live origin response for API requests and
// falls back to the dynamic cache, then to a synthesized offline envelope.
// Only GET endpoints matching one of the cacheable patterns are written
// back to the cache; personalized endpoints stay uncached.
type NetworkFirst struct {
	Fetcher           Fetcher
	Bucket            cache.Bucket
	CacheablePatterns []*regexp.Regexp
	Timeout           time.Duration
	Now               func() time.Time
}

func (s *NetworkFirst) Serve(w http.ResponseWriter, r *http.Request) Result {
	key := cache.Key(r)

	resp, err := fetch(r.Context(), s.Fetcher, r, s.Timeout)
	if err == nil {
		stored := false
		if resp.ok() && r.Method == http.MethodGet && s.cacheable(r) && s.Bucket != nil {
			// Caching is best effort; the live response wins either way.
			if putErr := s.Bucket.Put(key, resp.entry(s.now())); putErr == nil {
				stored = true
			}
		}
		resp.write(w)
		return Result{Outcome: OutcomeNetwork, Status: resp.Status, Stored: stored}
	}

	if s.Bucket != nil {
		if entry, ok := s.Bucket.Get(key); ok {
			// Staleness is lenient here: an old entry beats no content.
			writeEntry(w, entry)
			return Result{Outcome: OutcomeCacheFallback, Status: entry.Status}
		}
	}

	writeOfflineJSON(w, nil)
	return Result{Outcome: OutcomeOffline, Status: http.StatusOK}
}

func (s *NetworkFirst) cacheable(r *http.Request) bool {
	if len(s.CacheablePatterns) == 0 {
		return false
	}
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	for _, pattern := range s.CacheablePatterns {
		if pattern != nil && pattern.MatchString(target) {
			return true
		}
	}
	return false
}

func (s *NetworkFirst) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
