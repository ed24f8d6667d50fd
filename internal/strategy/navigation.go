package strategy

import (
	"net/http"
	"time"

	"offline_gateway/internal/cache"
)

// NavigationFallback handles top-level document loads: live responses pass
// through untouched, failures fall back to the precached offline document
// and finally to a synthesized page. Navigations themselves are never
// written to the cache; install-time precache already covers the shell.
type NavigationFallback struct {
	Fetcher    Fetcher
	Lookup     []cache.Bucket
	OfflineDoc string
	Timeout    time.Duration
}

func (s *NavigationFallback) Serve(w http.ResponseWriter, r *http.Request) Result {
	resp, err := fetch(r.Context(), s.Fetcher, r, s.Timeout)
	if err == nil {
		resp.write(w)
		return Result{Outcome: OutcomeNetwork, Status: resp.Status}
	}

	if s.OfflineDoc != "" {
		key := cache.PathKey(http.MethodGet, s.OfflineDoc, "")
		for _, bucket := range s.Lookup {
			if bucket == nil {
				continue
			}
			if entry, ok := bucket.Get(key); ok {
				writeEntry(w, entry)
				return Result{Outcome: OutcomeCacheFallback, Status: entry.Status}
			}
		}
	}

	writeOfflinePage(w)
	return Result{Outcome: OutcomeOffline, Status: http.StatusOK}
}
