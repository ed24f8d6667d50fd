package strategy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"offline_gateway/internal/cache"
)

const DefaultFetchTimeout = 8 * time.Second

// Fetcher performs one network attempt against the origin. The gateway's
// forwarder implements it; tests swap in fakes.
type Fetcher interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

type Outcome string

const (
	OutcomeNetwork       Outcome = "network"
	OutcomeCacheHit      Outcome = "cache_hit"
	OutcomeCacheFallback Outcome = "cache_fallback"
	OutcomeOffline       Outcome = "offline_fallback"
	OutcomeMiss          Outcome = "miss"
)

// Result describes how a strategy answered one request, for access logging
// and metrics.
type Result struct {
	Outcome Outcome
	Status  int
	Stored  bool
}

// fetch runs one bounded network attempt and buffers the body so the
// response can be both cached and replayed to the client. Non-nil error
// means the network failed outright; a non-2xx response is not an error.
func fetch(ctx context.Context, fetcher Fetcher, req *http.Request, timeout time.Duration) (*bufferedResponse, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := fetcher.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}
	return &bufferedResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

type bufferedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *bufferedResponse) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r *bufferedResponse) entry(now time.Time) cache.Entry {
	return cache.Entry{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     append([]byte(nil), r.Body...),
		StoredAt: now,
	}
}

func (r *bufferedResponse) write(w http.ResponseWriter) {
	copyHeader(w.Header(), r.Header)
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

func writeEntry(w http.ResponseWriter, entry cache.Entry) {
	copyHeader(w.Header(), entry.Header)
	w.Header().Set("X-Cache", "HIT")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

func copyHeader(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
}
