package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// CountingUpstream wraps a handler with an atomic request counter and a
// switch that makes every request fail at the connection level, for
// exercising offline fallback paths.
type CountingUpstream struct {
	server *httptest.Server
	count  atomic.Int32
	down   atomic.Bool
}

func StartCountingUpstream(t *testing.T, handler http.HandlerFunc) *CountingUpstream {
	t.Helper()
	upstream := &CountingUpstream{}
	upstream.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstream.count.Add(1)
		if upstream.down.Load() {
			// Drop the connection so the client sees a network error, not
			// an HTTP status.
			hj, ok := w.(http.Hijacker)
			if !ok {
				panic("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.server.Close)
	return upstream
}

func (u *CountingUpstream) URL() string {
	return u.server.URL
}

func (u *CountingUpstream) Count() int {
	return int(u.count.Load())
}

func (u *CountingUpstream) SetDown(down bool) {
	u.down.Store(down)
}
