package strategy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"offline_gateway/internal/cache"
)

type fakeFetcher struct {
	calls  atomic.Int32
	down   atomic.Bool
	status int
	header http.Header
	body   []byte
}

func (f *fakeFetcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	header := http.Header{}
	for name, values := range f.header {
		header[name] = append([]string(nil), values...)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(f.body)),
	}, nil
}

func (f *fakeFetcher) Count() int {
	return int(f.calls.Load())
}

func newBucket(t *testing.T) cache.Bucket {
	t.Helper()
	bucket, err := cache.NewMemoryStorage(0).Open("test")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	return bucket
}
