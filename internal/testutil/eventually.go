package testutil

import (
	"testing"
	"time"
)

// Eventually polls fn until it returns nil or the timeout elapses.
func Eventually(t *testing.T, timeout, interval time.Duration, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		err := fn()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %v", err)
		}
		time.Sleep(interval)
	}
}
