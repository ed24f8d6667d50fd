package cache

import (
	"net/http"
	"strings"
	"time"
)

// Entry is one stored response. Entries are immutable once written; a
// re-fetch fully overwrites the previous entry for the same key.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

func (e Entry) Clone() Entry {
	clone := Entry{
		Status:   e.Status,
		Header:   e.Header.Clone(),
		Body:     append([]byte(nil), e.Body...),
		StoredAt: e.StoredAt,
	}
	return clone
}

type Bucket interface {
	Get(key string) (Entry, bool)
	Put(key string, entry Entry) error
	Delete(key string) error
	Keys() ([]string, error)
	Len() (int, error)
}

// Storage is a set of named buckets, the gateway's equivalent of the
// browser CacheStorage: one bucket per cache name, names carrying the
// deployed version.
type Storage interface {
	Open(name string) (Bucket, error)
	Names() ([]string, error)
	Drop(name string) error
	Close() error
}

// DeleteExcept removes every bucket whose name is not in keep, leaving
// buckets that match one of the preserve prefixes alone. Used only during
// activation.
func DeleteExcept(storage Storage, keep []string, preservePrefixes []string) error {
	if storage == nil {
		return nil
	}
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		keepSet[name] = true
	}

	names, err := storage.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if keepSet[name] {
			continue
		}
		if hasAnyPrefix(name, preservePrefixes) {
			continue
		}
		if err := storage.Drop(name); err != nil {
			return err
		}
	}
	return nil
}

// SweepOlderThan deletes entries stored before now-age. A non-nil match
// narrows the sweep to keys it accepts; runtime-cached static assets share
// the dynamic bucket with API entries and carry no TTL, so expiry sweeps
// must not touch them. Best effort: the read path stays lenient about
// stale entries, the sweep only bounds growth.
func SweepOlderThan(bucket Bucket, age time.Duration, now time.Time, match func(key string) bool) (int, error) {
	if bucket == nil || age <= 0 {
		return 0, nil
	}
	keys, err := bucket.Keys()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-age)
	deleted := 0
	for _, key := range keys {
		if match != nil && !match(key) {
			continue
		}
		entry, ok := bucket.Get(key)
		if !ok {
			continue
		}
		if entry.StoredAt.Before(cutoff) {
			if err := bucket.Delete(key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
