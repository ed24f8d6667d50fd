package cache

import (
	"errors"
	"sort"
	"sync"
)

const DefaultMaxObjectBytes int64 = 50 * 1024 * 1024

type MemoryStorage struct {
	mu             sync.RWMutex
	buckets        map[string]*memoryBucket
	maxObjectBytes int64
}

func NewMemoryStorage(maxObjectBytes int64) *MemoryStorage {
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	return &MemoryStorage{
		buckets:        make(map[string]*memoryBucket),
		maxObjectBytes: maxObjectBytes,
	}
}

func (m *MemoryStorage) Open(name string) (Bucket, error) {
	if m == nil {
		return nil, errors.New("storage not initialized")
	}
	if name == "" {
		return nil, errors.New("bucket name is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.buckets[name]
	if !ok {
		bucket = &memoryBucket{
			entries:        make(map[string]Entry),
			maxObjectBytes: m.maxObjectBytes,
		}
		m.buckets[name] = bucket
	}
	return bucket, nil
}

func (m *MemoryStorage) Names() ([]string, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.RLock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStorage) Drop(name string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.buckets, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

type memoryBucket struct {
	mu             sync.RWMutex
	entries        map[string]Entry
	maxObjectBytes int64
}

func (b *memoryBucket) Get(key string) (Entry, bool) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	return entry.Clone(), true
}

func (b *memoryBucket) Put(key string, entry Entry) error {
	if key == "" {
		return errors.New("cache key is empty")
	}
	if b.maxObjectBytes > 0 && int64(len(entry.Body)) > b.maxObjectBytes {
		return errors.New("cache entry exceeds max object bytes")
	}
	stored := entry.Clone()
	b.mu.Lock()
	b.entries[key] = stored
	b.mu.Unlock()
	return nil
}

func (b *memoryBucket) Delete(key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

func (b *memoryBucket) Keys() ([]string, error) {
	b.mu.RLock()
	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (b *memoryBucket) Len() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}
