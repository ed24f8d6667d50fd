package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// DiskStorage keeps buckets in a single leveldb database so cached
// responses and precached shell assets survive process restarts. Record
// keys are "e|<bucket>|<key>"; bucket existence is tracked under
// "n|<bucket>" so empty buckets survive too.
type DiskStorage struct {
	db             *leveldb.DB
	maxObjectBytes int64
}

func OpenDiskStorage(path string, maxObjectBytes int64) (*DiskStorage, error) {
	if path == "" {
		return nil, errors.New("disk storage path is empty")
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &DiskStorage{db: db, maxObjectBytes: maxObjectBytes}, nil
}

func (d *DiskStorage) Open(name string) (Bucket, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("storage not initialized")
	}
	if name == "" || strings.Contains(name, "|") {
		return nil, fmt.Errorf("invalid bucket name %q", name)
	}
	if err := d.db.Put([]byte("n|"+name), []byte{1}, nil); err != nil {
		return nil, fmt.Errorf("register bucket: %w", err)
	}
	return &diskBucket{storage: d, name: name}, nil
}

func (d *DiskStorage) Names() ([]string, error) {
	if d == nil || d.db == nil {
		return nil, nil
	}
	iter := d.db.NewIterator(util.BytesPrefix([]byte("n|")), nil)
	defer iter.Release()

	var names []string
	for iter.Next() {
		names = append(names, string(iter.Key()[len("n|"):]))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (d *DiskStorage) Drop(name string) error {
	if d == nil || d.db == nil {
		return nil
	}
	batch := new(leveldb.Batch)
	iter := d.db.NewIterator(util.BytesPrefix([]byte("e|"+name+"|")), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	batch.Delete([]byte("n|" + name))
	return d.db.Write(batch, nil)
}

func (d *DiskStorage) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

type diskBucket struct {
	storage *DiskStorage
	name    string
}

func (b *diskBucket) recordKey(key string) []byte {
	return []byte("e|" + b.name + "|" + key)
}

func (b *diskBucket) Get(key string) (Entry, bool) {
	data, err := b.storage.db.Get(b.recordKey(key), nil)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		// Undecodable records are dropped rather than served corrupted.
		_ = b.storage.db.Delete(b.recordKey(key), nil)
		return Entry{}, false
	}
	return entry, true
}

func (b *diskBucket) Put(key string, entry Entry) error {
	if key == "" {
		return errors.New("cache key is empty")
	}
	if b.storage.maxObjectBytes > 0 && int64(len(entry.Body)) > b.storage.maxObjectBytes {
		return errors.New("cache entry exceeds max object bytes")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return b.storage.db.Put(b.recordKey(key), buf.Bytes(), nil)
}

func (b *diskBucket) Delete(key string) error {
	return b.storage.db.Delete(b.recordKey(key), nil)
}

func (b *diskBucket) Keys() ([]string, error) {
	prefix := "e|" + b.name + "|"
	iter := b.storage.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *diskBucket) Len() (int, error) {
	keys, err := b.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
