package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisOpTimeout = 3 * time.Second

// RedisStorage backs buckets with Redis for multi-instance deployments
// behind a load balancer. Entries are JSON values under
// "<prefix>:e:<bucket>:<key>", per-bucket key sets under
// "<prefix>:k:<bucket>", and the bucket name set under "<prefix>:buckets".
type RedisStorage struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

type RedisConfig struct {
	URL       string
	Prefix    string
	OpTimeout time.Duration
}

func OpenRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "gateway"
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultRedisOpTimeout
	}
	return &RedisStorage{
		client:    redis.NewClient(opts),
		prefix:    prefix,
		opTimeout: opTimeout,
	}, nil
}

func (r *RedisStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

func (r *RedisStorage) Open(name string) (Bucket, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("storage not initialized")
	}
	if name == "" {
		return nil, errors.New("bucket name is empty")
	}
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.SAdd(ctx, r.prefix+":buckets", name).Err(); err != nil {
		return nil, fmt.Errorf("register bucket: %w", err)
	}
	return &redisBucket{storage: r, name: name}, nil
}

func (r *RedisStorage) Names() ([]string, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}
	ctx, cancel := r.ctx()
	defer cancel()
	names, err := r.client.SMembers(ctx, r.prefix+":buckets").Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStorage) Drop(name string) error {
	if r == nil || r.client == nil {
		return nil
	}
	ctx, cancel := r.ctx()
	defer cancel()

	keySet := r.prefix + ":k:" + name
	keys, err := r.client.SMembers(ctx, keySet).Result()
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, r.prefix+":e:"+name+":"+key)
	}
	pipe.Del(ctx, keySet)
	pipe.SRem(ctx, r.prefix+":buckets", name)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

type redisBucket struct {
	storage *RedisStorage
	name    string
}

func (b *redisBucket) valueKey(key string) string {
	return b.storage.prefix + ":e:" + b.name + ":" + key
}

func (b *redisBucket) keySet() string {
	return b.storage.prefix + ":k:" + b.name
}

func (b *redisBucket) Get(key string) (Entry, bool) {
	ctx, cancel := b.storage.ctx()
	defer cancel()
	data, err := b.storage.client.Get(ctx, b.valueKey(key)).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (b *redisBucket) Put(key string, entry Entry) error {
	if key == "" {
		return errors.New("cache key is empty")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	ctx, cancel := b.storage.ctx()
	defer cancel()
	pipe := b.storage.client.TxPipeline()
	pipe.Set(ctx, b.valueKey(key), data, 0)
	pipe.SAdd(ctx, b.keySet(), key)
	_, err = pipe.Exec(ctx)
	return err
}

func (b *redisBucket) Delete(key string) error {
	ctx, cancel := b.storage.ctx()
	defer cancel()
	pipe := b.storage.client.TxPipeline()
	pipe.Del(ctx, b.valueKey(key))
	pipe.SRem(ctx, b.keySet(), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *redisBucket) Keys() ([]string, error) {
	ctx, cancel := b.storage.ctx()
	defer cancel()
	keys, err := b.storage.client.SMembers(ctx, b.keySet()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *redisBucket) Len() (int, error) {
	ctx, cancel := b.storage.ctx()
	defer cancel()
	count, err := b.storage.client.SCard(ctx, b.keySet()).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
