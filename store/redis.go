package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisStorePrefix is the key prefix used by RedisStore.
const DefaultRedisStorePrefix = "kewtag:"

// RedisStore implements Store using Redis hashes.
//
// Redis Keys Used (per kind):
//   - {prefix}rec:{kind}: hash of id -> encoded record
//   - {prefix}code:{kind}: hash of code -> id, claimed with HSETNX
//   - {prefix}seq:{kind}: INCR counter for ids
//
// Code uniqueness is enforced by HSETNX on the code index. Concurrent
// updates to the same record are last-write-wins.
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	st := store.NewRedisStore(rdb)
type RedisStore struct {
	client redis.UniversalClient
	opts   *storeOptions
	codec  payload.Codec
	prefix string
	closed atomic.Bool
}

// NewRedisStore creates a Redis-backed store. Records are encoded as JSON
// unless WithCodec is given. The client is not closed by Close.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := applyOptions(opts)
	codec := o.codec
	if codec == nil {
		codec = payload.JSON{}
	}
	return &RedisStore{
		client: client,
		opts:   o,
		codec:  codec,
		prefix: DefaultRedisStorePrefix,
	}
}

// WithPrefix sets a custom prefix for Redis keys.
// Returns the store for method chaining.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	s.prefix = prefix
	return s
}

func (s *RedisStore) recKey(kind kewtag.Kind) string  { return s.prefix + "rec:" + string(kind) }
func (s *RedisStore) codeKey(kind kewtag.Kind) string { return s.prefix + "code:" + string(kind) }
func (s *RedisStore) seqKey(kind kewtag.Kind) string  { return s.prefix + "seq:" + string(kind) }

// Create inserts a new record.
func (s *RedisStore) Create(ctx context.Context, r *Record) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rec, err := s.opts.prepareCreate(r)
	if err != nil {
		return nil, err
	}

	rec.ID, err = s.client.Incr(ctx, s.seqKey(rec.Kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis incr: %w", err)
	}
	claimed, err := s.client.HSetNX(ctx, s.codeKey(rec.Kind), rec.Code, rec.ID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hsetnx: %w", err)
	}
	if !claimed {
		return nil, ErrConflict
	}

	data, err := s.codec.Encode(rec)
	if err != nil {
		s.client.HDel(ctx, s.codeKey(rec.Kind), rec.Code)
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := s.client.HSet(ctx, s.recKey(rec.Kind), strconv.FormatInt(rec.ID, 10), data).Err(); err != nil {
		s.client.HDel(ctx, s.codeKey(rec.Kind), rec.Code)
		return nil, fmt.Errorf("redis hset: %w", err)
	}
	return rec, nil
}

// Get retrieves a record by kind and id.
func (s *RedisStore) Get(ctx context.Context, kind kewtag.Kind, id int64) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := s.client.HGet(ctx, s.recKey(kind), strconv.FormatInt(id, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	var rec Record
	if err := s.codec.Decode(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// GetByCode retrieves a record by kind and code.
func (s *RedisStore) GetByCode(ctx context.Context, kind kewtag.Kind, code string) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	id, err := s.client.HGet(ctx, s.codeKey(kind), code).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	return s.Get(ctx, kind, id)
}

// Update applies a patch to an existing record.
func (s *RedisStore) Update(ctx context.Context, kind kewtag.Kind, id int64, p Patch) (*Record, error) {
	cur, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	next, err := p.Apply(cur, s.opts.now())
	if err != nil {
		return nil, err
	}

	if next.Code != cur.Code {
		claimed, err := s.client.HSetNX(ctx, s.codeKey(kind), next.Code, id).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hsetnx: %w", err)
		}
		if !claimed {
			return nil, ErrConflict
		}
	}

	data, err := s.codec.Encode(next)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recKey(kind), strconv.FormatInt(id, 10), data)
		if next.Code != cur.Code {
			pipe.HDel(ctx, s.codeKey(kind), cur.Code)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis update: %w", err)
	}
	return next, nil
}

// Delete removes a record.
func (s *RedisStore) Delete(ctx context.Context, kind kewtag.Kind, id int64) error {
	cur, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.recKey(kind), strconv.FormatInt(id, 10))
		pipe.HDel(ctx, s.codeKey(kind), cur.Code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// List returns a page of records matching the filter.
// Filtering and sorting happen in process over the kind hashes.
func (s *RedisStore) List(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	kinds := kewtag.Kinds()
	if f.Kind != "" {
		kinds = []kewtag.Kind{f.Kind}
	}

	var all []*Record
	for _, kind := range kinds {
		vals, err := s.client.HVals(ctx, s.recKey(kind)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hvals: %w", err)
		}
		for _, v := range vals {
			var rec Record
			if err := s.codec.Decode([]byte(v), &rec); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
			all = append(all, &rec)
		}
	}
	return paginate(all, f), nil
}

// Close marks the store closed. The Redis client is left open.
func (s *RedisStore) Close() error {
	s.closed.Store(true)
	return nil
}

// Compile-time check
var _ Store = (*RedisStore)(nil)
