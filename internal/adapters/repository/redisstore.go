package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/okian/adroute/pkg/metrics"
	redis "github.com/redis/go-redis/v9"
)

const redisKind = "redis"

// Redis connection defaults.
const (
	redisDialTimeout  = 5 * time.Second
	redisReadTimeout  = 3 * time.Second
	redisWriteTimeout = 3 * time.Second
	redisMinIdleConns = 2
)

// RedisConfig describes how to reach the Redis server.
type RedisConfig struct {
	Addr     string
	DB       int
	Username string
	Password string
	PoolSize int
	TLS      bool
}

// RedisStore implements Store on Redis strings and sets.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore builds a Redis-backed Store.
func NewRedisStore(cfg RedisConfig, opts ...Option) *RedisStore {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}

	ro := &redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: redisMinIdleConns,
	}
	if cfg.TLS {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &RedisStore{
		client:  redis.NewClient(ro),
		timeout: st.timeout,
	}
}

// Kind implements Store.
func (s *RedisStore) Kind() string { return redisKind }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (blob []byte, err error) {
	defer observe(redisKind, "get", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	blob, err = s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("redis get", err)
	}
	return blob, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, blob []byte) (err error) {
	defer observe(redisKind, "put", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return storeError("redis set", s.client.Set(ctx, key, blob, 0).Err())
}

// AddToSet implements Store.
func (s *RedisStore) AddToSet(ctx context.Context, key, member string) (err error) {
	defer observe(redisKind, "add_to_set", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return storeError("redis sadd", s.client.SAdd(ctx, key, member).Err())
}

// RemoveFromSet implements Store.
func (s *RedisStore) RemoveFromSet(ctx context.Context, key string, members ...string) (err error) {
	if len(members) == 0 {
		return nil
	}
	defer observe(redisKind, "remove_from_set", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return storeError("redis srem", s.client.SRem(ctx, key, toArgs(members)...).Err())
}

// IntersectSets implements Store.
func (s *RedisStore) IntersectSets(ctx context.Context, keys ...string) (members []string, err error) {
	if len(keys) == 0 {
		return nil, nil
	}
	defer observe(redisKind, "intersect_sets", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	members, err = s.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("redis sinter", err)
	}
	return members, nil
}

// BulkGet implements Store.
func (s *RedisStore) BulkGet(ctx context.Context, keys ...string) (blobs [][]byte, err error) {
	if len(keys) == 0 {
		return nil, nil
	}
	defer observe(redisKind, "bulk_get", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("redis mget", err)
	}
	blobs = make([][]byte, len(vals))
	for i, v := range vals {
		switch tv := v.(type) {
		case string:
			blobs[i] = []byte(tv)
		case []byte:
			blobs[i] = tv
		}
	}
	return blobs, nil
}

// Commit implements Store with WATCH on the guard keys and a MULTI/EXEC pipeline.
func (s *RedisStore) Commit(ctx context.Context, b *Batch) (err error) {
	if b == nil || (b.Len() == 0 && len(b.Guards()) == 0) {
		return nil
	}
	defer observe(redisKind, "commit", time.Now(), &err)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		for _, g := range b.Guards() {
			cur, err := tx.Get(ctx, g.Key).Bytes()
			present := true
			if errors.Is(err, redis.Nil) {
				present = false
			} else if err != nil {
				return err
			}
			if !guardHolds(g, present, cur) {
				return ErrConflict
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range b.Ops() {
				switch op.Kind {
				case OpPut:
					pipe.Set(ctx, op.Key, op.Blob, 0)
				case OpAddToSet:
					pipe.SAdd(ctx, op.Key, toArgs(op.Members)...)
				case OpRemoveFromSet:
					pipe.SRem(ctx, op.Key, toArgs(op.Members)...)
				}
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, b.guardKeys()...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrConflict):
		return ErrConflict
	default:
		return storeError("redis commit", err)
	}
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return storeError("redis ping", s.client.Ping(ctx).Err())
}

// Close releases Redis resources.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func guardHolds(g Guard, present bool, cur []byte) bool {
	if g.Blob == nil {
		return !present
	}
	return present && bytes.Equal(cur, g.Blob)
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

// observe records latency for every call and an error sample for failures.
// Absence and guard conflicts are outcomes, not faults.
func observe(kind, op string, start time.Time, errp *error) {
	latency := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordStoreOperation(kind, op, latency)
	if errp == nil || *errp == nil || errors.Is(*errp, ErrNotFound) || errors.Is(*errp, ErrConflict) {
		return
	}
	metrics.RecordStoreError(kind, op)
	metrics.RecordErrorByComponent("store", op)
}
