// Package redisstore is a storage.Backend on redis hashes: one hash per
// collection at "<prefix>:<collection>", one field per record id.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/dohr-michael/studio/internal/storage"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ storage.Backend = (*Store)(nil)

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open connects and pings the server.
func Open(ctx context.Context, o Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, o.Prefix), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Key(collection string) string {
	if s.prefix == "" {
		return collection
	}
	return s.prefix + ":" + collection
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	data, err := s.rdb.HGet(ctx, s.Key(collection), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("hget %s %s: %w", collection, id, err)
	}
	return data, nil
}

func (s *Store) List(ctx context.Context, collection string) ([][]byte, error) {
	all, err := s.rdb.HGetAll(ctx, s.Key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", collection, err)
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, []byte(all[id]))
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data []byte) error {
	if err := s.rdb.HSet(ctx, s.Key(collection), id, data).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.rdb.HDel(ctx, s.Key(collection), id).Err(); err != nil {
		return fmt.Errorf("hdel %s %s: %w", collection, id, err)
	}
	return nil
}
