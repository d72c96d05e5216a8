// Package levelstore is an embedded storage.Backend on goleveldb.
// Keys are "<collection>/<id>".
package levelstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dohr-michael/studio/internal/storage"
)

type Store struct {
	db *leveldb.DB
}

var _ storage.Backend = (*Store)(nil)

// Open opens (or creates) a leveldb database at path.
func Open(path string) (*Store, error) {
	opts := &opt.Options{
		CompactionTableSize: 2 * 1024 * 1024,
		WriteBuffer:         1 * 1024 * 1024,
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func (s *Store) Get(_ context.Context, collection, id string) ([]byte, error) {
	data, err := s.db.Get(key(collection, id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return data, nil
}

func (s *Store) List(_ context.Context, collection string) ([][]byte, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(collection+"/")), nil)
	defer iter.Release()

	var out [][]byte
	for iter.Next() {
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Put(_ context.Context, collection, id string, data []byte) error {
	if err := s.db.Put(key(collection, id), data, nil); err != nil {
		return fmt.Errorf("put %s %s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	if err := s.db.Delete(key(collection, id), nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	return nil
}
