package archive

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
)

// LevelStore is a goleveldb-backed Store.
type LevelStore struct {
	path string
	db   *leveldb.DB
}

func NewLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelStore{path: path, db: db}, nil
}

func (l *LevelStore) Get(key string) ([]byte, error) {
	val, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelStore) Put(key string, value []byte) error {
	return l.db.Put([]byte(key), value, nil)
}

func (l *LevelStore) Delete(key string) error {
	has, err := l.db.Has([]byte(key), nil)
	if err != nil {
		return err
	}
	if !has {
		return ErrNotFound
	}
	return l.db.Delete([]byte(key), nil)
}

func (l *LevelStore) Keys() ([]string, error) {
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (l *LevelStore) Close() error {
	if err := l.db.Close(); err != nil {
		logger.Warn("failed to close leveldb at %s: %v", l.path, err)
		return err
	}
	return nil
}
