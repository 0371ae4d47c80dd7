package archive

import "errors"

// ErrNotFound is returned when a key has no record.
var ErrNotFound = errors.New("archive: key not found")

// Store is the backend a Recorder writes round records into. Backends are
// interchangeable; the memory store serves in-process runs and tests, the
// leveldb store keeps an on-disk trace of a simulation.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}
