package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("no value at key")

// Update is sent to listeners whenever a key changes. Value is nil when the
// key was deleted.
type Update struct {
	Key   string
	Value []byte
}

// Store is a JSON document addressed by gjson/sjson paths.
type Store interface {
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
