// Package store persists trained models in a key-value store. Keys are
// slash-separated paths such as "models/start-symbol".
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrNotFound = errors.New("store: not found")

// Store is a flat key-value store.
type Store interface {
	// Get returns ErrNotFound if key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
	// Keys returns every key with the given prefix in lexicographic order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// GetValue loads key and decodes it as msgpack into v.
func GetValue(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetValue encodes v as msgpack and stores it under key.
func SetValue(ctx context.Context, s Store, key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// Open selects a backend by name: "badger" (the default) persists under dir,
// "memory" keeps models only for the life of the process.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "badger", "":
		return NewBadger(BadgerOptions{Dir: dir})
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
