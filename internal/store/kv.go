// Package store provides the key-value substrate every attendo component persists through.
// Values are opaque byte slices; callers own their serialization.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by Update when a concurrent writer won the race.
	ErrConflict = errors.New("concurrent update")
	// ErrPersistence marks any storage or decoding failure surfaced to callers.
	ErrPersistence = errors.New("persistence failure")
)

// UpdateFunc receives the current value (nil when the key is absent) and returns the value to store.
// Returning an error aborts the update and leaves the key untouched.
type UpdateFunc func(current []byte) ([]byte, error)

// KV is a string-keyed store of opaque values.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Update performs an atomic read-modify-write of key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// Fail wraps err as a persistence failure for op. Both ErrPersistence and err remain matchable.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
