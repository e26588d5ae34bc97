// Package kvstore provides the string-valued key-value stores the history
// record is persisted in.
package kvstore

import (
	"context"
	"errors"
)

// Store is a synchronous string-valued key-value store.
type Store interface {
	// Get returns the value at key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kvstore: store closed")
