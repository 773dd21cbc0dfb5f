package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no document is stored under a key.
var ErrNotFound = errors.New("document not found")

// Store defines durable storage for JSON documents under namespaced keys.
// Each settings collection is written whole on every mutation.
type Store interface {
	// Documents
	GetDocument(ctx context.Context, key string) ([]byte, error)
	PutDocument(ctx context.Context, key string, value []byte) error
	DeleteDocument(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
