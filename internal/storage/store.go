package storage

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by every backend when a named object is absent.
var ErrNotFound = errors.New("object not found")

// Backend is a store of named whole objects. Objects are read and replaced
// as a unit; there is no offset-based access.
type Backend interface {
	ContainerExists(ctx context.Context, name string) bool
	CreateContainer(ctx context.Context, name string, recursive bool) error

	LoadObject(ctx context.Context, name string) ([]byte, error)
	SaveObject(ctx context.Context, name string, data []byte) error
	RemoveObject(ctx context.Context, name string) error

	LoadText(ctx context.Context, name string) (string, error)
	SaveText(ctx context.Context, name string, text string) error

	Close() error
}
