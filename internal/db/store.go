package db

import (
	"context"
	"errors"

	"feedprobe/internal/feed"
)

var (
	// ErrNotFound is returned for missing or not yet visible packages
	ErrNotFound = errors.New("package not found")
	// ErrDuplicate is returned when the identity is already stored
	ErrDuplicate = errors.New("package already exists")
)

// Store persists feed packages. Writes become readable only once the
// package's VisibleAt has passed, which lets the server behave like an
// eventually consistent feed.
type Store interface {
	CreatePackage(ctx context.Context, pkg Package) (*Package, error)
	GetPackage(ctx context.Context, id feed.Identity) (*Package, error)
	FindPackages(ctx context.Context, q Query) ([]Package, error)
	UnlistPackage(ctx context.Context, id feed.Identity) error
	Health(ctx context.Context) error
	Close() error
}
