package client

import (
	"context"
	"io"

	"feedprobe/internal/feed"
)

// Protocol is the wire-level feed protocol the client orchestrates
type Protocol interface {
	// Fetch the source's service metadata
	GetMetadata(ctx context.Context, source feed.Source) (*feed.Metadata, error)

	// Upload a package, returning the response status
	PushPackage(ctx context.Context, source feed.Source, pkg io.Reader) (int, error)

	// Delete (unlist) a package version, returning the response status
	DeletePackage(ctx context.Context, source feed.Source, id feed.Identity) (int, error)

	// Look up a single entry by identity
	GetPackageEntry(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error)

	// Query the package collection with a filter expression
	GetPackageCollection(ctx context.Context, source feed.Source, filter string) (feed.Result[feed.Feed], error)
}

// PackageReader derives a package identity from a package stream
type PackageReader interface {
	GetPackageIdentity(stream io.ReadSeeker) (feed.Identity, error)
}
