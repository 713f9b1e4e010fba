package client

import (
	"context"
	"io"

	"go.uber.org/zap"

	"feedprobe/internal/feed"
	"feedprobe/internal/poll"
)

// Client orchestrates feed operations on top of a Protocol
type Client struct {
	protocol Protocol
	reader   PackageReader
	metadata *MetadataCache
	poll     poll.Policy
	lookup   Lookup
	log      *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithPollPolicy sets how long and how often a pushed package is polled for
func WithPollPolicy(p poll.Policy) Option {
	return func(c *Client) { c.poll = p }
}

// WithLookup selects the existence check strategy
func WithLookup(l Lookup) Option {
	return func(c *Client) { c.lookup = l }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client. The metadata cache lives as long as the client.
func NewClient(p Protocol, reader PackageReader, opts ...Option) *Client {
	c := &Client{
		protocol: p,
		reader:   reader,
		poll:     poll.Default(),
		lookup:   LookupEntry,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metadata = NewMetadataCache(p.GetMetadata)
	return c
}

// PollPolicy returns the effective polling policy
func (c *Client) PollPolicy() poll.Policy {
	return c.poll
}

// GetMetadata returns the cached metadata for source
func (c *Client) GetMetadata(ctx context.Context, source feed.Source) (*feed.Metadata, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}
	return c.metadata.Get(ctx, source)
}

// PushPackage uploads a package unconditionally
func (c *Client) PushPackage(ctx context.Context, source feed.Source, pkg io.Reader) (int, error) {
	code, err := c.protocol.PushPackage(ctx, source, pkg)
	return code, wrapProtocolError("push", err)
}

// DeletePackage deletes (unlists) a package version
func (c *Client) DeletePackage(ctx context.Context, source feed.Source, id feed.Identity) (int, error) {
	code, err := c.protocol.DeletePackage(ctx, source, id)
	return code, wrapProtocolError("delete", err)
}

// GetPackageEntry looks up an entry by identity
func (c *Client) GetPackageEntry(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	res, err := c.protocol.GetPackageEntry(ctx, source, id)
	return res, wrapProtocolError("get entry", err)
}

// GetPackageCollection queries the package collection
func (c *Client) GetPackageCollection(ctx context.Context, source feed.Source, filter string) (feed.Result[feed.Feed], error) {
	res, err := c.protocol.GetPackageCollection(ctx, source, filter)
	return res, wrapProtocolError("query collection", err)
}

func validateSource(source feed.Source) error {
	u := source.Key()
	if u == "" {
		return NewFeedError(ErrInvalidSource, "source URL is empty")
	}
	if !feed.IsHTTPURL(u) {
		return NewFeedError(ErrInvalidSource, "source URL must be http or https: "+u)
	}
	return nil
}
