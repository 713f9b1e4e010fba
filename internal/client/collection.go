package client

import (
	"context"
	"fmt"
	"net/http"

	"feedprobe/internal/feed"
	"feedprobe/internal/protocol"
)

// GetPackageEntryFromCollectionWithSimpleFilter finds an entry through a
// collection query filtering on id and version
func (c *Client) GetPackageEntryFromCollectionWithSimpleFilter(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	return c.entryFromCollection(ctx, source, protocol.SimpleFilter(id))
}

// GetPackageEntryFromCollectionWithCustomFilter is like the simple variant but
// adds a clause that never changes the result
func (c *Client) GetPackageEntryFromCollectionWithCustomFilter(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	return c.entryFromCollection(ctx, source, protocol.CustomFilter(id))
}

// entryFromCollection turns a collection answer into an entry result. An
// identity filter can match at most one entry; more is a server fault.
func (c *Client) entryFromCollection(ctx context.Context, source feed.Source, filter string) (feed.Result[feed.Entry], error) {
	res, err := c.GetPackageCollection(ctx, source, filter)
	if err != nil {
		return feed.Result[feed.Entry]{}, err
	}

	f, ok := res.Data()
	if !ok {
		return feed.Status[feed.Entry](res.StatusCode()), nil
	}

	switch len(f.Entries) {
	case 0:
		return feed.Status[feed.Entry](http.StatusNotFound), nil
	case 1:
		return feed.OK(f.Entries[0]), nil
	}

	e := NewFeedError(ErrAmbiguousResult,
		fmt.Sprintf("filter %q matched %d entries", filter, len(f.Entries)))
	e.Details["source"] = source.Key()
	e.Details["filter"] = filter
	e.Details["count"] = len(f.Entries)
	return feed.Result[feed.Entry]{}, e
}

// lookupEntry runs the configured existence check
func (c *Client) lookupEntry(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	switch c.lookup {
	case LookupSimpleFilter:
		return c.GetPackageEntryFromCollectionWithSimpleFilter(ctx, source, id)
	case LookupCustomFilter:
		return c.GetPackageEntryFromCollectionWithCustomFilter(ctx, source, id)
	default:
		return c.GetPackageEntry(ctx, source, id)
	}
}

// FindPackageEntry looks up id with the client's lookup strategy, the same
// check PushPackageIfNotExists uses before pushing
func (c *Client) FindPackageEntry(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	if err := validateSource(source); err != nil {
		return feed.Result[feed.Entry]{}, err
	}
	return c.lookupEntry(ctx, source, id)
}
