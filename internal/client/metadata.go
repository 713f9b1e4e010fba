package client

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"feedprobe/internal/feed"
)

// MetadataFetcher loads metadata for a source
type MetadataFetcher func(ctx context.Context, source feed.Source) (*feed.Metadata, error)

type metadataEntry struct {
	md  *feed.Metadata
	err error
}

// MetadataCache fetches each source's metadata at most once per process.
// Concurrent callers for the same source key share one fetch, and every later
// caller gets the same outcome, failures included. Entries are never evicted.
type MetadataCache struct {
	fetch MetadataFetcher
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]metadataEntry
}

// NewMetadataCache creates an empty cache backed by fetch
func NewMetadataCache(fetch MetadataFetcher) *MetadataCache {
	return &MetadataCache{
		fetch:   fetch,
		entries: make(map[string]metadataEntry),
	}
}

// Get returns the metadata for source, fetching it if no caller has yet.
// The shared fetch is not tied to any one caller's cancellation; ctx only
// bounds how long this caller waits for it.
func (c *MetadataCache) Get(ctx context.Context, source feed.Source) (*feed.Metadata, error) {
	key := source.Key()
	if e, ok := c.lookup(key); ok {
		return e.md, e.err
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A flight that finished between lookup and DoChan already stored it
		if e, ok := c.lookup(key); ok {
			return e, nil
		}

		md, err := c.fetch(context.WithoutCancel(ctx), source)
		e := metadataEntry{md: md, err: err}

		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()

		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		e := res.Val.(metadataEntry)
		return e.md, e.err
	}
}

// Len reports how many sources have a settled entry
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MetadataCache) lookup(key string) (metadataEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}
