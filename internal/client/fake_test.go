package client

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"feedprobe/internal/feed"
	"feedprobe/internal/protocol"
)

// fakeProtocol is a scripted in-memory feed
type fakeProtocol struct {
	mu sync.Mutex

	metadataCalls atomic.Int32
	metadataDelay time.Duration
	metadataErr   error

	// entry lookups answered by entryFn when set, otherwise from visible
	entryFn     func(call int) (feed.Result[feed.Entry], error)
	entryCalls  int
	visible     map[feed.Identity]bool
	visibleAt   int // entry call number at which a pushed package appears
	collection  func(filter string) (feed.Result[feed.Feed], error)
	filters     []string
	pushStatus  int
	pushErr     error
	pushed      [][]byte
	pushedAt    int
	deleteCalls []feed.Identity
	deleteErr   error
}

func newFakeProtocol() *fakeProtocol {
	return &fakeProtocol{
		visible:    make(map[feed.Identity]bool),
		pushStatus: http.StatusCreated,
	}
}

func (f *fakeProtocol) GetMetadata(ctx context.Context, source feed.Source) (*feed.Metadata, error) {
	f.metadataCalls.Add(1)
	if f.metadataDelay > 0 {
		time.Sleep(f.metadataDelay)
	}
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return &feed.Metadata{DataServiceVersion: "2.0", EntitySets: []string{"Packages"}}, nil
}

func (f *fakeProtocol) PushPackage(ctx context.Context, source feed.Source, pkg io.Reader) (int, error) {
	body, err := io.ReadAll(pkg)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, body)
	f.pushedAt = f.entryCalls
	return f.pushStatus, f.pushErr
}

func (f *fakeProtocol) DeletePackage(ctx context.Context, source feed.Source, id feed.Identity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, id)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return http.StatusNoContent, nil
}

func (f *fakeProtocol) GetPackageEntry(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entryCalls++

	if f.entryFn != nil {
		return f.entryFn(f.entryCalls)
	}
	if f.visible[id] {
		return feed.OK(feed.Entry{ID: id.ID, Version: id.Version, Listed: true}), nil
	}
	if len(f.pushed) > 0 && f.visibleAt > 0 && f.entryCalls-f.pushedAt >= f.visibleAt {
		f.visible[id] = true
		return feed.OK(feed.Entry{ID: id.ID, Version: id.Version, Listed: true}), nil
	}
	return feed.Status[feed.Entry](http.StatusNotFound), nil
}

func (f *fakeProtocol) GetPackageCollection(ctx context.Context, source feed.Source, filter string) (feed.Result[feed.Feed], error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	fn := f.collection
	f.mu.Unlock()

	if fn != nil {
		return fn(filter)
	}
	return feed.OK(feed.Feed{}), nil
}

func (f *fakeProtocol) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

// fakeReader reads the whole stream and parses "id version"
type fakeReader struct{}

func (fakeReader) GetPackageIdentity(stream io.ReadSeeker) (feed.Identity, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return feed.Identity{}, err
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return feed.Identity{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return feed.Identity{}, io.ErrUnexpectedEOF
	}
	return feed.Identity{ID: fields[0], Version: fields[1]}, nil
}

var (
	testSource   = feed.NewSource("test", "https://feed.example/api/v2")
	fooIdentity  = feed.Identity{ID: "Foo", Version: "1.0.0"}
	fooPackage   = "Foo 1.0.0 payload"
	transportErr = protocol.ErrTransport
)
