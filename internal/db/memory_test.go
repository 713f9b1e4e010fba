package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedprobe/internal/feed"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.Now = clock.Now
	return store, clock
}

func TestMemoryStoreVisibility(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore()
	id := feed.Identity{ID: "Foo", Version: "1.0.0"}

	_, err := store.CreatePackage(ctx, Package{
		PackageID: id.ID,
		Version:   id.Version,
		Listed:    true,
		VisibleAt: clock.Now().Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	if _, err := store.GetPackage(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before propagation, got %v", err)
	}
	if found, _ := store.FindPackages(ctx, Query{ID: id.ID}); len(found) != 0 {
		t.Errorf("collection should not see the package yet, got %d", len(found))
	}

	clock.Advance(2 * time.Second)

	pkg, err := store.GetPackage(ctx, feed.Identity{ID: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("GetPackage after propagation: %v", err)
	}
	if pkg.PackageID != "Foo" {
		t.Errorf("expected original casing, got %q", pkg.PackageID)
	}
}

func TestMemoryStoreDuplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	if _, err := store.CreatePackage(ctx, Package{PackageID: "Foo", Version: "1.0.0"}); err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}
	_, err := store.CreatePackage(ctx, Package{PackageID: "FOO", Version: "1.0.0"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryStoreUnlist(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()
	id := feed.Identity{ID: "Foo", Version: "1.0.0"}

	if _, err := store.CreatePackage(ctx, Package{PackageID: id.ID, Version: id.Version, Listed: true}); err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}
	if err := store.UnlistPackage(ctx, id); err != nil {
		t.Fatalf("UnlistPackage: %v", err)
	}

	pkg, err := store.GetPackage(ctx, id)
	if err != nil {
		t.Fatalf("unlisted package should stay addressable: %v", err)
	}
	if pkg.Listed {
		t.Error("package should be unlisted")
	}

	found, err := store.FindPackages(ctx, Query{ID: id.ID})
	if err != nil {
		t.Fatalf("FindPackages: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("unlisted package should be excluded from queries, got %d", len(found))
	}

	if err := store.UnlistPackage(ctx, feed.Identity{ID: "Missing", Version: "1.0.0"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreFindPackages(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore()

	for i, id := range []string{"Beta.Lib", "alpha.core", "Alpha.Tools"} {
		clock.Advance(time.Second)
		if _, err := store.CreatePackage(ctx, Package{PackageID: id, Version: "1.0.0", Listed: true}); err != nil {
			t.Fatalf("CreatePackage %d: %v", i, err)
		}
	}

	found, err := store.FindPackages(ctx, Query{IDPrefix: "alpha"})
	if err != nil {
		t.Fatalf("FindPackages: %v", err)
	}
	if len(found) != 2 || found[0].PackageID != "alpha.core" || found[1].PackageID != "Alpha.Tools" {
		t.Errorf("unexpected results %+v", found)
	}

	found, _ = store.FindPackages(ctx, Query{Limit: 1})
	if len(found) != 1 {
		t.Errorf("limit not applied, got %d", len(found))
	}
}
