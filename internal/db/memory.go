package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"feedprobe/internal/feed"
)

// MemoryStore is a Store kept in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	packages map[string]*Package
	nextID   int64

	// Now is the clock used for visibility checks
	Now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		packages: make(map[string]*Package),
		Now:      time.Now,
	}
}

func memoryKey(id feed.Identity) string {
	return strings.ToLower(id.ID) + "/" + strings.ToLower(id.Version)
}

// CreatePackage stores a new package version
func (m *MemoryStore) CreatePackage(ctx context.Context, pkg Package) (*Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(pkg.Identity())
	if _, exists := m.packages[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, pkg.Identity())
	}

	m.nextID++
	pkg.ID = m.nextID
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = m.Now()
	}
	if pkg.VisibleAt.IsZero() {
		pkg.VisibleAt = pkg.CreatedAt
	}

	stored := pkg
	m.packages[key] = &stored

	created := stored
	return &created, nil
}

// GetPackage retrieves a visible package version, listed or not
func (m *MemoryStore) GetPackage(ctx context.Context, id feed.Identity) (*Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pkg, ok := m.packages[memoryKey(id)]
	if !ok || !pkg.IsVisible(m.Now()) {
		return nil, ErrNotFound
	}

	found := *pkg
	return &found, nil
}

// FindPackages returns visible, listed packages matching q
func (m *MemoryStore) FindPackages(ctx context.Context, q Query) ([]Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.Now()
	var results []Package
	for _, pkg := range m.packages {
		if pkg.Listed && pkg.IsVisible(now) && q.Matches(pkg) {
			results = append(results, *pkg)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := strings.ToLower(results[i].PackageID), strings.ToLower(results[j].PackageID)
		if a != b {
			return a < b
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// UnlistPackage hides a visible package from collection queries
func (m *MemoryStore) UnlistPackage(ctx context.Context, id feed.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pkg, ok := m.packages[memoryKey(id)]
	if !ok || !pkg.IsVisible(m.Now()) {
		return ErrNotFound
	}
	pkg.Listed = false
	return nil
}

// Health always succeeds
func (m *MemoryStore) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
