package db

import (
	"strings"
	"time"

	"github.com/lib/pq"

	"feedprobe/internal/feed"
)

// Package is one stored package version
type Package struct {
	ID          int64          `db:"id" json:"id"`
	PackageID   string         `db:"package_id" json:"package_id"`
	Version     string         `db:"version" json:"version"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Authors     string         `db:"authors" json:"authors"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	SHA256      string         `db:"sha256" json:"sha256"`
	SizeBytes   int64          `db:"size_bytes" json:"size_bytes"`
	BlobPath    string         `db:"blob_path" json:"blob_path"`
	Listed      bool           `db:"listed" json:"listed"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	VisibleAt   time.Time      `db:"visible_at" json:"visible_at"`
}

// Query selects packages for collection requests. Empty fields match
// everything; comparisons ignore case.
type Query struct {
	ID                string
	Version           string
	IDPrefix          string
	ExcludeIDPrefixes []string
	Limit             int
}

// Identity returns the package identity
func (p *Package) Identity() feed.Identity {
	return feed.Identity{ID: p.PackageID, Version: p.Version}
}

// IsVisible reports whether reads at now may observe the package
func (p *Package) IsVisible(now time.Time) bool {
	return !now.Before(p.VisibleAt)
}

// Entry converts the stored row to a feed entry
func (p *Package) Entry() feed.Entry {
	return feed.Entry{
		ID:          p.PackageID,
		Version:     p.Version,
		Title:       p.Title,
		Description: p.Description,
		Authors:     p.Authors,
		Published:   p.CreatedAt,
		Listed:      p.Listed,
		PackageSize: p.SizeBytes,
		PackageHash: p.SHA256,
	}
}

// Matches applies q to the package in memory
func (q Query) Matches(p *Package) bool {
	if q.ID != "" && !strings.EqualFold(q.ID, p.PackageID) {
		return false
	}
	if q.Version != "" && !strings.EqualFold(q.Version, p.Version) {
		return false
	}
	lowerID := strings.ToLower(p.PackageID)
	if q.IDPrefix != "" && !strings.HasPrefix(lowerID, strings.ToLower(q.IDPrefix)) {
		return false
	}
	for _, prefix := range q.ExcludeIDPrefixes {
		if strings.HasPrefix(lowerID, strings.ToLower(prefix)) {
			return false
		}
	}
	return true
}
