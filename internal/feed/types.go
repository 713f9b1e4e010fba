package feed

import (
	"fmt"
	"strings"
	"time"
)

// Source is a configured remote package feed
type Source struct {
	Name   string `json:"name,omitempty"`
	URL    string `json:"url"`
	APIKey string `json:"-"`
}

// NewSource creates a source for the given feed URL
func NewSource(name, url string) Source {
	return Source{Name: name, URL: url}
}

// Key returns the cache key for the source. Two sources with the same URI share
// cached metadata regardless of name or API key.
func (s Source) Key() string {
	return strings.TrimRight(s.URL, "/")
}

// IsHTTPURL reports whether u is an http or https URL
func IsHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func (s Source) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.Key())
	}
	return s.Key()
}

// Identity addresses a single package version within a source
type Identity struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

func (i Identity) String() string {
	return i.ID + " " + i.Version
}

// IsZero reports whether the identity is unset
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Version == ""
}

// Entry is a single package record as returned by the feed
type Entry struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Authors     string    `json:"authors,omitempty"`
	Published   time.Time `json:"published"`
	Listed      bool      `json:"listed"`
	PackageSize int64     `json:"package_size,omitempty"`
	PackageHash string    `json:"package_hash,omitempty"`
	ContentURL  string    `json:"content_url,omitempty"`
}

// Identity returns the identity of the entry
func (e Entry) Identity() Identity {
	return Identity{ID: e.ID, Version: e.Version}
}

// Feed is a collection of entries returned by a collection query
type Feed struct {
	Title   string    `json:"title,omitempty"`
	Updated time.Time `json:"updated"`
	Entries []Entry   `json:"entries"`
}

// Metadata describes the capabilities a source advertises in its service metadata
type Metadata struct {
	DataServiceVersion string   `json:"data_service_version,omitempty"`
	SchemaNamespace    string   `json:"schema_namespace,omitempty"`
	EntitySets         []string `json:"entity_sets"`
	FunctionImports    []string `json:"function_imports"`
}

// HasEntitySet reports whether the metadata declares the named entity set
func (m *Metadata) HasEntitySet(name string) bool {
	return containsFold(m.EntitySets, name)
}

// SupportsFunction reports whether the metadata declares the named function import
func (m *Metadata) SupportsFunction(name string) bool {
	return containsFold(m.FunctionImports, name)
}

func containsFold(values []string, name string) bool {
	for _, v := range values {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
