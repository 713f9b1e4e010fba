package nupkg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"feedprobe/internal/feed"
)

const nuspecNamespace = "http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd"

var (
	ErrInvalidPackage = errors.New("invalid package")
	ErrMissingNuspec  = errors.New("package has no .nuspec manifest")
	ErrInvalidID      = errors.New("invalid package id")
	ErrInvalidVersion = errors.New("invalid package version")
)

// idRegex matches valid package ids
var idRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// Manifest is the metadata section of a .nuspec file
type Manifest struct {
	ID          string `xml:"id"`
	Version     string `xml:"version"`
	Title       string `xml:"title,omitempty"`
	Authors     string `xml:"authors"`
	Description string `xml:"description"`
	Tags        string `xml:"tags,omitempty"`
}

type nuspecDocument struct {
	XMLName  xml.Name `xml:"package"`
	Xmlns    string   `xml:"xmlns,attr,omitempty"`
	Metadata Manifest `xml:"metadata"`
}

// Identity returns the normalized identity described by the manifest
func (m Manifest) Identity() feed.Identity {
	return feed.Identity{ID: strings.TrimSpace(m.ID), Version: NormalizeVersion(m.Version)}
}

// TagList splits the space-delimited tags field
func (m Manifest) TagList() []string {
	return strings.Fields(m.Tags)
}

// Validate checks the id and version
func (m Manifest) Validate() error {
	id := strings.TrimSpace(m.ID)
	if id == "" || len(id) > 100 || !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, m.ID)
	}
	if !IsValidVersion(m.Version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, m.Version)
	}
	return nil
}

// ParseManifest decodes a .nuspec document
func ParseManifest(data []byte) (*Manifest, error) {
	var doc nuspecDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse nuspec: %v", ErrInvalidPackage, err)
	}
	if err := doc.Metadata.Validate(); err != nil {
		return nil, err
	}
	return &doc.Metadata, nil
}

// MarshalManifest encodes a manifest as a .nuspec document
func MarshalManifest(m Manifest) ([]byte, error) {
	doc := nuspecDocument{Xmlns: nuspecNamespace, Metadata: m}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}
