package protocol

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"feedprobe/internal/feed"
)

const (
	AtomNamespace = "http://www.w3.org/2005/Atom"
	DataNamespace = "http://schemas.microsoft.com/ado/2007/08/dataservices"
	MetaNamespace = "http://schemas.microsoft.com/ado/2007/08/dataservices/metadata"
)

// UnlistedPublished is the publish date feeds report for unlisted packages
var UnlistedPublished = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// edmDateTime is the Edm.DateTime wire layout (no zone, treated as UTC)
const edmDateTime = "2006-01-02T15:04:05.000"

var publishedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	ID      string      `xml:"http://www.w3.org/2005/Atom id"`
	Title   string      `xml:"http://www.w3.org/2005/Atom title"`
	Updated string      `xml:"http://www.w3.org/2005/Atom updated"`
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	XMLName    xml.Name       `xml:"http://www.w3.org/2005/Atom entry"`
	ID         string         `xml:"http://www.w3.org/2005/Atom id"`
	Title      string         `xml:"http://www.w3.org/2005/Atom title"`
	Updated    string         `xml:"http://www.w3.org/2005/Atom updated"`
	Author     atomAuthor     `xml:"http://www.w3.org/2005/Atom author"`
	Content    atomContent    `xml:"http://www.w3.org/2005/Atom content"`
	Properties atomProperties `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices/metadata properties"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type atomContent struct {
	Type string `xml:"type,attr,omitempty"`
	Src  string `xml:"src,attr,omitempty"`
}

// Numeric and date properties stay strings so null-valued elements decode
type atomProperties struct {
	ID                   string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Id"`
	Version              string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Version"`
	NormalizedVersion    string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices NormalizedVersion,omitempty"`
	Title                string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Title,omitempty"`
	Description          string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Description,omitempty"`
	Authors              string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Authors,omitempty"`
	Published            string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Published"`
	PackageSize          string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices PackageSize,omitempty"`
	PackageHash          string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices PackageHash,omitempty"`
	PackageHashAlgorithm string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices PackageHashAlgorithm,omitempty"`
}

// DecodeEntry parses a single Atom entry document
func DecodeEntry(r io.Reader) (*feed.Entry, error) {
	var doc atomEntry
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: entry: %v", ErrDecode, err)
	}
	entry := doc.toEntry()
	return &entry, nil
}

// DecodeFeed parses an Atom feed document
func DecodeFeed(r io.Reader) (*feed.Feed, error) {
	var doc atomFeed
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: feed: %v", ErrDecode, err)
	}

	f := &feed.Feed{
		Title:   doc.Title,
		Updated: parseTime(doc.Updated),
		Entries: make([]feed.Entry, 0, len(doc.Entries)),
	}
	for _, e := range doc.Entries {
		f.Entries = append(f.Entries, e.toEntry())
	}
	return f, nil
}

// EncodeEntry writes a single Atom entry document. base is the feed root URL.
func EncodeEntry(w io.Writer, base string, e feed.Entry) error {
	doc := fromEntry(base, e)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(doc)
}

// EncodeFeed writes an Atom feed document. base is the feed root URL.
func EncodeFeed(w io.Writer, base string, f feed.Feed) error {
	doc := atomFeed{
		ID:      strings.TrimRight(base, "/") + "/Packages",
		Title:   f.Title,
		Updated: f.Updated.UTC().Format(time.RFC3339),
		Entries: make([]atomEntry, 0, len(f.Entries)),
	}
	for _, e := range f.Entries {
		doc.Entries = append(doc.Entries, fromEntry(base, e))
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(doc)
}

func (e atomEntry) toEntry() feed.Entry {
	p := e.Properties

	id := p.ID
	if id == "" {
		id = e.Title
	}
	version := p.NormalizedVersion
	if version == "" {
		version = p.Version
	}
	authors := p.Authors
	if authors == "" {
		authors = e.Author.Name
	}

	published := parseTime(p.Published)
	size, _ := strconv.ParseInt(strings.TrimSpace(p.PackageSize), 10, 64)

	return feed.Entry{
		ID:          id,
		Version:     version,
		Title:       p.Title,
		Description: p.Description,
		Authors:     authors,
		Published:   published,
		Listed:      isListed(published),
		PackageSize: size,
		PackageHash: p.PackageHash,
		ContentURL:  e.Content.Src,
	}
}

func fromEntry(base string, e feed.Entry) atomEntry {
	base = strings.TrimRight(base, "/")
	published := e.Published
	if !e.Listed {
		published = UnlistedPublished
	}

	var hashAlgorithm string
	if e.PackageHash != "" {
		hashAlgorithm = "SHA256"
	}

	return atomEntry{
		ID:      base + EntryPath(e.Identity()),
		Title:   e.ID,
		Updated: e.Published.UTC().Format(time.RFC3339),
		Author:  atomAuthor{Name: e.Authors},
		Content: atomContent{
			Type: "application/zip",
			Src:  fmt.Sprintf("%s/package/%s/%s", base, e.ID, e.Version),
		},
		Properties: atomProperties{
			ID:                   e.ID,
			Version:              e.Version,
			NormalizedVersion:    e.Version,
			Title:                e.Title,
			Description:          e.Description,
			Authors:              e.Authors,
			Published:            published.UTC().Format(edmDateTime),
			PackageSize:          strconv.FormatInt(e.PackageSize, 10),
			PackageHash:          e.PackageHash,
			PackageHashAlgorithm: hashAlgorithm,
		},
	}
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range publishedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// isListed follows the feed convention of marking unlisted packages with a
// 1900 publish date
func isListed(published time.Time) bool {
	return !published.IsZero() && published.Year() > UnlistedPublished.Year()
}

// quoteLiteral doubles single quotes for OData string literals
func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
