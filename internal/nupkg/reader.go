package nupkg

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"feedprobe/internal/feed"
)

// DefaultMaxPackageSize bounds how much of a stream the reader will buffer
const DefaultMaxPackageSize = 250 * 1024 * 1024

// Reader extracts identities from package streams
type Reader struct {
	MaxSize int64
}

// NewReader creates a reader with the default size limit
func NewReader() *Reader {
	return &Reader{MaxSize: DefaultMaxPackageSize}
}

// GetPackageIdentity reads the package id and version from a .nupkg stream.
// The stream is read from its start regardless of its current position and is
// left at an unspecified position; callers seek back before reusing it.
func (r *Reader) GetPackageIdentity(stream io.ReadSeeker) (feed.Identity, error) {
	m, err := r.ReadManifest(stream)
	if err != nil {
		return feed.Identity{}, err
	}
	return m.Identity(), nil
}

// ReadManifest reads the .nuspec manifest from a .nupkg stream
func (r *Reader) ReadManifest(stream io.ReadSeeker) (*Manifest, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind package stream: %w", err)
	}

	limit := r.MaxSize
	if limit <= 0 {
		limit = DefaultMaxPackageSize
	}

	data, err := io.ReadAll(io.LimitReader(stream, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read package stream: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: package exceeds %d bytes", ErrInvalidPackage, limit)
	}

	return ReadManifestBytes(data)
}

// ReadManifestBytes reads the .nuspec manifest from an in-memory .nupkg
func ReadManifestBytes(data []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", ErrInvalidPackage, err)
	}

	for _, f := range zr.File {
		// The manifest lives at the archive root
		if strings.Contains(f.Name, "/") || !strings.EqualFold(path.Ext(f.Name), ".nuspec") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open %s: %v", ErrInvalidPackage, f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidPackage, f.Name, err)
		}

		return ParseManifest(content)
	}

	return nil, ErrMissingNuspec
}
