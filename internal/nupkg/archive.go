package nupkg

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ArchiveInfo contains information about a created package
type ArchiveInfo struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// FileName returns the conventional file name for a package
func FileName(m Manifest) string {
	id := m.Identity()
	return fmt.Sprintf("%s.%s.nupkg", strings.ToLower(id.ID), strings.ToLower(id.Version))
}

// Pack creates a .nupkg from the manifest and files matching the patterns.
// Patterns are optional; a package with only a manifest is valid.
func Pack(m Manifest, patterns []string, outputPath string) (*ArchiveInfo, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	files, err := ExpandPatterns(patterns)
	if err != nil {
		return nil, err
	}
	if len(patterns) > 0 && len(files) == 0 {
		return nil, fmt.Errorf("no files matched the specified patterns")
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create package file: %w", err)
	}
	defer outFile.Close()

	hasher := sha256.New()
	if err := Build(io.MultiWriter(outFile, hasher), m, files); err != nil {
		return nil, err
	}
	if err := outFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close package file: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat package: %w", err)
	}

	return &ArchiveInfo{
		Path:      outputPath,
		SHA256:    fmt.Sprintf("%x", hasher.Sum(nil)),
		SizeBytes: info.Size(),
	}, nil
}

// Build writes a .nupkg zip holding the manifest and files to w
func Build(w io.Writer, m Manifest, files []string) error {
	nuspec, err := MarshalManifest(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	zw := zip.NewWriter(w)

	part, err := zw.Create(m.Identity().ID + ".nuspec")
	if err != nil {
		return err
	}
	if _, err := part.Write(nuspec); err != nil {
		return err
	}

	for _, filePath := range files {
		if err := addFileToArchive(zw, filePath); err != nil {
			return fmt.Errorf("failed to add file %s: %w", filePath, err)
		}
	}

	return zw.Close()
}

// BuildBytes builds a package in memory
func BuildBytes(m Manifest, files []string) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Build(&buf, m, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExpandPatterns resolves glob patterns (with ** support) to a de-duplicated
// list of regular files in match order
func ExpandPatterns(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to match pattern %s: %w", pattern, err)
		}

		for _, match := range matches {
			if info, err := os.Stat(match); err != nil || info.IsDir() {
				continue
			}

			cleanPath := filepath.Clean(match)
			if !seen[cleanPath] {
				files = append(files, cleanPath)
				seen[cleanPath] = true
			}
		}
	}

	return files, nil
}

// addFileToArchive adds a single file under content/
func addFileToArchive(zw *zip.Writer, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = "content/" + archiveName(filePath)
	header.Method = zip.Deflate

	part, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(part, file)
	return err
}

// archiveName keeps relative structure but never escapes content/
func archiveName(filePath string) string {
	clean := filepath.Clean(filePath)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return filepath.Base(clean)
	}
	return filepath.ToSlash(clean)
}

// CalculateSHA256 calculates SHA256 hash of a file
func CalculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
