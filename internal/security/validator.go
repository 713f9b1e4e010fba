package security

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"feedprobe/internal/nupkg"
)

const (
	// Security limits
	MaxPackageSize     = 250 * 1024 * 1024 // compressed upload
	MaxTotalSize       = 1024 * 1024 * 1024
	MaxFilesPerArchive = 10000
	MaxFieldLength     = 4000
)

// ErrPackageTooLarge is returned when an upload exceeds MaxPackageSize
var ErrPackageTooLarge = errors.New("package too large")

// SecurityConfig contains security validation settings
type SecurityConfig struct {
	MaxPackageSize int64
	MaxTotalSize   int64
	MaxFiles       int
	MaxFieldLength int
}

// DefaultSecurityConfig returns the default security configuration
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxPackageSize: MaxPackageSize,
		MaxTotalSize:   MaxTotalSize,
		MaxFiles:       MaxFilesPerArchive,
		MaxFieldLength: MaxFieldLength,
	}
}

// PackageValidator handles security validation of uploaded packages
type PackageValidator struct {
	config *SecurityConfig
	policy *bluemonday.Policy
}

// NewPackageValidator creates a new package validator
func NewPackageValidator(config *SecurityConfig) *PackageValidator {
	if config == nil {
		config = DefaultSecurityConfig()
	}

	// Manifest fields are rendered as plain text, so no markup survives
	return &PackageValidator{
		config: config,
		policy: bluemonday.StrictPolicy(),
	}
}

// MaxPackageSize returns the configured upload limit
func (v *PackageValidator) MaxPackageSize() int64 {
	return v.config.MaxPackageSize
}

// ValidatePackage checks an uploaded .nupkg and returns its manifest with
// text fields sanitized
func (v *PackageValidator) ValidatePackage(data []byte) (*nupkg.Manifest, error) {
	if int64(len(data)) > v.config.MaxPackageSize {
		return nil, fmt.Errorf("%w (%d bytes, max %d)", ErrPackageTooLarge, len(data), v.config.MaxPackageSize)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive", nupkg.ErrInvalidPackage)
	}

	if len(zr.File) > v.config.MaxFiles {
		return nil, fmt.Errorf("archive contains too many files (max %d)", v.config.MaxFiles)
	}

	var totalSize uint64
	for _, f := range zr.File {
		if err := validateFilePath(f.Name); err != nil {
			return nil, fmt.Errorf("unsafe file path '%s': %w", f.Name, err)
		}

		totalSize += f.UncompressedSize64
		if totalSize > uint64(v.config.MaxTotalSize) {
			return nil, fmt.Errorf("archive too large uncompressed (max %d)", v.config.MaxTotalSize)
		}
	}

	m, err := nupkg.ReadManifestBytes(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := v.SanitizeManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

// SanitizeManifest strips markup from free-text manifest fields in place
func (v *PackageValidator) SanitizeManifest(m *nupkg.Manifest) error {
	fields := map[string]*string{
		"title":       &m.Title,
		"authors":     &m.Authors,
		"description": &m.Description,
		"tags":        &m.Tags,
	}

	for name, field := range fields {
		if !utf8.ValidString(*field) {
			return fmt.Errorf("%s is not valid UTF-8", name)
		}
		if len(*field) > v.config.MaxFieldLength {
			return fmt.Errorf("%s too long (%d bytes, max %d)", name, len(*field), v.config.MaxFieldLength)
		}
		// Sanitize entity-encodes text; fields are stored unescaped
		*field = strings.TrimSpace(html.UnescapeString(v.policy.Sanitize(*field)))
	}

	return nil
}

// validateFilePath checks for path traversal and other path-based attacks
func validateFilePath(filePath string) error {
	// Reject absolute paths (check both Unix and Windows style)
	if strings.HasPrefix(filePath, "/") || strings.HasPrefix(filePath, "\\") ||
		(len(filePath) > 1 && filePath[1] == ':') {
		return fmt.Errorf("absolute paths not allowed")
	}

	// Reject paths with .. segments (path traversal)
	for _, segment := range strings.FieldsFunc(filePath, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return fmt.Errorf("path traversal attempt detected")
		}
	}

	// Reject paths with control characters
	for _, r := range filePath {
		if r < 32 || r == 127 {
			return fmt.Errorf("control characters in path not allowed")
		}
	}

	return nil
}
