package nupkg

import (
	"fmt"
	"strings"

	semver "github.com/Masterminds/semver/v3"
)

// NormalizeVersion returns the normalized form of a package version: missing
// minor/patch parts are filled in, a zero fourth part is dropped and build
// metadata is removed. Versions that cannot be parsed are returned trimmed.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	core, pre := splitPrerelease(v)

	parts := strings.Split(core, ".")
	if len(parts) == 4 {
		if parts[3] != "0" {
			if _, err := semver.NewVersion(strings.Join(parts[:3], ".")); err != nil {
				return v
			}
			return strings.Join(parts, ".") + stripBuild(pre)
		}
		core = strings.Join(parts[:3], ".")
	}

	sv, err := semver.NewVersion(core + pre)
	if err != nil {
		return v
	}

	normalized := fmt.Sprintf("%d.%d.%d", sv.Major(), sv.Minor(), sv.Patch())
	if sv.Prerelease() != "" {
		normalized += "-" + sv.Prerelease()
	}
	return normalized
}

// IsValidVersion reports whether v parses as a package version
func IsValidVersion(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") || strings.HasPrefix(v, "V") {
		return false
	}
	core, pre := splitPrerelease(v)
	parts := strings.Split(core, ".")
	if len(parts) == 4 {
		for _, c := range parts[3] {
			if c < '0' || c > '9' {
				return false
			}
		}
		core = strings.Join(parts[:3], ".")
	}
	_, err := semver.NewVersion(core + pre)
	return err == nil
}

// splitPrerelease separates "1.2.3" from "-beta+build"
func splitPrerelease(v string) (string, string) {
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		return v[:idx], v[idx:]
	}
	return v, ""
}

func stripBuild(pre string) string {
	if idx := strings.Index(pre, "+"); idx != -1 {
		return pre[:idx]
	}
	return pre
}
