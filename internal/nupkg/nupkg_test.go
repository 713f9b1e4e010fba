package nupkg

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"feedprobe/internal/feed"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.0.0", "1.0.0"},
		{"1.0", "1.0.0"},
		{"1", "1.0.0"},
		{"1.0.0.0", "1.0.0"},
		{"1.2.3.4", "1.2.3.4"},
		{"1.0.0-beta", "1.0.0-beta"},
		{"1.0.0-beta+build.5", "1.0.0-beta"},
		{"1.0.0+build", "1.0.0"},
		{" 2.1 ", "2.1.0"},
		{"not-a-version", "not-a-version"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeVersion(tt.in); got != tt.want {
				t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidVersion(t *testing.T) {
	valid := []string{"1.0.0", "1.0", "1.0.0.1", "1.0.0-rc.1"}
	invalid := []string{"", "v1.0.0", "abc", "1.0.0.x"}

	for _, v := range valid {
		if !IsValidVersion(v) {
			t.Errorf("expected %q to be valid", v)
		}
	}
	for _, v := range invalid {
		if IsValidVersion(v) {
			t.Errorf("expected %q to be invalid", v)
		}
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr error
	}{
		{"valid", Manifest{ID: "Foo.Bar", Version: "1.0.0"}, nil},
		{"empty id", Manifest{ID: "", Version: "1.0.0"}, ErrInvalidID},
		{"bad id chars", Manifest{ID: "foo bar", Version: "1.0.0"}, ErrInvalidID},
		{"bad version", Manifest{ID: "Foo", Version: "banana"}, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetPackageIdentity(t *testing.T) {
	data, err := BuildBytes(Manifest{ID: "Foo", Version: "1.0", Authors: "me", Description: "d"}, nil)
	if err != nil {
		t.Fatalf("BuildBytes: %v", err)
	}

	t.Run("reads identity regardless of stream position", func(t *testing.T) {
		stream := bytes.NewReader(data)
		if _, err := stream.Seek(10, io.SeekStart); err != nil {
			t.Fatalf("seek: %v", err)
		}

		id, err := NewReader().GetPackageIdentity(stream)
		if err != nil {
			t.Fatalf("GetPackageIdentity: %v", err)
		}
		want := feed.Identity{ID: "Foo", Version: "1.0.0"}
		if id != want {
			t.Errorf("identity = %v, want %v", id, want)
		}
	})

	t.Run("rejects oversized streams", func(t *testing.T) {
		r := &Reader{MaxSize: 10}
		_, err := r.GetPackageIdentity(bytes.NewReader(data))
		if !errors.Is(err, ErrInvalidPackage) {
			t.Errorf("expected ErrInvalidPackage, got %v", err)
		}
	})

	t.Run("rejects non-zip data", func(t *testing.T) {
		_, err := NewReader().GetPackageIdentity(bytes.NewReader([]byte("hello")))
		if !errors.Is(err, ErrInvalidPackage) {
			t.Errorf("expected ErrInvalidPackage, got %v", err)
		}
	})

	t.Run("rejects zip without nuspec", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, _ := zw.Create("lib/readme.txt")
		w.Write([]byte("hi"))
		zw.Close()

		_, err := NewReader().GetPackageIdentity(bytes.NewReader(buf.Bytes()))
		if !errors.Is(err, ErrMissingNuspec) {
			t.Errorf("expected ErrMissingNuspec, got %v", err)
		}
	})
}

func TestParseManifestIgnoresNamespace(t *testing.T) {
	nuspec := `<?xml version="1.0"?>
<package xmlns="http://schemas.microsoft.com/packaging/2010/07/nuspec.xsd">
  <metadata>
    <id>Legacy.Pkg</id>
    <version>2.0.0.0</version>
    <authors>someone</authors>
    <description>old schema</description>
  </metadata>
</package>`

	m, err := ParseManifest([]byte(nuspec))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if got := m.Identity(); got.ID != "Legacy.Pkg" || got.Version != "2.0.0" {
		t.Errorf("unexpected identity %v", got)
	}
}

func TestPack(t *testing.T) {
	tempDir := t.TempDir()

	contentDir := filepath.Join(tempDir, "docs", "nested")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(contentDir, "readme.md"), []byte("# hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := Manifest{ID: "Packed", Version: "3.1.0", Authors: "me", Description: "packed"}
	out := filepath.Join(tempDir, FileName(m))

	t.Run("packs manifest and matched files", func(t *testing.T) {
		info, err := Pack(m, []string{filepath.Join(tempDir, "docs", "**", "*.md")}, out)
		if err != nil {
			t.Fatalf("Pack: %v", err)
		}
		if len(info.SHA256) != 64 {
			t.Errorf("expected 64 char hash, got %d", len(info.SHA256))
		}

		hash, err := CalculateSHA256(out)
		if err != nil {
			t.Fatalf("CalculateSHA256: %v", err)
		}
		if hash != info.SHA256 {
			t.Errorf("hash mismatch: %s != %s", hash, info.SHA256)
		}

		f, err := os.Open(out)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer f.Close()

		id, err := NewReader().GetPackageIdentity(f)
		if err != nil {
			t.Fatalf("GetPackageIdentity: %v", err)
		}
		if id.ID != "Packed" || id.Version != "3.1.0" {
			t.Errorf("unexpected identity %v", id)
		}

		zr, err := zip.OpenReader(out)
		if err != nil {
			t.Fatalf("zip.OpenReader: %v", err)
		}
		defer zr.Close()
		if len(zr.File) != 2 {
			t.Errorf("expected nuspec + 1 file, got %d entries", len(zr.File))
		}
	})

	t.Run("fails when patterns match nothing", func(t *testing.T) {
		_, err := Pack(m, []string{filepath.Join(tempDir, "*.missing")}, filepath.Join(tempDir, "x.nupkg"))
		if err == nil {
			t.Error("expected error for unmatched patterns")
		}
	})

	t.Run("rejects invalid manifest", func(t *testing.T) {
		_, err := Pack(Manifest{ID: "bad id", Version: "1.0.0"}, nil, filepath.Join(tempDir, "y.nupkg"))
		if !errors.Is(err, ErrInvalidID) {
			t.Errorf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestFileName(t *testing.T) {
	got := FileName(Manifest{ID: "Foo.Bar", Version: "1.0"})
	if got != "foo.bar.1.0.0.nupkg" {
		t.Errorf("FileName() = %q", got)
	}
}
