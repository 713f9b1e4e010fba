package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedprobe/internal/feed"
)

const nugetStyleEntry = `<?xml version="1.0" encoding="utf-8"?>
<entry xml:base="https://example.org/api/v2" xmlns="http://www.w3.org/2005/Atom"
  xmlns:d="http://schemas.microsoft.com/ado/2007/08/dataservices"
  xmlns:m="http://schemas.microsoft.com/ado/2007/08/dataservices/metadata">
  <id>https://example.org/api/v2/Packages(Id='Foo',Version='1.0.0')</id>
  <title type="text">Foo</title>
  <updated>2024-03-01T10:00:00Z</updated>
  <author><name>alice</name></author>
  <content type="application/zip" src="https://example.org/api/v2/package/Foo/1.0.0" />
  <m:properties>
    <d:Id>Foo</d:Id>
    <d:Version>1.0.0</d:Version>
    <d:Description>A package</d:Description>
    <d:Published m:type="Edm.DateTime">2024-03-01T10:00:00.123</d:Published>
    <d:PackageSize m:type="Edm.Int64">1234</d:PackageSize>
    <d:PackageHash>abc</d:PackageHash>
    <d:Tags m:null="true" />
  </m:properties>
</entry>`

func TestDecodeEntry(t *testing.T) {
	entry, err := DecodeEntry(strings.NewReader(nugetStyleEntry))
	require.NoError(t, err)

	assert.Equal(t, "Foo", entry.ID)
	assert.Equal(t, "1.0.0", entry.Version)
	assert.Equal(t, "alice", entry.Authors)
	assert.Equal(t, int64(1234), entry.PackageSize)
	assert.True(t, entry.Listed)
	assert.Equal(t, 2024, entry.Published.Year())
	assert.Equal(t, "https://example.org/api/v2/package/Foo/1.0.0", entry.ContentURL)
}

func TestEntryRoundTripPreservesListing(t *testing.T) {
	published := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	for _, listed := range []bool{true, false} {
		var buf bytes.Buffer
		in := feed.Entry{ID: "Bar", Version: "2.0.0", Authors: "bob", Published: published, Listed: listed}
		require.NoError(t, EncodeEntry(&buf, "http://host/api/v2/", in))

		out, err := DecodeEntry(&buf)
		require.NoError(t, err)
		assert.Equal(t, listed, out.Listed)
		assert.Equal(t, in.Identity(), out.Identity())
		if listed {
			assert.True(t, published.Equal(out.Published))
		}
	}
}

func TestDecodeMetadata(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeMetadata(&buf, feed.Metadata{
		DataServiceVersion: "2.0",
		SchemaNamespace:    "NuGetGallery",
		EntitySets:         []string{"Packages"},
		FunctionImports:    []string{"Search", "FindPackagesById"},
	}))

	md, err := DecodeMetadata(&buf)
	require.NoError(t, err)
	assert.Equal(t, "2.0", md.DataServiceVersion)
	assert.Equal(t, "NuGetGallery", md.SchemaNamespace)
	assert.True(t, md.HasEntitySet("packages"))
	assert.True(t, md.SupportsFunction("FindPackagesById"))
	assert.False(t, md.SupportsFunction("GetUpdates"))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeFeed(strings.NewReader("{not xml"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestGetPackageEntry(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.Contains(r.URL.Path, "Missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		io.WriteString(w, nugetStyleEntry)
	}))
	defer server.Close()

	p := New()
	src := feed.NewSource("test", server.URL+"/api/v2/")

	t.Run("found", func(t *testing.T) {
		res, err := p.GetPackageEntry(context.Background(), src, feed.Identity{ID: "Foo", Version: "1.0.0"})
		require.NoError(t, err)
		assert.Equal(t, "/api/v2/Packages(Id='Foo',Version='1.0.0')", gotPath)

		entry, ok := res.Data()
		require.True(t, ok)
		assert.Equal(t, "Foo", entry.ID)
	})

	t.Run("not found carries status only", func(t *testing.T) {
		res, err := p.GetPackageEntry(context.Background(), src, feed.Identity{ID: "Missing", Version: "1.0.0"})
		require.NoError(t, err)
		assert.True(t, res.NotFound())
		_, ok := res.Data()
		assert.False(t, ok)
	})
}

func TestGetPackageCollectionSendsFilter(t *testing.T) {
	var gotFilter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Packages()", r.URL.Path)
		gotFilter = r.URL.Query().Get("$filter")
		EncodeFeed(w, "http://"+r.Host, feed.Feed{
			Title:   "Packages",
			Entries: []feed.Entry{{ID: "Foo", Version: "1.0.0", Listed: true, Published: time.Now()}},
		})
	}))
	defer server.Close()

	id := feed.Identity{ID: "Foo", Version: "1.0.0"}
	res, err := New().GetPackageCollection(context.Background(), feed.NewSource("", server.URL), CustomFilter(id))
	require.NoError(t, err)

	assert.Equal(t, CustomFilter(id), gotFilter)
	f, ok := res.Data()
	require.True(t, ok)
	require.Len(t, f.Entries, 1)
	assert.Equal(t, id, f.Entries[0].Identity())
}

func TestPushPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v2/package", r.URL.Path)
		if r.Header.Get(APIKeyHeader) != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		file, _, err := r.FormFile("package")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "zipbytes", string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	p := New()

	src := feed.Source{URL: server.URL + "/api/v2", APIKey: "secret"}
	code, err := p.PushPackage(context.Background(), src, strings.NewReader("zipbytes"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, code)

	src.APIKey = "wrong"
	code, err = p.PushPackage(context.Background(), src, strings.NewReader("zipbytes"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDeletePackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/package/Foo/1.0.0", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	code, err := New().DeletePackage(context.Background(), feed.NewSource("", server.URL), feed.Identity{ID: "Foo", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New().GetPackageEntry(context.Background(), feed.NewSource("", url), feed.Identity{ID: "Foo", Version: "1.0.0"})
	assert.True(t, errors.Is(err, ErrTransport), "expected transport error, got %v", err)
}

func TestMetadataStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New().GetMetadata(context.Background(), feed.NewSource("", server.URL))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
