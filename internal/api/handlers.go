package api

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"feedprobe/internal/db"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
	"feedprobe/internal/protocol"
	"feedprobe/internal/security"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000

	atomEntryType = "application/atom+xml;type=entry;charset=utf-8"
	atomFeedType  = "application/atom+xml;type=feed;charset=utf-8"
)

// serviceMetadata is what $metadata advertises
var serviceMetadata = feed.Metadata{
	DataServiceVersion: "2.0",
	SchemaNamespace:    "NuGetGallery",
	EntitySets:         []string{"Packages"},
}

var errUnsupportedFilter = errors.New("unsupported filter")

// healthHandler returns API health status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Health(r.Context()); err != nil {
		s.requestLogger(r).Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"service":           "feedd",
		"propagation_delay": s.Config.PropagationDelay.String(),
	})
}

// metadataHandler serves the EDMX service document
func (s *Server) metadataHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DataServiceVersion", serviceMetadata.DataServiceVersion)
	s.writeXML(w, r, http.StatusOK, "application/xml;charset=utf-8", func(out io.Writer) error {
		return protocol.EncodeMetadata(out, serviceMetadata)
	})
}

// entryHandler serves a single entry, listed or not
func (s *Server) entryHandler(w http.ResponseWriter, r *http.Request) {
	id := identityFromVars(r)

	pkg, err := s.Store.GetPackage(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Package not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get package", err)
		return
	}

	base := s.feedBase(r)
	s.writeXML(w, r, http.StatusOK, atomEntryType, func(out io.Writer) error {
		return protocol.EncodeEntry(out, base, pkg.Entry())
	})
}

// collectionHandler answers Packages()?$filter= queries over listed packages
func (s *Server) collectionHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	clauses, err := protocol.ParseFilter(params.Get("$filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid $filter: %v", err))
		return
	}
	q, satisfiable, err := queryFromClauses(clauses)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q.Limit = defaultPageSize
	if top := params.Get("$top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid $top")
			return
		}
		q.Limit = min(n, maxPageSize)
	}

	result := feed.Feed{Title: "Packages", Updated: s.Now(), Entries: []feed.Entry{}}
	if satisfiable && q.Limit > 0 {
		packages, err := s.Store.FindPackages(r.Context(), q)
		if err != nil {
			s.internalError(w, r, "find packages", err)
			return
		}
		for i := range packages {
			result.Entries = append(result.Entries, packages[i].Entry())
		}
	}

	base := s.feedBase(r)
	s.writeXML(w, r, http.StatusOK, atomFeedType, func(out io.Writer) error {
		return protocol.EncodeFeed(out, base, result)
	})
}

// pushHandler accepts a multipart upload with the package in field "package".
// The package becomes readable after the configured propagation delay.
func (s *Server) pushHandler(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)

	claims := claimsFromContext(r.Context())
	if claims == nil || !claims.Push {
		writeError(w, http.StatusForbidden, "API key may not push")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.metrics.push("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "Package too large")
			return
		}
		s.metrics.push("invalid")
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("package")
	if err != nil {
		s.metrics.push("invalid")
		writeError(w, http.StatusBadRequest, "Package file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.Validator.MaxPackageSize()+1))
	if err != nil {
		s.internalError(w, r, "read upload", err)
		return
	}

	manifest, err := s.Validator.ValidatePackage(data)
	if errors.Is(err, security.ErrPackageTooLarge) {
		s.metrics.push("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "Package too large")
		return
	}
	if err != nil {
		s.metrics.push("invalid")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid package: %v", err))
		return
	}

	sum := fmt.Sprintf("%x", sha256.Sum256(data))
	blobPath, err := s.storeBlob(sum, data)
	if err != nil {
		s.metrics.push("error")
		s.internalError(w, r, "store blob", err)
		return
	}

	identity := manifest.Identity()
	now := s.Now()
	created, err := s.Store.CreatePackage(r.Context(), db.Package{
		PackageID:   identity.ID,
		Version:     identity.Version,
		Title:       manifest.Title,
		Description: manifest.Description,
		Authors:     manifest.Authors,
		Tags:        manifest.TagList(),
		SHA256:      sum,
		SizeBytes:   int64(len(data)),
		BlobPath:    blobPath,
		Listed:      true,
		CreatedAt:   now,
		VisibleAt:   now.Add(s.Config.PropagationDelay),
	})
	if errors.Is(err, db.ErrDuplicate) {
		s.metrics.push("duplicate")
		writeError(w, http.StatusConflict, fmt.Sprintf("Package %s already exists", identity))
		return
	}
	if err != nil {
		s.metrics.push("error")
		s.internalError(w, r, "create package", err)
		return
	}

	s.metrics.push("created")
	log.Info("package pushed",
		zap.String("id", identity.ID),
		zap.String("version", identity.Version),
		zap.String("owner", claims.Owner),
		zap.Time("visible_at", created.VisibleAt))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         created.PackageID,
		"version":    created.Version,
		"sha256":     created.SHA256,
		"size":       created.SizeBytes,
		"visible_at": created.VisibleAt,
	})
}

// deleteHandler unlists a package; it stays addressable by entry lookup
func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil || !claims.Delete {
		writeError(w, http.StatusForbidden, "API key may not delete")
		return
	}

	id := identityFromVars(r)
	err := s.Store.UnlistPackage(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Package not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "unlist package", err)
		return
	}

	s.requestLogger(r).Info("package unlisted",
		zap.String("id", id.ID),
		zap.String("version", id.Version),
		zap.String("owner", claims.Owner))
	w.WriteHeader(http.StatusNoContent)
}

// downloadHandler streams the stored package bytes
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.Store.GetPackage(r.Context(), identityFromVars(r))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Package not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get package", err)
		return
	}

	file, err := os.Open(pkg.BlobPath)
	if err != nil {
		s.internalError(w, r, "open blob", err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.internalError(w, r, "stat blob", err)
		return
	}

	name := fmt.Sprintf("%s.%s.nupkg", strings.ToLower(pkg.PackageID), strings.ToLower(pkg.Version))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

// storeBlob writes data content-addressed under StoragePath. Identical
// uploads share one file, so a rejected duplicate never removes a live blob.
func (s *Server) storeBlob(sum string, data []byte) (string, error) {
	dir := filepath.Join(s.Config.StoragePath, sum[:2])
	path := filepath.Join(dir, sum+".nupkg")

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// feedBase is the public feed root used for entry ids and content links
func (s *Server) feedBase(r *http.Request) string {
	if s.Config.BaseURL != "" {
		return s.Config.BaseURL + FeedPrefix
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + FeedPrefix
}

// writeXML renders into a buffer first so encoding failures become a 500
func (s *Server) writeXML(w http.ResponseWriter, r *http.Request, status int, contentType string, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.internalError(w, r, "encode response", err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.requestLogger(r).Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// identityFromVars reads {id} and {version}, undoing OData quote doubling
func identityFromVars(r *http.Request) feed.Identity {
	vars := mux.Vars(r)
	return feed.Identity{
		ID:      strings.ReplaceAll(vars["id"], "''", "'"),
		Version: nupkg.NormalizeVersion(strings.ReplaceAll(vars["version"], "''", "'")),
	}
}

// queryFromClauses maps parsed filter clauses onto a store query. The bool
// is false when the clauses contradict each other and nothing can match.
func queryFromClauses(clauses []protocol.Clause) (db.Query, bool, error) {
	var q db.Query

	for _, c := range clauses {
		switch {
		case c.Op == "eq" && !c.Negate:
			target := &q.ID
			value := c.Value
			if c.Field == "Version" {
				target = &q.Version
				value = nupkg.NormalizeVersion(value)
			}
			if *target != "" && !strings.EqualFold(*target, value) {
				return q, false, nil
			}
			*target = value

		case c.Op == "startswith" && c.Field == "Id" && !c.Negate:
			current, next := strings.ToLower(q.IDPrefix), strings.ToLower(c.Value)
			switch {
			case strings.HasPrefix(next, current):
				q.IDPrefix = c.Value
			case !strings.HasPrefix(current, next):
				return q, false, nil
			}

		case c.Op == "startswith" && c.Field == "Id" && c.Negate:
			q.ExcludeIDPrefixes = append(q.ExcludeIDPrefixes, c.Value)

		default:
			return q, false, fmt.Errorf("%w: %s", errUnsupportedFilter, describeClause(c))
		}
	}

	return q, true, nil
}

func describeClause(c protocol.Clause) string {
	expr := fmt.Sprintf("%s(%s)", c.Op, c.Field)
	if c.Op == "eq" {
		expr = c.Field + " eq"
	}
	if c.Negate {
		expr = "not " + expr
	}
	return expr
}
