package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"feedprobe/internal/feed"
)

// APIKeyHeader carries the push/delete key
const APIKeyHeader = "X-NuGet-ApiKey"

// DefaultTimeout is the per-request timeout of the default HTTP client
const DefaultTimeout = 100 * time.Second

var (
	// ErrTransport wraps failures that produced no HTTP response
	ErrTransport = errors.New("transport error")
	// ErrDecode wraps malformed response bodies
	ErrDecode = errors.New("malformed response")
)

// StatusError is returned by calls whose contract has no status-only outcome
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed (status %d)", e.Op, e.StatusCode)
}

// Protocol speaks the V2 (OData/Atom) feed protocol over HTTP
type Protocol struct {
	httpClient *http.Client
	userAgent  string
	log        *zap.Logger
}

// Option configures a Protocol
type Option func(*Protocol)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(p *Protocol) { p.httpClient = c }
}

// WithLogger sets the logger used for request tracing
func WithLogger(l *zap.Logger) Option {
	return func(p *Protocol) { p.log = l }
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(p *Protocol) { p.userAgent = ua }
}

// New creates a protocol client
func New(opts ...Option) *Protocol {
	p := &Protocol{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "feedprobe/1.0",
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetMetadata fetches and parses the source's $metadata document
func (p *Protocol) GetMetadata(ctx context.Context, source feed.Source) (*feed.Metadata, error) {
	resp, err := p.do(ctx, source, http.MethodGet, "/$metadata", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("metadata", resp)
	}

	md, err := DecodeMetadata(resp.Body)
	if err != nil {
		return nil, err
	}
	if md.DataServiceVersion == "" {
		md.DataServiceVersion = resp.Header.Get("DataServiceVersion")
	}
	return md, nil
}

// PushPackage uploads a package and returns the response status
func (p *Protocol) PushPackage(ctx context.Context, source feed.Source, pkg io.Reader) (int, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("package", "package.nupkg")
	if err != nil {
		return 0, fmt.Errorf("failed to create form: %w", err)
	}
	if _, err := io.Copy(part, pkg); err != nil {
		return 0, fmt.Errorf("failed to read package: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish form: %w", err)
	}

	resp, err := p.do(ctx, source, http.MethodPut, "/package", &buf, writer.FormDataContentType())
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	return resp.StatusCode, nil
}

// DeletePackage deletes (unlists) a package version and returns the response status
func (p *Protocol) DeletePackage(ctx context.Context, source feed.Source, id feed.Identity) (int, error) {
	path := fmt.Sprintf("/package/%s/%s", url.PathEscape(id.ID), url.PathEscape(id.Version))

	resp, err := p.do(ctx, source, http.MethodDelete, path, nil, "")
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	return resp.StatusCode, nil
}

// GetPackageEntry looks up a single package entry by identity
func (p *Protocol) GetPackageEntry(ctx context.Context, source feed.Source, id feed.Identity) (feed.Result[feed.Entry], error) {
	resp, err := p.do(ctx, source, http.MethodGet, EntryPath(id), nil, "")
	if err != nil {
		return feed.Result[feed.Entry]{}, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return feed.Status[feed.Entry](resp.StatusCode), nil
	}

	entry, err := DecodeEntry(resp.Body)
	if err != nil {
		return feed.Result[feed.Entry]{}, err
	}
	return feed.OK(*entry), nil
}

// GetPackageCollection queries the Packages collection with an OData filter
func (p *Protocol) GetPackageCollection(ctx context.Context, source feed.Source, filter string) (feed.Result[feed.Feed], error) {
	path := "/Packages()"
	if filter != "" {
		path += "?" + url.Values{"$filter": {filter}}.Encode()
	}

	resp, err := p.do(ctx, source, http.MethodGet, path, nil, "")
	if err != nil {
		return feed.Result[feed.Feed]{}, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return feed.Status[feed.Feed](resp.StatusCode), nil
	}

	f, err := DecodeFeed(resp.Body)
	if err != nil {
		return feed.Result[feed.Feed]{}, err
	}
	return feed.OK(*f), nil
}

// EntryPath returns the feed-relative path addressing a single entry
func EntryPath(id feed.Identity) string {
	return fmt.Sprintf("/Packages(Id='%s',Version='%s')",
		url.PathEscape(quoteLiteral(id.ID)), url.PathEscape(quoteLiteral(id.Version)))
}

// do makes a request against the source with the API key and tracing
func (p *Protocol) do(ctx context.Context, source feed.Source, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	target := source.Key() + path

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/xml")
	if source.APIKey != "" {
		req.Header.Set(APIKeyHeader, source.APIKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, target, err)
	}

	p.log.Debug("feed request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// drain lets the transport reuse the connection
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
