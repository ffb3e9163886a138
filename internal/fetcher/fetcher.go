// Package fetcher retrieves raw feed bytes over the supported transports
// with bounded timeouts.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/parser"
)

const (
	// DefaultInteractiveTimeout bounds operator test fetches.
	DefaultInteractiveTimeout = 10 * time.Second
	// DefaultScheduledTimeout bounds scheduled run fetches.
	DefaultScheduledTimeout = 60 * time.Second

	// maxFeedBytes caps payload size; anything larger is not a feed.
	maxFeedBytes = 256 << 20
)

// Result is a successful fetch: the payload plus the sniffed format the
// parser should use.
type Result struct {
	Data        []byte
	ContentType string
	Format      domain.FeedFormat
}

// UploadStore resolves push-uploaded payloads staged through the operator
// API. Keyed by feed id; the newest staged payload wins.
type UploadStore interface {
	Take(ctx context.Context, feedID string) ([]byte, error)
}

// Fetcher retrieves feed content. One instance is constructed at process
// start and shared across workers.
type Fetcher struct {
	httpClient *http.Client
	uploads    UploadStore
	timeout    time.Duration
	log        logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout overrides the per-fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// New creates a fetcher. uploads may be nil when push uploads are not
// configured.
func New(uploads UploadStore, log logger.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		uploads:    uploads,
		timeout:    DefaultScheduledTimeout,
		log:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the feed's content. Every path is bounded by the
// configured timeout; the fetch holds no locks while blocked on I/O.
func (f *Fetcher) Fetch(ctx context.Context, feedID string, cfg domain.TransportConfig) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	started := time.Now()
	var (
		data        []byte
		contentType string
		err         error
	)

	switch cfg.Method {
	case domain.TransportHTTP:
		data, contentType, err = f.fetchHTTP(ctx, cfg, false)
	case domain.TransportHTTPBasic:
		data, contentType, err = f.fetchHTTP(ctx, cfg, true)
	case domain.TransportFTP:
		data, err = f.fetchFTP(ctx, cfg)
	case domain.TransportSFTP:
		data, err = f.fetchSFTP(ctx, cfg)
	case domain.TransportUpload:
		data, err = f.takeUpload(ctx, feedID)
	default:
		return nil, newError(ErrKindConfig, fmt.Errorf("unsupported transport method %q", cfg.Method))
	}

	if err != nil {
		return nil, f.classify(ctx, err)
	}

	result := &Result{
		Data:        data,
		ContentType: contentType,
		Format:      sniffFormat(contentType, data),
	}

	f.log.Debug("feed fetched",
		logger.String("feed_id", feedID),
		logger.String("method", string(cfg.Method)),
		logger.Int("bytes", len(data)),
		logger.Duration("elapsed", time.Since(started)))

	return result, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, cfg domain.TransportConfig, basicAuth bool) ([]byte, string, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, "", newError(ErrKindConfig, fmt.Errorf("invalid url: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, http.NoBody)
	if err != nil {
		return nil, "", newError(ErrKindConfig, err)
	}
	if basicAuth {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", newError(ErrKindAuth, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", newError(ErrKindHTTPStatus, fmt.Errorf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) takeUpload(ctx context.Context, feedID string) ([]byte, error) {
	if f.uploads == nil {
		return nil, newError(ErrKindConfig, errors.New("upload store not configured"))
	}
	data, err := f.uploads.Take(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, newError(ErrKindConnection, errors.New("no staged upload for feed"))
	}
	return data, nil
}

// classify maps raw transport failures onto the error taxonomy. Already
// classified errors pass through.
func (f *Fetcher) classify(ctx context.Context, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(ErrKindTimeout, err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return newError(ErrKindTimeout, err)
	}
	return newError(ErrKindConnection, err)
}

// sniffFormat routes the payload to the right parser variant: the content
// type first, payload shape as fallback.
func sniffFormat(contentType string, data []byte) domain.FeedFormat {
	switch {
	case contains(contentType, "json"):
		return domain.FormatJSON
	case contains(contentType, "xml"):
		return domain.FormatXML
	case contains(contentType, "csv"), contains(contentType, "tab-separated"):
		return domain.FormatDelimited
	default:
		return parser.Sniff(data)
	}
}

func contains(contentType, sub string) bool {
	return strings.Contains(strings.ToLower(contentType), sub)
}
