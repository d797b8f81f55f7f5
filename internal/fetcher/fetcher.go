// Package fetcher resolves receipt image sources into bytes. A source is a
// local path, an http(s) URL, or an ftp URL; batch manifests mix all three.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Fetcher resolves one source reference into image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// Options configures the client.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64
	RatePerSec float64
	RateBurst  int
}

// Client implements Fetcher over HTTP, FTP, and the local filesystem.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client with the given options. Zero fields get defaults.
func New(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = "receipt-scan/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 64 << 20
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 10
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = int(opts.RatePerSec)
		if opts.RateBurst < 1 {
			opts.RateBurst = 1
		}
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		opts: opts,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RateBurst),
	}
}

// Fetch dispatches on the source scheme. A source with no scheme is a local
// path.
func (c *Client) Fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return c.fetchFile(source)
	}
	switch u.Scheme {
	case "http", "https":
		return c.fetchHTTP(ctx, source)
	case "ftp":
		return c.fetchFTP(ctx, source)
	case "file":
		return c.fetchFile(u.Path)
	default:
		return nil, eris.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

func (c *Client) fetchFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read local file")
	}
	if int64(len(data)) > c.opts.MaxBytes {
		return nil, eris.Errorf("source %s exceeds %d byte cap", path, c.opts.MaxBytes)
	}
	return data, nil
}

// readCapped drains r up to the byte cap and fails when the source is
// larger. The cap guards against a manifest pointing at something that is
// clearly not a receipt photo.
func (c *Client) readCapped(r io.Reader, source string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.opts.MaxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	if int64(len(data)) > c.opts.MaxBytes {
		return nil, eris.Errorf("source %s exceeds %d byte cap", source, c.opts.MaxBytes)
	}
	return data, nil
}
