// Package blobstore talks to the S3-compatible object store the analysis
// service reads source images from. The core only needs a put-and-confirm
// contract; bucket lifecycle and retention are operated elsewhere.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Location identifies a stored object. It is the handle handed to the
// analysis service.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// Store is the durable blob storage collaborator.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Location, error)
	Exists(ctx context.Context, loc Location) (bool, error)
}

// APIError is returned when the store responds with an unexpected status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("blobstore: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpStore.
type Option func(*httpStore)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *httpStore) {
		s.http = hc
	}
}

// WithAccessToken sets a bearer token sent on every request.
func WithAccessToken(token string) Option {
	return func(s *httpStore) {
		s.token = token
	}
}

// httpStore implements Store against any S3-compatible HTTP endpoint:
// PUT /{bucket}/{key} to write, HEAD /{bucket}/{key} to confirm.
type httpStore struct {
	endpoint string
	bucket   string
	token    string
	http     *http.Client
}

// NewHTTPStore creates a Store writing into a single bucket at endpoint.
func NewHTTPStore(endpoint, bucket string, opts ...Option) Store {
	s := &httpStore{
		endpoint: endpoint,
		bucket:   bucket,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *httpStore) objectURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, bucket, key)
}

func (s *httpStore) Put(ctx context.Context, key string, data []byte, contentType string) (Location, error) {
	loc := Location{Bucket: s.bucket, Key: key}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(s.bucket, key), bytes.NewReader(data))
	if err != nil {
		return Location{}, eris.Wrap(err, "blobstore: create put request")
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Location{}, eris.Wrap(err, fmt.Sprintf("blobstore: put %s", loc))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Location{}, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return loc, nil
}

func (s *httpStore) Exists(ctx context.Context, loc Location) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(loc.Bucket, loc.Key), nil)
	if err != nil {
		return false, eris.Wrap(err, "blobstore: create head request")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return false, eris.Wrap(err, fmt.Sprintf("blobstore: head %s", loc))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &APIError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
}
