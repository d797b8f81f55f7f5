package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return New(Options{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RatePerSec: 1000,
		RateBurst:  1000,
	})
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o644))

	c := newTestClient()
	data, err := c.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestFetch_FileScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o644))

	c := newTestClient()
	data, err := c.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestFetch_MissingFile(t *testing.T) {
	c := newTestClient()
	_, err := c.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read local file")
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	c := newTestClient()
	_, err := c.Fetch(context.Background(), "gopher://example.com/receipt.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported source scheme "gopher"`)
}

func TestFetch_LocalFileOverCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.jpg")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

	c := New(Options{MaxBytes: 1024, RatePerSec: 1000})
	_, err := c.Fetch(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte cap")
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, "receipt-scan/1.0", c.opts.UserAgent)
	assert.Equal(t, 30*time.Second, c.opts.Timeout)
	assert.Equal(t, 3, c.opts.MaxRetries)
	assert.Equal(t, int64(64<<20), c.opts.MaxBytes)
	assert.Equal(t, float64(10), c.opts.RatePerSec)
}
