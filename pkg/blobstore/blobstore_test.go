package blobstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, handler http.HandlerFunc, opts ...Option) Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPStore(srv.URL, "receipts", opts...)
}

func TestPut(t *testing.T) {
	st := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/receipts/scans/r-1.jpg", r.URL.Path)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, body)

		w.WriteHeader(http.StatusOK)
	})

	loc, err := st.Put(context.Background(), "scans/r-1.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "receipts", Key: "scans/r-1.jpg"}, loc)
	assert.Equal(t, "receipts/scans/r-1.jpg", loc.String())
}

func TestPut_ServerError(t *testing.T) {
	st := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("backend unavailable"))
	})

	_, err := st.Put(context.Background(), "scans/r-1.jpg", []byte("x"), "image/jpeg")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "backend unavailable")
}

func TestPut_AccessToken(t *testing.T) {
	st := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer store-secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}, WithAccessToken("store-secret"))

	_, err := st.Put(context.Background(), "k", []byte("x"), "image/jpeg")
	require.NoError(t, err)
}

func TestExists(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{name: "present", status: http.StatusOK, want: true},
		{name: "absent", status: http.StatusNotFound, want: false},
		{name: "forbidden", status: http.StatusForbidden, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				assert.Equal(t, "/receipts/scans/r-1.jpg", r.URL.Path)
				w.WriteHeader(tt.status)
			})

			ok, err := st.Exists(context.Background(), Location{Bucket: "receipts", Key: "scans/r-1.jpg"})
			if tt.wantErr {
				require.Error(t, err)
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPut_ContextCancellation(t *testing.T) {
	st := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should have been cancelled")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.Put(ctx, "k", []byte("x"), "image/jpeg")
	require.Error(t, err)
}
