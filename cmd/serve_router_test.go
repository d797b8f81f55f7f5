//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/store"
)

// multipartImage builds a multipart body with a single file field.
func multipartImage(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// newRouterStore opens a throwaway SQLite store for handler tests.
func newRouterStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func storedScan(id string, status model.ScanStatus) *model.ScanResult {
	return &model.ScanResult{
		ID:     id,
		Source: "receipt.jpg",
		Status: status,
		Receipt: &model.Receipt{
			Merchant: &model.TextField{Value: "JOE'S DINER", Confidence: 98},
			Total:    &model.MoneyField{Value: 16.74, Confidence: 97},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestBuildRouter_HealthEndpoint(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Upload_NilPipeline(t *testing.T) {
	// With a nil pipeline, the goroutine drops the work gracefully.
	router := buildRouter(context.Background(), nil, nil, "", 4<<20)

	body, contentType := multipartImage(t, "image", "lunch.jpg", []byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/receipts", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "lunch.jpg", resp["source"])
	assert.NotEmpty(t, resp["id"])

	// Give the goroutine time to execute the nil check path.
	time.Sleep(10 * time.Millisecond)
}

func TestBuildRouter_Upload_MissingImageField(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "", 4<<20)

	body, contentType := multipartImage(t, "photo", "lunch.jpg", []byte("fake image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/receipts", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "image field is required")
}

func TestBuildRouter_Upload_NotMultipart(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "", 4<<20)

	req := httptest.NewRequest(http.MethodPost, "/receipts", bytes.NewReader([]byte("not a form")))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid multipart request")
}

func TestBuildRouter_Upload_OverSizeLimit(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "", 64)

	body, contentType := multipartImage(t, "image", "huge.jpg", bytes.Repeat([]byte("x"), 1024))
	req := httptest.NewRequest(http.MethodPost, "/receipts", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBuildRouter_Auth_ValidToken(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "test-secret-123", 4<<20)

	body, contentType := multipartImage(t, "image", "lunch.jpg", []byte("fake"))
	req := httptest.NewRequest(http.MethodPost, "/receipts", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer test-secret-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	time.Sleep(10 * time.Millisecond)
}

func TestBuildRouter_Auth_InvalidToken(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "test-secret-123", 4<<20)

	body, contentType := multipartImage(t, "image", "lunch.jpg", []byte("fake"))
	req := httptest.NewRequest(http.MethodPost, "/receipts", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "unauthorized")
}

func TestBuildRouter_Auth_MissingHeader(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "test-secret-123", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/receipts", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBuildRouter_Auth_HealthStaysOpen(t *testing.T) {
	// Health is outside the auth group so load balancers can reach it.
	router := buildRouter(context.Background(), nil, nil, "test-secret-123", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuildRouter_ListScans_NoStore(t *testing.T) {
	router := buildRouter(context.Background(), nil, nil, "", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/receipts", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "store not configured")
}

func TestBuildRouter_GetScan(t *testing.T) {
	st := newRouterStore(t)
	require.NoError(t, st.SaveScan(context.Background(), storedScan("scan-abc", model.ScanStatusComplete)))

	router := buildRouter(context.Background(), nil, st, "", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/receipts/scan-abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var scan model.ScanResult
	err := json.Unmarshal(rr.Body.Bytes(), &scan)
	require.NoError(t, err)
	assert.Equal(t, "scan-abc", scan.ID)
	require.NotNil(t, scan.Receipt)
	require.NotNil(t, scan.Receipt.Total)
	assert.InDelta(t, 16.74, scan.Receipt.Total.Value, 0.001)
}

func TestBuildRouter_GetScan_NotFound(t *testing.T) {
	st := newRouterStore(t)
	router := buildRouter(context.Background(), nil, st, "", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/receipts/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "scan not found")
}

func TestBuildRouter_ListScans_Filtered(t *testing.T) {
	st := newRouterStore(t)
	require.NoError(t, st.SaveScan(context.Background(), storedScan("scan-1", model.ScanStatusComplete)))
	require.NoError(t, st.SaveScan(context.Background(), storedScan("scan-2", model.ScanStatusFailed)))

	router := buildRouter(context.Background(), nil, st, "", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/receipts?status=failed", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var scans []model.ScanResult
	err := json.Unmarshal(rr.Body.Bytes(), &scans)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "scan-2", scans[0].ID)
}

func TestBuildRouter_ListScans_Limit(t *testing.T) {
	st := newRouterStore(t)
	for _, id := range []string{"scan-1", "scan-2", "scan-3"} {
		require.NoError(t, st.SaveScan(context.Background(), storedScan(id, model.ScanStatusComplete)))
	}

	router := buildRouter(context.Background(), nil, st, "", 4<<20)

	req := httptest.NewRequest(http.MethodGet, "/receipts?limit=2", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var scans []model.ScanResult
	err := json.Unmarshal(rr.Body.Bytes(), &scans)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
}

func TestBuildRouter_DeleteScan(t *testing.T) {
	st := newRouterStore(t)
	require.NoError(t, st.SaveScan(context.Background(), storedScan("scan-abc", model.ScanStatusComplete)))

	router := buildRouter(context.Background(), nil, st, "", 4<<20)

	req := httptest.NewRequest(http.MethodDelete, "/receipts/scan-abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// A second delete finds nothing.
	req = httptest.NewRequest(http.MethodDelete, "/receipts/scan-abc", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
