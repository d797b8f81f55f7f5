//go:build !integration

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/pipeline"
)

// stubFetcher returns canned bytes, or an error, for every source.
type stubFetcher struct {
	data  []byte
	err   error
	calls atomic.Int64
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func makeFakeItems(n int) []batchItem {
	items := make([]batchItem, n)
	for i := range items {
		items[i] = batchItem{
			Source: fmt.Sprintf("https://cdn.example.com/receipts/img-%d.jpg", i),
			Name:   fmt.Sprintf("img-%d.jpg", i),
		}
	}
	return items
}

func okScanFunc(count *atomic.Int64) scanFunc {
	return func(_ context.Context, _ pipeline.Input) (*model.ScanResult, error) {
		count.Add(1)
		return &model.ScanResult{
			ID:      "scan-1",
			Status:  model.ScanStatusComplete,
			Receipt: &model.Receipt{},
		}, nil
	}
}

func TestProcessBatch_EmptyItems(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}
	err := processBatch(context.Background(), nil, 10, 5, fetch, func(_ context.Context, _ pipeline.Input) (*model.ScanResult, error) {
		t.Fatal("scan should not be called for an empty manifest")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), fetch.calls.Load())
}

func TestProcessBatch_AllSucceed(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}
	var count atomic.Int64

	err := processBatch(context.Background(), makeFakeItems(3), 0, 2, fetch, okScanFunc(&count))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.Load())
	assert.Equal(t, int64(3), fetch.calls.Load())
}

func TestProcessBatch_FetchFailuresDoNotAbort(t *testing.T) {
	fetch := &stubFetcher{err: errors.New("connection refused")}

	err := processBatch(context.Background(), makeFakeItems(3), 0, 2, fetch, func(_ context.Context, _ pipeline.Input) (*model.ScanResult, error) {
		t.Fatal("scan should not be called when fetch fails")
		return nil, nil
	})
	// Individual failures don't abort the batch.
	require.NoError(t, err)
	assert.Equal(t, int64(3), fetch.calls.Load())
}

func TestProcessBatch_ScanFailuresDoNotAbort(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}

	err := processBatch(context.Background(), makeFakeItems(2), 0, 2, fetch, func(_ context.Context, _ pipeline.Input) (*model.ScanResult, error) {
		return nil, errors.New("analysis error")
	})
	require.NoError(t, err)
}

func TestProcessBatch_MixedResults(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}
	var callCount atomic.Int64

	err := processBatch(context.Background(), makeFakeItems(4), 0, 2, fetch, func(_ context.Context, _ pipeline.Input) (*model.ScanResult, error) {
		n := callCount.Add(1)
		if n%2 == 0 {
			return nil, errors.New("even-numbered call fails")
		}
		return &model.ScanResult{ID: "scan-1", Receipt: &model.Receipt{}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), callCount.Load())
}

func TestProcessBatch_AppliesLimit(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}
	var count atomic.Int64

	err := processBatch(context.Background(), makeFakeItems(5), 3, 2, fetch, okScanFunc(&count))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.Load(), "should only process 3 items due to limit")
}

func TestProcessBatch_LimitLargerThanItems(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}
	var count atomic.Int64

	err := processBatch(context.Background(), makeFakeItems(2), 10, 2, fetch, okScanFunc(&count))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Load(), "should process all 2 items since limit > count")
}

func TestProcessBatch_ZeroLimit(t *testing.T) {
	// A limit of 0 means no limit.
	fetch := &stubFetcher{data: []byte("img")}
	var count atomic.Int64

	err := processBatch(context.Background(), makeFakeItems(4), 0, 5, fetch, okScanFunc(&count))
	require.NoError(t, err)
	assert.Equal(t, int64(4), count.Load())
}

func TestProcessBatch_Concurrency1(t *testing.T) {
	fetch := &stubFetcher{data: []byte("img")}
	var count atomic.Int64

	err := processBatch(context.Background(), makeFakeItems(3), 0, 1, fetch, okScanFunc(&count))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.Load())
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	fetch := &stubFetcher{err: context.Canceled}

	// Fetches fail with the cancelled context; the batch still finishes.
	err := processBatch(ctx, makeFakeItems(2), 0, 2, fetch, func(_ context.Context, _ pipeline.Input) (*model.ScanResult, error) {
		return nil, context.Canceled
	})
	assert.NoError(t, err)
}

func TestReadManifest_PlainSources(t *testing.T) {
	items, err := readManifest(strings.NewReader("receipts/a.jpg\nreceipts/b.jpg\n"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "receipts/a.jpg", items[0].Source)
	assert.Equal(t, "a.jpg", items[0].Name)
	assert.Equal(t, "b.jpg", items[1].Name)
}

func TestReadManifest_HeaderRow(t *testing.T) {
	manifest := "source,name\nreceipts/a.jpg,breakfast\n"
	items, err := readManifest(strings.NewReader(manifest))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "receipts/a.jpg", items[0].Source)
	assert.Equal(t, "breakfast", items[0].Name)
}

func TestReadManifest_CommentsAndBlanks(t *testing.T) {
	manifest := "# July receipts\n\nreceipts/a.jpg\n,orphan-name\nreceipts/b.jpg,dinner\n"
	items, err := readManifest(strings.NewReader(manifest))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.jpg", items[0].Name)
	assert.Equal(t, "dinner", items[1].Name)
}

func TestReadManifest_URLNameDefaulting(t *testing.T) {
	manifest := "https://cdn.example.com/uploads/july-4.jpg?sz=full\n"
	items, err := readManifest(strings.NewReader(manifest))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "july-4.jpg", items[0].Name)
}

func TestReadManifest_Malformed(t *testing.T) {
	_, err := readManifest(strings.NewReader("receipts/a.jpg\n\"unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read manifest")
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"https://cdn.example.com/r/july-4.jpg", "july-4.jpg"},
		{"https://cdn.example.com/r/july-4.jpg?sz=2", "july-4.jpg"},
		{"ftp://files.example.com/scans/receipt.png", "receipt.png"},
		{"/data/receipts/lunch.jpg", "lunch.jpg"},
		{"lunch.jpg", "lunch.jpg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, displayName(tt.source), "source %s", tt.source)
	}
}
