package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/internal/store"
	"github.com/tabsplit/receipt-scan/pkg/blobstore"
	"github.com/tabsplit/receipt-scan/pkg/docanalysis"
)

// --- Blob Store Mock ---

type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (blobstore.Location, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.Get(0).(blobstore.Location), args.Error(1)
}

func (m *mockBlobStore) Exists(ctx context.Context, loc blobstore.Location) (bool, error) {
	args := m.Called(ctx, loc)
	return args.Bool(0), args.Error(1)
}

// --- Analysis Runner Mock ---

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, loc blobstore.Location) (*model.AnalysisJob, *docanalysis.AnalysisStatus, error) {
	args := m.Called(ctx, loc)
	var job *model.AnalysisJob
	if args.Get(0) != nil {
		job = args.Get(0).(*model.AnalysisJob)
	}
	var status *docanalysis.AnalysisStatus
	if args.Get(1) != nil {
		status = args.Get(1).(*docanalysis.AnalysisStatus)
	}
	return job, status, args.Error(2)
}

// --- Scan Store Mock ---

type mockScanStore struct {
	mock.Mock
}

func (m *mockScanStore) SaveScan(ctx context.Context, scan *model.ScanResult) error {
	args := m.Called(ctx, scan)
	return args.Error(0)
}

func (m *mockScanStore) GetScan(ctx context.Context, id string) (*model.ScanResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScanResult), args.Error(1)
}

func (m *mockScanStore) ListScans(ctx context.Context, filter store.ScanFilter) ([]model.ScanResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ScanResult), args.Error(1)
}

func (m *mockScanStore) DeleteScan(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockScanStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockScanStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Ensure interface compliance ---
var (
	_ blobstore.Store = (*mockBlobStore)(nil)
	_ Runner          = (*mockRunner)(nil)
	_ store.Store     = (*mockScanStore)(nil)
)
