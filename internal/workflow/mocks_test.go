package workflow

import (
	"bytes"
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/satymtripathi/microbiology/pkg/types"
)

type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Create(ctx context.Context, req *types.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*types.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Request), args.Error(1)
}

func (m *MockRequestRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*types.Request, error) {
	args := m.Called(ctx, doctorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Request), args.Error(1)
}

func (m *MockRequestRepository) ListPending(ctx context.Context) ([]*types.Request, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Request), args.Error(1)
}

func (m *MockRequestRepository) List(ctx context.Context, filters *types.RequestFilters) ([]*types.Request, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Request), args.Error(1)
}

func (m *MockRequestRepository) CompleteWithReport(ctx context.Context, report *types.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockRequestRepository) GetReport(ctx context.Context, requestID string) (*types.Report, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Report), args.Error(1)
}

func (m *MockRequestRepository) GetReports(ctx context.Context, requestIDs []string) (map[string]*types.Report, error) {
	args := m.Called(ctx, requestIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*types.Report), args.Error(1)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Append(ctx context.Context, entry *types.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockHistoryRepository) ListForRequest(ctx context.Context, requestID string, limit int) ([]*types.HistoryEntry, error) {
	args := m.Called(ctx, requestID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.HistoryEntry), args.Error(1)
}

func (m *MockHistoryRepository) ListForRequests(ctx context.Context, requestIDs []string, limit int) (map[string][]*types.HistoryEntry, error) {
	args := m.Called(ctx, requestIDs, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]*types.HistoryEntry), args.Error(1)
}

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, name, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	switch body := args.Get(0).(type) {
	case []byte:
		return io.NopCloser(bytes.NewReader(body)), args.Error(1)
	default:
		return body.(io.ReadCloser), args.Error(1)
	}
}

func (m *MockImageStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockImageStore) Backend() string {
	return "mock"
}
