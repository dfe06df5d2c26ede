package backendmock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/model"
)

var _ backend.Client = &MockClient{}

// MockClient is a testify mock of backend.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	args := m.Called(ctx, name, r)
	return args.String(0), args.Error(1)
}

func (m *MockClient) GenerateWrapper(ctx context.Context, req model.GenerateRequest) (*model.Wrapper, error) {
	args := m.Called(ctx, req)
	w, _ := args.Get(0).(*model.Wrapper)
	return w, args.Error(1)
}

func (m *MockClient) GetWrapper(ctx context.Context, wrapperID string) (*model.Wrapper, error) {
	args := m.Called(ctx, wrapperID)
	w, _ := args.Get(0).(*model.Wrapper)
	return w, args.Error(1)
}

func (m *MockClient) GetIndicator(ctx context.Context, indicatorID string) (*model.Indicator, error) {
	args := m.Called(ctx, indicatorID)
	ind, _ := args.Get(0).(*model.Indicator)
	return ind, args.Error(1)
}

func (m *MockClient) LinkResource(ctx context.Context, indicatorID, resourceID string) error {
	args := m.Called(ctx, indicatorID, resourceID)
	return args.Error(0)
}

func (m *MockClient) UnlinkResource(ctx context.Context, indicatorID, resourceID string) error {
	args := m.Called(ctx, indicatorID, resourceID)
	return args.Error(0)
}

func (m *MockClient) DeleteResource(ctx context.Context, resourceID string) error {
	args := m.Called(ctx, resourceID)
	return args.Error(0)
}
