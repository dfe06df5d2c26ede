package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
)

var _ storage.Repository = &MockRepository{}

// MockRepository is a testify mock of storage.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateSubmission(ctx context.Context, s model.Submission) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*model.Submission)
	return s, args.Error(1)
}

func (m *MockRepository) GetSubmissionByWrapper(ctx context.Context, wrapperID string) (*model.Submission, error) {
	args := m.Called(ctx, wrapperID)
	s, _ := args.Get(0).(*model.Submission)
	return s, args.Error(1)
}

func (m *MockRepository) ListSubmissions(ctx context.Context, opts storage.ListOptions) ([]model.Submission, error) {
	args := m.Called(ctx, opts)
	s, _ := args.Get(0).([]model.Submission)
	return s, args.Error(1)
}

func (m *MockRepository) UpdateSubmission(ctx context.Context, s model.Submission) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockRepository) DeleteSubmission(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
