package taskmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/task"
)

var _ task.Manager = &MockManager{}

// MockManager is a testify mock of task.Manager.
type MockManager struct {
	mock.Mock
}

func (m *MockManager) AddTasks(ctx context.Context, submissionID, operation string, specs []task.Spec) error {
	args := m.Called(ctx, submissionID, operation, specs)
	return args.Error(0)
}

func (m *MockManager) NextTask(ctx context.Context, submissionID, operation string) (*model.Task, error) {
	args := m.Called(ctx, submissionID, operation)
	t, _ := args.Get(0).(*model.Task)
	return t, args.Error(1)
}

func (m *MockManager) CompleteTask(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockManager) FailTask(ctx context.Context, taskID string, err error) error {
	args := m.Called(ctx, taskID, err)
	return args.Error(0)
}

func (m *MockManager) Progress(ctx context.Context, submissionID, operation string) (*model.TaskProgress, error) {
	args := m.Called(ctx, submissionID, operation)
	p, _ := args.Get(0).(*model.TaskProgress)
	return p, args.Error(1)
}

func (m *MockManager) ListTasks(ctx context.Context, submissionID, operation string) ([]model.Task, error) {
	args := m.Called(ctx, submissionID, operation)
	t, _ := args.Get(0).([]model.Task)
	return t, args.Error(1)
}

func (m *MockManager) HasPendingOperation(ctx context.Context, submissionID string) (string, bool, error) {
	args := m.Called(ctx, submissionID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockManager) ClearOperation(ctx context.Context, submissionID, operation string) error {
	args := m.Called(ctx, submissionID, operation)
	return args.Error(0)
}
