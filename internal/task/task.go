package task

import (
	"context"

	"github.com/slok/wrapperctl/internal/model"
)

// Spec describes a task to be added to an operation.
type Spec struct {
	Name string
	// ResourceID is the resource the task acts on.
	ResourceID string
}

// Manager handles task tracking for multi-step operations of a submission.
type Manager interface {
	// AddTasks adds multiple tasks to an operation in order.
	AddTasks(ctx context.Context, submissionID, operation string, specs []Spec) error

	// NextTask returns the first task of an operation that is not done, failed
	// ones included so they can be retried. Returns nil when all are done.
	NextTask(ctx context.Context, submissionID, operation string) (*model.Task, error)

	// CompleteTask marks a task as completed.
	CompleteTask(ctx context.Context, taskID string) error

	// FailTask marks a task as failed with an error message.
	FailTask(ctx context.Context, taskID string, err error) error

	// Progress returns the completion progress for an operation.
	Progress(ctx context.Context, submissionID, operation string) (*model.TaskProgress, error)

	// ListTasks returns the tasks of an operation in order.
	ListTasks(ctx context.Context, submissionID, operation string) ([]model.Task, error)

	// HasPendingOperation checks if a submission has an operation with tasks not done.
	// Returns the operation name and true if found, empty string and false otherwise.
	HasPendingOperation(ctx context.Context, submissionID string) (operation string, hasPending bool, err error)

	// ClearOperation removes all tasks for an operation.
	ClearOperation(ctx context.Context, submissionID, operation string) error
}
