package storage

import (
	"context"

	"github.com/slok/wrapperctl/internal/model"
)

// ListOptions filters the listed submissions.
type ListOptions struct {
	// OnlyUnfinished returns only the submissions that didn't finish.
	OnlyUnfinished bool
	// IndicatorID returns only the submissions of the indicator when set.
	IndicatorID string
}

// Repository is the interface for the submission journal persistence.
type Repository interface {
	CreateSubmission(ctx context.Context, s model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	GetSubmissionByWrapper(ctx context.Context, wrapperID string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, opts ListOptions) ([]model.Submission, error)
	UpdateSubmission(ctx context.Context, s model.Submission) error
	DeleteSubmission(ctx context.Context, id string) error
}
