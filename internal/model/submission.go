package model

import (
	"fmt"
	"time"
)

// SubmitMode tells if a submission creates a new resource or replaces an existing one.
type SubmitMode string

const (
	// SubmitModeCreate attaches the generated resource to the indicator.
	SubmitModeCreate SubmitMode = "create"
	// SubmitModeEdit replaces the indicator's previous resource with the generated one.
	SubmitModeEdit SubmitMode = "edit"
)

// Submission is the local record of one ingestion run, from generation request
// to the relink of the generated resource.
type Submission struct {
	ID                 string
	WrapperID          string
	IndicatorID        string
	Mode               SubmitMode
	PreviousResourceID string
	ResourceID         string
	SourceKind         SourceKind
	Status             WrapperStatus
	Error              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// Finished reports if nothing else will happen to the submission.
func (s Submission) Finished() bool {
	return s.CompletedAt != nil
}

// Validate validates the submission.
func (s Submission) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if s.WrapperID == "" {
		return fmt.Errorf("wrapper id is required: %w", ErrNotValid)
	}
	if s.IndicatorID == "" {
		return fmt.Errorf("indicator id is required: %w", ErrNotValid)
	}
	switch s.Mode {
	case SubmitModeCreate:
	case SubmitModeEdit:
		if s.PreviousResourceID == "" {
			return fmt.Errorf("edit mode requires the previous resource id: %w", ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown mode %q: %w", s.Mode, ErrNotValid)
	}
	return nil
}
