package model

import (
	"fmt"
	"time"
)

// WrapperStatus is the generation stage a resource wrapper job is in.
type WrapperStatus string

const (
	// WrapperStatusPending indicates the job was accepted but not started.
	WrapperStatusPending WrapperStatus = "pending"
	// WrapperStatusGenerating indicates the backend is generating the wrapper.
	WrapperStatusGenerating WrapperStatus = "generating"
	// WrapperStatusCreatingResource indicates the resource is being persisted.
	WrapperStatusCreatingResource WrapperStatus = "creating_resource"
	// WrapperStatusExecuting indicates the wrapper is running and the resource already exists.
	WrapperStatusExecuting WrapperStatus = "executing"
	// WrapperStatusCompleted is terminal, the job finished successfully.
	WrapperStatusCompleted WrapperStatus = "completed"
	// WrapperStatusError is terminal, the job failed.
	WrapperStatusError WrapperStatus = "error"
)

// Known reports if the status is one of the statuses the backend documents.
// Unknown statuses are kept as they are, but never considered terminal.
func (s WrapperStatus) Known() bool {
	switch s {
	case WrapperStatusPending,
		WrapperStatusGenerating,
		WrapperStatusCreatingResource,
		WrapperStatusExecuting,
		WrapperStatusCompleted,
		WrapperStatusError:
		return true
	}
	return false
}

// IsTerminal reports if no more status changes will happen after this one.
func (s WrapperStatus) IsTerminal() bool {
	return s == WrapperStatusCompleted || s == WrapperStatusError
}

// HasResource reports if a wrapper on this status can already have a resource assigned.
func (s WrapperStatus) HasResource() bool {
	return s == WrapperStatusCompleted || s == WrapperStatusExecuting
}

// Wrapper is a backend generation job that converts a raw source into a resource.
// It is owned by the backend, the client only observes it.
type Wrapper struct {
	ID           string
	Status       WrapperStatus
	ResourceID   string // Empty until the backend assigns it.
	ErrorMessage string
	SourceConfig SourceConfig
	Metadata     map[string]any
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// GenerateRequest is the request to start a new wrapper generation job.
type GenerateRequest struct {
	SourceConfig       SourceConfig
	Metadata           map[string]any
	AutoCreateResource bool
}

// DefaultJobErrorMessage is used when a wrapper fails without a reason.
const DefaultJobErrorMessage = "resource generation failed"

// JobError is returned when a wrapper job finishes on the error status.
type JobError struct {
	WrapperID string
	Message   string
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultJobErrorMessage
	}
	return fmt.Sprintf("wrapper %s failed: %s", e.WrapperID, msg)
}
