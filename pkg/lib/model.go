package lib

import (
	"errors"
	"io"
	"time"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/app/reconcile"
	"github.com/slok/wrapperctl/internal/app/status"
	"github.com/slok/wrapperctl/internal/model"
)

// BackendType identifies the backend implementation.
type BackendType string

const (
	// BackendAPI talks to the wrapper generation HTTP API.
	BackendAPI BackendType = "api"
	// BackendFake uses an in-memory backend, for testing.
	BackendFake BackendType = "fake"
)

// SubmitMode tells if a submission creates a new resource or replaces one.
type SubmitMode string

const (
	SubmitModeCreate SubmitMode = "create"
	SubmitModeEdit   SubmitMode = "edit"
)

// AuthType is the authentication used to reach an API source.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "api_key"
)

// WrapperStatus is the state of a wrapper generation job.
//
//	pending -> generating -> creating_resource -> executing -> completed
//
// Any status can move to error. Statuses unknown to this version are kept as
// they are and never considered finished.
type WrapperStatus string

const (
	WrapperStatusPending          WrapperStatus = "pending"
	WrapperStatusGenerating       WrapperStatus = "generating"
	WrapperStatusCreatingResource WrapperStatus = "creating_resource"
	WrapperStatusExecuting        WrapperStatus = "executing"
	WrapperStatusCompleted        WrapperStatus = "completed"
	WrapperStatusError            WrapperStatus = "error"
)

// APISource describes an HTTP API data source.
type APISource struct {
	Location       string
	AuthType       AuthType
	Credentials    string
	Headers        map[string]string
	QueryParams    map[string]string
	TimeoutSeconds int
}

// FileSource is a local file uploaded as the data source.
type FileSource struct {
	// Name is the file name sent to the backend, e.g. "co2.csv".
	Name   string
	Reader io.Reader
}

// SubmitOpts are the options to ingest a resource. Exactly one of File or API
// must be set.
type SubmitOpts struct {
	Name        string
	Description string
	IndicatorID string
	// Mode defaults to [SubmitModeCreate].
	Mode SubmitMode
	// PreviousResourceID is the resource replaced on [SubmitModeEdit].
	PreviousResourceID string
	File               *FileSource
	API                *APISource
	// Metadata is extra metadata stored on the wrapper.
	Metadata map[string]any
	// OnStatus receives the wrapper statuses while it's generating.
	OnStatus func(Wrapper)
}

// Wrapper is a wrapper generation job on the backend.
type Wrapper struct {
	ID           string
	Status       WrapperStatus
	ResourceID   string
	ErrorMessage string
	SourceKind   string
	// Location is the API source location, empty for file sources.
	Location    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Submission is the local journal entry of an ingestion.
type Submission struct {
	ID                 string
	WrapperID          string
	IndicatorID        string
	Mode               SubmitMode
	PreviousResourceID string
	ResourceID         string
	Status             WrapperStatus
	// Error is the last error of the submission, if any.
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Finished reports if nothing is left to do for the submission.
func (s Submission) Finished() bool { return s.CompletedAt != nil }

// Result is the outcome of a finished ingestion.
type Result struct {
	Submission Submission
	Wrapper    Wrapper
	// Linked is false when the wrapper finished without a resource.
	Linked bool
}

// RelinkStep is a step of the resource update of a submission.
type RelinkStep struct {
	// Name is one of link-resource, unlink-resource or delete-resource.
	Name       string
	ResourceID string
	// Status is pending, done or failed.
	Status string
	Error  string
}

// Status is the detailed status of a wrapper.
type Status struct {
	Wrapper Wrapper
	// Submission is nil when the wrapper wasn't submitted from this journal.
	Submission *Submission
	Relink     []RelinkStep
}

// ListSubmissionsOpts filters the listed submissions.
type ListSubmissionsOpts struct {
	OnlyUnfinished bool
	IndicatorID    string
	Status         *WrapperStatus
}

// ReconcileOutcome is the reconciliation result of one submission.
type ReconcileOutcome struct {
	Submission Submission
	// Result is set when the submission finished.
	Result *Result
	Err    error
}

// Sentinel errors, check them with [errors.Is].
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotValid      = errors.New("not valid")
	ErrUpload        = ingest.ErrUpload
	ErrGenerate      = ingest.ErrGenerate
)

// JobError is returned when the backend generation job ends on error.
type JobError = model.JobError

// RelinkError is returned when a wrapper finished but its resource couldn't be
// attached to the indicator. [Client.Reconcile] finishes it.
type RelinkError = ingest.RelinkError

func toInternalRequest(opts SubmitOpts) ingest.Request {
	mode := model.SubmitMode(opts.Mode)
	if mode == "" {
		mode = model.SubmitModeCreate
	}

	metadata := map[string]any{}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	if opts.Name != "" {
		metadata["name"] = opts.Name
	}
	if opts.Description != "" {
		metadata["description"] = opts.Description
	}
	metadata["indicator_id"] = opts.IndicatorID

	req := ingest.Request{
		Mode:               mode,
		IndicatorID:        opts.IndicatorID,
		PreviousResourceID: opts.PreviousResourceID,
		Metadata:           metadata,
	}

	switch {
	case opts.API != nil:
		auth := model.AuthType(opts.API.AuthType)
		if auth == "" {
			auth = model.AuthTypeNone
		}
		req.Source = model.SourceConfig{Kind: model.SourceKindAPI, API: &model.APISource{
			Location:       opts.API.Location,
			AuthType:       auth,
			Credentials:    opts.API.Credentials,
			Headers:        opts.API.Headers,
			QueryParams:    opts.API.QueryParams,
			TimeoutSeconds: opts.API.TimeoutSeconds,
		}}
	case opts.File != nil:
		req.Source = model.SourceConfig{Kind: model.SourceKindFile}
		req.File = &ingest.FileUpload{Name: opts.File.Name, Reader: opts.File.Reader}
	}

	return req
}

func fromInternalWrapper(w model.Wrapper) Wrapper {
	out := Wrapper{
		ID:           w.ID,
		Status:       WrapperStatus(w.Status),
		ResourceID:   w.ResourceID,
		ErrorMessage: w.ErrorMessage,
		SourceKind:   string(w.SourceConfig.Kind),
		CreatedAt:    w.CreatedAt,
		CompletedAt:  w.CompletedAt,
	}
	if w.SourceConfig.API != nil {
		out.Location = w.SourceConfig.API.Location
	}
	return out
}

func fromInternalSubmission(s model.Submission) Submission {
	return Submission{
		ID:                 s.ID,
		WrapperID:          s.WrapperID,
		IndicatorID:        s.IndicatorID,
		Mode:               SubmitMode(s.Mode),
		PreviousResourceID: s.PreviousResourceID,
		ResourceID:         s.ResourceID,
		Status:             WrapperStatus(s.Status),
		Error:              s.Error,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		CompletedAt:        s.CompletedAt,
	}
}

func fromInternalResult(r *ingest.Result) *Result {
	if r == nil {
		return nil
	}
	return &Result{
		Submission: fromInternalSubmission(r.Submission),
		Wrapper:    fromInternalWrapper(r.Wrapper),
		Linked:     r.Linked,
	}
}

func fromInternalStatus(s status.Status) Status {
	out := Status{Wrapper: fromInternalWrapper(s.Wrapper)}
	if s.Submission != nil {
		sub := fromInternalSubmission(*s.Submission)
		out.Submission = &sub
	}
	for _, t := range s.Tasks {
		out.Relink = append(out.Relink, RelinkStep{
			Name:       t.Name,
			ResourceID: t.ResourceID,
			Status:     string(t.Status),
			Error:      t.Error,
		})
	}
	return out
}

func fromInternalReport(r reconcile.Report) []ReconcileOutcome {
	out := make([]ReconcileOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, ReconcileOutcome{
			Submission: fromInternalSubmission(o.Submission),
			Result:     fromInternalResult(o.Result),
			Err:        mapError(o.Err),
		})
	}
	return out
}

func observer(fn func(Wrapper)) ingest.Observer {
	if fn == nil {
		return nil
	}
	return func(w model.Wrapper) { fn(fromInternalWrapper(w)) }
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
