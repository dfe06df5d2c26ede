package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/poll"
	"github.com/slok/wrapperctl/internal/storage"
	"github.com/slok/wrapperctl/internal/task"
)

var (
	// ErrUpload is returned when the source file upload fails. No wrapper exists.
	ErrUpload = errors.New("could not upload source file")
	// ErrGenerate is returned when the generation request fails. No wrapper exists.
	ErrGenerate = errors.New("could not request wrapper generation")
)

// ServiceConfig is the configuration for the ingest service.
type ServiceConfig struct {
	Backend     backend.Client
	Repository  storage.Repository
	TaskManager task.Manager
	// Scheduler polls the wrappers, a new one is created when missing.
	Scheduler *poll.Scheduler[model.Wrapper]
	// PollInterval is the time between wrapper status fetches.
	PollInterval time.Duration
	// RequestTimeout is the timeout of upload and generate requests, API sources
	// override it for generation with their own timeout.
	RequestTimeout time.Duration
	Logger         log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.TaskManager == nil {
		return fmt.Errorf("task manager is required")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Ingest"})

	if c.Scheduler == nil {
		s, err := NewWrapperScheduler(c.Logger)
		if err != nil {
			return err
		}
		c.Scheduler = s
	}
	return nil
}

// NewWrapperScheduler returns a scheduler that polls wrappers until they finish.
func NewWrapperScheduler(logger log.Logger) (*poll.Scheduler[model.Wrapper], error) {
	return poll.NewScheduler(poll.SchedulerConfig[model.Wrapper]{
		IsTerminal: func(w model.Wrapper) bool { return w.Status.IsTerminal() },
		Logger:     logger,
	})
}

// FetchWrapper adapts the backend wrapper getter for the polling scheduler.
func FetchWrapper(b backend.Client) poll.FetchFunc[model.Wrapper] {
	return func(ctx context.Context, wrapperID string) (model.Wrapper, error) {
		w, err := b.GetWrapper(ctx, wrapperID)
		if err != nil {
			return model.Wrapper{}, err
		}
		return *w, nil
	}
}

// Service uploads sources, requests wrapper generations, follows them and links
// the generated resources to their indicators.
type Service struct {
	backend        backend.Client
	repo           storage.Repository
	scheduler      *poll.Scheduler[model.Wrapper]
	relinker       *Relinker
	pollInterval   time.Duration
	requestTimeout time.Duration
	logger         log.Logger
}

// NewService creates a new ingest service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	relinker, err := NewRelinker(RelinkerConfig{
		Backend:     cfg.Backend,
		TaskManager: cfg.TaskManager,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create relinker: %w", err)
	}

	return &Service{
		backend:        cfg.Backend,
		repo:           cfg.Repository,
		scheduler:      cfg.Scheduler,
		relinker:       relinker,
		pollInterval:   cfg.PollInterval,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
	}, nil
}

// FileUpload is a local file that will be uploaded as the wrapper source.
type FileUpload struct {
	Name   string
	Reader io.Reader
}

// Request is a resource ingestion request.
type Request struct {
	Mode        model.SubmitMode
	IndicatorID string
	// PreviousResourceID is the resource replaced on edit mode.
	PreviousResourceID string
	// Source is the source configuration. File sources can omit the file id
	// when File is set, it will be filled after the upload.
	Source   model.SourceConfig
	File     *FileUpload
	Metadata map[string]any
}

func (r Request) validate() error {
	if r.IndicatorID == "" {
		return fmt.Errorf("indicator id is required: %w", model.ErrNotValid)
	}
	switch r.Mode {
	case model.SubmitModeCreate:
	case model.SubmitModeEdit:
		if r.PreviousResourceID == "" {
			return fmt.Errorf("edit mode requires the previous resource id: %w", model.ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown mode %q: %w", r.Mode, model.ErrNotValid)
	}
	if r.Source.Kind == model.SourceKindFile && r.File == nil && (r.Source.File == nil || r.Source.File.FileID == "") {
		return fmt.Errorf("file source requires a file to upload or a file id: %w", model.ErrNotValid)
	}
	if r.Source.Kind != model.SourceKindFile && r.File != nil {
		return fmt.Errorf("only file sources can upload files: %w", model.ErrNotValid)
	}
	return nil
}

// Observer receives every wrapper status seen while following it.
type Observer func(w model.Wrapper)

// Result is the outcome of a finished ingestion.
type Result struct {
	Submission model.Submission
	Wrapper    model.Wrapper
	// Linked is false when the wrapper finished without a resource.
	Linked bool
}

// Submit runs a whole ingestion: upload (file sources), generation, polling and
// relink. It blocks until the wrapper finishes or ctx is cancelled, in which case
// polling stops and the submission is left unfinished in the journal.
//
// Generation errors are returned as *model.JobError and relink errors as
// *RelinkError.
func (s *Service) Submit(ctx context.Context, req Request, obs Observer) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if obs == nil {
		obs = func(model.Wrapper) {}
	}

	source := req.Source.Clone()
	if req.File != nil {
		fileID, err := s.upload(ctx, req.File)
		if err != nil {
			return nil, err
		}
		source.File = &model.FileSource{FileID: fileID}
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}

	w, err := s.generate(ctx, model.GenerateRequest{
		SourceConfig:       source,
		Metadata:           maps.Clone(req.Metadata),
		AutoCreateResource: true,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := model.Submission{
		ID:                 ulid.Make().String(),
		WrapperID:          w.ID,
		IndicatorID:        req.IndicatorID,
		Mode:               req.Mode,
		PreviousResourceID: req.PreviousResourceID,
		ResourceID:         w.ResourceID,
		SourceKind:         source.Kind,
		Status:             w.Status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("could not store submission for wrapper %s: %w", w.ID, err)
	}

	logger := s.logger.WithValues(log.Kv{"wrapper-id": w.ID, "submission-id": sub.ID})
	logger.Infof("Wrapper generation requested")
	obs(*w)

	return s.follow(ctx, sub, obs, logger)
}

// Resume follows an unfinished submission until it can be resolved, running the
// relink steps that are not done yet. It is used to finish submissions that were
// interrupted or whose relink failed.
func (s *Service) Resume(ctx context.Context, sub model.Submission, obs Observer) (*Result, error) {
	if sub.Finished() {
		return nil, fmt.Errorf("submission %s already finished: %w", sub.ID, model.ErrNotValid)
	}
	if obs == nil {
		obs = func(model.Wrapper) {}
	}

	logger := s.logger.WithValues(log.Kv{"wrapper-id": sub.WrapperID, "submission-id": sub.ID})
	logger.Infof("Resuming submission on %s status", sub.Status)

	return s.follow(ctx, sub, obs, logger)
}

// StopFollowing stops polling the wrapper. It is a no-op when the wrapper isn't
// being followed.
func (s *Service) StopFollowing(wrapperID string) {
	s.scheduler.Stop(wrapperID)
}

func (s *Service) upload(ctx context.Context, f *FileUpload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	fileID, err := s.backend.UploadFile(ctx, f.Name, f.Reader)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrUpload, f.Name, err)
	}
	s.logger.Debugf("Uploaded %s as file %s", f.Name, fileID)
	return fileID, nil
}

func (s *Service) generate(ctx context.Context, req model.GenerateRequest) (*model.Wrapper, error) {
	timeout := s.requestTimeout
	if api := req.SourceConfig.API; api != nil && api.TimeoutSeconds > 0 {
		timeout = time.Duration(api.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w, err := s.backend.GenerateWrapper(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}
	return w, nil
}

// follow polls the submission wrapper until it can be resolved.
func (s *Service) follow(ctx context.Context, sub model.Submission, obs Observer, logger log.Logger) (*Result, error) {
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.scheduler.Stop(sub.WrapperID)

	updates := make(chan model.Wrapper)
	started := s.scheduler.Start(pollCtx, sub.WrapperID, s.pollInterval, FetchWrapper(s.backend), func(w model.Wrapper) {
		select {
		case updates <- w:
		case <-pollCtx.Done():
		}
	})
	if !started {
		return nil, fmt.Errorf("wrapper %s is already being followed: %w", sub.WrapperID, model.ErrAlreadyExists)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Warningf("Stopped following wrapper on %s status", sub.Status)
			return nil, ctx.Err()
		case w := <-updates:
			obs(w)
			if w.Status != sub.Status {
				logger.Infof("Wrapper status: %s", w.Status)
			}

			done, res, err := s.resolve(ctx, &sub, w, logger)
			if done {
				return res, err
			}
		}
	}
}

// resolve journals a wrapper update and, when the wrapper has reached a point
// where the submission can finish, finishes it.
func (s *Service) resolve(ctx context.Context, sub *model.Submission, w model.Wrapper, logger log.Logger) (done bool, res *Result, err error) {
	now := time.Now().UTC()
	sub.Status = w.Status
	sub.ResourceID = w.ResourceID
	sub.UpdatedAt = now

	switch {
	case w.Status == model.WrapperStatusError:
		msg := w.ErrorMessage
		if msg == "" {
			msg = model.DefaultJobErrorMessage
		}
		sub.Error = msg
		sub.CompletedAt = &now
		s.journal(ctx, *sub, logger)
		logger.Warningf("Wrapper generation failed: %s", msg)
		return true, nil, &model.JobError{WrapperID: w.ID, Message: msg}

	case w.Status.HasResource() && w.ResourceID != "":
		s.scheduler.Stop(w.ID)
		s.journal(ctx, *sub, logger)

		if err := s.relinker.Run(ctx, *sub); err != nil {
			sub.Error = err.Error()
			sub.UpdatedAt = time.Now().UTC()
			s.journal(ctx, *sub, logger)
			return true, nil, err
		}

		completed := time.Now().UTC()
		sub.Error = ""
		sub.UpdatedAt = completed
		sub.CompletedAt = &completed
		s.journal(ctx, *sub, logger)
		logger.Infof("Resource %s linked to indicator %s", sub.ResourceID, sub.IndicatorID)
		return true, &Result{Submission: *sub, Wrapper: w, Linked: true}, nil

	case w.Status == model.WrapperStatusCompleted:
		sub.CompletedAt = &now
		s.journal(ctx, *sub, logger)
		logger.Warningf("Wrapper completed without resource, nothing to link")
		return true, &Result{Submission: *sub, Wrapper: w}, nil
	}

	s.journal(ctx, *sub, logger)
	return false, nil, nil
}

// journal stores the submission state, failures don't stop the ingestion.
func (s *Service) journal(ctx context.Context, sub model.Submission, logger log.Logger) {
	if err := s.repo.UpdateSubmission(ctx, sub); err != nil {
		logger.Errorf("Could not store submission state: %s", err)
	}
}
