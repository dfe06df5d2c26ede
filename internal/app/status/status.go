package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	"github.com/slok/wrapperctl/internal/task"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Backend     backend.Client
	Repository  storage.Repository
	TaskManager task.Manager
	Logger      log.Logger
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

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Status"})

	return nil
}

// Service retrieves the status of wrappers and their local submissions.
type Service struct {
	backend backend.Client
	repo    storage.Repository
	tasks   task.Manager
	logger  log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		backend: cfg.Backend,
		repo:    cfg.Repository,
		tasks:   cfg.TaskManager,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	// ID is the submission or wrapper ID to query.
	ID string
}

// Status is the status of a wrapper and, when it was submitted from here, its
// submission.
type Status struct {
	Wrapper    model.Wrapper
	Submission *model.Submission
	Tasks      []model.Task
}

// Run retrieves the status of a wrapper by submission or wrapper ID.
// It tries the submission ID first when the input looks like a ULID.
func (s *Service) Run(ctx context.Context, req Request) (*Status, error) {
	s.logger.Debugf("getting status for: %s", req.ID)

	sub, err := s.submission(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	wrapperID := req.ID
	if sub != nil {
		wrapperID = sub.WrapperID
	}

	w, err := s.backend.GetWrapper(ctx, wrapperID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("wrapper not found: %s: %w", wrapperID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get wrapper status: %w", err)
	}

	st := &Status{Wrapper: *w, Submission: sub}
	if sub != nil {
		st.Tasks, err = s.tasks.ListTasks(ctx, sub.ID, model.OperationRelink)
		if err != nil {
			return nil, fmt.Errorf("could not list relink tasks: %w", err)
		}
	}

	return st, nil
}

// WatchRequest represents the watch request parameters.
type WatchRequest struct {
	// ID is the submission or wrapper ID to watch.
	ID       string
	Interval time.Duration
}

// Watch polls the wrapper and calls onUpdate with every status until it
// finishes or ctx is cancelled. It doesn't relink, that's the reconcile job.
func (s *Service) Watch(ctx context.Context, req WatchRequest, onUpdate func(model.Wrapper)) (*model.Wrapper, error) {
	if req.Interval <= 0 {
		req.Interval = 2 * time.Second
	}

	sub, err := s.submission(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	wrapperID := req.ID
	if sub != nil {
		wrapperID = sub.WrapperID
	}

	scheduler, err := ingest.NewWrapperScheduler(s.logger)
	if err != nil {
		return nil, fmt.Errorf("could not create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer scheduler.StopAll()

	final := make(chan model.Wrapper, 1)
	scheduler.Start(ctx, wrapperID, req.Interval, ingest.FetchWrapper(s.backend), func(w model.Wrapper) {
		onUpdate(w)
		if w.Status.IsTerminal() {
			final <- w
		}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case w := <-final:
		return &w, nil
	}
}

// submission returns the local submission of the ID, nil when it isn't a local one.
func (s *Service) submission(ctx context.Context, id string) (*model.Submission, error) {
	if looksLikeULID(id) {
		sub, err := s.repo.GetSubmission(ctx, id)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("could not get submission: %w", err)
		}
	}

	sub, err := s.repo.GetSubmissionByWrapper(ctx, id)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get submission: %w", err)
	}
	return nil, nil
}

// looksLikeULID checks if a string looks like a ULID (26 characters, alphanumeric uppercase).
func looksLikeULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
