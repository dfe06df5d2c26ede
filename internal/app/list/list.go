package list

import (
	"context"
	"fmt"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	"github.com/slok/wrapperctl/internal/task"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository  storage.Repository
	TaskManager task.Manager
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.TaskManager == nil {
		return fmt.Errorf("task manager is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists the journaled submissions with their relink progress.
type Service struct {
	repo   storage.Repository
	tasks  task.Manager
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		tasks:  cfg.TaskManager,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// OnlyUnfinished only shows the submissions that didn't finish.
	OnlyUnfinished bool
	// IndicatorID only shows the submissions of this indicator.
	IndicatorID string
	// StatusFilter only shows the submissions on this wrapper status.
	StatusFilter *model.WrapperStatus
}

// Entry is a listed submission.
type Entry struct {
	Submission model.Submission
	Relink     model.TaskProgress
}

// Run lists the submissions, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]Entry, error) {
	s.logger.Debugf("listing submissions with filter: %+v", req)

	subs, err := s.repo.ListSubmissions(ctx, storage.ListOptions{
		OnlyUnfinished: req.OnlyUnfinished,
		IndicatorID:    req.IndicatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("could not list submissions: %w", err)
	}

	entries := make([]Entry, 0, len(subs))
	for _, sub := range subs {
		if req.StatusFilter != nil && sub.Status != *req.StatusFilter {
			continue
		}

		p, err := s.tasks.Progress(ctx, sub.ID, model.OperationRelink)
		if err != nil {
			return nil, fmt.Errorf("could not get relink progress of %s: %w", sub.ID, err)
		}
		entries = append(entries, Entry{Submission: sub, Relink: *p})
	}

	s.logger.Debugf("found %d submissions", len(entries))
	return entries, nil
}
