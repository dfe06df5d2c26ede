package prune

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	"github.com/slok/wrapperctl/internal/task"
)

// ServiceConfig is the configuration for the prune service.
type ServiceConfig struct {
	Repository  storage.Repository
	TaskManager task.Manager
	Logger      log.Logger
	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.TaskManager == nil {
		return fmt.Errorf("task manager is required")
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Prune"})

	return nil
}

// Service removes finished submissions from the local journal.
type Service struct {
	repo   storage.Repository
	tasks  task.Manager
	now    func() time.Time
	logger log.Logger
}

// NewService creates a new prune service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		tasks:  cfg.TaskManager,
		now:    cfg.Now,
		logger: cfg.Logger,
	}, nil
}

// Request represents the prune request parameters.
type Request struct {
	// OlderThan only prunes submissions finished before now minus this duration.
	OlderThan time.Duration
	// IndicatorID only prunes the submissions of this indicator.
	IndicatorID string
	// DryRun reports what would be pruned without deleting.
	DryRun bool
}

// Report is the result of a prune.
type Report struct {
	DryRun bool
	Pruned []model.Submission
	// Skipped are finished submissions that still have steps to run.
	Skipped []model.Submission
}

// Run deletes the finished submissions and their tasks. Unfinished ones are
// never touched, they belong to reconcile.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	if req.OlderThan < 0 {
		return nil, fmt.Errorf("older than can't be negative: %w", model.ErrNotValid)
	}

	subs, err := s.repo.ListSubmissions(ctx, storage.ListOptions{IndicatorID: req.IndicatorID})
	if err != nil {
		return nil, fmt.Errorf("could not list submissions: %w", err)
	}

	cutoff := s.now().Add(-req.OlderThan)
	report := &Report{DryRun: req.DryRun}
	for _, sub := range subs {
		if !sub.Finished() || sub.CompletedAt.After(cutoff) {
			continue
		}

		op, pending, err := s.tasks.HasPendingOperation(ctx, sub.ID)
		if err != nil {
			return report, fmt.Errorf("could not check tasks of submission %s: %w", sub.ID, err)
		}
		if pending {
			s.logger.Warningf("Submission %s has pending %s steps, skipping", sub.ID, op)
			report.Skipped = append(report.Skipped, sub)
			continue
		}

		if !req.DryRun {
			if err := s.delete(ctx, sub.ID); err != nil {
				return report, err
			}
		}
		report.Pruned = append(report.Pruned, sub)
	}

	s.logger.Infof("%d submissions pruned, %d skipped", len(report.Pruned), len(report.Skipped))
	return report, nil
}

func (s *Service) delete(ctx context.Context, id string) error {
	if err := s.tasks.ClearOperation(ctx, id, model.OperationRelink); err != nil {
		return fmt.Errorf("could not clear tasks of submission %s: %w", id, err)
	}
	if err := s.repo.DeleteSubmission(ctx, id); err != nil {
		return fmt.Errorf("could not delete submission %s: %w", id, err)
	}
	return nil
}
