package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
)

// Resumer resumes unfinished submissions.
type Resumer interface {
	Resume(ctx context.Context, sub model.Submission, obs ingest.Observer) (*ingest.Result, error)
}

var _ Resumer = &ingest.Service{}

// ServiceConfig is the configuration for the reconcile service.
type ServiceConfig struct {
	Resumer    Resumer
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Resumer == nil {
		return fmt.Errorf("resumer is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Reconcile"})

	return nil
}

// Service finishes the submissions that were left unfinished, either because
// they were interrupted while polling or because their relink failed.
type Service struct {
	resumer Resumer
	repo    storage.Repository
	logger  log.Logger
}

// NewService creates a new reconcile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		resumer: cfg.Resumer,
		repo:    cfg.Repository,
		logger:  cfg.Logger,
	}, nil
}

// Request represents the reconcile request parameters.
type Request struct {
	// SubmissionID only reconciles this submission, all the unfinished ones when empty.
	SubmissionID string
	// Observer receives the wrapper statuses of the resumed submissions.
	Observer ingest.Observer
}

// Outcome is the reconciliation result of one submission.
type Outcome struct {
	Submission model.Submission
	Result     *ingest.Result
	Err        error
}

// Report is the result of a reconciliation pass.
type Report struct {
	Outcomes []Outcome
}

// Failed returns the number of submissions that could not be reconciled.
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Run resumes the unfinished submissions one by one. A submission that fails
// doesn't stop the pass, its error is on the report. Context cancellation stops
// the pass.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	subs, err := s.pending(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("%d submissions to reconcile", len(subs))

	report := &Report{}
	for _, sub := range subs {
		res, err := s.resumer.Resume(ctx, sub, req.Observer)
		if err != nil && ctx.Err() != nil {
			return report, ctx.Err()
		}

		if err != nil {
			s.logger.Warningf("Could not reconcile submission %s: %s", sub.ID, err)
		}
		report.Outcomes = append(report.Outcomes, Outcome{Submission: sub, Result: res, Err: err})
	}

	return report, nil
}

func (s *Service) pending(ctx context.Context, id string) ([]model.Submission, error) {
	if id == "" {
		subs, err := s.repo.ListSubmissions(ctx, storage.ListOptions{OnlyUnfinished: true})
		if err != nil {
			return nil, fmt.Errorf("could not list unfinished submissions: %w", err)
		}
		return subs, nil
	}

	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("submission not found: %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get submission: %w", err)
	}
	if sub.Finished() {
		s.logger.Infof("Submission %s already finished", id)
		return nil, nil
	}

	return []model.Submission{*sub}, nil
}
