package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/task"
)

// RelinkError is a failure updating the indicator resources after the wrapper
// generated its resource.
type RelinkError struct {
	WrapperID string
	Status    model.WrapperStatus
	// Step is the relink task that failed.
	Step string
	Err  error
}

func (e *RelinkError) Error() string {
	return fmt.Sprintf("wrapper %s but failed to update resource: %s: %s", e.Status, e.Step, e.Err)
}

func (e *RelinkError) Unwrap() error { return e.Err }

// RelinkPlan returns the ordered relink steps of a submission. The new resource
// is linked before the old one is removed so the indicator always has one.
func RelinkPlan(sub model.Submission) []task.Spec {
	plan := []task.Spec{{Name: model.TaskLinkResource, ResourceID: sub.ResourceID}}
	if sub.Mode != model.SubmitModeEdit || sub.PreviousResourceID == "" || sub.PreviousResourceID == sub.ResourceID {
		return plan
	}

	return append(plan,
		task.Spec{Name: model.TaskUnlinkResource, ResourceID: sub.PreviousResourceID},
		task.Spec{Name: model.TaskDeleteResource, ResourceID: sub.PreviousResourceID},
	)
}

// RelinkerConfig is the configuration for the relinker.
type RelinkerConfig struct {
	Backend     backend.Client
	TaskManager task.Manager
	Logger      log.Logger
}

func (c *RelinkerConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.TaskManager == nil {
		return fmt.Errorf("task manager is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Relinker"})
	return nil
}

// Relinker runs the relink plan of submissions, tracking every step so an
// interrupted or failed plan resumes on the first step that isn't done.
type Relinker struct {
	backend backend.Client
	tasks   task.Manager
	logger  log.Logger
}

// NewRelinker returns a new relinker.
func NewRelinker(cfg RelinkerConfig) (*Relinker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Relinker{backend: cfg.Backend, tasks: cfg.TaskManager, logger: cfg.Logger}, nil
}

// Run runs the pending relink steps of the submission. The plan is stored the
// first time, later calls resume it.
func (r *Relinker) Run(ctx context.Context, sub model.Submission) error {
	if sub.ResourceID == "" {
		return fmt.Errorf("submission %s has no resource to link: %w", sub.ID, model.ErrNotValid)
	}

	logger := r.logger.WithValues(log.Kv{"submission-id": sub.ID})

	if err := r.storePlan(ctx, sub, logger); err != nil {
		return err
	}

	for {
		t, err := r.tasks.NextTask(ctx, sub.ID, model.OperationRelink)
		if err != nil {
			return fmt.Errorf("could not get next relink task: %w", err)
		}
		if t == nil {
			return nil
		}

		if err := r.runStep(ctx, sub, *t); err != nil {
			if ferr := r.tasks.FailTask(ctx, t.ID, err); ferr != nil {
				logger.Errorf("Could not mark task %s as failed: %s", t.ID, ferr)
			}
			return &RelinkError{WrapperID: sub.WrapperID, Status: sub.Status, Step: t.Name, Err: err}
		}

		if err := r.tasks.CompleteTask(ctx, t.ID); err != nil {
			return fmt.Errorf("could not complete task %s: %w", t.ID, err)
		}
		logger.Debugf("Relink step %s done for resource %s", t.Name, t.ResourceID)
	}
}

// storePlan stores the relink plan of the submission. A stored plan for another
// resource is replaced while none of its steps ran, once a step ran the stored
// plan is kept so it can be finished.
func (r *Relinker) storePlan(ctx context.Context, sub model.Submission, logger log.Logger) error {
	plan := RelinkPlan(sub)

	tasks, err := r.tasks.ListTasks(ctx, sub.ID, model.OperationRelink)
	if err != nil {
		return fmt.Errorf("could not list relink tasks: %w", err)
	}

	if len(tasks) > 0 {
		if samePlan(tasks, plan) {
			return nil
		}
		if started(tasks) {
			logger.Warningf("Stored relink plan differs from resource %s, finishing the stored one", sub.ResourceID)
			return nil
		}

		logger.Infof("Replacing stale relink plan with resource %s", sub.ResourceID)
		if err := r.tasks.ClearOperation(ctx, sub.ID, model.OperationRelink); err != nil {
			return fmt.Errorf("could not clear stale relink plan: %w", err)
		}
	}

	if err := r.tasks.AddTasks(ctx, sub.ID, model.OperationRelink, plan); err != nil {
		return fmt.Errorf("could not store relink plan: %w", err)
	}
	return nil
}

func samePlan(tasks []model.Task, plan []task.Spec) bool {
	if len(tasks) != len(plan) {
		return false
	}
	for i, t := range tasks {
		if t.Name != plan[i].Name || t.ResourceID != plan[i].ResourceID {
			return false
		}
	}
	return true
}

func started(tasks []model.Task) bool {
	for _, t := range tasks {
		if t.Status != model.TaskStatusPending {
			return true
		}
	}
	return false
}

func (r *Relinker) runStep(ctx context.Context, sub model.Submission, t model.Task) error {
	switch t.Name {
	case model.TaskLinkResource:
		return r.backend.LinkResource(ctx, sub.IndicatorID, t.ResourceID)
	case model.TaskUnlinkResource:
		err := r.backend.UnlinkResource(ctx, sub.IndicatorID, t.ResourceID)
		if errors.Is(err, model.ErrNotFound) {
			r.logger.Warningf("Resource %s was not linked to indicator %s", t.ResourceID, sub.IndicatorID)
			return nil
		}
		return err
	case model.TaskDeleteResource:
		err := r.backend.DeleteResource(ctx, t.ResourceID)
		if errors.Is(err, model.ErrNotFound) {
			r.logger.Warningf("Resource %s was already deleted", t.ResourceID)
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown relink step %q", t.Name)
}
