package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

var _ storage.Repository = &Repository{}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	submissions map[string]model.Submission
	mu          sync.RWMutex
	logger      log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		submissions: make(map[string]model.Submission),
		logger:      cfg.Logger,
	}, nil
}

func (r *Repository) CreateSubmission(ctx context.Context, s model.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.submissions[s.ID]; ok {
		return fmt.Errorf("submission with id %s: %w", s.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.submissions {
		if existing.WrapperID == s.WrapperID {
			return fmt.Errorf("submission with wrapper %s: %w", s.WrapperID, model.ErrAlreadyExists)
		}
	}

	r.submissions[s.ID] = s
	r.logger.Debugf("Created submission %s for wrapper %s", s.ID, s.WrapperID)
	return nil
}

func (r *Repository) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, model.ErrNotFound)
	}
	return &s, nil
}

func (r *Repository) GetSubmissionByWrapper(ctx context.Context, wrapperID string) (*model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.submissions {
		if s.WrapperID == wrapperID {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("submission for wrapper %s: %w", wrapperID, model.ErrNotFound)
}

func (r *Repository) ListSubmissions(ctx context.Context, opts storage.ListOptions) ([]model.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := []model.Submission{}
	for _, s := range r.submissions {
		if opts.OnlyUnfinished && s.Finished() {
			continue
		}
		if opts.IndicatorID != "" && s.IndicatorID != opts.IndicatorID {
			continue
		}
		subs = append(subs, s)
	}

	// Newest first, same as the SQL implementation.
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].ID > subs[j].ID
	})

	return subs, nil
}

func (r *Repository) UpdateSubmission(ctx context.Context, s model.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.submissions[s.ID]
	if !ok {
		return fmt.Errorf("submission %s: %w", s.ID, model.ErrNotFound)
	}

	current.ResourceID = s.ResourceID
	current.Status = s.Status
	current.Error = s.Error
	current.UpdatedAt = s.UpdatedAt
	current.CompletedAt = s.CompletedAt
	r.submissions[s.ID] = current

	return nil
}

func (r *Repository) DeleteSubmission(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.submissions[id]; !ok {
		return fmt.Errorf("submission %s: %w", id, model.ErrNotFound)
	}
	delete(r.submissions, id)

	r.logger.Debugf("Deleted submission %s", id)
	return nil
}
