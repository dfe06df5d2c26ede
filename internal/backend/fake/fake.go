package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
)

// DefaultStatuses is the status progression of a successful wrapper.
var DefaultStatuses = []model.WrapperStatus{
	model.WrapperStatusPending,
	model.WrapperStatusGenerating,
	model.WrapperStatusCreatingResource,
	model.WrapperStatusExecuting,
	model.WrapperStatusCompleted,
}

// ClientConfig is the configuration for the fake backend.
type ClientConfig struct {
	// Statuses is the progression every new wrapper goes through, one status per
	// GetWrapper call. The last status stays forever.
	Statuses []model.WrapperStatus
	// ErrorMessage is set on wrappers that reach the error status.
	ErrorMessage string
	// Indicators are the indicators known from the start.
	Indicators []model.Indicator
	// AutoCreateIndicators creates unknown indicators on first use.
	AutoCreateIndicators bool
	Logger               log.Logger
}

func (c *ClientConfig) defaults() error {
	if len(c.Statuses) == 0 {
		c.Statuses = DefaultStatuses
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Fake"})
	return nil
}

type wrapper struct {
	model.Wrapper
	step int
}

// Client is an in-memory implementation of backend.Client. It simulates the
// backend generation jobs without doing any real work.
type Client struct {
	statuses     []model.WrapperStatus
	errorMessage string
	autoCreate   bool
	logger       log.Logger

	mu         sync.Mutex
	files      map[string][]byte
	wrappers   map[string]*wrapper
	indicators map[string]*model.Indicator
	resources  map[string]model.Resource
}

// NewClient returns a new fake backend.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		statuses:     slices.Clone(cfg.Statuses),
		errorMessage: cfg.ErrorMessage,
		autoCreate:   cfg.AutoCreateIndicators,
		logger:       cfg.Logger,
		files:        map[string][]byte{},
		wrappers:     map[string]*wrapper{},
		indicators:   map[string]*model.Indicator{},
		resources:    map[string]model.Resource{},
	}
	for _, ind := range cfg.Indicators {
		ind.Resources = slices.Clone(ind.Resources)
		c.indicators[ind.ID] = &ind
		for _, r := range ind.Resources {
			c.resources[r] = model.Resource{ID: r}
		}
	}

	return c, nil
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// UploadFile stores the file in memory.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("file %q is empty: %w", name, model.ErrNotValid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := newID()
	c.files[id] = data
	c.logger.Infof("Uploaded fake file %s (%s, %d bytes)", id, name, len(data))

	return id, nil
}

// GenerateWrapper creates a new wrapper on its first status.
func (c *Client) GenerateWrapper(ctx context.Context, req model.GenerateRequest) (*model.Wrapper, error) {
	if err := req.SourceConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if req.SourceConfig.Kind == model.SourceKindFile {
		if _, ok := c.files[req.SourceConfig.File.FileID]; !ok {
			return nil, fmt.Errorf("file %s: %w", req.SourceConfig.File.FileID, model.ErrNotFound)
		}
	}

	w := &wrapper{Wrapper: model.Wrapper{
		ID:           newID(),
		SourceConfig: req.SourceConfig.Clone(),
		Metadata:     maps.Clone(req.Metadata),
		CreatedAt:    time.Now().UTC(),
	}}
	c.apply(w, req.AutoCreateResource)
	c.wrappers[w.ID] = w
	c.logger.Infof("Created fake wrapper %s", w.ID)

	return c.copyWrapper(w), nil
}

// GetWrapper advances the wrapper one status and returns it.
func (c *Client) GetWrapper(ctx context.Context, wrapperID string) (*model.Wrapper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.wrappers[wrapperID]
	if !ok {
		return nil, fmt.Errorf("wrapper %s: %w", wrapperID, model.ErrNotFound)
	}

	if w.step < len(c.statuses)-1 {
		w.step++
		c.apply(w, true)
	}

	return c.copyWrapper(w), nil
}

// apply sets the wrapper fields for its current step.
func (c *Client) apply(w *wrapper, createResource bool) {
	w.Status = c.statuses[w.step]

	switch w.Status {
	case model.WrapperStatusCreatingResource, model.WrapperStatusExecuting, model.WrapperStatusCompleted:
		if createResource && w.ResourceID == "" {
			r := model.Resource{ID: newID(), WrapperID: w.ID}
			c.resources[r.ID] = r
			w.ResourceID = r.ID
		}
	case model.WrapperStatusError:
		w.ErrorMessage = c.errorMessage
	}

	if w.Status.IsTerminal() && w.CompletedAt == nil {
		now := time.Now().UTC()
		w.CompletedAt = &now
	}
}

func (c *Client) copyWrapper(w *wrapper) *model.Wrapper {
	cp := w.Wrapper
	cp.SourceConfig = w.SourceConfig.Clone()
	cp.Metadata = maps.Clone(w.Metadata)
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// GetIndicator returns the indicator.
func (c *Client) GetIndicator(ctx context.Context, indicatorID string) (*model.Indicator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ind, err := c.indicator(indicatorID)
	if err != nil {
		return nil, err
	}

	cp := *ind
	cp.Resources = slices.Clone(ind.Resources)
	return &cp, nil
}

// LinkResource attaches the resource to the indicator.
func (c *Client) LinkResource(ctx context.Context, indicatorID, resourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ind, err := c.indicator(indicatorID)
	if err != nil {
		return err
	}
	if _, ok := c.resources[resourceID]; !ok {
		return fmt.Errorf("resource %s: %w", resourceID, model.ErrNotFound)
	}

	if !ind.HasResource(resourceID) {
		ind.Resources = append(ind.Resources, resourceID)
	}
	c.logger.Debugf("Linked resource %s to indicator %s", resourceID, indicatorID)

	return nil
}

// UnlinkResource detaches the resource from the indicator.
func (c *Client) UnlinkResource(ctx context.Context, indicatorID, resourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ind, err := c.indicator(indicatorID)
	if err != nil {
		return err
	}

	i := slices.Index(ind.Resources, resourceID)
	if i < 0 {
		return fmt.Errorf("resource %s on indicator %s: %w", resourceID, indicatorID, model.ErrNotFound)
	}
	ind.Resources = slices.Delete(ind.Resources, i, i+1)
	c.logger.Debugf("Unlinked resource %s from indicator %s", resourceID, indicatorID)

	return nil
}

// DeleteResource deletes the resource and detaches it from every indicator.
func (c *Client) DeleteResource(ctx context.Context, resourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.resources[resourceID]; !ok {
		return fmt.Errorf("resource %s: %w", resourceID, model.ErrNotFound)
	}
	delete(c.resources, resourceID)
	for _, ind := range c.indicators {
		ind.Resources = slices.DeleteFunc(ind.Resources, func(id string) bool { return id == resourceID })
	}
	c.logger.Debugf("Deleted resource %s", resourceID)

	return nil
}

// HasResource reports if the resource exists.
func (c *Client) HasResource(resourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resources[resourceID]
	return ok
}

// indicator must be called with the lock held.
func (c *Client) indicator(id string) (*model.Indicator, error) {
	ind, ok := c.indicators[id]
	if ok {
		return ind, nil
	}
	if !c.autoCreate {
		return nil, fmt.Errorf("indicator %s: %w", id, model.ErrNotFound)
	}

	ind = &model.Indicator{ID: id, Name: id}
	c.indicators[id] = ind
	return ind, nil
}
