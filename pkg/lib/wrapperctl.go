package lib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/app/list"
	"github.com/slok/wrapperctl/internal/app/prune"
	"github.com/slok/wrapperctl/internal/app/reconcile"
	"github.com/slok/wrapperctl/internal/app/status"
	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/backend/api"
	"github.com/slok/wrapperctl/internal/backend/fake"
	"github.com/slok/wrapperctl/internal/conventions"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage/sqlite"
	tasksqlite "github.com/slok/wrapperctl/internal/task/sqlite"
	"github.com/slok/wrapperctl/pkg/lib/log"
)

// Config configures the SDK client.
//
// Only BackendURL is required for [BackendAPI], an empty Config{} with
// Backend set to [BackendFake] works for testing.
type Config struct {
	// Backend selects the backend implementation.
	// Default: [BackendAPI].
	Backend BackendType

	// BackendURL is the wrapper generation API base URL.
	BackendURL string

	// BackendToken is sent as a bearer token on every backend request.
	BackendToken string

	// DataDir is the base directory for wrapperctl data.
	// Default: ~/.wrapperctl.
	DataDir string

	// DBPath is the SQLite submission journal path.
	// Default: <DataDir>/wrapperctl.db.
	DBPath string

	// PollInterval is the time between wrapper status checks.
	// Default: 2s.
	PollInterval time.Duration

	// RequestTimeout bounds the upload and generation requests.
	// Default: 30s.
	RequestTimeout time.Duration

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). Use log.FromLogrus to reuse a logrus logger.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Backend == "" {
		c.Backend = BackendAPI
	}
	if c.Backend == BackendAPI && c.BackendURL == "" {
		return fmt.Errorf("backend URL is required: %w", ErrNotValid)
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}
	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
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

	return nil
}

// Client is the main SDK entry point.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	ingest    *ingest.Service
	status    *status.Service
	list      *list.Service
	reconcile *reconcile.Service
	prune     *prune.Service
	closeFn   func() error
}

// New creates a new SDK client backed by a SQLite submission journal.
//
// The caller must call [Client.Close] when done:
//
//	client, err := lib.New(ctx, lib.Config{BackendURL: url})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b, closeBackend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		_ = closeBackend()
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	closeFn := func() error { return errors.Join(closeBackend(), repo.Close()) }

	tasks, err := tasksqlite.NewManager(tasksqlite.ManagerConfig{DB: repo.DB(), Logger: cfg.Logger})
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("could not create task manager: %w", err)
	}

	ingestSvc, err := ingest.NewService(ingest.ServiceConfig{
		Backend:        b,
		Repository:     repo,
		TaskManager:    tasks,
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         cfg.Logger,
	})
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("could not create ingest service: %w", err)
	}
	statusSvc, err := status.NewService(status.ServiceConfig{Backend: b, Repository: repo, TaskManager: tasks, Logger: cfg.Logger})
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("could not create status service: %w", err)
	}
	listSvc, err := list.NewService(list.ServiceConfig{Repository: repo, TaskManager: tasks, Logger: cfg.Logger})
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("could not create list service: %w", err)
	}
	reconcileSvc, err := reconcile.NewService(reconcile.ServiceConfig{Resumer: ingestSvc, Repository: repo, Logger: cfg.Logger})
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("could not create reconcile service: %w", err)
	}
	pruneSvc, err := prune.NewService(prune.ServiceConfig{Repository: repo, TaskManager: tasks, Logger: cfg.Logger})
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("could not create prune service: %w", err)
	}

	return &Client{
		ingest:    ingestSvc,
		status:    statusSvc,
		list:      listSvc,
		reconcile: reconcileSvc,
		prune:     pruneSvc,
		closeFn:   closeFn,
	}, nil
}

func newBackend(cfg Config) (backend.Client, func() error, error) {
	switch cfg.Backend {
	case BackendAPI:
		c, err := api.NewClient(api.ClientConfig{
			BaseURL: cfg.BackendURL,
			Token:   cfg.BackendToken,
			Timeout: cfg.RequestTimeout,
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create backend client: %w", err)
		}
		return c, c.Close, nil
	case BackendFake:
		c, err := fake.NewClient(fake.ClientConfig{AutoCreateIndicators: true, Logger: cfg.Logger})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create fake backend: %w", err)
		}
		return c, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s: %w", cfg.Backend, ErrNotValid)
	}
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// Submit ingests a resource and blocks until its wrapper finishes and the
// resource is attached to the indicator, or ctx is cancelled. A cancelled
// submission is kept in the journal, [Client.Reconcile] finishes it.
func (c *Client) Submit(ctx context.Context, opts SubmitOpts) (*Result, error) {
	if (opts.File == nil) == (opts.API == nil) {
		return nil, fmt.Errorf("exactly one of file or api source is required: %w", ErrNotValid)
	}

	res, err := c.ingest.Submit(ctx, toInternalRequest(opts), observer(opts.OnStatus))
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalResult(res), nil
}

// GetStatus returns the status of a wrapper by submission or wrapper ID.
func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	st, err := c.status.Run(ctx, status.Request{ID: id})
	if err != nil {
		return nil, mapError(err)
	}
	out := fromInternalStatus(*st)
	return &out, nil
}

// Watch follows a wrapper by submission or wrapper ID until it finishes,
// calling onStatus with every status seen. It doesn't touch the indicator,
// use [Client.Reconcile] for that.
func (c *Client) Watch(ctx context.Context, id string, interval time.Duration, onStatus func(Wrapper)) (*Wrapper, error) {
	w, err := c.status.Watch(ctx, status.WatchRequest{ID: id, Interval: interval}, func(w model.Wrapper) {
		if onStatus != nil {
			onStatus(fromInternalWrapper(w))
		}
	})
	if err != nil {
		return nil, mapError(err)
	}
	out := fromInternalWrapper(*w)
	return &out, nil
}

// ListSubmissions returns the journaled submissions, newest first.
// Pass nil opts to list all of them.
func (c *Client) ListSubmissions(ctx context.Context, opts *ListSubmissionsOpts) ([]Submission, error) {
	req := list.Request{}
	if opts != nil {
		req.OnlyUnfinished = opts.OnlyUnfinished
		req.IndicatorID = opts.IndicatorID
		if opts.Status != nil {
			s := model.WrapperStatus(*opts.Status)
			req.StatusFilter = &s
		}
	}

	entries, err := c.list.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	subs := make([]Submission, 0, len(entries))
	for _, e := range entries {
		subs = append(subs, fromInternalSubmission(e.Submission))
	}
	return subs, nil
}

// Reconcile finishes the unfinished submissions, or only submissionID when set.
// A submission that can't be finished doesn't stop the others, its error is on
// its outcome.
func (c *Client) Reconcile(ctx context.Context, submissionID string) ([]ReconcileOutcome, error) {
	report, err := c.reconcile.Run(ctx, reconcile.Request{SubmissionID: submissionID})
	if err != nil {
		return nil, mapError(err)
	}
	return fromInternalReport(*report), nil
}

// Prune removes the submissions finished more than olderThan ago from the local
// journal and returns them. Unfinished submissions are kept.
func (c *Client) Prune(ctx context.Context, olderThan time.Duration) ([]Submission, error) {
	report, err := c.prune.Run(ctx, prune.Request{OlderThan: olderThan})
	if err != nil {
		return nil, mapError(err)
	}

	subs := make([]Submission, 0, len(report.Pruned))
	for _, s := range report.Pruned {
		subs = append(subs, fromInternalSubmission(s))
	}
	return subs, nil
}
