package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/wrapperctl/internal/log"
)

// FetchFunc fetches the current status of a job.
type FetchFunc[T any] func(ctx context.Context, jobID string) (T, error)

// UpdateFunc receives every fetched status of a job, terminal or not.
type UpdateFunc[T any] func(status T)

// SchedulerConfig is the configuration for the polling scheduler.
type SchedulerConfig[T any] struct {
	// IsTerminal reports if polling must stop after this status.
	IsTerminal func(status T) bool
	Logger     log.Logger
}

func (c *SchedulerConfig[T]) defaults() error {
	if c.IsTerminal == nil {
		return fmt.Errorf("is terminal function is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "poll.Scheduler"})
	return nil
}

// handle is the registration of a polling job.
type handle struct {
	cancel context.CancelFunc
}

func (h *handle) stop() { h.cancel() }

// Scheduler polls job statuses until they reach a terminal status or are
// stopped. There is at most one polling loop for each job ID.
type Scheduler[T any] struct {
	isTerminal func(T) bool
	logger     log.Logger

	mu   sync.Mutex
	jobs map[string]*handle
}

// NewScheduler returns a new polling scheduler.
func NewScheduler[T any](cfg SchedulerConfig[T]) (*Scheduler[T], error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Scheduler[T]{
		isTerminal: cfg.IsTerminal,
		logger:     cfg.Logger,
		jobs:       map[string]*handle{},
	}, nil
}

// Start starts polling a job. It fetches the status right away and then every
// interval, calling onUpdate with each fetched status in fetch order. Polling
// stops by itself on a terminal status. Starting a job that is already being
// polled, or with a non positive interval, is a no-op and returns false.
//
// Failed fetches are logged and polling continues. Cancelling ctx is the same
// as calling Stop.
func (s *Scheduler[T]) Start(ctx context.Context, jobID string, interval time.Duration, fetch FetchFunc[T], onUpdate UpdateFunc[T]) bool {
	if interval <= 0 {
		s.logger.Errorf("Invalid polling interval %s for job %s", interval, jobID)
		return false
	}

	s.mu.Lock()
	if _, ok := s.jobs[jobID]; ok {
		s.mu.Unlock()
		s.logger.Debugf("Job %s is already being polled", jobID)
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel}
	s.jobs[jobID] = h
	s.mu.Unlock()

	s.logger.Debugf("Polling job %s every %s", jobID, interval)
	go s.loop(ctx, h, jobID, interval, fetch, onUpdate)

	return true
}

// Stop stops polling a job. It is safe to call when the job is not being polled,
// and from inside an update callback. After Stop returns no new fetch starts and
// a fetch in flight is discarded. Stop doesn't wait for a callback that is
// already running, so a callback that started right before Stop may still be
// finishing when it returns.
func (s *Scheduler[T]) Stop(jobID string) {
	s.mu.Lock()
	h, ok := s.jobs[jobID]
	delete(s.jobs, jobID)
	s.mu.Unlock()

	if !ok {
		return
	}
	h.stop()
	s.logger.Debugf("Stopped polling job %s", jobID)
}

// StopAll stops polling all the jobs.
func (s *Scheduler[T]) StopAll() {
	s.mu.Lock()
	handles := s.jobs
	s.jobs = map[string]*handle{}
	s.mu.Unlock()

	for _, h := range handles {
		h.stop()
	}
}

// IsPolling reports if the job is being polled.
func (s *Scheduler[T]) IsPolling(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

func (s *Scheduler[T]) loop(ctx context.Context, h *handle, jobID string, interval time.Duration, fetch FetchFunc[T], onUpdate UpdateFunc[T]) {
	defer s.unregister(jobID, h)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if done := s.tick(ctx, h, jobID, fetch, onUpdate); done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick fetches once and delivers the update, it returns true when polling must end.
func (s *Scheduler[T]) tick(ctx context.Context, h *handle, jobID string, fetch FetchFunc[T], onUpdate UpdateFunc[T]) bool {
	status, err := fetch(ctx, jobID)
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		s.logger.Warningf("Could not fetch job %s status: %s", jobID, err)
		return false
	}

	terminal := s.isTerminal(status)

	// Terminal jobs are unregistered before delivering so a new Start from the
	// callback is allowed.
	if !s.claim(jobID, h, terminal) {
		return true
	}
	onUpdate(status)

	return terminal
}

// claim reports if the handle is still the registered one for the job, when
// release is set it also unregisters it. Both happen under the same lock so a
// Stop either lands before the check or after the delivery was decided.
func (s *Scheduler[T]) claim(jobID string, h *handle, release bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok || current != h {
		return false
	}
	if release {
		delete(s.jobs, jobID)
		h.cancel()
	}
	return true
}

// unregister removes the job only if it is still registered with the same handle.
func (s *Scheduler[T]) unregister(jobID string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.jobs[jobID]; ok && current == h {
		delete(s.jobs, jobID)
		h.cancel()
	}
}
