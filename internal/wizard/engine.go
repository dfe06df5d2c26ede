package wizard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/slok/wrapperctl/internal/log"
)

// ErrSubmitting is returned when an operation is not allowed while the wizard is submitting.
var ErrSubmitting = errors.New("wizard is submitting")

// Session is a snapshot of the wizard state.
type Session struct {
	Steps        []string
	CurrentStep  int
	FormData     FormData
	Errors       FieldErrors
	IsSubmitting bool
}

// StepName returns the label of the current step.
func (s Session) StepName() string { return s.Steps[s.CurrentStep] }

// IsFirstStep reports if the wizard is on the first step.
func (s Session) IsFirstStep() bool { return s.CurrentStep == 0 }

// IsLastStep reports if the wizard is on the last step.
func (s Session) IsLastStep() bool { return s.CurrentStep == len(s.Steps)-1 }

// Handler is the terminal submit handler, it receives the full form.
type Handler func(ctx context.Context, data FormData) error

// EngineConfig is the configuration for the wizard engine.
type EngineConfig struct {
	// Steps are the ordered step labels, at least one.
	Steps []string
	// InitialData pre-populates the form (e.g. when editing).
	InitialData FormData
	// Handler is called on submit.
	Handler Handler
	Logger  log.Logger
}

func (c *EngineConfig) defaults() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "wizard.Engine"})
	return nil
}

// Engine is the multi-step wizard state machine. All the state changes go
// through its commands and every change is published to the subscribers.
type Engine struct {
	steps   []string
	initial FormData
	handler Handler
	logger  log.Logger

	mu         sync.Mutex
	current    int
	data       FormData
	errs       FieldErrors
	submitting bool
	observers  map[int]func(Session)
	nextObsID  int
	closeHooks []func()
}

// NewEngine returns a new wizard engine on its first step.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		steps:     slices.Clone(cfg.Steps),
		initial:   cfg.InitialData.clone(),
		handler:   cfg.Handler,
		logger:    cfg.Logger,
		data:      cfg.InitialData.clone(),
		errs:      FieldErrors{},
		observers: map[int]func(Session){},
	}, nil
}

// Session returns a snapshot of the current state.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(Session)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// OnClose registers a hook that runs when the wizard is closed.
func (e *Engine) OnClose(fn func()) {
	e.mu.Lock()
	e.closeHooks = append(e.closeHooks, fn)
	e.mu.Unlock()
}

// UpdateField sets a form field and clears its error.
func (e *Engine) UpdateField(name string, value any) {
	e.mutate(func() bool {
		e.data[name] = value
		delete(e.errs, name)
		return true
	})
}

// NextStep moves to the next step. Validation is not done here, callers gate
// the transition with Advance or by validating first. No-op on the last step.
func (e *Engine) NextStep() {
	e.mutate(func() bool {
		return e.moveTo(e.current + 1)
	})
}

// PreviousStep moves to the previous step. No-op on the first step.
func (e *Engine) PreviousStep() {
	e.mutate(func() bool {
		return e.moveTo(e.current - 1)
	})
}

// GoToStep jumps to step i, no-op if out of range.
func (e *Engine) GoToStep(i int) {
	e.mutate(func() bool {
		return e.moveTo(i)
	})
}

// SetErrors replaces the session errors.
func (e *Engine) SetErrors(errs FieldErrors) {
	e.mutate(func() bool {
		e.errs = maps.Clone(errs)
		if e.errs == nil {
			e.errs = FieldErrors{}
		}
		return true
	})
}

// Validate runs the gate on the current step, stores the errors and reports if
// the step is valid.
func (e *Engine) Validate(g Gate) bool {
	var valid bool
	e.mutate(func() bool {
		e.errs = g.Validate(e.current, e.data)
		valid = len(e.errs) == 0
		return true
	})
	return valid
}

// Advance validates the current step and only moves to the next one when valid.
func (e *Engine) Advance(g Gate) bool {
	if !e.Validate(g) {
		return false
	}
	e.NextStep()
	return true
}

// Submit calls the handler with the form. The submitting flag is set for the
// whole handler call and always cleared before returning. Field errors carried by
// the handler error replace the session errors, and the error is returned. On
// success the wizard is reset.
func (e *Engine) Submit(ctx context.Context) error {
	var data FormData
	alreadySubmitting := false
	e.mutate(func() bool {
		if e.submitting {
			alreadySubmitting = true
			return false
		}
		e.submitting = true
		e.errs = FieldErrors{}
		data = e.data.clone()
		return true
	})
	if alreadySubmitting {
		return ErrSubmitting
	}

	succeeded := false
	defer func() {
		e.mutate(func() bool {
			e.submitting = false
			if succeeded {
				e.resetLocked()
			}
			return true
		})
	}()

	err := e.handler(ctx, data)
	if err != nil {
		e.logger.Debugf("Wizard submit failed: %s", err)
		var fieldErr *FieldErrorsError
		if errors.As(err, &fieldErr) {
			e.SetErrors(fieldErr.Fields)
		}
		return err
	}

	succeeded = true
	return nil
}

// Reset restores the wizard to its initial state.
func (e *Engine) Reset() {
	e.mutate(func() bool {
		e.resetLocked()
		return true
	})
}

// Close closes the wizard, it can't be closed while submitting. Close resets
// the state and runs the close hooks.
func (e *Engine) Close() error {
	var hooks []func()
	var submitting bool
	e.mutate(func() bool {
		if e.submitting {
			submitting = true
			return false
		}
		e.resetLocked()
		hooks = slices.Clone(e.closeHooks)
		return true
	})
	if submitting {
		return ErrSubmitting
	}

	for _, h := range hooks {
		h()
	}
	return nil
}

// moveTo must be called with the lock held. It reports if the step changed.
func (e *Engine) moveTo(i int) bool {
	if i < 0 || i >= len(e.steps) || i == e.current {
		return false
	}
	e.current = i
	e.errs = FieldErrors{}
	return true
}

func (e *Engine) resetLocked() {
	e.current = 0
	e.data = e.initial.clone()
	e.errs = FieldErrors{}
	e.submitting = false
}

func (e *Engine) snapshot() Session {
	return Session{
		Steps:        slices.Clone(e.steps),
		CurrentStep:  e.current,
		FormData:     e.data.clone(),
		Errors:       maps.Clone(e.errs),
		IsSubmitting: e.submitting,
	}
}

// mutate runs fn with the lock held and, if fn reports a change, notifies the
// observers with the lock released.
func (e *Engine) mutate(fn func() (changed bool)) {
	e.mu.Lock()
	changed := fn()
	var (
		s         Session
		observers []func(Session)
	)
	if changed {
		s = e.snapshot()
		for _, id := range slices.Sorted(maps.Keys(e.observers)) {
			observers = append(observers, e.observers[id])
		}
	}
	e.mu.Unlock()

	for _, o := range observers {
		o(s)
	}
}
