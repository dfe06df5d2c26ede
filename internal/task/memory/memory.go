package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/task"
)

// ManagerConfig is the configuration for the memory task manager.
type ManagerConfig struct {
	Logger log.Logger
}

func (c *ManagerConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Memory"})
	return nil
}

var _ task.Manager = &Manager{}

// Manager is an in-memory implementation of task.Manager.
type Manager struct {
	tasks  map[string]model.Task
	mu     sync.Mutex
	logger log.Logger
}

// NewManager creates a new memory task manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{tasks: map[string]model.Task{}, logger: cfg.Logger}, nil
}

func (m *Manager) AddTasks(ctx context.Context, submissionID, operation string, specs []task.Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxSeq := 0
	for _, t := range m.operationTasks(submissionID, operation) {
		maxSeq = max(maxSeq, t.Sequence)
	}

	now := time.Now().UTC()
	for i, s := range specs {
		t := model.Task{
			ID:           ulid.Make().String(),
			SubmissionID: submissionID,
			Operation:    operation,
			Sequence:     maxSeq + i + 1,
			Name:         s.Name,
			ResourceID:   s.ResourceID,
			Status:       model.TaskStatusPending,
			CreatedAt:    now,
		}
		m.tasks[t.ID] = t
	}

	m.logger.Debugf("Added %d tasks for submission %s operation %s", len(specs), submissionID, operation)
	return nil
}

func (m *Manager) NextTask(ctx context.Context, submissionID, operation string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.operationTasks(submissionID, operation) {
		if t.Status != model.TaskStatusDone {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *Manager) CompleteTask(ctx context.Context, taskID string) error {
	return m.setStatus(taskID, model.TaskStatusDone, "")
}

func (m *Manager) FailTask(ctx context.Context, taskID string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return m.setStatus(taskID, model.TaskStatusFailed, msg)
}

func (m *Manager) setStatus(taskID string, status model.TaskStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	t.Status = status
	t.Error = errMsg
	m.tasks[taskID] = t
	return nil
}

func (m *Manager) Progress(ctx context.Context, submissionID, operation string) (*model.TaskProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var p model.TaskProgress
	for _, t := range m.operationTasks(submissionID, operation) {
		p.Total++
		switch t.Status {
		case model.TaskStatusDone:
			p.Done++
		case model.TaskStatusFailed:
			p.Failed++
		}
	}
	return &p, nil
}

func (m *Manager) ListTasks(ctx context.Context, submissionID, operation string) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.operationTasks(submissionID, operation), nil
}

func (m *Manager) HasPendingOperation(ctx context.Context, submissionID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []model.Task
	for _, t := range m.tasks {
		if t.SubmissionID == submissionID && t.Status != model.TaskStatusDone {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return "", false, nil
	}
	sortTasks(pending)
	return pending[0].Operation, true, nil
}

func (m *Manager) ClearOperation(ctx context.Context, submissionID, operation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if t.SubmissionID == submissionID && t.Operation == operation {
			delete(m.tasks, id)
		}
	}
	return nil
}

// operationTasks must be called with the lock held.
func (m *Manager) operationTasks(submissionID, operation string) []model.Task {
	tasks := []model.Task{}
	for _, t := range m.tasks {
		if t.SubmissionID == submissionID && t.Operation == operation {
			tasks = append(tasks, t)
		}
	}
	sortTasks(tasks)
	return tasks
}

func sortTasks(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].Sequence < tasks[j].Sequence
	})
}
