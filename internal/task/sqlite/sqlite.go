package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/task"
)

// ManagerConfig is the configuration for the SQLite task manager.
type ManagerConfig struct {
	// DB is the submission journal database, tasks reference its submissions.
	DB     *sql.DB
	Logger log.Logger
}

func (c *ManagerConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.SQLite"})
	return nil
}

var _ task.Manager = &Manager{}

// Manager is a SQLite implementation of task.Manager.
type Manager struct {
	db     *sql.DB
	logger log.Logger
}

// NewManager creates a new SQLite task manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{db: cfg.DB, logger: cfg.Logger}, nil
}

func (m *Manager) AddTasks(ctx context.Context, submissionID, operation string, specs []task.Spec) error {
	if len(specs) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq int
	query := `SELECT COALESCE(MAX(sequence), 0) FROM tasks WHERE submission_id = ? AND operation = ?`
	if err := tx.QueryRowContext(ctx, query, submissionID, operation).Scan(&maxSeq); err != nil {
		return fmt.Errorf("could not get max sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (id, submission_id, operation, sequence, name, resource_id, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', ?)
	`)
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for i, s := range specs {
		_, err := stmt.ExecContext(ctx, ulid.Make().String(), submissionID, operation, maxSeq+i+1, s.Name, s.ResourceID, string(model.TaskStatusPending), now)
		if err != nil {
			return fmt.Errorf("could not insert task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	m.logger.Debugf("Added %d tasks for submission %s operation %s", len(specs), submissionID, operation)
	return nil
}

const taskColumns = `id, submission_id, operation, sequence, name, resource_id, status, error, created_at`

func (m *Manager) NextTask(ctx context.Context, submissionID, operation string) (*model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE submission_id = ? AND operation = ? AND status != ?
		ORDER BY sequence ASC
		LIMIT 1
	`

	t, err := scanTask(m.db.QueryRowContext(ctx, query, submissionID, operation, string(model.TaskStatusDone)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query next task: %w", err)
	}
	return t, nil
}

func (m *Manager) CompleteTask(ctx context.Context, taskID string) error {
	if err := m.setStatus(ctx, taskID, model.TaskStatusDone, ""); err != nil {
		return err
	}
	m.logger.Debugf("Completed task: %s", taskID)
	return nil
}

func (m *Manager) FailTask(ctx context.Context, taskID string, taskErr error) error {
	errMsg := ""
	if taskErr != nil {
		errMsg = taskErr.Error()
	}
	if err := m.setStatus(ctx, taskID, model.TaskStatusFailed, errMsg); err != nil {
		return err
	}
	m.logger.Debugf("Failed task: %s (error: %s)", taskID, errMsg)
	return nil
}

func (m *Manager) setStatus(ctx context.Context, taskID string, status model.TaskStatus, errMsg string) error {
	result, err := m.db.ExecContext(ctx, `UPDATE tasks SET status = ?, error = ? WHERE id = ?`, string(status), errMsg, taskID)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	return nil
}

func (m *Manager) Progress(ctx context.Context, submissionID, operation string) (*model.TaskProgress, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE submission_id = ? AND operation = ?
	`

	var p model.TaskProgress
	err := m.db.QueryRowContext(ctx, query, string(model.TaskStatusDone), string(model.TaskStatusFailed), submissionID, operation).
		Scan(&p.Total, &p.Done, &p.Failed)
	if err != nil {
		return nil, fmt.Errorf("could not query progress: %w", err)
	}

	return &p, nil
}

func (m *Manager) ListTasks(ctx context.Context, submissionID, operation string) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE submission_id = ? AND operation = ? ORDER BY sequence ASC`
	rows, err := m.db.QueryContext(ctx, query, submissionID, operation)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate tasks: %w", err)
	}

	return tasks, nil
}

func (m *Manager) HasPendingOperation(ctx context.Context, submissionID string) (operation string, hasPending bool, err error) {
	query := `
		SELECT operation
		FROM tasks
		WHERE submission_id = ? AND status != ?
		ORDER BY created_at ASC, sequence ASC
		LIMIT 1
	`

	err = m.db.QueryRowContext(ctx, query, submissionID, string(model.TaskStatusDone)).Scan(&operation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("could not query pending operation: %w", err)
	}

	return operation, true, nil
}

func (m *Manager) ClearOperation(ctx context.Context, submissionID, operation string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM tasks WHERE submission_id = ? AND operation = ?`, submissionID, operation)
	if err != nil {
		return fmt.Errorf("could not delete tasks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}

	m.logger.Debugf("Cleared %d tasks for submission %s operation %s", rows, submissionID, operation)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*model.Task, error) {
	var (
		t         model.Task
		status    string
		createdAt int64
	)
	err := row.Scan(&t.ID, &t.SubmissionID, &t.Operation, &t.Sequence, &t.Name, &t.ResourceID, &status, &t.Error, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}
