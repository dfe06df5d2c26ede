package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage"
	"github.com/slok/wrapperctl/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

var _ storage.Repository = &Repository{}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository opens (and migrates) the submission journal database.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	journal, err := migrations.NewJournal(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	version, err := journal.Up(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s (schema v%d)", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// DB returns the underlying database, shared with the task manager.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

const submissionColumns = `
	id, wrapper_id, indicator_id, mode,
	previous_resource_id, resource_id, source_kind,
	status, error,
	created_at, updated_at, completed_at
`

func (r *Repository) CreateSubmission(ctx context.Context, s model.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO submissions (` + submissionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.WrapperID, s.IndicatorID, string(s.Mode),
		s.PreviousResourceID, s.ResourceID, string(s.SourceKind),
		string(s.Status), s.Error,
		s.CreatedAt.Unix(), s.UpdatedAt.Unix(), unixPtr(s.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: submissions.") {
			return fmt.Errorf("submission already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert submission: %w", err)
	}

	r.logger.Debugf("Created submission %s for wrapper %s", s.ID, s.WrapperID)
	return nil
}

func (r *Repository) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`
	s, err := r.scanOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query submission: %w", err)
	}
	return s, nil
}

func (r *Repository) GetSubmissionByWrapper(ctx context.Context, wrapperID string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE wrapper_id = ?`
	s, err := r.scanOne(ctx, query, wrapperID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission for wrapper %s: %w", wrapperID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query submission: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSubmissions(ctx context.Context, opts storage.ListOptions) ([]model.Submission, error) {
	var (
		where []string
		args  []any
	)
	if opts.OnlyUnfinished {
		where = append(where, "completed_at IS NULL")
	}
	if opts.IndicatorID != "" {
		where = append(where, "indicator_id = ?")
		args = append(args, opts.IndicatorID)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list submissions: %w", err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan submission: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate submissions: %w", err)
	}

	return subs, nil
}

func (r *Repository) UpdateSubmission(ctx context.Context, s model.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE submissions SET
			resource_id = ?, status = ?, error = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		s.ResourceID, string(s.Status), s.Error,
		s.UpdatedAt.Unix(), unixPtr(s.CompletedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", s.ID, model.ErrNotFound)
	}

	return nil
}

func (r *Repository) DeleteSubmission(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("submission %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted submission %s", id)
	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (*model.Submission, error) {
	return scanRow(r.db.QueryRowContext(ctx, query, args...))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row scanner) (*model.Submission, error) {
	var (
		s                    model.Submission
		mode, kind, status   string
		createdAt, updatedAt int64
		completedAt          sql.NullInt64
	)

	err := row.Scan(
		&s.ID, &s.WrapperID, &s.IndicatorID, &mode,
		&s.PreviousResourceID, &s.ResourceID, &kind,
		&status, &s.Error,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Mode = model.SubmitMode(mode)
	s.SourceKind = model.SourceKind(kind)
	s.Status = model.WrapperStatus(status)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		s.CompletedAt = &t
	}

	return &s, nil
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}
