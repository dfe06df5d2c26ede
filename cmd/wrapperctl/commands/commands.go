package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/backend/api"
	"github.com/slok/wrapperctl/internal/conventions"
	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/printer"
	"github.com/slok/wrapperctl/internal/storage/sqlite"
	tasksqlite "github.com/slok/wrapperctl/internal/task/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug          bool
	NoLog          bool
	NoColor        bool
	LoggerType     string
	DBPath         string
	BackendURL     string
	BackendToken   string
	RequestTimeout time.Duration
	PollInterval   time.Duration

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDBPath := conventions.DBPath(filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir))
	app.Flag("db-path", "Path to the SQLite submission journal.").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("backend-url", "Backend API URL.").Default(conventions.DefaultBackendURL).StringVar(&c.BackendURL)
	app.Flag("backend-token", "Backend API bearer token.").StringVar(&c.BackendToken)
	app.Flag("request-timeout", "Timeout of upload and generation requests.").Default("30s").DurationVar(&c.RequestTimeout)
	app.Flag("poll-interval", "Time between wrapper status checks.").Default("2s").DurationVar(&c.PollInterval)

	return c
}

// deps are the shared dependencies of the commands that talk to the backend.
type deps struct {
	backend *api.Client
	repo    *sqlite.Repository
	tasks   *tasksqlite.Manager
}

func (d deps) Close() error {
	return errors.Join(d.backend.Close(), d.repo.Close())
}

func (c *RootCommand) deps(ctx context.Context) (*deps, error) {
	b, err := api.NewClient(api.ClientConfig{
		BaseURL: c.BackendURL,
		Token:   c.BackendToken,
		Logger:  c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create backend client: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.DBPath,
		Logger: c.Logger,
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	tasks, err := tasksqlite.NewManager(tasksqlite.ManagerConfig{
		DB:     repo.DB(),
		Logger: c.Logger,
	})
	if err != nil {
		b.Close()
		repo.Close()
		return nil, fmt.Errorf("could not create task manager: %w", err)
	}

	return &deps{backend: b, repo: repo, tasks: tasks}, nil
}

func (c *RootCommand) ingestService(d *deps) (*ingest.Service, error) {
	svc, err := ingest.NewService(ingest.ServiceConfig{
		Backend:        d.backend,
		Repository:     d.repo,
		TaskManager:    d.tasks,
		PollInterval:   c.PollInterval,
		RequestTimeout: c.RequestTimeout,
		Logger:         c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create ingest service: %w", err)
	}
	return svc, nil
}

func (c *RootCommand) printer(format string) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(c.Stdout)
	default: // table
		return printer.NewTablePrinter(c.Stdout)
	}
}

// progressObserver prints every wrapper status change on stderr.
func (c *RootCommand) progressObserver() ingest.Observer {
	var last string
	return func(w model.Wrapper) {
		line := printer.FormatWrapperStatus(w)
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(c.Stderr, line)
	}
}
