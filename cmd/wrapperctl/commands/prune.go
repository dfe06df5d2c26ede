package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/app/prune"
	"github.com/slok/wrapperctl/internal/storage/sqlite"
	tasksqlite "github.com/slok/wrapperctl/internal/task/sqlite"
)

type PruneCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	olderThan   time.Duration
	indicatorID string
	dryRun      bool
	format      string
}

// NewPruneCommand returns the prune command.
func NewPruneCommand(rootCmd *RootCommand, app *kingpin.Application) *PruneCommand {
	c := &PruneCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("prune", "Remove finished submissions from the local journal.")
	c.Cmd.Flag("older-than", "Only remove submissions finished before this long ago.").Default("720h").DurationVar(&c.olderThan)
	c.Cmd.Flag("indicator", "Only remove submissions of this indicator.").StringVar(&c.indicatorID)
	c.Cmd.Flag("dry-run", "Show what would be removed.").BoolVar(&c.dryRun)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c PruneCommand) Name() string { return c.Cmd.FullCommand() }

func (c PruneCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: c.rootCmd.DBPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	tasks, err := tasksqlite.NewManager(tasksqlite.ManagerConfig{DB: repo.DB(), Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create task manager: %w", err)
	}

	svc, err := prune.NewService(prune.ServiceConfig{Repository: repo, TaskManager: tasks, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	report, err := svc.Run(ctx, prune.Request{
		OlderThan:   c.olderThan,
		IndicatorID: c.indicatorID,
		DryRun:      c.dryRun,
	})
	if err != nil {
		return fmt.Errorf("could not prune submissions: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintPrune(*report); err != nil {
		return fmt.Errorf("could not print prune report: %w", err)
	}
	return nil
}
