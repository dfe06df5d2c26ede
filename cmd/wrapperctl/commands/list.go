package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/app/list"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/storage/sqlite"
	tasksqlite "github.com/slok/wrapperctl/internal/task/sqlite"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	unfinished   bool
	indicatorID  string
	statusFilter string
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List the local submissions.")
	c.Cmd.Flag("unfinished", "Only show submissions that need reconciling.").BoolVar(&c.unfinished)
	c.Cmd.Flag("indicator", "Filter by indicator ID.").StringVar(&c.indicatorID)
	c.Cmd.Flag("status", "Filter by wrapper status (pending, generating, creating_resource, executing, completed, error).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var statusFilter *model.WrapperStatus
	if c.statusFilter != "" {
		status := model.WrapperStatus(strings.ToLower(c.statusFilter))
		if !status.Known() {
			return fmt.Errorf("invalid status filter: %s", c.statusFilter)
		}
		statusFilter = &status
	}

	// Only the local journal is needed, no backend.
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	tasks, err := tasksqlite.NewManager(tasksqlite.ManagerConfig{DB: repo.DB(), Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create task manager: %w", err)
	}

	svc, err := list.NewService(list.ServiceConfig{
		Repository:  repo,
		TaskManager: tasks,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	entries, err := svc.Run(ctx, list.Request{
		OnlyUnfinished: c.unfinished,
		IndicatorID:    c.indicatorID,
		StatusFilter:   statusFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list submissions: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintList(entries); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
