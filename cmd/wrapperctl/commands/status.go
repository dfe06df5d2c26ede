package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/app/status"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	watch  bool
	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Get the detailed status of a wrapper.")
	c.Cmd.Arg("id", "Submission or wrapper ID.").Required().StringVar(&c.id)
	c.Cmd.Flag("watch", "Follow the wrapper until it finishes.").Short('w').BoolVar(&c.watch)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	d, err := c.rootCmd.deps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := status.NewService(status.ServiceConfig{
		Backend:     d.backend,
		Repository:  d.repo,
		TaskManager: d.tasks,
		Logger:      c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	if c.watch {
		_, err := svc.Watch(ctx, status.WatchRequest{ID: c.id, Interval: c.rootCmd.PollInterval}, c.rootCmd.progressObserver())
		if err != nil {
			return fmt.Errorf("could not watch wrapper: %w", err)
		}
	}

	st, err := svc.Run(ctx, status.Request{ID: c.id})
	if err != nil {
		return fmt.Errorf("could not get wrapper status: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintStatus(*st); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
