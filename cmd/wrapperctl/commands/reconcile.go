package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/app/reconcile"
)

type ReconcileCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	submissionID string
	format       string
}

// NewReconcileCommand returns the reconcile command.
func NewReconcileCommand(rootCmd *RootCommand, app *kingpin.Application) *ReconcileCommand {
	c := &ReconcileCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("reconcile", "Finish interrupted submissions and failed resource relinks.")
	c.Cmd.Arg("submission-id", "Only reconcile this submission.").StringVar(&c.submissionID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ReconcileCommand) Name() string { return c.Cmd.FullCommand() }

func (c ReconcileCommand) Run(ctx context.Context) error {
	d, err := c.rootCmd.deps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	ing, err := c.rootCmd.ingestService(d)
	if err != nil {
		return err
	}

	svc, err := reconcile.NewService(reconcile.ServiceConfig{
		Resumer:    ing,
		Repository: d.repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	report, err := svc.Run(ctx, reconcile.Request{
		SubmissionID: c.submissionID,
		Observer:     c.rootCmd.progressObserver(),
	})
	if err != nil {
		return fmt.Errorf("could not reconcile: %w", err)
	}

	if err := c.rootCmd.printer(c.format).PrintReconcile(*report); err != nil {
		return fmt.Errorf("could not print report: %w", err)
	}

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d submissions could not be reconciled", n)
	}

	return nil
}
