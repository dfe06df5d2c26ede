package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/backend/fake"
	"github.com/slok/wrapperctl/internal/backend/server"
	"github.com/slok/wrapperctl/internal/conventions"
	"github.com/slok/wrapperctl/internal/model"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listen       string
	statuses     []string
	errorMessage string
	indicators   []string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run an in-memory development backend.")
	c.Cmd.Flag("listen", "Address to listen on.").Default(conventions.DefaultServeAddress).StringVar(&c.listen)
	c.Cmd.Flag("status", "Status progression of new wrappers, one per poll (repeatable).").StringsVar(&c.statuses)
	c.Cmd.Flag("error-message", "Message of wrappers that end on error.").StringVar(&c.errorMessage)
	c.Cmd.Flag("indicator", "Indicator ID created on start (repeatable), unknown ones are created on first use.").StringsVar(&c.indicators)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var statuses []model.WrapperStatus
	for _, s := range c.statuses {
		st := model.WrapperStatus(s)
		if !st.Known() {
			return fmt.Errorf("invalid status: %s", s)
		}
		statuses = append(statuses, st)
	}

	indicators := make([]model.Indicator, 0, len(c.indicators))
	for _, id := range c.indicators {
		indicators = append(indicators, model.Indicator{ID: id})
	}

	b, err := fake.NewClient(fake.ClientConfig{
		Statuses:             statuses,
		ErrorMessage:         c.errorMessage,
		Indicators:           indicators,
		AutoCreateIndicators: true,
		Logger:               logger,
	})
	if err != nil {
		return fmt.Errorf("could not create fake backend: %w", err)
	}

	h, err := server.NewHandler(server.HandlerConfig{Backend: b, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create handler: %w", err)
	}

	logger.Infof("Serving development backend on %s", c.listen)
	return server.Serve(ctx, c.listen, h)
}
