package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/wrapperctl/cmd/wrapperctl/commands"
	"github.com/slok/wrapperctl/internal/log"
	loglogrus "github.com/slok/wrapperctl/internal/log/logrus"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// quietCommands print results meant to be read or piped, they only log with --debug.
var quietCommands = map[string]bool{
	"list":   true,
	"status": true,
	"prune":  true,
}

// Run runs wrapperctl with args, args[0] being the program name.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	app := kingpin.New("wrapperctl", "Data wrapper ingestion tool.")
	app.DefaultEnvars()
	app.Version(Version)
	rootCmd := commands.NewRootCommand(app)

	cmds := map[string]commands.Command{}
	for _, cmd := range []commands.Command{
		commands.NewSubmitCommand(rootCmd, app),
		commands.NewWizardCommand(rootCmd, app),
		commands.NewListCommand(rootCmd, app),
		commands.NewStatusCommand(rootCmd, app),
		commands.NewReconcileCommand(rootCmd, app),
		commands.NewPruneCommand(rootCmd, app),
		commands.NewServeCommand(rootCmd, app),
	} {
		cmds[cmd.Name()] = cmd
	}

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	cmd := cmds[cmdName]

	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr
	if quietCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}
	rootCmd.Logger = newLogger(*rootCmd)

	var g run.Group

	// SIGINT and SIGTERM end the group, which cancels the running command.
	sigCtx, sigCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer sigCancel()
	g.Add(
		func() error {
			<-sigCtx.Done()
			rootCmd.Logger.Debugf("Termination signal received")
			return nil
		},
		func(error) { sigCancel() },
	)

	cmdCtx, cmdCancel := context.WithCancel(ctx)
	defer cmdCancel()
	g.Add(
		func() error {
			if err := cmd.Run(cmdCtx); err != nil {
				return fmt.Errorf("%q command failed: %w", cmdName, err)
			}
			return nil
		},
		func(error) { cmdCancel() },
	)

	return g.Run()
}

// newLogger returns the logrus backed logger writing to stderr, stdout is
// left to the command results.
func newLogger(cfg commands.RootCommand) log.Logger {
	if cfg.NoLog {
		return log.Noop
	}

	l := logrus.New()
	l.Out = cfg.Stderr
	if cfg.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	if cfg.LoggerType == commands.LoggerTypeJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{ForceColors: !cfg.NoColor, DisableColors: cfg.NoColor})
	}

	logger := loglogrus.NewLogrus(logrus.NewEntry(l)).WithValues(log.Kv{"version": Version})
	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	if err := Run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
