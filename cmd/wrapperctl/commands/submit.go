package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/printer"
	storageio "github.com/slok/wrapperctl/internal/storage/io"
	"github.com/slok/wrapperctl/internal/utils/kv"
	"github.com/slok/wrapperctl/internal/wizard"
)

type SubmitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	descriptorPath string
	headers        []string
	queryParams    []string
	format         string
}

// NewSubmitCommand returns the submit command.
func NewSubmitCommand(rootCmd *RootCommand, app *kingpin.Application) *SubmitCommand {
	c := &SubmitCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("submit", "Ingest a resource described by a YAML descriptor.")
	c.Cmd.Arg("descriptor", "Path to the resource descriptor YAML file.").Required().StringVar(&c.descriptorPath)
	c.Cmd.Flag("header", "API source header in KEY=VALUE format, KEY alone reads it from the environment (repeatable).").Short('H').StringsVar(&c.headers)
	c.Cmd.Flag("query", "API source query param in KEY=VALUE format, KEY alone reads it from the environment (repeatable).").Short('q').StringsVar(&c.queryParams)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SubmitCommand) Name() string { return c.Cmd.FullCommand() }

func (c SubmitCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	headers, err := kv.ParseSpecs(c.headers)
	if err != nil {
		return fmt.Errorf("invalid --header: %w", err)
	}
	query, err := kv.ParseSpecs(c.queryParams)
	if err != nil {
		return fmt.Errorf("invalid --query: %w", err)
	}

	// Load the descriptor, relative file sources are relative to it.
	dir := filepath.Dir(c.descriptorPath)
	desc, err := storageio.NewDescriptorYAMLRepository(os.DirFS(dir)).GetDescriptor(ctx, filepath.Base(c.descriptorPath))
	if err != nil {
		return fmt.Errorf("could not load descriptor: %w", err)
	}
	if desc.FilePath != "" && !filepath.IsAbs(desc.FilePath) {
		desc.FilePath = filepath.Join(dir, desc.FilePath)
	}
	if desc.API != nil {
		desc.API.Headers = kv.MergeMaps(desc.API.Headers, headers)
		desc.API.QueryParams = kv.MergeMaps(desc.API.QueryParams, query)
	} else if len(headers) > 0 || len(query) > 0 {
		return fmt.Errorf("--header and --query can only be used with api sources")
	}

	d, err := c.rootCmd.deps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := c.rootCmd.ingestService(d)
	if err != nil {
		return err
	}

	var result *ingest.Result
	wiz, err := ingest.NewWizard(ingest.WizardConfig{
		Submitter:   svc,
		InitialData: ingest.FormFromDescriptor(desc),
		Observer:    c.rootCmd.progressObserver(),
		OnResult:    func(r ingest.Result) { result = &r },
		OpenFile:    openWithProgress(c.rootCmd.Stderr),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create wizard: %w", err)
	}

	// Descriptors skip the interactive steps, the submit handler validates the
	// whole form.
	if err := wiz.Submit(ctx); err != nil {
		return describeSubmitError(err)
	}

	if err := c.rootCmd.printer(c.format).PrintResult(*result); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	return nil
}

// describeSubmitError returns the human readable version of an ingestion error.
func describeSubmitError(err error) error {
	var (
		fieldErr  *wizard.FieldErrorsError
		jobErr    *model.JobError
		relinkErr *ingest.RelinkError
	)
	switch {
	case errors.As(err, &fieldErr):
		return fmt.Errorf("invalid resource: %s", fieldErr.Fields)
	case errors.As(err, &jobErr):
		return fmt.Errorf("resource generation failed: %s", jobErr.Message)
	case errors.As(err, &relinkErr):
		return fmt.Errorf("%w (run `wrapperctl reconcile` to finish it)", relinkErr)
	case errors.Is(err, ingest.ErrUpload), errors.Is(err, ingest.ErrGenerate):
		return err
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("submission interrupted, the wrapper keeps generating (run `wrapperctl reconcile` to finish it)")
	}
	return fmt.Errorf("could not submit resource: %w", err)
}

type progressFile struct {
	*printer.ProgressReader
	f *os.File
}

func (p progressFile) Close() error {
	p.Finish()
	return p.f.Close()
}

// openWithProgress opens local source files showing the upload progress on w.
func openWithProgress(w io.Writer) func(path string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		var size int64
		if st, err := f.Stat(); err == nil {
			size = st.Size()
		}
		fmt.Fprintf(w, "Uploading %s (%s)\n", filepath.Base(path), printer.FormatBytes(size))
		return progressFile{ProgressReader: printer.NewProgressReader(f, w, size), f: f}, nil
	}
}
