package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/wrapperctl/internal/app/ingest"
	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/printer"
	"github.com/slok/wrapperctl/internal/wizard"
)

type WizardCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	editWrapperID string
	indicatorID   string
	resourceID    string
	format        string
}

// NewWizardCommand returns the wizard command.
func NewWizardCommand(rootCmd *RootCommand, app *kingpin.Application) *WizardCommand {
	c := &WizardCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("wizard", "Describe and ingest a resource step by step.")
	c.Cmd.Flag("edit", "Wrapper ID whose resource is replaced, pre-populates the form.").StringVar(&c.editWrapperID)
	c.Cmd.Flag("indicator", "Indicator ID the resource is attached to.").StringVar(&c.indicatorID)
	c.Cmd.Flag("resource", "Resource ID replaced when editing, defaults to the indicator single resource.").StringVar(&c.resourceID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c WizardCommand) Name() string { return c.Cmd.FullCommand() }

func (c WizardCommand) Run(ctx context.Context) error {
	d, err := c.rootCmd.deps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := c.rootCmd.ingestService(d)
	if err != nil {
		return err
	}

	initial, err := c.initialData(ctx, d.backend)
	if err != nil {
		return err
	}

	var result *ingest.Result
	wiz, err := ingest.NewWizard(ingest.WizardConfig{
		Submitter:   svc,
		InitialData: initial,
		Observer:    c.rootCmd.progressObserver(),
		OnResult:    func(r ingest.Result) { result = &r },
		OpenFile:    openWithProgress(c.rootCmd.Stderr),
		Logger:      c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create wizard: %w", err)
	}
	// Closing stops polling any wrapper the session started.
	defer func() {
		if err := wiz.Close(); err != nil {
			c.rootCmd.Logger.Warningf("Could not close wizard: %s", err)
		}
	}()

	p := newWizardPrompt(wiz, ingest.NewWizardGate(), c.rootCmd.Stdin, c.rootCmd.Stderr)
	submitted, err := p.run(ctx)
	if err != nil {
		return err
	}
	if !submitted {
		return nil
	}

	if err := c.rootCmd.printer(c.format).PrintResult(*result); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}
	return nil
}

// initialData returns the pre-populated form.
func (c WizardCommand) initialData(ctx context.Context, b backend.Client) (wizard.FormData, error) {
	if c.editWrapperID == "" {
		data := wizard.FormData{ingest.FieldMode: string(model.SubmitModeCreate)}
		if c.indicatorID != "" {
			data[ingest.FieldIndicatorID] = c.indicatorID
		}
		return data, nil
	}

	if c.indicatorID == "" {
		return nil, fmt.Errorf("--indicator is required when editing")
	}

	w, err := b.GetWrapper(ctx, c.editWrapperID)
	if err != nil {
		return nil, fmt.Errorf("could not get wrapper %s: %w", c.editWrapperID, err)
	}

	resourceID := c.resourceID
	if resourceID == "" {
		resourceID = w.ResourceID
	}
	if resourceID == "" {
		ind, err := b.GetIndicator(ctx, c.indicatorID)
		if err != nil {
			return nil, fmt.Errorf("could not get indicator %s: %w", c.indicatorID, err)
		}
		if len(ind.Resources) != 1 {
			return nil, fmt.Errorf("indicator %s has %d resources, use --resource to select the replaced one", c.indicatorID, len(ind.Resources))
		}
		resourceID = ind.Resources[0]
	}

	return ingest.EditFormData(c.indicatorID, resourceID, *w), nil
}

// errWizardClosed is returned by the prompt when the user closes the wizard.
var errWizardClosed = errors.New("wizard closed")

type promptField struct {
	name  string
	label string
	// show tells if the field applies to the current form.
	show   func(data wizard.FormData) bool
	secret bool
}

func always(wizard.FormData) bool { return true }

func apiSource(data wizard.FormData) bool {
	return data.String(ingest.FieldSourceKind) == string(model.SourceKindAPI)
}

// stepFields are the prompted fields of each resource wizard step.
var stepFields = [][]promptField{
	{
		{name: ingest.FieldName, label: "Nome", show: always},
		{name: ingest.FieldDescription, label: "Descrição", show: always},
		{name: ingest.FieldIndicatorID, label: "Indicador", show: always},
		{name: ingest.FieldMode, label: "Modo (create, edit)", show: always},
		{name: ingest.FieldPreviousResourceID, label: "Recurso substituído", show: func(d wizard.FormData) bool {
			return d.String(ingest.FieldMode) == string(model.SubmitModeEdit)
		}},
		{name: ingest.FieldSourceKind, label: "Tipo de fonte (file, api)", show: always},
	},
	{
		{name: ingest.FieldFilePath, label: "Arquivo (CSV, XLSX)", show: func(d wizard.FormData) bool {
			return d.String(ingest.FieldSourceKind) == string(model.SourceKindFile)
		}},
		{name: ingest.FieldLocation, label: "URL", show: apiSource},
		{name: ingest.FieldAuthType, label: "Autenticação (none, bearer, basic, api_key)", show: apiSource},
		{name: ingest.FieldCredentials, label: "Credenciais", secret: true, show: func(d wizard.FormData) bool {
			auth := d.String(ingest.FieldAuthType)
			return apiSource(d) && auth != "" && auth != string(model.AuthTypeNone)
		}},
		{name: ingest.FieldHeaders, label: "Headers (k=v,k2=v2)", show: apiSource},
		{name: ingest.FieldQueryParams, label: "Query params (k=v,k2=v2)", show: apiSource},
		{name: ingest.FieldTimeoutSeconds, label: "Timeout (segundos)", show: apiSource},
	},
	{},
}

// wizardPrompt drives a wizard engine from a line based terminal.
type wizardPrompt struct {
	eng  *wizard.Engine
	gate wizard.Gate
	in   *bufio.Scanner
	out  io.Writer

	readOnce sync.Once
	lines    chan string
	// readErr is set before lines is closed.
	readErr error
}

func newWizardPrompt(eng *wizard.Engine, gate wizard.Gate, in io.Reader, out io.Writer) *wizardPrompt {
	return &wizardPrompt{eng: eng, gate: gate, in: bufio.NewScanner(in), out: out, lines: make(chan string)}
}

// run runs the wizard until it is submitted or closed. It returns false when
// the user closed it.
func (p *wizardPrompt) run(ctx context.Context) (submitted bool, err error) {
	unsubscribe := p.eng.Subscribe(func(s wizard.Session) {
		if s.IsSubmitting {
			fmt.Fprintln(p.out, "Enviando...")
		}
	})
	defer unsubscribe()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		s := p.eng.Session()
		fmt.Fprintf(p.out, "\n%s\n", printer.FormatSteps(s.Steps, s.CurrentStep))

		if err := p.collect(ctx, s); err != nil {
			if errors.Is(err, errWizardClosed) {
				return false, p.close()
			}
			return false, err
		}

		if s.IsLastStep() {
			p.review()
		}

		action, err := p.action(ctx, s)
		if err != nil {
			if errors.Is(err, errWizardClosed) {
				return false, p.close()
			}
			return false, err
		}

		switch action {
		case "v":
			p.eng.PreviousStep()
		case "q":
			return false, p.close()
		case "c":
			if !s.IsLastStep() {
				if !p.eng.Advance(p.gate) {
					p.printErrors()
				}
				continue
			}

			err := p.eng.Submit(ctx)
			if err == nil {
				return true, nil
			}

			var fieldErr *wizard.FieldErrorsError
			if !errors.As(err, &fieldErr) {
				return false, describeSubmitError(err)
			}
			// Go back to the first step with errors keeping them visible.
			errs := p.eng.Session().Errors
			step := p.gate.FirstInvalidStep(p.eng.Session().FormData)
			if step < 0 {
				step = errorStep(errs)
			}
			p.eng.GoToStep(step)
			p.eng.SetErrors(errs)
			p.printErrors()
		}
	}
}

// collect prompts the fields of the current step, an empty answer keeps the value.
func (p *wizardPrompt) collect(ctx context.Context, s wizard.Session) error {
	if s.CurrentStep >= len(stepFields) {
		return nil
	}

	for _, f := range stepFields[s.CurrentStep] {
		data := p.eng.Session().FormData
		if !f.show(data) {
			continue
		}

		current := displayValue(data, f.name)
		if f.secret && current != "" {
			current = "****"
		}
		if msg, ok := s.Errors[f.name]; ok {
			fmt.Fprintf(p.out, "  ! %s\n", msg)
		}
		if current != "" {
			fmt.Fprintf(p.out, "%s [%s]: ", f.label, current)
		} else {
			fmt.Fprintf(p.out, "%s: ", f.label)
		}

		line, err := p.readLine(ctx)
		if err != nil {
			return err
		}
		if line != "" {
			p.eng.UpdateField(f.name, line)
		}
	}
	return nil
}

func (p *wizardPrompt) action(ctx context.Context, s wizard.Session) (string, error) {
	next := "(c) Continuar"
	if s.IsLastStep() {
		next = "(c) Enviar"
	}
	back := ""
	if !s.IsFirstStep() {
		back = "(v) Voltar, "
	}

	for {
		fmt.Fprintf(p.out, "%s%s, (q) Fechar: ", back, next)
		line, err := p.readLine(ctx)
		if err != nil {
			return "", err
		}
		switch a := strings.ToLower(line); a {
		case "", "c":
			return "c", nil
		case "q":
			return "q", nil
		case "v":
			if !s.IsFirstStep() {
				return "v", nil
			}
		}
	}
}

func (p *wizardPrompt) review() {
	data := p.eng.Session().FormData
	fields := make([]string, 0, len(data))
	for k := range data {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	for _, k := range fields {
		v := displayValue(data, k)
		if v == "" {
			continue
		}
		if k == ingest.FieldCredentials {
			v = "****"
		}
		fmt.Fprintf(p.out, "  %-22s %s\n", k, v)
	}
}

// errorStep returns the first step with a field on errs, used for errors the
// gate doesn't check like unreadable files.
func errorStep(errs wizard.FieldErrors) int {
	for i, fields := range stepFields {
		for _, f := range fields {
			if _, ok := errs[f.name]; ok {
				return i
			}
		}
	}
	return len(stepFields) - 1
}

func displayValue(data wizard.FormData, field string) string {
	switch field {
	case ingest.FieldHeaders, ingest.FieldQueryParams:
		m := data.StringMap(field)
		kvs := make([]string, 0, len(m))
		for k, v := range m {
			kvs = append(kvs, k+"="+v)
		}
		sort.Strings(kvs)
		return strings.Join(kvs, ",")
	}
	return data.String(field)
}

func (p *wizardPrompt) printErrors() {
	errs := p.eng.Session().Errors
	for _, f := range errs.Fields() {
		fmt.Fprintf(p.out, "  ! %s: %s\n", f, errs[f])
	}
}

func (p *wizardPrompt) close() error {
	if err := p.eng.Close(); err != nil {
		return fmt.Errorf("could not close wizard: %w", err)
	}
	fmt.Fprintln(p.out, "Wizard fechado")
	return nil
}

// readLine returns the next input line, it stops waiting when ctx is done.
func (p *wizardPrompt) readLine(ctx context.Context) (string, error) {
	p.readOnce.Do(func() {
		go func() {
			defer close(p.lines)
			for p.in.Scan() {
				p.lines <- p.in.Text()
			}
			p.readErr = p.in.Err()
		}()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			if p.readErr != nil {
				return "", fmt.Errorf("could not read input: %w", p.readErr)
			}
			return "", errWizardClosed
		}
		return strings.TrimSpace(line), nil
	}
}
