package ingest

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/wizard"
)

// Resource wizard form fields.
const (
	FieldName               = "name"
	FieldDescription        = "description"
	FieldIndicatorID        = "indicator_id"
	FieldMode               = "mode"
	FieldPreviousResourceID = "previous_resource_id"
	FieldSourceKind         = "source_kind"
	FieldFilePath           = "file_path"
	FieldLocation           = "location"
	FieldAuthType           = "auth_type"
	FieldCredentials        = "credentials"
	FieldHeaders            = "headers"
	FieldQueryParams        = "query_params"
	FieldTimeoutSeconds     = "timeout_seconds"
)

// WizardSteps are the resource wizard steps.
var WizardSteps = []string{"Fonte", "Configuração", "Revisão"}

func isAPISource(data wizard.FormData) bool {
	return data.String(FieldSourceKind) == string(model.SourceKindAPI)
}

func needsCredentials(data wizard.FormData) bool {
	auth := data.String(FieldAuthType)
	return isAPISource(data) && auth != "" && auth != string(model.AuthTypeNone)
}

// NewWizardGate returns the resource wizard validation rules.
func NewWizardGate() wizard.Gate {
	return wizard.NewGate(
		[]wizard.Rule{
			wizard.Required(FieldName, "name is required"),
			wizard.Required(FieldIndicatorID, "indicator is required"),
			wizard.OneOf(FieldMode, "mode must be create or edit", string(model.SubmitModeCreate), string(model.SubmitModeEdit)),
			wizard.Required(FieldSourceKind, "source type is required"),
			wizard.OneOf(FieldSourceKind, "source type must be file or api", string(model.SourceKindFile), string(model.SourceKindAPI)),
			wizard.When(wizard.FieldEquals(FieldMode, string(model.SubmitModeEdit)),
				wizard.Required(FieldPreviousResourceID, "previous resource is required when editing")),
		},
		[]wizard.Rule{
			wizard.When(wizard.FieldEquals(FieldSourceKind, string(model.SourceKindFile)),
				wizard.Required(FieldFilePath, "file is required")),
			wizard.When(isAPISource, wizard.Required(FieldLocation, "location is required")),
			wizard.When(isAPISource, wizard.HTTPURL(FieldLocation, "location must be an http(s) url")),
			wizard.When(isAPISource, wizard.OneOf(FieldAuthType, "auth type must be none, bearer, basic or api_key",
				string(model.AuthTypeNone), string(model.AuthTypeBearer), string(model.AuthTypeBasic), string(model.AuthTypeAPIKey))),
			wizard.When(needsCredentials, wizard.Required(FieldCredentials, "credentials are required for this auth type")),
			wizard.When(isAPISource, wizard.PositiveInt(FieldTimeoutSeconds, "timeout must be a positive number of seconds")),
		},
		nil,
	)
}

// RequestFromForm maps the resource wizard form to an ingest request. File
// sources get the file path in the returned path, the caller opens it.
func RequestFromForm(data wizard.FormData) (req Request, filePath string, err error) {
	mode := model.SubmitMode(data.String(FieldMode))
	if mode == "" {
		mode = model.SubmitModeCreate
	}

	req = Request{
		Mode:               mode,
		IndicatorID:        data.String(FieldIndicatorID),
		PreviousResourceID: data.String(FieldPreviousResourceID),
		Metadata: map[string]any{
			"name":         data.String(FieldName),
			"indicator_id": data.String(FieldIndicatorID),
		},
	}
	if d := data.String(FieldDescription); d != "" {
		req.Metadata["description"] = d
	}

	switch kind := model.SourceKind(data.String(FieldSourceKind)); kind {
	case model.SourceKindFile:
		req.Source = model.SourceConfig{Kind: kind}
		filePath = data.String(FieldFilePath)
	case model.SourceKindAPI:
		auth := model.AuthType(data.String(FieldAuthType))
		if auth == "" {
			auth = model.AuthTypeNone
		}
		timeout, _ := data.Int(FieldTimeoutSeconds)
		req.Source = model.SourceConfig{Kind: kind, API: &model.APISource{
			Location:       data.String(FieldLocation),
			AuthType:       auth,
			Credentials:    data.String(FieldCredentials),
			Headers:        data.StringMap(FieldHeaders),
			QueryParams:    data.StringMap(FieldQueryParams),
			TimeoutSeconds: timeout,
		}}
	default:
		return Request{}, "", fmt.Errorf("unknown source kind %q: %w", kind, model.ErrNotValid)
	}

	return req, filePath, nil
}

// EditFormData returns the wizard form to edit the resource generated by a wrapper.
func EditFormData(indicatorID, resourceID string, w model.Wrapper) wizard.FormData {
	data := wizard.FormData{
		FieldMode:               string(model.SubmitModeEdit),
		FieldIndicatorID:        indicatorID,
		FieldPreviousResourceID: resourceID,
		FieldSourceKind:         string(w.SourceConfig.Kind),
	}
	if name, ok := w.Metadata["name"].(string); ok {
		data[FieldName] = name
	}
	if d, ok := w.Metadata["description"].(string); ok {
		data[FieldDescription] = d
	}
	if api := w.SourceConfig.API; api != nil {
		data[FieldLocation] = api.Location
		data[FieldAuthType] = string(api.AuthType)
		data[FieldCredentials] = api.Credentials
		if len(api.Headers) > 0 {
			data[FieldHeaders] = api.Headers
		}
		if len(api.QueryParams) > 0 {
			data[FieldQueryParams] = api.QueryParams
		}
		if api.TimeoutSeconds > 0 {
			data[FieldTimeoutSeconds] = api.TimeoutSeconds
		}
	}
	return data
}

// FormFromDescriptor returns the wizard form of a resource descriptor, so
// descriptors go through the same validation and submit path as the wizard.
func FormFromDescriptor(d model.ResourceDescriptor) wizard.FormData {
	data := wizard.FormData{
		FieldName:        d.Name,
		FieldIndicatorID: d.IndicatorID,
		FieldMode:        string(d.Mode),
		FieldSourceKind:  string(d.SourceKind),
	}
	if d.Description != "" {
		data[FieldDescription] = d.Description
	}
	if d.PreviousResourceID != "" {
		data[FieldPreviousResourceID] = d.PreviousResourceID
	}
	if d.FilePath != "" {
		data[FieldFilePath] = d.FilePath
	}
	if api := d.API; api != nil {
		data[FieldLocation] = api.Location
		data[FieldAuthType] = string(api.AuthType)
		if api.Credentials != "" {
			data[FieldCredentials] = api.Credentials
		}
		if len(api.Headers) > 0 {
			data[FieldHeaders] = maps.Clone(api.Headers)
		}
		if len(api.QueryParams) > 0 {
			data[FieldQueryParams] = maps.Clone(api.QueryParams)
		}
		if api.TimeoutSeconds > 0 {
			data[FieldTimeoutSeconds] = api.TimeoutSeconds
		}
	}
	return data
}

// Submitter submits ingestion requests.
type Submitter interface {
	Submit(ctx context.Context, req Request, obs Observer) (*Result, error)
}

// Follower stops following the wrappers it polls.
type Follower interface {
	StopFollowing(wrapperID string)
}

var (
	_ Submitter = &Service{}
	_ Follower  = &Service{}
)

// WizardConfig is the configuration for the resource wizard.
type WizardConfig struct {
	Submitter Submitter
	// InitialData pre-populates the form, use EditFormData to edit.
	InitialData wizard.FormData
	// Observer receives the wrapper statuses while submitting.
	Observer Observer
	// OnResult receives the result of a successful submit.
	OnResult func(Result)
	// OpenFile opens file sources, defaults to the local filesystem.
	OpenFile func(path string) (io.ReadCloser, error)
	Logger   log.Logger
}

func (c *WizardConfig) defaults() error {
	if c.Submitter == nil {
		return fmt.Errorf("submitter is required")
	}
	if c.OnResult == nil {
		c.OnResult = func(Result) {}
	}
	if c.OpenFile == nil {
		c.OpenFile = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// NewWizard returns the resource wizard, submitting it runs an ingestion.
func NewWizard(cfg WizardConfig) (*wizard.Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Wrappers started by the session, polling for them stops on close.
	var mu sync.Mutex
	started := map[string]struct{}{}
	observer := func(w model.Wrapper) {
		mu.Lock()
		started[w.ID] = struct{}{}
		mu.Unlock()
		if cfg.Observer != nil {
			cfg.Observer(w)
		}
	}

	gate := NewWizardGate()
	handler := func(ctx context.Context, data wizard.FormData) error {
		if errs := gate.ValidateAll(data); len(errs) > 0 {
			return &wizard.FieldErrorsError{Fields: errs}
		}

		req, path, err := RequestFromForm(data)
		if err != nil {
			return err
		}
		if path != "" {
			f, err := cfg.OpenFile(path)
			if err != nil {
				return &wizard.FieldErrorsError{Fields: wizard.FieldErrors{FieldFilePath: fmt.Sprintf("could not open file: %s", err)}}
			}
			defer f.Close()
			req.File = &FileUpload{Name: filepath.Base(path), Reader: f}
		}

		res, err := cfg.Submitter.Submit(ctx, req, observer)
		if err != nil {
			return err
		}
		cfg.OnResult(*res)
		return nil
	}

	eng, err := wizard.NewEngine(wizard.EngineConfig{
		Steps:       WizardSteps,
		InitialData: cfg.InitialData,
		Handler:     handler,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	if f, ok := cfg.Submitter.(Follower); ok {
		eng.OnClose(func() {
			mu.Lock()
			defer mu.Unlock()
			for id := range started {
				f.StopFollowing(id)
			}
			clear(started)
		})
	}

	return eng, nil
}
