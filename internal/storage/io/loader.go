package io

import (
	"context"
	"fmt"
	"io/fs"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/slok/wrapperctl/internal/model"
)

// DescriptorYAMLRepository loads resource descriptors from YAML files.
type DescriptorYAMLRepository struct {
	fs fs.FS
}

// NewDescriptorYAMLRepository creates a new YAML descriptor repository.
func NewDescriptorYAMLRepository(filesystem fs.FS) *DescriptorYAMLRepository {
	return &DescriptorYAMLRepository{fs: filesystem}
}

// GetDescriptor loads a resource descriptor from a YAML file. Only the
// structure is validated here, field rules are the wizard ones.
func (r *DescriptorYAMLRepository) GetDescriptor(ctx context.Context, path string) (model.ResourceDescriptor, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.ResourceDescriptor{}, fmt.Errorf("reading descriptor file: %w", err)
	}

	if ctx.Err() != nil {
		return model.ResourceDescriptor{}, ctx.Err()
	}

	var d ResourceDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return model.ResourceDescriptor{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := d.validate(); err != nil {
		return model.ResourceDescriptor{}, fmt.Errorf("invalid descriptor: %w", err)
	}

	return d.toModel(), nil
}

// ResourceDescriptor represents the YAML structure of a resource descriptor.
type ResourceDescriptor struct {
	Name               string       `yaml:"name"`
	Description        string       `yaml:"description"`
	IndicatorID        string       `yaml:"indicator_id"`
	Mode               string       `yaml:"mode"`
	PreviousResourceID string       `yaml:"previous_resource_id"`
	Source             SourceConfig `yaml:"source"`
}

// SourceConfig represents the YAML structure of the source, only one of them.
type SourceConfig struct {
	File *FileSourceConfig `yaml:"file,omitempty"`
	API  *APISourceConfig  `yaml:"api,omitempty"`
}

// FileSourceConfig represents the YAML structure of a file source.
type FileSourceConfig struct {
	Path string `yaml:"path"`
}

// APISourceConfig represents the YAML structure of an API source.
type APISourceConfig struct {
	Location       string            `yaml:"location"`
	AuthType       string            `yaml:"auth_type"`
	Credentials    string            `yaml:"credentials"`
	Headers        map[string]string `yaml:"headers"`
	QueryParams    map[string]string `yaml:"query_params"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

func (d ResourceDescriptor) validate() error {
	if d.Source.File == nil && d.Source.API == nil {
		return fmt.Errorf("exactly one source must be specified (file or api)")
	}
	if d.Source.File != nil && d.Source.API != nil {
		return fmt.Errorf("only one source can be specified at a time")
	}

	switch d.Mode {
	case "", string(model.SubmitModeCreate), string(model.SubmitModeEdit):
	default:
		return fmt.Errorf("mode must be create or edit, got: %q", d.Mode)
	}

	return nil
}

func (d ResourceDescriptor) toModel() model.ResourceDescriptor {
	mode := model.SubmitMode(d.Mode)
	if mode == "" {
		mode = model.SubmitModeCreate
	}

	m := model.ResourceDescriptor{
		Name:               d.Name,
		Description:        d.Description,
		IndicatorID:        d.IndicatorID,
		Mode:               mode,
		PreviousResourceID: d.PreviousResourceID,
	}

	if d.Source.File != nil {
		m.SourceKind = model.SourceKindFile
		m.FilePath = d.Source.File.Path
	}
	if api := d.Source.API; api != nil {
		auth := model.AuthType(api.AuthType)
		if auth == "" {
			auth = model.AuthTypeNone
		}
		m.SourceKind = model.SourceKindAPI
		m.API = &model.APISource{
			Location:       api.Location,
			AuthType:       auth,
			Credentials:    api.Credentials,
			Headers:        maps.Clone(api.Headers),
			QueryParams:    maps.Clone(api.QueryParams),
			TimeoutSeconds: api.TimeoutSeconds,
		}
	}

	return m
}
