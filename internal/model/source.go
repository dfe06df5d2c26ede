package model

import (
	"fmt"
	"maps"
	"net/url"
)

// SourceKind is the kind of external data source.
type SourceKind string

const (
	// SourceKindFile is a spreadsheet or CSV file uploaded to the backend.
	SourceKindFile SourceKind = "file"
	// SourceKindAPI is an HTTP API described by location, auth and parameters.
	SourceKindAPI SourceKind = "api"
)

// AuthType is the authentication used to reach an API source.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "api_key"
)

// SourceConfig describes where a wrapper gets its data from.
// Only the field matching Kind is set.
type SourceConfig struct {
	Kind SourceKind
	File *FileSource
	API  *APISource
}

// FileSource is a file already uploaded to the backend.
type FileSource struct {
	FileID string
}

// APISource is an HTTP API descriptor.
type APISource struct {
	Location       string
	AuthType       AuthType
	Credentials    string
	Headers        map[string]string
	QueryParams    map[string]string
	TimeoutSeconds int
}

// Validate validates the source configuration.
func (c SourceConfig) Validate() error {
	switch c.Kind {
	case SourceKindFile:
		if c.File == nil || c.File.FileID == "" {
			return fmt.Errorf("file source requires a file id: %w", ErrNotValid)
		}
		if c.API != nil {
			return fmt.Errorf("file source can't have api configuration: %w", ErrNotValid)
		}
	case SourceKindAPI:
		if c.API == nil {
			return fmt.Errorf("api source configuration is required: %w", ErrNotValid)
		}
		if c.File != nil {
			return fmt.Errorf("api source can't have file configuration: %w", ErrNotValid)
		}
		u, err := url.Parse(c.API.Location)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("api location %q must be an http(s) url: %w", c.API.Location, ErrNotValid)
		}
		switch c.API.AuthType {
		case "", AuthTypeNone:
		case AuthTypeBearer, AuthTypeBasic, AuthTypeAPIKey:
			if c.API.Credentials == "" {
				return fmt.Errorf("%s auth requires credentials: %w", c.API.AuthType, ErrNotValid)
			}
		default:
			return fmt.Errorf("unknown auth type %q: %w", c.API.AuthType, ErrNotValid)
		}
		if c.API.TimeoutSeconds < 0 {
			return fmt.Errorf("timeout can't be negative: %w", ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown source kind %q: %w", c.Kind, ErrNotValid)
	}

	return nil
}

// Clone returns a deep copy so the caller can't mutate a submitted configuration.
func (c SourceConfig) Clone() SourceConfig {
	out := SourceConfig{Kind: c.Kind}
	if c.File != nil {
		f := *c.File
		out.File = &f
	}
	if c.API != nil {
		a := *c.API
		a.Headers = maps.Clone(c.API.Headers)
		a.QueryParams = maps.Clone(c.API.QueryParams)
		out.API = &a
	}
	return out
}
