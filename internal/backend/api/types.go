package api

import (
	"maps"
	"time"

	"github.com/slok/wrapperctl/internal/model"
)

// UploadResponse is the response of a file upload.
type UploadResponse struct {
	FileID string `json:"file_id"`
}

// SourceConfig is the wire representation of a source configuration. The fields
// used depend on the source type.
type SourceConfig struct {
	FileID         string            `json:"file_id,omitempty"`
	Location       string            `json:"location,omitempty"`
	AuthType       string            `json:"auth_type,omitempty"`
	Credentials    string            `json:"credentials,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	QueryParams    map[string]string `json:"query_params,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// GenerateRequest is the request body to start a wrapper generation.
type GenerateRequest struct {
	SourceType         string         `json:"source_type"`
	SourceConfig       SourceConfig   `json:"source_config"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	AutoCreateResource bool           `json:"auto_create_resource"`
}

// WrapperResponse is a wrapper job as returned by the backend.
type WrapperResponse struct {
	WrapperID    string         `json:"wrapper_id"`
	Status       string         `json:"status"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	SourceType   string         `json:"source_type,omitempty"`
	SourceConfig *SourceConfig  `json:"source_config,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    *time.Time     `json:"created_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// IndicatorResponse is an indicator as returned by the backend.
type IndicatorResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Resources []string `json:"resources"`
}

// LinkRequest is the request body to link a resource to an indicator.
type LinkRequest struct {
	ResourceID string `json:"resource_id"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError is the error detail of an error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// FromModelGenerateRequest maps a model generate request to its wire representation.
func FromModelGenerateRequest(req model.GenerateRequest) GenerateRequest {
	return GenerateRequest{
		SourceType:         string(req.SourceConfig.Kind),
		SourceConfig:       fromModelSourceConfig(req.SourceConfig),
		Metadata:           maps.Clone(req.Metadata),
		AutoCreateResource: req.AutoCreateResource,
	}
}

// ToModel maps the wire request to the model.
func (r GenerateRequest) ToModel() model.GenerateRequest {
	return model.GenerateRequest{
		SourceConfig:       r.SourceConfig.toModel(model.SourceKind(r.SourceType)),
		Metadata:           maps.Clone(r.Metadata),
		AutoCreateResource: r.AutoCreateResource,
	}
}

func fromModelSourceConfig(c model.SourceConfig) SourceConfig {
	switch {
	case c.File != nil:
		return SourceConfig{FileID: c.File.FileID}
	case c.API != nil:
		return SourceConfig{
			Location:       c.API.Location,
			AuthType:       string(c.API.AuthType),
			Credentials:    c.API.Credentials,
			Headers:        maps.Clone(c.API.Headers),
			QueryParams:    maps.Clone(c.API.QueryParams),
			TimeoutSeconds: c.API.TimeoutSeconds,
		}
	}
	return SourceConfig{}
}

func (c SourceConfig) toModel(kind model.SourceKind) model.SourceConfig {
	switch kind {
	case model.SourceKindFile:
		return model.SourceConfig{Kind: kind, File: &model.FileSource{FileID: c.FileID}}
	case model.SourceKindAPI:
		return model.SourceConfig{Kind: kind, API: &model.APISource{
			Location:       c.Location,
			AuthType:       model.AuthType(c.AuthType),
			Credentials:    c.Credentials,
			Headers:        maps.Clone(c.Headers),
			QueryParams:    maps.Clone(c.QueryParams),
			TimeoutSeconds: c.TimeoutSeconds,
		}}
	}
	return model.SourceConfig{Kind: kind}
}

// FromModelWrapper maps a model wrapper to its wire representation.
func FromModelWrapper(w model.Wrapper) WrapperResponse {
	resp := WrapperResponse{
		WrapperID:   w.ID,
		Status:      string(w.Status),
		SourceType:  string(w.SourceConfig.Kind),
		Metadata:    maps.Clone(w.Metadata),
		CompletedAt: w.CompletedAt,
	}
	if w.ResourceID != "" {
		resp.ResourceID = &w.ResourceID
	}
	if w.ErrorMessage != "" {
		resp.ErrorMessage = &w.ErrorMessage
	}
	if w.SourceConfig.Kind != "" {
		sc := fromModelSourceConfig(w.SourceConfig)
		resp.SourceConfig = &sc
	}
	if !w.CreatedAt.IsZero() {
		t := w.CreatedAt
		resp.CreatedAt = &t
	}
	return resp
}

// ToModel maps the wire wrapper to the model. Unknown statuses are kept as they are.
func (r WrapperResponse) ToModel() model.Wrapper {
	w := model.Wrapper{
		ID:          r.WrapperID,
		Status:      model.WrapperStatus(r.Status),
		Metadata:    maps.Clone(r.Metadata),
		CompletedAt: r.CompletedAt,
	}
	if r.ResourceID != nil {
		w.ResourceID = *r.ResourceID
	}
	if r.ErrorMessage != nil {
		w.ErrorMessage = *r.ErrorMessage
	}
	if r.SourceConfig != nil {
		w.SourceConfig = r.SourceConfig.toModel(model.SourceKind(r.SourceType))
	}
	if r.CreatedAt != nil {
		w.CreatedAt = *r.CreatedAt
	}
	return w
}

// FromModelIndicator maps a model indicator to its wire representation.
func FromModelIndicator(i model.Indicator) IndicatorResponse {
	resources := i.Resources
	if resources == nil {
		resources = []string{}
	}
	return IndicatorResponse{ID: i.ID, Name: i.Name, Resources: resources}
}

// ToModel maps the wire indicator to the model.
func (r IndicatorResponse) ToModel() model.Indicator {
	return model.Indicator{ID: r.ID, Name: r.Name, Resources: r.Resources}
}
