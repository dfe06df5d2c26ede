package io

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/wrapperctl/internal/model"
)

func TestDescriptorYAMLRepository_GetDescriptor(t *testing.T) {
	tests := map[string]struct {
		fs      fstest.MapFS
		path    string
		expDesc model.ResourceDescriptor
		expErr  bool
		errMsg  string
	}{
		"Valid file descriptor should load successfully": {
			fs: fstest.MapFS{
				"co2.yaml": &fstest.MapFile{
					Data: []byte(`name: Emissões CO2
indicator_id: ind-1
source:
  file:
    path: data/co2.csv
`),
				},
			},
			path: "co2.yaml",
			expDesc: model.ResourceDescriptor{
				Name:        "Emissões CO2",
				IndicatorID: "ind-1",
				Mode:        model.SubmitModeCreate,
				SourceKind:  model.SourceKindFile,
				FilePath:    "data/co2.csv",
			},
		},
		"Valid API descriptor on edit mode should load successfully": {
			fs: fstest.MapFS{
				"api.yaml": &fstest.MapFile{
					Data: []byte(`name: Consumo de água
description: Dados da companhia
indicator_id: ind-2
mode: edit
previous_resource_id: r0
source:
  api:
    location: https://api.example.com/water
    auth_type: bearer
    credentials: s3cr3t
    headers:
      Accept: application/json
    query_params:
      year: "2024"
    timeout_seconds: 45
`),
				},
			},
			path: "api.yaml",
			expDesc: model.ResourceDescriptor{
				Name:               "Consumo de água",
				Description:        "Dados da companhia",
				IndicatorID:        "ind-2",
				Mode:               model.SubmitModeEdit,
				PreviousResourceID: "r0",
				SourceKind:         model.SourceKindAPI,
				API: &model.APISource{
					Location:       "https://api.example.com/water",
					AuthType:       model.AuthTypeBearer,
					Credentials:    "s3cr3t",
					Headers:        map[string]string{"Accept": "application/json"},
					QueryParams:    map[string]string{"year": "2024"},
					TimeoutSeconds: 45,
				},
			},
		},
		"API source without auth type should default to none": {
			fs: fstest.MapFS{
				"api.yaml": &fstest.MapFile{
					Data: []byte(`source:
  api:
    location: https://api.example.com/water
`),
				},
			},
			path: "api.yaml",
			expDesc: model.ResourceDescriptor{
				Mode:       model.SubmitModeCreate,
				SourceKind: model.SourceKindAPI,
				API: &model.APISource{
					Location: "https://api.example.com/water",
					AuthType: model.AuthTypeNone,
				},
			},
		},
		"Descriptor without source should return error": {
			fs: fstest.MapFS{
				"d.yaml": &fstest.MapFile{Data: []byte("name: test\n")},
			},
			path:   "d.yaml",
			expErr: true,
			errMsg: "exactly one source",
		},
		"Descriptor with both sources should return error": {
			fs: fstest.MapFS{
				"d.yaml": &fstest.MapFile{Data: []byte(`source:
  file:
    path: a.csv
  api:
    location: https://example.com
`)},
			},
			path:   "d.yaml",
			expErr: true,
			errMsg: "only one source",
		},
		"Unknown mode should return error": {
			fs: fstest.MapFS{
				"d.yaml": &fstest.MapFile{Data: []byte(`mode: upsert
source:
  file:
    path: a.csv
`)},
			},
			path:   "d.yaml",
			expErr: true,
			errMsg: "mode must be create or edit",
		},
		"Missing file should return error": {
			fs:     fstest.MapFS{},
			path:   "nonexistent.yaml",
			expErr: true,
			errMsg: "reading descriptor file",
		},
		"Invalid YAML should return error": {
			fs: fstest.MapFS{
				"invalid.yaml": &fstest.MapFile{
					Data: []byte(`invalid: yaml: content: {}`),
				},
			},
			path:   "invalid.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := NewDescriptorYAMLRepository(tc.fs)
			d, err := repo.GetDescriptor(context.Background(), tc.path)

			if tc.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expDesc, d)
		})
	}
}

func TestDescriptorYAMLRepository_GetDescriptor_ContextCancellation(t *testing.T) {
	fs := fstest.MapFS{
		"test.yaml": &fstest.MapFile{
			Data: []byte(`name: test
source:
  file:
    path: a.csv
`),
		},
	}

	repo := NewDescriptorYAMLRepository(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetDescriptor(ctx, "test.yaml")
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}
