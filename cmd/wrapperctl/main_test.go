package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogging(t *testing.T) {
	tests := map[string]struct {
		args      []string
		expStderr string
	}{
		"Listing should not log by default.": {
			args:      []string{"list", "--format", "json"},
			expStderr: "",
		},

		"Listing with debug should log.": {
			args:      []string{"--debug", "--logger", "json", "list", "--format", "json"},
			expStderr: `"msg":"Debug level is enabled"`,
		},

		"Reconciling should log.": {
			args:      []string{"--logger", "json", "reconcile"},
			expStderr: `"version":"dev"`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)

			dbPath := filepath.Join(t.TempDir(), "wrapperctl.db")
			args := append([]string{"wrapperctl", "--db-path", dbPath, "--backend-url", "http://127.0.0.1:1"}, test.args...)

			var stdout, stderr bytes.Buffer
			err := Run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
			require.NoError(err)

			if test.expStderr == "" {
				assert.Empty(stderr.String())
			} else {
				assert.Contains(stderr.String(), test.expStderr)
			}
		})
	}
}

func TestRunInvalidCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), []string{"wrapperctl", "unknown"}, strings.NewReader(""), &stdout, &stderr)
	assert.ErrorContains(t, err, "invalid command configuration")
}
