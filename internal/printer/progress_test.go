package printer_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/wrapperctl/internal/model"
	"github.com/slok/wrapperctl/internal/printer"
)

func TestProgressReaderWithTotal(t *testing.T) {
	var status bytes.Buffer

	pr := printer.NewProgressReader(strings.NewReader("hello"), &status, 5)

	data, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Contains(t, status.String(), "100%")

	pr.Finish()
}

func TestProgressReaderWithoutTotal(t *testing.T) {
	var status bytes.Buffer

	pr := printer.NewProgressReader(strings.NewReader("data"), &status, 0)

	_, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Contains(t, status.String(), "4 B uploaded")
}

func TestFormatSteps(t *testing.T) {
	steps := []string{"Fonte", "Configuração", "Revisão"}

	assert.Contains(t, printer.FormatSteps(steps, 0), "  0% [Fonte] > Configuração > Revisão")
	assert.Contains(t, printer.FormatSteps(steps, 1), " 50% Fonte > [Configuração] > Revisão")
	assert.Contains(t, printer.FormatSteps(steps, 2), "100% Fonte > Configuração > [Revisão]")
	assert.Contains(t, printer.FormatSteps([]string{"Único"}, 0), "[Único]")
}

func TestFormatWrapperStatus(t *testing.T) {
	tests := map[string]struct {
		w   model.Wrapper
		exp string
	}{
		"Pending should have no progress.": {
			w:   model.Wrapper{ID: "w1", Status: model.WrapperStatusPending},
			exp: "  0% wrapper w1: pending",
		},
		"Completed should be full.": {
			w:   model.Wrapper{ID: "w1", Status: model.WrapperStatusCompleted},
			exp: "100% wrapper w1: completed",
		},
		"Error should show the message.": {
			w:   model.Wrapper{ID: "w1", Status: model.WrapperStatusError, ErrorMessage: "timeout"},
			exp: "wrapper w1: error: timeout",
		},
		"Error without message should show the fallback.": {
			w:   model.Wrapper{ID: "w1", Status: model.WrapperStatusError},
			exp: "wrapper w1: error: " + model.DefaultJobErrorMessage,
		},
		"Unknown status should be shown as it is.": {
			w:   model.Wrapper{ID: "w1", Status: "queued"},
			exp: "wrapper w1: queued",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Contains(t, printer.FormatWrapperStatus(test.w), test.exp)
		})
	}
}
