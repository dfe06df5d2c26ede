package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/wrapperctl/internal/model"
)

func TestSubmissionValidate(t *testing.T) {
	tests := map[string]struct {
		submission model.Submission
		expErr     bool
	}{
		"A valid create submission should not fail": {
			submission: model.Submission{ID: "s1", WrapperID: "w1", IndicatorID: "i1", Mode: model.SubmitModeCreate},
		},

		"A valid edit submission should not fail": {
			submission: model.Submission{ID: "s1", WrapperID: "w1", IndicatorID: "i1", Mode: model.SubmitModeEdit, PreviousResourceID: "r0"},
		},

		"An edit submission without previous resource should fail": {
			submission: model.Submission{ID: "s1", WrapperID: "w1", IndicatorID: "i1", Mode: model.SubmitModeEdit},
			expErr:     true,
		},

		"Missing wrapper should fail": {
			submission: model.Submission{ID: "s1", IndicatorID: "i1", Mode: model.SubmitModeCreate},
			expErr:     true,
		},

		"Missing indicator should fail": {
			submission: model.Submission{ID: "s1", WrapperID: "w1", Mode: model.SubmitModeCreate},
			expErr:     true,
		},

		"Unknown mode should fail": {
			submission: model.Submission{ID: "s1", WrapperID: "w1", IndicatorID: "i1", Mode: "upsert"},
			expErr:     true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.submission.Validate()
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
