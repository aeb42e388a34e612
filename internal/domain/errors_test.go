package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupError(t *testing.T) {
	tests := []struct {
		name    string
		group   string
		stage   string
		err     error
		wantMsg string
	}{
		{
			name:    "empty group",
			group:   "acme",
			stage:   "fit",
			err:     ErrEmptyCorpus,
			wantMsg: "group error: group=acme, stage=fit, err=empty corpus",
		},
		{
			name:    "wrapped error",
			group:   "US",
			stage:   "bootstrap",
			err:     fmt.Errorf("resample 3: %w", ErrEmptyCorpus),
			wantMsg: "group error: group=US, stage=bootstrap, err=resample 3: empty corpus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGroupError(tt.group, tt.stage, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.group, err.Group)
			assert.True(t, errors.Is(err, ErrEmptyCorpus), "Should unwrap to underlying error")
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("list")
		err.AddError("item 0: brand is required")

		assert.Equal(t, "validation error for list: item 0: brand is required", err.Error())
		assert.True(t, err.HasErrors())
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("config")
		err.AddError("method is invalid")
		err.AddError("alpha must be >= 0")

		assert.Contains(t, err.Error(), "validation errors for config")
		assert.Len(t, err.Errors, 2)
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("config")

		assert.False(t, err.HasErrors())
		assert.Empty(t, err.Errors)
	})
}

func TestCommonDomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrMalformedInput, "malformed input"},
		{ErrMalformedOutput, "malformed output"},
		{ErrEmptyCorpus, "empty corpus"},
		{ErrNoUsableInput, "no usable input"},
		{ErrInvalidList, "invalid list"},
		{ErrInvalidConfiguration, "invalid configuration"},
		{ErrUnknownMethod, "unknown scoring method"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}
