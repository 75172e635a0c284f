package jsonapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCoversAllKnownCodes(t *testing.T) {
	cases := []struct {
		failure *ValidationFailure
		code    string
		meta    map[string]interface{}
	}{
		{
			failure: &ValidationFailure{Field: "name", Code: ValidationRequired},
			code:    "model_attribute_required_error",
			meta:    map[string]interface{}{"field": "name"},
		},
		{
			failure: &ValidationFailure{Field: "name", Code: ValidationBlank},
			code:    "model_attribute_too_short_error",
			meta:    map[string]interface{}{"field": "name", "min_length": 1},
		},
		{
			failure: &ValidationFailure{
				Field:  "name",
				Code:   ValidationTooShort,
				Params: map[string]interface{}{"min_length": 3},
			},
			code: "model_attribute_too_short_error",
			meta: map[string]interface{}{"field": "name", "min_length": 3},
		},
		{
			failure: &ValidationFailure{
				Field:  "name",
				Code:   ValidationTooLong,
				Params: map[string]interface{}{"max_length": 10},
			},
			code: "model_attribute_too_long_error",
			meta: map[string]interface{}{"field": "name", "max_length": 10},
		},
		{
			failure: &ValidationFailure{Field: "email", Code: ValidationInvalid},
			code:    "model_attribute_invalid_error",
			meta:    map[string]interface{}{"field": "email"},
		},
		{
			failure: &ValidationFailure{Field: "email", Code: ValidationNotUnique},
			code:    "model_attribute_invalid_error",
			meta:    map[string]interface{}{"field": "email"},
		},
		{
			failure: &ValidationFailure{
				Field:  "first_name",
				Code:   ValidationNotUniqueTogether,
				Params: map[string]interface{}{"fields": []string{"first_name", "last_name"}},
			},
			code: "model_fields_unique_together_error",
			meta: map[string]interface{}{"fields": []string{"first_name", "last_name"}},
		},
	}

	for _, tc := range cases {
		classified, ok := Classify(tc.failure)
		require.True(t, ok, tc.failure.Code)
		assert.Equal(t, tc.code, classified.Code)
		assert.Equal(t, http.StatusBadRequest, classified.Status)
		assert.Equal(t, tc.meta, classified.Meta)
	}
}

func TestClassifyUnknownCodePropagates(t *testing.T) {
	classified, ok := Classify(&ValidationFailure{Field: "name", Code: "exotic"})
	assert.False(t, ok)
	assert.Nil(t, classified)
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(&ValidationFailure{Field: "name", Code: ValidationRequired}))
	e := ModelNotFoundError()
	assert.Same(t, e, AsError(e))
	assert.Equal(t, http.StatusNotFound, e.Status)
}
