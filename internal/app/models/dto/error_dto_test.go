package dto

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name string `validate:"required"`
	Kind string `validate:"oneof=direct group"`
}

func TestHandleValidationErrorListsFields(t *testing.T) {
	err := validator.New().Struct(sampleRequest{Kind: "triple"})
	require.Error(t, err)

	detail := HandleValidationError(err)
	assert.Equal(t, ErrorCodeValidationFailed, detail.Code)

	list, ok := detail.Details.([]ErrorDetail)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "name", list[0].Field)
	assert.Equal(t, "name is required", list[0].Message)
	assert.Equal(t, "kind must be one of: direct group", list[1].Message)
}

func TestHandleValidationErrorSingleField(t *testing.T) {
	err := validator.New().Struct(sampleRequest{Name: "x", Kind: "bad"})
	detail := HandleValidationError(err)
	assert.Equal(t, "kind", detail.Field)
	assert.Equal(t, "kind must be one of: direct group", detail.Message)
}

func TestHandleValidationErrorMalformedBody(t *testing.T) {
	detail := HandleValidationError(errors.New("unexpected EOF"))
	assert.Equal(t, "Invalid request format", detail.Message)
	assert.Equal(t, "unexpected EOF", detail.Details)
}

func TestMessagePageCursor(t *testing.T) {
	page := ToMessagePageResponse(nil, true)
	assert.Nil(t, page.NextCursor)
	assert.NotNil(t, page.Messages)
}
