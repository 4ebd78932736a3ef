package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusNotFound, "NOT_FOUND", "gone")
	assert.EqualError(t, err, "gone")
}

func TestAPIErrorRenderSetsStatus(t *testing.T) {
	apiErr := New(http.StatusConflict, "ANALYSIS_IN_PROGRESS", "busy")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, render.Render(rec, req, apiErr))

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ANALYSIS_IN_PROGRESS", body.ErrorCode)
	assert.Equal(t, "busy", body.Message)
}

func TestInvalidRequestWithError(t *testing.T) {
	apiErr := InvalidRequestWithError(errors.New("unexpected EOF"))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)
	assert.Equal(t, "unexpected EOF", apiErr.Details)
}

func TestErrValidation(t *testing.T) {
	apiErr := ErrValidation("file_path", "required")
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	detail, ok := apiErr.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "file_path", detail.Field)
	assert.Equal(t, "required", detail.Message)
}

func TestErrorResponseEnvelope(t *testing.T) {
	resp := NewErrorResponse(ErrEmptyCorpus)
	assert.False(t, resp.Success)
	assert.Equal(t, "EMPTY_CORPUS", resp.Error.ErrorCode)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Error.StatusCode)
}
