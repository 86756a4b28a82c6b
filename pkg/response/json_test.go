package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-mistake-tracker/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("report x"), http.StatusNotFound},
		{apperr.InvalidArgument("bad"), http.StatusBadRequest},
		{apperr.ErrInvalidTransition, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperr.Unauthorized("nope")), http.StatusForbidden},
		{apperr.Conflict("lost race"), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusOf(c.err), c.err.Error())
	}
}

func TestFromErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, "Failed", errors.New("connection string leaked"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Empty(t, body.Error)

	rec = httptest.NewRecorder()
	FromError(rec, "Failed", apperr.InvalidArgument("limit too large"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body.Error, "limit too large")
}
