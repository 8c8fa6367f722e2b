package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
)

func record(t *testing.T, fn func(echo.Context) error) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, fn(echo.New().NewContext(req, rec)))
	return rec
}

func decodeAPI(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccessEnvelope(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Success(c, map[string]string{"key": "value"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAPI(t, rec)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
}

func TestSuccessEnvelopeNilData(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Success(c, nil)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeAPI(t, rec).Success)
}

func TestSuccessWithMessage(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return SuccessWithMessage(c, map[string]string{"key": "value"}, "reclassification queued")
	})

	resp := decodeAPI(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "reclassification queued", resp.Message)
}

func TestCreatedEnvelope(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Created(c, map[string]int{"id": 1})
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decodeAPI(t, rec).Success)
}

func TestNoContentEnvelope(t *testing.T) {
	rec := record(t, NoContent)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestPaginatedEnvelope(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Paginated(c, []string{"a", "b"}, 100, 20, 40)
	})

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(100), resp.Meta.Total)
	assert.Equal(t, 20, resp.Meta.Limit)
	assert.Equal(t, 40, resp.Meta.Offset)
}

func TestPaginatedEnvelopeEmpty(t *testing.T) {
	rec := record(t, func(c echo.Context) error {
		return Paginated(c, []string{}, 0, 20, 0)
	})

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.Meta.Total)
}

func TestErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", mailerrors.ErrNotFound, http.StatusNotFound, mailerrors.CodeNotFound},
		{"duplicate", mailerrors.ErrDuplicateEntry, http.StatusConflict, mailerrors.CodeDuplicateEntry},
		{"invalid input", mailerrors.ErrInvalidInput, http.StatusBadRequest, mailerrors.CodeInvalidInput},
		{"unauthorized", mailerrors.ErrUnauthorized, http.StatusUnauthorized, mailerrors.CodeUnauthorized},
		{"classifier outage", mailerrors.ErrClassifierUnavailable, http.StatusServiceUnavailable, mailerrors.CodeClassifierUnavailable},
		{"retrieval outage", mailerrors.ErrRetrievalUnavailable, http.StatusServiceUnavailable, mailerrors.CodeSuggestionUnavailable},
		{"unrecognized error", errors.New("boom"), http.StatusInternalServerError, mailerrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, func(c echo.Context) error {
				return Error(c, tt.err)
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestShorthandErrors(t *testing.T) {
	tests := []struct {
		name       string
		fn         func(echo.Context, string) error
		message    string
		wantStatus int
		wantCode   string
	}{
		{"bad request", BadRequest, "limit must be positive", http.StatusBadRequest, mailerrors.CodeInvalidInput},
		{"not found", NotFound, "message not found", http.StatusNotFound, mailerrors.CodeNotFound},
		{"conflict", Conflict, "account already exists", http.StatusConflict, mailerrors.CodeDuplicateEntry},
		{"internal", InternalError, "archive write failed", http.StatusInternalServerError, mailerrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, func(c echo.Context) error {
				return tt.fn(c, tt.message)
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{mailerrors.CodeNotFound, http.StatusNotFound},
		{mailerrors.CodeDuplicateEntry, http.StatusConflict},
		{mailerrors.CodeInvalidInput, http.StatusBadRequest},
		{mailerrors.CodeMalformedMessage, http.StatusBadRequest},
		{mailerrors.CodeUnauthorized, http.StatusUnauthorized},
		{mailerrors.CodeConnectionLost, http.StatusServiceUnavailable},
		{mailerrors.CodeIndexUnavailable, http.StatusServiceUnavailable},
		{mailerrors.CodeInternalError, http.StatusInternalServerError},
		{"NO_SUCH_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, getHTTPStatus(tt.code))
		})
	}
}
