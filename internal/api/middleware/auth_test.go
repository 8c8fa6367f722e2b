package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func runAuth(t *testing.T, key, path, header string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	handler := APIKeyAuth(key, nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return rec, handler(c)
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	_, err := runAuth(t, "secret-key", "/api/messages", "")

	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_WrongKey(t *testing.T) {
	_, err := runAuth(t, "secret-key", "/api/messages", "Bearer wrong-key")

	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	rec, err := runAuth(t, "secret-key", "/api/messages", "Bearer secret-key")

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_HealthProbesBypass(t *testing.T) {
	for _, path := range []string{"/health", "/ready"} {
		rec, err := runAuth(t, "secret-key", path, "")
		assert.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAPIKeyAuth_EmptyKeyDisablesAuth(t *testing.T) {
	rec, err := runAuth(t, "", "/api/messages", "")

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_BareTokenWithoutBearerPrefix(t *testing.T) {
	// The Bearer prefix is optional; a raw key in the header still matches.
	rec, err := runAuth(t, "secret-key", "/api/messages", "secret-key")

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
