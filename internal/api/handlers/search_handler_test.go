package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/search"
)

type fakeSearcher struct {
	lastQuery search.Query
	hits      []search.Hit
	total     int64
	err       error
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) ([]search.Hit, int64, error) {
	f.lastQuery = q
	return f.hits, f.total, f.err
}

func searchCtx(e *echo.Echo, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSearchHandler_PassesFiltersThrough(t *testing.T) {
	searcher := &fakeSearcher{
		hits:  []search.Hit{{MessageKey: "1:INBOX:5", Subject: "Pricing", Label: "interested"}},
		total: 1,
	}
	handler := NewSearchHandler(searcher)
	e := echo.New()

	c, rec := searchCtx(e, "/api/search?q=pricing&account_id=1&folder=INBOX&label=interested&limit=10")
	require.NoError(t, handler.Search(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pricing", searcher.lastQuery.Text)
	assert.Equal(t, uint(1), searcher.lastQuery.AccountID)
	assert.Equal(t, "INBOX", searcher.lastQuery.Folder)
	assert.Equal(t, "interested", searcher.lastQuery.Label)
	assert.Equal(t, 10, searcher.lastQuery.Limit)
	assert.Contains(t, rec.Body.String(), "1:INBOX:5")
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestSearchHandler_RequiresQuery(t *testing.T) {
	handler := NewSearchHandler(&fakeSearcher{})
	e := echo.New()

	c, rec := searchCtx(e, "/api/search?q=%20")
	require.NoError(t, handler.Search(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchHandler_IndexOutageIs503(t *testing.T) {
	handler := NewSearchHandler(&fakeSearcher{err: mailerrors.ErrIndexUnavailable})
	e := echo.New()

	c, rec := searchCtx(e, "/api/search?q=pricing")
	require.NoError(t, handler.Search(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
