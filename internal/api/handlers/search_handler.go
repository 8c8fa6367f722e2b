package handlers

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/response"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/search"
)

// Searcher runs full-text queries against the message index.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Hit, int64, error)
}

// SearchHandler handles full-text search HTTP requests
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search handles GET /api/search
func (h *SearchHandler) Search(c echo.Context) error {
	text := strings.TrimSpace(c.QueryParam("q"))
	if text == "" {
		return response.BadRequest(c, "query parameter q is required")
	}

	limit, offset := parsePagination(c)
	q := search.Query{
		Text:   text,
		Folder: c.QueryParam("folder"),
		Label:  c.QueryParam("label"),
		Limit:  limit,
		Offset: offset,
	}
	if v := c.QueryParam("account_id"); v != "" {
		id, err := parseUintQuery(v)
		if err != nil {
			return response.BadRequest(c, "invalid account_id")
		}
		q.AccountID = id
	}

	hits, total, err := h.searcher.Search(c.Request().Context(), q)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, hits, total, limit, offset)
}
