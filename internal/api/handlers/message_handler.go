package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/response"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/storage"
)

// Reclassifier re-runs enrichment for a single stored message.
type Reclassifier interface {
	Reclassify(ctx context.Context, msg *models.EmailMessage) error
}

// MessageHandler handles synced-message HTTP requests
type MessageHandler struct {
	messages   repository.MessageRepository
	archive    storage.Archive
	reclassify Reclassifier
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(messages repository.MessageRepository, archive storage.Archive, reclassify Reclassifier) *MessageHandler {
	return &MessageHandler{messages: messages, archive: archive, reclassify: reclassify}
}

// List handles GET /api/messages
func (h *MessageHandler) List(c echo.Context) error {
	limit, offset := parsePagination(c)

	filter := repository.MessageFilter{
		Folder: c.QueryParam("folder"),
		Label:  c.QueryParam("label"),
	}
	if v := c.QueryParam("account_id"); v != "" {
		id, err := parseUintQuery(v)
		if err != nil {
			return response.BadRequest(c, "invalid account_id")
		}
		filter.AccountID = id
	}

	items, total, err := h.messages.List(c.Request().Context(), filter, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, items, total, limit, offset)
}

// Get handles GET /api/messages/:id
func (h *MessageHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	msg, err := h.messages.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.Error(c, err)
	}

	return response.Success(c, msg)
}

// GetRaw handles GET /api/messages/:id/raw and serves the archived
// original, not a re-rendering of the normalized record.
func (h *MessageHandler) GetRaw(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	msg, err := h.messages.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.Error(c, err)
	}

	raw, err := h.archive.Get(msg.Key())
	if err != nil {
		if errors.Is(err, storage.ErrRawNotFound) {
			return response.NotFound(c, "raw message not archived")
		}
		return response.Error(c, err)
	}

	return c.Blob(http.StatusOK, "message/rfc822", raw)
}

// Reclassify handles POST /api/messages/:id/reclassify
func (h *MessageHandler) Reclassify(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	ctx := c.Request().Context()
	msg, err := h.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.Error(c, err)
	}

	if err := h.reclassify.Reclassify(ctx, msg); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, msg)
}

// Delete handles DELETE /api/messages/:id
func (h *MessageHandler) Delete(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	ctx := c.Request().Context()
	msg, err := h.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.Error(c, err)
	}

	if err := h.messages.Delete(ctx, id); err != nil {
		return response.Error(c, err)
	}
	if h.archive != nil {
		_ = h.archive.Delete(msg.Key())
	}

	return response.NoContent(c)
}

func parseUintQuery(v string) (uint, error) {
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil || id == 0 {
		return 0, mailerrors.ErrInvalidInput
	}
	return uint(id), nil
}
