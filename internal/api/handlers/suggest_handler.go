package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/response"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/suggest"
)

// Suggester drafts a reply for a stored message.
type Suggester interface {
	Suggest(ctx context.Context, msg *models.EmailMessage) (*suggest.Suggestion, error)
}

// ReplySender delivers a reply through the account's outbound server.
type ReplySender interface {
	SendReply(ctx context.Context, account *models.Account, msg *models.EmailMessage, body string) error
}

// SuggestHandler handles reply-suggestion HTTP requests
type SuggestHandler struct {
	messages  repository.MessageRepository
	accounts  repository.AccountRepository
	suggester Suggester
	sender    ReplySender
}

// NewSuggestHandler creates a new SuggestHandler
func NewSuggestHandler(messages repository.MessageRepository, accounts repository.AccountRepository, suggester Suggester, sender ReplySender) *SuggestHandler {
	return &SuggestHandler{
		messages:  messages,
		accounts:  accounts,
		suggester: suggester,
		sender:    sender,
	}
}

// Suggest handles POST /api/messages/:id/suggest-reply. A degraded
// suggestion (retrieval or generation outage) is still a 200: the caller
// inspects the available flag rather than retrying on status codes.
func (h *SuggestHandler) Suggest(c echo.Context) error {
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

	suggestion, err := h.suggester.Suggest(ctx, msg)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, suggestion)
}

// SendReplyRequest represents the request body for sending a reply
type SendReplyRequest struct {
	Body string `json:"body"`
}

// SendReply handles POST /api/messages/:id/reply
func (h *SuggestHandler) SendReply(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	var req SendReplyRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Body) == "" {
		return response.BadRequest(c, "reply body is required")
	}

	ctx := c.Request().Context()
	msg, err := h.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.Error(c, err)
	}

	account, err := h.accounts.GetByID(ctx, msg.AccountID)
	if err != nil {
		return response.Error(c, err)
	}
	if account.SMTPHost == "" {
		return response.BadRequest(c, "account has no outbound server configured")
	}

	if err := h.sender.SendReply(ctx, account, msg, req.Body); err != nil {
		return response.Error(c, err)
	}

	return response.SuccessWithMessage(c, nil, "reply sent")
}
