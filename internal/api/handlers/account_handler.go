package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/api/response"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/imapsync"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

// SyncController is the slice of the sync manager the API needs: workers
// follow account registration without the handler knowing about sessions.
type SyncController interface {
	AddAccount(account *models.Account)
	RemoveAccount(accountID uint)
	Status() []imapsync.WorkerStatus
}

// AccountHandler handles mailbox account HTTP requests
type AccountHandler struct {
	accounts repository.AccountRepository
	sync     SyncController
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accounts repository.AccountRepository, sync SyncController) *AccountHandler {
	return &AccountHandler{accounts: accounts, sync: sync}
}

// CreateAccountRequest represents the request body for creating an account
type CreateAccountRequest struct {
	Email    string `json:"email"`
	IMAPHost string `json:"imap_host"`
	IMAPPort int    `json:"imap_port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseTLS   *bool  `json:"use_tls"`
	Folders  string `json:"folders"`
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return response.BadRequest(c, "a valid email is required")
	}
	if strings.TrimSpace(req.IMAPHost) == "" {
		return response.BadRequest(c, "imap_host is required")
	}
	if req.Password == "" {
		return response.BadRequest(c, "password is required")
	}

	account := &models.Account{
		Email:    req.Email,
		IMAPHost: strings.TrimSpace(req.IMAPHost),
		IMAPPort: req.IMAPPort,
		Username: req.Username,
		Password: req.Password,
		UseTLS:   true,
		Folders:  req.Folders,
		SMTPHost: strings.TrimSpace(req.SMTPHost),
		SMTPPort: req.SMTPPort,
		IsActive: true,
	}
	if account.IMAPPort == 0 {
		account.IMAPPort = 993
	}
	if account.Username == "" {
		account.Username = account.Email
	}
	if req.UseTLS != nil {
		account.UseTLS = *req.UseTLS
	}

	if err := h.accounts.Create(c.Request().Context(), account); err != nil {
		if errors.Is(err, mailerrors.ErrDuplicateEntry) {
			return response.Conflict(c, "an account with this email already exists")
		}
		return response.Error(c, err)
	}

	if h.sync != nil {
		h.sync.AddAccount(account)
	}

	return response.Created(c, account)
}

// List handles GET /api/accounts
func (h *AccountHandler) List(c echo.Context) error {
	limit, offset := parsePagination(c)

	accounts, total, err := h.accounts.List(c.Request().Context(), limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, accounts, total, limit, offset)
}

// Get handles GET /api/accounts/:id
func (h *AccountHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	account, err := h.accounts.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.Error(c, err)
	}

	return response.Success(c, account)
}

// SetActiveRequest represents the request body for pausing or resuming sync
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles PATCH /api/accounts/:id/active
func (h *AccountHandler) SetActive(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.Error(c, err)
	}

	if err := h.accounts.SetActive(ctx, id, req.Active); err != nil {
		return response.Error(c, err)
	}
	account.IsActive = req.Active

	if h.sync != nil {
		if req.Active {
			h.sync.AddAccount(account)
		} else {
			h.sync.RemoveAccount(id)
		}
	}

	return response.Success(c, account)
}

// Delete handles DELETE /api/accounts/:id
func (h *AccountHandler) Delete(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	if h.sync != nil {
		h.sync.RemoveAccount(id)
	}

	if err := h.accounts.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.Error(c, err)
	}

	return response.NoContent(c)
}

// Status handles GET /api/accounts/:id/status
func (h *AccountHandler) Status(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	if _, err := h.accounts.GetByID(c.Request().Context(), id); err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.Error(c, err)
	}

	workers := []imapsync.WorkerStatus{}
	if h.sync != nil {
		for _, w := range h.sync.Status() {
			if w.AccountID == id {
				workers = append(workers, w)
			}
		}
	}
	return response.Success(c, workers)
}

// SyncStatus handles GET /api/sync/status
func (h *AccountHandler) SyncStatus(c echo.Context) error {
	if h.sync == nil {
		return response.Success(c, []imapsync.WorkerStatus{})
	}
	return response.Success(c, h.sync.Status())
}

// parseIDParam parses a numeric path parameter
func parseIDParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, mailerrors.ErrInvalidInput
	}
	return uint(id), nil
}

// parsePagination reads limit/offset query params with sane bounds
func parsePagination(c echo.Context) (limit, offset int) {
	limit = 20
	offset = 0

	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
