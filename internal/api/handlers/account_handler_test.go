package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/imapsync"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/repository"
)

// fakeSyncController records add/remove calls without running workers
type fakeSyncController struct {
	mu      sync.Mutex
	added   []uint
	removed []uint
}

func (f *fakeSyncController) AddAccount(account *models.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, account.ID)
}

func (f *fakeSyncController) RemoveAccount(accountID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, accountID)
}

func (f *fakeSyncController) Status() []imapsync.WorkerStatus {
	return []imapsync.WorkerStatus{{AccountID: 1, Folder: "INBOX", State: "waiting"}}
}

// AccountHandlerTestSuite is the test suite for AccountHandler
type AccountHandlerTestSuite struct {
	suite.Suite
	db       *gorm.DB
	accounts repository.AccountRepository
	sync     *fakeSyncController
	handler  *AccountHandler
	echo     *echo.Echo
}

// SetupSuite runs once before all tests
func (s *AccountHandlerTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.Account{}, &models.FolderState{})
	require.NoError(s.T(), err)

	s.db = db
	s.accounts = repository.NewAccountRepository(db)
	s.echo = echo.New()
}

// SetupTest runs before each test
func (s *AccountHandlerTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM folder_states")
	s.db.Exec("DELETE FROM accounts")
	s.sync = &fakeSyncController{}
	s.handler = NewAccountHandler(s.accounts, s.sync)
}

func (s *AccountHandlerTestSuite) post(path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return s.echo.NewContext(req, rec), rec
}

// TestCreateRegistersSyncWorker tests that creating an account starts sync
func (s *AccountHandlerTestSuite) TestCreateRegistersSyncWorker() {
	c, rec := s.post("/api/accounts", `{
		"email": "sales@example.com",
		"imap_host": "imap.example.com",
		"password": "secret"
	}`)

	require.NoError(s.T(), s.handler.Create(c))
	assert.Equal(s.T(), http.StatusCreated, rec.Code)

	stored, err := s.accounts.GetByEmail(c.Request().Context(), "sales@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 993, stored.IMAPPort)
	assert.Equal(s.T(), "sales@example.com", stored.Username)
	assert.True(s.T(), stored.UseTLS)
	assert.True(s.T(), stored.IsActive)

	assert.Equal(s.T(), []uint{stored.ID}, s.sync.added)

	// Password must never appear in the response
	assert.NotContains(s.T(), rec.Body.String(), "secret")
}

// TestCreateRejectsMissingFields tests input validation
func (s *AccountHandlerTestSuite) TestCreateRejectsMissingFields() {
	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"imap_host": "imap.example.com", "password": "x"}`},
		{"bad email", `{"email": "nope", "imap_host": "imap.example.com", "password": "x"}`},
		{"missing host", `{"email": "a@b.com", "password": "x"}`},
		{"missing password", `{"email": "a@b.com", "imap_host": "imap.example.com"}`},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			c, rec := s.post("/api/accounts", tt.body)
			require.NoError(s.T(), s.handler.Create(c))
			assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
			assert.Empty(s.T(), s.sync.added)
		})
	}
}

// TestCreateDuplicateEmailConflicts tests the duplicate email path
func (s *AccountHandlerTestSuite) TestCreateDuplicateEmailConflicts() {
	body := `{"email": "sales@example.com", "imap_host": "imap.example.com", "password": "x"}`

	c, rec := s.post("/api/accounts", body)
	require.NoError(s.T(), s.handler.Create(c))
	require.Equal(s.T(), http.StatusCreated, rec.Code)

	c, rec = s.post("/api/accounts", body)
	require.NoError(s.T(), s.handler.Create(c))
	assert.Equal(s.T(), http.StatusConflict, rec.Code)
}

// TestDeactivateStopsSyncWorker tests that pausing removes the worker
func (s *AccountHandlerTestSuite) TestDeactivateStopsSyncWorker() {
	account := s.createAccount("sales@example.com")

	c, rec := s.post("/api/accounts/1/active", `{"active": false}`)
	c.Request().Method = http.MethodPatch
	c.SetParamNames("id")
	c.SetParamValues("1")

	require.NoError(s.T(), s.handler.SetActive(c))
	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), []uint{account.ID}, s.sync.removed)

	stored, err := s.accounts.GetByID(c.Request().Context(), account.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), stored.IsActive)
}

// TestDeleteRemovesWorkerAndAccount tests account deletion
func (s *AccountHandlerTestSuite) TestDeleteRemovesWorkerAndAccount() {
	account := s.createAccount("sales@example.com")

	req := httptest.NewRequest(http.MethodDelete, "/api/accounts/1", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	require.NoError(s.T(), s.handler.Delete(c))
	assert.Equal(s.T(), http.StatusNoContent, rec.Code)
	assert.Equal(s.T(), []uint{account.ID}, s.sync.removed)

	_, err := s.accounts.GetByID(c.Request().Context(), account.ID)
	assert.Error(s.T(), err)
}

// TestAccountStatusFiltersByAccount tests the per-account status endpoint
func (s *AccountHandlerTestSuite) TestAccountStatusFiltersByAccount() {
	s.createAccount("sales@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/1/status", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	require.NoError(s.T(), s.handler.Status(c))
	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), `"folder":"INBOX"`)
}

// TestAccountStatusUnknownAccountIs404 tests status for a missing account
func (s *AccountHandlerTestSuite) TestAccountStatusUnknownAccountIs404() {
	req := httptest.NewRequest(http.MethodGet, "/api/accounts/99/status", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("99")

	require.NoError(s.T(), s.handler.Status(c))
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

// TestSyncStatusReportsWorkers tests the sync status endpoint
func (s *AccountHandlerTestSuite) TestSyncStatusReportsWorkers() {
	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	require.NoError(s.T(), s.handler.SyncStatus(c))
	assert.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Contains(s.T(), rec.Body.String(), `"state":"waiting"`)
}

func (s *AccountHandlerTestSuite) createAccount(email string) *models.Account {
	account := &models.Account{
		Email:    email,
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		Username: email,
		Password: "secret",
		IsActive: true,
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := s.echo.NewContext(req, httptest.NewRecorder())
	require.NoError(s.T(), s.accounts.Create(c.Request().Context(), account))
	return account
}

// TestAccountHandlerTestSuite runs the test suite
func TestAccountHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(AccountHandlerTestSuite))
}
