package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

// MessageRepositoryTestSuite is the test suite for MessageRepository
type MessageRepositoryTestSuite struct {
	suite.Suite
	db          *gorm.DB
	repo        MessageRepository
	testAccount *models.Account
}

// SetupSuite runs once before all tests
func (s *MessageRepositoryTestSuite) SetupSuite() {
	// Use in-memory SQLite for testing
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	// Enable foreign keys for SQLite (required for cascade delete)
	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&models.Account{}, &models.EmailMessage{}, &models.Attachment{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewMessageRepository(db)
}

// TearDownSuite runs once after all tests
func (s *MessageRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test - clean up data and create test fixtures
func (s *MessageRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM attachments")
	s.db.Exec("DELETE FROM email_messages")
	s.db.Exec("DELETE FROM accounts")

	s.testAccount = &models.Account{
		Email:    "sales@example.com",
		IMAPHost: "imap.example.com",
		IMAPPort: 993,
		IsActive: true,
	}
	require.NoError(s.T(), s.db.Create(s.testAccount).Error)
}

func (s *MessageRepositoryTestSuite) newMessage(uid uint32) *models.EmailMessage {
	return &models.EmailMessage{
		AccountID:   s.testAccount.ID,
		Folder:      "INBOX",
		UID:         uid,
		SenderEmail: "lead@prospect.com",
		Subject:     "Pricing",
		BodyText:    "Tell me about the enterprise plan",
		Snippet:     "Tell me about the enterprise plan",
	}
}

func (s *MessageRepositoryTestSuite) TestUpsertByKey_CreatesNewMessage() {
	msg := s.newMessage(1)
	msg.Attachments = []models.Attachment{{Filename: "quote.pdf", ContentType: "application/pdf", Size: 1024}}

	created, err := s.repo.UpsertByKey(context.Background(), msg)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.NotZero(s.T(), msg.ID)

	stored, err := s.repo.GetByKey(context.Background(), s.testAccount.ID, "INBOX", 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "lead@prospect.com", stored.SenderEmail)
	assert.Equal(s.T(), models.LabelUnclassified, stored.Label)
	require.Len(s.T(), stored.Attachments, 1)
}

func (s *MessageRepositoryTestSuite) TestUpsertByKey_ReplayKeepsOneRow() {
	first := s.newMessage(2)
	created, err := s.repo.UpsertByKey(context.Background(), first)
	require.NoError(s.T(), err)
	require.True(s.T(), created)

	replay := s.newMessage(2)
	replay.Subject = "Pricing (edited)"
	created, err = s.repo.UpsertByKey(context.Background(), replay)
	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.Equal(s.T(), first.ID, replay.ID)

	var count int64
	s.db.Model(&models.EmailMessage{}).Count(&count)
	assert.Equal(s.T(), int64(1), count)

	stored, err := s.repo.GetByKey(context.Background(), s.testAccount.ID, "INBOX", 2)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Pricing (edited)", stored.Subject)
}

func (s *MessageRepositoryTestSuite) TestUpsertByKey_ReplayPreservesClassification() {
	msg := s.newMessage(3)
	_, err := s.repo.UpsertByKey(context.Background(), msg)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.repo.SetClassification(context.Background(), msg.ID, models.LabelInterested, 0.91, "gpt-4o-mini"))

	replay := s.newMessage(3)
	_, err = s.repo.UpsertByKey(context.Background(), replay)
	require.NoError(s.T(), err)

	stored, err := s.repo.GetByKey(context.Background(), s.testAccount.ID, "INBOX", 3)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.LabelInterested, stored.Label)
	assert.InDelta(s.T(), 0.91, stored.Confidence, 0.001)
	assert.NotNil(s.T(), stored.ClassifiedAt)
}

func (s *MessageRepositoryTestSuite) TestUpsertByKey_SameUIDDifferentFolderIsDistinct() {
	inbox := s.newMessage(4)
	_, err := s.repo.UpsertByKey(context.Background(), inbox)
	require.NoError(s.T(), err)

	archive := s.newMessage(4)
	archive.Folder = "Archive"
	created, err := s.repo.UpsertByKey(context.Background(), archive)
	require.NoError(s.T(), err)
	assert.True(s.T(), created)

	var count int64
	s.db.Model(&models.EmailMessage{}).Count(&count)
	assert.Equal(s.T(), int64(2), count)
}

func (s *MessageRepositoryTestSuite) TestSetClassification_ClearsReclassifyFlag() {
	msg := s.newMessage(5)
	_, err := s.repo.UpsertByKey(context.Background(), msg)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.repo.MarkNeedsReclassify(context.Background(), msg.ID, true))

	require.NoError(s.T(), s.repo.SetClassification(context.Background(), msg.ID, models.LabelOther, 0.5, "gpt-4o-mini"))

	stored, err := s.repo.GetByID(context.Background(), msg.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), stored.NeedsReclassify)
	assert.Equal(s.T(), models.LabelOther, stored.Label)
}

func (s *MessageRepositoryTestSuite) TestList_FiltersByLabelAndFolder() {
	a := s.newMessage(6)
	_, err := s.repo.UpsertByKey(context.Background(), a)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.repo.SetClassification(context.Background(), a.ID, models.LabelInterested, 0.9, "m"))

	b := s.newMessage(7)
	b.Folder = "Archive"
	_, err = s.repo.UpsertByKey(context.Background(), b)
	require.NoError(s.T(), err)

	items, total, err := s.repo.List(context.Background(), MessageFilter{
		AccountID: s.testAccount.ID,
		Label:     models.LabelInterested,
	}, 10, 0)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), total)
	require.Len(s.T(), items, 1)
	assert.Equal(s.T(), uint32(6), items[0].UID)

	items, total, err = s.repo.List(context.Background(), MessageFilter{
		AccountID: s.testAccount.ID,
		Folder:    "Archive",
	}, 10, 0)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), total)
	require.Len(s.T(), items, 1)
	assert.Equal(s.T(), uint32(7), items[0].UID)
}

func (s *MessageRepositoryTestSuite) TestListPendingQueues() {
	msg := s.newMessage(8)
	_, err := s.repo.UpsertByKey(context.Background(), msg)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.repo.MarkIndexPending(context.Background(), msg.ID, true))
	require.NoError(s.T(), s.repo.MarkNeedsReclassify(context.Background(), msg.ID, true))

	pending, err := s.repo.ListIndexPending(context.Background(), 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 1)
	assert.Equal(s.T(), msg.ID, pending[0].ID)

	flagged, err := s.repo.ListNeedsReclassify(context.Background(), 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), flagged, 1)

	require.NoError(s.T(), s.repo.MarkIndexPending(context.Background(), msg.ID, false))
	pending, err = s.repo.ListIndexPending(context.Background(), 10)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), pending)
}

func (s *MessageRepositoryTestSuite) TestGetByKey_NotFound() {
	_, err := s.repo.GetByKey(context.Background(), s.testAccount.ID, "INBOX", 999)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

// TestMessageRepositoryTestSuite runs the test suite
func TestMessageRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(MessageRepositoryTestSuite))
}
