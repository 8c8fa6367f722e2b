package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"gorm.io/gorm"
)

// FolderStateRepository persists per-(account, folder) sync watermarks.
// Each folder state is mutated only by its owning mailbox worker, so there
// is no cross-worker contention on a row.
type FolderStateRepository interface {
	Get(ctx context.Context, accountID uint, folder string) (*models.FolderState, error)
	// GetOrCreate returns the folder state, creating a zero-watermark row
	// on first sight of the folder.
	GetOrCreate(ctx context.Context, accountID uint, folder string) (*models.FolderState, error)
	// Advance raises the watermark to uid. A uid at or below the current
	// watermark is a no-op: the watermark never decreases.
	Advance(ctx context.Context, accountID uint, folder string, uid uint32) error
	// ResetValidity records a new UIDVALIDITY and resets the watermark to
	// zero, forcing a full resync of the folder.
	ResetValidity(ctx context.Context, accountID uint, folder string, uidValidity uint32) error
	// SetValidity records the UIDVALIDITY observed on first select without
	// touching the watermark.
	SetValidity(ctx context.Context, accountID uint, folder string, uidValidity uint32) error
}

// folderStateRepository implements FolderStateRepository using GORM
type folderStateRepository struct {
	db *gorm.DB
}

// NewFolderStateRepository creates a new FolderStateRepository instance
func NewFolderStateRepository(db *gorm.DB) FolderStateRepository {
	return &folderStateRepository{db: db}
}

// Get retrieves the folder state
func (r *folderStateRepository) Get(ctx context.Context, accountID uint, folder string) (*models.FolderState, error) {
	var state models.FolderState
	result := r.db.WithContext(ctx).
		Where("account_id = ? AND folder = ?", accountID, folder).
		First(&state)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get folder state: %w", result.Error)
	}
	return &state, nil
}

// GetOrCreate returns the folder state, creating it if absent
func (r *folderStateRepository) GetOrCreate(ctx context.Context, accountID uint, folder string) (*models.FolderState, error) {
	state, err := r.Get(ctx, accountID, folder)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	state = &models.FolderState{AccountID: accountID, Folder: folder}
	if createErr := r.db.WithContext(ctx).Create(state).Error; createErr != nil {
		if isDuplicateKeyError(createErr) {
			return r.Get(ctx, accountID, folder)
		}
		return nil, fmt.Errorf("failed to create folder state: %w", createErr)
	}
	return state, nil
}

// Advance raises the watermark, guarded so it can only grow
func (r *folderStateRepository) Advance(ctx context.Context, accountID uint, folder string, uid uint32) error {
	result := r.db.WithContext(ctx).Model(&models.FolderState{}).
		Where("account_id = ? AND folder = ? AND last_uid < ?", accountID, folder, uid).
		Update("last_uid", uid)
	if result.Error != nil {
		return fmt.Errorf("failed to advance watermark: %w", result.Error)
	}
	// RowsAffected == 0 means the stored watermark is already >= uid, which
	// is the monotonicity guarantee doing its job on a replay.
	return nil
}

// ResetValidity stores the new epoch and zeroes the watermark
func (r *folderStateRepository) ResetValidity(ctx context.Context, accountID uint, folder string, uidValidity uint32) error {
	result := r.db.WithContext(ctx).Model(&models.FolderState{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Updates(map[string]interface{}{
			"uid_validity": uidValidity,
			"last_uid":     0,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset folder state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetValidity records the first observed UIDVALIDITY for the folder
func (r *folderStateRepository) SetValidity(ctx context.Context, accountID uint, folder string, uidValidity uint32) error {
	result := r.db.WithContext(ctx).Model(&models.FolderState{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Update("uid_validity", uidValidity)
	if result.Error != nil {
		return fmt.Errorf("failed to set uid validity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
