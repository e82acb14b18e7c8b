package repository

import (
	"context"
	"errors"

	"github.com/devlin/erpmirror/internal/domain"
	"gorm.io/gorm"
)

// SyncRunRepository handles sync run audit records.
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new SyncRunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SyncRunRepository: repository instance bound to db.
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Insert persists a newly created sync run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *SyncRunRepository) Insert(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update persists counter and status changes of an in-flight run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *SyncRunRepository) Update(ctx context.Context, run *domain.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetLatest returns the most recently started run of the given sync type, or
// nil when no run has ever been recorded.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - syncType: sync type to filter by.
// Returns:
//   - *domain.SyncRun: latest run or nil.
//   - error: non-nil if the query fails.
func (r *SyncRunRepository) GetLatest(ctx context.Context, syncType string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := r.db.WithContext(ctx).
		Where("sync_type = ?", syncType).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
