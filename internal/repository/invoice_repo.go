package repository

import (
	"context"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceRepository handles mirrored invoice data operations.
type InvoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *InvoiceRepository: repository instance bound to db.
func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// invoiceUpsertColumns lists the columns overwritten on conflict. created_at
// is deliberately absent: the first-seen timestamp is write-once.
var invoiceUpsertColumns = []string{
	"invoice_number", "customer_name", "currency",
	"total", "paid", "unpaid", "status",
	"employee_id", "salesperson_name",
	"locked", "sent", "sent_at", "invoice_date",
	"updated_at",
}

// UpsertBatch inserts or updates a batch of invoices keyed by the
// remote-assigned id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - invoices: records to persist.
// Returns:
//   - error: non-nil if the batch write fails.
func (r *InvoiceRepository) UpsertBatch(ctx context.Context, invoices []domain.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(invoiceUpsertColumns),
	}).Create(&invoices).Error
}

// SnapshotIDs returns all locally mirrored invoice ids mapped to their
// first-seen timestamps. The orchestrator takes this snapshot once per run to
// detect remote deletions and to preserve created_at on updates.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[int64]time.Time: id to created_at for every mirrored invoice.
//   - error: non-nil if the query fails.
func (r *InvoiceRepository) SnapshotIDs(ctx context.Context) (map[int64]time.Time, error) {
	type row struct {
		ID        int64
		CreatedAt time.Time
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("id", "created_at").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	snapshot := make(map[int64]time.Time, len(rows))
	for _, rw := range rows {
		snapshot[rw.ID] = rw.CreatedAt
	}
	return snapshot, nil
}

// GetByID retrieves an invoice by its remote-assigned id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: invoice id.
// Returns:
//   - *domain.Invoice: invoice record if found.
//   - error: non-nil if lookup fails.
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// DeleteByIDs removes invoices no longer present on the remote side.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: invoice ids to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *InvoiceRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Invoice{}).Error
}

// Count returns the number of mirrored invoices.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of records.
//   - error: non-nil if the query fails.
func (r *InvoiceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Invoice{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
