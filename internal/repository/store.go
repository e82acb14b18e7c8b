package repository

import (
	"context"
	"errors"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"gorm.io/gorm"
)

// MirrorStore composes the invoice and employee repositories into the single
// durable-mirror surface the sync orchestrator works against. Persistence
// technology stays an adapter detail behind this type.
type MirrorStore struct {
	invoices  *InvoiceRepository
	employees *EmployeeRepository
}

// NewMirrorStore creates a MirrorStore backed by the given database handle.
// Parameters:
//   - db: GORM database handle.
// Returns:
//   - *MirrorStore: store instance.
func NewMirrorStore(db *gorm.DB) *MirrorStore {
	return &MirrorStore{
		invoices:  NewInvoiceRepository(db),
		employees: NewEmployeeRepository(db),
	}
}

// SnapshotInvoiceIDs returns every mirrored invoice id with its first-seen
// timestamp.
func (s *MirrorStore) SnapshotInvoiceIDs(ctx context.Context) (map[int64]time.Time, error) {
	return s.invoices.SnapshotIDs(ctx)
}

// UpsertInvoices writes a batch of invoices, insert-or-update by id.
func (s *MirrorStore) UpsertInvoices(ctx context.Context, invoices []domain.Invoice) error {
	return s.invoices.UpsertBatch(ctx, invoices)
}

// DeleteInvoicesByIDs removes invoices that disappeared from the remote side.
func (s *MirrorStore) DeleteInvoicesByIDs(ctx context.Context, ids []int64) error {
	return s.invoices.DeleteByIDs(ctx, ids)
}

// GetEmployeeByID returns the mirrored employee or nil when not present
// locally. Absence is not an error: the caller falls back to the remote API.
func (s *MirrorStore) GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error) {
	emp, err := s.employees.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return emp, nil
}

// UpsertEmployees writes a batch of employees, insert-or-update by id.
func (s *MirrorStore) UpsertEmployees(ctx context.Context, employees []domain.Employee) error {
	return s.employees.UpsertBatch(ctx, employees)
}

// CountInvoices returns the number of mirrored invoices.
func (s *MirrorStore) CountInvoices(ctx context.Context) (int64, error) {
	return s.invoices.Count(ctx)
}

// CountEmployees returns the number of mirrored employees.
func (s *MirrorStore) CountEmployees(ctx context.Context) (int64, error) {
	return s.employees.Count(ctx)
}
