package service

import (
	"context"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"github.com/devlin/erpmirror/internal/erp"
)

// RemoteSource is the remote ERP surface the orchestrator drives. The
// concrete client owns retry, throttling, and the employee name cache; the
// orchestrator only sees pages and resolved names.
type RemoteSource interface {
	// FetchPage fetches one page of raw invoice records. An empty slice means
	// the pagination walked past the last page.
	FetchPage(ctx context.Context, page, pageSize int) ([]erp.RawRecord, error)

	// ResolveEmployeeName resolves an employee id to a display name. Never
	// fails: any lookup problem degrades to a placeholder.
	ResolveEmployeeName(ctx context.Context, employeeID int64) string

	// PreloadEmployees warms the employee cache, best-effort, and returns
	// whatever records were fetched so they can be mirrored locally.
	PreloadEmployees(ctx context.Context) []domain.Employee
}

// LocalStore is the durable mirror the orchestrator reconciles against.
// There is exactly one sync algorithm; persistence engines plug in here.
type LocalStore interface {
	// SnapshotInvoiceIDs returns every mirrored invoice id with its
	// first-seen timestamp, taken once at the start of a run.
	SnapshotInvoiceIDs(ctx context.Context) (map[int64]time.Time, error)

	// UpsertInvoices writes a batch, insert-or-update keyed by id.
	UpsertInvoices(ctx context.Context, invoices []domain.Invoice) error

	// DeleteInvoicesByIDs prunes invoices no longer present remotely.
	DeleteInvoicesByIDs(ctx context.Context, ids []int64) error

	// GetEmployeeByID returns the locally mirrored employee, or nil when the
	// id is not mirrored. Absence is not an error.
	GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error)

	// UpsertEmployees mirrors preloaded employee records, best-effort.
	UpsertEmployees(ctx context.Context, employees []domain.Employee) error

	CountInvoices(ctx context.Context) (int64, error)
	CountEmployees(ctx context.Context) (int64, error)
}

// RunLogStore persists sync run audit records.
type RunLogStore interface {
	Insert(ctx context.Context, run *domain.SyncRun) error
	Update(ctx context.Context, run *domain.SyncRun) error
	GetLatest(ctx context.Context, syncType string) (*domain.SyncRun, error)
}
