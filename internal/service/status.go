package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
)

// StatusReport is the read-side projection of the latest sync run combined
// with current mirror row counts.
type StatusReport struct {
	IsRunning         bool       `json:"is_running"`
	LastRunID         string     `json:"last_run_id,omitempty"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus    string     `json:"last_sync_status,omitempty"`
	TotalInvoices     int64      `json:"total_invoices"`
	TotalEmployees    int64      `json:"total_employees"`
	TotalRecords      int        `json:"total_records"`
	ProcessedRecords  int        `json:"processed_records"`
	FailedPages       int        `json:"failed_pages"`
	DeleteFailures    int        `json:"delete_failures"`
	LastPageProcessed int        `json:"last_page_processed"`
	DurationSeconds   float64    `json:"duration_seconds"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// GetSyncStatus builds the status projection. It performs reads only and can
// be called concurrently with a running sync.
func (o *Orchestrator) GetSyncStatus(ctx context.Context) (*StatusReport, error) {
	latest, err := o.runs.GetLatest(ctx, domain.SyncTypeFull)
	if err != nil {
		return nil, fmt.Errorf("load latest sync run: %w", err)
	}

	invoices, err := o.store.CountInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}
	employees, err := o.store.CountEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("count employees: %w", err)
	}

	report := &StatusReport{
		IsRunning:      o.IsRunning(),
		TotalInvoices:  invoices,
		TotalEmployees: employees,
	}
	if latest != nil {
		report.LastRunID = latest.ID
		report.LastSyncAt = &latest.StartedAt
		report.LastSyncStatus = string(latest.Status)
		report.TotalRecords = latest.TotalRecords
		report.ProcessedRecords = latest.ProcessedRecords
		report.FailedPages = latest.FailedPages
		report.DeleteFailures = latest.DeleteFailures
		report.LastPageProcessed = latest.LastPageProcessed
		report.DurationSeconds = latest.Duration().Seconds()
		report.ErrorMessage = latest.ErrorMessage
	}
	return report, nil
}
