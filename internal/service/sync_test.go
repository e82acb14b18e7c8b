package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"github.com/devlin/erpmirror/internal/erp"
	"github.com/devlin/erpmirror/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

// fakeRemote scripts the remote ERP: a fixed slice of pages, optional
// per-page errors, and a name table for employee resolution.
type fakeRemote struct {
	pages      [][]erp.RawRecord
	pageErrs   map[int]error
	alwaysErr  error
	names      map[int64]string
	preload    []domain.Employee
	fetchCalls int

	// When set, the first FetchPage call closes started and then blocks
	// until release is closed.
	started chan struct{}
	release chan struct{}
}

func (f *fakeRemote) FetchPage(ctx context.Context, page, pageSize int) ([]erp.RawRecord, error) {
	f.fetchCalls++
	if f.started != nil && f.fetchCalls == 1 {
		close(f.started)
		<-f.release
	}
	if f.alwaysErr != nil {
		return nil, f.alwaysErr
	}
	if err := f.pageErrs[page]; err != nil {
		return nil, err
	}
	if page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

func (f *fakeRemote) ResolveEmployeeName(ctx context.Context, employeeID int64) string {
	if name, ok := f.names[employeeID]; ok {
		return name
	}
	return "Unknown"
}

func (f *fakeRemote) PreloadEmployees(ctx context.Context) []domain.Employee {
	return f.preload
}

// fakeStore is an in-memory LocalStore that applies upserts and deletes so
// consecutive runs observe each other's writes.
type fakeStore struct {
	invoices    map[int64]domain.Invoice
	employees   map[int64]domain.Employee
	upsertSizes []int
	deleteCalls [][]int64
	upsertErr   error
	deleteErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invoices:  make(map[int64]domain.Invoice),
		employees: make(map[int64]domain.Employee),
	}
}

func (s *fakeStore) SnapshotInvoiceIDs(ctx context.Context) (map[int64]time.Time, error) {
	snapshot := make(map[int64]time.Time, len(s.invoices))
	for id, inv := range s.invoices {
		snapshot[id] = inv.CreatedAt
	}
	return snapshot, nil
}

func (s *fakeStore) UpsertInvoices(ctx context.Context, invoices []domain.Invoice) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upsertSizes = append(s.upsertSizes, len(invoices))
	for _, inv := range invoices {
		s.invoices[inv.ID] = inv
	}
	return nil
}

func (s *fakeStore) DeleteInvoicesByIDs(ctx context.Context, ids []int64) error {
	s.deleteCalls = append(s.deleteCalls, ids)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, id := range ids {
		delete(s.invoices, id)
	}
	return nil
}

func (s *fakeStore) GetEmployeeByID(ctx context.Context, id int64) (*domain.Employee, error) {
	if emp, ok := s.employees[id]; ok {
		return &emp, nil
	}
	return nil, nil
}

func (s *fakeStore) UpsertEmployees(ctx context.Context, employees []domain.Employee) error {
	for _, emp := range employees {
		s.employees[emp.ID] = emp
	}
	return nil
}

func (s *fakeStore) CountInvoices(ctx context.Context) (int64, error) {
	return int64(len(s.invoices)), nil
}

func (s *fakeStore) CountEmployees(ctx context.Context) (int64, error) {
	return int64(len(s.employees)), nil
}

// fakeRunStore records run log writes in memory.
type fakeRunStore struct {
	runs    map[string]*domain.SyncRun
	latest  *domain.SyncRun
	updates int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]*domain.SyncRun)}
}

func (s *fakeRunStore) Insert(ctx context.Context, run *domain.SyncRun) error {
	copied := *run
	s.runs[run.ID] = &copied
	s.latest = &copied
	return nil
}

func (s *fakeRunStore) Update(ctx context.Context, run *domain.SyncRun) error {
	s.updates++
	copied := *run
	s.runs[run.ID] = &copied
	s.latest = &copied
	return nil
}

func (s *fakeRunStore) GetLatest(ctx context.Context, syncType string) (*domain.SyncRun, error) {
	return s.latest, nil
}

// rawInvoice builds a minimal remote record for the given id.
func rawInvoice(id int64) erp.RawRecord {
	return erp.RawRecord{
		"id":             json.Number(fmt.Sprintf("%d", id)),
		"invoice_number": fmt.Sprintf("SI-%05d", id),
		"customer_name":  "Acme Trading",
		"total":          json.Number("100.00"),
	}
}

// pageOf builds a full page of n sequential records starting at startID.
func pageOf(startID int64, n int) []erp.RawRecord {
	page := make([]erp.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		page = append(page, rawInvoice(startID+int64(i)))
	}
	return page
}

func newTestOrchestrator(remote *fakeRemote, store *fakeStore, runs *fakeRunStore, cfg Config) *Orchestrator {
	return NewOrchestrator(remote, store, runs, testLogger(), cfg)
}

func TestRunFullSyncStopsOnShortPage(t *testing.T) {
	remote := &fakeRemote{pages: [][]erp.RawRecord{
		pageOf(1, 100),
		pageOf(101, 40),
	}}
	store := newFakeStore()
	runs := newFakeRunStore()
	o := newTestOrchestrator(remote, store, runs, Config{PageSize: 100})

	run, err := o.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}

	if remote.fetchCalls != 2 {
		t.Errorf("fetch calls = %d, want 2 (short page is the last page)", remote.fetchCalls)
	}
	if run.Status != domain.SyncStatusCompleted {
		t.Errorf("run status = %s, want completed", run.Status)
	}
	if run.ProcessedRecords != 140 {
		t.Errorf("processed records = %d, want 140", run.ProcessedRecords)
	}
	if run.LastPageProcessed != 2 {
		t.Errorf("last page processed = %d, want 2", run.LastPageProcessed)
	}
	if run.APICalls != 2 {
		t.Errorf("api calls = %d, want 2", run.APICalls)
	}
	if len(store.invoices) != 140 {
		t.Errorf("mirrored invoices = %d, want 140", len(store.invoices))
	}
}

func TestRunFullSyncStopsOnEmptyPage(t *testing.T) {
	remote := &fakeRemote{pages: [][]erp.RawRecord{
		pageOf(1, 100),
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	run, err := o.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}

	// Page 1 is exactly full, so it must never be assumed last: the loop has
	// to go fetch page 2 and find it empty.
	if remote.fetchCalls != 2 {
		t.Errorf("fetch calls = %d, want 2", remote.fetchCalls)
	}
	if run.ProcessedRecords != 100 {
		t.Errorf("processed records = %d, want 100", run.ProcessedRecords)
	}
}

func TestBatchFlushSizes(t *testing.T) {
	// 12 full pages of 100 = 1200 records against a flush threshold of 500.
	pages := make([][]erp.RawRecord, 0, 12)
	for p := 0; p < 12; p++ {
		pages = append(pages, pageOf(int64(p*100+1), 100))
	}
	remote := &fakeRemote{pages: pages}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100, BatchSize: 500})

	if _, err := o.RunFullSync(context.Background()); err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}

	want := []int{500, 500, 200}
	if len(store.upsertSizes) != len(want) {
		t.Fatalf("upsert calls = %v, want %v", store.upsertSizes, want)
	}
	for i, size := range want {
		if store.upsertSizes[i] != size {
			t.Errorf("upsert call %d size = %d, want %d", i, store.upsertSizes[i], size)
		}
	}
}

func TestReconciliationDeletesMissingIDs(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []int64{1, 2, 3} {
		store.invoices[id] = domain.Invoice{ID: id, CreatedAt: t0}
	}

	remote := &fakeRemote{pages: [][]erp.RawRecord{
		{rawInvoice(1), rawInvoice(3)},
	}}
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	run, err := o.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}

	if _, ok := store.invoices[2]; ok {
		t.Error("invoice 2 should have been deleted")
	}
	for _, id := range []int64{1, 3} {
		if _, ok := store.invoices[id]; !ok {
			t.Errorf("invoice %d should still be present", id)
		}
	}
	if run.DeletedRecords != 1 {
		t.Errorf("deleted records = %d, want 1", run.DeletedRecords)
	}
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	store := newFakeStore()
	t0 := time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)
	store.invoices[7] = domain.Invoice{ID: 7, CreatedAt: t0}

	record := rawInvoice(7)
	record["total"] = json.Number("999.99")
	remote := &fakeRemote{pages: [][]erp.RawRecord{{record}}}
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	if _, err := o.RunFullSync(context.Background()); err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}

	updated := store.invoices[7]
	if !updated.CreatedAt.Equal(t0) {
		t.Errorf("created_at = %v, want original %v", updated.CreatedAt, t0)
	}
	if updated.Total.String() != "999.99" {
		t.Errorf("total = %s, want 999.99", updated.Total)
	}
	if !updated.UpdatedAt.After(t0) {
		t.Errorf("updated_at = %v, should be refreshed past %v", updated.UpdatedAt, t0)
	}
}

func TestIdempotentResync(t *testing.T) {
	remote := &fakeRemote{pages: [][]erp.RawRecord{
		{rawInvoice(1), rawInvoice(2)},
	}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	if _, err := o.RunFullSync(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstCreated := map[int64]time.Time{
		1: store.invoices[1].CreatedAt,
		2: store.invoices[2].CreatedAt,
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := o.RunFullSync(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(store.invoices) != 2 {
		t.Fatalf("mirrored invoices = %d, want 2", len(store.invoices))
	}
	for id, created := range firstCreated {
		inv := store.invoices[id]
		if !inv.CreatedAt.Equal(created) {
			t.Errorf("invoice %d created_at changed across runs: %v -> %v", id, created, inv.CreatedAt)
		}
		if !inv.UpdatedAt.After(created) {
			t.Errorf("invoice %d updated_at not refreshed", id)
		}
	}
}

func TestFailedPageThresholdAbortsLoop(t *testing.T) {
	remote := &fakeRemote{alwaysErr: errors.New("boom")}
	store := newFakeStore()
	store.invoices[1] = domain.Invoice{ID: 1}

	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100, MaxFailedPages: 5})

	run, err := o.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync should yield a partial run, got error: %v", err)
	}

	// Six failures: five tolerated, the sixth trips the threshold.
	if remote.fetchCalls != 6 {
		t.Errorf("fetch calls = %d, want 6", remote.fetchCalls)
	}
	if run.FailedPages != 6 {
		t.Errorf("failed pages = %d, want 6", run.FailedPages)
	}
	if run.Status != domain.SyncStatusCompleted {
		t.Errorf("run status = %s, want completed (partial run)", run.Status)
	}

	// The found-id set is incomplete, so nothing may be pruned.
	if len(store.deleteCalls) != 0 {
		t.Errorf("delete calls = %d, want 0 after failed pages", len(store.deleteCalls))
	}
	if _, ok := store.invoices[1]; !ok {
		t.Error("existing invoice must survive a partial run")
	}
}

func TestDeleteFailureDoesNotFailRun(t *testing.T) {
	store := newFakeStore()
	store.invoices[1] = domain.Invoice{ID: 1}
	store.invoices[2] = domain.Invoice{ID: 2}
	store.deleteErr = errors.New("db locked")

	remote := &fakeRemote{pages: [][]erp.RawRecord{{rawInvoice(1)}}}
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	run, err := o.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("delete failures must not fail the run, got: %v", err)
	}
	if run.Status != domain.SyncStatusCompleted {
		t.Errorf("run status = %s, want completed", run.Status)
	}
	if run.DeleteFailures != 1 {
		t.Errorf("delete failures = %d, want 1", run.DeleteFailures)
	}
}

func TestUpsertFailureFailsRun(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	remote := &fakeRemote{pages: [][]erp.RawRecord{{rawInvoice(1)}}}
	runs := newFakeRunStore()
	o := newTestOrchestrator(remote, store, runs, Config{PageSize: 100})

	run, err := o.RunFullSync(context.Background())
	if err == nil {
		t.Fatal("expected error from upsert failure")
	}
	if run.Status != domain.SyncStatusFailed {
		t.Errorf("run status = %s, want failed", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Error("error message should be recorded on the run log")
	}
	if run.CompletedAt == nil {
		t.Error("failed run should still get a completion timestamp")
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	remote := &fakeRemote{
		pages:   [][]erp.RawRecord{{rawInvoice(1)}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newTestOrchestrator(remote, newFakeStore(), newFakeRunStore(), Config{PageSize: 100})

	done := make(chan error, 1)
	go func() {
		_, err := o.RunFullSync(context.Background())
		done <- err
	}()

	<-remote.started
	if !o.IsRunning() {
		t.Error("IsRunning should report true while a run holds the lease")
	}
	if _, err := o.RunFullSync(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second run error = %v, want ErrSyncInProgress", err)
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if o.IsRunning() {
		t.Error("lease should be released after the run finishes")
	}
}

func TestMalformedRecordsAreSkipped(t *testing.T) {
	remote := &fakeRemote{pages: [][]erp.RawRecord{{
		rawInvoice(1),
		{"invoice_number": "no-id"},
		rawInvoice(2),
	}}}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	run, err := o.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}
	if len(store.invoices) != 2 {
		t.Errorf("mirrored invoices = %d, want 2 (malformed record skipped)", len(store.invoices))
	}
	if run.TotalRecords != 2 {
		t.Errorf("total records = %d, want 2", run.TotalRecords)
	}
	if run.ProcessedRecords != 3 {
		t.Errorf("processed records = %d, want 3 (page length)", run.ProcessedRecords)
	}
}

func TestPreloadedEmployeesAreMirrored(t *testing.T) {
	remote := &fakeRemote{
		pages: [][]erp.RawRecord{{rawInvoice(1)}},
		preload: []domain.Employee{
			{ID: 4, FirstName: "Mya", LastName: "Win", FullName: "Mya Win"},
		},
	}
	store := newFakeStore()
	o := newTestOrchestrator(remote, store, newFakeRunStore(), Config{PageSize: 100})

	if _, err := o.RunFullSync(context.Background()); err != nil {
		t.Fatalf("RunFullSync failed: %v", err)
	}
	if emp, ok := store.employees[4]; !ok || emp.FullName != "Mya Win" {
		t.Errorf("preloaded employee not mirrored: %+v", store.employees)
	}
}
