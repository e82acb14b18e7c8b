package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"github.com/devlin/erpmirror/internal/erp"
	"github.com/devlin/erpmirror/internal/logger"
	"github.com/google/uuid"
)

// ErrSyncInProgress is returned when RunFullSync is invoked while another run
// holds the single-run lease. Concurrent runs would race on upserts and
// deletes, so the second caller is rejected instead.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// Config holds the orchestrator tuning knobs.
type Config struct {
	PageSize        int           // remote page size, capped at erp.MaxPageSize
	BatchSize       int           // upsert flush threshold
	DeleteBatchSize int           // ids per delete call in the reconcile phase
	MaxFailedPages  int           // abort the page loop past this many failures
	PageDelay       time.Duration // politeness pause between page fetches
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 || c.PageSize > erp.MaxPageSize {
		c.PageSize = erp.MaxPageSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.DeleteBatchSize <= 0 {
		c.DeleteBatchSize = 100
	}
	if c.MaxFailedPages <= 0 {
		c.MaxFailedPages = 5
	}
}

// Orchestrator drives full sync runs: pagination, normalization, batched
// writes, delete reconciliation, and run log bookkeeping. Pages are fetched
// strictly in order; the only concurrency is inside the remote client's
// permit.
type Orchestrator struct {
	remote RemoteSource
	store  LocalStore
	runs   RunLogStore
	logger *logger.Logger
	cfg    Config

	mu      sync.Mutex
	running bool
}

// NewOrchestrator creates a sync orchestrator.
// Parameters:
//   - remote: remote ERP source.
//   - store: durable local mirror.
//   - runs: sync run log store.
//   - log: logger instance.
//   - cfg: tuning configuration; zero fields get defaults.
//
// Returns:
//   - *Orchestrator: initialized orchestrator.
func NewOrchestrator(remote RemoteSource, store LocalStore, runs RunLogStore, log *logger.Logger, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		remote: remote,
		store:  store,
		runs:   runs,
		logger: log,
		cfg:    cfg,
	}
}

// IsRunning reports whether a run currently holds the lease in this process.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) tryAcquireLease() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) releaseLease() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// RunFullSync executes one full mirror run synchronously. It creates the run
// log in the running state, paginates and reconciles, and finalizes the log
// as completed or failed. The returned run reflects the terminal state; the
// error is non-nil only when the run failed.
func (o *Orchestrator) RunFullSync(ctx context.Context) (*domain.SyncRun, error) {
	if !o.tryAcquireLease() {
		return nil, ErrSyncInProgress
	}
	defer o.releaseLease()

	run, err := o.createRun(ctx)
	if err != nil {
		return nil, err
	}
	return run, o.executeRun(ctx, run)
}

// TriggerFullSync starts a run in the background and returns its log record
// immediately. The run detaches from the caller's context so it outlives the
// HTTP request that triggered it; callers observe progress via GetSyncStatus.
func (o *Orchestrator) TriggerFullSync(ctx context.Context) (*domain.SyncRun, error) {
	if !o.tryAcquireLease() {
		return nil, ErrSyncInProgress
	}
	run, err := o.createRun(ctx)
	if err != nil {
		o.releaseLease()
		return nil, err
	}

	go func() {
		defer o.releaseLease()
		if err := o.executeRun(context.Background(), run); err != nil {
			o.logger.WithField(logger.FieldRunID, run.ID).
				WithError(err).Error("Background sync run failed")
		}
	}()
	return run, nil
}

func (o *Orchestrator) createRun(ctx context.Context) (*domain.SyncRun, error) {
	run := &domain.SyncRun{
		ID:        uuid.New().String(),
		SyncType:  domain.SyncTypeFull,
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync run log: %w", err)
	}
	return run, nil
}

func (o *Orchestrator) executeRun(ctx context.Context, run *domain.SyncRun) error {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldRunID:    run.ID,
		logger.FieldSyncType: run.SyncType,
	})
	logger.CtxInfo(ctx, "Full sync started")

	err := o.paginateAndReconcile(ctx, run)

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt

	if err != nil {
		run.Status = domain.SyncStatusFailed
		run.ErrorMessage = err.Error()
		if uerr := o.runs.Update(ctx, run); uerr != nil {
			logger.CtxError(ctx, "Failed to persist failed run log: %v", uerr)
		}
		logger.With(logger.Fields{
			logger.FieldDurationMs: run.Duration().Milliseconds(),
		}).Error(ctx, "Full sync failed: %v", err)
		return err
	}

	run.Status = domain.SyncStatusCompleted
	run.Notes = runNotes(run)
	if uerr := o.runs.Update(ctx, run); uerr != nil {
		logger.CtxError(ctx, "Failed to persist completed run log: %v", uerr)
	}
	logger.With(logger.Fields{
		logger.FieldCount:      run.ProcessedRecords,
		logger.FieldDurationMs: run.Duration().Milliseconds(),
	}).Info(ctx, "Full sync completed")
	return nil
}

func runNotes(run *domain.SyncRun) string {
	notes := fmt.Sprintf("pages=%d records=%d deleted=%d failed_pages=%d delete_failures=%d",
		run.LastPageProcessed, run.TotalRecords, run.DeletedRecords, run.FailedPages, run.DeleteFailures)
	if run.FailedPages > 0 {
		notes += "; delete reconciliation skipped: found-id set incomplete"
	}
	return notes
}

// paginateAndReconcile is the core loop: snapshot, paginate, normalize,
// batch-flush, then reconcile deletions.
func (o *Orchestrator) paginateAndReconcile(ctx context.Context, run *domain.SyncRun) error {
	snapshot, err := o.store.SnapshotInvoiceIDs(ctx)
	if err != nil {
		return fmt.Errorf("snapshot existing invoice ids: %w", err)
	}
	logger.With(logger.Fields{logger.FieldCount: len(snapshot)}).
		Debug(ctx, "Snapshotted existing invoice ids")

	if employees := o.remote.PreloadEmployees(ctx); len(employees) > 0 {
		if err := o.store.UpsertEmployees(ctx, employees); err != nil {
			logger.CtxWarn(ctx, "Failed to mirror preloaded employees: %v", err)
		}
	}

	norm := &normalizer{store: o.store, remote: o.remote}
	found := make(map[int64]struct{}, len(snapshot))
	batch := make([]domain.Invoice, 0, o.cfg.BatchSize)

	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := o.remote.FetchPage(ctx, page, o.cfg.PageSize)
		run.APICalls++
		if err != nil {
			run.FailedPages++
			logger.With(logger.Fields{logger.FieldPage: page}).
				Warn(ctx, "Page fetch failed (%d/%d tolerated): %v", run.FailedPages, o.cfg.MaxFailedPages, err)
			if run.FailedPages > o.cfg.MaxFailedPages {
				logger.CtxWarn(ctx, "Aborting pagination after %d failed pages", run.FailedPages)
				break
			}
			o.persistProgress(ctx, run)
			page++
			o.pause(ctx)
			continue
		}

		if len(records) == 0 {
			break
		}

		for _, raw := range records {
			inv, err := norm.normalize(ctx, raw)
			if err != nil {
				logger.With(logger.Fields{logger.FieldPage: page}).
					Debug(ctx, "Skipping record: %v", err)
				continue
			}
			found[inv.ID] = struct{}{}

			now := time.Now().UTC()
			if createdAt, existed := snapshot[inv.ID]; existed {
				inv.CreatedAt = createdAt
			} else {
				inv.CreatedAt = now
			}
			inv.UpdatedAt = now

			batch = append(batch, *inv)
			run.TotalRecords++

			if len(batch) >= o.cfg.BatchSize {
				if err := o.flush(ctx, &batch); err != nil {
					return err
				}
			}
		}

		run.ProcessedRecords += len(records)
		run.LastPageProcessed = page
		o.persistProgress(ctx, run)

		// A short page is the sole "no more pages" signal from the remote.
		if len(records) < o.cfg.PageSize {
			break
		}
		page++
		o.pause(ctx)
	}

	if err := o.flush(ctx, &batch); err != nil {
		return err
	}

	o.reconcileDeletes(ctx, run, snapshot, found)
	return nil
}

// flush writes the accumulated batch and clears it. A write failure fails the
// whole run: the mirror is durable-or-bust.
func (o *Orchestrator) flush(ctx context.Context, batch *[]domain.Invoice) error {
	if len(*batch) == 0 {
		return nil
	}
	if err := o.store.UpsertInvoices(ctx, *batch); err != nil {
		return fmt.Errorf("upsert batch of %d invoices: %w", len(*batch), err)
	}
	logger.With(logger.Fields{logger.FieldCount: len(*batch)}).
		Debug(ctx, "Flushed invoice batch")
	*batch = (*batch)[:0]
	return nil
}

// reconcileDeletes prunes invoices present locally but absent from the run's
// found-id set. Failures are counted, not fatal: deletion is best-effort
// cleanup and the next clean run repeats it. When pages failed during the
// loop the phase is skipped entirely, since the found-id set is incomplete
// and pruning would delete records that merely failed to fetch.
func (o *Orchestrator) reconcileDeletes(ctx context.Context, run *domain.SyncRun, snapshot map[int64]time.Time, found map[int64]struct{}) {
	if run.FailedPages > 0 {
		logger.CtxWarn(ctx, "Skipping delete reconciliation: %d pages failed this run", run.FailedPages)
		return
	}

	toDelete := make([]int64, 0)
	for id := range snapshot {
		if _, ok := found[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) == 0 {
		return
	}
	sort.Slice(toDelete, func(i, j int) bool { return toDelete[i] < toDelete[j] })

	logger.With(logger.Fields{logger.FieldCount: len(toDelete)}).
		Info(ctx, "Reconciling remotely deleted invoices")

	for start := 0; start < len(toDelete); start += o.cfg.DeleteBatchSize {
		end := start + o.cfg.DeleteBatchSize
		if end > len(toDelete) {
			end = len(toDelete)
		}
		chunk := toDelete[start:end]

		if err := o.store.DeleteInvoicesByIDs(ctx, chunk); err != nil {
			run.DeleteFailures++
			logger.CtxWarn(ctx, "Delete batch of %d failed (best-effort cleanup): %v", len(chunk), err)
			continue
		}
		run.DeletedRecords += len(chunk)
		logger.With(logger.Fields{logger.FieldCount: len(chunk)}).
			Debug(ctx, "Deleted stale invoice batch")
	}
}

// persistProgress records per-page counters on the run log. A failure here
// only loses a progress hint, so it is logged and swallowed.
func (o *Orchestrator) persistProgress(ctx context.Context, run *domain.SyncRun) {
	if err := o.runs.Update(ctx, run); err != nil {
		logger.CtxWarn(ctx, "Failed to persist run progress: %v", err)
	}
}

// pause sleeps the politeness delay between page fetches, returning early on
// context cancellation.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.cfg.PageDelay <= 0 {
		return
	}
	t := time.NewTimer(o.cfg.PageDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
