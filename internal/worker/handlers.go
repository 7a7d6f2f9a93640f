package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"crmforge/internal/crm"
	"crmforge/internal/generate"
	"crmforge/internal/inject"
	"crmforge/internal/jobs"
	"crmforge/internal/observability"
	"crmforge/internal/schedule"
	"crmforge/internal/snapshot"
	"crmforge/internal/store"

	"github.com/google/uuid"
)

// Store combines the persistence surfaces the job handlers use.
// *postgres.Store satisfies it.
type Store interface {
	store.Queue
	store.DatasetStore
	store.RecordStore
	BeginTx(ctx context.Context) (store.Tx, error)
}

// cancelPoll builds the cooperative cancellation check handlers pass to
// executors. A poll error reads as not-cancelled; the job finishes and
// the next transition surfaces the problem.
func cancelPoll(q store.Queue, jobID uuid.UUID) func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		cancelled, err := q.IsCancelled(ctx, jobID)
		return err == nil && cancelled
	}
}

// GenerationHandler synthesizes a dataset's records.
type GenerationHandler struct {
	Store    Store
	Content  generate.ContentGenerator
	SchedCfg schedule.Config
	Density  schedule.Density

	// Seed provides the per-job random seed; tests pin it.
	Seed func() int64
}

func (h *GenerationHandler) Type() store.JobType { return store.JobTypeGeneration }

func (h *GenerationHandler) Handle(ctx context.Context, job *store.Job) (json.RawMessage, error) {
	p, err := decodePayload[*jobs.GenerationPayload](job)
	if err != nil {
		return nil, err
	}

	if err := h.Store.UpdateDatasetStatus(ctx, p.DatasetID, store.DatasetStatusPending, store.DatasetStatusGenerating); err != nil {
		// A retry resumes a dataset already in generating.
		if ds, getErr := h.Store.GetDatasetByID(ctx, p.DatasetID); getErr != nil || ds.Status != store.DatasetStatusGenerating {
			return nil, fmt.Errorf("dataset %s not ready for generation: %w", p.DatasetID, err)
		}
	}

	seed := time.Now().UnixNano()
	if h.Seed != nil {
		seed = h.Seed()
	}
	exec := generate.NewExecutor(h.Content, h.SchedCfg, h.Density, rand.New(rand.NewSource(seed)))
	exec.Cancelled = cancelPoll(h.Store, job.ID)
	exec.Progress = func(objectType store.ObjectType, produced, total int) {
		percent := 0
		if total > 0 {
			percent = produced * 100 / total
		}
		_ = h.Store.ReportProgress(ctx, job.ID, percent, fmt.Sprintf("generated %s records", objectType))
	}

	records, err := exec.Run(ctx, generate.Request{
		DatasetID: p.DatasetID,
		Counts:    p.Counts,
		Scenario:  p.Scenario,
		Industry:  p.Industry,
	})
	if err != nil {
		if errors.Is(err, generate.ErrCancelled) {
			return nil, ErrJobCancelled
		}
		if markErr := h.Store.MarkDatasetFailed(ctx, p.DatasetID); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}

	tx, err := h.Store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := h.Store.BulkInsertRecords(ctx, tx, records); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	counts := make(map[store.ObjectType]int)
	for _, r := range records {
		counts[r.ObjectType]++
	}
	if err := h.Store.SetRecordCounts(ctx, p.DatasetID, counts); err != nil {
		return nil, err
	}
	if err := h.Store.UpdateDatasetStatus(ctx, p.DatasetID, store.DatasetStatusGenerating, store.DatasetStatusGenerated); err != nil {
		return nil, err
	}

	return json.Marshal(jobs.GenerationResult{RecordsGenerated: counts})
}

// InjectionHandler pushes a generated dataset into the remote CRM.
type InjectionHandler struct {
	Store     Store
	Connector crm.Connector
	Metrics   *observability.WorkerMetrics
}

func (h *InjectionHandler) Type() store.JobType { return store.JobTypeInjection }

func (h *InjectionHandler) Handle(ctx context.Context, job *store.Job) (json.RawMessage, error) {
	p, err := decodePayload[*jobs.InjectionPayload](job)
	if err != nil {
		return nil, err
	}

	dataset, err := h.Store.GetDatasetByID(ctx, p.DatasetID)
	if err != nil {
		return nil, err
	}
	switch dataset.Status {
	case store.DatasetStatusGenerated:
		if err := h.Store.UpdateDatasetStatus(ctx, p.DatasetID, store.DatasetStatusGenerated, store.DatasetStatusInjecting); err != nil {
			return nil, err
		}
	case store.DatasetStatusInjecting:
		// Retry after a partial failure; injected records are skipped.
	default:
		return nil, fmt.Errorf("dataset %s is not injectable (status %s)", p.DatasetID, dataset.Status)
	}

	records, err := h.Store.ListRecordsByDataset(ctx, p.DatasetID)
	if err != nil {
		return nil, err
	}

	exec := inject.NewExecutor(h.Connector, h.Store)
	exec.Cancelled = cancelPoll(h.Store, job.ID)
	exec.Progress = func(ev inject.ProgressEvent) {
		percent := 0
		if ev.Total > 0 {
			percent = ev.Processed * 100 / ev.Total
		}
		_ = h.Store.ReportProgress(ctx, job.ID, percent, fmt.Sprintf("injected through %s", ev.LocalID))
		if h.Metrics != nil && ev.Injected {
			h.Metrics.RecordsInjected.Add(ctx, 1)
		}
	}

	summary, err := exec.Run(ctx, records)
	if err != nil {
		if errors.Is(err, inject.ErrCancelled) {
			return nil, ErrJobCancelled
		}
		// Resolver errors abort the whole job: partial injection under an
		// unresolved cycle risks orphaned remote records.
		if markErr := h.Store.MarkDatasetFailed(ctx, p.DatasetID); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}

	if err := h.Store.SetRecordCounts(ctx, p.DatasetID, summary.Counts); err != nil {
		return nil, err
	}

	if summary.Failed > 0 {
		if err := h.Store.MarkDatasetFailed(ctx, p.DatasetID); err != nil {
			return nil, err
		}
	} else {
		if err := h.Store.UpdateDatasetStatus(ctx, p.DatasetID, store.DatasetStatusInjecting, store.DatasetStatusCompleted); err != nil {
			return nil, err
		}
	}

	return json.Marshal(jobs.InjectionResult{
		Injected: summary.Injected,
		Failed:   summary.Failed,
		Skipped:  summary.Skipped,
	})
}

// CleanupHandler deletes a dataset's remote records and then the dataset.
type CleanupHandler struct {
	Store     Store
	Connector crm.Connector
	Log       *slog.Logger
}

func (h *CleanupHandler) Type() store.JobType { return store.JobTypeCleanup }

func (h *CleanupHandler) Handle(ctx context.Context, job *store.Job) (json.RawMessage, error) {
	p, err := decodePayload[*jobs.CleanupPayload](job)
	if err != nil {
		return nil, err
	}

	records, err := h.Store.ListRecordsByDataset(ctx, p.DatasetID)
	if err != nil {
		return nil, err
	}

	// Children before parents, so the remote system never sees a
	// dangling reference mid-cleanup.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ObjectType.InjectionPrecedence() > records[j].ObjectType.InjectionPrecedence()
	})

	cancelled := cancelPoll(h.Store, job.ID)
	deleted := 0
	for i, r := range records {
		if cancelled(ctx) {
			return nil, ErrJobCancelled
		}
		if r.ExternalID == nil {
			continue
		}
		if err := h.Connector.Delete(ctx, r.ObjectType, *r.ExternalID); err != nil {
			// Best-effort: a record deleted out-of-band must not wedge
			// cleanup.
			h.Log.WarnContext(ctx, "remote delete failed", "local_id", r.LocalID, "error", err)
			continue
		}
		deleted++
		_ = h.Store.ReportProgress(ctx, job.ID, (i+1)*100/len(records), "deleting remote records")
	}

	if err := h.Store.DeleteDataset(ctx, p.DatasetID); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]int{"deleted": deleted})
}

// SnapshotCreateHandler captures a dataset's injected record set.
type SnapshotCreateHandler struct {
	Store   Store
	Manager *snapshot.Manager
}

func (h *SnapshotCreateHandler) Type() store.JobType { return store.JobTypeSnapshotCreate }

func (h *SnapshotCreateHandler) Handle(ctx context.Context, job *store.Job) (json.RawMessage, error) {
	p, err := decodePayload[*jobs.SnapshotCreatePayload](job)
	if err != nil {
		return nil, err
	}

	captured, err := h.Manager.Capture(ctx, p.SnapshotID, p.DatasetID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(jobs.SnapshotResult{SnapshotID: p.SnapshotID, Records: int(captured)})
}

// SnapshotRestoreHandler re-materializes a snapshot's captured set.
type SnapshotRestoreHandler struct {
	Store   Store
	Manager *snapshot.Manager
}

func (h *SnapshotRestoreHandler) Type() store.JobType { return store.JobTypeSnapshotRestore }

func (h *SnapshotRestoreHandler) Handle(ctx context.Context, job *store.Job) (json.RawMessage, error) {
	p, err := decodePayload[*jobs.SnapshotRestorePayload](job)
	if err != nil {
		return nil, err
	}

	restored, err := h.Manager.Restore(ctx, p.SnapshotID, snapshot.RestoreOptions{
		Purge:     p.Purge,
		Cancelled: cancelPoll(h.Store, job.ID),
		Progress: func(processed, total int) {
			if total > 0 {
				_ = h.Store.ReportProgress(ctx, job.ID, processed*100/total, "restoring records")
			}
		},
	})
	if err != nil {
		if errors.Is(err, snapshot.ErrCancelled) {
			return nil, ErrJobCancelled
		}
		return nil, err
	}

	return json.Marshal(jobs.SnapshotResult{SnapshotID: p.SnapshotID, Records: restored})
}

// decodePayload decodes and type-asserts a job's payload variant.
func decodePayload[T jobs.Payload](job *store.Job) (T, error) {
	var zero T
	p, err := jobs.Decode(job.Type, job.Payload)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("payload for job %s does not match type %s", job.ID, job.Type)
	}
	return typed, nil
}
