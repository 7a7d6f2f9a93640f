package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotClaimable is returned when a conditional job transition finds
// the job no longer in the expected state, e.g. completing a job another
// path already cancelled, or cancelling one that already finished.
var ErrJobNotClaimable = errors.New("job is not in a claimable state")

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// Queue owns the job lifecycle. Implementations must make ClaimNext atomic
// against concurrent callers; two workers must never process the same job.
type Queue interface {
	// Enqueue inserts a new pending job.
	Enqueue(ctx context.Context, tx DBTransaction, job *Job) error

	// ClaimNext atomically claims the highest-priority pending job whose
	// scheduled_for has passed, transitioning it to processing and
	// incrementing attempts. Returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context) (*Job, error)

	// ReportProgress updates progress without changing status.
	ReportProgress(ctx context.Context, jobID uuid.UUID, percent int, message string) error

	// Complete transitions processing -> completed and stores the result.
	Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error

	// Fail either reschedules the job with exponential backoff (retryable
	// and attempts remain) or marks it permanently failed.
	Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error

	// Cancel transitions a pending or processing job to cancelled.
	// Returns ErrJobNotClaimable for jobs already in a terminal state.
	Cancel(ctx context.Context, jobID uuid.UUID) error

	// IsCancelled lets a running handler poll for cooperative cancellation.
	IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error)

	// ReclaimStale returns jobs stuck in processing past the threshold
	// (worker crash) to pending. Reports how many were reclaimed.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// GetJobByID returns a job by its ID.
	GetJobByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// CountPending tracks queue depth for the metrics gauge.
	CountPending(ctx context.Context) (int64, error)
}

// DatasetStore handles persistence of datasets and their records.
type DatasetStore interface {
	CreateDataset(ctx context.Context, tx DBTransaction, d *Dataset) error
	GetDatasetByID(ctx context.Context, id uuid.UUID) (*Dataset, error)

	// UpdateDatasetStatus advances the dataset state machine. The update is
	// conditional on the current status so the forward-only invariant holds
	// under concurrent writers; completed_at is stamped on reaching a
	// terminal status.
	UpdateDatasetStatus(ctx context.Context, id uuid.UUID, from, to DatasetStatus) error

	// MarkDatasetFailed is the escape hatch from any non-terminal status.
	MarkDatasetFailed(ctx context.Context, id uuid.UUID) error

	// SetRecordCounts replaces the per-object-type tally.
	SetRecordCounts(ctx context.Context, id uuid.UUID, counts map[ObjectType]int) error

	// DeleteDataset removes the dataset and cascades to its records.
	DeleteDataset(ctx context.Context, id uuid.UUID) error
}

// RecordStore handles persistence of individual dataset records. Status,
// external_id and injected_at are written only through the injection
// executor's mark methods.
type RecordStore interface {
	BulkInsertRecords(ctx context.Context, tx DBTransaction, records []DatasetRecord) error
	ListRecordsByDataset(ctx context.Context, datasetID uuid.UUID) ([]DatasetRecord, error)

	// ListInjectedRecordsByEnvironment returns every injected record in
	// the environment's datasets; snapshot restore uses it to purge the
	// current remote set.
	ListInjectedRecordsByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]DatasetRecord, error)

	MarkRecordInjecting(ctx context.Context, recordID uuid.UUID) error
	MarkRecordInjected(ctx context.Context, recordID uuid.UUID, externalID string, at time.Time) error
	MarkRecordFailed(ctx context.Context, recordID uuid.UUID, reason string) error
}

// SnapshotStore handles persistence of snapshots and their captured records.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, tx DBTransaction, s *Snapshot) error
	GetSnapshotByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	UpdateSnapshotStatus(ctx context.Context, id uuid.UUID, from, to SnapshotStatus, errMsg *string) error

	// CaptureRecords copies the injected records of the snapshot's dataset
	// into snapshot_records, returning how many were captured.
	CaptureRecords(ctx context.Context, tx DBTransaction, snapshotID, datasetID uuid.UUID) (int64, error)
	ListSnapshotRecords(ctx context.Context, snapshotID uuid.UUID) ([]SnapshotRecord, error)

	// SetGolden flips the golden flag to the given snapshot, atomically
	// unsetting it on any previous golden image in the same environment.
	SetGolden(ctx context.Context, snapshotID uuid.UUID) error

	// GetGoldenByEnvironment returns the environment's golden snapshot or
	// ErrNotFound.
	GetGoldenByEnvironment(ctx context.Context, environmentID uuid.UUID) (*Snapshot, error)
}
