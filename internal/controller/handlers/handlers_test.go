package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"crmforge/internal/store"

	"github.com/google/uuid"
)

// Mock transaction
type mockTx struct{}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { return nil }

func (m *mockTx) Rollback() error { return nil }

// Mock Store
type mockStore struct {
	// Infra hooks
	beginTxErr error
	pingErr    error

	// Queue hooks
	enqueueErr       error
	cancelErr        error
	getJobByIDResp   *store.Job
	getJobByIDErr    error
	countPendingResp int64

	// Dataset hooks
	createDatasetErr  error
	getDatasetResp    *store.Dataset
	getDatasetErr     error
	updateStatusErr   error
	markFailedErr     error
	setCountsErr      error
	deleteDatasetErr  error
	listRecordsResp   []store.DatasetRecord
	listRecordsErr    error
	bulkInsertErr     error
	listInjectedResp  []store.DatasetRecord
	listInjectedErr   error
	markInjectingErr  error
	markInjectedErr   error
	markRecordFailErr error

	// Snapshot hooks
	createSnapshotErr  error
	getSnapshotResp    *store.Snapshot
	getSnapshotErr     error
	updateSnapshotErr  error
	captureRecordsResp int64
	captureRecordsErr  error
	listSnapRecsResp   []store.SnapshotRecord
	listSnapRecsErr    error
	setGoldenErr       error
	getGoldenResp      *store.Snapshot
	getGoldenErr       error

	// Spies (to verify arguments passed by handlers)
	capturedJob     *store.Job
	capturedDataset *store.Dataset
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	return &mockTx{}, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) Enqueue(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	m.capturedJob = job
	return m.enqueueErr
}

func (m *mockStore) ClaimNext(ctx context.Context) (*store.Job, error) {
	return nil, nil // Worker-side, not used by handlers
}

func (m *mockStore) ReportProgress(ctx context.Context, jobID uuid.UUID, percent int, message string) error {
	return nil
}

func (m *mockStore) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	return nil
}

func (m *mockStore) Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error {
	return nil
}

func (m *mockStore) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return m.cancelErr
}

func (m *mockStore) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return false, nil
}

func (m *mockStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (m *mockStore) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.getJobByIDResp, m.getJobByIDErr
}

func (m *mockStore) CountPending(ctx context.Context) (int64, error) {
	return m.countPendingResp, nil
}

func (m *mockStore) CreateDataset(ctx context.Context, tx store.DBTransaction, d *store.Dataset) error {
	m.capturedDataset = d
	return m.createDatasetErr
}

func (m *mockStore) GetDatasetByID(ctx context.Context, id uuid.UUID) (*store.Dataset, error) {
	return m.getDatasetResp, m.getDatasetErr
}

func (m *mockStore) UpdateDatasetStatus(ctx context.Context, id uuid.UUID, from, to store.DatasetStatus) error {
	return m.updateStatusErr
}

func (m *mockStore) MarkDatasetFailed(ctx context.Context, id uuid.UUID) error {
	return m.markFailedErr
}

func (m *mockStore) SetRecordCounts(ctx context.Context, id uuid.UUID, counts map[store.ObjectType]int) error {
	return m.setCountsErr
}

func (m *mockStore) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	return m.deleteDatasetErr
}

func (m *mockStore) BulkInsertRecords(ctx context.Context, tx store.DBTransaction, records []store.DatasetRecord) error {
	return m.bulkInsertErr
}

func (m *mockStore) ListRecordsByDataset(ctx context.Context, datasetID uuid.UUID) ([]store.DatasetRecord, error) {
	return m.listRecordsResp, m.listRecordsErr
}

func (m *mockStore) ListInjectedRecordsByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]store.DatasetRecord, error) {
	return m.listInjectedResp, m.listInjectedErr
}

func (m *mockStore) MarkRecordInjecting(ctx context.Context, recordID uuid.UUID) error {
	return m.markInjectingErr
}

func (m *mockStore) MarkRecordInjected(ctx context.Context, recordID uuid.UUID, externalID string, at time.Time) error {
	return m.markInjectedErr
}

func (m *mockStore) MarkRecordFailed(ctx context.Context, recordID uuid.UUID, reason string) error {
	return m.markRecordFailErr
}

func (m *mockStore) CreateSnapshot(ctx context.Context, tx store.DBTransaction, s *store.Snapshot) error {
	return m.createSnapshotErr
}

func (m *mockStore) GetSnapshotByID(ctx context.Context, id uuid.UUID) (*store.Snapshot, error) {
	return m.getSnapshotResp, m.getSnapshotErr
}

func (m *mockStore) UpdateSnapshotStatus(ctx context.Context, id uuid.UUID, from, to store.SnapshotStatus, errMsg *string) error {
	return m.updateSnapshotErr
}

func (m *mockStore) CaptureRecords(ctx context.Context, tx store.DBTransaction, snapshotID, datasetID uuid.UUID) (int64, error) {
	return m.captureRecordsResp, m.captureRecordsErr
}

func (m *mockStore) ListSnapshotRecords(ctx context.Context, snapshotID uuid.UUID) ([]store.SnapshotRecord, error) {
	return m.listSnapRecsResp, m.listSnapRecsErr
}

func (m *mockStore) SetGolden(ctx context.Context, snapshotID uuid.UUID) error {
	return m.setGoldenErr
}

func (m *mockStore) GetGoldenByEnvironment(ctx context.Context, environmentID uuid.UUID) (*store.Snapshot, error) {
	return m.getGoldenResp, m.getGoldenErr
}
