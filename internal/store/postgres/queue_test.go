package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"crmforge/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "type", "status", "priority", "payload", "result", "attempts", "max_attempts",
		"progress", "progress_message", "error_message", "owner_id", "dataset_id",
		"scheduled_for", "claimed_at", "completed_at", "created_at",
	})
}

func TestEnqueue_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	job := &store.Job{
		ID:        uuid.New(),
		Type:      store.JobTypeGeneration,
		Priority:  5,
		Payload:   json.RawMessage(`{"dataset_id":"x"}`),
		OwnerID:   uuid.New(),
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(job.ID, job.Type, store.JobStatusPending, 5, job.Payload,
			DefaultMaxAttempts, job.OwnerID, nil, sqlmock.AnyArg(), job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Enqueue(ctx, nil, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("got MaxAttempts %d, want %d", job.MaxAttempts, DefaultMaxAttempts)
	}
	if job.ScheduledFor.IsZero() {
		t.Error("expected ScheduledFor to be defaulted")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()
	ownerID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(jobID))
	mock.ExpectQuery(`UPDATE jobs`).
		WithArgs(jobID).
		WillReturnRows(jobRows().AddRow(
			jobID, store.JobTypeGeneration, store.JobStatusProcessing, 0,
			[]byte(`{}`), nil, 1, 3, 0, "", nil, ownerID, nil,
			now, now, nil, now,
		))
	mock.ExpectCommit()

	job, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job, got nil")
	}
	if job.ID != jobID {
		t.Errorf("got job ID %v, want %v", job.ID, jobID)
	}
	if job.Status != store.JobStatusProcessing {
		t.Errorf("got status %s, want processing", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("got attempts %d, want 1", job.Attempts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_OrderingQueryStructure(t *testing.T) {
	// We use sqlmock NOT to test sorting, but to test that we generated the
	// correct SQL. This catches regression if someone deletes the ordering
	// or the SKIP LOCKED clause.
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM jobs\s+WHERE status = 'pending' AND scheduled_for <= NOW\(\)\s+ORDER BY priority DESC, scheduled_for ASC, created_at ASC\s+FOR UPDATE SKIP LOCKED\s+LIMIT 1`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	job, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job on empty queue, got %v", job.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimNext_EmptyQueue(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM jobs`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	job, err := s.ClaimNext(ctx)
	if err != nil {
		t.Errorf("expected no error for empty queue, got %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job, got %v", job.ID)
	}
}

func TestComplete_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()
	result := json.RawMessage(`{"records":10}`)

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(result, jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Complete(ctx, jobID, result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestComplete_LostRace(t *testing.T) {
	// A concurrent cancel can take the job out of processing first; the
	// conditional update then touches zero rows.
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(sqlmock.AnyArg(), jobID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Complete(ctx, jobID, json.RawMessage(`{}`))
	if !errors.Is(err, store.ErrJobNotClaimable) {
		t.Errorf("got %v, want ErrJobNotClaimable", err)
	}
}

func TestFail_WithRetry(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()
	attempts := 2 // Less than max_attempts (3)

	mock.ExpectQuery(`SELECT attempts, max_attempts FROM jobs`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(attempts, 3))

	// Exponential backoff: 10 * 2^2 = 40 seconds
	expectedBackoff := retryBackoff(attempts)
	mock.ExpectExec(`UPDATE jobs`).
		WithArgs("temporary error", expectedBackoff.Seconds(), jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Fail(ctx, jobID, "temporary error", true); err != nil {
		t.Fatalf("Fail with retry failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFail_PermanentAfterMaxAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT attempts, max_attempts FROM jobs`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(3, 3))

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs("still broken", jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Retryable, but out of attempts.
	if err := s.Fail(ctx, jobID, "still broken", true); err != nil {
		t.Fatalf("Fail permanent failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFail_NonRetryableFailsImmediately(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	// First attempt, but the failure is not retryable.
	mock.ExpectQuery(`SELECT attempts, max_attempts FROM jobs`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(1, 3))

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs("validation rejected", jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Fail(ctx, jobID, "validation rejected", false); err != nil {
		t.Fatalf("Fail non-retryable failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCancel_PendingJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Cancel(ctx, jobID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
}

func TestCancel_TerminalJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	// Completed and failed jobs are not in the IN ('pending','processing')
	// set, so the update touches nothing.
	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Cancel(ctx, jobID)
	if !errors.Is(err, store.ErrJobNotClaimable) {
		t.Errorf("got %v, want ErrJobNotClaimable", err)
	}
}

func TestIsCancelled(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT status FROM jobs`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))

	cancelled, err := s.IsCancelled(ctx, jobID)
	if err != nil {
		t.Fatalf("IsCancelled failed: %v", err)
	}
	if !cancelled {
		t.Error("expected cancelled=true")
	}
}

func TestIsCancelled_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT status FROM jobs`).
		WithArgs(jobID).
		WillReturnError(sql.ErrNoRows)

	_, err := s.IsCancelled(ctx, jobID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestReclaimStale(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ctx := context.Background()
	threshold := 10 * time.Minute

	// Jobs with attempts remaining go back to pending.
	mock.ExpectExec(`UPDATE jobs\s+SET status = 'pending'`).
		WithArgs(threshold.Seconds()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	// Jobs out of attempts fail permanently.
	mock.ExpectExec(`UPDATE jobs\s+SET status = 'failed'`).
		WithArgs(threshold.Seconds()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reclaimed, err := s.ReclaimStale(ctx, threshold)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 2 {
		t.Errorf("got %d reclaimed, want 2", reclaimed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRetryBackoff_Doubling(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{6, 10 * time.Minute}, // 640s capped at 600s
		{40, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := retryBackoff(tc.attempts); got != tc.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}
