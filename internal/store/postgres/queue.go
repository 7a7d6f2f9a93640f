package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crmforge/internal/store"

	"github.com/google/uuid"
)

// Default retry policy
const (
	DefaultMaxAttempts = 3
	RetryBackoffBase   = 10 * time.Second
	RetryBackoffCap    = 10 * time.Minute
)

// retryBackoff computes the delay before a retryable failure becomes
// claimable again: base * 2^attempts, capped.
func retryBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 30 {
		return RetryBackoffCap
	}
	backoff := RetryBackoffBase * (1 << attempts)
	if backoff > RetryBackoffCap {
		return RetryBackoffCap
	}
	return backoff
}

const jobColumns = `id, type, status, priority, payload, result, attempts, max_attempts,
	progress, progress_message, error_message, owner_id, dataset_id,
	scheduled_for, claimed_at, completed_at, created_at`

func scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*store.Job, error) {
	var job store.Job
	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &job.Priority, &job.Payload, &job.Result,
		&job.Attempts, &job.MaxAttempts, &job.Progress, &job.ProgressMessage,
		&job.ErrorMessage, &job.OwnerID, &job.DatasetID,
		&job.ScheduledFor, &job.ClaimedAt, &job.CompletedAt, &job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Enqueue inserts a new pending job.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.ScheduledFor.IsZero() {
		job.ScheduledFor = time.Now().UTC()
	}
	job.Status = store.JobStatusPending

	executor := s.getExecutor(tx)

	query := `
		INSERT INTO jobs (id, type, status, priority, payload, max_attempts, owner_id, dataset_id, scheduled_for, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := executor.ExecContext(ctx, query,
		job.ID, job.Type, job.Status, job.Priority, job.Payload,
		job.MaxAttempts, job.OwnerID, job.DatasetID, job.ScheduledFor, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNext atomically claims the next eligible job using
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers never claim the
// same row. Returns (nil, nil) when the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*store.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id
		FROM jobs
		WHERE status = 'pending' AND scheduled_for <= NOW()
		ORDER BY priority DESC, scheduled_for ASC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`

	var jobID uuid.UUID
	if err := tx.QueryRowContext(ctx, selectQuery).Scan(&jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim query failed: %w", err)
	}

	updateQuery := fmt.Sprintf(`
		UPDATE jobs
		SET status = 'processing', attempts = attempts + 1, claimed_at = NOW(), progress_message = ''
		WHERE id = $1
		RETURNING %s
	`, jobColumns)

	job, err := scanJob(tx.QueryRowContext(ctx, updateQuery, jobID))
	if err != nil {
		return nil, fmt.Errorf("claim update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return job, nil
}

// ReportProgress updates the progress fields without touching status.
func (s *Store) ReportProgress(ctx context.Context, jobID uuid.UUID, percent int, message string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET progress = $1, progress_message = $2
		WHERE id = $3 AND status = 'processing'
	`, percent, message, jobID)
	return err
}

// Complete transitions processing -> completed and stores the result.
func (s *Store) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', result = $1, progress = 100, completed_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`, result, jobID)
	if err != nil {
		return err
	}
	return requireOneRow(res, store.ErrJobNotClaimable)
}

// Fail reschedules the job with exponential backoff when the failure is
// retryable and attempts remain; otherwise the job fails permanently.
// Only the owning worker calls Fail, so the read-then-update is safe.
func (s *Store) Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error {
	var attempts, maxAttempts int
	err := s.db.QueryRowContext(ctx,
		"SELECT attempts, max_attempts FROM jobs WHERE id = $1 AND status = 'processing'", jobID,
	).Scan(&attempts, &maxAttempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrJobNotClaimable
		}
		return err
	}

	if retryable && attempts < maxAttempts {
		backoff := retryBackoff(attempts)
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'pending', error_message = $1, scheduled_for = NOW() + ($2 * INTERVAL '1 second')
			WHERE id = $3 AND status = 'processing'
		`, errMsg, backoff.Seconds(), jobID)
		return err
	}

	// permanent failure
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`, errMsg, jobID)
	return err
}

// Cancel transitions a pending or processing job to cancelled. A handler
// already running the job observes this cooperatively via IsCancelled.
func (s *Store) Cancel(ctx context.Context, jobID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'cancelled', completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, jobID)
	if err != nil {
		return err
	}
	return requireOneRow(res, store.ErrJobNotClaimable)
}

// IsCancelled reports whether the job has been cancelled.
func (s *Store) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var status store.JobStatus
	err := s.db.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = $1", jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, err
	}
	return status == store.JobStatusCancelled, nil
}

// ReclaimStale returns jobs wedged in processing past the threshold
// (worker crash) to pending. The extra attempt they consumed when first
// claimed counts against max_attempts, so a crash-looping job still
// terminates; jobs out of attempts fail permanently instead.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', error_message = 'reclaimed after stale claim'
		WHERE status = 'processing'
		  AND claimed_at < NOW() - ($1 * INTERVAL '1 second')
		  AND attempts < max_attempts
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("stale reclaim failed: %w", err)
	}
	reclaimed, _ := res.RowsAffected()

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = 'worker lost after final attempt', completed_at = NOW()
		WHERE status = 'processing'
		  AND claimed_at < NOW() - ($1 * INTERVAL '1 second')
		  AND attempts >= max_attempts
	`, olderThan.Seconds())
	if err != nil {
		return reclaimed, fmt.Errorf("stale fail failed: %w", err)
	}

	return reclaimed, nil
}

// GetJobByID returns a job by its ID.
func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE id = $1", jobColumns)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// CountPending tracks queue depth for the metrics gauge.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE status = 'pending'").Scan(&count)
	return count, err
}

func requireOneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
