package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crmforge/internal/store"

	"github.com/google/uuid"
)

// CreateSnapshot inserts a new snapshot row in the creating state.
func (s *Store) CreateSnapshot(ctx context.Context, tx store.DBTransaction, snap *store.Snapshot) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO snapshots (id, environment_id, dataset_id, name, status, is_golden, record_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := executor.ExecContext(ctx, query,
		snap.ID, snap.EnvironmentID, snap.DatasetID, snap.Name,
		snap.Status, snap.IsGolden, snap.RecordCount, snap.CreatedAt,
	)
	return err
}

// GetSnapshotByID returns a snapshot by its ID.
func (s *Store) GetSnapshotByID(ctx context.Context, id uuid.UUID) (*store.Snapshot, error) {
	return s.getSnapshot(ctx, "SELECT id, environment_id, dataset_id, name, status, is_golden, record_count, error_message, created_at FROM snapshots WHERE id = $1", id)
}

// GetGoldenByEnvironment returns the environment's golden snapshot, or
// store.ErrNotFound when none is flagged.
func (s *Store) GetGoldenByEnvironment(ctx context.Context, environmentID uuid.UUID) (*store.Snapshot, error) {
	return s.getSnapshot(ctx, "SELECT id, environment_id, dataset_id, name, status, is_golden, record_count, error_message, created_at FROM snapshots WHERE environment_id = $1 AND is_golden", environmentID)
}

func (s *Store) getSnapshot(ctx context.Context, query string, arg interface{}) (*store.Snapshot, error) {
	var snap store.Snapshot
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&snap.ID, &snap.EnvironmentID, &snap.DatasetID, &snap.Name,
		&snap.Status, &snap.IsGolden, &snap.RecordCount, &snap.ErrorMessage, &snap.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &snap, nil
}

// UpdateSnapshotStatus advances the snapshot state machine, conditional on
// the current status.
func (s *Store) UpdateSnapshotStatus(ctx context.Context, id uuid.UUID, from, to store.SnapshotStatus, errMsg *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE snapshots
		SET status = $1, error_message = $2
		WHERE id = $3 AND status = $4
	`, to, errMsg, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s is not in status %s: %w", id, from, store.ErrNotFound)
	}
	return nil
}

// CaptureRecords copies the dataset's injected records into
// snapshot_records and stamps the count on the snapshot.
func (s *Store) CaptureRecords(ctx context.Context, tx store.DBTransaction, snapshotID, datasetID uuid.UUID) (int64, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		INSERT INTO snapshot_records (snapshot_id, object_type, local_id, parent_local_id, external_id, fields)
		SELECT $1, object_type, local_id, parent_local_id, external_id, fields
		FROM dataset_records
		WHERE dataset_id = $2 AND status = 'injected'
	`, snapshotID, datasetID)
	if err != nil {
		return 0, fmt.Errorf("snapshot capture failed: %w", err)
	}

	captured, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := executor.ExecContext(ctx,
		"UPDATE snapshots SET record_count = $1 WHERE id = $2", captured, snapshotID,
	); err != nil {
		return captured, err
	}

	return captured, nil
}

// ListSnapshotRecords returns all captured records in a snapshot.
func (s *Store) ListSnapshotRecords(ctx context.Context, snapshotID uuid.UUID) ([]store.SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, snapshot_id, object_type, local_id, parent_local_id, external_id, fields
		FROM snapshot_records
		WHERE snapshot_id = $1
		ORDER BY local_id ASC
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []store.SnapshotRecord
	for rows.Next() {
		var r store.SnapshotRecord
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.ObjectType, &r.LocalID, &r.ParentLocalID, &r.ExternalID, &r.Fields); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SetGolden flips the golden flag to the given snapshot in one
// transaction: the previous golden image in the same environment is
// unset, then the new one is set. The partial unique index on
// (environment_id) WHERE is_golden backstops the invariant.
func (s *Store) SetGolden(ctx context.Context, snapshotID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var environmentID uuid.UUID
	var status store.SnapshotStatus
	err = tx.QueryRowContext(ctx,
		"SELECT environment_id, status FROM snapshots WHERE id = $1 FOR UPDATE", snapshotID,
	).Scan(&environmentID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status != store.SnapshotStatusReady {
		return fmt.Errorf("snapshot %s is not ready (status %s)", snapshotID, status)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE snapshots SET is_golden = FALSE WHERE environment_id = $1 AND is_golden", environmentID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE snapshots SET is_golden = TRUE WHERE id = $1", snapshotID,
	); err != nil {
		return err
	}

	return tx.Commit()
}
