package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"crmforge/internal/store"

	"github.com/google/uuid"
)

// CreateDataset inserts a new dataset row.
func (s *Store) CreateDataset(ctx context.Context, tx store.DBTransaction, d *store.Dataset) error {
	counts, err := json.Marshal(d.RecordCounts)
	if err != nil {
		return err
	}

	executor := s.getExecutor(tx)
	query := `
		INSERT INTO datasets (id, owner_id, environment_id, name, scenario, industry, status, record_counts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = executor.ExecContext(ctx, query,
		d.ID, d.OwnerID, d.EnvironmentID, d.Name, d.Scenario, d.Industry,
		d.Status, counts, d.CreatedAt,
	)
	return err
}

// GetDatasetByID returns a dataset by its ID.
func (s *Store) GetDatasetByID(ctx context.Context, id uuid.UUID) (*store.Dataset, error) {
	query := `
		SELECT id, owner_id, environment_id, name, scenario, industry, status, record_counts, created_at, completed_at
		FROM datasets
		WHERE id = $1
	`

	var d store.Dataset
	var counts []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.OwnerID, &d.EnvironmentID, &d.Name, &d.Scenario, &d.Industry,
		&d.Status, &counts, &d.CreatedAt, &d.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(counts, &d.RecordCounts); err != nil {
		return nil, fmt.Errorf("failed to decode record counts for dataset %s: %w", id, err)
	}
	return &d, nil
}

// UpdateDatasetStatus advances the dataset state machine. The WHERE clause
// conditions on the current status, so the forward-only invariant holds
// even if two jobs race; completed_at is stamped once, on the terminal
// transition.
func (s *Store) UpdateDatasetStatus(ctx context.Context, id uuid.UUID, from, to store.DatasetStatus) error {
	query := `
		UPDATE datasets
		SET status = $1,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $2 AND status = $3
	`
	res, err := s.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset %s is not in status %s: %w", id, from, store.ErrNotFound)
	}
	return nil
}

// MarkDatasetFailed is the escape hatch: any non-terminal status drops to
// failed.
func (s *Store) MarkDatasetFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE datasets
		SET status = 'failed', completed_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, id)
	return err
}

// SetRecordCounts replaces the per-object-type tally.
func (s *Store) SetRecordCounts(ctx context.Context, id uuid.UUID, counts map[store.ObjectType]int) error {
	encoded, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE datasets SET record_counts = $1 WHERE id = $2", encoded, id)
	return err
}

// DeleteDataset removes the dataset; dataset_records cascade with it.
func (s *Store) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE id = $1", id)
	return err
}
