package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crmforge/internal/store"

	"github.com/google/uuid"
)

// BulkInsertRecords inserts generated records in chunks using multi-row
// VALUES, so one generation job does not issue thousands of round trips.
func (s *Store) BulkInsertRecords(ctx context.Context, tx store.DBTransaction, records []store.DatasetRecord) error {
	if len(records) == 0 {
		return nil
	}

	executor := s.getExecutor(tx)

	const chunkSize = 500
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO dataset_records (id, dataset_id, object_type, local_id, parent_local_id, fields, status, created_at) VALUES `)

		args := make([]interface{}, 0, len(chunk)*8)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 8
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
			args = append(args,
				r.ID, r.DatasetID, r.ObjectType, r.LocalID, r.ParentLocalID,
				r.Fields, r.Status, r.CreatedAt,
			)
		}

		if _, err := executor.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("bulk insert of %d records failed: %w", len(chunk), err)
		}
	}

	return nil
}

// ListRecordsByDataset returns all records for a dataset, ordered by
// creation for stable iteration.
func (s *Store) ListRecordsByDataset(ctx context.Context, datasetID uuid.UUID) ([]store.DatasetRecord, error) {
	query := `
		SELECT id, dataset_id, object_type, local_id, parent_local_id, external_id,
		       fields, status, error_message, injected_at, created_at
		FROM dataset_records
		WHERE dataset_id = $1
		ORDER BY created_at ASC, local_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []store.DatasetRecord
	for rows.Next() {
		var r store.DatasetRecord
		if err := rows.Scan(
			&r.ID, &r.DatasetID, &r.ObjectType, &r.LocalID, &r.ParentLocalID,
			&r.ExternalID, &r.Fields, &r.Status, &r.ErrorMessage, &r.InjectedAt, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListInjectedRecordsByEnvironment returns every injected record across
// the environment's datasets.
func (s *Store) ListInjectedRecordsByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]store.DatasetRecord, error) {
	query := `
		SELECT r.id, r.dataset_id, r.object_type, r.local_id, r.parent_local_id, r.external_id,
		       r.fields, r.status, r.error_message, r.injected_at, r.created_at
		FROM dataset_records r
		JOIN datasets d ON r.dataset_id = d.id
		WHERE d.environment_id = $1 AND r.status = 'injected'
		ORDER BY r.created_at ASC, r.local_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []store.DatasetRecord
	for rows.Next() {
		var r store.DatasetRecord
		if err := rows.Scan(
			&r.ID, &r.DatasetID, &r.ObjectType, &r.LocalID, &r.ParentLocalID,
			&r.ExternalID, &r.Fields, &r.Status, &r.ErrorMessage, &r.InjectedAt, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// MarkRecordInjecting flags a record as in flight.
func (s *Store) MarkRecordInjecting(ctx context.Context, recordID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dataset_records SET status = 'injecting' WHERE id = $1
	`, recordID)
	return err
}

// MarkRecordInjected stores the externally-assigned identifier.
func (s *Store) MarkRecordInjected(ctx context.Context, recordID uuid.UUID, externalID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dataset_records
		SET status = 'injected', external_id = $1, injected_at = $2, error_message = NULL
		WHERE id = $3
	`, externalID, at, recordID)
	return err
}

// MarkRecordFailed records why injection of this record did not happen.
func (s *Store) MarkRecordFailed(ctx context.Context, recordID uuid.UUID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dataset_records
		SET status = 'failed', error_message = $1
		WHERE id = $2
	`, reason, recordID)
	return err
}
