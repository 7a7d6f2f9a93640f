// Package snapshot models capture and restore of an environment's
// materialized record set: a point-in-time, golden-image-aware rollback
// mechanism built on the job queue.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"crmforge/internal/crm"
	"crmforge/internal/inject"
	"crmforge/internal/store"

	"github.com/google/uuid"
)

// ErrNoGoldenImage is returned by ResetToGolden when the environment has
// no golden snapshot.
var ErrNoGoldenImage = errors.New("environment has no golden image")

// ErrCancelled is returned when a restore observes cooperative
// cancellation between records.
var ErrCancelled = errors.New("snapshot restore cancelled")

// Store is the slice of persistence the manager needs. *postgres.Store
// satisfies it.
type Store interface {
	store.SnapshotStore
	ListInjectedRecordsByEnvironment(ctx context.Context, environmentID uuid.UUID) ([]store.DatasetRecord, error)
}

// Manager drives the snapshot state machine: creating -> ready,
// ready -> restoring -> ready, anything -> failed.
type Manager struct {
	store     Store
	connector crm.Connector
	logger    *slog.Logger
}

// NewManager creates a snapshot manager.
func NewManager(s Store, connector crm.Connector, logger *slog.Logger) *Manager {
	return &Manager{store: s, connector: connector, logger: logger}
}

// Capture copies a dataset's injected records into the snapshot and
// moves it to ready. On failure the snapshot lands in failed with the
// error message retained.
func (m *Manager) Capture(ctx context.Context, snapshotID, datasetID uuid.UUID) (int64, error) {
	captured, err := m.store.CaptureRecords(ctx, nil, snapshotID, datasetID)
	if err != nil {
		m.markFailed(ctx, snapshotID, store.SnapshotStatusCreating, err)
		return 0, err
	}

	if err := m.store.UpdateSnapshotStatus(ctx, snapshotID, store.SnapshotStatusCreating, store.SnapshotStatusReady, nil); err != nil {
		return captured, err
	}
	return captured, nil
}

// RestoreOptions controls a restore run.
type RestoreOptions struct {
	// Purge deletes the environment's current remote records before
	// re-materializing the captured set. Restores are destructive by
	// default; callers opt out explicitly.
	Purge bool

	// Progress is called after each re-created record; it may be nil.
	Progress func(processed, total int)

	// Cancelled is polled between records; it may be nil.
	Cancelled func(ctx context.Context) bool
}

// Restore re-materializes the snapshot's captured record set through the
// connector. Each captured record is re-created remotely with its
// references rewritten to the newly assigned external IDs.
func (m *Manager) Restore(ctx context.Context, snapshotID uuid.UUID, opts RestoreOptions) (int, error) {
	snap, err := m.store.GetSnapshotByID(ctx, snapshotID)
	if err != nil {
		return 0, err
	}

	if err := m.store.UpdateSnapshotStatus(ctx, snapshotID, store.SnapshotStatusReady, store.SnapshotStatusRestoring, nil); err != nil {
		return 0, err
	}

	restored, err := m.restore(ctx, snap, opts)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			// Cancellation is not a snapshot failure; the captured set is
			// intact and the snapshot stays usable.
			_ = m.store.UpdateSnapshotStatus(ctx, snapshotID, store.SnapshotStatusRestoring, store.SnapshotStatusReady, nil)
			return restored, err
		}
		m.markFailed(ctx, snapshotID, store.SnapshotStatusRestoring, err)
		return restored, err
	}

	if err := m.store.UpdateSnapshotStatus(ctx, snapshotID, store.SnapshotStatusRestoring, store.SnapshotStatusReady, nil); err != nil {
		return restored, err
	}
	return restored, nil
}

func (m *Manager) restore(ctx context.Context, snap *store.Snapshot, opts RestoreOptions) (int, error) {
	if opts.Purge {
		if err := m.purge(ctx, snap.EnvironmentID); err != nil {
			return 0, err
		}
	}

	records, err := m.store.ListSnapshotRecords(ctx, snap.ID)
	if err != nil {
		return 0, err
	}

	// Parents before children: object-type precedence first, then the
	// parent edge via a stable two-pass ordering. Captured sets are
	// acyclic by construction (they passed injection), so precedence plus
	// parent-first within a type is sufficient.
	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := records[i].ObjectType.InjectionPrecedence(), records[j].ObjectType.InjectionPrecedence()
		if pi != pj {
			return pi < pj
		}
		return records[i].LocalID < records[j].LocalID
	})

	externalIDs := make(map[string]string, len(records))
	restored := 0

	for i, r := range records {
		if opts.Cancelled != nil && opts.Cancelled(ctx) {
			return restored, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return restored, err
		}

		fields, err := inject.RewriteReferences(r.LocalID, r.Fields, externalIDs)
		if err != nil {
			return restored, fmt.Errorf("restore of %s: %w", r.LocalID, err)
		}

		externalID, err := m.connector.Create(ctx, r.ObjectType, fields)
		if err != nil {
			return restored, fmt.Errorf("restore of %s: %w", r.LocalID, err)
		}
		externalIDs[r.LocalID] = externalID
		restored++

		if opts.Progress != nil {
			opts.Progress(i+1, len(records))
		}
	}

	return restored, nil
}

// purge deletes the environment's current remote records, children
// before parents. Individual delete failures are logged and skipped;
// missing remote records must not wedge a restore.
func (m *Manager) purge(ctx context.Context, environmentID uuid.UUID) error {
	current, err := m.store.ListInjectedRecordsByEnvironment(ctx, environmentID)
	if err != nil {
		return err
	}

	sort.SliceStable(current, func(i, j int) bool {
		return current[i].ObjectType.InjectionPrecedence() > current[j].ObjectType.InjectionPrecedence()
	})

	for _, r := range current {
		if r.ExternalID == nil {
			continue
		}
		if err := m.connector.Delete(ctx, r.ObjectType, *r.ExternalID); err != nil {
			m.logger.WarnContext(ctx, "purge delete failed",
				"local_id", r.LocalID, "external_id", *r.ExternalID, "error", err)
		}
	}
	return nil
}

// SetGolden flags the snapshot as its environment's golden image,
// atomically unsetting the previous one.
func (m *Manager) SetGolden(ctx context.Context, snapshotID uuid.UUID) error {
	return m.store.SetGolden(ctx, snapshotID)
}

// ResetToGolden returns the environment's golden snapshot so the caller
// can enqueue a restore of it.
func (m *Manager) ResetToGolden(ctx context.Context, environmentID uuid.UUID) (*store.Snapshot, error) {
	snap, err := m.store.GetGoldenByEnvironment(ctx, environmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoGoldenImage
		}
		return nil, err
	}
	return snap, nil
}

func (m *Manager) markFailed(ctx context.Context, snapshotID uuid.UUID, from store.SnapshotStatus, cause error) {
	msg := cause.Error()
	if err := m.store.UpdateSnapshotStatus(ctx, snapshotID, from, store.SnapshotStatusFailed, &msg); err != nil {
		m.logger.ErrorContext(ctx, "failed to mark snapshot failed",
			"snapshot_id", snapshotID.String(), "error", err)
	}
}
