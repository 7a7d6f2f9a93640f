// Package inject pushes a dataset's records into the remote CRM in
// dependency order, mapping locally-generated identifiers to the
// externally-assigned ones as it goes.
package inject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmforge/internal/crm"
	"crmforge/internal/graph"
	"crmforge/internal/store"

	"github.com/google/uuid"
)

// ErrCancelled is returned when the executor observes cooperative
// cancellation between records.
var ErrCancelled = errors.New("injection cancelled")

// UnresolvedReferenceError reports a reference field that still carries a
// local identifier with no external mapping. Dependency ordering should
// make this impossible; it is checked anyway so a stale value is never
// sent to the remote system.
type UnresolvedReferenceError struct {
	LocalID string
	Field   string
	Ref     string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("record %s field %s references %s which has no external id", e.LocalID, e.Field, e.Ref)
}

// RecordSink persists per-record outcomes. *postgres.Store satisfies it.
type RecordSink interface {
	MarkRecordInjecting(ctx context.Context, recordID uuid.UUID) error
	MarkRecordInjected(ctx context.Context, recordID uuid.UUID, externalID string, at time.Time) error
	MarkRecordFailed(ctx context.Context, recordID uuid.UUID, reason string) error
}

// ProgressEvent is emitted after each record so job progress can be
// driven incrementally. Injected is true only when this record was
// created remotely; skipped and failed records still emit an event.
type ProgressEvent struct {
	LocalID   string
	Processed int
	Total     int
	Injected  bool
	Counts    map[store.ObjectType]int
}

// Summary is the outcome of one injection run.
type Summary struct {
	Injected int
	Failed   int
	Skipped  int
	Counts   map[store.ObjectType]int
}

// Executor walks a dataset's records in resolved dependency order. The
// local-to-external ID map is scoped to one run; independent datasets
// never share state.
type Executor struct {
	connector crm.Connector
	sink      RecordSink

	// Progress is called after every record; it may be nil.
	Progress func(ev ProgressEvent)

	// Cancelled is polled between records; it may be nil.
	Cancelled func(ctx context.Context) bool
}

// NewExecutor creates an injection executor.
func NewExecutor(connector crm.Connector, sink RecordSink) *Executor {
	return &Executor{connector: connector, sink: sink}
}

// Run injects the records and returns a summary. Individual record
// failures do not abort the run: siblings and independent branches
// continue, and only descendants of a failed record are skipped. Records
// already injected are treated as terminal successes, so re-running
// after a partial failure never duplicates remote records.
func (e *Executor) Run(ctx context.Context, records []store.DatasetRecord) (Summary, error) {
	summary := Summary{Counts: make(map[store.ObjectType]int)}

	order, err := graph.Resolve(records)
	if err != nil {
		return summary, err
	}

	byLocal := make(map[string]*store.DatasetRecord, len(records))
	for i := range records {
		byLocal[records[i].LocalID] = &records[i]
	}

	// Seed the ID map from prior runs.
	externalIDs := make(map[string]string, len(records))
	failed := make(map[string]bool)

	for processed, localID := range order {
		record := byLocal[localID]

		if record.Status == store.RecordStatusInjected && record.ExternalID != nil {
			externalIDs[localID] = *record.ExternalID
			summary.Skipped++
			summary.Counts[record.ObjectType]++
			e.emit(localID, processed+1, len(order), false, summary.Counts)
			continue
		}

		if e.Cancelled != nil && e.Cancelled(ctx) {
			return summary, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if record.ParentLocalID != nil && failed[*record.ParentLocalID] {
			reason := fmt.Sprintf("dependency failed: parent %s was not injected", *record.ParentLocalID)
			if err := e.sink.MarkRecordFailed(ctx, record.ID, reason); err != nil {
				return summary, fmt.Errorf("failed to mark record %s: %w", localID, err)
			}
			failed[localID] = true
			summary.Failed++
			e.emit(localID, processed+1, len(order), false, summary.Counts)
			continue
		}

		fields, refErr := RewriteReferences(record.LocalID, record.Fields, externalIDs)
		if refErr != nil {
			if err := e.sink.MarkRecordFailed(ctx, record.ID, refErr.Error()); err != nil {
				return summary, fmt.Errorf("failed to mark record %s: %w", localID, err)
			}
			failed[localID] = true
			summary.Failed++
			e.emit(localID, processed+1, len(order), false, summary.Counts)
			continue
		}

		if err := e.sink.MarkRecordInjecting(ctx, record.ID); err != nil {
			return summary, fmt.Errorf("failed to mark record %s: %w", localID, err)
		}

		externalID, createErr := e.connector.Create(ctx, record.ObjectType, fields)
		if createErr != nil {
			if err := e.sink.MarkRecordFailed(ctx, record.ID, createErr.Error()); err != nil {
				return summary, fmt.Errorf("failed to mark record %s: %w", localID, err)
			}
			failed[localID] = true
			summary.Failed++
			e.emit(localID, processed+1, len(order), false, summary.Counts)
			continue
		}

		if err := e.sink.MarkRecordInjected(ctx, record.ID, externalID, time.Now().UTC()); err != nil {
			return summary, fmt.Errorf("failed to mark record %s: %w", localID, err)
		}
		externalIDs[localID] = externalID
		summary.Injected++
		summary.Counts[record.ObjectType]++
		e.emit(localID, processed+1, len(order), true, summary.Counts)
	}

	return summary, nil
}

func (e *Executor) emit(localID string, processed, total int, injected bool, counts map[store.ObjectType]int) {
	if e.Progress == nil {
		return
	}
	snapshot := make(map[store.ObjectType]int, len(counts))
	for k, v := range counts {
		snapshot[k] = v
	}
	e.Progress(ProgressEvent{LocalID: localID, Processed: processed, Total: total, Injected: injected, Counts: snapshot})
}

// RewriteReferences replaces every local-identifier reference in a
// record's fields with the corresponding external identifier. Reference
// fields follow the CRM naming convention of an Id suffix (AccountId,
// WhatId, WhoId). Snapshot restore shares this rewrite.
func RewriteReferences(localID string, raw json.RawMessage, externalIDs map[string]string) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("record %s has malformed fields: %w", localID, err)
	}

	for key, value := range fields {
		if !strings.HasSuffix(key, "Id") {
			continue
		}
		ref, ok := value.(string)
		if !ok || !store.IsLocalID(ref) {
			continue
		}
		externalID, resolved := externalIDs[ref]
		if !resolved {
			return nil, &UnresolvedReferenceError{LocalID: localID, Field: key, Ref: ref}
		}
		fields[key] = externalID
	}

	return fields, nil
}
