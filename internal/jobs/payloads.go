// Package jobs defines the typed payload and result documents carried by
// queue jobs. Payloads are a tagged union keyed by the job's type: each
// job type has one payload struct, and Decode refuses a payload that does
// not match the job's declared type.
package jobs

import (
	"encoding/json"
	"fmt"

	"crmforge/internal/store"

	"github.com/google/uuid"
)

// Payload is implemented by every job payload variant.
type Payload interface {
	JobType() store.JobType
}

// GenerationPayload asks a worker to synthesize a dataset's records.
type GenerationPayload struct {
	DatasetID uuid.UUID                `json:"dataset_id"`
	Counts    map[store.ObjectType]int `json:"counts"`
	Scenario  string                   `json:"scenario,omitempty"`
	Industry  string                   `json:"industry,omitempty"`
}

func (GenerationPayload) JobType() store.JobType { return store.JobTypeGeneration }

// InjectionPayload asks a worker to push a generated dataset into the
// remote CRM in dependency order.
type InjectionPayload struct {
	DatasetID uuid.UUID `json:"dataset_id"`
}

func (InjectionPayload) JobType() store.JobType { return store.JobTypeInjection }

// CleanupPayload asks a worker to delete a dataset's remote records and
// then the dataset itself.
type CleanupPayload struct {
	DatasetID uuid.UUID `json:"dataset_id"`
}

func (CleanupPayload) JobType() store.JobType { return store.JobTypeCleanup }

// SnapshotCreatePayload asks a worker to capture a dataset's injected
// record set as a snapshot.
type SnapshotCreatePayload struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	DatasetID  uuid.UUID `json:"dataset_id"`
}

func (SnapshotCreatePayload) JobType() store.JobType { return store.JobTypeSnapshotCreate }

// SnapshotRestorePayload asks a worker to re-materialize a snapshot's
// captured record set. Purge controls whether current non-snapshot
// records are deleted first; restores are destructive by default.
type SnapshotRestorePayload struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	Purge      bool      `json:"purge"`
}

func (SnapshotRestorePayload) JobType() store.JobType { return store.JobTypeSnapshotRestore }

// Encode serializes a payload for storage on a job row.
func Encode(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.JobType(), err)
	}
	return raw, nil
}

// Decode deserializes a job's payload into the variant matching its type.
func Decode(jobType store.JobType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch jobType {
	case store.JobTypeGeneration:
		p = &GenerationPayload{}
	case store.JobTypeInjection:
		p = &InjectionPayload{}
	case store.JobTypeCleanup:
		p = &CleanupPayload{}
	case store.JobTypeSnapshotCreate:
		p = &SnapshotCreatePayload{}
	case store.JobTypeSnapshotRestore:
		p = &SnapshotRestorePayload{}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", jobType, err)
	}
	return p, nil
}

// GenerationResult summarizes a completed generation job.
type GenerationResult struct {
	RecordsGenerated map[store.ObjectType]int `json:"records_generated"`
}

// InjectionResult summarizes a completed injection job.
type InjectionResult struct {
	Injected int `json:"injected"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// SnapshotResult summarizes a completed snapshot job.
type SnapshotResult struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	Records    int       `json:"records"`
}
