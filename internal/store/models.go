// Package store contains the database layer for crmforge.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType identifies which handler interprets a job's payload.
type JobType string

const (
	JobTypeGeneration      JobType = "generation"
	JobTypeInjection       JobType = "injection"
	JobTypeCleanup         JobType = "cleanup"
	JobTypeSnapshotCreate  JobType = "snapshot_create"
	JobTypeSnapshotRestore JobType = "snapshot_restore"
)

// JobStatus represents the state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is a unit of asynchronous work pulled from the queue by a worker.
// Payload and Result are interpreted per Type; see the jobs package for
// the typed envelope.
type Job struct {
	ID              uuid.UUID
	Type            JobType
	Status          JobStatus
	Priority        int
	Payload         json.RawMessage
	Result          json.RawMessage
	Attempts        int
	MaxAttempts     int
	Progress        int
	ProgressMessage string
	ErrorMessage    *string
	OwnerID         uuid.UUID
	DatasetID       *uuid.UUID
	ScheduledFor    time.Time
	ClaimedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// DatasetStatus tracks a dataset through the generate/inject pipeline.
// It only advances forward, except that any non-terminal state may drop
// to failed.
type DatasetStatus string

const (
	DatasetStatusPending    DatasetStatus = "pending"
	DatasetStatusGenerating DatasetStatus = "generating"
	DatasetStatusGenerated  DatasetStatus = "generated"
	DatasetStatusInjecting  DatasetStatus = "injecting"
	DatasetStatusCompleted  DatasetStatus = "completed"
	DatasetStatusFailed     DatasetStatus = "failed"
)

// Dataset is a named collection of synthetic CRM records owned by one user.
type Dataset struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	EnvironmentID *uuid.UUID
	Name          string
	Scenario      string
	Industry      string
	Status        DatasetStatus
	RecordCounts  map[ObjectType]int
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// ObjectType is the CRM object an individual record materializes as.
type ObjectType string

const (
	ObjectAccount     ObjectType = "Account"
	ObjectContact     ObjectType = "Contact"
	ObjectOpportunity ObjectType = "Opportunity"
	ObjectTask        ObjectType = "Task"
	ObjectEvent       ObjectType = "Event"
)

// InjectionPrecedence orders object types so that likely parents inject
// before likely children when two records share no direct dependency edge.
func (t ObjectType) InjectionPrecedence() int {
	switch t {
	case ObjectAccount:
		return 0
	case ObjectContact:
		return 1
	case ObjectOpportunity:
		return 2
	case ObjectTask:
		return 3
	case ObjectEvent:
		return 4
	default:
		return 5
	}
}

// localIDPrefixes maps object types to the prefix used in local identifiers.
var localIDPrefixes = map[ObjectType]string{
	ObjectAccount:     "acct",
	ObjectContact:     "cont",
	ObjectOpportunity: "oppty",
	ObjectTask:        "task",
	ObjectEvent:       "evt",
}

// FormatLocalID builds the dataset-scoped synthetic identifier assigned to
// a record during generation, before the remote CRM assigns its own.
func FormatLocalID(t ObjectType, n int) string {
	prefix, ok := localIDPrefixes[t]
	if !ok {
		prefix = strings.ToLower(string(t))
	}
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// IsLocalID reports whether a field value looks like a locally-assigned
// identifier rather than an externally-assigned one. The injection
// executor uses this to find references that still need rewriting.
func IsLocalID(s string) bool {
	i := strings.IndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return false
	}
	for _, p := range localIDPrefixes {
		if s[:i] == p {
			return true
		}
	}
	return false
}

// RecordStatus tracks one record through injection.
type RecordStatus string

const (
	RecordStatusGenerated RecordStatus = "generated"
	RecordStatusInjecting RecordStatus = "injecting"
	RecordStatusInjected  RecordStatus = "injected"
	RecordStatusFailed    RecordStatus = "failed"
)

// DatasetRecord is one synthetic entity instance. LocalID is unique within
// the dataset; ExternalID is assigned by the remote CRM on successful
// injection. ParentLocalID, when set, must name another record in the same
// dataset and that record must be injected first.
type DatasetRecord struct {
	ID            uuid.UUID
	DatasetID     uuid.UUID
	ObjectType    ObjectType
	LocalID       string
	ParentLocalID *string
	ExternalID    *string
	Fields        json.RawMessage
	Status        RecordStatus
	ErrorMessage  *string
	InjectedAt    *time.Time
	CreatedAt     time.Time
}

// SnapshotStatus is the state of a captured record set.
type SnapshotStatus string

const (
	SnapshotStatusCreating  SnapshotStatus = "creating"
	SnapshotStatusReady     SnapshotStatus = "ready"
	SnapshotStatusRestoring SnapshotStatus = "restoring"
	SnapshotStatusFailed    SnapshotStatus = "failed"
)

// Snapshot is a point-in-time copy of an environment's injected record
// set. At most one snapshot per environment carries the golden flag.
type Snapshot struct {
	ID            uuid.UUID
	EnvironmentID uuid.UUID
	DatasetID     *uuid.UUID
	Name          string
	Status        SnapshotStatus
	IsGolden      bool
	RecordCount   int
	ErrorMessage  *string
	CreatedAt     time.Time
}

// SnapshotRecord is one captured record inside a snapshot. The parent
// reference is carried along so restore can re-materialize the set in
// dependency order.
type SnapshotRecord struct {
	ID            uuid.UUID
	SnapshotID    uuid.UUID
	ObjectType    ObjectType
	LocalID       string
	ParentLocalID *string
	ExternalID    *string
	Fields        json.RawMessage
}
