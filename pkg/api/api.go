// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the controller.
package api

import "time"

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateDatasetRequest creates a dataset and enqueues its generation job.
type CreateDatasetRequest struct {
	Name          string         `json:"name"`
	OwnerID       string         `json:"owner_id"`
	EnvironmentID string         `json:"environment_id,omitempty"`
	Scenario      string         `json:"scenario,omitempty"`
	Industry      string         `json:"industry,omitempty"`
	Counts        map[string]int `json:"counts"`
	Priority      int            `json:"priority,omitempty"`
}

// CreateDatasetResponse returns the new dataset and its generation job.
type CreateDatasetResponse struct {
	DatasetID string `json:"dataset_id"`
	JobID     string `json:"job_id"`
}

// InjectDatasetRequest enqueues an injection job for a generated dataset.
type InjectDatasetRequest struct {
	Priority int `json:"priority,omitempty"`
}

// InjectDatasetResponse returns the injection job.
type InjectDatasetResponse struct {
	JobID string `json:"job_id"`
}

// DatasetResponse describes a dataset in API responses.
type DatasetResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	Scenario      string         `json:"scenario,omitempty"`
	Industry      string         `json:"industry,omitempty"`
	EnvironmentID string         `json:"environment_id,omitempty"`
	RecordCounts  map[string]int `json:"record_counts"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// JobResponse describes a job in API responses.
type JobResponse struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Priority        int        `json:"priority"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"max_attempts"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	DatasetID       *string    `json:"dataset_id,omitempty"`
	ScheduledFor    time.Time  `json:"scheduled_for"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CreateSnapshotRequest captures a dataset's injected record set.
type CreateSnapshotRequest struct {
	Name          string `json:"name"`
	OwnerID       string `json:"owner_id"`
	EnvironmentID string `json:"environment_id"`
	DatasetID     string `json:"dataset_id"`
}

// CreateSnapshotResponse returns the new snapshot and its capture job.
type CreateSnapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
	JobID      string `json:"job_id"`
}

// ResetEnvironmentRequest restores an environment from its golden image.
type ResetEnvironmentRequest struct {
	OwnerID string `json:"owner_id"`
	// KeepCurrent skips the destructive purge of current records.
	KeepCurrent bool `json:"keep_current,omitempty"`
}

// ResetEnvironmentResponse returns the restore job.
type ResetEnvironmentResponse struct {
	SnapshotID string `json:"snapshot_id"`
	JobID      string `json:"job_id"`
}

// SnapshotResponse describes a snapshot in API responses.
type SnapshotResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	EnvironmentID string    `json:"environment_id"`
	Status        string    `json:"status"`
	IsGolden      bool      `json:"is_golden"`
	RecordCount   int       `json:"record_count"`
	CreatedAt     time.Time `json:"created_at"`
}
