package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"crmforge/internal/jobs"
	"crmforge/internal/store"
	"crmforge/pkg/api"

	"github.com/google/uuid"
)

// CreateSnapshot handles POST /snapshots.
// The snapshot row and its capture job are created together; the worker
// moves the snapshot from creating to ready.
func (h *Handlers) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ownerID, err := parseOwner(req.OwnerID)
	if err != nil {
		h.httpError(w, "Invalid owner id", http.StatusBadRequest)
		return
	}
	environmentID, err := uuid.Parse(req.EnvironmentID)
	if err != nil {
		h.httpError(w, "Invalid environment id", http.StatusBadRequest)
		return
	}
	datasetID, err := uuid.Parse(req.DatasetID)
	if err != nil {
		h.httpError(w, "Invalid dataset id", http.StatusBadRequest)
		return
	}

	snap := &store.Snapshot{
		ID:            uuid.New(),
		EnvironmentID: environmentID,
		DatasetID:     &datasetID,
		Name:          req.Name,
		Status:        store.SnapshotStatusCreating,
		CreatedAt:     time.Now().UTC(),
	}

	payload, err := jobs.Encode(&jobs.SnapshotCreatePayload{SnapshotID: snap.ID, DatasetID: datasetID})
	if err != nil {
		h.httpError(w, "Failed to encode job payload", http.StatusInternalServerError)
		return
	}

	job := &store.Job{
		ID:        uuid.New(),
		Type:      store.JobTypeSnapshotCreate,
		Payload:   payload,
		OwnerID:   ownerID,
		DatasetID: &datasetID,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreateSnapshot(ctx, tx, snap); err != nil {
		h.httpError(w, "Failed to create snapshot", http.StatusInternalServerError)
		return
	}
	if err := h.store.Enqueue(ctx, tx, job); err != nil {
		h.httpError(w, "Failed to enqueue snapshot job", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateSnapshotResponse{
		SnapshotID: snap.ID.String(),
		JobID:      job.ID.String(),
	})
}

// GetSnapshot handles GET /snapshots/{id}.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshotID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid snapshot id", http.StatusBadRequest)
		return
	}

	snap, err := h.store.GetSnapshotByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Snapshot not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.SnapshotResponse{
		ID:            snap.ID.String(),
		Name:          snap.Name,
		EnvironmentID: snap.EnvironmentID.String(),
		Status:        string(snap.Status),
		IsGolden:      snap.IsGolden,
		RecordCount:   snap.RecordCount,
		CreatedAt:     snap.CreatedAt,
	})
}

// SetGoldenImage handles POST /snapshots/{id}/golden.
func (h *Handlers) SetGoldenImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshotID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid snapshot id", http.StatusBadRequest)
		return
	}

	if err := h.store.SetGolden(ctx, snapshotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Snapshot not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to set golden image", http.StatusConflict)
		return
	}

	h.respondJson(w, http.StatusOK, map[string]bool{"is_golden": true})
}

// ResetEnvironment handles POST /environments/{id}/reset.
// It enqueues a restore of the environment's golden snapshot.
func (h *Handlers) ResetEnvironment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	environmentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid environment id", http.StatusBadRequest)
		return
	}

	var req api.ResetEnvironmentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.httpError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	ownerID, err := parseOwner(req.OwnerID)
	if err != nil {
		h.httpError(w, "Invalid owner id", http.StatusBadRequest)
		return
	}

	golden, err := h.store.GetGoldenByEnvironment(ctx, environmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Environment has no golden image", http.StatusConflict)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	payload, err := jobs.Encode(&jobs.SnapshotRestorePayload{
		SnapshotID: golden.ID,
		Purge:      !req.KeepCurrent,
	})
	if err != nil {
		h.httpError(w, "Failed to encode job payload", http.StatusInternalServerError)
		return
	}

	job := &store.Job{
		ID:        uuid.New(),
		Type:      store.JobTypeSnapshotRestore,
		Payload:   payload,
		OwnerID:   ownerID,
		DatasetID: golden.DatasetID,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Enqueue(ctx, nil, job); err != nil {
		h.httpError(w, "Failed to enqueue restore job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.ResetEnvironmentResponse{
		SnapshotID: golden.ID.String(),
		JobID:      job.ID.String(),
	})
}
