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

// CreateDataset handles POST /datasets.
// It creates the dataset row and enqueues its generation job in one
// transaction, so a dataset never exists without a job driving it.
func (h *Handlers) CreateDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" || len(req.Counts) == 0 {
		h.httpError(w, "Name and counts are required", http.StatusBadRequest)
		return
	}

	ownerID, err := parseOwner(req.OwnerID)
	if err != nil {
		h.httpError(w, "Invalid owner id", http.StatusBadRequest)
		return
	}

	var environmentID *uuid.UUID
	if req.EnvironmentID != "" {
		envID, err := uuid.Parse(req.EnvironmentID)
		if err != nil {
			h.httpError(w, "Invalid environment id", http.StatusBadRequest)
			return
		}
		environmentID = &envID
	}

	counts := make(map[store.ObjectType]int, len(req.Counts))
	for objectType, n := range req.Counts {
		if n < 0 {
			h.httpError(w, "Counts must be non-negative", http.StatusBadRequest)
			return
		}
		counts[store.ObjectType(objectType)] = n
	}

	dataset := &store.Dataset{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		EnvironmentID: environmentID,
		Name:          req.Name,
		Scenario:      req.Scenario,
		Industry:      req.Industry,
		Status:        store.DatasetStatusPending,
		RecordCounts:  map[store.ObjectType]int{},
		CreatedAt:     time.Now().UTC(),
	}

	payload, err := jobs.Encode(&jobs.GenerationPayload{
		DatasetID: dataset.ID,
		Counts:    counts,
		Scenario:  req.Scenario,
		Industry:  req.Industry,
	})
	if err != nil {
		h.httpError(w, "Failed to encode job payload", http.StatusInternalServerError)
		return
	}

	job := &store.Job{
		ID:        uuid.New(),
		Type:      store.JobTypeGeneration,
		Priority:  req.Priority,
		Payload:   payload,
		OwnerID:   ownerID,
		DatasetID: &dataset.ID,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreateDataset(ctx, tx, dataset); err != nil {
		h.httpError(w, "Failed to create dataset", http.StatusInternalServerError)
		return
	}
	if err := h.store.Enqueue(ctx, tx, job); err != nil {
		h.httpError(w, "Failed to enqueue generation job", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateDatasetResponse{
		DatasetID: dataset.ID.String(),
		JobID:     job.ID.String(),
	})
}

// InjectDataset handles POST /datasets/{id}/inject.
func (h *Handlers) InjectDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasetID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid dataset id", http.StatusBadRequest)
		return
	}

	var req api.InjectDatasetRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.httpError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	dataset, err := h.store.GetDatasetByID(ctx, datasetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Dataset not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	if dataset.Status != store.DatasetStatusGenerated {
		h.httpError(w, "Dataset is not ready for injection", http.StatusConflict)
		return
	}

	payload, err := jobs.Encode(&jobs.InjectionPayload{DatasetID: datasetID})
	if err != nil {
		h.httpError(w, "Failed to encode job payload", http.StatusInternalServerError)
		return
	}

	job := &store.Job{
		ID:        uuid.New(),
		Type:      store.JobTypeInjection,
		Priority:  req.Priority,
		Payload:   payload,
		OwnerID:   dataset.OwnerID,
		DatasetID: &datasetID,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Enqueue(ctx, nil, job); err != nil {
		h.httpError(w, "Failed to enqueue injection job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.InjectDatasetResponse{JobID: job.ID.String()})
}

// GetDataset handles GET /datasets/{id}.
func (h *Handlers) GetDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasetID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid dataset id", http.StatusBadRequest)
		return
	}

	dataset, err := h.store.GetDatasetByID(ctx, datasetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Dataset not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	counts := make(map[string]int, len(dataset.RecordCounts))
	for objectType, n := range dataset.RecordCounts {
		counts[string(objectType)] = n
	}

	resp := api.DatasetResponse{
		ID:           dataset.ID.String(),
		Name:         dataset.Name,
		Status:       string(dataset.Status),
		Scenario:     dataset.Scenario,
		Industry:     dataset.Industry,
		RecordCounts: counts,
		CreatedAt:    dataset.CreatedAt,
		CompletedAt:  dataset.CompletedAt,
	}
	if dataset.EnvironmentID != nil {
		resp.EnvironmentID = dataset.EnvironmentID.String()
	}

	h.respondJson(w, http.StatusOK, resp)
}

// CleanupDataset handles DELETE /datasets/{id}.
// The delete is asynchronous: a cleanup job removes remote records first.
func (h *Handlers) CleanupDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasetID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid dataset id", http.StatusBadRequest)
		return
	}

	dataset, err := h.store.GetDatasetByID(ctx, datasetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Dataset not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	payload, err := jobs.Encode(&jobs.CleanupPayload{DatasetID: datasetID})
	if err != nil {
		h.httpError(w, "Failed to encode job payload", http.StatusInternalServerError)
		return
	}

	job := &store.Job{
		ID:        uuid.New(),
		Type:      store.JobTypeCleanup,
		Payload:   payload,
		OwnerID:   dataset.OwnerID,
		DatasetID: &datasetID,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Enqueue(ctx, nil, job); err != nil {
		h.httpError(w, "Failed to enqueue cleanup job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String()})
}
