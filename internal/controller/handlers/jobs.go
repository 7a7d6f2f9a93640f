package handlers

import (
	"errors"
	"net/http"

	"crmforge/internal/store"
	"crmforge/pkg/api"

	"github.com/google/uuid"
)

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, jobResponse(job))
}

// CancelJob handles POST /jobs/{id}/cancel.
// Cancellation is cooperative: a processing handler observes it between
// records, so remote side effects already committed are not rolled back.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	if err := h.store.Cancel(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotClaimable) {
			h.httpError(w, "Job is already finished", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, map[string]string{"status": string(store.JobStatusCancelled)})
}

func jobResponse(job *store.Job) api.JobResponse {
	resp := api.JobResponse{
		ID:              job.ID.String(),
		Type:            string(job.Type),
		Status:          string(job.Status),
		Priority:        job.Priority,
		Attempts:        job.Attempts,
		MaxAttempts:     job.MaxAttempts,
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		ErrorMessage:    job.ErrorMessage,
		ScheduledFor:    job.ScheduledFor,
		CompletedAt:     job.CompletedAt,
		CreatedAt:       job.CreatedAt,
	}
	if job.DatasetID != nil {
		datasetID := job.DatasetID.String()
		resp.DatasetID = &datasetID
	}
	return resp
}
