package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
	"github.com/ternarybob/lotwatch/internal/services/orchestrator"
)

// CreateJobRequest is the body of POST /api/jobs. A job targets either an
// explicit dealer set or every active dealer of a region.
type CreateJobRequest struct {
	Model     string  `json:"model" validate:"required"`
	Region    string  `json:"region,omitempty"`
	DealerIDs []int64 `json:"dealer_ids,omitempty" validate:"omitempty,dive,gt=0"`
}

// JobHandler handles scrape job API requests
type JobHandler struct {
	orchestrator interfaces.OrchestratorService
	dealerStore  interfaces.DealerStorage
	jobStore     interfaces.JobStorage
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(orchestratorService interfaces.OrchestratorService, dealerStore interfaces.DealerStorage, jobStore interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		orchestrator: orchestratorService,
		dealerStore:  dealerStore,
		jobStore:     jobStore,
		validate:     validator.New(),
		logger:       logger,
	}
}

// CreateJobHandler starts a scrape job and returns once the job record exists
// POST /api/jobs {"model": "Tacoma", "region": "west", "dealer_ids": [1001]}
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.startJob(ctx, &req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoDealers) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("model", req.Model).Msg("Failed to start job")
		WriteError(w, http.StatusInternalServerError, "Failed to start job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID.String()).
		Str("model", job.Model).
		Int("dealers", job.TargetCount).
		Msg("Scrape job accepted")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *JobHandler) startJob(ctx context.Context, req *CreateJobRequest) (*models.ScrapeJob, error) {
	if len(req.DealerIDs) == 0 {
		return h.orchestrator.StartModelJob(ctx, req.Model, req.Region)
	}

	dealers, err := h.dealerStore.ListDealers(ctx, interfaces.DealerFilter{IDs: req.DealerIDs, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list dealers: %w", err)
	}
	return h.orchestrator.StartJob(ctx, dealers, req.Model)
}

// GetJobHandler returns a single job with its tasks
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Extract job ID from path: /api/jobs/{id}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	jobID, err := uuid.Parse(pathParts[2])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobStore.GetJob(ctx, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if job == nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	tasks, err := h.jobStore.ListTasks(ctx, jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID.String()).Msg("Failed to list job tasks")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job":   job,
		"tasks": tasks,
	})
}

// ListJobsHandler returns recent jobs, newest first
// GET /api/jobs?limit=50&offset=0&status=partial
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	offset := 0
	status := r.URL.Query().Get("status")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	jobs, err := h.jobStore.ListJobs(ctx, limit+offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	if status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if job.Status == status {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}
	if offset < len(jobs) {
		jobs = jobs[offset:]
	} else {
		jobs = nil
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  limit,
		"offset": offset,
	})
}

// CancelJobHandler cancels a running job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Extract job ID from path: /api/jobs/{id}/cancel
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	jobID, err := uuid.Parse(pathParts[2])
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if !h.orchestrator.CancelJob(jobID) {
		job, err := h.jobStore.GetJob(ctx, jobID)
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to get job")
			WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteError(w, http.StatusConflict, "Job is not running")
		return
	}

	h.logger.Info().Str("job_id", jobID.String()).Msg("Job cancellation requested")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"message": "Job cancellation requested",
	})
}
