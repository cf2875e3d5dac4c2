// -----------------------------------------------------------------------
// Job Handler - Queued scrape jobs over HTTP
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// JobHandler manages scrape job lifecycle endpoints
type JobHandler struct {
	scraperService interfaces.ScraperService
	jobStorage     interfaces.JobStorage
	queueMgr       interfaces.QueueManager
	logger         arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(scraperService interfaces.ScraperService, jobStorage interfaces.JobStorage, queueMgr interfaces.QueueManager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		scraperService: scraperService,
		jobStorage:     jobStorage,
		queueMgr:       queueMgr,
		logger:         logger,
	}
}

// JobsHandler routes /api/jobs by method
func (h *JobHandler) JobsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CreateJobHandler(w, r)
	case http.MethodGet:
		h.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// JobByIDHandler routes /api/jobs/{id} by method
func (h *JobHandler) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetJobHandler(w, r, id)
	case http.MethodDelete:
		h.DeleteJobHandler(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// CreateJobHandler handles POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	seedURL, opts, err := h.scraperService.ValidateRequest(req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := models.NewScrapeJob(common.NewJobID(), seedURL, opts.MaxPages, opts.MaxLength)
	if err := h.jobStorage.SaveJob(r.Context(), job); err != nil {
		h.logger.Error().Err(err).Str("url", seedURL).Msg("Failed to save scrape job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	payload, err := job.Payload()
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to build job payload")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	msg := models.QueueMessage{
		JobID:   job.ID,
		Type:    models.JobTypeScrape,
		Payload: payload,
	}
	if err := h.queueMgr.Enqueue(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue scrape job")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("url", seedURL).
		Int("max_pages", opts.MaxPages).
		Msg("Scrape job created")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

// ListJobsHandler handles GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := GetPaginationParams(r)

	opts := &interfaces.JobListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  pageSize,
		Offset: page * pageSize,
	}

	jobs, err := h.jobStorage.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	total, err := h.jobStorage.CountJobs(r.Context(), &interfaces.JobListOptions{Status: opts.Status})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobStorage.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// DeleteJobHandler handles DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.jobStorage.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	if !job.IsTerminal() {
		WriteError(w, http.StatusBadRequest, "Cannot delete a job that is still pending or running")
		return
	}

	if err := h.jobStorage.DeleteJob(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}

	h.logger.Info().Str("job_id", id).Msg("Scrape job deleted")
	WriteSuccess(w, "Job deleted")
}
