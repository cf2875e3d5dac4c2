package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
	"github.com/Matanbitton/cheap-crawler/internal/services/crawler"
)

// HealthHandler reports service liveness and capacity counters
type HealthHandler struct {
	scraperService interfaces.ScraperService
	queueMgr       interfaces.QueueManager
	jobStorage     interfaces.JobStorage
	limiter        *crawler.LaunchLimiter
	logger         arbor.ILogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(scraperService interfaces.ScraperService, queueMgr interfaces.QueueManager, jobStorage interfaces.JobStorage, limiter *crawler.LaunchLimiter, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		scraperService: scraperService,
		queueMgr:       queueMgr,
		jobStorage:     jobStorage,
		limiter:        limiter,
		logger:         logger,
	}
}

// HealthHandler handles GET /health
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ctx := r.Context()

	response := map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"scraper": h.scraperService.Stats(),
	}

	if h.limiter != nil {
		response["browsers"] = map[string]int{
			"in_use":   h.limiter.InUse(),
			"capacity": h.limiter.Capacity(),
		}
	}

	if h.queueMgr != nil {
		if stats, err := h.queueMgr.Stats(ctx); err == nil {
			response["queue"] = stats
		} else {
			h.logger.Warn().Err(err).Msg("Failed to read queue stats")
		}
	}

	if h.jobStorage != nil {
		jobs := map[string]int{}
		for _, status := range []models.JobStatus{
			models.JobStatusPending,
			models.JobStatusRunning,
			models.JobStatusCompleted,
			models.JobStatusFailed,
		} {
			count, _ := h.jobStorage.CountJobs(ctx, &interfaces.JobListOptions{Status: string(status)})
			jobs[string(status)] = count
		}
		response["jobs"] = jobs
	}

	WriteJSON(w, http.StatusOK, response)
}
